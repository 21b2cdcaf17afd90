// Package pagewriter implements the paged file I/O layer: file
// contents are split into PAGE_SIZE-aligned pages, each stored under its own
// LWW register key page/<ino>/<page_index>.
package pagewriter

import (
	"context"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
)

// DefaultPageSize is the page size used when a Driver is not configured
// with one explicitly.
const DefaultPageSize = 4096

// Writer partitions byte ranges into pages and emits per-page CRDT
// reads/writes inside a caller-supplied transaction.
type Writer struct {
	pageSize int
}

func New(pageSize int) *Writer {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Writer{pageSize: pageSize}
}

func (w *Writer) pageKey(ino uint64, pageIndex int) antidotec.Key {
	return antidotec.PageKey(ino, uint64(pageIndex))
}

// Write partitions [offset, offset+len(data)) into aligned page spans. Spans
// that cover a whole page are written unconditionally; spans that only
// partially cover a page (a head or tail partial) are read-modified-written
// within the same transaction.
func (w *Writer) Write(ctx context.Context, tx antidotec.Transaction, bucket antidotec.Bucket, ino uint64, offset int, data []byte) error {
	P := w.pageSize
	start := offset
	end := offset + len(data)

	for pos := start; pos < end; {
		pageIndex := pos / P
		pageStart := pageIndex * P
		pageEnd := pageStart + P

		spanStart := pos
		spanEnd := end
		if spanEnd > pageEnd {
			spanEnd = pageEnd
		}

		chunk := data[spanStart-start : spanEnd-start]

		if spanStart == pageStart && spanEnd == pageEnd {
			// Fully covered page: unconditional overwrite.
			if err := tx.Update(ctx, bucket, []antidotec.Op{
				antidotec.PutRegister{Key: w.pageKey(ino, pageIndex), Value: chunk},
			}); err != nil {
				return err
			}
		} else {
			if err := w.readModifyWrite(ctx, tx, bucket, ino, pageIndex, spanStart-pageStart, chunk); err != nil {
				return err
			}
		}

		pos = spanEnd
	}

	return nil
}

func (w *Writer) readModifyWrite(ctx context.Context, tx antidotec.Transaction, bucket antidotec.Bucket, ino uint64, pageIndex, localOffset int, chunk []byte) error {
	replies, err := tx.Read(ctx, bucket, []antidotec.Key{w.pageKey(ino, pageIndex)})
	if err != nil {
		return err
	}

	var page []byte
	if replies[0].Exists {
		page = replies[0].Registers[""]
	}

	needed := localOffset + len(chunk)
	if len(page) < needed {
		grown := make([]byte, needed)
		copy(grown, page)
		page = grown
	}
	copy(page[localOffset:needed], chunk)

	return tx.Update(ctx, bucket, []antidotec.Op{
		antidotec.PutRegister{Key: w.pageKey(ino, pageIndex), Value: page},
	})
}

// Read fetches every page touched by [offset, offset+length), concatenating
// the requested slice into a freshly allocated buffer. Absent pages (sparse
// regions) are padded with zero bytes (the reference implementation does not
// zero-fill, which this implementation corrects).
func (w *Writer) Read(ctx context.Context, tx antidotec.Transaction, bucket antidotec.Bucket, ino uint64, offset, length int) ([]byte, error) {
	out := make([]byte, length)
	if length == 0 {
		return out, nil
	}

	P := w.pageSize
	start := offset
	end := offset + length

	firstPage := start / P
	lastPage := (end - 1) / P

	keys := make([]antidotec.Key, 0, lastPage-firstPage+1)
	for p := firstPage; p <= lastPage; p++ {
		keys = append(keys, w.pageKey(ino, p))
	}

	replies, err := tx.Read(ctx, bucket, keys)
	if err != nil {
		return nil, err
	}

	for i, p := range keys {
		_ = p
		pageIndex := firstPage + i
		pageStart := pageIndex * P
		pageEnd := pageStart + P

		spanStart := start
		if pageStart > spanStart {
			spanStart = pageStart
		}
		spanEnd := end
		if pageEnd < spanEnd {
			spanEnd = pageEnd
		}

		dstStart := spanStart - start
		dstEnd := spanEnd - start

		if !replies[i].Exists {
			// Zero-fill: out is already zeroed by make([]byte, length).
			continue
		}

		page := replies[i].Registers[""]
		localStart := spanStart - pageStart
		localEnd := spanEnd - pageStart

		for j := dstStart; j < dstEnd; j++ {
			localIdx := localStart + (j - dstStart)
			if localIdx < len(page) {
				out[j] = page[localIdx]
			}
		}
		_ = localEnd
	}

	return out, nil
}
