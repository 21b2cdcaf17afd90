package pagewriter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
	"github.com/AntidoteDB/elmerfs/internal/antidotec/fake"
)

func newTx(t *testing.T) antidotec.Transaction {
	t.Helper()
	dialer := fake.NewDialer()
	conn, err := dialer.Dial(context.Background(), nil)
	require.NoError(t, err)
	tx, err := conn.Transaction(context.Background(), antidotec.TransactionLocks{})
	require.NoError(t, err)
	return tx
}

const testBucket antidotec.Bucket = "b"

func TestWriteThenReadFullPage(t *testing.T) {
	w := New(8)
	tx := newTx(t)

	data := []byte("abcdefgh")
	require.NoError(t, w.Write(context.Background(), tx, testBucket, 1, 0, data))

	got, err := w.Read(context.Background(), tx, testBucket, 1, 0, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWritePartialPageIsReadModifyWrite(t *testing.T) {
	w := New(8)
	tx := newTx(t)

	require.NoError(t, w.Write(context.Background(), tx, testBucket, 1, 0, []byte("aaaaaaaa")))
	require.NoError(t, w.Write(context.Background(), tx, testBucket, 1, 2, []byte("XX")))

	got, err := w.Read(context.Background(), tx, testBucket, 1, 0, 8)
	require.NoError(t, err)
	require.Equal(t, []byte("aaXXaaaa"), got)
}

func TestWriteSpanningMultiplePages(t *testing.T) {
	w := New(4)
	tx := newTx(t)

	data := []byte("0123456789")
	require.NoError(t, w.Write(context.Background(), tx, testBucket, 1, 2, data))

	got, err := w.Read(context.Background(), tx, testBucket, 1, 2, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestReadSparseRegionZeroFills(t *testing.T) {
	w := New(8)
	tx := newTx(t)

	got, err := w.Read(context.Background(), tx, testBucket, 1, 0, 8)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), got)
}

func TestReadZeroLengthReturnsEmpty(t *testing.T) {
	w := New(8)
	tx := newTx(t)

	got, err := w.Read(context.Background(), tx, testBucket, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 0)
}

func TestWriteThenReadAcrossPageBoundaryPartialTail(t *testing.T) {
	w := New(4)
	tx := newTx(t)

	require.NoError(t, w.Write(context.Background(), tx, testBucket, 2, 0, []byte("AAAA")))
	require.NoError(t, w.Write(context.Background(), tx, testBucket, 2, 4, []byte("B")))

	got, err := w.Read(context.Background(), tx, testBucket, 2, 0, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("AAAAB"), got)
}
