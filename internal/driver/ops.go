package driver

import (
	"context"
	"time"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
	"github.com/AntidoteDB/elmerfs/internal/inoalloc"
	"github.com/AntidoteDB/elmerfs/internal/model/dir"
	"github.com/AntidoteDB/elmerfs/internal/model/inode"
	"github.com/AntidoteDB/elmerfs/internal/model/symlink"
	"github.com/AntidoteDB/elmerfs/internal/view"
)

// GetAttr reads an inode and returns its attributes, or ENOENT if absent.
func (d *Driver) GetAttr(ctx context.Context, ino uint64) (Attr, *Error) {
	var result Attr
	err := d.transact(ctx, "getattr", []antidotec.Key{inode.Key(ino)}, nil, func(tx antidotec.Transaction) *Error {
		a, derr := d.attrOfAt(ctx, tx, "getattr", ino)
		if derr != nil {
			return derr
		}
		result = a
		return nil
	})
	return result, err
}

// SetAttrRequest carries only the fields the kernel actually asked to
// change; nil means "leave as is".
type SetAttrRequest struct {
	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Size  *uint64
	Atime *int64 // nanoseconds since epoch
	Mtime *int64
}

// SetAttr overwrites whichever optional fields req carries and persists
// the resulting mutable stats.
func (d *Driver) SetAttr(ctx context.Context, ino uint64, req SetAttrRequest) (Attr, *Error) {
	var result Attr
	err := d.transact(ctx, "setattr", nil, []antidotec.Key{inode.Key(ino)}, func(tx antidotec.Transaction) *Error {
		i, derr := d.readInode(ctx, tx, "setattr", ino)
		if derr != nil {
			return derr
		}

		if req.Mode != nil {
			i.Mode = *req.Mode
		}
		if req.Uid != nil {
			i.Owner.Uid = *req.Uid
		}
		if req.Gid != nil {
			i.Owner.Gid = *req.Gid
		}
		if req.Size != nil {
			i.Size = *req.Size
		}
		if req.Atime != nil {
			i.Atime = nsDuration(*req.Atime)
		}
		if req.Mtime != nil {
			i.Mtime = nsDuration(*req.Mtime)
		}

		if derr := d.update(ctx, tx, "setattr", inode.UpdateStats(i)); derr != nil {
			return derr
		}

		result = attrOf(i)
		return nil
	})
	return result, err
}

// Lookup resolves name within parentIno's directory, then reads the
// resolved inode's attributes.
func (d *Driver) Lookup(ctx context.Context, parentIno uint64, name view.NameRef) (Attr, *Error) {
	var result Attr
	err := d.transact(ctx, "lookup", []antidotec.Key{dir.Key(d.cfg.View, parentIno)}, nil, func(tx antidotec.Transaction) *Error {
		entries, derr := d.readDir(ctx, tx, "lookup", parentIno)
		if derr != nil {
			return derr
		}

		entry, ok := entries.Get(d.cfg.View, name)
		if !ok {
			return notFound("lookup")
		}

		a, derr := d.attrOfAt(ctx, tx, "lookup", entry.Ino)
		if derr != nil {
			return derr
		}
		result = a
		return nil
	})
	return result, err
}

// OpenDir/ReleaseDir/Open/Release are stateless: no file-handle table is
// maintained — this is intentional, not an omission — so they are
// all equivalent to GetAttr.
func (d *Driver) OpenDir(ctx context.Context, ino uint64) *Error {
	_, err := d.GetAttr(ctx, ino)
	return err
}

func (d *Driver) ReleaseDir(ctx context.Context, ino uint64) *Error {
	_, err := d.GetAttr(ctx, ino)
	return err
}

func (d *Driver) Open(ctx context.Context, ino uint64) *Error {
	_, err := d.GetAttr(ctx, ino)
	return err
}

func (d *Driver) Release(ctx context.Context, ino uint64) *Error {
	_, err := d.GetAttr(ctx, ino)
	return err
}

// ReadDir returns directory entries from offset onward, in stable
// canonical-name order.
func (d *Driver) ReadDir(ctx context.Context, ino uint64, offset int) ([]DirEntry, *Error) {
	var result []DirEntry
	err := d.transact(ctx, "readdir", []antidotec.Key{dir.Key(d.cfg.View, ino)}, nil, func(tx antidotec.Transaction) *Error {
		entries, derr := d.readDir(ctx, tx, "readdir", ino)
		if derr != nil {
			return derr
		}

		sorted := entries.Sorted()
		if offset >= len(sorted) {
			return nil
		}

		out := make([]DirEntry, 0, len(sorted)-offset)
		for _, e := range sorted[offset:] {
			out = append(out, DirEntry{Ino: e.Ino, Kind: e.Kind, Name: e.Name.String()})
		}
		result = out
		return nil
	})
	return result, err
}

// MkDir creates a directory entry and its backing inode and entity.
func (d *Driver) MkDir(ctx context.Context, owner inode.Owner, mode uint32, parentIno uint64, name view.NameRef) (Attr, *Error) {
	ino := d.nextIno()

	var result Attr
	err := d.transact(ctx, "mkdir", nil, []antidotec.Key{inode.Key(parentIno), dir.Key(d.cfg.View, parentIno)}, func(tx antidotec.Transaction) *Error {
		parent, derr := d.readInode(ctx, tx, "mkdir", parentIno)
		if derr != nil {
			return derr
		}
		entries, derr := d.readDir(ctx, tx, "mkdir", parentIno)
		if derr != nil {
			return derr
		}

		canon := name.Canonicalize(d.cfg.View)
		if _, ok := entries[canon]; ok {
			return exists("mkdir")
		}

		now := d.clock.Now()
		child := &inode.Inode{
			Ino:    ino,
			Kind:   inode.Directory,
			Parent: parentIno,
			Atime:  now,
			Ctime:  now,
			Mtime:  now,
			Owner:  owner,
			Mode:   mode,
			Size:   0,
			Nlink:  2,
		}
		parent.Size = uint64(entries.NonSelfCount() + 1)
		parent.Mtime = now
		parent.Atime = now

		ops := append(inode.Create(child),
			dir.AddEntry(parentIno, d.cfg.View, dir.NewEntry(canon, ino, inode.Directory)),
			dir.Create(d.cfg.View, parentIno, ino),
		)
		ops = append(ops, inode.UpdateStats(parent))

		if derr := d.update(ctx, tx, "mkdir", ops); derr != nil {
			return derr
		}

		result = attrOf(child)
		return nil
	})
	return result, err
}

// RmDir removes a directory entry, decrements its target's link count,
// and schedules reclamation, which removes the directory once only its
// own "." link remains (nlink <= 1).
func (d *Driver) RmDir(ctx context.Context, parentIno uint64, name view.NameRef) *Error {
	var deleted uint64
	err := d.transact(ctx, "rmdir", nil, []antidotec.Key{inode.Key(parentIno), dir.Key(d.cfg.View, parentIno)}, func(tx antidotec.Transaction) *Error {
		parent, derr := d.readInode(ctx, tx, "rmdir", parentIno)
		if derr != nil {
			return derr
		}
		entries, derr := d.readDir(ctx, tx, "rmdir", parentIno)
		if derr != nil {
			return derr
		}

		entry, ok := entries.Get(d.cfg.View, name)
		if !ok {
			return notFound("rmdir")
		}

		now := d.clock.Now()
		parent.Atime = now
		parent.Mtime = now
		parent.Size = uint64(entries.NonSelfCount() - 1)

		ops := []antidotec.Op{
			inode.DecrLinkCount(entry.Ino, 1),
			dir.RemoveEntry(parentIno, d.cfg.View, entry),
		}
		ops = append(ops, inode.UpdateStats(parent))

		if derr := d.update(ctx, tx, "rmdir", ops); derr != nil {
			return derr
		}

		deleted = entry.Ino
		return nil
	})
	if err == nil {
		d.scheduleDelete(deleted)
	}
	return err
}

// MkNod creates a regular-file entry and its backing inode.
func (d *Driver) MkNod(ctx context.Context, owner inode.Owner, mode uint32, parentIno uint64, name view.NameRef, _rdev uint32) (Attr, *Error) {
	ino := d.nextIno()

	var result Attr
	err := d.transact(ctx, "mknod", nil, []antidotec.Key{inode.Key(parentIno), dir.Key(d.cfg.View, parentIno)}, func(tx antidotec.Transaction) *Error {
		parent, derr := d.readInode(ctx, tx, "mknod", parentIno)
		if derr != nil {
			return derr
		}
		entries, derr := d.readDir(ctx, tx, "mknod", parentIno)
		if derr != nil {
			return derr
		}

		canon := name.Canonicalize(d.cfg.View)
		if _, ok := entries[canon]; ok {
			return exists("mknod")
		}

		now := d.clock.Now()
		child := &inode.Inode{
			Ino:    ino,
			Kind:   inode.Regular,
			Parent: parentIno,
			Atime:  now,
			Ctime:  now,
			Mtime:  now,
			Owner:  owner,
			Mode:   mode,
			Size:   0,
			Nlink:  1,
		}
		parent.Mtime = now
		parent.Atime = now
		parent.Size = uint64(entries.NonSelfCount() + 1)

		ops := append(inode.UpdateStats(parent),
			dir.AddEntry(parentIno, d.cfg.View, dir.NewEntry(canon, ino, inode.Regular)),
		)
		ops = append(ops, inode.Create(child)...)

		if derr := d.update(ctx, tx, "mknod", ops); derr != nil {
			return derr
		}

		result = attrOf(child)
		return nil
	})
	return result, err
}

// Unlink removes a directory entry, decrements its target's link count,
// and schedules reclamation if that drops it to zero.
func (d *Driver) Unlink(ctx context.Context, parentIno uint64, name view.NameRef) *Error {
	var deleted uint64
	err := d.transact(ctx, "unlink", nil, []antidotec.Key{inode.Key(parentIno), dir.Key(d.cfg.View, parentIno)}, func(tx antidotec.Transaction) *Error {
		parent, derr := d.readInode(ctx, tx, "unlink", parentIno)
		if derr != nil {
			return derr
		}
		entries, derr := d.readDir(ctx, tx, "unlink", parentIno)
		if derr != nil {
			return derr
		}

		entry, ok := entries.Get(d.cfg.View, name)
		if !ok {
			return notFound("unlink")
		}

		now := d.clock.Now()
		parent.Atime = now
		parent.Mtime = now
		parent.Size = uint64(entries.NonSelfCount() - 1)

		ops := []antidotec.Op{
			dir.RemoveEntry(parentIno, d.cfg.View, entry),
			inode.DecrLinkCount(entry.Ino, 1),
		}
		ops = append(ops, inode.UpdateStats(parent))

		if derr := d.update(ctx, tx, "unlink", ops); derr != nil {
			return derr
		}

		deleted = entry.Ino
		return nil
	})
	if err == nil {
		d.scheduleDelete(deleted)
	}
	return err
}

// Write stores data at offset via the page writer, growing the inode's
// size to cover the written range if needed, and refreshes atime/mtime.
func (d *Driver) Write(ctx context.Context, ino uint64, data []byte, offset uint64) *Error {
	return d.transact(ctx, "write", nil, []antidotec.Key{inode.Key(ino)}, func(tx antidotec.Transaction) *Error {
		if perr := d.pages.Write(ctx, tx, d.cfg.Bucket, ino, int(offset), data); perr != nil {
			return transport("write", perr)
		}

		i, derr := d.readInode(ctx, tx, "write", ino)
		if derr != nil {
			return derr
		}

		wroteUpTo := offset + uint64(len(data))
		if wroteUpTo > i.Size {
			i.Size = wroteUpTo
		}

		now := d.clock.Now()
		i.Atime = now
		i.Mtime = now

		return d.update(ctx, tx, "write", inode.UpdateStats(i))
	})
}

// Read returns up to length bytes starting at offset, truncated to the
// inode's recorded size. The implied atime refresh is intentionally not
// persisted here, matching a known quirk in the reference implementation
// this behavior was carried forward from.
func (d *Driver) Read(ctx context.Context, ino uint64, offset uint64, length uint32) ([]byte, *Error) {
	var result []byte
	err := d.transact(ctx, "read", []antidotec.Key{inode.Key(ino)}, nil, func(tx antidotec.Transaction) *Error {
		i, derr := d.readInode(ctx, tx, "read", ino)
		if derr != nil {
			return derr
		}

		end := i.Size
		if want := offset + uint64(length); want < end {
			end = want
		}
		var truncatedLen uint64
		if end > offset {
			truncatedLen = end - offset
		}

		bytes, perr := d.pages.Read(ctx, tx, d.cfg.Bucket, ino, int(offset), int(truncatedLen))
		if perr != nil {
			return transport("read", perr)
		}
		result = bytes
		return nil
	})
	return result, err
}

// Link adds a new directory entry pointing at an existing inode and
// increments its link count.
func (d *Driver) Link(ctx context.Context, ino, newParentIno uint64, newName view.NameRef) (Attr, *Error) {
	var result Attr
	err := d.transact(ctx, "link", nil, []antidotec.Key{inode.Key(ino), inode.Key(newParentIno), dir.Key(d.cfg.View, newParentIno)}, func(tx antidotec.Transaction) *Error {
		i, derr := d.readInode(ctx, tx, "link", ino)
		if derr != nil {
			return derr
		}
		parent, derr := d.readInode(ctx, tx, "link", newParentIno)
		if derr != nil {
			return derr
		}
		entries, derr := d.readDir(ctx, tx, "link", newParentIno)
		if derr != nil {
			return derr
		}

		canon := newName.Canonicalize(d.cfg.View)
		if _, ok := entries[canon]; ok {
			return exists("link")
		}

		now := d.clock.Now()
		parent.Mtime = now
		parent.Atime = now

		ops := append(inode.UpdateStats(parent),
			dir.AddEntry(newParentIno, d.cfg.View, dir.NewEntry(canon, ino, i.Kind)),
			inode.IncrLinkCount(ino, 1),
		)

		if derr := d.update(ctx, tx, "link", ops); derr != nil {
			return derr
		}

		// This is the local copy's nlink, not a re-read of the counter op that
		// was just applied, so it may not match post-commit reality under
		// concurrent links — a known quirk carried forward from the reference
		// implementation.
		i.Nlink++
		result = attrOf(i)
		return nil
	})
	return result, err
}

// Rename implements the four-case target-handling policy: an empty
// directory target is removed outright, a target whose link count was
// already 1 is removed along with its symlink register, any other
// existing target has its link count decremented (see DESIGN.md Open
// Question O1), and finally the source entry moves to its new name.
// Renaming an entry onto itself is a no-op.
func (d *Driver) Rename(ctx context.Context, parentIno uint64, name view.NameRef, newParentIno uint64, newName view.NameRef) *Error {
	keys := []antidotec.Key{inode.Key(parentIno), inode.Key(newParentIno)}
	return d.transact(ctx, "rename", nil, keys, func(tx antidotec.Transaction) *Error {
		parent, derr := d.readInode(ctx, tx, "rename", parentIno)
		if derr != nil {
			return derr
		}

		var newParent *inode.Inode
		if newParentIno == parentIno {
			newParent = parent
		} else {
			newParent, derr = d.readInode(ctx, tx, "rename", newParentIno)
			if derr != nil {
				return derr
			}
		}

		entries, derr := d.readDir(ctx, tx, "rename", parentIno)
		if derr != nil {
			return derr
		}
		srcEntry, ok := entries.Get(d.cfg.View, name)
		if !ok {
			return notFound("rename")
		}

		canonNew := newName.Canonicalize(d.cfg.View)
		if newParentIno == parentIno && srcEntry.Name == canonNew {
			return nil
		}

		var newEntries dir.Entries
		if newParentIno == parentIno {
			newEntries = entries
		} else {
			newEntries, derr = d.readDir(ctx, tx, "rename", newParentIno)
			if derr != nil {
				return derr
			}
		}

		var ops []antidotec.Op

		if targetEntry, hasTarget := newEntries[canonNew]; hasTarget {
			targetInode, derr := d.readInode(ctx, tx, "rename", targetEntry.Ino)
			if derr != nil {
				return derr
			}

			switch {
			case targetInode.Kind == inode.Directory && targetInode.Size == 0:
				ops = append(ops, inode.Remove(targetEntry.Ino), dir.Remove(d.cfg.View, targetEntry.Ino))
			case targetInode.Nlink == 1:
				ops = append(ops, inode.Remove(targetEntry.Ino), symlink.Remove(targetEntry.Ino))
			default:
				ops = append(ops, inode.DecrLinkCount(targetEntry.Ino, 1))
			}
			ops = append(ops, dir.RemoveEntry(newParentIno, d.cfg.View, targetEntry))
		}

		now := d.clock.Now()
		parent.Atime = now
		parent.Mtime = now
		newParent.Atime = now
		newParent.Mtime = now

		ops = append(ops, dir.RemoveEntry(parentIno, d.cfg.View, srcEntry))
		ops = append(ops, dir.AddEntry(newParentIno, d.cfg.View, dir.NewEntry(canonNew, srcEntry.Ino, srcEntry.Kind)))
		ops = append(ops, inode.UpdateStats(parent)...)
		if newParentIno != parentIno {
			ops = append(ops, inode.UpdateStats(newParent)...)
		}

		srcInode, derr := d.readInode(ctx, tx, "rename", srcEntry.Ino)
		if derr != nil {
			return derr
		}
		srcInode.Atime = now
		ops = append(ops, inode.UpdateStats(srcInode)...)

		return d.update(ctx, tx, "rename", ops)
	})
}

// ReadLink returns a symlink's stored target.
func (d *Driver) ReadLink(ctx context.Context, ino uint64) (string, *Error) {
	var result string
	err := d.transact(ctx, "readlink", []antidotec.Key{symlink.Key(ino)}, nil, func(tx antidotec.Transaction) *Error {
		replies, rerr := tx.Read(ctx, d.cfg.Bucket, []antidotec.Key{symlink.Read(ino)})
		if rerr != nil {
			return transport("readlink", rerr)
		}
		target, ok := symlink.Decode(replies, 0)
		if !ok {
			return notFound("readlink")
		}
		result = target
		return nil
	})
	return result, err
}

// Symlink creates a symlink entry, its backing inode, and its target
// register.
func (d *Driver) Symlink(ctx context.Context, parentIno uint64, owner inode.Owner, name view.NameRef, link string) (Attr, *Error) {
	ino := d.nextIno()

	var result Attr
	err := d.transact(ctx, "symlink", nil, []antidotec.Key{inode.Key(parentIno), dir.Key(d.cfg.View, parentIno)}, func(tx antidotec.Transaction) *Error {
		parent, derr := d.readInode(ctx, tx, "symlink", parentIno)
		if derr != nil {
			return derr
		}
		entries, derr := d.readDir(ctx, tx, "symlink", parentIno)
		if derr != nil {
			return derr
		}

		canon := name.Canonicalize(d.cfg.View)
		if _, ok := entries[canon]; ok {
			return exists("symlink")
		}

		now := d.clock.Now()
		child := &inode.Inode{
			Ino:    ino,
			Kind:   inode.Symlink,
			Parent: parentIno,
			Atime:  now,
			Ctime:  now,
			Mtime:  now,
			Owner:  owner,
			Mode:   0o644,
			Size:   uint64(len(link)),
			Nlink:  1,
		}
		parent.Size = uint64(entries.NonSelfCount() + 1)
		parent.Mtime = now
		parent.Atime = now

		ops := append(inode.Create(child), inode.UpdateStats(parent)...)
		ops = append(ops,
			dir.AddEntry(parentIno, d.cfg.View, dir.NewEntry(canon, ino, inode.Symlink)),
			symlink.Create(ino, link),
		)

		if derr := d.update(ctx, tx, "symlink", ops); derr != nil {
			return derr
		}

		result = attrOf(child)
		return nil
	})
	return result, err
}

func nsDuration(ns int64) time.Duration {
	return time.Duration(ns)
}

// checkpointEvery governs how often nextIno fires a detached checkpoint of
// the ino generator, bounding backend traffic from a heavy mkdir/mknod/
// symlink workload to one write every N allocations instead of one per call.
const checkpointEvery = 128

func (d *Driver) nextIno() uint64 {
	next := d.ino.Next()
	if next%checkpointEvery == 0 {
		d.fireCheckpoint()
	}
	return next
}

// fireCheckpoint detaches a best-effort checkpoint of the ino generator.
// Acquiring checkpoints non-blockingly means a saturated backend sheds
// checkpoint attempts rather than piling up goroutines (see DESIGN.md O3).
func (d *Driver) fireCheckpoint() {
	if !d.checkpoints.TryAcquire(1) {
		return
	}
	go func() {
		defer d.checkpoints.Release(1)
		ctx := context.Background()
		_ = d.transact(ctx, "checkpoint_ino", nil, []antidotec.Key{inoalloc.Key(d.cfg.View)}, func(tx antidotec.Transaction) *Error {
			if err := d.ino.Checkpoint(ctx, tx, d.cfg.Bucket); err != nil {
				return transport("checkpoint_ino", err)
			}
			return nil
		})
	}()
}

// scheduleDelete detaches a reclamation pass for ino after an unlink or
// rmdir commits: if nlink has dropped to zero (or to 1 for a directory),
// the inode and its directory or symlink entity are reset; file pages are
// not removed. Sharing the checkpoints semaphore means sustained delete traffic
// sheds detached reclaims rather than leaking goroutines (see DESIGN.md O3).
func (d *Driver) scheduleDelete(ino uint64) {
	if !d.checkpoints.TryAcquire(1) {
		return
	}
	go func() {
		defer d.checkpoints.Release(1)
		ctx := context.Background()
		_ = d.transact(ctx, "reclaim", nil, []antidotec.Key{inode.Key(ino)}, func(tx antidotec.Transaction) *Error {
			i, found, derr := d.tryReadInode(ctx, tx, ino)
			if derr != nil {
				return derr
			}
			if !found {
				return nil
			}
			// A directory's own "." self-entry holds one of its links, so an
			// otherwise-empty directory settles at nlink == 1, not 0.
			reclaimable := i.Nlink == 0 || (i.Kind == inode.Directory && i.Nlink <= 1)
			if !reclaimable {
				return nil
			}

			ops := []antidotec.Op{inode.Remove(ino)}
			switch i.Kind {
			case inode.Directory:
				ops = append(ops, dir.Remove(d.cfg.View, ino))
			case inode.Symlink:
				ops = append(ops, symlink.Remove(ino))
			}
			return d.update(ctx, tx, "reclaim", ops)
		})
	}()
}
