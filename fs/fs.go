// Package fs adapts the dispatch loop to the kernel interface: one method
// per fuseops.XxxOp, each extracting request fields, submitting a closure
// to the dispatch loop, and filling in the op's response fields from the
// driver's result.
package fs

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/AntidoteDB/elmerfs/internal/dispatch"
	"github.com/AntidoteDB/elmerfs/internal/driver"
	"github.com/AntidoteDB/elmerfs/internal/model/inode"
	"github.com/AntidoteDB/elmerfs/internal/view"
)

// fileSystem implements fuseutil.FileSystem by submitting one task per op
// to a dispatch.Loop. It keeps no inode or directory state of its own: the
// driver is the single source of truth, reached fresh on every call.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	loop *dispatch.Loop

	// nextHandle mints directory/file handle IDs. The driver's own Open*
	// methods are stateless, so a handle carries no meaning beyond letting
	// the kernel correlate Open with Read/Write/Release; a bare counter is
	// enough.
	nextHandle atomic.Uint64
}

// New wraps loop in a fuseutil.FileSystem ready to be passed to
// fuseutil.NewFileSystemServer.
func New(loop *dispatch.Loop) fuseutil.FileSystem {
	return &fileSystem{loop: loop}
}

func (fs *fileSystem) driver() *driver.Driver { return fs.loop.Driver() }

func toAttr(a driver.Attr) fuseops.InodeAttributes {
	mode := os.FileMode(a.Mode & 0o7777)
	switch a.Kind {
	case inode.Directory:
		mode |= os.ModeDir
	case inode.Symlink:
		mode |= os.ModeSymlink
	}
	return fuseops.InodeAttributes{
		Size:   a.Size,
		Nlink:  a.Nlink,
		Mode:   mode,
		Atime:  time.Unix(0, int64(a.Atime)),
		Mtime:  time.Unix(0, int64(a.Mtime)),
		Ctime:  time.Unix(0, int64(a.Ctime)),
		Crtime: time.Unix(0, int64(a.Ctime)),
		Uid:    a.Owner.Uid,
		Gid:    a.Owner.Gid,
	}
}

// entryExpiration governs how long the kernel may cache an entry or its
// attributes before asking again. The backend is the only writer, so a
// generous window is safe; the kernel still re-validates on any local
// invalidation.
const entryExpiration = 1 * time.Hour

func toEntry(a driver.Attr) fuseops.ChildInodeEntry {
	expiry := time.Now().Add(entryExpiration)
	return fuseops.ChildInodeEntry{
		Child:                fuseops.InodeID(a.Ino),
		Attributes:           toAttr(a),
		AttributesExpiration: expiry,
		EntryExpiration:      expiry,
	}
}

func (fs *fileSystem) Init(op *fuseops.InitOp) (err error) {
	return nil
}

func (fs *fileSystem) LookUpInode(op *fuseops.LookUpInodeOp) (err error) {
	var attr driver.Attr
	err = fs.loop.Submit(op.Context(), "lookup", func(ctx context.Context) *driver.Error {
		a, derr := fs.driver().Lookup(ctx, uint64(op.Parent), view.NameRef(op.Name))
		if derr != nil {
			return derr
		}
		attr = a
		return nil
	})
	if err != nil {
		return err
	}
	op.Entry = toEntry(attr)
	return nil
}

func (fs *fileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) (err error) {
	var attr driver.Attr
	err = fs.loop.Submit(op.Context(), "getattr", func(ctx context.Context) *driver.Error {
		a, derr := fs.driver().GetAttr(ctx, uint64(op.Inode))
		if derr != nil {
			return derr
		}
		attr = a
		return nil
	})
	if err != nil {
		return err
	}
	op.Attributes = toAttr(attr)
	op.AttributesExpiration = time.Now().Add(entryExpiration)
	return nil
}

func (fs *fileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) (err error) {
	req := driver.SetAttrRequest{
		Mode: modeBits(op.Mode),
		Size: op.Size,
	}
	if op.Atime != nil {
		ns := op.Atime.UnixNano()
		req.Atime = &ns
	}
	if op.Mtime != nil {
		ns := op.Mtime.UnixNano()
		req.Mtime = &ns
	}

	var attr driver.Attr
	err = fs.loop.Submit(op.Context(), "setattr", func(ctx context.Context) *driver.Error {
		a, derr := fs.driver().SetAttr(ctx, uint64(op.Inode), req)
		if derr != nil {
			return derr
		}
		attr = a
		return nil
	})
	if err != nil {
		return err
	}
	op.Attributes = toAttr(attr)
	op.AttributesExpiration = time.Now().Add(entryExpiration)
	return nil
}

func modeBits(m *os.FileMode) *uint32 {
	if m == nil {
		return nil
	}
	bits := uint32(m.Perm())
	return &bits
}

func (fs *fileSystem) ForgetInode(op *fuseops.ForgetInodeOp) (err error) {
	return nil
}

func (fs *fileSystem) MkDir(op *fuseops.MkDirOp) (err error) {
	owner := callerOwner(op.OpContext)
	var attr driver.Attr
	err = fs.loop.Submit(op.Context(), "mkdir", func(ctx context.Context) *driver.Error {
		a, derr := fs.driver().MkDir(ctx, owner, uint32(op.Mode.Perm()), uint64(op.Parent), view.NameRef(op.Name))
		if derr != nil {
			return derr
		}
		attr = a
		return nil
	})
	if err != nil {
		return err
	}
	op.Entry = toEntry(attr)
	return nil
}

func (fs *fileSystem) CreateFile(op *fuseops.CreateFileOp) (err error) {
	owner := callerOwner(op.OpContext)
	var attr driver.Attr
	err = fs.loop.Submit(op.Context(), "mknod", func(ctx context.Context) *driver.Error {
		a, derr := fs.driver().MkNod(ctx, owner, uint32(op.Mode.Perm()), uint64(op.Parent), view.NameRef(op.Name), 0)
		if derr != nil {
			return derr
		}
		attr = a
		return nil
	})
	if err != nil {
		return err
	}
	op.Entry = toEntry(attr)
	return nil
}

func (fs *fileSystem) CreateSymlink(op *fuseops.CreateSymlinkOp) (err error) {
	owner := callerOwner(op.OpContext)
	var attr driver.Attr
	err = fs.loop.Submit(op.Context(), "symlink", func(ctx context.Context) *driver.Error {
		a, derr := fs.driver().Symlink(ctx, uint64(op.Parent), owner, view.NameRef(op.Name), op.Target)
		if derr != nil {
			return derr
		}
		attr = a
		return nil
	})
	if err != nil {
		return err
	}
	op.Entry = toEntry(attr)
	return nil
}

func (fs *fileSystem) CreateLink(op *fuseops.CreateLinkOp) (err error) {
	var attr driver.Attr
	err = fs.loop.Submit(op.Context(), "link", func(ctx context.Context) *driver.Error {
		a, derr := fs.driver().Link(ctx, uint64(op.Target), uint64(op.Parent), view.NameRef(op.Name))
		if derr != nil {
			return derr
		}
		attr = a
		return nil
	})
	if err != nil {
		return err
	}
	op.Entry = toEntry(attr)
	return nil
}

func (fs *fileSystem) Rename(op *fuseops.RenameOp) (err error) {
	return fs.loop.Submit(op.Context(), "rename", func(ctx context.Context) *driver.Error {
		return fs.driver().Rename(ctx, uint64(op.OldParent), view.NameRef(op.OldName), uint64(op.NewParent), view.NameRef(op.NewName))
	})
}

func (fs *fileSystem) RmDir(op *fuseops.RmDirOp) (err error) {
	return fs.loop.Submit(op.Context(), "rmdir", func(ctx context.Context) *driver.Error {
		return fs.driver().RmDir(ctx, uint64(op.Parent), view.NameRef(op.Name))
	})
}

func (fs *fileSystem) Unlink(op *fuseops.UnlinkOp) (err error) {
	return fs.loop.Submit(op.Context(), "unlink", func(ctx context.Context) *driver.Error {
		return fs.driver().Unlink(ctx, uint64(op.Parent), view.NameRef(op.Name))
	})
}

func (fs *fileSystem) OpenDir(op *fuseops.OpenDirOp) (err error) {
	err = fs.loop.Submit(op.Context(), "opendir", func(ctx context.Context) *driver.Error {
		return fs.driver().OpenDir(ctx, uint64(op.Inode))
	})
	if err != nil {
		return err
	}
	op.Handle = fuseops.HandleID(fs.nextHandle.Add(1))
	return nil
}

func (fs *fileSystem) ReadDir(op *fuseops.ReadDirOp) (err error) {
	var entries []driver.DirEntry
	err = fs.loop.Submit(op.Context(), "readdir", func(ctx context.Context) *driver.Error {
		e, derr := fs.driver().ReadDir(ctx, uint64(op.Inode), int(op.Offset))
		if derr != nil {
			return derr
		}
		entries = e
		return nil
	})
	if err != nil {
		return err
	}

	for i, e := range entries {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  fuseops.InodeID(e.Ino),
			Name:   e.Name,
			Type:   direntType(e.Kind),
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func direntType(k inode.Kind) fuseutil.DirentType {
	switch k {
	case inode.Directory:
		return fuseutil.DT_Directory
	case inode.Symlink:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

func (fs *fileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) (err error) {
	return nil
}

func (fs *fileSystem) OpenFile(op *fuseops.OpenFileOp) (err error) {
	err = fs.loop.Submit(op.Context(), "open", func(ctx context.Context) *driver.Error {
		return fs.driver().Open(ctx, uint64(op.Inode))
	})
	if err != nil {
		return err
	}
	op.Handle = fuseops.HandleID(fs.nextHandle.Add(1))
	op.KeepPageCache = false
	return nil
}

func (fs *fileSystem) ReadFile(op *fuseops.ReadFileOp) (err error) {
	if op.Offset < 0 {
		return syscall.EINVAL
	}
	return fs.loop.Submit(op.Context(), "read", func(ctx context.Context) *driver.Error {
		data, derr := fs.driver().Read(ctx, uint64(op.Inode), uint64(op.Offset), uint32(op.Size))
		if derr != nil {
			return derr
		}
		op.Data = data
		return nil
	})
}

func (fs *fileSystem) ReadSymlink(op *fuseops.ReadSymlinkOp) (err error) {
	var target string
	err = fs.loop.Submit(op.Context(), "readlink", func(ctx context.Context) *driver.Error {
		t, derr := fs.driver().ReadLink(ctx, uint64(op.Inode))
		if derr != nil {
			return derr
		}
		target = t
		return nil
	})
	if err != nil {
		return err
	}
	op.Target = target
	return nil
}

func (fs *fileSystem) WriteFile(op *fuseops.WriteFileOp) (err error) {
	if op.Offset < 0 {
		return syscall.EINVAL
	}
	return fs.loop.Submit(op.Context(), "write", func(ctx context.Context) *driver.Error {
		return fs.driver().Write(ctx, uint64(op.Inode), op.Data, uint64(op.Offset))
	})
}

// SyncFile and FlushFile are no-ops: every Write already commits its
// transaction before returning, so there is nothing left to flush.
func (fs *fileSystem) SyncFile(op *fuseops.SyncFileOp) (err error) {
	return nil
}

func (fs *fileSystem) FlushFile(op *fuseops.FlushFileOp) (err error) {
	return nil
}

func (fs *fileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) (err error) {
	return nil
}

// callerOwner extracts the uid/gid FUSE attaches to the request, the owner
// every newly-created inode is stamped with.
func callerOwner(opCtx fuseops.OpContext) inode.Owner {
	return inode.Owner{Uid: opCtx.Uid, Gid: opCtx.Gid}
}
