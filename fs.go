// Package ufs implements the core of a Unix-style block file system
// persisted in a fixed-size disk image: a superblock, an inode bitmap,
// a data bitmap, a fixed inode table, and a data region, all addressed
// in 4 KiB blocks.
//
// Multi-step mutations are made safe by running them against a txdisk
// transaction: every block write an operation performs is staged until
// the caller commits, so a failure mid-operation rolls back cleanly.
package ufs

import (
	"sync"

	"github.com/mit-pdos/go-journal/util"

	"github.com/gunrock-web/go-ds3/common"
	"github.com/gunrock-web/go-ds3/super"
	"github.com/gunrock-web/go-ds3/txdisk"
)

// FileSystem is the inode and directory layer over a single disk
// image. A single mutex serializes operations; there is no
// finer-grained locking.
type FileSystem struct {
	mu sync.Mutex
	d  *txdisk.Disk
	sb *super.FsSuper
}

// New opens the file system on an already-formatted image.
func New(d *txdisk.Disk) (*FileSystem, error) {
	sb, err := super.Load(d)
	if err != nil {
		return nil, err
	}
	return &FileSystem{d: d, sb: sb}, nil
}

func (fs *FileSystem) Disk() *txdisk.Disk {
	return fs.d
}

func (fs *FileSystem) Super() *super.FsSuper {
	return fs.sb
}

// Stat returns the inode record for inum. An inode number out of range
// or not marked in-use in the inode bitmap is ErrInvalidInode.
func (fs *FileSystem) Stat(inum common.Inum) (*Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.stat(inum)
}

func (fs *FileSystem) stat(inum common.Inum) (*Inode, error) {
	if inum >= fs.sb.NumInodes {
		return nil, ErrInvalidInode
	}
	bm, err := fs.readInodeBitmap()
	if err != nil {
		return nil, err
	}
	if !bm.has(inum) {
		return nil, ErrInvalidInode
	}
	return fs.readInode(inum)
}

// Lookup resolves name in the directory parent to an inode number.
func (fs *FileSystem) Lookup(parent common.Inum, name string) (common.Inum, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lookup(parent, name)
}

func (fs *FileSystem) lookup(parent common.Inum, name string) (common.Inum, error) {
	dip, err := fs.stat(parent)
	if err != nil {
		return 0, err
	}
	if dip.Kind != common.FileDir {
		return 0, ErrInvalidType
	}
	stream, err := fs.readData(dip, dip.Size)
	if err != nil {
		return 0, err
	}
	inum, _, ok := scanName(stream, name)
	if !ok {
		return 0, ErrNotFound
	}
	return inum, nil
}

// Read returns up to size bytes of inum's contents; the effective count
// is min(size, inode.size). It works for directories too, yielding the
// raw entry stream.
func (fs *FileSystem) Read(inum common.Inum, size uint64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if size > common.MAXFILESZ {
		return nil, ErrInvalidSize
	}
	ip, err := fs.stat(inum)
	if err != nil {
		return nil, err
	}
	n := size
	if n > ip.Size {
		n = ip.Size
	}
	return fs.readData(ip, n)
}

// ReadDir returns the live entries of a directory in stored order,
// including "." and "..".
func (fs *FileSystem) ReadDir(inum common.Inum) ([]DirEnt, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dip, err := fs.stat(inum)
	if err != nil {
		return nil, err
	}
	if dip.Kind != common.FileDir {
		return nil, ErrInvalidType
	}
	stream, err := fs.readData(dip, dip.Size)
	if err != nil {
		return nil, err
	}
	return liveEntries(stream), nil
}

// Write replaces the entire contents of a regular file with data. The
// old blocks are freed and fresh ones allocated; on ErrNoSpace nothing
// has been written and the image is unchanged.
func (fs *FileSystem) Write(inum common.Inum, data []byte) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	size := uint64(len(data))
	if size > common.MAXFILESZ {
		return 0, ErrInvalidSize
	}
	ip, err := fs.stat(inum)
	if err != nil {
		return 0, err
	}
	if ip.Kind != common.FileReg {
		return 0, ErrInvalidType
	}

	bm, err := fs.readDataBitmap()
	if err != nil {
		return 0, err
	}
	for i, bn := range ip.Direct {
		if bn != common.NULLBNUM {
			bm.free(fs.sb.DataIndex(bn))
			ip.Direct[i] = common.NULLBNUM
		}
	}

	nblks := (size + common.BLKSIZE - 1) / common.BLKSIZE
	blocks := make([]common.Bnum, 0, nblks)
	for i := uint64(0); i < nblks; i++ {
		idx, err := bm.alloc()
		if err != nil {
			// Bitmap mutations were never flushed; pre-call state holds.
			return 0, err
		}
		blocks = append(blocks, fs.sb.DataBlock(idx))
	}

	for i, bn := range blocks {
		blk := make([]byte, common.BLKSIZE)
		lo := uint64(i) * common.BLKSIZE
		hi := lo + common.BLKSIZE
		if hi > size {
			hi = size
		}
		copy(blk, data[lo:hi])
		if err := fs.d.WriteBlock(bn, blk); err != nil {
			return 0, err
		}
		ip.Direct[i] = bn
	}
	ip.Size = size

	if err := fs.writeInode(inum, ip); err != nil {
		return 0, err
	}
	if err := bm.flush(fs.d); err != nil {
		return 0, err
	}
	util.DPrintf(2, "Write # %d: %d bytes in %d blocks\n", inum, size, nblks)
	return size, nil
}

// Create makes a new file or directory under parent. If an entry named
// name already exists with the same type, its inode number is returned
// unchanged; with a different type the call fails with ErrInvalidType.
func (fs *FileSystem) Create(parent common.Inum, kind common.Ftype, name string) (common.Inum, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if len(name) == 0 || uint64(len(name)) > common.MAXNAMELEN {
		return 0, ErrInvalidName
	}
	if !kind.Valid() {
		return 0, ErrInvalidType
	}
	dip, err := fs.stat(parent)
	if err != nil {
		return 0, err
	}
	if dip.Kind != common.FileDir {
		return 0, ErrInvalidType
	}

	stream, err := fs.readData(dip, dip.Size)
	if err != nil {
		return 0, err
	}
	if existing, _, ok := scanName(stream, name); ok {
		eip, err := fs.stat(existing)
		if err != nil {
			return 0, err
		}
		if eip.Kind == kind {
			return existing, nil
		}
		return 0, ErrInvalidType
	}

	ibm, err := fs.readInodeBitmap()
	if err != nil {
		return 0, err
	}
	inum, err := ibm.alloc()
	if err != nil {
		return 0, err
	}

	ip := &Inode{Kind: kind}
	var dbm *bitmap
	if kind == common.FileDir {
		dbm, err = fs.readDataBitmap()
		if err != nil {
			return 0, err
		}
		idx, err := dbm.alloc()
		if err != nil {
			return 0, err
		}
		bn := fs.sb.DataBlock(idx)
		blk := make([]byte, common.BLKSIZE)
		copy(blk, encodeDirEnt(int32(inum), "."))
		copy(blk[common.DIRENTSZ:], encodeDirEnt(int32(parent), ".."))
		if err := fs.d.WriteBlock(bn, blk); err != nil {
			return 0, err
		}
		ip.Direct[0] = bn
		ip.Size = 2 * common.DIRENTSZ
	}

	// Insert the entry into the parent: reuse a tombstone slot if one
	// exists, otherwise append at the end of the stream.
	ent := encodeDirEnt(int32(inum), name)
	if slot, ok := scanTombstone(stream); ok {
		copy(stream[slot:], ent)
	} else {
		if dip.Size%common.BLKSIZE == 0 {
			// Appending crosses a block boundary.
			if dip.Size/common.BLKSIZE >= common.NDIRECT {
				return 0, ErrNoSpace
			}
			if dbm == nil {
				dbm, err = fs.readDataBitmap()
				if err != nil {
					return 0, err
				}
			}
			idx, err := dbm.alloc()
			if err != nil {
				return 0, err
			}
			dip.Direct[dip.Size/common.BLKSIZE] = fs.sb.DataBlock(idx)
		}
		stream = append(stream, ent...)
		dip.Size += common.DIRENTSZ
	}

	if err := fs.writeDirStream(dip, stream); err != nil {
		return 0, err
	}
	if err := fs.writeInode(inum, ip); err != nil {
		return 0, err
	}
	if err := fs.writeInode(parent, dip); err != nil {
		return 0, err
	}
	if err := ibm.flush(fs.d); err != nil {
		return 0, err
	}
	if dbm != nil {
		if err := dbm.flush(fs.d); err != nil {
			return 0, err
		}
	}
	util.DPrintf(2, "Create # %d: %q type %d -> %d\n", parent, name, kind, inum)
	return inum, nil
}

// Unlink removes name from parent, freeing the target's blocks and
// inode. Removing a name that does not exist succeeds as a no-op. A
// directory target must contain nothing but "." and "..".
func (fs *FileSystem) Unlink(parent common.Inum, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if name == "." || name == ".." {
		return ErrNotAllowed
	}
	if len(name) == 0 || uint64(len(name)) > common.MAXNAMELEN {
		return ErrInvalidName
	}
	dip, err := fs.stat(parent)
	if err != nil {
		return err
	}
	if dip.Kind != common.FileDir {
		return ErrInvalidType
	}

	stream, err := fs.readData(dip, dip.Size)
	if err != nil {
		return err
	}
	target, off, ok := scanName(stream, name)
	if !ok {
		return nil
	}
	tip, err := fs.stat(target)
	if err != nil {
		return err
	}
	if tip.Kind == common.FileDir {
		tstream, err := fs.readData(tip, tip.Size)
		if err != nil {
			return err
		}
		if !isDirEmpty(tstream) {
			return ErrDirNotEmpty
		}
	}

	ibm, err := fs.readInodeBitmap()
	if err != nil {
		return err
	}
	dbm, err := fs.readDataBitmap()
	if err != nil {
		return err
	}
	for _, bn := range tip.Direct {
		if bn != common.NULLBNUM {
			dbm.free(fs.sb.DataIndex(bn))
		}
	}
	ibm.free(target)

	// Compact the parent's entry stream across all of its blocks.
	oldBlks := dip.NBlocks()
	stream = append(stream[:off], stream[off+common.DIRENTSZ:]...)
	dip.Size -= common.DIRENTSZ
	newBlks := dip.NBlocks()
	for i := newBlks; i < oldBlks; i++ {
		if dip.Direct[i] != common.NULLBNUM {
			dbm.free(fs.sb.DataIndex(dip.Direct[i]))
			dip.Direct[i] = common.NULLBNUM
		}
	}

	if err := fs.writeDirStream(dip, stream); err != nil {
		return err
	}
	if err := fs.writeInode(parent, dip); err != nil {
		return err
	}
	if err := ibm.flush(fs.d); err != nil {
		return err
	}
	if err := dbm.flush(fs.d); err != nil {
		return err
	}
	util.DPrintf(2, "Unlink # %d: %q (was %d)\n", parent, name, target)
	return nil
}
