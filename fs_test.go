package ufs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/gunrock-web/go-ds3/common"
	"github.com/gunrock-web/go-ds3/super"
	"github.com/gunrock-web/go-ds3/txdisk"
)

func newFsGeom(t *testing.T, numInodes uint64, numData uint64) *FileSystem {
	d := txdisk.New(disk.NewMemDisk(super.MkFsSuper(numInodes, numData).NumBlocks()))
	_, err := Format(d, numInodes, numData)
	require.NoError(t, err)
	fs, err := New(d)
	require.NoError(t, err)
	return fs
}

func newFs(t *testing.T) *FileSystem {
	return newFsGeom(t, 32, 32)
}

func mkdata(sz uint64) []byte {
	data := make([]byte, sz)
	for i := range data {
		data[i] = byte(i % 128)
	}
	return data
}

// checkConsistency asserts that a bitmap bit is set iff the
// corresponding inode or block is referenced by exactly one live
// structure reachable from the root.
func checkConsistency(t *testing.T, fs *FileSystem) {
	ibm, err := fs.readInodeBitmap()
	require.NoError(t, err)
	dbm, err := fs.readDataBitmap()
	require.NoError(t, err)

	inodes := make(map[common.Inum]int)
	blocks := make(map[common.Bnum]int)

	var walk func(inum common.Inum)
	walk = func(inum common.Inum) {
		inodes[inum]++
		ip, err := fs.Stat(inum)
		require.NoError(t, err)
		for i := uint64(0); i < ip.NBlocks(); i++ {
			require.True(t, fs.sb.InDataRegion(ip.Direct[i]))
			blocks[ip.Direct[i]]++
		}
		if ip.Kind != common.FileDir {
			return
		}
		ents, err := fs.ReadDir(inum)
		require.NoError(t, err)
		for _, e := range ents {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			walk(e.Inum)
		}
	}
	walk(common.ROOTINUM)

	for i := uint64(0); i < fs.sb.NumInodes; i++ {
		require.Equal(t, ibm.has(i), inodes[i] > 0, "inode bitmap bit %d", i)
		require.LessOrEqual(t, inodes[i], 1, "inode %d referenced more than once", i)
	}
	for i := uint64(0); i < fs.sb.NumData; i++ {
		bn := fs.sb.DataBlock(i)
		require.Equal(t, dbm.has(i), blocks[bn] > 0, "data bitmap bit %d", i)
		require.LessOrEqual(t, blocks[bn], 1, "block %d referenced more than once", bn)
	}
}

func TestFormatRoot(t *testing.T) {
	fs := newFs(t)
	ip, err := fs.Stat(common.ROOTINUM)
	require.NoError(t, err)
	require.Equal(t, common.FileDir, ip.Kind)
	require.Equal(t, 2*common.DIRENTSZ, ip.Size)

	ents, err := fs.ReadDir(common.ROOTINUM)
	require.NoError(t, err)
	require.Equal(t, []DirEnt{
		{Inum: common.ROOTINUM, Name: "."},
		{Inum: common.ROOTINUM, Name: ".."},
	}, ents)
	checkConsistency(t, fs)
}

func TestStatInvalid(t *testing.T) {
	fs := newFs(t)
	_, err := fs.Stat(32)
	require.ErrorIs(t, err, ErrInvalidInode)
	_, err = fs.Stat(5) // never allocated
	require.ErrorIs(t, err, ErrInvalidInode)
}

func TestCreateLookup(t *testing.T) {
	fs := newFs(t)
	inum, err := fs.Create(common.ROOTINUM, common.FileReg, "a.txt")
	require.NoError(t, err)

	got, err := fs.Lookup(common.ROOTINUM, "a.txt")
	require.NoError(t, err)
	require.Equal(t, inum, got)

	_, err = fs.Lookup(common.ROOTINUM, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	ip, err := fs.Stat(inum)
	require.NoError(t, err)
	require.Equal(t, common.FileReg, ip.Kind)
	require.Equal(t, uint64(0), ip.Size)
	checkConsistency(t, fs)
}

func TestCreateIdempotent(t *testing.T) {
	fs := newFs(t)
	inum, err := fs.Create(common.ROOTINUM, common.FileReg, "x")
	require.NoError(t, err)

	again, err := fs.Create(common.ROOTINUM, common.FileReg, "x")
	require.NoError(t, err)
	require.Equal(t, inum, again)

	_, err = fs.Create(common.ROOTINUM, common.FileDir, "x")
	require.ErrorIs(t, err, ErrInvalidType)
	checkConsistency(t, fs)
}

func TestCreateDir(t *testing.T) {
	fs := newFs(t)
	inum, err := fs.Create(common.ROOTINUM, common.FileDir, "sub")
	require.NoError(t, err)

	ip, err := fs.Stat(inum)
	require.NoError(t, err)
	require.Equal(t, common.FileDir, ip.Kind)
	require.Equal(t, 2*common.DIRENTSZ, ip.Size)

	ents, err := fs.ReadDir(inum)
	require.NoError(t, err)
	require.Equal(t, []DirEnt{
		{Inum: inum, Name: "."},
		{Inum: common.ROOTINUM, Name: ".."},
	}, ents)
	checkConsistency(t, fs)
}

func TestCreateNameLimits(t *testing.T) {
	fs := newFs(t)
	long := make([]byte, common.MAXNAMELEN)
	for i := range long {
		long[i] = 'n'
	}
	_, err := fs.Create(common.ROOTINUM, common.FileReg, string(long))
	require.NoError(t, err)

	_, err = fs.Create(common.ROOTINUM, common.FileReg, string(long)+"n")
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = fs.Create(common.ROOTINUM, common.FileReg, "")
	require.ErrorIs(t, err, ErrInvalidName)

	// The full-width name must round-trip through the entry codec.
	inum, err := fs.Lookup(common.ROOTINUM, string(long))
	require.NoError(t, err)
	require.NotEqual(t, common.ROOTINUM, inum)
}

func TestCreateParentChecks(t *testing.T) {
	fs := newFs(t)
	finum, err := fs.Create(common.ROOTINUM, common.FileReg, "f")
	require.NoError(t, err)

	_, err = fs.Create(finum, common.FileReg, "child")
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = fs.Create(99, common.FileReg, "child")
	require.ErrorIs(t, err, ErrInvalidInode)

	_, err = fs.Create(common.ROOTINUM, common.Ftype(9), "child")
	require.ErrorIs(t, err, ErrInvalidType)
}

func TestCreateExhaustsInodes(t *testing.T) {
	fs := newFs(t)
	// The root holds inode 0; 31 more fit.
	for i := 0; i < 31; i++ {
		_, err := fs.Create(common.ROOTINUM, common.FileReg, fmt.Sprintf("f%d", i))
		require.NoError(t, err)
	}
	_, err := fs.Create(common.ROOTINUM, common.FileReg, "straw")
	require.ErrorIs(t, err, ErrNoSpace)
	checkConsistency(t, fs)
}

func TestWriteReadBoundaries(t *testing.T) {
	fs := newFs(t)
	inum, err := fs.Create(common.ROOTINUM, common.FileReg, "f")
	require.NoError(t, err)

	sizes := []uint64{0, 1, common.BLKSIZE - 1, common.BLKSIZE,
		common.BLKSIZE + 1, common.MAXFILESZ}
	for _, sz := range sizes {
		data := mkdata(sz)
		n, err := fs.Write(inum, data)
		require.NoError(t, err, "write of %d bytes", sz)
		require.Equal(t, sz, n)

		ip, err := fs.Stat(inum)
		require.NoError(t, err)
		require.Equal(t, sz, ip.Size)
		require.Equal(t, (sz+common.BLKSIZE-1)/common.BLKSIZE, ip.NBlocks())

		got, err := fs.Read(inum, sz)
		require.NoError(t, err)
		require.Equal(t, data, got)
		checkConsistency(t, fs)
	}

	_, err = fs.Write(inum, mkdata(common.MAXFILESZ+1))
	require.ErrorIs(t, err, ErrInvalidSize)
	_, err = fs.Read(inum, common.MAXFILESZ+1)
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestReadShortAndLong(t *testing.T) {
	fs := newFs(t)
	inum, err := fs.Create(common.ROOTINUM, common.FileReg, "f")
	require.NoError(t, err)
	data := mkdata(1000)
	_, err = fs.Write(inum, data)
	require.NoError(t, err)

	got, err := fs.Read(inum, 10)
	require.NoError(t, err)
	require.Equal(t, data[:10], got)

	// Reading past the end caps at the file size.
	got, err = fs.Read(inum, common.MAXFILESZ)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWriteDirRejected(t *testing.T) {
	fs := newFs(t)
	dinum, err := fs.Create(common.ROOTINUM, common.FileDir, "d")
	require.NoError(t, err)
	_, err = fs.Write(dinum, mkdata(10))
	require.ErrorIs(t, err, ErrInvalidType)
}

func TestWriteNoSpaceRollsBack(t *testing.T) {
	fs := newFs(t)
	big, err := fs.Create(common.ROOTINUM, common.FileReg, "big")
	require.NoError(t, err)
	_, err = fs.Write(big, mkdata(common.MAXFILESZ))
	require.NoError(t, err)

	// One data block left; a two-block write must fail without
	// touching the image.
	small, err := fs.Create(common.ROOTINUM, common.FileReg, "small")
	require.NoError(t, err)
	_, err = fs.Write(small, mkdata(2*common.BLKSIZE))
	require.ErrorIs(t, err, ErrNoSpace)

	ip, err := fs.Stat(small)
	require.NoError(t, err)
	require.Equal(t, uint64(0), ip.Size)

	got, err := fs.Read(big, common.MAXFILESZ)
	require.NoError(t, err)
	require.Equal(t, mkdata(common.MAXFILESZ), got)
	checkConsistency(t, fs)
}

func TestOverwriteKeepsInode(t *testing.T) {
	fs := newFs(t)
	inum, err := fs.Create(common.ROOTINUM, common.FileReg, "f")
	require.NoError(t, err)
	_, err = fs.Write(inum, []byte("hello"))
	require.NoError(t, err)
	_, err = fs.Write(inum, []byte("HELLO WORLD"))
	require.NoError(t, err)

	got, err := fs.Lookup(common.ROOTINUM, "f")
	require.NoError(t, err)
	require.Equal(t, inum, got)

	data, err := fs.Read(inum, common.MAXFILESZ)
	require.NoError(t, err)
	require.Equal(t, []byte("HELLO WORLD"), data)
}

func TestUnlink(t *testing.T) {
	fs := newFs(t)
	inum, err := fs.Create(common.ROOTINUM, common.FileReg, "f")
	require.NoError(t, err)
	_, err = fs.Write(inum, mkdata(5000))
	require.NoError(t, err)

	require.NoError(t, fs.Unlink(common.ROOTINUM, "f"))
	_, err = fs.Lookup(common.ROOTINUM, "f")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = fs.Stat(inum)
	require.ErrorIs(t, err, ErrInvalidInode)

	// Idempotent: removing an absent name succeeds.
	require.NoError(t, fs.Unlink(common.ROOTINUM, "f"))
	checkConsistency(t, fs)
}

func TestUnlinkBadNames(t *testing.T) {
	fs := newFs(t)
	require.ErrorIs(t, fs.Unlink(common.ROOTINUM, "."), ErrNotAllowed)
	require.ErrorIs(t, fs.Unlink(common.ROOTINUM, ".."), ErrNotAllowed)
	long := make([]byte, common.MAXNAMELEN+1)
	for i := range long {
		long[i] = 'n'
	}
	require.ErrorIs(t, fs.Unlink(common.ROOTINUM, string(long)), ErrInvalidName)
}

func TestUnlinkDirNotEmpty(t *testing.T) {
	fs := newFs(t)
	dinum, err := fs.Create(common.ROOTINUM, common.FileDir, "d")
	require.NoError(t, err)
	_, err = fs.Create(dinum, common.FileReg, "f")
	require.NoError(t, err)

	require.ErrorIs(t, fs.Unlink(common.ROOTINUM, "d"), ErrDirNotEmpty)

	require.NoError(t, fs.Unlink(dinum, "f"))
	require.NoError(t, fs.Unlink(common.ROOTINUM, "d"))
	_, err = fs.Lookup(common.ROOTINUM, "d")
	require.ErrorIs(t, err, ErrNotFound)
	checkConsistency(t, fs)
}

func TestUnlinkCompacts(t *testing.T) {
	fs := newFs(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := fs.Create(common.ROOTINUM, common.FileReg, name)
		require.NoError(t, err)
	}
	require.NoError(t, fs.Unlink(common.ROOTINUM, "b"))

	ents, err := fs.ReadDir(common.ROOTINUM)
	require.NoError(t, err)
	names := make([]string, len(ents))
	for i, e := range ents {
		names[i] = e.Name
	}
	require.Equal(t, []string{".", "..", "a", "c"}, names)

	ip, err := fs.Stat(common.ROOTINUM)
	require.NoError(t, err)
	require.Equal(t, 4*common.DIRENTSZ, ip.Size)
	checkConsistency(t, fs)
}

func TestRollbackLeavesImageUnchanged(t *testing.T) {
	fs := newFs(t)
	_, err := fs.Create(common.ROOTINUM, common.FileReg, "keep")
	require.NoError(t, err)

	d := fs.Disk()
	before := make([][]byte, d.Size())
	for bn := uint64(0); bn < d.Size(); bn++ {
		blk, err := d.ReadBlock(bn)
		require.NoError(t, err)
		before[bn] = blk
	}

	txn := txdisk.Begin(d)
	inum, err := fs.Create(common.ROOTINUM, common.FileDir, "tmp")
	require.NoError(t, err)
	finum, err := fs.Create(inum, common.FileReg, "f")
	require.NoError(t, err)
	_, err = fs.Write(finum, mkdata(6000))
	require.NoError(t, err)
	txn.Release()

	for bn := uint64(0); bn < d.Size(); bn++ {
		blk, err := d.ReadBlock(bn)
		require.NoError(t, err)
		require.Equal(t, before[bn], blk, "block %d differs after rollback", bn)
	}
	checkConsistency(t, fs)
}

func TestOpSequenceConsistency(t *testing.T) {
	fs := newFsGeom(t, 64, 64)
	dinum, err := fs.Create(common.ROOTINUM, common.FileDir, "dir")
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		inum, err := fs.Create(dinum, common.FileReg, fmt.Sprintf("f%d", i))
		require.NoError(t, err)
		_, err = fs.Write(inum, mkdata(uint64(i)*1500))
		require.NoError(t, err)
		checkConsistency(t, fs)
	}
	for i := 0; i < 8; i += 2 {
		require.NoError(t, fs.Unlink(dinum, fmt.Sprintf("f%d", i)))
		checkConsistency(t, fs)
	}
	sub, err := fs.Create(dinum, common.FileDir, "sub")
	require.NoError(t, err)
	_, err = fs.Create(sub, common.FileReg, "leaf")
	require.NoError(t, err)
	checkConsistency(t, fs)

	// Every directory keeps "." and ".." as its first two entries.
	for _, dir := range []common.Inum{common.ROOTINUM, dinum, sub} {
		ents, err := fs.ReadDir(dir)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(ents), 2)
		require.Equal(t, ".", ents[0].Name)
		require.Equal(t, dir, ents[0].Inum)
		require.Equal(t, "..", ents[1].Name)
	}
}
