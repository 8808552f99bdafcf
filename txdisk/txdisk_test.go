package txdisk

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"
)

const nblocks uint64 = 10

func mkBlock(b byte) disk.Block {
	blk := make([]byte, disk.BlockSize)
	for i := range blk {
		blk[i] = b
	}
	return blk
}

func TestReadWrite(t *testing.T) {
	d := New(disk.NewMemDisk(nblocks))
	require.Equal(t, nblocks, d.Size())

	require.NoError(t, d.WriteBlock(3, mkBlock(7)))
	blk, err := d.ReadBlock(3)
	require.NoError(t, err)
	require.Equal(t, mkBlock(7), blk)

	blk, err = d.ReadBlock(4)
	require.NoError(t, err)
	require.Equal(t, mkBlock(0), blk)
}

func TestOutOfRange(t *testing.T) {
	d := New(disk.NewMemDisk(nblocks))
	_, err := d.ReadBlock(nblocks)
	require.ErrorIs(t, err, ErrOutOfRange)
	require.ErrorIs(t, d.WriteBlock(nblocks, mkBlock(1)), ErrOutOfRange)

	d.BeginTransaction()
	require.ErrorIs(t, d.WriteBlock(nblocks+5, mkBlock(1)), ErrOutOfRange)
	d.Rollback()
}

func TestReadYourWrites(t *testing.T) {
	md := disk.NewMemDisk(nblocks)
	d := New(md)
	require.NoError(t, d.WriteBlock(2, mkBlock(1)))

	d.BeginTransaction()
	require.NoError(t, d.WriteBlock(2, mkBlock(2)))
	blk, err := d.ReadBlock(2)
	require.NoError(t, err)
	require.Equal(t, mkBlock(2), blk)

	// The backing device is untouched while the write is staged.
	require.Equal(t, disk.Block(mkBlock(1)), md.Read(2))

	d.Rollback()
	blk, err = d.ReadBlock(2)
	require.NoError(t, err)
	require.Equal(t, mkBlock(1), blk)
}

func TestCommit(t *testing.T) {
	md := disk.NewMemDisk(nblocks)
	d := New(md)

	d.BeginTransaction()
	require.NoError(t, d.WriteBlock(1, mkBlock(1)))
	require.NoError(t, d.WriteBlock(2, mkBlock(2)))
	d.Commit()

	require.Equal(t, disk.Block(mkBlock(1)), md.Read(1))
	require.Equal(t, disk.Block(mkBlock(2)), md.Read(2))
}

func TestRollbackByteIdentical(t *testing.T) {
	d := New(disk.NewMemDisk(nblocks))
	for bn := uint64(0); bn < nblocks; bn++ {
		require.NoError(t, d.WriteBlock(bn, mkBlock(byte(bn))))
	}

	before := make([]disk.Block, nblocks)
	for bn := uint64(0); bn < nblocks; bn++ {
		blk, err := d.ReadBlock(bn)
		require.NoError(t, err)
		before[bn] = blk
	}

	d.BeginTransaction()
	for bn := uint64(0); bn < nblocks; bn++ {
		require.NoError(t, d.WriteBlock(bn, mkBlock(0xff)))
	}
	d.Rollback()

	for bn := uint64(0); bn < nblocks; bn++ {
		blk, err := d.ReadBlock(bn)
		require.NoError(t, err)
		require.Equal(t, before[bn], blk)
	}
}

func TestStagedWriteDoesNotAliasCaller(t *testing.T) {
	d := New(disk.NewMemDisk(nblocks))
	d.BeginTransaction()
	blk := mkBlock(3)
	require.NoError(t, d.WriteBlock(1, blk))
	blk[0] = 99
	got, err := d.ReadBlock(1)
	require.NoError(t, err)
	require.Equal(t, byte(3), got[0])
	d.Rollback()
}

func TestTxnHandle(t *testing.T) {
	md := disk.NewMemDisk(nblocks)
	d := New(md)

	txn := Begin(d)
	require.NoError(t, d.WriteBlock(1, mkBlock(1)))
	txn.Release()
	require.Equal(t, disk.Block(mkBlock(0)), md.Read(1))

	txn = Begin(d)
	require.NoError(t, d.WriteBlock(1, mkBlock(1)))
	txn.Commit()
	txn.Release() // no-op after commit
	require.Equal(t, disk.Block(mkBlock(1)), md.Read(1))
}
