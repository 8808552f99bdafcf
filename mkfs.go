package ufs

import (
	"fmt"

	"github.com/mit-pdos/go-journal/util"

	"github.com/gunrock-web/go-ds3/common"
	"github.com/gunrock-web/go-ds3/super"
	"github.com/gunrock-web/go-ds3/txdisk"
)

// Format writes a fresh file system onto d: superblock, bitmaps with
// the root bits set, a zeroed inode table holding only the root
// directory, and the root directory's block with "." and ".." both
// pointing at inode 0.
func Format(d *txdisk.Disk, numInodes uint64, numData uint64) (*super.FsSuper, error) {
	if numInodes == 0 || numData == 0 {
		return nil, fmt.Errorf("mkfs: %w: need at least one inode and one data block", ErrInvalidSize)
	}
	sb := super.MkFsSuper(numInodes, numData)
	if sb.NumBlocks() > d.Size() {
		return nil, fmt.Errorf("mkfs: %w: layout needs %d blocks, image has %d",
			ErrNoSpace, sb.NumBlocks(), d.Size())
	}
	util.DPrintf(1, "Format: %d inodes, %d data blocks, %d total\n",
		numInodes, numData, sb.NumBlocks())

	if err := d.WriteBlock(0, sb.Encode()); err != nil {
		return nil, err
	}

	zero := make([]byte, common.BLKSIZE)

	// Inode bitmap: only the root inode is in use.
	blk := make([]byte, common.BLKSIZE)
	blk[0] = 1
	if err := d.WriteBlock(sb.InodeBitmapAddr, blk); err != nil {
		return nil, err
	}
	for i := uint64(1); i < sb.InodeBitmapLen; i++ {
		if err := d.WriteBlock(sb.InodeBitmapAddr+i, zero); err != nil {
			return nil, err
		}
	}

	// Data bitmap: only the root directory's block is in use.
	blk = make([]byte, common.BLKSIZE)
	blk[0] = 1
	if err := d.WriteBlock(sb.DataBitmapAddr, blk); err != nil {
		return nil, err
	}
	for i := uint64(1); i < sb.DataBitmapLen; i++ {
		if err := d.WriteBlock(sb.DataBitmapAddr+i, zero); err != nil {
			return nil, err
		}
	}

	// Inode table: root record in slot 0, everything else zero.
	root := &Inode{Kind: common.FileDir, Size: 2 * common.DIRENTSZ}
	root.Direct[0] = sb.DataBlock(0)
	blk = make([]byte, common.BLKSIZE)
	copy(blk, root.encode())
	if err := d.WriteBlock(sb.InodeRegionAddr, blk); err != nil {
		return nil, err
	}
	for i := uint64(1); i < sb.InodeRegionLen; i++ {
		if err := d.WriteBlock(sb.InodeRegionAddr+i, zero); err != nil {
			return nil, err
		}
	}

	// Root directory block; ".." of the root points at the root.
	blk = make([]byte, common.BLKSIZE)
	copy(blk, encodeDirEnt(int32(common.ROOTINUM), "."))
	copy(blk[common.DIRENTSZ:], encodeDirEnt(int32(common.ROOTINUM), ".."))
	if err := d.WriteBlock(sb.DataBlock(0), blk); err != nil {
		return nil, err
	}
	for i := uint64(1); i < sb.NumData; i++ {
		if err := d.WriteBlock(sb.DataBlock(i), zero); err != nil {
			return nil, err
		}
	}
	return sb, nil
}
