// Package super holds the superblock record and the arithmetic that
// maps inode and data-block indices to disk addresses.
//
// Block 0 of the image is the superblock; the regions it describes are
// laid out contiguously after it:
//
//	0                         : superblock
//	[InodeBitmapAddr, +len)   : inode bitmap
//	[DataBitmapAddr, +len)    : data bitmap
//	[InodeRegionAddr, +len)   : inode table
//	[DataRegionAddr, +NumData): data blocks
package super

import (
	"errors"

	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/gunrock-web/go-ds3/common"
	"github.com/gunrock-web/go-ds3/txdisk"
)

var ErrBadSuper = errors.New("superblock does not describe this image")

// FsSuper mirrors the on-disk superblock: ten little-endian int32
// fields at the start of block 0. Addresses are block numbers, lengths
// are block counts.
type FsSuper struct {
	InodeBitmapAddr common.Bnum
	InodeBitmapLen  uint64
	DataBitmapAddr  common.Bnum
	DataBitmapLen   uint64
	InodeRegionAddr common.Bnum
	InodeRegionLen  uint64
	DataRegionAddr  common.Bnum
	DataRegionLen   uint64
	NumInodes       uint64
	NumData         uint64
}

const nbitsPerBlock = common.BLKSIZE * 8

func divUp(x uint64, y uint64) uint64 {
	return (x + y - 1) / y
}

// MkFsSuper computes the layout for a fresh image holding numInodes
// inodes and numData data blocks.
func MkFsSuper(numInodes uint64, numData uint64) *FsSuper {
	inodeBitmapLen := divUp(numInodes, nbitsPerBlock)
	dataBitmapLen := divUp(numData, nbitsPerBlock)
	inodeRegionLen := divUp(numInodes, common.INODEBLK)

	inodeBitmapAddr := common.Bnum(1)
	dataBitmapAddr := inodeBitmapAddr + inodeBitmapLen
	inodeRegionAddr := dataBitmapAddr + dataBitmapLen
	dataRegionAddr := inodeRegionAddr + inodeRegionLen

	return &FsSuper{
		InodeBitmapAddr: inodeBitmapAddr,
		InodeBitmapLen:  inodeBitmapLen,
		DataBitmapAddr:  dataBitmapAddr,
		DataBitmapLen:   dataBitmapLen,
		InodeRegionAddr: inodeRegionAddr,
		InodeRegionLen:  inodeRegionLen,
		DataRegionAddr:  dataRegionAddr,
		DataRegionLen:   numData,
		NumInodes:       numInodes,
		NumData:         numData,
	}
}

// NumBlocks is the total image size the layout requires, in blocks.
func (sb *FsSuper) NumBlocks() uint64 {
	return uint64(sb.DataRegionAddr) + sb.NumData
}

func (sb *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(common.BLKSIZE)
	enc.PutInt32(uint32(sb.InodeBitmapAddr))
	enc.PutInt32(uint32(sb.InodeBitmapLen))
	enc.PutInt32(uint32(sb.DataBitmapAddr))
	enc.PutInt32(uint32(sb.DataBitmapLen))
	enc.PutInt32(uint32(sb.InodeRegionAddr))
	enc.PutInt32(uint32(sb.InodeRegionLen))
	enc.PutInt32(uint32(sb.DataRegionAddr))
	enc.PutInt32(uint32(sb.DataRegionLen))
	enc.PutInt32(uint32(sb.NumInodes))
	enc.PutInt32(uint32(sb.NumData))
	return enc.Finish()
}

func Decode(blk disk.Block) *FsSuper {
	dec := marshal.NewDec(blk)
	sb := new(FsSuper)
	sb.InodeBitmapAddr = common.Bnum(dec.GetInt32())
	sb.InodeBitmapLen = uint64(dec.GetInt32())
	sb.DataBitmapAddr = common.Bnum(dec.GetInt32())
	sb.DataBitmapLen = uint64(dec.GetInt32())
	sb.InodeRegionAddr = common.Bnum(dec.GetInt32())
	sb.InodeRegionLen = uint64(dec.GetInt32())
	sb.DataRegionAddr = common.Bnum(dec.GetInt32())
	sb.DataRegionLen = uint64(dec.GetInt32())
	sb.NumInodes = uint64(dec.GetInt32())
	sb.NumData = uint64(dec.GetInt32())
	return sb
}

// Load reads and validates the superblock of an existing image.
func Load(d *txdisk.Disk) (*FsSuper, error) {
	blk, err := d.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	sb := Decode(blk)
	if sb.NumInodes == 0 || sb.NumData == 0 || sb.NumBlocks() > d.Size() {
		return nil, ErrBadSuper
	}
	return sb, nil
}

// InodeBlock is the block holding inode inum's record.
func (sb *FsSuper) InodeBlock(inum common.Inum) common.Bnum {
	return sb.InodeRegionAddr + inum/common.INODEBLK
}

// InodeOff is the byte offset of inode inum's record within its block.
func (sb *FsSuper) InodeOff(inum common.Inum) uint64 {
	return (inum % common.INODEBLK) * common.INODESZ
}

// DataBlock maps a data-bitmap bit index to its absolute block number.
func (sb *FsSuper) DataBlock(i uint64) common.Bnum {
	return sb.DataRegionAddr + i
}

// DataIndex maps an absolute block number back to its bitmap index.
func (sb *FsSuper) DataIndex(bn common.Bnum) uint64 {
	return uint64(bn - sb.DataRegionAddr)
}

// InDataRegion reports whether bn falls inside the data region.
func (sb *FsSuper) InDataRegion(bn common.Bnum) bool {
	return bn >= sb.DataRegionAddr && bn < sb.DataRegionAddr+sb.NumData
}
