package ufs

import (
	"github.com/mit-pdos/go-journal/util"

	"github.com/gunrock-web/go-ds3/common"
	"github.com/gunrock-web/go-ds3/txdisk"
)

// bitmap is an allocation bitmap read from a contiguous block range.
// Bit n lives in byte n/8 at mask 1<<(n%8) (LSB-first). Mutations stay
// in memory until flush writes the range back through the disk, so an
// operation that fails before flushing leaves the image untouched.
type bitmap struct {
	start common.Bnum
	blks  uint64
	nbits uint64
	bytes []byte
	dirty bool
}

func readBitmap(d *txdisk.Disk, start common.Bnum, blks uint64, nbits uint64) (*bitmap, error) {
	bytes := make([]byte, 0, blks*common.BLKSIZE)
	for i := uint64(0); i < blks; i++ {
		blk, err := d.ReadBlock(start + i)
		if err != nil {
			return nil, err
		}
		bytes = append(bytes, blk...)
	}
	return &bitmap{start: start, blks: blks, nbits: nbits, bytes: bytes}, nil
}

func (bm *bitmap) has(n uint64) bool {
	return bm.bytes[n/8]&(1<<(n%8)) != 0
}

// alloc returns the lowest clear bit and sets it.
func (bm *bitmap) alloc() (uint64, error) {
	for n := uint64(0); n < bm.nbits; n++ {
		if !bm.has(n) {
			bm.bytes[n/8] |= 1 << (n % 8)
			bm.dirty = true
			util.DPrintf(10, "bitmap %d: alloc %d\n", bm.start, n)
			return n, nil
		}
	}
	return 0, ErrNoSpace
}

// free clears bit n. Freeing a clear bit is a logic error.
func (bm *bitmap) free(n uint64) {
	if n >= bm.nbits || !bm.has(n) {
		panic("bitmap: free of clear bit")
	}
	bm.bytes[n/8] &^= 1 << (n % 8)
	bm.dirty = true
	util.DPrintf(10, "bitmap %d: free %d\n", bm.start, n)
}

// flush writes the bitmap back to its block range if it changed.
func (bm *bitmap) flush(d *txdisk.Disk) error {
	if !bm.dirty {
		return nil
	}
	for i := uint64(0); i < bm.blks; i++ {
		blk := bm.bytes[i*common.BLKSIZE : (i+1)*common.BLKSIZE]
		if err := d.WriteBlock(bm.start+i, blk); err != nil {
			return err
		}
	}
	bm.dirty = false
	return nil
}

func (fs *FileSystem) readInodeBitmap() (*bitmap, error) {
	return readBitmap(fs.d, fs.sb.InodeBitmapAddr, fs.sb.InodeBitmapLen, fs.sb.NumInodes)
}

func (fs *FileSystem) readDataBitmap() (*bitmap, error) {
	return readBitmap(fs.d, fs.sb.DataBitmapAddr, fs.sb.DataBitmapLen, fs.sb.NumData)
}
