// Package txdisk wraps a raw block device with bounds-checked block
// access and a single-writer transaction buffer.
//
// Outside a transaction, WriteBlock goes straight to the device. Inside
// one, writes are staged in an in-memory map from block number to block
// contents; ReadBlock observes staged writes. Commit flushes the staged
// blocks and Rollback discards them, so a multi-step mutation either
// lands completely or not at all.
package txdisk

import (
	"errors"
	"sync"

	"github.com/goose-lang/std"
	"github.com/mit-pdos/go-journal/util"
	"github.com/tchajed/goose/machine/disk"
)

var ErrOutOfRange = errors.New("block number out of range")

type Disk struct {
	mu    sync.Mutex
	d     disk.Disk
	size  uint64 // in blocks
	buf   map[uint64]disk.Block
	inTxn bool
}

func New(d disk.Disk) *Disk {
	return &Disk{
		d:    d,
		size: d.Size(),
		buf:  make(map[uint64]disk.Block),
	}
}

// Size reports the device size in blocks.
func (d *Disk) Size() uint64 {
	return d.size
}

// ReadBlock returns a copy of block bn, observing any write staged in
// the current transaction.
func (d *Disk) ReadBlock(bn uint64) (disk.Block, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if bn >= d.size {
		return nil, ErrOutOfRange
	}
	if d.inTxn {
		if blk, ok := d.buf[bn]; ok {
			return std.BytesClone(blk), nil
		}
	}
	return d.d.Read(bn), nil
}

// WriteBlock stages block bn inside a transaction, or writes it through
// to the device outside one. blk must be exactly one block.
func (d *Disk) WriteBlock(bn uint64, blk disk.Block) error {
	if uint64(len(blk)) != disk.BlockSize {
		panic("WriteBlock: buffer is not block-sized")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if bn >= d.size {
		return ErrOutOfRange
	}
	if d.inTxn {
		d.buf[bn] = std.BytesClone(blk)
		return nil
	}
	d.d.Write(bn, blk)
	return nil
}

// BeginTransaction opens a transaction. At most one may be open at a
// time; a nested begin is a programming error.
func (d *Disk) BeginTransaction() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inTxn {
		panic("BeginTransaction: transaction already open")
	}
	d.inTxn = true
}

// Commit flushes every staged block to the device and closes the
// transaction. The flush order is unspecified.
func (d *Disk) Commit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inTxn {
		panic("Commit: no transaction open")
	}
	util.DPrintf(5, "txdisk.Commit: %d blocks\n", len(d.buf))
	for bn, blk := range d.buf {
		d.d.Write(bn, blk)
	}
	d.buf = make(map[uint64]disk.Block)
	d.inTxn = false
}

// Rollback discards every staged block and closes the transaction.
func (d *Disk) Rollback() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inTxn {
		panic("Rollback: no transaction open")
	}
	util.DPrintf(5, "txdisk.Rollback: %d blocks\n", len(d.buf))
	d.buf = make(map[uint64]disk.Block)
	d.inTxn = false
}

// Barrier forces outstanding device writes to stable storage.
func (d *Disk) Barrier() {
	d.d.Barrier()
}

func (d *Disk) Close() {
	d.d.Close()
}
