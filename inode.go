package ufs

import (
	"github.com/tchajed/marshal"

	"github.com/gunrock-web/go-ds3/common"
)

// Inode is the fixed 128-byte on-disk record: a type, a byte size, and
// NDIRECT direct block pointers. A zero pointer means the slot is
// unused.
type Inode struct {
	Kind   common.Ftype
	Size   uint64
	Direct [common.NDIRECT]common.Bnum
}

func (ip *Inode) encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt32(uint32(ip.Kind))
	enc.PutInt32(uint32(ip.Size))
	for _, bn := range ip.Direct {
		enc.PutInt32(uint32(bn))
	}
	return enc.Finish()
}

func decodeInode(data []byte) *Inode {
	dec := marshal.NewDec(data)
	ip := new(Inode)
	ip.Kind = common.Ftype(dec.GetInt32())
	ip.Size = uint64(dec.GetInt32())
	for i := range ip.Direct {
		ip.Direct[i] = common.Bnum(dec.GetInt32())
	}
	return ip
}

// NBlocks is the number of data blocks the inode's size covers.
func (ip *Inode) NBlocks() uint64 {
	return (ip.Size + common.BLKSIZE - 1) / common.BLKSIZE
}

// readInode fetches the record for inum without checking the inode
// bitmap; callers that need an in-use inode go through stat.
func (fs *FileSystem) readInode(inum common.Inum) (*Inode, error) {
	blk, err := fs.d.ReadBlock(fs.sb.InodeBlock(inum))
	if err != nil {
		return nil, err
	}
	off := fs.sb.InodeOff(inum)
	return decodeInode(blk[off : off+common.INODESZ]), nil
}

// writeInode stores the record for inum with a read-modify-write of its
// inode-table block.
func (fs *FileSystem) writeInode(inum common.Inum, ip *Inode) error {
	bn := fs.sb.InodeBlock(inum)
	blk, err := fs.d.ReadBlock(bn)
	if err != nil {
		return err
	}
	copy(blk[fs.sb.InodeOff(inum):], ip.encode())
	return fs.d.WriteBlock(bn, blk)
}

// readData reads the first n bytes of ip's contents, walking the direct
// pointers in order.
func (fs *FileSystem) readData(ip *Inode, n uint64) ([]byte, error) {
	data := make([]byte, 0, n)
	nblks := (n + common.BLKSIZE - 1) / common.BLKSIZE
	for i := uint64(0); i < nblks; i++ {
		if ip.Direct[i] == common.NULLBNUM {
			return nil, ErrInvalidInode
		}
		blk, err := fs.d.ReadBlock(ip.Direct[i])
		if err != nil {
			return nil, err
		}
		take := n - uint64(len(data))
		if take > common.BLKSIZE {
			take = common.BLKSIZE
		}
		data = append(data, blk[:take]...)
	}
	return data, nil
}
