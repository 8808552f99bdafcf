package ufs

import (
	"bytes"

	"github.com/goose-lang/std"
	"github.com/tchajed/marshal"

	"github.com/gunrock-web/go-ds3/common"
)

// DirEnt is a live directory entry.
type DirEnt struct {
	Inum common.Inum
	Name string
}

// encodeDirEnt builds the fixed 32-byte record: a signed 4-byte inum
// followed by the 28-byte name field, NUL-padded.
func encodeDirEnt(inum int32, name string) []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt32(uint32(inum))
	field := make([]byte, common.MAXNAMELEN)
	copy(field, name)
	enc.PutBytes(field)
	return enc.Finish()
}

// decodeDirEnt returns the entry's inum (NULLINUM for a tombstone) and
// its name under NUL-terminated semantics.
func decodeDirEnt(data []byte) (int32, string) {
	dec := marshal.NewDec(data)
	inum := int32(dec.GetInt32())
	field := dec.GetBytes(common.MAXNAMELEN)
	n := bytes.IndexByte(field, 0)
	if n < 0 {
		n = len(field)
	}
	return inum, string(field[:n])
}

// scanName finds the first live entry named name in a directory's entry
// stream and returns its inum and byte offset.
func scanName(stream []byte, name string) (common.Inum, uint64, bool) {
	want := []byte(name)
	for off := uint64(0); off+common.DIRENTSZ <= uint64(len(stream)); off += common.DIRENTSZ {
		inum, entName := decodeDirEnt(stream[off : off+common.DIRENTSZ])
		if inum == common.NULLINUM {
			continue
		}
		if std.BytesEqual([]byte(entName), want) {
			return common.Inum(inum), off, true
		}
	}
	return 0, 0, false
}

// scanTombstone finds the first tombstoned slot, if any. The compaction
// discipline never writes tombstones, but images produced by a
// tombstoning implementation still get their slots reused.
func scanTombstone(stream []byte) (uint64, bool) {
	for off := uint64(0); off+common.DIRENTSZ <= uint64(len(stream)); off += common.DIRENTSZ {
		inum, _ := decodeDirEnt(stream[off : off+common.DIRENTSZ])
		if inum == common.NULLINUM {
			return off, true
		}
	}
	return 0, false
}

// liveEntries decodes the stream into its live entries in stored order,
// including "." and "..".
func liveEntries(stream []byte) []DirEnt {
	var ents []DirEnt
	for off := uint64(0); off+common.DIRENTSZ <= uint64(len(stream)); off += common.DIRENTSZ {
		inum, name := decodeDirEnt(stream[off : off+common.DIRENTSZ])
		if inum == common.NULLINUM {
			continue
		}
		ents = append(ents, DirEnt{Inum: common.Inum(inum), Name: name})
	}
	return ents
}

// isDirEmpty reports whether the stream holds nothing but live "." and
// ".." entries.
func isDirEmpty(stream []byte) bool {
	for off := uint64(0); off+common.DIRENTSZ <= uint64(len(stream)); off += common.DIRENTSZ {
		inum, name := decodeDirEnt(stream[off : off+common.DIRENTSZ])
		if inum == common.NULLINUM {
			continue
		}
		if name != "." && name != ".." {
			return false
		}
	}
	return true
}

// writeDirStream writes a directory's entry stream back through its
// direct blocks, zero-padding the tail of the last block. The blocks
// covering the stream must already be allocated.
func (fs *FileSystem) writeDirStream(dip *Inode, stream []byte) error {
	nblks := (uint64(len(stream)) + common.BLKSIZE - 1) / common.BLKSIZE
	for i := uint64(0); i < nblks; i++ {
		if dip.Direct[i] == common.NULLBNUM {
			return ErrInvalidInode
		}
		blk := make([]byte, common.BLKSIZE)
		lo := i * common.BLKSIZE
		hi := lo + common.BLKSIZE
		if hi > uint64(len(stream)) {
			hi = uint64(len(stream))
		}
		copy(blk, stream[lo:hi])
		if err := fs.d.WriteBlock(dip.Direct[i], blk); err != nil {
			return err
		}
	}
	return nil
}
