package ufs

import "errors"

// The error taxonomy of the file system core. Every operation returns
// one of these (possibly wrapped) or succeeds.
var (
	ErrInvalidInode = errors.New("invalid inode")
	ErrInvalidType  = errors.New("invalid type")
	ErrInvalidName  = errors.New("invalid name")
	ErrInvalidSize  = errors.New("invalid size")
	ErrNotFound     = errors.New("not found")
	ErrNoSpace      = errors.New("not enough space")
	ErrDirNotEmpty  = errors.New("directory not empty")
	ErrNotAllowed   = errors.New("operation not allowed")
)
