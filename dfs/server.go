// Package dfs exposes the file system as a tree of HTTP resources
// under a URL prefix.
//
//	GET    /ds3/<path>        file bytes, or a directory listing
//	PUT    /ds3/<path> + body create intermediate directories and the
//	                          file, then overwrite its contents
//	DELETE /ds3/<path>        unlink the last path component
//
// PUT and DELETE run inside a disk transaction: any failure rolls the
// image back to its pre-request state before the response is emitted.
package dfs

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mit-pdos/go-journal/util"

	ufs "github.com/gunrock-web/go-ds3"
	"github.com/gunrock-web/go-ds3/common"
	"github.com/gunrock-web/go-ds3/txdisk"
	"github.com/gunrock-web/go-ds3/util/stats"
)

// Prefix is the URL prefix all file system resources live under.
const Prefix = "/ds3/"

const (
	getOp int = iota
	putOp
	deleteOp
	numOps
)

var opNames = []string{"GET", "PUT", "DELETE"}

// Server handles one request at a time: the core holds no async
// suspension points and at most one disk transaction may be open, so a
// single mutex serializes the handlers even when net/http dispatches
// concurrently.
type Server struct {
	mu  sync.Mutex
	fs  *ufs.FileSystem
	ops [numOps]stats.Op
}

func NewServer(fs *ufs.FileSystem) *Server {
	return &Server{fs: fs}
}

// splitPath breaks the part after the prefix into components, dropping
// empty ones (leading, trailing, or doubled slashes).
func splitPath(path string) []string {
	var components []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			components = append(components, c)
		}
	}
	return components
}

// status maps a core error to its HTTP status.
func status(err error) int {
	switch {
	case errors.Is(err, ufs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ufs.ErrNoSpace):
		return http.StatusInsufficientStorage
	case errors.Is(err, ufs.ErrInvalidType):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, Prefix)
	util.DPrintf(1, "dfs: %s /ds3/%s\n", r.Method, path)
	switch r.Method {
	case http.MethodGet:
		defer srv.ops[getOp].Record(time.Now())
		srv.get(w, path)
	case http.MethodPut:
		defer srv.ops[putOp].Record(time.Now())
		srv.put(w, r, path)
	case http.MethodDelete:
		defer srv.ops[deleteOp].Record(time.Now())
		srv.delete(w, path)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// walk resolves components starting at the root directory.
func (srv *Server) walk(components []string) (common.Inum, error) {
	inum := common.ROOTINUM
	for _, c := range components {
		child, err := srv.fs.Lookup(inum, c)
		if err != nil {
			return 0, err
		}
		inum = child
	}
	return inum, nil
}

func (srv *Server) get(w http.ResponseWriter, path string) {
	components := splitPath(path)
	if len(components) == 0 {
		http.Error(w, "empty path", http.StatusBadRequest)
		return
	}
	inum, err := srv.walk(components)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	ip, err := srv.fs.Stat(inum)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	switch ip.Kind {
	case common.FileReg:
		data, err := srv.fs.Read(inum, ip.Size)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	case common.FileDir:
		ents, err := srv.fs.ReadDir(inum)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		var listing strings.Builder
		for _, e := range ents {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			listing.WriteString(e.Name)
			if cip, err := srv.fs.Stat(e.Inum); err == nil && cip.Kind == common.FileDir {
				listing.WriteByte('/')
			}
			listing.WriteByte('\n')
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, listing.String())
	default:
		http.Error(w, "bad inode type", http.StatusBadRequest)
	}
}

func (srv *Server) put(w http.ResponseWriter, r *http.Request, path string) {
	components := splitPath(path)
	if len(components) == 0 {
		http.Error(w, "empty file name", http.StatusBadRequest)
		return
	}
	fileName := components[len(components)-1]
	dirs := components[:len(components)-1]

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txn := txdisk.Begin(srv.fs.Disk())
	defer txn.Release()

	// Create missing intermediate directories. Create is idempotent on
	// an existing directory and fails with ErrInvalidType when a
	// regular file is in the way.
	parent := common.ROOTINUM
	for _, dir := range dirs {
		inum, err := srv.fs.Create(parent, common.FileDir, dir)
		if err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
		parent = inum
	}

	fileInum, err := srv.fs.Lookup(parent, fileName)
	if err == nil {
		ip, err := srv.fs.Stat(fileInum)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if ip.Kind == common.FileDir {
			http.Error(w, "target is a directory", http.StatusConflict)
			return
		}
	} else if errors.Is(err, ufs.ErrNotFound) {
		fileInum, err = srv.fs.Create(parent, common.FileReg, fileName)
		if err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
	} else {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if _, err := srv.fs.Write(fileInum, body); err != nil {
		http.Error(w, err.Error(), status(err))
		return
	}

	txn.Commit()
	w.WriteHeader(http.StatusCreated)
	io.WriteString(w, "File created/updated successfully")
}

func (srv *Server) delete(w http.ResponseWriter, path string) {
	components := splitPath(path)
	if len(components) == 0 {
		http.Error(w, "empty path", http.StatusBadRequest)
		return
	}
	name := components[len(components)-1]

	parent, err := srv.walk(components[:len(components)-1])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	txn := txdisk.Begin(srv.fs.Disk())
	defer txn.Release()

	if err := srv.fs.Unlink(parent, name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txn.Commit()
	w.WriteHeader(http.StatusOK)
}

// WriteStats dumps per-method latency counters.
func (srv *Server) WriteStats(w io.Writer) {
	stats.WriteTable(opNames, srv.ops[:], w)
}

func (srv *Server) ResetStats() {
	for i := range srv.ops {
		srv.ops[i].Reset()
	}
}
