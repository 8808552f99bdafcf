package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/util"

	ufs "github.com/gunrock-web/go-ds3"
	"github.com/gunrock-web/go-ds3/common"
	"github.com/gunrock-web/go-ds3/dfs"
	"github.com/gunrock-web/go-ds3/super"
	"github.com/gunrock-web/go-ds3/txdisk"
)

func main() {
	var diskfile string
	flag.StringVar(&diskfile, "disk", "", "disk image (empty for MemDisk)")

	var addr string
	flag.StringVar(&addr, "addr", ":8080", "listen address")

	var numInodes uint64
	flag.Uint64Var(&numInodes, "inodes", 512, "number of inodes when formatting")

	var numData uint64
	flag.Uint64Var(&numData, "data", 4096, "number of data blocks when formatting")

	var mkfs bool
	flag.BoolVar(&mkfs, "mkfs", false, "format the image even if it already exists")

	var dumpStats bool
	flag.BoolVar(&dumpStats, "stats", false, "dump stats to stderr at end")

	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()

	var d disk.Disk
	format := mkfs
	if diskfile == "" {
		d = disk.NewMemDisk(super.MkFsSuper(numInodes, numData).NumBlocks())
		format = true
	} else {
		nblocks := super.MkFsSuper(numInodes, numData).NumBlocks()
		st, err := os.Stat(diskfile)
		if err != nil {
			format = true
		} else if !format {
			nblocks = uint64(st.Size()) / common.BLKSIZE
		}
		fd, err := disk.NewFileDisk(diskfile, nblocks)
		if err != nil {
			log.Fatalf("could not open disk image %s: %v", diskfile, err)
		}
		d = fd
	}

	td := txdisk.New(d)
	if format {
		if _, err := ufs.Format(td, numInodes, numData); err != nil {
			log.Fatalf("mkfs failed: %v", err)
		}
	}
	fs, err := ufs.New(td)
	if err != nil {
		log.Fatalf("could not open file system: %v", err)
	}

	srv := dfs.NewServer(fs)
	mux := http.NewServeMux()
	mux.Handle(dfs.Prefix, srv)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen %s: %v", addr, err)
	}
	httpSrv := &http.Server{Handler: mux}

	interruptSig := make(chan os.Signal, 1)
	signal.Notify(interruptSig, os.Interrupt)
	go func() {
		<-interruptSig
		if dumpStats {
			srv.WriteStats(os.Stderr)
		}
		httpSrv.Close()
	}()

	if dumpStats {
		statSig := make(chan os.Signal, 1)
		signal.Notify(statSig, syscall.SIGUSR1)
		go func() {
			for {
				<-statSig
				srv.WriteStats(os.Stderr)
				srv.ResetStats()
			}
		}()
	}

	util.DPrintf(1, "go-ds3d: serving %s on %s\n", dfs.Prefix, addr)
	err = httpSrv.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
	}
	td.Barrier()
	td.Close()
}
