package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/util"

	ufs "github.com/gunrock-web/go-ds3"
	"github.com/gunrock-web/go-ds3/super"
	"github.com/gunrock-web/go-ds3/txdisk"
)

func main() {
	var diskfile string
	flag.StringVar(&diskfile, "disk", "", "disk image to format")

	var numInodes uint64
	flag.Uint64Var(&numInodes, "inodes", 512, "number of inodes")

	var numData uint64
	flag.Uint64Var(&numData, "data", 4096, "number of data blocks")

	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()

	if diskfile == "" {
		fmt.Fprintf(os.Stderr, "%s: -disk diskImageFile is required\n", os.Args[0])
		os.Exit(1)
	}

	nblocks := super.MkFsSuper(numInodes, numData).NumBlocks()
	fd, err := disk.NewFileDisk(diskfile, nblocks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create disk image %s: %v\n", diskfile, err)
		os.Exit(1)
	}
	td := txdisk.New(fd)
	sb, err := ufs.Format(td, numInodes, numData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}
	td.Barrier()
	td.Close()
	fmt.Printf("formatted %s: %d inodes, %d data blocks, %d total blocks\n",
		diskfile, sb.NumInodes, sb.NumData, sb.NumBlocks())
}
