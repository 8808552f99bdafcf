package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/tchajed/goose/machine/disk"

	ufs "github.com/gunrock-web/go-ds3"
	"github.com/gunrock-web/go-ds3/common"
	"github.com/gunrock-web/go-ds3/txdisk"
)

func openImage(path string) (*ufs.FileSystem, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	fd, err := disk.NewFileDisk(path, uint64(st.Size())/common.BLKSIZE)
	if err != nil {
		return nil, err
	}
	return ufs.New(txdisk.New(fd))
}

func run(path string, inum common.Inum) error {
	fs, err := openImage(path)
	if err != nil {
		return err
	}
	ip, err := fs.Stat(inum)
	if err != nil {
		return fmt.Errorf("stat inode %d: %w", inum, err)
	}

	fmt.Printf("File blocks\n")
	for i := uint64(0); i < ip.NBlocks(); i++ {
		if ip.Direct[i] != common.NULLBNUM {
			fmt.Printf("%d\n", ip.Direct[i])
		}
	}
	fmt.Printf("\n")

	fmt.Printf("File data\n")
	data, err := fs.Read(inum, ip.Size)
	if err != nil {
		return err
	}
	os.Stdout.Write(data)
	return nil
}

func main() {
	flag.Parse()
	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "%s: diskImageFile inodeNumber\n", os.Args[0])
		os.Exit(1)
	}
	inum, err := strconv.ParseUint(flag.Arg(1), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad inode number %q: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}
	if err := run(flag.Arg(0), inum); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
