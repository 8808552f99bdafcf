package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

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

func printDirectory(fs *ufs.FileSystem, path string, inum common.Inum) error {
	ents, err := fs.ReadDir(inum)
	if err != nil {
		return fmt.Errorf("directory %s: %w", path, err)
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].Name < ents[j].Name })

	fmt.Printf("Directory %s\n", path)
	for _, e := range ents {
		fmt.Printf("%d\t%s\n", e.Inum, e.Name)
	}
	fmt.Printf("\n")

	for _, e := range ents {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		ip, err := fs.Stat(e.Inum)
		if err != nil {
			return err
		}
		if ip.Kind == common.FileDir {
			if err := printDirectory(fs, path+e.Name+"/", e.Inum); err != nil {
				return err
			}
		}
	}
	return nil
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s: diskImageFile\n", os.Args[0])
		os.Exit(1)
	}
	fs, err := openImage(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := printDirectory(fs, "/", common.ROOTINUM); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
