package main

import (
	"flag"
	"fmt"
	"os"

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

func printBitmap(fs *ufs.FileSystem, start common.Bnum, blks uint64) error {
	for i := uint64(0); i < blks; i++ {
		blk, err := fs.Disk().ReadBlock(start + i)
		if err != nil {
			return err
		}
		for _, b := range blk {
			fmt.Printf("%d ", b)
		}
	}
	fmt.Printf("\n")
	return nil
}

func run(path string) error {
	fs, err := openImage(path)
	if err != nil {
		return err
	}
	sb := fs.Super()

	fmt.Printf("Super\n")
	fmt.Printf("inode_bitmap_addr %d\n", sb.InodeBitmapAddr)
	fmt.Printf("inode_bitmap_len %d\n", sb.InodeBitmapLen)
	fmt.Printf("data_bitmap_addr %d\n", sb.DataBitmapAddr)
	fmt.Printf("data_bitmap_len %d\n", sb.DataBitmapLen)
	fmt.Printf("inode_region_addr %d\n", sb.InodeRegionAddr)
	fmt.Printf("inode_region_len %d\n", sb.InodeRegionLen)
	fmt.Printf("data_region_addr %d\n", sb.DataRegionAddr)
	fmt.Printf("data_region_len %d\n", sb.DataRegionLen)
	fmt.Printf("num_inodes %d\n", sb.NumInodes)
	fmt.Printf("num_data %d\n", sb.NumData)
	fmt.Printf("\n")

	fmt.Printf("Inode bitmap\n")
	if err := printBitmap(fs, sb.InodeBitmapAddr, sb.InodeBitmapLen); err != nil {
		return err
	}
	fmt.Printf("\n")

	fmt.Printf("Data bitmap\n")
	return printBitmap(fs, sb.DataBitmapAddr, sb.DataBitmapLen)
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s: diskImageFile\n", os.Args[0])
		os.Exit(1)
	}
	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
