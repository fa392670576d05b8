// Command sfsutil inspects and manipulates blockfs volumes stored as plain
// disk image files.
package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/blockfs-go/blockfs"
)

const usage = `sfsutil - blockfs volume CLI tool

Usage:
  sfsutil mkfs <image> <sectors>              Format a new volume of the given sector count
  sfsutil ls <image> [<path>]                 List files at path (default "/")
  sfsutil cat <image> <file>                  Display contents of a file
  sfsutil mkdir <image> <path>                Create a directory
  sfsutil rm <image> <path>                   Remove a file or empty directory
  sfsutil info <image>                        Display volume statistics
  sfsutil help                                Show this help message
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "mkfs":
		err = cmdMkfs(os.Args[2:])
	case "ls":
		err = cmdLs(os.Args[2:])
	case "cat":
		err = cmdCat(os.Args[2:])
	case "mkdir":
		err = cmdMkdir(os.Args[2:])
	case "rm":
		err = cmdRm(os.Args[2:])
	case "info":
		err = cmdInfo(os.Args[2:])
	case "help":
		fmt.Println(usage)
		return
	default:
		fmt.Printf("Error: unknown command %q\n", os.Args[1])
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func openVolume(image string) (*blockfs.FileSystem, *blockfs.FileDevice, error) {
	dev, err := blockfs.OpenFileDevice(image, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", image, err)
	}
	fsys, err := blockfs.NewFileSystem(dev)
	if err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("mount %s: %w", image, err)
	}
	return fsys, dev, nil
}

func cmdMkfs(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sfsutil mkfs <image> <sectors>")
	}
	var sectors uint32
	if _, err := fmt.Sscanf(args[1], "%d", &sectors); err != nil {
		return fmt.Errorf("invalid sector count %q: %w", args[1], err)
	}

	dev, err := blockfs.OpenFileDevice(args[0], sectors)
	if err != nil {
		return err
	}
	defer dev.Close()

	fsys, err := blockfs.Format(dev)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}
	return fsys.Close()
}

func cmdLs(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sfsutil ls <image> [<path>]")
	}
	path := "/"
	if len(args) > 1 {
		path = args[1]
	}

	fsys, dev, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()

	adapter, err := blockfs.NewFS(fsys)
	if err != nil {
		return err
	}
	defer adapter.Close()

	relPath := "."
	if path != "/" {
		relPath = trimLeadingSlash(path)
	}
	entries, err := fs.ReadDir(adapter, relPath)
	if err != nil {
		return fmt.Errorf("readdir %s: %w", path, err)
	}

	for _, e := range entries {
		typeChar := "-"
		if e.IsDir() {
			typeChar = "d"
		}
		info, err := e.Info()
		size := int64(0)
		if err == nil {
			size = info.Size()
		}
		fmt.Printf("%s %8d %s\n", typeChar, size, e.Name())
	}
	return nil
}

func cmdCat(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sfsutil cat <image> <file>")
	}
	fsys, dev, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()

	adapter, err := blockfs.NewFS(fsys)
	if err != nil {
		return err
	}
	defer adapter.Close()

	data, err := fs.ReadFile(adapter, trimLeadingSlash(args[1]))
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func cmdMkdir(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sfsutil mkdir <image> <path>")
	}
	fsys, dev, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()
	defer fsys.Close()

	proc, err := blockfs.NewProcess(fsys, nil)
	if err != nil {
		return err
	}
	defer proc.Exit()
	return proc.Mkdir(args[1])
}

func cmdRm(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sfsutil rm <image> <path>")
	}
	fsys, dev, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()
	defer fsys.Close()

	proc, err := blockfs.NewProcess(fsys, nil)
	if err != nil {
		return err
	}
	defer proc.Exit()
	return proc.Remove(args[1])
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sfsutil info <image>")
	}
	fsys, dev, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()
	defer fsys.Close()

	var fileCount, dirCount int
	adapter, err := blockfs.NewFS(fsys)
	if err != nil {
		return err
	}
	defer adapter.Close()
	countEntries(adapter, ".", &fileCount, &dirCount)

	fmt.Println("blockfs volume information")
	fmt.Println("===========================")
	fmt.Printf("Sectors:          %d\n", dev.SectorCount())
	fmt.Printf("Sector size:      %d bytes\n", blockfs.SectorSize)
	fmt.Printf("Directories:      %d\n", dirCount)
	fmt.Printf("Regular files:    %d\n", fileCount)
	return nil
}

func countEntries(fsys fs.FS, dir string, fileCount, dirCount *int) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		sub := e.Name()
		if dir != "." {
			sub = dir + "/" + e.Name()
		}
		if e.IsDir() {
			*dirCount++
			countEntries(fsys, sub, fileCount, dirCount)
		} else {
			*fileCount++
		}
	}
}

func trimLeadingSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	if p == "" {
		return "."
	}
	return p
}
