// Command mkfs formats a fresh disk image and populates it from a
// skeleton directory tree on the host, the way the teacher kernel's
// build produces the image a VM boots from.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ufs"
	"ustr"
)

func pathOf(rel string) ustr.Ustr {
	return ustr.MkUstrSlice([]byte(rel))
}

func copydata(src string, u *ufs.Ufs_t, dst string) {
	srcFile, err := os.Open(src)
	if err != nil {
		panic(err)
	}
	defer srcFile.Close()

	f, ferr := u.Fs.Namei(pathOf(dst))
	if ferr != 0 {
		panic(ferr)
	}

	buf := make([]byte, 4096)
	off := 0
	for {
		n, readErr := srcFile.Read(buf)
		if readErr != nil && readErr != io.EOF {
			panic(readErr)
		}
		if n > 0 {
			u.Fs.Locki(f)
			wrote, werr := u.Fs.Writei(f, buf[:n], off)
			u.Fs.Unlocki(f)
			if werr != 0 || wrote != n {
				panic(werr)
			}
			off += wrote
		}
		if readErr == io.EOF {
			break
		}
	}
	u.Fs.Iput(f)
}

func addfiles(u *ufs.Ufs_t, skeldir string) {
	err := filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fmt.Printf("failed to access %q: %v\n", path, err)
			return err
		}
		rel := strings.TrimPrefix(path, skeldir)
		if rel == "" || d.IsDir() {
			return nil
		}
		if e := u.AddFile(rel); e != 0 {
			fmt.Printf("failed to create file %v: %v\n", rel, e)
			return nil
		}
		copydata(path, u, rel)
		return nil
	})
	if err != nil {
		fmt.Printf("error walking the path %q: %v\n", skeldir, err)
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) < 3 {
		fmt.Printf("Usage: mkfs <output image> <skel dir>\n")
		os.Exit(1)
	}
	image := os.Args[1]
	u := ufs.MkDisk(image)
	addfiles(u, os.Args[2])
	u.Shutdown()
}
