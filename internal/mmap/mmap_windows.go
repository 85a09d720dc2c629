//go:build windows

package mmap

import (
	"io"
	"os"
)

// Windows has no unix.Mmap; fall back to reading the whole file. Sealed
// segments are immutable, so a plain read gives the same view.
func mmap(f *os.File, size int) ([]byte, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	return data, nil
}

func munmap(_ []byte) error { return nil }
