package fs

import (
	"io"
	"os"
)

// File is the subset of *os.File the blob store needs: sequential writes
// for staging, random reads for sealed segments.
type File interface {
	io.WriteCloser
	io.ReaderAt
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem abstracts the file system operations behind LocalStore.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
	Remove(name string) error

	// Rename moves oldpath to newpath, replacing newpath if present.
	Rename(oldpath, newpath string) error
	// Link creates newpath as a hard link to oldpath. It fails if newpath
	// already exists, which makes it usable as a create-if-absent commit.
	Link(oldpath, newpath string) error
}

// LocalFS is the os-backed FileSystem.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (LocalFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (LocalFS) ReadDir(name string) ([]os.DirEntry, error)   { return os.ReadDir(name) }
func (LocalFS) Remove(name string) error                     { return os.Remove(name) }
func (LocalFS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (LocalFS) Link(oldpath, newpath string) error           { return os.Link(oldpath, newpath) }

// Default is the file system used outside of tests.
var Default FileSystem = LocalFS{}
