package executor

import (
	"io"
	"io/fs"
	"os"
	"time"
)

// programFS is a read-only file system holding exactly one file, the
// program, backed by its host path.
type programFS struct {
	name string
	path string
}

func newProgramFS(name, path string) programFS {
	return programFS{name: name, path: path}
}

func (p programFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	switch name {
	case ".":
		return &programDir{fs: p}, nil
	case p.name:
		return os.Open(p.path)
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// programDir is the root directory of a programFS.
type programDir struct {
	fs   programFS
	done bool
}

func (d *programDir) Stat() (fs.FileInfo, error) { return rootInfo{}, nil }

func (d *programDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: ".", Err: fs.ErrInvalid}
}

func (d *programDir) Close() error { return nil }

func (d *programDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.done {
		if n > 0 {
			return nil, io.EOF
		}
		return nil, nil
	}
	d.done = true

	info, err := os.Stat(d.fs.path)
	if err != nil {
		return nil, err
	}
	return []fs.DirEntry{fs.FileInfoToDirEntry(fileInfo{FileInfo: info, name: d.fs.name})}, nil
}

type rootInfo struct{}

func (rootInfo) Name() string       { return "." }
func (rootInfo) Size() int64        { return 0 }
func (rootInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (rootInfo) ModTime() time.Time { return time.Time{} }
func (rootInfo) IsDir() bool        { return true }
func (rootInfo) Sys() any           { return nil }

// fileInfo reports the program under its guest name, read-only.
type fileInfo struct {
	fs.FileInfo
	name string
}

func (f fileInfo) Name() string      { return f.name }
func (f fileInfo) Mode() fs.FileMode { return f.FileInfo.Mode() &^ 0o222 }
