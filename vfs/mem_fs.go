// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
)

// NewMem returns a new memory-backed FS implementation.
func NewMem() *MemFS {
	return &MemFS{
		nodes: map[string]*memNode{"": {isDir: true}},
	}
}

// MemFS implements FS. Paths are slash separated and relative to the root;
// a leading slash is ignored.
type MemFS struct {
	mu sync.Mutex
	// nodes maps every cleaned path, directories included, to its node. The
	// root directory is "".
	nodes map[string]*memNode

	// strictRemove makes Remove fail for a file that still has open handles.
	// Partition deletion must never race with a reader, and tests use this
	// mode to catch it.
	strictRemove bool
}

var _ FS = &MemFS{}

// memNode holds a file's data, or marks a directory.
type memNode struct {
	isDir bool
	refs  atomic.Int32

	// mu guards data and modTime.
	mu      sync.Mutex
	data    []byte
	modTime time.Time
}

// memKey returns the key of name in MemFS.nodes.
func memKey(name string) string {
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

// memParent returns the key of the directory holding key.
func memParent(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return ""
}

func notExist(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: oserror.ErrNotExist}
}

// UseStrictRemove configures whether removing a file that is still open
// returns an error. Strict removal defaults to off, matching unix semantics.
func (y *MemFS) UseStrictRemove(strict bool) {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.strictRemove = strict
}

// children returns the sorted names of the entries of directory key. y.mu
// must be held.
func (y *MemFS) children(key string) []string {
	var names []string
	for k := range y.nodes {
		if k != "" && memParent(k) == key {
			names = append(names, path.Base(k))
		}
	}
	slices.Sort(names)
	return names
}

// String dumps the contents of the MemFS: one line per entry, sizes on the
// left, directories suffixed with a slash.
func (y *MemFS) String() string {
	y.mu.Lock()
	defer y.mu.Unlock()

	var b strings.Builder
	b.WriteString("          /\n")
	var dump func(dir string, depth int)
	dump = func(dir string, depth int) {
		for _, name := range y.children(dir) {
			key := path.Join(dir, name)
			n := y.nodes[key]
			indent := strings.Repeat("  ", depth)
			if n.isDir {
				fmt.Fprintf(&b, "          %s%s/\n", indent, name)
				dump(key, depth+1)
				continue
			}
			n.mu.Lock()
			fmt.Fprintf(&b, "%8d  %s%s\n", len(n.data), indent, name)
			n.mu.Unlock()
		}
	}
	dump("", 1)
	return b.String()
}

// Create implements FS.Create.
func (y *MemFS) Create(name string) (File, error) {
	key := memKey(name)
	if key == "" {
		return nil, errors.New("hashmerge/vfs: empty file name")
	}
	y.mu.Lock()
	defer y.mu.Unlock()
	if parent, ok := y.nodes[memParent(key)]; !ok || !parent.isDir {
		return nil, notExist("create", name)
	}
	if n, ok := y.nodes[key]; ok && n.isDir {
		return nil, &os.PathError{Op: "create", Path: name, Err: errors.New("is a directory")}
	}
	n := &memNode{modTime: time.Now()}
	y.nodes[key] = n
	n.refs.Add(1)
	return &memFile{name: path.Base(key), n: n, write: true}, nil
}

// Open implements FS.Open.
func (y *MemFS) Open(name string, opts ...OpenOption) (File, error) {
	key := memKey(name)
	y.mu.Lock()
	n, ok := y.nodes[key]
	y.mu.Unlock()
	if !ok {
		return nil, notExist("open", name)
	}
	n.refs.Add(1)
	f := &memFile{name: path.Base("/" + key), n: n}
	for _, opt := range opts {
		opt.Apply(f)
	}
	return f, nil
}

// Remove implements FS.Remove.
func (y *MemFS) Remove(name string) error {
	key := memKey(name)
	if key == "" {
		return errors.New("hashmerge/vfs: cannot remove the root")
	}
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.nodes[key]
	switch {
	case !ok:
		return notExist("remove", name)
	case y.strictRemove && n.refs.Load() > 0:
		return &os.PathError{Op: "remove", Path: name, Err: oserror.ErrInvalid}
	case n.isDir && len(y.children(key)) > 0:
		return &os.PathError{Op: "remove", Path: name, Err: oserror.ErrExist}
	}
	delete(y.nodes, key)
	return nil
}

// Rename implements FS.Rename. Renaming a directory moves everything
// beneath it.
func (y *MemFS) Rename(oldname, newname string) error {
	from, to := memKey(oldname), memKey(newname)
	if from == "" || to == "" {
		return errors.New("hashmerge/vfs: empty file name")
	}
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.nodes[from]
	if !ok {
		return notExist("rename", oldname)
	}
	if parent, ok := y.nodes[memParent(to)]; !ok || !parent.isDir {
		return notExist("rename", newname)
	}
	if n.isDir && strings.HasPrefix(to+"/", from+"/") {
		return &os.PathError{Op: "rename", Path: newname, Err: oserror.ErrInvalid}
	}
	moved := map[string]*memNode{to: n}
	if n.isDir {
		prefix := from + "/"
		for k, c := range y.nodes {
			if strings.HasPrefix(k, prefix) {
				moved[to+"/"+k[len(prefix):]] = c
			}
		}
	}
	for k := range y.nodes {
		if k == from || strings.HasPrefix(k, from+"/") {
			delete(y.nodes, k)
		}
	}
	for k, c := range moved {
		y.nodes[k] = c
	}
	return nil
}

// MkdirAll implements FS.MkdirAll.
func (y *MemFS) MkdirAll(dirname string, perm os.FileMode) error {
	key := memKey(dirname)
	y.mu.Lock()
	defer y.mu.Unlock()
	for i := 0; key != ""; {
		j := strings.IndexByte(key[i:], '/')
		prefix := key
		if j >= 0 {
			prefix = key[:i+j]
		}
		if n, ok := y.nodes[prefix]; !ok {
			y.nodes[prefix] = &memNode{isDir: true, modTime: time.Now()}
		} else if !n.isDir {
			return &os.PathError{Op: "mkdir", Path: dirname, Err: errors.New("not a directory")}
		}
		if j < 0 {
			break
		}
		i += j + 1
	}
	return nil
}

// List implements FS.List.
func (y *MemFS) List(dirname string) ([]string, error) {
	key := memKey(dirname)
	y.mu.Lock()
	defer y.mu.Unlock()
	if n, ok := y.nodes[key]; !ok || !n.isDir {
		return nil, notExist("open", dirname)
	}
	return y.children(key), nil
}

// Stat implements FS.Stat.
func (y *MemFS) Stat(name string) (os.FileInfo, error) {
	key := memKey(name)
	y.mu.Lock()
	n, ok := y.nodes[key]
	y.mu.Unlock()
	if !ok {
		return nil, notExist("stat", name)
	}
	return n.stat(path.Base("/" + key)), nil
}

// PathBase implements FS.PathBase.
func (*MemFS) PathBase(p string) string {
	return path.Base(p)
}

// PathJoin implements FS.PathJoin.
func (*MemFS) PathJoin(elem ...string) string {
	return path.Join(elem...)
}

// PathDir implements FS.PathDir.
func (*MemFS) PathDir(p string) string {
	return path.Dir(p)
}

// OpenHandles returns the number of open handles on the named file.
func (y *MemFS) OpenHandles(name string) (int32, error) {
	y.mu.Lock()
	n, ok := y.nodes[memKey(name)]
	y.mu.Unlock()
	if !ok {
		return 0, notExist("open", name)
	}
	return n.refs.Load(), nil
}

func (n *memNode) stat(name string) os.FileInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return &memFileInfo{
		name:    name,
		size:    int64(len(n.data)),
		modTime: n.modTime,
		isDir:   n.isDir,
	}
}

// memFile is a handle on a memNode. Files returned by Create are write-only
// and files returned by Open are read-only.
type memFile struct {
	name  string
	n     *memNode
	off   int
	write bool
}

var _ File = (*memFile)(nil)

func (f *memFile) Close() error {
	if refs := f.n.refs.Add(-1); refs < 0 {
		panic(fmt.Sprintf("hashmerge/vfs: close of unopened file: %d", refs))
	}
	// Any use after Close panics.
	f.n = nil
	return nil
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.write || f.n.isDir {
		return 0, errors.Newf("hashmerge/vfs: %s is not readable", f.name)
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if f.off >= len(f.n.data) {
		return 0, io.EOF
	}
	n := copy(p, f.n.data[f.off:])
	f.off += n
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if !f.write {
		return 0, errors.Newf("hashmerge/vfs: %s is not writable", f.name)
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	// Create truncates and writes only append, so off is always the end.
	f.n.data = append(f.n.data, p...)
	f.n.modTime = time.Now()
	f.off += len(p)
	return len(p), nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	return f.n.stat(f.name), nil
}

func (f *memFile) Sync() error {
	return nil
}

// memFileInfo implements os.FileInfo for a memFile.
type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

var _ os.FileInfo = (*memFileInfo)(nil)

func (f *memFileInfo) Name() string       { return f.name }
func (f *memFileInfo) Size() int64        { return f.size }
func (f *memFileInfo) ModTime() time.Time { return f.modTime }
func (f *memFileInfo) IsDir() bool        { return f.isDir }
func (f *memFileInfo) Sys() interface{}   { return nil }

func (f *memFileInfo) Mode() os.FileMode {
	if f.isDir {
		return os.ModeDir | 0755
	}
	return 0644
}
