// Copyright 2020 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package errorfs wraps a vfs.FS and injects errors into its operations. It
// is used by tests to exercise failure paths of partition reads and
// deletions.
package errorfs

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/vfs"
)

// ErrInjected is the error returned by injectors in this package.
var ErrInjected = errors.New("injected error")

// Op describes the kind of operation an injector is consulted for.
type Op int

const (
	// OpRead is a read from an open file.
	OpRead Op = iota
	// OpOpen is an FS.Open call.
	OpOpen
	// OpRemove is an FS.Remove call.
	OpRemove
	// OpOther is any other operation.
	OpOther
)

// Injector injects errors into FS operations.
type Injector interface {
	MaybeError(op Op, path string) error
}

// OnIndex constructs an injector that returns an error on
// the (n+1)-th invocation of its MaybeError function for the given op. It
// may be passed to Wrap to inject an error into an FS.
func OnIndex(op Op, index int32) *InjectIndex {
	ii := &InjectIndex{op: op}
	ii.index.Store(index)
	return ii
}

// InjectIndex implements Injector, injecting an error at a specific index.
type InjectIndex struct {
	op    Op
	index atomic.Int32
}

// Index returns the index at which the error will be injected.
func (ii *InjectIndex) Index() int32 { return ii.index.Load() }

// MaybeError implements the Injector interface.
func (ii *InjectIndex) MaybeError(op Op, path string) error {
	if op != ii.op {
		return nil
	}
	if ii.index.Add(-1) == -1 {
		return errors.Wrapf(ErrInjected, "%s", errors.Safe(path))
	}
	return nil
}

// InjectorFunc implements Injector with a plain function.
type InjectorFunc func(op Op, path string) error

// MaybeError implements the Injector interface.
func (f InjectorFunc) MaybeError(op Op, path string) error { return f(op, path) }

// FS implements vfs.FS, injecting errors into
// its operations.
type FS struct {
	fs  vfs.FS
	inj Injector
}

var _ vfs.FS = (*FS)(nil)

// Wrap wraps an existing vfs.FS implementation, returning a new
// vfs.FS implementation that shadows operations to the provided FS.
// It uses the provided Injector for deciding when to inject errors.
// If an error is injected, FS propagates the error instead of
// shadowing the operation.
func Wrap(fs vfs.FS, inj Injector) *FS {
	return &FS{
		fs:  fs,
		inj: inj,
	}
}

// Create implements FS.Create.
func (fs *FS) Create(name string) (vfs.File, error) {
	if err := fs.inj.MaybeError(OpOther, name); err != nil {
		return nil, err
	}
	return fs.fs.Create(name)
}

// Open implements FS.Open.
func (fs *FS) Open(name string, opts ...vfs.OpenOption) (vfs.File, error) {
	if err := fs.inj.MaybeError(OpOpen, name); err != nil {
		return nil, err
	}
	f, err := fs.fs.Open(name)
	if err != nil {
		return nil, err
	}
	ef := &errorFile{name: name, file: f, inj: fs.inj}
	for _, opt := range opts {
		opt.Apply(ef)
	}
	return ef, nil
}

// Remove implements FS.Remove.
func (fs *FS) Remove(name string) error {
	if err := fs.inj.MaybeError(OpRemove, name); err != nil {
		return err
	}
	return fs.fs.Remove(name)
}

// Rename implements FS.Rename.
func (fs *FS) Rename(oldname, newname string) error {
	if err := fs.inj.MaybeError(OpOther, oldname); err != nil {
		return err
	}
	return fs.fs.Rename(oldname, newname)
}

// MkdirAll implements FS.MkdirAll.
func (fs *FS) MkdirAll(dir string, perm os.FileMode) error {
	if err := fs.inj.MaybeError(OpOther, dir); err != nil {
		return err
	}
	return fs.fs.MkdirAll(dir, perm)
}

// List implements FS.List.
func (fs *FS) List(dir string) ([]string, error) {
	if err := fs.inj.MaybeError(OpOther, dir); err != nil {
		return nil, err
	}
	return fs.fs.List(dir)
}

// Stat implements FS.Stat.
func (fs *FS) Stat(name string) (os.FileInfo, error) {
	if err := fs.inj.MaybeError(OpOther, name); err != nil {
		return nil, err
	}
	return fs.fs.Stat(name)
}

// PathBase implements FS.PathBase.
func (fs *FS) PathBase(p string) string {
	return fs.fs.PathBase(p)
}

// PathJoin implements FS.PathJoin.
func (fs *FS) PathJoin(elem ...string) string {
	return fs.fs.PathJoin(elem...)
}

// PathDir implements FS.PathDir.
func (fs *FS) PathDir(p string) string {
	return fs.fs.PathDir(p)
}

type errorFile struct {
	name string
	file vfs.File
	inj  Injector
}

var _ io.Reader = (*errorFile)(nil)

func (f *errorFile) Close() error {
	// We don't inject errors during close as those calls should never fail in
	// practice.
	return f.file.Close()
}

func (f *errorFile) Read(p []byte) (int, error) {
	if err := f.inj.MaybeError(OpRead, f.name); err != nil {
		return 0, err
	}
	return f.file.Read(p)
}

func (f *errorFile) Write(p []byte) (int, error) {
	if err := f.inj.MaybeError(OpOther, f.name); err != nil {
		return 0, err
	}
	return f.file.Write(p)
}

func (f *errorFile) Stat() (os.FileInfo, error) {
	if err := f.inj.MaybeError(OpOther, f.name); err != nil {
		return nil, err
	}
	return f.file.Stat()
}

func (f *errorFile) Sync() error {
	if err := f.inj.MaybeError(OpOther, f.name); err != nil {
		return err
	}
	return f.file.Sync()
}
