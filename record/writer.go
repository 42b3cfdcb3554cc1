// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/internal/base"
	"github.com/cockroachdb/hashmerge/vfs"
)

// Writer writes hash values to an underlying io.Writer.
type Writer struct {
	w     io.Writer
	close func() error
	buf   [blockSize]byte
	n     int
	count int64
	err   error
}

// NewWriter returns a new Writer. The caller retains ownership of w.
func NewWriter(w io.Writer, c base.Compression) (*Writer, error) {
	cw, closeFn, err := newCompressor(w, c)
	if err != nil {
		return nil, err
	}
	return &Writer{w: cw, close: closeFn}, nil
}

// Add appends v.
func (w *Writer) Add(v base.HashValue) error {
	if w.err != nil {
		return w.err
	}
	if w.n+RecordSize > len(w.buf) {
		if err := w.flush(); err != nil {
			return err
		}
	}
	binary.LittleEndian.PutUint64(w.buf[w.n:], uint64(v))
	w.n += RecordSize
	w.count++
	return nil
}

// Count returns the number of values added.
func (w *Writer) Count() int64 {
	return w.count
}

func (w *Writer) flush() error {
	if w.n == 0 {
		return nil
	}
	if _, err := w.w.Write(w.buf[:w.n]); err != nil {
		w.err = errors.Wrap(err, "hashmerge/record: write failed")
		return w.err
	}
	w.n = 0
	return nil
}

// Close flushes buffered values and finishes the compressed stream, if any.
// It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.close(); err != nil {
		w.err = errors.Wrap(err, "hashmerge/record: finishing stream")
		return w.err
	}
	w.err = errors.New("hashmerge/record: closed Writer")
	return nil
}

// WriteFile creates path on fs and writes values to it, replacing any
// existing file.
func WriteFile(fs vfs.FS, path string, c base.Compression, values []base.HashValue) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	w, err := NewWriter(f, c)
	if err != nil {
		return errors.CombineErrors(err, f.Close())
	}
	for _, v := range values {
		if err := w.Add(v); err != nil {
			return errors.CombineErrors(err, f.Close())
		}
	}
	if err := w.Close(); err != nil {
		return errors.CombineErrors(err, f.Close())
	}
	if err := f.Sync(); err != nil {
		return errors.CombineErrors(err, f.Close())
	}
	return f.Close()
}

// ReadFile reads every value of the partition at path.
func ReadFile(fs vfs.FS, path string, c base.Compression) ([]base.HashValue, error) {
	f, err := fs.Open(path, vfs.SequentialReadsOption)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := NewReader(f, c)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var values []base.HashValue
	for {
		v, err := r.Next()
		if err == io.EOF {
			return values, nil
		} else if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
}
