// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/internal/base"
	"github.com/cockroachdb/hashmerge/internal/invariants"
	"github.com/cockroachdb/hashmerge/record"
	"github.com/cockroachdb/hashmerge/vfs"
)

// mergeSource is a source of hash values ordered by masked key. It is
// implemented by partitionReader (the leaves of the merge tree) and
// mergeNode (the interior nodes).
type mergeSource interface {
	// read advances the source and returns the masked key of the new current
	// value. ok is false once the source is exhausted or has failed; it plays
	// the role of a sentinel key that is larger than every real key.
	read() (key base.MaskedKey, ok bool)
	// current returns the raw hash value whose masked key was returned by the
	// last successful read.
	current() base.HashValue
	// err returns the error that ended the source, if any.
	err() error
	// close releases the source and, transitively, everything beneath it.
	close() error
}

// partitionReader reads one sorted partition file. It owns the file handle
// but not the file: deleting the partition is left to the session, after
// the whole tree has been closed.
type partitionReader struct {
	num  base.PartitionNum
	path string
	mask base.SortMask

	file vfs.File
	rr   *record.Reader

	cur base.HashValue
	// count is the number of values read.
	count int64
	// exhausted is set once the record reader returned io.EOF or an error.
	exhausted bool
	readErr   error

	closeCheck invariants.CloseChecker
}

var _ mergeSource = (*partitionReader)(nil)

func openPartitionReader(
	fs vfs.FS, path string, num base.PartitionNum, mask base.SortMask, c base.Compression,
) (*partitionReader, error) {
	f, err := fs.Open(path, vfs.SequentialReadsOption)
	if err != nil {
		return nil, errors.Wrapf(err, "hashmerge: opening partition %s", num)
	}
	rr, err := record.NewReader(f, c)
	if err != nil {
		return nil, errors.CombineErrors(err, f.Close())
	}
	return &partitionReader{
		num:  num,
		path: path,
		mask: mask,
		file: f,
		rr:   rr,
	}, nil
}

func (r *partitionReader) read() (base.MaskedKey, bool) {
	if r.exhausted {
		return 0, false
	}
	v, err := r.rr.Next()
	if err != nil {
		r.exhausted = true
		if err != io.EOF {
			r.readErr = errors.Wrapf(err, "hashmerge: reading partition %s", r.num)
		}
		return 0, false
	}
	r.cur = v
	r.count++
	return r.mask.Apply(v), true
}

func (r *partitionReader) current() base.HashValue {
	return r.cur
}

func (r *partitionReader) err() error {
	return r.readErr
}

// drained returns true if the reader reached the end of its partition without
// error.
func (r *partitionReader) drained() bool {
	return r.exhausted && r.readErr == nil
}

func (r *partitionReader) close() error {
	r.closeCheck.Close()
	err := r.rr.Close()
	return errors.CombineErrors(err, r.file.Close())
}
