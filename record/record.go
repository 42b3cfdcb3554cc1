// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record reads and writes partition files: flat sequences of hash
// values, each stored as an 8-byte signed little-endian integer.
//
// When reading, call Next to obtain the next value. Next will return io.EOF
// when there are no more values. A file whose length is not a multiple of the
// record size is malformed: the trailing partial record is reported as a
// corruption error rather than dropped, since silently skipping it could hide
// or spuriously match a hash value.
//
// When writing, call Add for each value and Close to flush.
//
// The stream may optionally be compressed (snappy framing, zstd or MinLZ). The
// compression is a session-wide setting and is not recorded in the file; with
// NoCompression the file is exactly the raw record sequence.
//
// Neither Readers or Writers are safe to use concurrently.
//
// Example code:
//
//	func read(r io.Reader) ([]int64, error) {
//		var vs []int64
//		records, err := record.NewReader(r, base.NoCompression)
//		if err != nil {
//			return nil, err
//		}
//		defer records.Close()
//		for {
//			v, err := records.Next()
//			if err == io.EOF {
//				break
//			} else if err != nil {
//				return nil, err
//			}
//			vs = append(vs, v)
//		}
//		return vs, nil
//	}
package record

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/internal/base"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minlz"
)

// RecordSize is the encoded size of one hash value.
const RecordSize = 8

// blockSize is the size of the read and write buffers. It is a multiple of
// RecordSize.
const blockSize = 32 << 10

func newDecompressor(r io.Reader, c base.Compression) (io.Reader, func(), error) {
	switch c {
	case base.DefaultCompression, base.NoCompression:
		return r, func() {}, nil
	case base.SnappyCompression:
		return snappy.NewReader(r), func() {}, nil
	case base.ZstdCompression:
		// A single decoder goroutine keeps the read path synchronous; the
		// read-ahead buffer provides the overlap.
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, errors.Wrap(err, "hashmerge/record: creating zstd decoder")
		}
		return d, d.Close, nil
	case base.MinLZCompression:
		return minlz.NewReader(r), func() {}, nil
	default:
		return nil, nil, errors.Errorf("hashmerge/record: unknown compression %d", errors.Safe(int(c)))
	}
}

func newCompressor(w io.Writer, c base.Compression) (io.Writer, func() error, error) {
	switch c {
	case base.DefaultCompression, base.NoCompression:
		return w, func() error { return nil }, nil
	case base.SnappyCompression:
		sw := snappy.NewBufferedWriter(w)
		return sw, sw.Close, nil
	case base.ZstdCompression:
		e, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, nil, errors.Wrap(err, "hashmerge/record: creating zstd encoder")
		}
		return e, e.Close, nil
	case base.MinLZCompression:
		mw := minlz.NewWriter(w)
		return mw, mw.Close, nil
	default:
		return nil, nil, errors.Errorf("hashmerge/record: unknown compression %d", errors.Safe(int(c)))
	}
}
