// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/internal/base"
)

// sourceReader remembers the last error returned by the reader beneath the
// decompressor, so that failures of the source can be told apart from
// malformed compressed data.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// Reader reads hash values from an underlying io.Reader.
type Reader struct {
	// r is the underlying reader, after decompression.
	r     io.Reader
	src   *sourceReader
	close func()
	// buf[begin:end] holds buffered, not yet returned bytes.
	buf        [blockSize]byte
	begin, end int
	// offset is the logical offset of buf[begin] in the stream.
	offset int64
	// err is the sticky error. Once set, every call to Next returns it.
	err error
}

// NewReader returns a new reader. The caller retains ownership of r and must
// close it after closing the Reader.
func NewReader(r io.Reader, c base.Compression) (*Reader, error) {
	src := &sourceReader{r: r}
	dr, closeFn, err := newDecompressor(src, c)
	if err != nil {
		return nil, err
	}
	return &Reader{r: dr, src: src, close: closeFn}, nil
}

// Next returns the next hash value. It returns io.EOF once every value has
// been read, and a corruption error if the stream ends in the middle of a
// record.
func (r *Reader) Next() (base.HashValue, error) {
	if r.end-r.begin < RecordSize {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	v := int64(binary.LittleEndian.Uint64(r.buf[r.begin:]))
	r.begin += RecordSize
	r.offset += RecordSize
	return v, nil
}

// Offset returns the number of bytes of the decompressed stream consumed by
// Next so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// fill reads from the underlying reader until at least one complete record is
// buffered.
func (r *Reader) fill() error {
	if r.err != nil {
		return r.err
	}
	n := copy(r.buf[:], r.buf[r.begin:r.end])
	r.begin, r.end = 0, n
	for r.end < RecordSize {
		m, err := r.r.Read(r.buf[r.end:])
		r.end += m
		if err == nil {
			continue
		}
		if r.end >= RecordSize {
			// Hand out what we have; the error is seen again on the next fill.
			break
		}
		if err == io.EOF {
			if r.end == 0 {
				r.err = io.EOF
			} else {
				r.err = base.CorruptionErrorf(
					"hashmerge/record: partition truncated: %d trailing bytes at offset %d",
					errors.Safe(r.end), errors.Safe(r.offset))
			}
		} else {
			r.err = errors.Wrapf(err, "hashmerge/record: reading at offset %d", errors.Safe(r.offset))
			if r.src.err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
				// The source read cleanly, so the decompressor rejected the
				// stream.
				r.err = base.MarkCorruptionError(r.err)
			}
		}
		return r.err
	}
	return nil
}

// Close releases the decompressor, if any. It does not close the underlying
// reader.
func (r *Reader) Close() error {
	if r.close != nil {
		r.close()
		r.close = nil
	}
	if r.err == nil {
		r.err = errors.New("hashmerge/record: closed Reader")
	}
	return nil
}
