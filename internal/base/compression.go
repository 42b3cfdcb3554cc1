// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

// Compression is the stream compression applied to a partition file. It is a
// property of the session: every partition of a session uses the same
// compression, and nothing about it is recorded in the file.
type Compression int

// The available compression types.
const (
	DefaultCompression Compression = iota
	NoCompression
	SnappyCompression
	ZstdCompression
	MinLZCompression
	NCompression
)

func (c Compression) String() string {
	switch c {
	case DefaultCompression:
		return "Default"
	case NoCompression:
		return "NoCompression"
	case SnappyCompression:
		return "Snappy"
	case ZstdCompression:
		return "ZSTD"
	case MinLZCompression:
		return "MinLZ"
	default:
		return "Unknown"
	}
}

// ParseCompression parses the output of Compression.String.
func ParseCompression(s string) (Compression, bool) {
	for c := DefaultCompression; c < NCompression; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}
