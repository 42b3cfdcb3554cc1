// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import "github.com/cockroachdb/hashmerge/internal/base"

// HashValue exports the base.HashValue type.
type HashValue = base.HashValue

// MaskedKey exports the base.MaskedKey type.
type MaskedKey = base.MaskedKey

// SortMask exports the base.SortMask type.
type SortMask = base.SortMask

// FullMask exports the base.FullMask constant.
const FullMask = base.FullMask

// HashSet exports the base.HashSet type.
type HashSet = base.HashSet

// MakeHashSet exports the base.MakeHashSet function.
func MakeHashSet(values ...HashValue) *HashSet {
	return base.MakeHashSet(values...)
}

// PartitionNum exports the base.PartitionNum type.
type PartitionNum = base.PartitionNum

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports the base.DefaultLogger value.
var DefaultLogger = base.DefaultLogger

// Cleaner exports the base.Cleaner type.
type Cleaner = base.Cleaner

// DeleteCleaner exports the base.DeleteCleaner type.
type DeleteCleaner = base.DeleteCleaner

// ArchiveCleaner exports the base.ArchiveCleaner type.
type ArchiveCleaner = base.ArchiveCleaner

// Compression exports the base.Compression type.
type Compression = base.Compression

// Exported Compression constants.
const (
	DefaultCompression = base.DefaultCompression
	NoCompression      = base.NoCompression
	SnappyCompression  = base.SnappyCompression
	ZstdCompression    = base.ZstdCompression
	MinLZCompression   = base.MinLZCompression
)

// ErrCorruption is a marker to indicate that data in a partition file is
// malformed.
var ErrCorruption = base.ErrCorruption

// IsCorruptionError returns true if the given error indicates corruption.
func IsCorruptionError(err error) bool {
	return base.IsCorruptionError(err)
}

// ErrClosed is returned when a closed Reader is used.
var ErrClosed = base.ErrClosed

// MakePartitionFilename exports the base.MakePartitionFilename function.
func MakePartitionFilename(pn PartitionNum) string {
	return base.MakePartitionFilename(pn)
}
