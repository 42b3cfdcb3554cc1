// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"

	"github.com/cockroachdb/swiss"
)

// HashValue is an opaque 64-bit content fingerprint. It is stored on disk as
// an 8-byte signed little-endian integer.
type HashValue = int64

// MaskedKey is the portion of a HashValue selected by a SortMask. Masked keys
// compare as signed 64-bit integers, which is the order the partitions were
// sorted in.
type MaskedKey = int64

// SortMask selects the bits of a HashValue that form its comparison and
// grouping key. A SortMask is fixed for the lifetime of a merge session.
type SortMask int64

// FullMask selects every bit of a HashValue.
const FullMask SortMask = -1

// Apply returns the masked key of v.
func (m SortMask) Apply(v HashValue) MaskedKey {
	return v & int64(m)
}

// String implements fmt.Stringer.
func (m SortMask) String() string {
	return fmt.Sprintf("%#016x", uint64(m))
}

// HashSet is a set of hash values. It is used as the NewHashSet filter of a
// merge session: the set of fingerprints introduced since the previous pass.
//
// A nil or empty HashSet means "no filter". HashSet is not safe for
// concurrent mutation, but concurrent calls to Contains are safe once the set
// is no longer modified.
type HashSet struct {
	m *swiss.Map[HashValue, struct{}]
}

// MakeHashSet returns a set containing the given values.
func MakeHashSet(values ...HashValue) *HashSet {
	s := &HashSet{m: swiss.New[HashValue, struct{}](len(values))}
	for _, v := range values {
		s.m.Put(v, struct{}{})
	}
	return s
}

// Add inserts v into the set.
func (s *HashSet) Add(v HashValue) {
	s.m.Put(v, struct{}{})
}

// Contains returns true if v is in the set. A nil set contains nothing.
func (s *HashSet) Contains(v HashValue) bool {
	if s == nil {
		return false
	}
	_, ok := s.m.Get(v)
	return ok
}

// Len returns the number of values in the set.
func (s *HashSet) Len() int {
	if s == nil {
		return 0
	}
	return s.m.Len()
}

// Filtering returns true if the set restricts which runs are reported, i.e.
// it is non-nil and non-empty.
func (s *HashSet) Filtering() bool {
	return s.Len() > 0
}

// ContainsAny returns true if any of values is in the set.
func (s *HashSet) ContainsAny(values []HashValue) bool {
	for _, v := range values {
		if s.Contains(v) {
			return true
		}
	}
	return false
}
