// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"sync/atomic"

	"github.com/cockroachdb/hashmerge/internal/base"
	"github.com/cockroachdb/hashmerge/internal/invariants"
)

// mergeTree is a balanced hierarchy of mergeNodes over a set of partitions.
// Each level groups the level below into chunks of at most compareUnit
// sources, so a value passes through ceil(log_compareUnit(P)) nodes on its
// way to the root.
//
// The tree owns its partition readers. Closing the tree closes every node
// from the root down to the leaves; deleting the partition files is a
// separate, final step performed by the session once close has returned.
type mergeTree struct {
	// readers holds the leaves in partition order.
	readers []*partitionReader
	root    mergeSource
	depth   int
	nodes   int
	// records is the number of values produced at the root. It is written by
	// the read-ahead fill and read by Metrics.
	records atomic.Int64
	// exhausted is set once the root reported end of data.
	exhausted atomic.Bool

	closeCheck invariants.CloseChecker
}

// Source[base.HashValue] adapts the tree to the read-ahead buffer.
var _ Source[base.HashValue] = (*mergeTree)(nil)

// newMergeTree builds the tree. readers must be non-empty and compareUnit
// must be at least 2. Building the tree primes every merge node, which reads
// the first value of every partition.
func newMergeTree(readers []*partitionReader, compareUnit int) *mergeTree {
	if len(readers) == 0 || compareUnit < 2 {
		panic("hashmerge: invalid merge tree parameters")
	}
	t := &mergeTree{readers: readers}
	level := make([]mergeSource, len(readers))
	for i := range readers {
		level[i] = readers[i]
	}
	for len(level) > 1 {
		next := make([]mergeSource, 0, (len(level)+compareUnit-1)/compareUnit)
		for i := 0; i < len(level); i += compareUnit {
			j := min(i+compareUnit, len(level))
			if j-i == 1 {
				// A lone trailing source is promoted to the next level as is;
				// wrapping it would add a comparison without merging anything.
				next = append(next, level[i])
				continue
			}
			next = append(next, newMergeNode(level[i:j:j]))
			t.nodes++
		}
		level = next
		t.depth++
	}
	t.root = level[0]
	return t
}

// Next implements Source. It returns the next raw value in masked-key order.
func (t *mergeTree) Next() (base.HashValue, bool) {
	if _, ok := t.root.read(); !ok {
		t.exhausted.Store(true)
		return 0, false
	}
	t.records.Add(1)
	return t.root.current(), true
}

// Err implements Source.
func (t *mergeTree) Err() error {
	return t.root.err()
}

// drained returns true if every partition reader reached the end of its
// file.
func (t *mergeTree) drained() bool {
	for _, r := range t.readers {
		if !r.drained() {
			return false
		}
	}
	return true
}

// close cascades from the root to the leaves.
func (t *mergeTree) close() error {
	t.closeCheck.Close()
	return t.root.close()
}
