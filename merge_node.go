// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/internal/base"
)

// mergeNode merges a small, fixed group of sources into one stream ordered
// by masked key.
//
// Each read scans the last key of every child and selects the minimum. This
// is O(fan-in) per value rather than O(log fan-in) with a heap, which is the
// better trade for the small fan-in used here; depth is handled by stacking
// nodes into a tree rather than by widening a single node.
//
// When several children hold the same minimal key, the child with the lowest
// index wins. Since children are ordered by partition number, values with
// equal keys are emitted in partition order, and in file order within a
// partition.
type mergeNode struct {
	children []mergeSource
	// keys[i] is the masked key of children[i].current(), valid if live[i].
	keys []base.MaskedKey
	live []bool
	cur  base.HashValue
	// readErr is the first error returned by a child. Once set, the node is
	// exhausted.
	readErr error
}

var _ mergeSource = (*mergeNode)(nil)

// newMergeNode builds a node over children and primes it by reading the
// first key of every child.
func newMergeNode(children []mergeSource) *mergeNode {
	n := &mergeNode{
		children: children,
		keys:     make([]base.MaskedKey, len(children)),
		live:     make([]bool, len(children)),
	}
	for i, c := range children {
		n.keys[i], n.live[i] = c.read()
		if !n.live[i] && n.readErr == nil {
			n.readErr = c.err()
		}
	}
	return n
}

func (n *mergeNode) read() (base.MaskedKey, bool) {
	if n.readErr != nil {
		return 0, false
	}
	minIndex := -1
	var minKey base.MaskedKey
	for i := range n.keys {
		if n.live[i] && (minIndex < 0 || n.keys[i] < minKey) {
			minIndex, minKey = i, n.keys[i]
		}
	}
	if minIndex < 0 {
		return 0, false
	}
	c := n.children[minIndex]
	n.cur = c.current()
	// Advance only the child that was consumed.
	n.keys[minIndex], n.live[minIndex] = c.read()
	if !n.live[minIndex] {
		// The value selected above is still valid; a failure surfaces on the
		// next read.
		n.readErr = c.err()
	}
	return minKey, true
}

func (n *mergeNode) current() base.HashValue {
	return n.cur
}

func (n *mergeNode) err() error {
	return n.readErr
}

// close closes every child, returning the combined errors.
func (n *mergeNode) close() error {
	var err error
	for _, c := range n.children {
		err = errors.CombineErrors(err, c.close())
	}
	return err
}
