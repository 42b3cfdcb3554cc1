// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/internal/base"
	"github.com/cockroachdb/hashmerge/internal/invariants"
)

// Reader iterates over the candidate groups of a merge session: the maximal
// runs of hash values sharing a masked key, restricted to runs of two or more
// members and, when a new-hash set is in use, to runs intersecting it.
//
// Groups are returned in ascending masked-key order. A Reader is not safe for
// concurrent use.
//
//	r, err := hashmerge.Open(dir, opts, partitions, mask, newHashes)
//	if err != nil {
//		return err
//	}
//	for r.Next() {
//		process(r.Group())
//	}
//	if err := r.Error(); err != nil {
//		...
//	}
//	return r.Close()
type Reader struct {
	dirname   string
	opts      *Options
	mask      base.SortMask
	newHashes *base.HashSet

	tree      *mergeTree
	readAhead *ReadAheadBuffer[HashValue]
	grouper   *RunGrouper
	cleaner   partitionCleaner

	group []HashValue
	err   error
	start crtime.Mono

	closed     bool
	closeCheck invariants.CloseChecker
}

// Next advances to the next group. It returns false once the merged stream
// is exhausted or a partition failed to read; Error distinguishes the two.
func (r *Reader) Next() bool {
	if r.closed || r.err != nil {
		r.group = nil
		return false
	}
	group, ok := r.grouper.Next()
	if !ok {
		r.group = nil
		if err := r.grouper.Err(); err != nil {
			r.err = err
			r.opts.EventListener.BackgroundError(err)
		}
		return false
	}
	r.group = group
	return true
}

// Group returns the raw hash values of the current group, in merge order.
// The returned slice is only valid until the next call to Next.
func (r *Reader) Group() []HashValue {
	return r.group
}

// Key returns the masked key shared by the current group.
func (r *Reader) Key() MaskedKey {
	if len(r.group) == 0 {
		return 0
	}
	return r.mask.Apply(r.group[0])
}

// Error returns the error that ended iteration, if any.
func (r *Reader) Error() error {
	return r.err
}

// Metrics returns metrics for the session.
func (r *Reader) Metrics() *Metrics {
	m := &Metrics{}
	m.Records = r.tree.records.Load()
	gs := r.grouper.Stats()
	m.Groups.Emitted = gs.Emitted
	m.Groups.Singletons = gs.Singletons
	m.Groups.Filtered = gs.Filtered
	m.Tree.Partitions = len(r.tree.readers)
	m.Tree.Depth = r.tree.depth
	m.Tree.Nodes = r.tree.nodes
	m.ReadAhead = r.readAhead.Stats()
	m.Cleaner.Deleted = r.cleaner.deleted
	m.Cleaner.DeletedBytes = r.cleaner.deletedBytes
	return m
}

// Close ends the session. It stops the read-ahead fill, closes every
// partition and then deletes all partition files, whether or not they were
// read to the end. It is not valid to call any method on the Reader after
// Close, other than Metrics.
func (r *Reader) Close() error {
	if r.closed {
		// Panics in invariant builds.
		r.closeCheck.Close()
		return ErrClosed
	}
	r.closeCheck.Close()
	r.closed = true

	// The fill goroutine reads from the tree, so it must be stopped before
	// the tree is closed.
	err := r.readAhead.Close()
	err = errors.CombineErrors(err, r.tree.close())

	// Deletion is the final step and happens even if closing failed.
	for _, pr := range r.tree.readers {
		if cerr := r.cleaner.clean(pr.num, pr.path, pr.drained()); cerr != nil {
			r.opts.EventListener.BackgroundError(cerr)
			err = errors.CombineErrors(err, cerr)
		}
	}

	r.opts.EventListener.SessionClosed(SessionCloseInfo{
		Duration:  r.start.Elapsed(),
		Groups:    r.grouper.Stats().Emitted,
		Records:   r.tree.records.Load(),
		Exhausted: r.tree.exhausted.Load(),
		Err:       errors.CombineErrors(r.err, err),
	})
	return err
}
