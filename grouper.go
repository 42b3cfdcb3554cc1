// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import "github.com/cockroachdb/hashmerge/internal/base"

// GrouperStats holds counts of the runs seen by a RunGrouper.
type GrouperStats struct {
	// Emitted is the number of runs returned by Next.
	Emitted int64
	// Singletons is the number of runs of a single value.
	Singletons int64
	// Filtered is the number of runs of two or more values dropped because
	// none of their members was in the new-hash set.
	Filtered int64
}

// RunGrouper partitions a stream of hash values ordered by masked key into
// maximal runs of equal masked key, and returns the runs worth examining: a
// run must have at least two members and, if a new-hash set is in use, at
// least one member in that set. Within a run, values keep their order in the
// stream.
type RunGrouper struct {
	src       Source[base.HashValue]
	mask      base.SortMask
	newHashes *base.HashSet

	// pending is the first value of the next run, read ahead while closing
	// the previous run.
	pending    base.HashValue
	hasPending bool
	done       bool

	// run is reused across calls to Next.
	run   []base.HashValue
	stats GrouperStats
}

// NewRunGrouper returns a RunGrouper over src. A nil or empty newHashes
// disables filtering.
func NewRunGrouper(
	src Source[base.HashValue], mask base.SortMask, newHashes *base.HashSet,
) *RunGrouper {
	return &RunGrouper{
		src:       src,
		mask:      mask,
		newHashes: newHashes,
	}
}

// Next returns the next candidate run. The returned slice is only valid until
// the next call to Next. It returns false once the stream is exhausted or has
// failed; Err distinguishes the two.
func (g *RunGrouper) Next() ([]base.HashValue, bool) {
	for {
		run, ok := g.nextRun()
		if !ok {
			return nil, false
		}
		if len(run) < 2 {
			g.stats.Singletons++
			continue
		}
		if g.newHashes.Filtering() && !g.newHashes.ContainsAny(run) {
			g.stats.Filtered++
			continue
		}
		g.stats.Emitted++
		return run, true
	}
}

// nextRun returns the next maximal run of equal masked key, regardless of
// size.
func (g *RunGrouper) nextRun() ([]base.HashValue, bool) {
	if g.done {
		return nil, false
	}
	if !g.hasPending {
		v, ok := g.src.Next()
		if !ok {
			g.done = true
			return nil, false
		}
		g.pending, g.hasPending = v, true
	}
	g.run = append(g.run[:0], g.pending)
	g.hasPending = false
	key := g.mask.Apply(g.pending)
	for {
		v, ok := g.src.Next()
		if !ok {
			g.done = true
			if g.src.Err() != nil {
				// The run may be incomplete.
				return nil, false
			}
			break
		}
		if g.mask.Apply(v) != key {
			g.pending, g.hasPending = v, true
			break
		}
		g.run = append(g.run, v)
	}
	return g.run, true
}

// Err returns the error of the underlying source, if any.
func (g *RunGrouper) Err() error {
	return g.src.Err()
}

// Stats returns the run counts so far.
func (g *RunGrouper) Stats() GrouperStats {
	return g.stats
}
