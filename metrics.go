// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
)

// Metrics holds metrics for a merge session.
type Metrics struct {
	// Records is the number of hash values produced by the merge tree.
	Records int64

	Groups struct {
		// Emitted is the number of candidate groups returned to the caller.
		Emitted int64
		// Singletons is the number of runs discarded for having a single
		// member.
		Singletons int64
		// Filtered is the number of runs of two or more members discarded
		// because none of their members were in the new-hash set.
		Filtered int64
	}

	Tree struct {
		// Partitions is the number of partitions merged.
		Partitions int
		// Depth is the number of merge levels above the partitions.
		Depth int
		// Nodes is the number of merge nodes in the tree.
		Nodes int
	}

	// ReadAhead holds the read-ahead buffer statistics.
	ReadAhead ReadAheadStats

	Cleaner struct {
		// Deleted is the number of partition files cleaned.
		Deleted int64
		// DeletedBytes is the total size of the partition files cleaned.
		DeletedBytes uint64
	}
}

func (m *Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m *Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("records: %s\n", crhumanize.Count(m.Records, crhumanize.Compact))
	w.Printf("groups: %s emitted, %s singletons, %s filtered\n",
		crhumanize.Count(m.Groups.Emitted, crhumanize.Compact),
		crhumanize.Count(m.Groups.Singletons, crhumanize.Compact),
		crhumanize.Count(m.Groups.Filtered, crhumanize.Compact))
	w.Printf("tree: %d partitions, %d nodes, depth %d\n",
		redact.Safe(m.Tree.Partitions), redact.Safe(m.Tree.Nodes), redact.Safe(m.Tree.Depth))
	w.Printf("read-ahead: %d fills, %d swaps, %s waiting\n",
		redact.Safe(m.ReadAhead.Fills), redact.Safe(m.ReadAhead.Swaps),
		redact.Safe(m.ReadAhead.WaitDuration))
	w.Printf("cleaned: %s (%s)\n",
		crhumanize.Count(m.Cleaner.Deleted, crhumanize.Compact),
		crhumanize.Bytes(m.Cleaner.DeletedBytes, crhumanize.Compact, crhumanize.OmitI))
}
