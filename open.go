// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/internal/base"
)

// Open opens a merge session over the sorted partition files 0 through
// partitions-1 in dirname. Each partition holds hash values sorted by masked
// key; Open builds the merge tree over them, starts the read-ahead fill and
// returns a Reader positioned before the first group.
//
// newHashes restricts the reported groups to those with at least one member
// in the set. A nil or empty set reports every group of two or more members.
//
// On success the session owns the partition files and deletes them on Close.
// If Open fails, the files opened so far are closed and nothing is deleted.
func Open(
	dirname string, opts *Options, partitions int, mask SortMask, newHashes *HashSet,
) (_ *Reader, err error) {
	// Make a copy of the options so that we don't mutate the passed in options.
	opts = opts.Clone().EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if partitions <= 0 {
		return nil, errors.Errorf("hashmerge: partition count (%d) must be positive",
			errors.Safe(partitions))
	}

	info := SessionInfo{
		Dir:        dirname,
		Partitions: partitions,
		Mask:       mask,
		Filtered:   newHashes.Filtering(),
	}
	defer func() {
		if err != nil {
			info.Err = err
			opts.EventListener.SessionOpened(info)
		}
	}()

	start := crtime.NowMono()
	readers := make([]*partitionReader, 0, partitions)
	for i := 0; i < partitions; i++ {
		num := base.PartitionNum(i)
		path := opts.FS.PathJoin(dirname, opts.PartitionFilename(num))
		r, err := openPartitionReader(opts.FS, path, num, mask, opts.Compression)
		if err != nil {
			for _, r := range readers {
				err = errors.CombineErrors(err, r.close())
			}
			return nil, err
		}
		readers = append(readers, r)
	}

	tree := newMergeTree(readers, opts.CompareUnit)
	if err := tree.Err(); err != nil {
		// A partition failed while priming the tree. Surface the failure
		// now rather than as an empty stream.
		return nil, errors.CombineErrors(err, tree.close())
	}
	info.Depth = tree.depth

	r := &Reader{
		dirname:   dirname,
		opts:      opts,
		mask:      mask,
		newHashes: newHashes,
		tree:      tree,
		cleaner:   makePartitionCleaner(opts),
		start:     start,
	}
	r.readAhead = NewReadAheadBuffer[HashValue](tree, opts.BufferElements, opts.ReadAheadWaitLatency)
	if err := r.readAhead.Err(); err != nil {
		// The first buffer is filled synchronously. With a single partition
		// this is also where the partition is primed.
		err = errors.CombineErrors(err, r.readAhead.Close())
		return nil, errors.CombineErrors(err, tree.close())
	}
	r.grouper = NewRunGrouper(r.readAhead, mask, newHashes)
	opts.EventListener.SessionOpened(info)
	return r, nil
}
