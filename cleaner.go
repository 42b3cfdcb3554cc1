// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/hashmerge/internal/base"
	"github.com/cockroachdb/tokenbucket"
)

// partitionCleaner removes the partition files of a session once the merge
// tree has been closed. Deletions are paced according to
// Options.TargetByteDeletionRate so that dropping a large session does not
// saturate the disk.
type partitionCleaner struct {
	opts       *Options
	useLimiter bool
	limiter    tokenbucket.TokenBucket

	deleted      int64
	deletedBytes uint64
}

func makePartitionCleaner(opts *Options) partitionCleaner {
	c := partitionCleaner{opts: opts}
	if r := opts.TargetByteDeletionRate; r != 0 {
		c.useLimiter = true
		c.limiter.Init(tokenbucket.TokensPerSecond(r), tokenbucket.Tokens(r))
	}
	return c
}

// clean removes one partition file. A file that no longer exists is not an
// error; whoever removed it owned the deletion.
func (c *partitionCleaner) clean(num base.PartitionNum, path string, drained bool) error {
	var size uint64
	if fi, err := c.opts.FS.Stat(path); err != nil {
		if oserror.IsNotExist(err) {
			return nil
		}
	} else {
		size = uint64(fi.Size())
	}
	if c.useLimiter {
		c.maybePace(size)
	}
	err := c.opts.Cleaner.Clean(c.opts.FS, path)
	if oserror.IsNotExist(err) {
		return nil
	}
	if err != nil {
		err = errors.Wrapf(err, "hashmerge: cleaning partition %s", num)
	} else {
		c.deleted++
		c.deletedBytes += size
	}
	c.opts.EventListener.PartitionDeleted(PartitionDeleteInfo{
		Path:      path,
		Partition: num,
		Size:      size,
		Drained:   drained,
		Err:       err,
	})
	return err
}

// maybePace sleeps until the limiter has tokens for a file of the given
// size.
func (c *partitionCleaner) maybePace(size uint64) {
	if size == 0 {
		return
	}
	for {
		ok, d := c.limiter.TryToFulfill(tokenbucket.Tokens(size))
		if ok {
			break
		}
		time.Sleep(d)
	}
}
