// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"time"

	"github.com/cockroachdb/redact"
)

// SessionInfo contains the info for a session opened event.
type SessionInfo struct {
	// Dir is the directory holding the partition files.
	Dir string
	// Partitions is the number of partitions being merged.
	Partitions int
	// Depth is the number of merge levels above the partitions.
	Depth int
	// Mask is the sort mask of the session.
	Mask SortMask
	// Filtered is true if only runs intersecting a new-hash set are reported.
	Filtered bool
	Err      error
}

func (i SessionInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i SessionInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("session open error: %s", i.Err)
		return
	}
	w.Printf("session opened: %d partitions, depth %d, mask %s",
		redact.Safe(i.Partitions), redact.Safe(i.Depth), redact.Safe(i.Mask.String()))
	if i.Filtered {
		w.Printf(", filtered")
	}
}

// PartitionDeleteInfo contains the info for a partition deletion event.
type PartitionDeleteInfo struct {
	Path      string
	Partition PartitionNum
	// Size is the size of the file before deletion, or 0 if it could not be
	// determined.
	Size uint64
	// Drained is true if the partition's reader observed end-of-data before
	// the file was deleted. It is false when the session was closed early.
	Drained bool
	Err     error
}

func (i PartitionDeleteInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i PartitionDeleteInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("partition delete error: %s: %s", i.Partition, i.Err)
		return
	}
	w.Printf("partition deleted: %s", i.Partition)
	if !i.Drained {
		w.Printf(" (undrained)")
	}
}

// SessionCloseInfo contains the info for a session closed event.
type SessionCloseInfo struct {
	Duration time.Duration
	// Groups is the number of candidate groups returned.
	Groups int64
	// Records is the number of hash values merged.
	Records int64
	// Exhausted is true if the merged stream was read to the end.
	Exhausted bool
	Err       error
}

func (i SessionCloseInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i SessionCloseInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	if i.Err != nil {
		w.Printf("session closed with error: %s", i.Err)
		return
	}
	w.Printf("session closed: %d records, %d groups in %.1fs",
		redact.Safe(i.Records), redact.Safe(i.Groups), redact.Safe(i.Duration.Seconds()))
	if !i.Exhausted {
		w.Printf(" (early)")
	}
}

// EventListener contains a set of functions that will be invoked when various
// significant session events occur. Note that the functions should not run
// for an excessive amount of time as they are invoked synchronously by the
// session and may block continued progress.
type EventListener struct {
	// BackgroundError is invoked whenever an error occurs in the read-ahead
	// fill or during partition cleanup.
	BackgroundError func(error)

	// SessionOpened is invoked after a session has been opened (or failed to
	// open).
	SessionOpened func(SessionInfo)

	// PartitionDeleted is invoked after a partition file has been deleted.
	PartitionDeleted func(PartitionDeleteInfo)

	// SessionClosed is invoked after a session has been closed and all of its
	// partitions cleaned.
	SessionClosed func(SessionCloseInfo)
}

// EnsureDefaults ensures that background error events are logged to the
// specified logger if a handler for those events hasn't been otherwise
// specified. Ensure all handlers are non-nil so that we don't have to check
// for nil-ness before invoking.
func (l *EventListener) EnsureDefaults(logger Logger) {
	if l.BackgroundError == nil {
		if logger != nil {
			l.BackgroundError = func(err error) {
				logger.Errorf("background error: %s", err)
			}
		} else {
			l.BackgroundError = func(error) {}
		}
	}
	if l.SessionOpened == nil {
		l.SessionOpened = func(info SessionInfo) {}
	}
	if l.PartitionDeleted == nil {
		l.PartitionDeleted = func(info PartitionDeleteInfo) {}
	}
	if l.SessionClosed == nil {
		l.SessionClosed = func(info SessionCloseInfo) {}
	}
}

// MakeLoggingEventListener creates an EventListener that logs all events to the
// specified logger.
func MakeLoggingEventListener(logger Logger) EventListener {
	if logger == nil {
		logger = DefaultLogger
	}

	return EventListener{
		BackgroundError: func(err error) {
			logger.Errorf("background error: %s", err)
		},
		SessionOpened: func(info SessionInfo) {
			logger.Infof("%s", info)
		},
		PartitionDeleted: func(info PartitionDeleteInfo) {
			logger.Infof("%s", info)
		},
		SessionClosed: func(info SessionCloseInfo) {
			logger.Infof("%s", info)
		},
	}
}

// TeeEventListener wraps two EventListeners, forwarding all events to both.
func TeeEventListener(a, b EventListener) EventListener {
	a.EnsureDefaults(nil)
	b.EnsureDefaults(nil)
	return EventListener{
		BackgroundError: func(err error) {
			a.BackgroundError(err)
			b.BackgroundError(err)
		},
		SessionOpened: func(info SessionInfo) {
			a.SessionOpened(info)
			b.SessionOpened(info)
		},
		PartitionDeleted: func(info PartitionDeleteInfo) {
			a.PartitionDeleted(info)
			b.PartitionDeleted(info)
		},
		SessionClosed: func(info SessionCloseInfo) {
			a.SessionClosed(info)
			b.SessionClosed(info)
		},
	}
}
