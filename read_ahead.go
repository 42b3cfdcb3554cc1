// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"context"
	"runtime/pprof"
	"time"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/hashmerge/internal/invariants"
	"github.com/prometheus/client_golang/prometheus"
)

// Source is a sequential source of values. Next returns false once the
// source is exhausted or has failed; Err distinguishes the two.
type Source[T any] interface {
	Next() (T, bool)
	Err() error
}

// SliceSource is a Source over an in-memory slice.
type SliceSource[T any] struct {
	values []T
	pos    int
}

// MakeSliceSource returns a Source yielding values in order.
func MakeSliceSource[T any](values []T) *SliceSource[T] {
	return &SliceSource[T]{values: values}
}

// Next implements Source.
func (s *SliceSource[T]) Next() (T, bool) {
	if s.pos >= len(s.values) {
		var zero T
		return zero, false
	}
	v := s.values[s.pos]
	s.pos++
	return v, true
}

// Err implements Source.
func (s *SliceSource[T]) Err() error { return nil }

// ReadAheadStats holds statistics for a ReadAheadBuffer.
type ReadAheadStats struct {
	// Fills is the number of buffer fills started, including the synchronous
	// fill performed on construction.
	Fills int64
	// Swaps is the number of times the consumer switched to a freshly filled
	// buffer.
	Swaps int64
	// WaitDuration is the total time the consumer spent blocked waiting for a
	// background fill to complete.
	WaitDuration time.Duration
}

// fillResult is the outcome of one buffer fill.
type fillResult struct {
	// n is the number of valid elements at the front of the buffer.
	n   int
	err error
}

// cancelCheckInterval is the number of elements a background fill copies
// between checks for cancellation. Must be a power of two.
const cancelCheckInterval = 1 << 10

var readAheadLabels = pprof.Labels("hashmerge", "read-ahead")

// ReadAheadBuffer wraps a Source with a double buffer: while the consumer
// drains the active buffer, a background goroutine fills the other one. This
// overlaps the latency of the source (file reads and merging) with the
// consumer's processing.
//
// At most one background fill is in flight. The consumer blocks only when it
// has drained the active buffer and the fill of the other one has not yet
// completed; it then swaps the two buffers and starts the next fill. A buffer
// is never exposed to the consumer before its fill has completed, and the
// fill goroutine and the consumer never touch the same buffer at the same
// time.
//
// An error returned by the source during a background fill is not lost: it
// is reported by Err once Next reaches the buffer that failed to fill.
//
// A ReadAheadBuffer is not safe for concurrent use by multiple consumers.
type ReadAheadBuffer[T any] struct {
	src Source[T]

	// active is drained by the consumer; active[cursor:n] remain.
	active []T
	cursor int
	n      int
	// next is owned by the background fill while inflight is true.
	next []T

	// readable is false once the source is known to be exhausted or failed
	// and the active buffer is the last one.
	readable bool
	// srcDone is set once a fill came back short: the source is exhausted
	// and no further fill is started.
	srcDone bool
	err     error

	// fillCh receives the result of the in-flight fill. It has capacity one
	// so that an abandoned fill never blocks.
	fillCh   chan fillResult
	inflight bool
	ctx      context.Context
	cancel   context.CancelFunc

	waitLatency prometheus.Observer
	stats       ReadAheadStats

	closeCheck invariants.CloseChecker
}

// NewReadAheadBuffer returns a ReadAheadBuffer over src with two buffers of
// the given capacity. It fills the first buffer synchronously and starts
// filling the second in the background. waitLatency, if non-nil, observes
// the time in seconds spent blocked at each swap.
func NewReadAheadBuffer[T any](
	src Source[T], capacity int, waitLatency prometheus.Observer,
) *ReadAheadBuffer[T] {
	if capacity <= 0 {
		panic("hashmerge: read-ahead capacity must be positive")
	}
	b := &ReadAheadBuffer[T]{
		src:         src,
		active:      make([]T, capacity),
		next:        make([]T, capacity),
		readable:    true,
		fillCh:      make(chan fillResult, 1),
		waitLatency: waitLatency,
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.stats.Fills++
	b.swap(fill(b.ctx, b.src, b.next))
	return b
}

// fill copies values from src into buf until buf is full, src is exhausted,
// or ctx is canceled.
func fill[T any](ctx context.Context, src Source[T], buf []T) fillResult {
	for i := range buf {
		if i&(cancelCheckInterval-1) == 0 && ctx.Err() != nil {
			return fillResult{n: i, err: ctx.Err()}
		}
		v, ok := src.Next()
		if !ok {
			return fillResult{n: i, err: src.Err()}
		}
		buf[i] = v
	}
	return fillResult{n: len(buf)}
}

// startFill starts filling b.next in the background.
func (b *ReadAheadBuffer[T]) startFill() {
	if invariants.Enabled && b.inflight {
		panic("hashmerge: read-ahead fill already in flight")
	}
	b.inflight = true
	b.stats.Fills++
	buf := b.next
	go func() {
		pprof.Do(b.ctx, readAheadLabels, func(ctx context.Context) {
			b.fillCh <- fill(ctx, b.src, buf)
		})
	}()
}

// wait blocks until the in-flight fill completes and returns its result.
func (b *ReadAheadBuffer[T]) wait() fillResult {
	start := crtime.NowMono()
	res := <-b.fillCh
	b.inflight = false
	d := start.Elapsed()
	b.stats.WaitDuration += d
	if b.waitLatency != nil {
		b.waitLatency.Observe(d.Seconds())
	}
	return res
}

// swap makes the freshly filled b.next the active buffer and, if more data
// may follow, starts filling the buffer that was just drained.
func (b *ReadAheadBuffer[T]) swap(res fillResult) {
	b.stats.Swaps++
	b.active, b.next = b.next, b.active
	b.n, b.cursor = res.n, 0
	if res.err != nil {
		// The fill failed part way. Whatever it produced is discarded along
		// with the rest of the stream.
		b.err = res.err
		b.n = 0
		b.readable = false
		return
	}
	if res.n == 0 {
		b.readable = false
		return
	}
	if res.n < len(b.active) {
		b.srcDone = true
	}
	if !b.srcDone {
		b.startFill()
	}
}

// Next returns the next element. It returns false once the source is
// exhausted or has failed; Err distinguishes the two.
func (b *ReadAheadBuffer[T]) Next() (T, bool) {
	for b.cursor >= b.n {
		if !b.readable {
			var zero T
			return zero, false
		}
		if !b.inflight {
			// The last fill came back short.
			b.readable = false
			continue
		}
		b.swap(b.wait())
	}
	invariants.CheckBounds(b.cursor, len(b.active))
	v := b.active[b.cursor]
	b.cursor++
	return v, true
}

// Err returns the error that ended the stream, if any.
func (b *ReadAheadBuffer[T]) Err() error {
	return b.err
}

// Stats returns statistics for the buffer.
func (b *ReadAheadBuffer[T]) Stats() ReadAheadStats {
	return b.stats
}

// Close cancels any in-flight fill and waits for it to stop, after which the
// source is no longer referenced by the buffer. Close does not close the
// source.
func (b *ReadAheadBuffer[T]) Close() error {
	b.closeCheck.Close()
	b.cancel()
	if b.inflight {
		<-b.fillCh
		b.inflight = false
	}
	b.readable = false
	b.active, b.next = nil, nil
	b.cursor, b.n = 0, 0
	return nil
}
