// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/internal/base"
	"github.com/cockroachdb/hashmerge/vfs"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultCompareUnit is the default branching factor of the merge tree.
	DefaultCompareUnit = 16
	// DefaultBufferElements is the default capacity, in hash values, of each
	// of the two read-ahead buffers.
	DefaultBufferElements = 32 << 10
)

// Options holds the optional parameters for configuring a merge session.
// These options apply to the session as a whole; they are independent of the
// sort mask and new-hash filter, which are passed to Open.
type Options struct {
	// Cleaner cleans partition files once the session is closed. The default
	// cleaner uses the DeleteCleaner.
	Cleaner Cleaner

	// CompareUnit is the fan-in of each node of the merge tree: the number of
	// sources compared on every step. A tree over P partitions is
	// ceil(log_CompareUnit(P)) levels deep. Must be at least 2.
	//
	// The default value is 16.
	CompareUnit int

	// BufferElements is the capacity, in hash values, of each half of the
	// read-ahead double buffer.
	//
	// The default value is 32768.
	BufferElements int

	// Compression is the stream compression the partition files were written
	// with.
	//
	// The default value (DefaultCompression) reads the files uncompressed.
	Compression Compression

	// EventListener provides hooks to listening to significant session events
	// such as partition deletion.
	EventListener *EventListener

	// FS provides the interface for persistent file storage.
	//
	// The default value uses the underlying operating system's file system.
	FS vfs.FS

	// ReadAheadWaitLatency, if set, records the time in seconds the consumer
	// spends blocked waiting for a read-ahead fill.
	ReadAheadWaitLatency prometheus.Histogram

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// PartitionFilename maps a partition number to the name of its file
	// within the session directory. It must agree with the naming used by
	// the step that wrote the partitions.
	//
	// The default is MakePartitionFilename ("000042.part").
	PartitionFilename func(PartitionNum) string

	// TargetByteDeletionRate is the rate (in bytes per second) at which
	// partition files are deleted on Close. A value of 0 deletes without
	// pacing.
	TargetByteDeletionRate int
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Cleaner == nil {
		o.Cleaner = DeleteCleaner{}
	}
	if o.CompareUnit <= 0 {
		o.CompareUnit = DefaultCompareUnit
	}
	if o.BufferElements <= 0 {
		o.BufferElements = DefaultBufferElements
	}
	if o.Compression == DefaultCompression {
		o.Compression = NoCompression
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger
	}
	if o.EventListener == nil {
		o.EventListener = &EventListener{}
	}
	o.EventListener.EnsureDefaults(o.Logger)
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.PartitionFilename == nil {
		o.PartitionFilename = base.MakePartitionFilename
	}
	return o
}

// Clone creates a shallow-copy of the supplied options.
func (o *Options) Clone() *Options {
	n := &Options{}
	if o != nil {
		*n = *o
		if o.EventListener != nil {
			el := *o.EventListener
			n.EventListener = &el
		}
	}
	return n
}

// Validate verifies that the options are mutually consistent. For example,
// a CompareUnit of 1 would build a tree that never shrinks.
func (o *Options) Validate() error {
	var buf strings.Builder
	if o.CompareUnit < 2 {
		fmt.Fprintf(&buf, "CompareUnit (%d) must be >= 2\n", o.CompareUnit)
	}
	if o.BufferElements <= 0 {
		fmt.Fprintf(&buf, "BufferElements (%d) must be > 0\n", o.BufferElements)
	}
	if o.Compression < DefaultCompression || o.Compression >= base.NCompression {
		fmt.Fprintf(&buf, "Compression (%d) is unknown\n", o.Compression)
	}
	if o.TargetByteDeletionRate < 0 {
		fmt.Fprintf(&buf, "TargetByteDeletionRate (%d) must be >= 0\n", o.TargetByteDeletionRate)
	}
	if buf.Len() == 0 {
		return nil
	}
	return errors.New(buf.String())
}

// String returns a string representation of the options in an INI-like
// format, parseable by Parse.
func (o *Options) String() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[Version]\n")
	fmt.Fprintf(&buf, "  hashmerge_version=0.1\n")
	fmt.Fprintf(&buf, "\n")
	fmt.Fprintf(&buf, "[Options]\n")
	fmt.Fprintf(&buf, "  buffer_elements=%d\n", o.BufferElements)
	fmt.Fprintf(&buf, "  cleaner=%s\n", o.Cleaner)
	fmt.Fprintf(&buf, "  compare_unit=%d\n", o.CompareUnit)
	fmt.Fprintf(&buf, "  compression=%s\n", o.Compression)
	fmt.Fprintf(&buf, "  target_byte_deletion_rate=%d\n", o.TargetByteDeletionRate)
	return buf.String()
}

// ParseHooks contains callbacks to create options fields which can have
// user-defined implementations.
type ParseHooks struct {
	NewCleaner func(name string) (Cleaner, error)
	// SkipUnknown is invoked for keys that are not recognized. It returns
	// true if the key should be ignored.
	SkipUnknown func(name, value string) bool
}

// Parse parses the options from the specified string. Note that certain
// options cannot be parsed into populated fields. For example, the FS and
// Logger are left untouched.
func (o *Options) Parse(s string, hooks *ParseHooks) error {
	var section string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || line[0] == ';' || line[0] == '#' {
			// Skip blank lines and comments.
			continue
		}
		n := len(line)
		if line[0] == '[' && line[n-1] == ']' {
			// Parse section.
			section = line[1 : n-1]
			continue
		}

		pos := strings.Index(line, "=")
		if pos < 0 {
			const maxLen = 50
			if len(line) > maxLen {
				line = line[:maxLen-3] + "..."
			}
			return base.CorruptionErrorf("invalid key=value syntax: %q", errors.Safe(line))
		}
		key := strings.TrimSpace(line[:pos])
		value := strings.TrimSpace(line[pos+1:])

		var err error
		switch {
		case section == "Version":
			switch key {
			case "hashmerge_version":
			default:
				if hooks != nil && hooks.SkipUnknown != nil && hooks.SkipUnknown(section+"."+key, value) {
					continue
				}
				return errors.Errorf("hashmerge: unknown option: %s.%s",
					errors.Safe(section), errors.Safe(key))
			}

		case section == "Options":
			switch key {
			case "buffer_elements":
				o.BufferElements, err = strconv.Atoi(value)
			case "cleaner":
				switch value {
				case "archive":
					o.Cleaner = ArchiveCleaner{}
				case "delete":
					o.Cleaner = DeleteCleaner{}
				default:
					if hooks != nil && hooks.NewCleaner != nil {
						o.Cleaner, err = hooks.NewCleaner(value)
					} else {
						err = errors.Errorf("unknown cleaner %q", value)
					}
				}
			case "compare_unit":
				o.CompareUnit, err = strconv.Atoi(value)
			case "compression":
				var ok bool
				if o.Compression, ok = base.ParseCompression(value); !ok {
					err = errors.Errorf("unknown compression %q", value)
				}
			case "target_byte_deletion_rate":
				o.TargetByteDeletionRate, err = strconv.Atoi(value)
			default:
				if hooks != nil && hooks.SkipUnknown != nil && hooks.SkipUnknown(section+"."+key, value) {
					continue
				}
				return errors.Errorf("hashmerge: unknown option: %s.%s",
					errors.Safe(section), errors.Safe(key))
			}

		default:
			if hooks != nil && hooks.SkipUnknown != nil && hooks.SkipUnknown(section+"."+key, value) {
				continue
			}
			return errors.Errorf("hashmerge: unknown section: %q", errors.Safe(section))
		}
		if err != nil {
			return errors.Wrapf(err, "hashmerge: parsing %s.%s", errors.Safe(section), errors.Safe(key))
		}
	}
	return nil
}
