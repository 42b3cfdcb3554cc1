// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge/vfs"
	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	var nilOpts *Options
	o := nilOpts.EnsureDefaults()
	require.Equal(t, DefaultCompareUnit, o.CompareUnit)
	require.Equal(t, DefaultBufferElements, o.BufferElements)
	require.Equal(t, NoCompression, o.Compression)
	require.Equal(t, DeleteCleaner{}, o.Cleaner)
	require.Equal(t, vfs.Default, o.FS)
	require.NotNil(t, o.EventListener.PartitionDeleted)
	require.Equal(t, "000007.part", o.PartitionFilename(7))
	require.NoError(t, o.Validate())

	const expected = `[Version]
  hashmerge_version=0.1

[Options]
  buffer_elements=32768
  cleaner=delete
  compare_unit=16
  compression=NoCompression
  target_byte_deletion_rate=0
`
	require.Equal(t, expected, o.String())
}

func TestOptionsClone(t *testing.T) {
	el := &EventListener{}
	a := &Options{CompareUnit: 4, EventListener: el}
	b := a.Clone().EnsureDefaults()
	require.Equal(t, 4, b.CompareUnit)
	// EnsureDefaults on the clone does not touch the original listener.
	require.Nil(t, el.PartitionDeleted)
	require.NotNil(t, b.EventListener.PartitionDeleted)
	require.Zero(t, a.BufferElements)
}

func TestOptionsValidate(t *testing.T) {
	testCases := []struct {
		opts     Options
		expected string
	}{
		{Options{CompareUnit: 1, BufferElements: 1}, "CompareUnit (1) must be >= 2"},
		{Options{CompareUnit: 2, BufferElements: -1}, "BufferElements (-1) must be > 0"},
		{Options{CompareUnit: 2, BufferElements: 1, Compression: 42}, "Compression (42) is unknown"},
		{Options{CompareUnit: 2, BufferElements: 1, TargetByteDeletionRate: -5}, "TargetByteDeletionRate (-5) must be >= 0"},
		{Options{CompareUnit: 2, BufferElements: 1}, ""},
	}
	for _, c := range testCases {
		err := c.opts.Validate()
		if c.expected == "" {
			require.NoError(t, err)
			continue
		}
		require.Error(t, err)
		require.Contains(t, err.Error(), c.expected)
	}
}

func TestOptionsParse(t *testing.T) {
	testCases := []struct {
		cleaner Cleaner
		comp    Compression
	}{
		{DeleteCleaner{}, SnappyCompression},
		{ArchiveCleaner{}, ZstdCompression},
	}
	for _, c := range testCases {
		opts := &Options{
			Cleaner:                c.cleaner,
			Compression:            c.comp,
			CompareUnit:            5,
			BufferElements:         1000,
			TargetByteDeletionRate: 1 << 20,
		}
		opts.EnsureDefaults()
		str := opts.String()

		var parsed Options
		require.NoError(t, parsed.Parse(str, nil))
		parsed.EnsureDefaults()
		require.Equal(t, str, parsed.String())

		type parseable struct {
			Cleaner                Cleaner
			Compression            Compression
			CompareUnit            int
			BufferElements         int
			TargetByteDeletionRate int
		}
		project := func(o *Options) parseable {
			return parseable{o.Cleaner, o.Compression, o.CompareUnit, o.BufferElements, o.TargetByteDeletionRate}
		}
		if diff := pretty.Diff(project(opts), project(&parsed)); diff != nil {
			t.Fatalf("%s", strings.Join(diff, "\n"))
		}
	}
}

type customCleaner struct{ DeleteCleaner }

func (customCleaner) String() string { return "custom" }

func TestOptionsParseHooks(t *testing.T) {
	const str = `
# comment
[Version]
  hashmerge_version=0.1
[Options]
  cleaner=custom
  future_option=1
[Future]
  x=y
`
	var opts Options
	err := opts.Parse(str, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown cleaner "custom"`)

	var skipped []string
	hooks := &ParseHooks{
		NewCleaner: func(name string) (Cleaner, error) {
			if name != "custom" {
				return nil, errors.Newf("unexpected cleaner %q", name)
			}
			return customCleaner{}, nil
		},
		SkipUnknown: func(name, value string) bool {
			skipped = append(skipped, name+"="+value)
			return true
		},
	}
	require.NoError(t, opts.Parse(str, hooks))
	require.Equal(t, customCleaner{}, opts.Cleaner)
	require.Equal(t, []string{"Options.future_option=1", "Future.x=y"}, skipped)
}

func TestOptionsParseErrors(t *testing.T) {
	testCases := map[string]string{
		"[Options]\n  compare_unit=x\n":         "parsing Options.compare_unit",
		"[Options]\n  compression=lz4\n":        `unknown compression "lz4"`,
		"[Options]\n  no-equals\n":              "invalid key=value syntax",
		"[Version]\n  other_version=1\n":        "unknown option: Version.other_version",
		"[Other]\n  a=b\n":                      "unknown section",
		"[Options]\n  buffer_elements=1e3\n":    "parsing Options.buffer_elements",
		"[Options]\n  target_byte_deletion=1\n": "unknown option: Options.target_byte_deletion",
	}
	for str, expected := range testCases {
		var opts Options
		err := opts.Parse(str, nil)
		require.Error(t, err, "%q", str)
		require.True(t, strings.Contains(err.Error(), expected), "%q: %s", str, err)
	}
}
