// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge"
	"github.com/cockroachdb/hashmerge/internal/base"
)

// parseMask parses a sort mask. Hex masks may use the full unsigned range.
func parseMask(s string) (hashmerge.SortMask, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return hashmerge.SortMask(v), nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid mask %q", s)
	}
	return hashmerge.SortMask(v), nil
}

// parseCompression parses a compression name. The empty string means
// NoCompression.
func parseCompression(s string) (hashmerge.Compression, error) {
	if s == "" {
		return hashmerge.NoCompression, nil
	}
	c, ok := base.ParseCompression(s)
	if !ok {
		return 0, errors.Errorf("unknown compression %q", s)
	}
	return c, nil
}

// parseHashSet parses a comma-separated list of hash values. An empty string
// yields a nil set, which disables filtering.
func parseHashSet(s string) (*hashmerge.HashSet, error) {
	if s == "" {
		return nil, nil
	}
	set := hashmerge.MakeHashSet()
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		v, err := strconv.ParseInt(f, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(f, 0, 64)
			if uerr != nil {
				return nil, errors.Wrapf(err, "invalid hash value %q", f)
			}
			v = int64(u)
		}
		set.Add(v)
	}
	return set, nil
}
