// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package invariants provides assertions that are only active in builds with
// the "invariants" or "race" build tags.
package invariants

import "golang.org/x/exp/constraints"

// Integer is a constraint that permits any integer type.
type Integer = constraints.Integer
