// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines fundamental types used across the hashmerge packages:
// hash values and sort masks, partition file names, errors, loggers and
// cleaners.
package base
