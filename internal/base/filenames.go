// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/hashmerge/vfs"
	"github.com/cockroachdb/redact"
)

// PartitionNum identifies one sorted partition of a merge session. Partitions
// of a session are numbered 0..P-1.
type PartitionNum uint32

// String returns a string representation of the partition number.
func (pn PartitionNum) String() string { return fmt.Sprintf("%06d", pn) }

// SafeFormat implements redact.SafeFormatter.
func (pn PartitionNum) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%06d", redact.SafeUint(pn))
}

const partitionSuffix = ".part"

// MakePartitionFilename builds the default filename for a partition.
func MakePartitionFilename(pn PartitionNum) string {
	return pn.String() + partitionSuffix
}

// MakePartitionFilepath builds the default filepath for a partition inside
// dirname.
func MakePartitionFilepath(fs vfs.FS, dirname string, pn PartitionNum) string {
	return fs.PathJoin(dirname, MakePartitionFilename(pn))
}

// ParsePartitionFilename parses the components from a filename produced by
// MakePartitionFilename. Leading directory components are ignored.
func ParsePartitionFilename(fs vfs.FS, filename string) (pn PartitionNum, ok bool) {
	filename = fs.PathBase(filename)
	digits, found := strings.CutSuffix(filename, partitionSuffix)
	if !found || len(digits) == 0 {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if c := digits[i]; c < '0' || c > '9' {
			return 0, false
		}
	}
	u, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	return PartitionNum(u), true
}
