// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"cmp"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"runtime"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge"
	"github.com/cockroachdb/hashmerge/record"
	"github.com/cockroachdb/hashmerge/vfs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var genConfig = struct {
	records     int
	contents    int
	seed        uint64
	concurrency int
}{
	records:     1 << 20,
	contents:    1 << 19,
	seed:        1,
	concurrency: runtime.GOMAXPROCS(0),
}

var genCmd = &cobra.Command{
	Use:   "gen <dir>",
	Short: "generate sorted partition files of synthetic content hashes",
	Long: `
Generate --partitions sorted partition files in <dir>. Each value is the
xxhash of a synthetic content drawn from --contents distinct contents, so
repeated draws produce duplicate hashes spread across partitions. Every
partition is sorted by masked key, as the grouping pass expects.
`,
	Args: cobra.ExactArgs(1),
	Run:  runGen,
}

func runGen(cmd *cobra.Command, args []string) {
	if err := gen(args[0]); err != nil {
		log.Fatal(err)
	}
}

func gen(dir string) error {
	mask, err := parseMask(maskFlag)
	if err != nil {
		return err
	}
	c, err := parseCompression(compression)
	if err != nil {
		return err
	}
	if partitions <= 0 {
		return errors.Errorf("--partitions (%d) must be positive", partitions)
	}
	if genConfig.contents <= 0 {
		return errors.Errorf("--contents (%d) must be positive", genConfig.contents)
	}

	fs := vfs.Default
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	start := crtime.NowMono()
	rng := rand.New(rand.NewPCG(0, genConfig.seed))
	parts := make([][]hashmerge.HashValue, partitions)
	for i := 0; i < genConfig.records; i++ {
		content := "content-" + strconv.Itoa(rng.IntN(genConfig.contents))
		v := hashmerge.HashValue(xxhash.Sum64String(content))
		p := i % partitions
		parts[p] = append(parts[p], v)
	}

	var g errgroup.Group
	g.SetLimit(max(genConfig.concurrency, 1))
	for i := range parts {
		g.Go(func() error {
			slices.SortStableFunc(parts[i], func(a, b hashmerge.HashValue) int {
				return cmp.Compare(mask.Apply(a), mask.Apply(b))
			})
			path := fs.PathJoin(dir, hashmerge.MakePartitionFilename(hashmerge.PartitionNum(i)))
			if err := record.WriteFile(fs, path, c, parts[i]); err != nil {
				return errors.Wrapf(err, "writing partition %d", i)
			}
			if verbose {
				fmt.Fprintf(os.Stderr, "wrote %s: %s values\n", path,
					crhumanize.Count(len(parts[i]), crhumanize.Compact))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("wrote %s values to %d partitions in %s (%s, mask %s)\n",
		crhumanize.Count(genConfig.records, crhumanize.Compact), partitions,
		start.Elapsed().Round(1e6), c, mask)
	return nil
}
