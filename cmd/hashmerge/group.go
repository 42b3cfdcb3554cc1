// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmerge"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var groupConfig struct {
	newHashes      string
	compareUnit    int
	bufferElements int
	deletionRate   int
	optionsFile    string
	keep           bool
	print          int
	plotHeight     int
}

var groupCmd = &cobra.Command{
	Use:   "group <dir>",
	Short: "merge the partition files in <dir> and report groups of equal masked key",
	Long: `
Merge the sorted partition files in <dir> and report every group of two or
more hash values sharing a masked key. With --new, only groups containing at
least one of the given values are reported. The partition files are deleted
(or archived with --keep) once the pass completes.
`,
	Args: cobra.ExactArgs(1),
	Run:  runGroup,
}

func runGroup(cmd *cobra.Command, args []string) {
	if err := group(args[0]); err != nil {
		log.Fatal(err)
	}
}

func groupOptions() (*hashmerge.Options, error) {
	opts := &hashmerge.Options{}
	if groupConfig.optionsFile != "" {
		data, err := os.ReadFile(groupConfig.optionsFile)
		if err != nil {
			return nil, err
		}
		if err := opts.Parse(string(data), nil); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", groupConfig.optionsFile)
		}
	}
	if compression != "" {
		c, err := parseCompression(compression)
		if err != nil {
			return nil, err
		}
		opts.Compression = c
	}
	if groupConfig.compareUnit != 0 {
		opts.CompareUnit = groupConfig.compareUnit
	}
	if groupConfig.bufferElements != 0 {
		opts.BufferElements = groupConfig.bufferElements
	}
	if groupConfig.deletionRate != 0 {
		opts.TargetByteDeletionRate = groupConfig.deletionRate
	}
	if groupConfig.keep {
		opts.Cleaner = hashmerge.ArchiveCleaner{}
	}
	if verbose {
		lel := hashmerge.MakeLoggingEventListener(nil)
		opts.EventListener = &lel
	}
	opts.ReadAheadWaitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hashmerge_read_ahead_wait_seconds",
		Help:    "Time spent waiting for a read-ahead fill.",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	})
	return opts, nil
}

func group(dir string) (err error) {
	mask, err := parseMask(maskFlag)
	if err != nil {
		return err
	}
	newHashes, err := parseHashSet(groupConfig.newHashes)
	if err != nil {
		return err
	}
	opts, err := groupOptions()
	if err != nil {
		return err
	}

	r, err := hashmerge.Open(dir, opts, partitions, mask, newHashes)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.CombineErrors(err, r.Close())
		if err == nil {
			m := r.Metrics()
			fmt.Printf("\n%s", m)
		}
	}()

	sizes := hdrhistogram.New(2, 1<<20, 1)
	var series []float64
	var members int64
	for r.Next() {
		g := r.Group()
		members += int64(len(g))
		_ = sizes.RecordValue(int64(len(g)))
		if groupConfig.plotHeight > 0 {
			series = append(series, float64(len(g)))
		}
		if int64(groupConfig.print) >= sizes.TotalCount() {
			fmt.Printf("%#016x: %d\n", uint64(r.Key()), g)
		}
	}
	if err := r.Error(); err != nil {
		return err
	}

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{"groups", "members", "mean", "p50", "p90", "p99", "max"})
	tbl.Append([]string{
		string(crhumanize.Count(sizes.TotalCount(), crhumanize.Compact)),
		string(crhumanize.Count(members, crhumanize.Compact)),
		fmt.Sprintf("%.2f", sizes.Mean()),
		fmt.Sprintf("%d", sizes.ValueAtPercentile(50)),
		fmt.Sprintf("%d", sizes.ValueAtPercentile(90)),
		fmt.Sprintf("%d", sizes.ValueAtPercentile(99)),
		fmt.Sprintf("%d", sizes.Max()),
	})
	tbl.Render()

	if len(series) > 0 {
		fmt.Println(asciigraph.Plot(series, asciigraph.Height(groupConfig.plotHeight),
			asciigraph.Caption("group size")))
	}
	return nil
}
