// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	partitions  int
	maskFlag    string
	compression string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "hashmerge [command] (flags)",
	Short: "hashmerge partition generation/grouping tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		genCmd,
		groupCmd,
	)

	for _, cmd := range []*cobra.Command{genCmd, groupCmd} {
		cmd.Flags().IntVarP(
			&partitions, "partitions", "p", 16, "number of partition files")
		cmd.Flags().StringVarP(
			&maskFlag, "mask", "m", "-1", "sort mask applied to hash values (decimal or 0x-prefixed hex)")
		cmd.Flags().StringVar(
			&compression, "compression", "",
			"partition file compression (NoCompression, Snappy, ZSTD, MinLZ); "+
				"unset uses the options file, or NoCompression")
		cmd.Flags().BoolVarP(
			&verbose, "verbose", "v", false, "enable verbose event logging")
	}

	genCmd.Flags().IntVarP(
		&genConfig.records, "records", "n", genConfig.records, "number of hash values to generate")
	genCmd.Flags().IntVar(
		&genConfig.contents, "contents", genConfig.contents,
		"number of distinct contents the values are hashed from")
	genCmd.Flags().Uint64Var(
		&genConfig.seed, "seed", genConfig.seed, "content selection seed")
	genCmd.Flags().IntVar(
		&genConfig.concurrency, "concurrency", genConfig.concurrency,
		"number of partition files written concurrently")

	groupCmd.Flags().StringVar(
		&groupConfig.newHashes, "new", "",
		"comma-separated hash values; only groups containing one of them are reported")
	groupCmd.Flags().IntVar(
		&groupConfig.compareUnit, "compare-unit", 0, "merge tree fan-in (0 uses the default)")
	groupCmd.Flags().IntVar(
		&groupConfig.bufferElements, "buffer", 0, "read-ahead buffer capacity (0 uses the default)")
	groupCmd.Flags().IntVar(
		&groupConfig.deletionRate, "rate", 0, "partition deletion rate in bytes/sec (0 is unpaced)")
	groupCmd.Flags().StringVar(
		&groupConfig.optionsFile, "options", "", "path to an options file, as written by Options.String")
	groupCmd.Flags().BoolVar(
		&groupConfig.keep, "keep", false, "archive partition files instead of deleting them")
	groupCmd.Flags().IntVar(
		&groupConfig.print, "print", 0, "print up to this many groups")
	groupCmd.Flags().IntVar(
		&groupConfig.plotHeight, "plot", 0, "plot group sizes with the given height (0 disables)")

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
