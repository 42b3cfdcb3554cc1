// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package hashmerge

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/cockroachdb/hashmerge/internal/invariants"
	"github.com/cockroachdb/hashmerge/record"
	"github.com/cockroachdb/hashmerge/vfs"
	"github.com/cockroachdb/hashmerge/vfs/errorfs"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// eventLog records the deterministic session events.
type eventLog struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (l *eventLog) listener() *EventListener {
	return &EventListener{
		SessionOpened: func(info SessionInfo) {
			l.printf("%s", info)
		},
		PartitionDeleted: func(info PartitionDeleteInfo) {
			l.printf("%s", info)
		},
		BackgroundError: func(err error) {
			l.printf("background error: %s", err)
		},
	}
}

func (l *eventLog) printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(&l.buf, format, args...)
	l.buf.WriteByte('\n')
}

func (l *eventLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func listFiles(t testing.TB, fs vfs.FS, dir string) []string {
	names, err := fs.List(dir)
	require.NoError(t, err)
	sort.Strings(names)
	return names
}

func TestReader(t *testing.T) {
	datadriven.RunTest(t, "testdata/reader", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "session":
			mem := vfs.NewMem()
			mem.UseStrictRemove(true)
			var log eventLog
			opts := &Options{
				FS:            mem,
				EventListener: log.listener(),
			}
			td.MaybeScanArgs(t, "compare-unit", &opts.CompareUnit)
			td.MaybeScanArgs(t, "buffer", &opts.BufferElements)
			if td.HasArg("archive") {
				opts.Cleaner = ArchiveCleaner{}
			}
			limit := -1
			td.MaybeScanArgs(t, "limit", &limit)
			mask := scanMask(t, td)

			parts := parsePartitions(t, td.Input)
			writePartitions(t, mem, "sorted", NoCompression, parts)
			partitions := len(parts)
			td.MaybeScanArgs(t, "partitions", &partitions)

			r, err := Open("sorted", opts, partitions, mask, scanNewHashes(t, td))
			if err != nil {
				log.printf("open: %s", err)
			} else {
				for n := 0; limit < 0 || n < limit; n++ {
					if !r.Next() {
						break
					}
					log.printf("%d: %s", r.Key(), formatValues(r.Group()))
				}
				if err := r.Error(); err != nil {
					log.printf("error: %s", err)
				}
				if err := r.Close(); err != nil {
					log.printf("close: %s", err)
				}
			}
			files := strings.Join(listFiles(t, mem, "sorted"), " ")
			if files == "" {
				files = "(none)"
			}
			return fmt.Sprintf("%sfiles: %s\n", log.String(), files)

		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}

// expectedGroups computes the candidate groups of a session by sorting every
// value at once.
func expectedGroups(parts [][]HashValue, mask SortMask, newHashes *HashSet) [][]HashValue {
	var all []HashValue
	for _, p := range parts {
		all = append(all, p...)
	}
	slices.SortStableFunc(all, func(a, b HashValue) int {
		return cmp.Compare(mask.Apply(a), mask.Apply(b))
	})
	var groups [][]HashValue
	for i := 0; i < len(all); {
		j := i + 1
		for j < len(all) && mask.Apply(all[j]) == mask.Apply(all[i]) {
			j++
		}
		run := all[i:j]
		if len(run) >= 2 && (!newHashes.Filtering() || newHashes.ContainsAny(run)) {
			groups = append(groups, slices.Clone(run))
		}
		i = j
	}
	return groups
}

func randomPartitions(rng *rand.Rand, p int, mask SortMask) [][]HashValue {
	parts := make([][]HashValue, p)
	for i := range parts {
		n := rng.IntN(200)
		for j := 0; j < n; j++ {
			parts[i] = append(parts[i], int64(rng.Uint64())>>(48+rng.IntN(16)))
		}
		slices.SortStableFunc(parts[i], func(a, b HashValue) int {
			return cmp.Compare(mask.Apply(a), mask.Apply(b))
		})
	}
	return parts
}

func TestReaderRandomized(t *testing.T) {
	defer leaktest.AfterTest(t)()

	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	masks := []SortMask{FullMask, SortMask(^int64(0x3)), SortMask(^int64(0xff))}
	for iter := 0; iter < 30; iter++ {
		p := 1 + rng.IntN(30)
		mask := masks[rng.IntN(len(masks))]
		parts := randomPartitions(rng, p, mask)

		var newHashes *HashSet
		if rng.IntN(2) == 0 {
			newHashes = MakeHashSet()
			for i := 0; i < rng.IntN(20); i++ {
				if q := parts[rng.IntN(p)]; len(q) > 0 {
					newHashes.Add(q[rng.IntN(len(q))])
				}
			}
		}

		opts := &Options{
			FS:             vfs.NewMem(),
			CompareUnit:    2 + rng.IntN(6),
			BufferElements: 1 + rng.IntN(300),
			Compression:    []Compression{NoCompression, SnappyCompression, ZstdCompression, MinLZCompression}[rng.IntN(4)],
		}
		writePartitions(t, opts.FS, "", opts.Compression, parts)

		r, err := Open("", opts, p, mask, newHashes)
		require.NoError(t, err)
		var got [][]HashValue
		for r.Next() {
			got = append(got, slices.Clone(r.Group()))
		}
		require.NoError(t, r.Error())
		want := expectedGroups(parts, mask, newHashes)
		require.Equal(t, want, got, "p=%d opts=%s", p, opts)

		m := r.Metrics()
		require.EqualValues(t, len(want), m.Groups.Emitted)
		require.NoError(t, r.Close())
		require.Empty(t, listFiles(t, opts.FS, ""))
	}
}

func TestReaderDeletesEveryPartitionOnce(t *testing.T) {
	defer leaktest.AfterTest(t)()

	for _, early := range []bool{false, true} {
		t.Run(fmt.Sprintf("early=%t", early), func(t *testing.T) {
			mem := vfs.NewMem()
			// Removing a partition that is still open fails.
			mem.UseStrictRemove(true)

			const p = 20
			parts := make([][]HashValue, p)
			for i := range parts {
				for j := 0; j < 1000; j++ {
					parts[i] = append(parts[i], HashValue(j))
				}
			}
			writePartitions(t, mem, "sorted", NoCompression, parts)

			deleted := make(map[PartitionNum]int)
			var closed int
			opts := &Options{
				FS:             mem,
				CompareUnit:    3,
				BufferElements: 64,
				EventListener: &EventListener{
					PartitionDeleted: func(info PartitionDeleteInfo) {
						require.NoError(t, info.Err)
						require.Equal(t, !early, info.Drained)
						require.EqualValues(t, 8000, info.Size)
						deleted[info.Partition]++
					},
					SessionClosed: func(info SessionCloseInfo) {
						require.NoError(t, info.Err)
						require.Equal(t, !early, info.Exhausted)
						closed++
					},
				},
			}
			r, err := Open("sorted", opts, p, FullMask, nil)
			require.NoError(t, err)
			require.Len(t, listFiles(t, mem, "sorted"), p)

			var groups int
			for r.Next() {
				require.Len(t, r.Group(), p)
				groups++
				if early && groups == 10 {
					break
				}
			}
			require.NoError(t, r.Error())
			if !early {
				require.Equal(t, 1000, groups)
			}
			require.Empty(t, deleted)

			require.NoError(t, r.Close())
			require.Empty(t, listFiles(t, mem, "sorted"))
			require.Len(t, deleted, p)
			for pn, n := range deleted {
				require.Equal(t, 1, n, "partition %s", pn)
			}
			require.Equal(t, 1, closed)

			m := r.Metrics()
			require.EqualValues(t, p, m.Cleaner.Deleted)
			require.EqualValues(t, p*8000, m.Cleaner.DeletedBytes)
		})
	}
}

func TestReaderDoubleClose(t *testing.T) {
	mem := vfs.NewMem()
	writePartitions(t, mem, "", NoCompression, [][]HashValue{{1, 1}})
	r, err := Open("", &Options{FS: mem}, 1, FullMask, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	if invariants.Enabled {
		require.Panics(t, func() { _ = r.Close() })
	} else {
		require.True(t, errors.Is(r.Close(), ErrClosed))
	}
	require.False(t, r.Next())
}

func TestReaderOpenErrors(t *testing.T) {
	mem := vfs.NewMem()
	mem.UseStrictRemove(true)
	writePartitions(t, mem, "sorted", NoCompression, [][]HashValue{{1, 2}, {2, 3}, {3}})
	files := listFiles(t, mem, "sorted")

	var opened []SessionInfo
	opts := &Options{
		FS: mem,
		EventListener: &EventListener{
			SessionOpened: func(info SessionInfo) { opened = append(opened, info) },
		},
	}

	// Partition 3 does not exist. The readers opened before it are closed
	// and no partition is deleted.
	_, err := Open("sorted", opts, 4, FullMask, nil)
	require.True(t, oserror.IsNotExist(err), "%+v", err)
	require.Equal(t, files, listFiles(t, mem, "sorted"))
	for _, name := range files {
		n, err := mem.OpenHandles(mem.PathJoin("sorted", name))
		require.NoError(t, err)
		require.EqualValues(t, 0, n, "%s", name)
	}
	require.Len(t, opened, 1)
	require.Error(t, opened[0].Err)

	_, err = Open("sorted", opts, 0, FullMask, nil)
	require.Error(t, err)

	_, err = Open("sorted", &Options{FS: mem, CompareUnit: 1}, 3, FullMask, nil)
	require.Error(t, err)
	_, err = Open("sorted", &Options{FS: mem, TargetByteDeletionRate: -1}, 3, FullMask, nil)
	require.Error(t, err)
	require.Equal(t, files, listFiles(t, mem, "sorted"))
}

func TestReaderCorruptPartition(t *testing.T) {
	defer leaktest.AfterTest(t)()

	mem := vfs.NewMem()
	mem.UseStrictRemove(true)
	parts := [][]HashValue{{1, 1, 5, 9}, {1, 2, 2, 7}, {3, 3}}
	writePartitions(t, mem, "", NoCompression, parts)

	// Rewrite partition 1 with a trailing partial record.
	f, err := mem.Create(MakePartitionFilename(1))
	require.NoError(t, err)
	w, err := record.NewWriter(f, NoCompression)
	require.NoError(t, err)
	for _, v := range parts[1] {
		require.NoError(t, w.Add(v))
	}
	require.NoError(t, w.Close())
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var bgErrs int
	opts := &Options{
		FS:             mem,
		BufferElements: 2,
		EventListener: &EventListener{
			BackgroundError: func(err error) { bgErrs++ },
		},
	}
	r, err := Open("", opts, 3, FullMask, nil)
	require.NoError(t, err)
	for r.Next() {
	}
	require.True(t, IsCorruptionError(r.Error()), "%+v", r.Error())
	require.Equal(t, 1, bgErrs)
	require.NoError(t, r.Close())
	// The partitions are deleted regardless.
	require.Empty(t, listFiles(t, mem, ""))
}

func TestReaderOpenCorruptSinglePartition(t *testing.T) {
	defer leaktest.AfterTest(t)()

	mem := vfs.NewMem()
	mem.UseStrictRemove(true)
	// A single partition holding only a partial record.
	f, err := mem.Create(MakePartitionFilename(0))
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var opened []SessionInfo
	opts := &Options{
		FS: mem,
		EventListener: &EventListener{
			SessionOpened: func(info SessionInfo) { opened = append(opened, info) },
		},
	}
	_, err = Open("", opts, 1, FullMask, nil)
	require.True(t, IsCorruptionError(err), "%+v", err)
	require.Len(t, opened, 1)
	require.Error(t, opened[0].Err)

	// The partition is closed and left in place.
	require.Equal(t, []string{MakePartitionFilename(0)}, listFiles(t, mem, ""))
	n, err := mem.OpenHandles(MakePartitionFilename(0))
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestReaderInjectedErrors(t *testing.T) {
	defer leaktest.AfterTest(t)()

	mem := vfs.NewMem()
	// Each partition spans several read calls.
	const n = 20000
	parts := make([][]HashValue, 3)
	for i := range parts {
		for j := 0; j < n; j++ {
			parts[i] = append(parts[i], HashValue(j))
		}
	}

	t.Run("read", func(t *testing.T) {
		writePartitions(t, mem, "", NoCompression, parts)
		// Reads 0-2 prime the three partitions; fail a later one.
		fs := errorfs.Wrap(mem, errorfs.OnIndex(errorfs.OpRead, 4))
		r, err := Open("", &Options{FS: fs, BufferElements: 1000}, 3, FullMask, nil)
		require.NoError(t, err)
		var groups int
		for r.Next() {
			require.Len(t, r.Group(), 3)
			groups++
		}
		require.True(t, errors.Is(r.Error(), errorfs.ErrInjected), "%+v", r.Error())
		require.Less(t, groups, n)
		require.NoError(t, r.Close())
		require.Empty(t, listFiles(t, mem, ""))
	})

	t.Run("remove", func(t *testing.T) {
		writePartitions(t, mem, "", NoCompression, parts)
		fs := errorfs.Wrap(mem, errorfs.OnIndex(errorfs.OpRemove, 1))
		var deleteErrs int
		opts := &Options{
			FS: fs,
			EventListener: &EventListener{
				PartitionDeleted: func(info PartitionDeleteInfo) {
					if info.Err != nil {
						require.Equal(t, PartitionNum(1), info.Partition)
						deleteErrs++
					}
				},
			},
		}
		r, err := Open("", opts, 3, FullMask, nil)
		require.NoError(t, err)
		for r.Next() {
		}
		require.NoError(t, r.Error())
		err = r.Close()
		require.True(t, errors.Is(err, errorfs.ErrInjected), "%+v", err)
		require.Equal(t, 1, deleteErrs)
		// The other partitions were still deleted.
		require.Equal(t, []string{MakePartitionFilename(1)}, listFiles(t, mem, ""))
		require.NoError(t, mem.Remove(MakePartitionFilename(1)))
	})
}

func TestReaderArchiveCleaner(t *testing.T) {
	mem := vfs.NewMem()
	writePartitions(t, mem, "sorted", SnappyCompression, [][]HashValue{{1, 1}, {1, 2}})
	opts := &Options{
		FS:          mem,
		Cleaner:     ArchiveCleaner{},
		Compression: SnappyCompression,
	}
	r, err := Open("sorted", opts, 2, FullMask, nil)
	require.NoError(t, err)
	require.True(t, r.Next())
	require.Equal(t, []HashValue{1, 1, 1}, r.Group())
	require.False(t, r.Next())
	require.NoError(t, r.Close())
	require.Equal(t, []string{"archive"}, listFiles(t, mem, "sorted"))
	require.Equal(t, []string{"000000.part", "000001.part"}, listFiles(t, mem, "sorted/archive"))
}

func TestReaderPacedDeletion(t *testing.T) {
	mem := vfs.NewMem()
	parts := [][]HashValue{make([]HashValue, 100), make([]HashValue, 100), make([]HashValue, 100)}
	writePartitions(t, mem, "", NoCompression, parts)
	opts := &Options{
		FS: mem,
		// Each partition is 800 bytes. The initial burst covers the first two
		// deletions and the third waits for half a second of tokens.
		TargetByteDeletionRate: 1600,
	}
	r, err := Open("", opts, 3, FullMask, nil)
	require.NoError(t, err)
	start := time.Now()
	require.NoError(t, r.Close())
	require.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	require.Empty(t, listFiles(t, mem, ""))
	require.EqualValues(t, 2400, r.Metrics().Cleaner.DeletedBytes)
}

func TestReaderDefaultFS(t *testing.T) {
	defer leaktest.AfterTest(t)()

	dir := t.TempDir()
	parts := [][]HashValue{{-3, 0, 4, 4}, {-3, 4}}
	writePartitions(t, vfs.Default, dir, ZstdCompression, parts)

	r, err := Open(dir, &Options{Compression: ZstdCompression}, 2, FullMask, MakeHashSet(4))
	require.NoError(t, err)
	require.True(t, r.Next())
	require.EqualValues(t, 4, r.Key())
	require.Equal(t, []HashValue{4, 4, 4}, r.Group())
	require.False(t, r.Next())
	require.NoError(t, r.Error())
	require.NoError(t, r.Close())
	require.Empty(t, listFiles(t, vfs.Default, dir))
}

func TestReaderMetrics(t *testing.T) {
	defer leaktest.AfterTest(t)()

	mem := vfs.NewMem()
	writePartitions(t, mem, "", NoCompression, [][]HashValue{{1, 3, 3, 7}, {2, 3, 5}, {3, 4, 4}})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "read_ahead_wait",
		Buckets: prometheus.ExponentialBuckets(1e-6, 10, 7),
	})
	opts := &Options{
		FS:                   mem,
		CompareUnit:          2,
		BufferElements:       3,
		ReadAheadWaitLatency: hist,
	}
	r, err := Open("", opts, 3, FullMask, MakeHashSet(4))
	require.NoError(t, err)
	for r.Next() {
		require.Equal(t, []HashValue{4, 4}, r.Group())
	}
	require.NoError(t, r.Close())

	m := r.Metrics()
	require.EqualValues(t, 10, m.Records)
	require.EqualValues(t, 1, m.Groups.Emitted)
	require.EqualValues(t, 4, m.Groups.Singletons)
	require.EqualValues(t, 1, m.Groups.Filtered)
	require.Equal(t, 3, m.Tree.Partitions)
	require.Equal(t, 2, m.Tree.Depth)
	require.Equal(t, 2, m.Tree.Nodes)
	// Fills of 3, 3, 3 and 1.
	require.EqualValues(t, 4, m.ReadAhead.Fills)
	require.EqualValues(t, 4, m.ReadAhead.Swaps)
	require.EqualValues(t, 3, m.Cleaner.Deleted)

	metric := &dto.Metric{}
	require.NoError(t, hist.Write(metric))
	require.EqualValues(t, 3, metric.GetHistogram().GetSampleCount())

	s := m.String()
	require.Contains(t, s, "records: 10\n")
	require.Contains(t, s, "groups: 1 emitted, 4 singletons, 1 filtered\n")
	require.Contains(t, s, "tree: 3 partitions, 2 nodes, depth 2\n")
	require.Contains(t, s, "read-ahead: 4 fills, 4 swaps")
}
