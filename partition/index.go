package partition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/irouter/qrouter/core"
)

// dataFileExts lists the file extensions the walk treats as leaf data files
// rather than intermediate partition directories.
var dataFileExts = map[string]bool{
	".parquet": true,
	".csv":     true,
	".json":    true,
}

// Index is a lazily built, mtime-refreshed view of a table's on-disk
// partition layout. Concurrent Refresh calls for the same table are
// collapsed onto a single build via singleflight, per spec.md's requirement
// that at most one partition-index build be in flight per table at a time.
type Index struct {
	fs    afero.Fs
	table core.Table

	group singleflight.Group

	mu         sync.RWMutex
	partitions []*core.Partition
	built      bool
	maxMTime   time.Time
}

func NewIndex(fs afero.Fs, table core.Table) *Index {
	return &Index{fs: fs, table: table}
}

// Snapshot returns the current partition list, building it on first call.
// On later calls it first walks every data file checking mtimes only; if any file
// is newer than the stored max_mtime, it rebuilds before returning, per
// spec.md's "rebuild is triggered when the walk detects any file whose mtime
// exceeds the stored max_mtime" rule. Invalidate(table) remains the explicit
// path for a caller that already knows the table changed.
func (idx *Index) Snapshot(ctx context.Context) ([]*core.Partition, error) {
	idx.mu.RLock()
	built := idx.built
	lastMax := idx.maxMTime
	idx.mu.RUnlock()

	if !built {
		return idx.Refresh(ctx)
	}

	stale, err := idx.isStale(lastMax)
	if err != nil {
		return nil, err
	}
	if !stale {
		idx.mu.RLock()
		defer idx.mu.RUnlock()
		return idx.partitions, nil
	}
	return idx.Refresh(ctx)
}

// isStale walks the table root looking only at file mtimes (no partition
// parsing), reporting whether any file is newer than lastMax. It visits every
// data file under the root, as build does, but is cheaper than a full Refresh
// because it never builds the partition key/value chain.
func (idx *Index) isStale(lastMax time.Time) (bool, error) {
	root := filepath.Clean(idx.table.Root)
	stale := false
	walkErr := afero.Walk(idx.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || stale {
			return nil
		}
		if !dataFileExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if info.ModTime().After(lastMax) {
			stale = true
		}
		return nil
	})
	if walkErr != nil {
		return false, core.NewPartitionLayoutError(idx.table.Name, root, walkErr)
	}
	return stale, nil
}

// Refresh rebuilds the partition list from disk. Multiple concurrent callers
// share one underlying walk.
func (idx *Index) Refresh(ctx context.Context) ([]*core.Partition, error) {
	v, err, _ := idx.group.Do("build", func() (interface{}, error) {
		return idx.build()
	})
	if err != nil {
		return nil, err
	}
	return v.([]*core.Partition), nil
}

// MaxMTime returns the most recent modification time observed across all
// files in the table, used by callers to decide whether a Refresh is due.
func (idx *Index) MaxMTime() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.maxMTime
}

// build walks the table root, grouping files by the directory chain of
// key=value components leading to them. Every directory component between
// the root and a data file must parse as key=value; one that does not is a
// PartitionLayoutError.
//
// PartitionLayoutError also fires when two directories at the same depth,
// anywhere in the tree, use different partition keys, since a pruner cannot
// evaluate predicates against an inconsistent key set.
func (idx *Index) build() ([]*core.Partition, error) {
	type accum struct {
		keys  []core.PartitionKV
		files []core.FileInfo
	}

	byDir := map[string]*accum{}
	var dirOrder []string
	var maxMTime time.Time
	keysByDepth := map[int][]string{}

	root := filepath.Clean(idx.table.Root)

	walkErr := afero.Walk(idx.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !dataFileExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		dir := filepath.Dir(path)
		rel, relErr := filepath.Rel(root, dir)
		if relErr != nil {
			return relErr
		}

		var keys []core.PartitionKV
		if rel != "." {
			parts := strings.Split(filepath.ToSlash(rel), "/")
			for depth, part := range parts {
				kv := strings.SplitN(part, "=", 2)
				if len(kv) != 2 {
					return core.NewPartitionLayoutError(idx.table.Name, path,
						fmt.Errorf("expected key=value directory component, got %q", part))
				}
				keys = append(keys, core.PartitionKV{Key: kv[0], Value: kv[1]})

				seen, ok := keysByDepth[depth]
				if !ok {
					keysByDepth[depth] = []string{kv[0]}
				} else if seen[0] != kv[0] {
					return core.NewPartitionLayoutError(idx.table.Name, path,
						fmt.Errorf("inconsistent partition key %q vs %q at depth %d", kv[0], seen[0], depth))
				}
			}
		}

		a, ok := byDir[dir]
		if !ok {
			a = &accum{keys: keys}
			byDir[dir] = a
			dirOrder = append(dirOrder, dir)
		}
		fi := core.FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()}
		a.files = append(a.files, fi)
		if fi.ModTime.After(maxMTime) {
			maxMTime = fi.ModTime
		}
		return nil
	})
	if walkErr != nil {
		if core.IsKind(walkErr, core.ErrPartitionLayout) {
			return nil, walkErr
		}
		return nil, core.NewPartitionLayoutError(idx.table.Name, root, walkErr)
	}

	sort.Strings(dirOrder)

	partitions := make([]*core.Partition, 0, len(dirOrder))
	for _, dir := range dirOrder {
		a := byDir[dir]
		var size int64
		var partMax time.Time
		for _, f := range a.files {
			size += f.Size
			if f.ModTime.After(partMax) {
				partMax = f.ModTime
			}
		}
		partitions = append(partitions, &core.Partition{
			Keys:      a.keys,
			Files:     a.files,
			SizeBytes: size,
			MaxMTime:  partMax,
		})
	}

	idx.mu.Lock()
	idx.partitions = partitions
	idx.maxMTime = maxMTime
	idx.built = true
	idx.mu.Unlock()

	return partitions, nil
}
