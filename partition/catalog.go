// Package partition implements the Catalog, the lazily-built Partition
// Index, and the cost-free Pruner that folds predicates against a
// discovered partition layout to compute a ScanPlan. Filesystem access goes
// through afero.Fs (the teacher's own dependency, used there for the
// embedded UI filesystem in querier/server.go) so tests can build synthetic
// partition trees with afero.NewMemMapFs() instead of touching disk.
package partition

import (
	"sync"

	"github.com/spf13/afero"

	"github.com/irouter/qrouter/core"
)

// Catalog maps logical table names to a root directory plus an optional
// declared schema. A table's entry changes only when its name is registered
// again; mutation (Register/Invalidate) takes an exclusive lock and reads take
// a shared read lock.
type Catalog struct {
	fs afero.Fs

	mu     sync.RWMutex
	tables map[string]core.Table
	idx    map[string]*Index
}

// NewCatalog constructs an empty Catalog backed by fs. Pass afero.NewOsFs()
// in production and afero.NewMemMapFs() in tests.
func NewCatalog(fs afero.Fs) *Catalog {
	return &Catalog{
		fs:     fs,
		tables: map[string]core.Table{},
		idx:    map[string]*Index{},
	}
}

// Register adds a table to the catalog. Re-registering an existing name
// replaces its root/schema and invalidates its partition index.
func (c *Catalog) Register(name, root string, schema core.Schema) core.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := core.Table{Name: name, Root: root, Schema: schema}
	c.tables[name] = t
	delete(c.idx, name)
	return t
}

// ResolveTable implements sqlfront.TableResolver.
func (c *Catalog) ResolveTable(name string) (core.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// IndexFor returns (building it on first call) the Index for table.
func (c *Catalog) IndexFor(table string) (*Index, error) {
	c.mu.RLock()
	t, ok := c.tables[table]
	idx := c.idx[table]
	c.mu.RUnlock()
	if !ok {
		return nil, core.NewUnknownTable(table)
	}
	if idx != nil {
		return idx, nil
	}

	c.mu.Lock()
	if existing, ok := c.idx[table]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	newIdx := NewIndex(c.fs, t)
	c.idx[table] = newIdx
	c.mu.Unlock()
	return newIdx, nil
}

// Invalidate drops the cached partition index for table; the next IndexFor
// call rebuilds it from disk.
func (c *Catalog) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.idx, table)
}
