package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// LoadState is the lifecycle of an Index.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadFunc fetches the full, unfiltered inventory of one service type.
type LoadFunc func(ctx context.Context) ([]resource.Resource, error)

type indexEntry struct {
	groupID string
	records []resource.Resource
}

// Index groups a service inventory by security group membership.
//
// The inventory is fetched at most once, on the first Load or Lookup.
// A failed fetch is kept and returned to every later caller.
type Index struct {
	load LoadFunc

	mu      sync.Mutex
	state   LoadState
	done    chan struct{}
	err     error
	tree    *btree.BTreeG[*indexEntry]
	records int
	loads   int
}

// NewIndex creates an unloaded index backed by load.
func NewIndex(load LoadFunc) *Index {
	return &Index{load: load}
}

// Load builds the index unless it was already built or attempted.
func (i *Index) Load(ctx context.Context) error {
	i.mu.Lock()
	switch i.state {
	case Loaded:
		i.mu.Unlock()
		return nil
	case Failed:
		err := i.err
		i.mu.Unlock()
		return err
	case Loading:
		done := i.done
		i.mu.Unlock()
		select {
		case <-done:
			return i.Load(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	i.state = Loading
	i.done = make(chan struct{})
	i.loads++
	i.mu.Unlock()

	records, err := i.load(ctx)

	i.mu.Lock()
	defer i.mu.Unlock()
	defer close(i.done)

	if err != nil {
		i.state = Failed
		i.err = err
		return err
	}

	i.tree = build(records)
	i.records = len(records)
	i.state = Loaded
	return nil
}

// build fans each record out under every group it belongs to.
func build(records []resource.Resource) *btree.BTreeG[*indexEntry] {
	tree := btree.NewG(16, func(a, b *indexEntry) bool {
		return a.groupID < b.groupID
	})

	for _, r := range records {
		seen := make(map[string]bool, len(r.SecurityGroups))
		for _, groupID := range r.SecurityGroups {
			if groupID == "" || seen[groupID] {
				continue
			}
			seen[groupID] = true

			entry, ok := tree.Get(&indexEntry{groupID: groupID})
			if !ok {
				entry = &indexEntry{groupID: groupID}
				tree.ReplaceOrInsert(entry)
			}
			entry.records = append(entry.records, r)
		}
	}

	return tree
}

// Lookup loads the index if needed and returns the records in a group.
func (i *Index) Lookup(ctx context.Context, groupID string) ([]resource.Resource, error) {
	if err := i.Load(ctx); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	entry, ok := i.tree.Get(&indexEntry{groupID: groupID})
	if !ok {
		return []resource.Resource{}, nil
	}
	out := make([]resource.Resource, len(entry.records))
	copy(out, entry.records)
	return out, nil
}

// State returns the current load state.
func (i *Index) State() LoadState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Loads returns how many times the inventory was fetched.
func (i *Index) Loads() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loads
}

// Size returns the number of records in the inventory.
func (i *Index) Size() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.records
}

// String summarises the index for logging.
func (i *Index) String() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	groups := 0
	if i.tree != nil {
		groups = i.tree.Len()
	}
	return fmt.Sprintf("%s: %d records in %d groups", i.state, i.records, groups)
}
