package aws

import (
	"context"

	"github.com/yairfalse/sgmap/internal/adapter"
	"github.com/yairfalse/sgmap/pkg/resource"
)

// preloaded is the shared half of every Preload-and-Index adapter.
type preloaded struct {
	typ   resource.ServiceType
	index *adapter.Index
}

func newPreloaded(typ resource.ServiceType, load adapter.LoadFunc) *preloaded {
	return &preloaded{typ: typ, index: adapter.NewIndex(load)}
}

// Type returns the service type.
func (p *preloaded) Type() resource.ServiceType {
	return p.typ
}

// LoadServices fetches the full inventory once and indexes it by group.
func (p *preloaded) LoadServices(ctx context.Context) error {
	return p.index.Load(ctx)
}

// Loaded reports whether the inventory has been indexed.
func (p *preloaded) Loaded() bool {
	return p.index.State() == adapter.Loaded
}

// ServiceNamesInGroup answers from the index, loading it on first use.
func (p *preloaded) ServiceNamesInGroup(ctx context.Context, groupID string) ([]string, error) {
	records, err := p.index.Lookup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return adapter.Names(records), nil
}

// String summarises the index for logging.
func (p *preloaded) String() string {
	return p.index.String()
}

// Index exposes the underlying index for inspection.
func (p *preloaded) Index() *adapter.Index {
	return p.index
}

// groupIDs collects non-empty group IDs from optional pointers and slices.
func groupIDs(ptrs []*string, lists ...[]string) []string {
	var ids []string
	for _, id := range ptrs {
		if id != nil && *id != "" {
			ids = append(ids, *id)
		}
	}
	for _, list := range lists {
		for _, id := range list {
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
