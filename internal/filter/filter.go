// Package filter decides which services are queried and which groups are audited.
package filter

import (
	"github.com/yairfalse/sgmap/pkg/resource"
)

// Filter controls which service types are queried and which groups are included.
type Filter struct {
	excludeServices map[resource.ServiceType]bool
	includeTags     map[string]string
	excludeTags     map[string]string
}

// New creates a new Filter from the provided configuration.
func New(excludeServices []string, includeTags, excludeTags map[string]string) *Filter {
	excludeMap := make(map[resource.ServiceType]bool)
	for _, s := range excludeServices {
		excludeMap[resource.ServiceType(s)] = true
	}

	return &Filter{
		excludeServices: excludeMap,
		includeTags:     includeTags,
		excludeTags:     excludeTags,
	}
}

// ShouldQueryService returns true if the service type should be queried.
func (f *Filter) ShouldQueryService(t resource.ServiceType) bool {
	return !f.excludeServices[t]
}

// ShouldIncludeGroup returns true if the group passes tag filters.
func (f *Filter) ShouldIncludeGroup(g resource.SecurityGroup) bool {
	// include tags: ALL must match
	for k, v := range f.includeTags {
		if g.Labels == nil || g.Labels[k] != v {
			return false
		}
	}

	// exclude tags: ANY match excludes
	for k, v := range f.excludeTags {
		if g.Labels != nil && g.Labels[k] == v {
			return false
		}
	}

	return true
}

// FilterGroups returns only groups that pass the filter, keeping order.
func (f *Filter) FilterGroups(groups []resource.SecurityGroup) []resource.SecurityGroup {
	if len(f.includeTags) == 0 && len(f.excludeTags) == 0 {
		return groups
	}

	filtered := make([]resource.SecurityGroup, 0, len(groups))
	for _, g := range groups {
		if f.ShouldIncludeGroup(g) {
			filtered = append(filtered, g)
		}
	}
	return filtered
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return len(f.excludeServices) == 0 && len(f.includeTags) == 0 && len(f.excludeTags) == 0
}
