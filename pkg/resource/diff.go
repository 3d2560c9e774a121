package resource

import (
	"slices"
	"sort"
)

// DiffType represents the type of change detected between two audits.
type DiffType string

const (
	// DiffAdded indicates a group appeared since the baseline.
	DiffAdded DiffType = "added"
	// DiffDeleted indicates a group is no longer reported.
	DiffDeleted DiffType = "deleted"
	// DiffModified indicates the services using a group changed.
	DiffModified DiffType = "modified"
)

// GroupUsage is the resolved usage of one group, as compared across runs.
type GroupUsage struct {
	Region    string
	GroupID   string
	GroupName string
	Names     []string
	// Failed marks a group whose names are incomplete.
	Failed bool
}

// Usage maps GroupKey to the usage of that group.
type Usage map[string]GroupUsage

// GroupDiff represents a detected change in a group's usage.
type GroupDiff struct {
	Type      DiffType
	Region    string
	GroupID   string
	GroupName string
	Added     []string
	Removed   []string
}

// GroupKey returns a unique key for identifying a group across runs.
func GroupKey(region, groupID string) string {
	return region + "|" + groupID
}

// Usage returns the usage of every group in the report.
// Groups with any failure are marked Failed.
func (r Report) Usage() Usage {
	u := make(Usage)
	for _, rr := range r.Regions {
		if rr.Groups == nil {
			continue
		}
		for _, g := range rr.Groups.Results() {
			u[GroupKey(rr.Region, g.Group.ID)] = GroupUsage{
				Region:    rr.Region,
				GroupID:   g.Group.ID,
				GroupName: g.Group.Name,
				Names:     g.Names(),
				Failed:    g.Failed(),
			}
		}
	}
	return u
}

// FailedRegions returns the regions whose audit did not complete.
func (r Report) FailedRegions() []string {
	var regions []string
	for _, rr := range r.Regions {
		if rr.Err != nil {
			regions = append(regions, rr.Region)
		}
	}
	return regions
}

// DiffUsage compares current usage against a baseline.
// Groups in an unsettled region are not compared, and a group that failed on
// either side is never reported as modified. Deletions are only reported for
// groups missing from a settled region.
// Diffs are sorted by group key. Returns an empty slice if nothing changed.
func DiffUsage(previous, current Usage, unsettled ...string) []GroupDiff {
	diffs := make([]GroupDiff, 0)

	for key, curr := range current {
		if slices.Contains(unsettled, curr.Region) {
			continue
		}
		prev, ok := previous[key]
		if !ok {
			diffs = append(diffs, newDiff(DiffAdded, curr, curr.Names, nil))
			continue
		}
		if prev.Failed || curr.Failed {
			continue
		}
		added, removed := compareNames(prev.Names, curr.Names)
		if len(added) > 0 || len(removed) > 0 {
			diffs = append(diffs, newDiff(DiffModified, curr, added, removed))
		}
	}

	for key, prev := range previous {
		if slices.Contains(unsettled, prev.Region) {
			continue
		}
		if _, ok := current[key]; !ok {
			diffs = append(diffs, newDiff(DiffDeleted, prev, nil, prev.Names))
		}
	}

	sort.Slice(diffs, func(i, j int) bool {
		return GroupKey(diffs[i].Region, diffs[i].GroupID) < GroupKey(diffs[j].Region, diffs[j].GroupID)
	})
	return diffs
}

func newDiff(t DiffType, u GroupUsage, added, removed []string) GroupDiff {
	return GroupDiff{
		Type:      t,
		Region:    u.Region,
		GroupID:   u.GroupID,
		GroupName: u.GroupName,
		Added:     added,
		Removed:   removed,
	}
}

// compareNames returns names only in curr and names only in prev, in their original order.
func compareNames(prev, curr []string) (added, removed []string) {
	for _, n := range curr {
		if !slices.Contains(prev, n) {
			added = append(added, n)
		}
	}
	for _, n := range prev {
		if !slices.Contains(curr, n) {
			removed = append(removed, n)
		}
	}
	return added, removed
}
