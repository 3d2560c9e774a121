package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "us-east-1|sg-1", GroupKey("us-east-1", "sg-1"))
	assert.NotEqual(t, GroupKey("us-east-1", "sg-1"), GroupKey("eu-west-1", "sg-1"))
}

func TestDiffType_Constants(t *testing.T) {
	assert.Equal(t, DiffType("added"), DiffAdded)
	assert.Equal(t, DiffType("deleted"), DiffDeleted)
	assert.Equal(t, DiffType("modified"), DiffModified)
}

func TestReport_Usage_MarksFailedGroups(t *testing.T) {
	m := NewResultMapping()
	m.Record(GroupResult{
		Group:   SecurityGroup{ID: "sg-1", Name: "web"},
		Matches: []ServiceMatch{{Service: ServiceEC2, Names: []string{"web-1"}}},
	})
	m.Record(GroupResult{
		Group:  SecurityGroup{ID: "sg-2"},
		Errors: []ServiceError{{Service: ServiceRDS, Err: errors.New("denied")}},
	})
	report := Report{Regions: []RegionResult{{Region: "us-east-1", Groups: m}, {Region: "eu-west-1"}}}

	u := report.Usage()

	require.Len(t, u, 2)
	got := u[GroupKey("us-east-1", "sg-1")]
	assert.Equal(t, "web", got.GroupName)
	assert.Equal(t, []string{"web-1"}, got.Names)
	assert.False(t, got.Failed)
	assert.True(t, u[GroupKey("us-east-1", "sg-2")].Failed)
}

func TestReport_FailedRegions(t *testing.T) {
	report := Report{Regions: []RegionResult{
		{Region: "us-east-1", Groups: NewResultMapping()},
		{Region: "eu-west-1", Err: errors.New("throttled")},
	}}

	assert.Equal(t, []string{"eu-west-1"}, report.FailedRegions())
	assert.Empty(t, Report{}.FailedRegions())
}

func TestDiffUsage_FailedGroupIsNotDeleted(t *testing.T) {
	baseline := NewResultMapping()
	baseline.Record(GroupResult{
		Group:   SecurityGroup{ID: "sg-1"},
		Matches: []ServiceMatch{{Service: ServiceRDS, Names: []string{"db-1"}}},
	})
	current := NewResultMapping()
	current.Record(GroupResult{
		Group:  SecurityGroup{ID: "sg-1"},
		Errors: []ServiceError{{Service: ServiceRDS, Err: errors.New("throttled")}},
	})
	prev := Report{Regions: []RegionResult{{Region: "us-east-1", Groups: baseline}}}
	curr := Report{Regions: []RegionResult{{Region: "us-east-1", Groups: current}}}

	assert.Empty(t, DiffUsage(prev.Usage(), curr.Usage(), curr.FailedRegions()...))
}

func TestDiffUsage_FailedRegionIsNotDeleted(t *testing.T) {
	baseline := NewResultMapping()
	baseline.Record(GroupResult{
		Group:   SecurityGroup{ID: "sg-1"},
		Matches: []ServiceMatch{{Service: ServiceRDS, Names: []string{"db-1"}}},
	})
	prev := Report{Regions: []RegionResult{{Region: "us-east-1", Groups: baseline}}}
	curr := Report{Regions: []RegionResult{{Region: "us-east-1", Err: errors.New("throttled")}}}

	assert.Empty(t, DiffUsage(prev.Usage(), curr.Usage(), curr.FailedRegions()...))
}

func TestDiffUsage_FailedBaselineGroupIsNotModified(t *testing.T) {
	prev := Usage{"r|sg-1": {Region: "r", GroupID: "sg-1", Failed: true}}
	curr := Usage{"r|sg-1": {Region: "r", GroupID: "sg-1", Names: []string{"a"}}}

	assert.Empty(t, DiffUsage(prev, curr))
}

func TestDiffUsage_NoChanges(t *testing.T) {
	u := Usage{
		"us-east-1|sg-1": {Region: "us-east-1", GroupID: "sg-1", Names: []string{"a", "b"}},
	}

	diffs := DiffUsage(u, u)

	require.NotNil(t, diffs)
	assert.Empty(t, diffs)
}

func TestDiffUsage_NameOrderIgnored(t *testing.T) {
	prev := Usage{"r|sg-1": {Region: "r", GroupID: "sg-1", Names: []string{"a", "b"}}}
	curr := Usage{"r|sg-1": {Region: "r", GroupID: "sg-1", Names: []string{"b", "a"}}}

	assert.Empty(t, DiffUsage(prev, curr))
}

func TestDiffUsage_AllKinds(t *testing.T) {
	prev := Usage{
		"r|sg-1": {Region: "r", GroupID: "sg-1", Names: []string{"web-1", "web-2"}},
		"r|sg-2": {Region: "r", GroupID: "sg-2", Names: []string{"db"}},
	}
	curr := Usage{
		"r|sg-1": {Region: "r", GroupID: "sg-1", Names: []string{"web-2", "web-3"}},
		"r|sg-3": {Region: "r", GroupID: "sg-3", GroupName: "new", Names: []string{"lb"}},
	}

	diffs := DiffUsage(prev, curr)

	require.Len(t, diffs, 3)

	assert.Equal(t, DiffModified, diffs[0].Type)
	assert.Equal(t, "sg-1", diffs[0].GroupID)
	assert.Equal(t, []string{"web-3"}, diffs[0].Added)
	assert.Equal(t, []string{"web-1"}, diffs[0].Removed)

	assert.Equal(t, DiffDeleted, diffs[1].Type)
	assert.Equal(t, "sg-2", diffs[1].GroupID)
	assert.Equal(t, []string{"db"}, diffs[1].Removed)
	assert.Empty(t, diffs[1].Added)

	assert.Equal(t, DiffAdded, diffs[2].Type)
	assert.Equal(t, "sg-3", diffs[2].GroupID)
	assert.Equal(t, "new", diffs[2].GroupName)
	assert.Equal(t, []string{"lb"}, diffs[2].Added)
}

func TestDiffUsage_EmptyBaseline(t *testing.T) {
	curr := Usage{"r|sg-1": {Region: "r", GroupID: "sg-1"}}

	diffs := DiffUsage(nil, curr)

	require.Len(t, diffs, 1)
	assert.Equal(t, DiffAdded, diffs[0].Type)
}
