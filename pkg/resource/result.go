package resource

import (
	"errors"
	"time"
)

// ServiceError records a failed lookup for one service type within one group.
type ServiceError struct {
	Service ServiceType `json:"service"`
	Err     error       `json:"-"`
}

func (e ServiceError) Error() string {
	return string(e.Service) + ": " + e.Err.Error()
}

func (e ServiceError) Unwrap() error {
	return e.Err
}

// ServiceMatch holds the names one service type resolved for a group.
type ServiceMatch struct {
	Service ServiceType `json:"service"`
	Names   []string    `json:"names"`
}

// GroupResult is the resolved usage of a single security group.
type GroupResult struct {
	Group      SecurityGroup  `json:"group"`
	Region     string         `json:"region"`
	Interfaces int            `json:"interfaces"`
	Candidates []ServiceType  `json:"candidates"`
	Matches    []ServiceMatch `json:"matches"`
	Skipped    []ServiceType  `json:"skipped,omitempty"`
	Errors     []ServiceError `json:"-"`
	Err        error          `json:"-"`
}

// Names returns every resolved name in candidate order.
func (g GroupResult) Names() []string {
	names := make([]string, 0)
	for _, m := range g.Matches {
		names = append(names, m.Names...)
	}
	return names
}

// NamesFor returns the names resolved by a single service type.
func (g GroupResult) NamesFor(t ServiceType) []string {
	for _, m := range g.Matches {
		if m.Service == t {
			return m.Names
		}
	}
	return nil
}

// Failed reports whether any part of the group could not be resolved.
func (g GroupResult) Failed() bool {
	return g.Err != nil || len(g.Errors) > 0
}

// Error joins the group level and per-service failures.
func (g GroupResult) Error() error {
	errs := make([]error, 0, len(g.Errors)+1)
	if g.Err != nil {
		errs = append(errs, g.Err)
	}
	for _, e := range g.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// ResultMapping maps security group IDs to their results, keeping query order.
type ResultMapping struct {
	order   []string
	results map[string]GroupResult
}

// NewResultMapping returns an empty mapping.
func NewResultMapping() *ResultMapping {
	return &ResultMapping{results: make(map[string]GroupResult)}
}

// Record stores a group result. A group recorded twice keeps its first position.
func (m *ResultMapping) Record(r GroupResult) {
	id := r.Group.ID
	if _, ok := m.results[id]; !ok {
		m.order = append(m.order, id)
	}
	m.results[id] = r
}

// Get returns the result for a group.
func (m *ResultMapping) Get(groupID string) (GroupResult, bool) {
	r, ok := m.results[groupID]
	return r, ok
}

// Names returns the resolved names for a group, nil if the group is absent.
func (m *ResultMapping) Names(groupID string) []string {
	r, ok := m.results[groupID]
	if !ok {
		return nil
	}
	return r.Names()
}

// Keys returns group IDs in query order.
func (m *ResultMapping) Keys() []string {
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	return keys
}

// Results returns group results in query order.
func (m *ResultMapping) Results() []GroupResult {
	results := make([]GroupResult, 0, len(m.order))
	for _, id := range m.order {
		results = append(results, m.results[id])
	}
	return results
}

// Len returns the number of recorded groups.
func (m *ResultMapping) Len() int {
	return len(m.order)
}

// Failures returns the groups with at least one failure.
func (m *ResultMapping) Failures() []GroupResult {
	var failed []GroupResult
	for _, id := range m.order {
		if r := m.results[id]; r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// RegionResult holds the mapping produced for one region.
type RegionResult struct {
	Region   string
	Groups   *ResultMapping
	Duration time.Duration
	Err      error
}

// Report is the final artifact handed to emitters.
type Report struct {
	AccountID    string
	AccountAlias string
	StartedAt    time.Time
	Duration     time.Duration
	Regions      []RegionResult
}

// Title returns a human-readable report title.
func (r Report) Title() string {
	switch {
	case r.AccountAlias != "":
		return r.AccountAlias + " security groups and associated services"
	case r.AccountID != "":
		return r.AccountID + " security groups and associated services"
	default:
		return "security groups and associated services"
	}
}

// GroupCount returns the number of groups across all regions.
func (r Report) GroupCount() int {
	n := 0
	for _, rr := range r.Regions {
		if rr.Groups != nil {
			n += rr.Groups.Len()
		}
	}
	return n
}

// FailureCount returns the number of failed regions and groups.
func (r Report) FailureCount() int {
	n := 0
	for _, rr := range r.Regions {
		if rr.Err != nil {
			n++
		}
		if rr.Groups != nil {
			n += len(rr.Groups.Failures())
		}
	}
	return n
}
