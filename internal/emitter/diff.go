package emitter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// DiffEmitter compares a report against a JSON baseline from an earlier run
// and logs every group whose usage changed.
type DiffEmitter struct {
	baseline string
	previous resource.Usage
	// regions the baseline did not fully audit
	previousFailed []string
	changes  metric.Int64Counter

	mu    sync.Mutex
	diffs []resource.GroupDiff
}

// NewDiffEmitter creates a diff emitter. The baseline at path is read now,
// before any output of this run can overwrite it. A missing baseline is not an error.
func NewDiffEmitter(meter metric.Meter, path string) (*DiffEmitter, error) {
	changes, err := meter.Int64Counter(
		"sgmap_group_changes_total",
		metric.WithDescription("Security group usage changes against the baseline"),
	)
	if err != nil {
		return nil, fmt.Errorf("create group_changes counter: %w", err)
	}

	e := &DiffEmitter{baseline: path, changes: changes}

	doc, err := readBaseline(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("baseline", path).Msg("no baseline yet, skipping diff")
	case err != nil:
		return nil, err
	default:
		e.previous = doc.Usage()
		e.previousFailed = doc.FailedRegions()
	}
	return e, nil
}

// Emit computes and logs the diffs.
func (e *DiffEmitter) Emit(ctx context.Context, report resource.Report) error {
	if e.previous == nil {
		return nil
	}

	diffs := resource.DiffUsage(e.previous, report.Usage(), e.unsettled(report)...)

	for _, diff := range diffs {
		e.changes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("region", diff.Region),
			attribute.String("change_type", string(diff.Type)),
		))

		logEvent := log.Info().
			Str("region", diff.Region).
			Str("group_id", diff.GroupID).
			Str("change", string(diff.Type))
		if diff.GroupName != "" {
			logEvent = logEvent.Str("group_name", diff.GroupName)
		}
		if len(diff.Added) > 0 {
			logEvent = logEvent.Str("added", strings.Join(diff.Added, ","))
		}
		if len(diff.Removed) > 0 {
			logEvent = logEvent.Str("removed", strings.Join(diff.Removed, ","))
		}
		logEvent.Msg("security group usage changed")
	}

	e.mu.Lock()
	e.diffs = diffs
	e.mu.Unlock()

	log.Info().Int("changes", len(diffs)).Str("baseline", e.baseline).Msg("baseline comparison complete")
	return nil
}

// unsettled returns the regions that cannot be compared: failed on either
// side, or present in the baseline but not audited in this run.
func (e *DiffEmitter) unsettled(report resource.Report) []string {
	regions := append(slices.Clone(e.previousFailed), report.FailedRegions()...)

	audited := make(map[string]bool, len(report.Regions))
	for _, rr := range report.Regions {
		audited[rr.Region] = true
	}
	for _, u := range e.previous {
		if !audited[u.Region] && !slices.Contains(regions, u.Region) {
			regions = append(regions, u.Region)
		}
	}
	return regions
}

func readBaseline(path string) (Document, error) {
	f, err := os.Open(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = f.Close() }()

	doc, err := ReadDocument(f)
	if err != nil {
		return Document{}, fmt.Errorf("read baseline %s: %w", path, err)
	}
	return doc, nil
}

// Diffs returns the changes found by the last Emit.
func (e *DiffEmitter) Diffs() []resource.GroupDiff {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diffs
}

// Close is a no-op for diff emitter.
func (e *DiffEmitter) Close() error {
	return nil
}
