// Package audit runs a security group audit across regions and assembles the report.
package audit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/sgmap/internal/adapter"
	"github.com/yairfalse/sgmap/internal/config"
	"github.com/yairfalse/sgmap/internal/filter"
	"github.com/yairfalse/sgmap/internal/resolver"
	"github.com/yairfalse/sgmap/pkg/resource"
)

// ErrNoRegions is returned when region resolution leaves nothing to audit.
var ErrNoRegions = errors.New("no regions to audit")

// ErrGroupNotFound is recorded for a requested group that no audited region returned.
var ErrGroupNotFound = errors.New("security group not found in any requested region")

// Session is one region's view of the account.
type Session interface {
	Region() string
	NetworkInterfaces(ctx context.Context, groupID string) ([]resource.NetworkInterface, error)
	SecurityGroups(ctx context.Context, ids []string) ([]resource.SecurityGroup, error)
	Adapters() []adapter.Adapter
}

// RegionLister returns the regions enabled for the account.
type RegionLister interface {
	EnabledRegions(ctx context.Context) ([]string, error)
}

// SessionFactory creates the session for a region.
type SessionFactory func(region string) Session

// Config holds the inputs of one audit run.
type Config struct {
	Regions      []string
	Groups       []string
	FailFast     bool
	AccountID    string
	AccountAlias string
}

// Option configures a Runner.
type Option func(*Runner)

// WithFilter applies service and group tag filters.
func WithFilter(f *filter.Filter) Option {
	return func(r *Runner) {
		r.filter = f
	}
}

// WithRecorder sends adapter measurements to rec.
func WithRecorder(rec resolver.Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner audits every requested region, one after another.
type Runner struct {
	cfg        Config
	regions    RegionLister
	factory    SessionFactory
	classifier resolver.Classifier

	filter   *filter.Filter
	recorder resolver.Recorder
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewRunner creates a runner.
func NewRunner(cfg Config, regions RegionLister, factory SessionFactory, classifier resolver.Classifier, opts ...Option) *Runner {
	r := &Runner{
		cfg:        cfg,
		regions:    regions,
		factory:    factory,
		classifier: classifier,
		logger:     log.Logger,
		tracer:     otel.Tracer("sgmap/audit"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveRegions expands "all" to the enabled regions and checks that every
// explicitly requested region is enabled. Duplicates are dropped.
func (r *Runner) ResolveRegions(ctx context.Context) ([]string, error) {
	if len(r.cfg.Regions) == 0 {
		return nil, ErrNoRegions
	}

	enabled, err := r.regions.EnabledRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve regions: %w", err)
	}

	if slices.Contains(r.cfg.Regions, config.RegionAll) {
		if len(enabled) == 0 {
			return nil, ErrNoRegions
		}
		return enabled, nil
	}

	regions := make([]string, 0, len(r.cfg.Regions))
	for _, region := range r.cfg.Regions {
		if !slices.Contains(enabled, region) {
			return nil, fmt.Errorf("region %q is not enabled for this account", region)
		}
		if !slices.Contains(regions, region) {
			regions = append(regions, region)
		}
	}
	return regions, nil
}

// Run audits every region and returns the report. Region and group failures
// are recorded in the report; an error is returned for region resolution
// failures, cancellation, and the first failure in fail-fast mode.
func (r *Runner) Run(ctx context.Context) (resource.Report, error) {
	start := time.Now()
	report := resource.Report{
		AccountID:    r.cfg.AccountID,
		AccountAlias: r.cfg.AccountAlias,
		StartedAt:    start,
	}

	regions, err := r.ResolveRegions(ctx)
	if err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	r.logger.Info().
		Strs("regions", regions).
		Int("groups", len(r.cfg.Groups)).
		Bool("fail_fast", r.cfg.FailFast).
		Msg("audit starting")

	found := make(map[string]bool)
	listedAll := true
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		rr, listed := r.auditRegion(ctx, region, found)
		report.Regions = append(report.Regions, rr)
		listedAll = listedAll && listed

		if rr.Err != nil && (r.cfg.FailFast || ctx.Err() != nil) {
			report.Duration = time.Since(start)
			return report, rr.Err
		}
	}

	// A group may hide in a region that could not be listed.
	if listedAll {
		if err := r.recordMissing(report, found); err != nil && r.cfg.FailFast {
			report.Duration = time.Since(start)
			return report, err
		}
	}

	report.Duration = time.Since(start)

	r.logger.Info().
		Int("regions", len(report.Regions)).
		Int("groups", report.GroupCount()).
		Int("failures", report.FailureCount()).
		Dur("duration", report.Duration).
		Msg("audit complete")

	return report, nil
}

// recordMissing adds a failed result to the first region for every requested
// group that no region returned.
func (r *Runner) recordMissing(report resource.Report, found map[string]bool) error {
	var missing []string
	for _, id := range r.cfg.Groups {
		if !found[id] && !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 || len(report.Regions) == 0 {
		return nil
	}

	first := report.Regions[0]
	for _, id := range missing {
		first.Groups.Record(resource.GroupResult{
			Group:      resource.SecurityGroup{ID: id},
			Region:     first.Region,
			Candidates: []resource.ServiceType{},
			Matches:    []resource.ServiceMatch{},
			Err:        ErrGroupNotFound,
		})
	}

	r.logger.Warn().Strs("groups", missing).Msg("requested groups not found in any region")
	return fmt.Errorf("%w: %s", ErrGroupNotFound, strings.Join(missing, ", "))
}

// auditRegion audits one region. listed reports whether the region's groups
// could be listed; every group it returns is added to found.
func (r *Runner) auditRegion(ctx context.Context, region string, found map[string]bool) (rr resource.RegionResult, listed bool) {
	ctx, span := r.tracer.Start(ctx, "audit.region", trace.WithAttributes(
		attribute.String("region", region),
	))
	defer span.End()

	start := time.Now()
	logger := r.logger.With().Str("region", region).Logger()
	rr = resource.RegionResult{Region: region, Groups: resource.NewResultMapping()}

	session := r.factory(region)

	groups, err := session.SecurityGroups(ctx, r.cfg.Groups)
	if err != nil {
		rr.Err = fmt.Errorf("list security groups in %s: %w", region, err)
		rr.Duration = time.Since(start)
		span.RecordError(rr.Err)
		span.SetStatus(codes.Error, "list security groups")
		logger.Error().Ctx(ctx).Err(err).Msg("failed to list security groups")
		return rr, false
	}

	for _, g := range groups {
		found[g.ID] = true
	}
	if len(r.cfg.Groups) > 0 {
		groups = orderGroups(groups, r.cfg.Groups)
		if len(groups) < len(r.cfg.Groups) {
			logger.Debug().Ctx(ctx).
				Int("requested", len(r.cfg.Groups)).
				Int("found", len(groups)).
				Msg("some requested groups are not in this region")
		}
	}
	if r.filter != nil {
		groups = r.filter.FilterGroups(groups)
	}

	opts := []resolver.Option{
		resolver.WithFailFast(r.cfg.FailFast),
		resolver.WithRecorder(r.recorder),
		resolver.WithLogger(r.logger),
	}
	if r.filter != nil {
		opts = append(opts, resolver.WithFilter(r.filter))
	}

	registry := adapter.NewRegistry(session.Adapters()...)
	logger.Debug().Ctx(ctx).
		Interface("services", registry.Types()).
		Int("groups", len(groups)).
		Msg("resolving groups")
	res := resolver.New(session.Region(), session, r.classifier, registry, opts...)

	mapping, err := res.Resolve(ctx, groups)
	rr.Groups = mapping
	rr.Duration = time.Since(start)
	if err != nil {
		rr.Err = fmt.Errorf("region %s: %w", region, err)
		span.RecordError(rr.Err)
		span.SetStatus(codes.Error, "resolve")
	}

	span.SetAttributes(
		attribute.Int("groups", mapping.Len()),
		attribute.Int("failures", len(mapping.Failures())),
	)
	logger.Info().Ctx(ctx).
		Int("groups", mapping.Len()).
		Int("failures", len(mapping.Failures())).
		Dur("duration", rr.Duration).
		Msg("region audited")

	return rr, true
}

// orderGroups returns the described groups in the order they were requested.
func orderGroups(groups []resource.SecurityGroup, ids []string) []resource.SecurityGroup {
	byID := make(map[string]resource.SecurityGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	ordered := make([]resource.SecurityGroup, 0, len(groups))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			ordered = append(ordered, g)
			delete(byID, id)
		}
	}
	return ordered
}
