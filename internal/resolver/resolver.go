// Package resolver maps security groups to the services that use them.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/sgmap/internal/adapter"
	"github.com/yairfalse/sgmap/pkg/resource"
)

// InterfaceLister returns the network interfaces governed by a group.
type InterfaceLister interface {
	NetworkInterfaces(ctx context.Context, groupID string) ([]resource.NetworkInterface, error)
}

// Classifier infers candidate service types from interfaces.
type Classifier interface {
	Classify(ifaces []resource.NetworkInterface) []resource.ServiceType
}

// ServiceFilter decides whether a candidate service type is queried.
type ServiceFilter interface {
	ShouldQueryService(t resource.ServiceType) bool
}

// Recorder receives per-adapter measurements.
type Recorder interface {
	RecordAdapterQuery(ctx context.Context, region string, service resource.ServiceType, d time.Duration, count int)
	RecordAdapterError(ctx context.Context, region string, service resource.ServiceType)
	RecordIndexLoad(ctx context.Context, region string, service resource.ServiceType)
}

type nopRecorder struct{}

func (nopRecorder) RecordAdapterQuery(context.Context, string, resource.ServiceType, time.Duration, int) {}

func (nopRecorder) RecordAdapterError(context.Context, string, resource.ServiceType) {}

func (nopRecorder) RecordIndexLoad(context.Context, string, resource.ServiceType) {}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFailFast stops at the first failure instead of recording it and moving on.
func WithFailFast(failFast bool) Option {
	return func(r *Resolver) {
		r.failFast = failFast
	}
}

// WithFilter skips candidate service types the filter rejects.
func WithFilter(f ServiceFilter) Option {
	return func(r *Resolver) {
		r.filter = f
	}
}

// WithRecorder sends adapter measurements to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver walks groups one at a time: list interfaces, classify, query adapters.
type Resolver struct {
	region     string
	lister     InterfaceLister
	classifier Classifier
	registry   *adapter.Registry

	failFast bool
	filter   ServiceFilter
	recorder Recorder
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// New creates a resolver for one region.
func New(region string, lister InterfaceLister, classifier Classifier, registry *adapter.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		region:     region,
		lister:     lister,
		classifier: classifier,
		registry:   registry,
		recorder:   nopRecorder{},
		logger:     log.Logger,
		tracer:     otel.Tracer("sgmap/resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("region", region).Logger()
	return r
}

// Resolve resolves every group in order and records each one, including
// groups with no interfaces. With fail-fast set, the first failure is
// returned together with the groups resolved so far.
func (r *Resolver) Resolve(ctx context.Context, groups []resource.SecurityGroup) (*resource.ResultMapping, error) {
	mapping := resource.NewResultMapping()

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return mapping, err
		}

		result, err := r.ResolveGroup(ctx, group)
		mapping.Record(result)
		if err != nil {
			return mapping, err
		}
	}

	return mapping, nil
}

// ResolveGroup resolves a single group. Failures are kept on the result; an
// error is returned only in fail-fast mode.
func (r *Resolver) ResolveGroup(ctx context.Context, group resource.SecurityGroup) (resource.GroupResult, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.group", trace.WithAttributes(
		attribute.String("region", r.region),
		attribute.String("group_id", group.ID),
	))
	defer span.End()

	logger := r.logger.With().Str("group_id", group.ID).Logger()
	result := resource.GroupResult{
		Group:      group,
		Region:     r.region,
		Candidates: []resource.ServiceType{},
		Matches:    []resource.ServiceMatch{},
	}

	ifaces, err := r.lister.NetworkInterfaces(ctx, group.ID)
	if err != nil {
		result.Err = fmt.Errorf("list interfaces for %s: %w", group.ID, err)
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "list interfaces")
		logger.Error().Ctx(ctx).Err(err).Msg("failed to list network interfaces")
		if r.failFast {
			return result, result.Err
		}
		return result, nil
	}
	result.Interfaces = len(ifaces)
	result.Candidates = r.classifier.Classify(ifaces)

	logger.Debug().Ctx(ctx).
		Int("interfaces", len(ifaces)).
		Interface("candidates", result.Candidates).
		Msg("classified group")

	for _, typ := range result.Candidates {
		if r.filter != nil && !r.filter.ShouldQueryService(typ) {
			result.Skipped = append(result.Skipped, typ)
			continue
		}
		a, err := r.registry.Lookup(typ)
		if errors.Is(err, adapter.ErrUnknownService) {
			logger.Debug().Ctx(ctx).Err(err).Msg("skipping service")
			result.Skipped = append(result.Skipped, typ)
			continue
		}

		names, err := r.query(ctx, a, group.ID)
		if err != nil {
			svcErr := resource.ServiceError{Service: typ, Err: err}
			result.Errors = append(result.Errors, svcErr)
			span.RecordError(svcErr)
			span.SetStatus(codes.Error, string(typ))
			logger.Error().Ctx(ctx).Err(err).Str("service", string(typ)).Msg("adapter lookup failed")
			if r.failFast {
				return result, fmt.Errorf("group %s: %w", group.ID, svcErr)
			}
			continue
		}

		result.Matches = append(result.Matches, resource.ServiceMatch{Service: typ, Names: names})
	}

	span.SetAttributes(attribute.Int("resolved", len(result.Names())))
	return result, nil
}

func (r *Resolver) query(ctx context.Context, a adapter.Adapter, groupID string) ([]string, error) {
	typ := a.Type()

	preload, isPreload := a.(adapter.Preloadable)
	wasLoaded := isPreload && preload.Loaded()

	start := time.Now()
	names, err := a.ServiceNamesInGroup(ctx, groupID)
	elapsed := time.Since(start)

	if isPreload && !wasLoaded && preload.Loaded() {
		r.recorder.RecordIndexLoad(ctx, r.region, typ)
		ev := r.logger.Debug().Ctx(ctx).
			Str("service", string(typ)).
			Dur("duration", elapsed)
		if s, ok := a.(fmt.Stringer); ok {
			ev = ev.Stringer("index", s)
		}
		ev.Msg("service index loaded")
	}

	if err != nil {
		r.recorder.RecordAdapterError(ctx, r.region, typ)
		return nil, err
	}

	r.recorder.RecordAdapterQuery(ctx, r.region, typ, elapsed, len(names))
	return names, nil
}
