package emitter

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// PrometheusEmitter exposes the report as OTEL gauges and writes them,
// together with the run's adapter metrics, to a node_exporter textfile.
type PrometheusEmitter struct {
	meter    metric.Meter
	gatherer promclient.Gatherer
	path     string

	// Metrics
	groupInfo     metric.Int64ObservableGauge
	groupServices metric.Int64ObservableGauge
	auditDuration metric.Float64ObservableGauge
	auditFailures metric.Int64ObservableGauge

	// State for observable gauges
	mu     sync.RWMutex
	report *resource.Report
}

// NewPrometheusEmitter creates a Prometheus emitter. path may be empty, in which
// case the gauges are only visible through the meter's readers.
func NewPrometheusEmitter(meter metric.Meter, gatherer promclient.Gatherer, path string) (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{
		meter:    meter,
		gatherer: gatherer,
		path:     path,
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	e.groupInfo, err = e.meter.Int64ObservableGauge(
		"sgmap_group_info",
		metric.WithDescription("Audited security group, in_use is true when any service resolved"),
	)
	if err != nil {
		return fmt.Errorf("create group_info gauge: %w", err)
	}

	e.groupServices, err = e.meter.Int64ObservableGauge(
		"sgmap_group_services",
		metric.WithDescription("Resources of one service type using a security group"),
	)
	if err != nil {
		return fmt.Errorf("create group_services gauge: %w", err)
	}

	e.auditDuration, err = e.meter.Float64ObservableGauge(
		"sgmap_audit_duration_seconds",
		metric.WithDescription("Duration of the last audit"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create audit_duration gauge: %w", err)
	}

	e.auditFailures, err = e.meter.Int64ObservableGauge(
		"sgmap_audit_failures",
		metric.WithDescription("Failed regions and groups in the last audit"),
	)
	if err != nil {
		return fmt.Errorf("create audit_failures gauge: %w", err)
	}

	_, err = e.meter.RegisterCallback(e.observe,
		e.groupInfo, e.groupServices, e.auditDuration, e.auditFailures)
	if err != nil {
		return fmt.Errorf("register callback: %w", err)
	}

	return nil
}

// Emit records the report and writes the textfile if configured.
func (e *PrometheusEmitter) Emit(_ context.Context, report resource.Report) error {
	e.mu.Lock()
	e.report = &report
	e.mu.Unlock()

	if e.path == "" || e.gatherer == nil {
		return nil
	}

	if err := promclient.WriteToTextfile(e.path, e.gatherer); err != nil {
		return fmt.Errorf("write prometheus textfile: %w", err)
	}

	log.Info().
		Str("path", e.path).
		Int("groups", report.GroupCount()).
		Msg("prometheus textfile written")

	return nil
}

// observe is the callback for every report gauge.
func (e *PrometheusEmitter) observe(_ context.Context, o metric.Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.report == nil {
		return nil
	}

	account := attribute.String("account", e.report.AccountID)
	o.ObserveFloat64(e.auditDuration, e.report.Duration.Seconds(), metric.WithAttributes(account))
	o.ObserveInt64(e.auditFailures, int64(e.report.FailureCount()), metric.WithAttributes(account))

	for _, rr := range e.report.Regions {
		if rr.Groups == nil {
			continue
		}
		for _, g := range rr.Groups.Results() {
			base := []attribute.KeyValue{
				attribute.String("region", rr.Region),
				attribute.String("group_id", g.Group.ID),
			}

			info := append(base,
				attribute.String("group_name", g.Group.Name),
				attribute.String("vpc_id", g.Group.VpcID),
				attribute.String("in_use", strconv.FormatBool(len(g.Names()) > 0)),
				attribute.String("failed", strconv.FormatBool(g.Failed())),
			)
			o.ObserveInt64(e.groupInfo, 1, metric.WithAttributes(info...))

			for _, m := range g.Matches {
				attrs := append(base, attribute.String("service", string(m.Service)))
				o.ObserveInt64(e.groupServices, int64(len(m.Names)), metric.WithAttributes(attrs...))
			}
		}
	}

	return nil
}

// Close is a no-op for Prometheus emitter.
func (e *PrometheusEmitter) Close() error {
	return nil
}
