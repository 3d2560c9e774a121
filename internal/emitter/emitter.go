// Package emitter renders sgmap audit reports.
package emitter

import (
	"context"
	"errors"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// Emitter outputs an audit report to a backend.
type Emitter interface {
	// Emit renders the report.
	Emit(ctx context.Context, report resource.Report) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters in order, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, report resource.Report) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every emitter and joins their errors.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped emitters.
func (m *MultiEmitter) Len() int {
	return len(m.emitters)
}
