package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// Document is the JSON form of a report. It is also read back as a diff baseline.
type Document struct {
	Title        string           `json:"title"`
	AccountID    string           `json:"account_id,omitempty"`
	AccountAlias string           `json:"account_alias,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     string           `json:"duration"`
	Regions      []RegionDocument `json:"regions"`
}

// RegionDocument is one region of a Document.
type RegionDocument struct {
	Region string          `json:"region"`
	Error  string          `json:"error,omitempty"`
	Groups []GroupDocument `json:"groups"`
}

// GroupDocument is one security group of a Document.
type GroupDocument struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name,omitempty"`
	Description string                  `json:"description,omitempty"`
	VpcID       string                  `json:"vpc_id,omitempty"`
	Interfaces  int                     `json:"interfaces"`
	Candidates  []resource.ServiceType  `json:"candidates"`
	Services    []resource.ServiceMatch `json:"services"`
	Skipped     []resource.ServiceType  `json:"skipped,omitempty"`
	Names       []string                `json:"names"`
	Errors      []string                `json:"errors,omitempty"`
}

// NewDocument converts a report to its JSON form.
func NewDocument(report resource.Report) Document {
	doc := Document{
		Title:        report.Title(),
		AccountID:    report.AccountID,
		AccountAlias: report.AccountAlias,
		StartedAt:    report.StartedAt,
		Duration:     report.Duration.String(),
		Regions:      make([]RegionDocument, 0, len(report.Regions)),
	}

	for _, rr := range report.Regions {
		rd := RegionDocument{Region: rr.Region, Groups: make([]GroupDocument, 0)}
		if rr.Err != nil {
			rd.Error = rr.Err.Error()
		}
		if rr.Groups != nil {
			for _, g := range rr.Groups.Results() {
				rd.Groups = append(rd.Groups, newGroupDocument(g))
			}
		}
		doc.Regions = append(doc.Regions, rd)
	}
	return doc
}

func newGroupDocument(g resource.GroupResult) GroupDocument {
	gd := GroupDocument{
		ID:          g.Group.ID,
		Name:        g.Group.Name,
		Description: g.Group.Description,
		VpcID:       g.Group.VpcID,
		Interfaces:  g.Interfaces,
		Candidates:  nonNil(g.Candidates),
		Services:    nonNil(g.Matches),
		Skipped:     g.Skipped,
		Names:       g.Names(),
	}
	if g.Err != nil {
		gd.Errors = append(gd.Errors, g.Err.Error())
	}
	for _, e := range g.Errors {
		gd.Errors = append(gd.Errors, e.Error())
	}
	return gd
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return make([]T, 0)
	}
	return s
}

// Usage returns the usage of every group in the document.
func (d Document) Usage() resource.Usage {
	u := make(resource.Usage)
	for _, rd := range d.Regions {
		for _, g := range rd.Groups {
			u[resource.GroupKey(rd.Region, g.ID)] = resource.GroupUsage{
				Region:    rd.Region,
				GroupID:   g.ID,
				GroupName: g.Name,
				Names:     g.Names,
				Failed:    len(g.Errors) > 0,
			}
		}
	}
	return u
}

// FailedRegions returns the regions recorded with an error.
func (d Document) FailedRegions() []string {
	var regions []string
	for _, rd := range d.Regions {
		if rd.Error != "" {
			regions = append(regions, rd.Region)
		}
	}
	return regions
}

// ReadDocument decodes a report previously written by JSONEmitter.
func ReadDocument(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode report: %w", err)
	}
	return doc, nil
}

// JSONEmitter writes the report as an indented JSON document.
type JSONEmitter struct {
	w io.Writer
}

// NewJSONEmitter creates a JSON emitter writing to w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{w: w}
}

// Emit writes the report.
func (e *JSONEmitter) Emit(_ context.Context, report resource.Report) error {
	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewDocument(report)); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the writer.
func (e *JSONEmitter) Close() error {
	return nil
}
