package emitter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// CSVEmitter writes one row per group with a column per service type.
type CSVEmitter struct {
	w io.Writer
}

// NewCSVEmitter creates a CSV emitter writing to w.
func NewCSVEmitter(w io.Writer) *CSVEmitter {
	return &CSVEmitter{w: w}
}

// Header returns the CSV column names.
func (e *CSVEmitter) Header() []string {
	header := []string{"region", "group_id", "group_name", "vpc_id", "interfaces"}
	for _, t := range resource.ServiceTypes {
		header = append(header, string(t))
	}
	return append(header, "errors")
}

// Emit writes the report.
func (e *CSVEmitter) Emit(_ context.Context, report resource.Report) error {
	cw := csv.NewWriter(e.w)
	if err := cw.Write(e.Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rr := range report.Regions {
		if rr.Err != nil {
			row := make([]string, len(e.Header()))
			row[0] = rr.Region
			row[len(row)-1] = oneLine(rr.Err)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
		if rr.Groups == nil {
			continue
		}
		for _, g := range rr.Groups.Results() {
			if err := cw.Write(csvRow(rr.Region, g)); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvRow(region string, g resource.GroupResult) []string {
	row := []string{region, g.Group.ID, g.Group.Name, g.Group.VpcID, fmt.Sprint(g.Interfaces)}
	for _, t := range resource.ServiceTypes {
		row = append(row, strings.Join(g.NamesFor(t), "; "))
	}
	errText := ""
	if g.Failed() {
		errText = oneLine(g.Error())
	}
	return append(row, errText)
}

// Close is a no-op; the caller owns the writer.
func (e *CSVEmitter) Close() error {
	return nil
}
