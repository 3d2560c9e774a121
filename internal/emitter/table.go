package emitter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// TableEmitter writes a human-readable table, one row per group.
type TableEmitter struct {
	w io.Writer
}

// NewTableEmitter creates a table emitter writing to w.
func NewTableEmitter(w io.Writer) *TableEmitter {
	return &TableEmitter{w: w}
}

// Emit writes the report.
func (e *TableEmitter) Emit(_ context.Context, report resource.Report) error {
	if _, err := fmt.Fprintf(e.w, "%s\n\n", report.Title()); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	tw := tabwriter.NewWriter(e.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tGROUP\tNAME\tSERVICES\tERRORS")

	for _, rr := range report.Regions {
		if rr.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%s\n", rr.Region, oneLine(rr.Err))
		}
		if rr.Groups == nil {
			continue
		}
		for _, g := range rr.Groups.Results() {
			errText := ""
			if g.Failed() {
				errText = oneLine(g.Error())
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				rr.Region, g.Group.ID, dash(g.Group.Name), formatMatches(g.Matches), errText)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}

	_, err := fmt.Fprintf(e.w, "\n%d groups, %d failures, took %s\n",
		report.GroupCount(), report.FailureCount(), report.Duration.Round(time.Millisecond))
	return err
}

// Close is a no-op; the caller owns the writer.
func (e *TableEmitter) Close() error {
	return nil
}

func formatMatches(matches []resource.ServiceMatch) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m.Names) == 0 {
			continue
		}
		parts = append(parts, string(m.Service)+": "+strings.Join(m.Names, ", "))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "; ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func oneLine(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}
