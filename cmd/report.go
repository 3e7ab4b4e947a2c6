package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chaos-io/bgstrip/pipeline"
	"github.com/pterm/pterm"
)

// printReport writes a per-file table followed by the totals.
func printReport(w io.Writer, report *pipeline.Report) error {
	data := pterm.TableData{{"Input", "Status", "Output / Reason", "Time"}}
	for _, res := range report.Results {
		detail := res.Output
		if res.Status != pipeline.StatusSucceeded {
			detail = res.Reason
		}
		data = append(data, []string{res.Input, statusLabel(res.Status), detail, res.Duration.Round(time.Millisecond).String()})
	}

	if len(report.Results) > 0 {
		if err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).WithWriter(w).Render(); err != nil {
			return err
		}
	}

	c := report.Counts()
	summary := fmt.Sprintf("run %s: %d succeeded, %d rejected, %d failed in %s",
		report.RunID, c.Succeeded, c.Rejected, c.Failed,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	switch {
	case report.Canceled:
		pterm.Warning.WithWriter(w).Println(summary + " (canceled)")
	case c.Failed > 0 || c.Rejected > 0:
		pterm.Warning.WithWriter(w).Println(summary)
	default:
		pterm.Success.WithWriter(w).Println(summary)
	}
	return nil
}

func printReportJSON(w io.Writer, report *pipeline.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func statusLabel(s pipeline.Status) string {
	switch s {
	case pipeline.StatusSucceeded:
		return pterm.FgGreen.Sprint(string(s))
	case pipeline.StatusRejected:
		return pterm.FgYellow.Sprint(string(s))
	default:
		return pterm.FgRed.Sprint(string(s))
	}
}
