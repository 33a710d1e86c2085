package testtools

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type phaseResult struct {
	name     string
	duration time.Duration
	err      error
}

func (o *Orchestrator) recordPhase(name string, start time.Time, err error) {
	o.phases = append(o.phases, phaseResult{
		name:     name,
		duration: time.Since(start),
		err:      err,
	})
}

// printSummary renders the lifecycle phases of the run as a table on
// stdout.
func (o *Orchestrator) printSummary(total time.Duration, runErr error) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Test Environment Run (%s)", o.runID))

	t.AppendHeader(table.Row{"Phase", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, phase := range o.phases {
		status := "✓ ok"
		errMsg := ""
		if phase.err != nil {
			status = "✗ failed"
			errMsg = phase.err.Error()
		}
		t.AppendRow(table.Row{phase.name, formatDuration(phase.duration), status, errMsg})
	}

	overall := "✓ pass"
	if runErr != nil {
		overall = "✗ fail"
	}
	t.AppendFooter(table.Row{"TOTAL", formatDuration(total), overall, ""})

	if runErr == nil {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.Render()
}

// formatDuration formats a duration as seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
