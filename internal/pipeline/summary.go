package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"releasekit/internal/job"
)

// State describes where a job is in its lifecycle.
func State(j *job.Job) string {
	switch {
	case !j.Enabled():
		return "disabled"
	case j.IsFinished() && j.FromCache():
		return "cached"
	case j.IsFinished():
		if code, _ := j.ExitCode(); code == 0 {
			return "done"
		}
		return "failed"
	case j.IsStarted():
		return "running"
	default:
		return "pending"
	}
}

// Summary renders one table row per job.
func Summary(jobs []*job.Job) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Job", "State", "Exit", "Output", "Errors", "Elapsed"})
	for _, j := range jobs {
		exit := "-"
		if code, ok := j.ExitCode(); ok && j.Enabled() {
			exit = strconv.Itoa(code)
		}
		elapsed := "-"
		if d := j.Elapsed(); d > 0 {
			elapsed = d.Round(10 * time.Millisecond).String()
		}
		tw.AppendRow(table.Row{
			j.Label(),
			State(j),
			exit,
			fmt.Sprint(len(j.Output())),
			fmt.Sprint(len(j.Errors())),
			elapsed,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return tw.Render()
}
