package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/petal-labs/onething/cli/jobstore"
	"github.com/petal-labs/onething/core"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type palette struct {
	ok   *color.Color
	warn *color.Color
	err  *color.Color
	bold *color.Color
}

// palette returns colours for w, disabled when w is not a terminal.
func (a *App) palette(w io.Writer) palette {
	p := palette{
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		err:  color.New(color.FgRed, color.Bold),
		bold: color.New(color.Bold),
	}
	if !isTerminal(w) {
		for _, c := range []*color.Color{p.ok, p.warn, p.err, p.bold} {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) status(s core.Status) string {
	switch s {
	case core.StatusSuccess:
		return p.ok.Sprint(s)
	case core.StatusFailed:
		return p.err.Sprint(s)
	default:
		return p.warn.Sprint(s)
	}
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func formatProgress(p float64) string {
	return strconv.FormatFloat(p, 'f', 0, 64) + "%"
}

// jobOutcome is the kind-independent view of a job used for printing.
type jobOutcome struct {
	ID        string        `json:"job_id"`
	Kind      jobstore.Kind `json:"kind"`
	Status    core.Status   `json:"status"`
	Progress  float64       `json:"progress"`
	Created   int64         `json:"created,omitempty"`
	URLs      []string      `json:"urls,omitempty"`
	Result    any           `json:"result,omitempty"`
	Error     any           `json:"error,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

func outcomeOf[T any](kind jobstore.Kind, job *core.Job[T], urls []string) jobOutcome {
	o := jobOutcome{
		ID:        job.ID,
		Kind:      kind,
		Status:    job.Status,
		Progress:  job.Progress,
		Created:   job.Created,
		URLs:      urls,
		Error:     job.Error,
		RequestID: job.RequestID,
	}
	if job.Result != nil {
		o.Result = job.Result
	}
	return o
}

// printOutcome writes a job summary and its artifact table.
func (a *App) printOutcome(o jobOutcome) error {
	if a.jsonOutput {
		return writeJSON(a.stdout, o)
	}

	p := a.palette(a.stdout)
	fmt.Fprintf(a.stdout, "%s %s  %s  %s\n", p.bold.Sprint(o.Kind), o.ID, p.status(o.Status), formatProgress(o.Progress))
	if o.RequestID != "" {
		fmt.Fprintf(a.stdout, "request id: %s\n", o.RequestID)
	}
	if o.Status == core.StatusFailed {
		fmt.Fprintf(a.stdout, "error: %v\n", o.Error)
	}
	if len(o.URLs) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(o.URLs))
	for i, u := range o.URLs {
		rows = append(rows, []string{strconv.Itoa(i), u})
	}
	fmt.Fprintln(a.stdout, renderTable([]string{"#", "URL"}, rows, []columnAlignment{alignRight, alignLeft}))
	return nil
}

// newProgressBar returns a 0-100 bar on stderr, or nil when stderr is not
// interactive or JSON output is requested.
func (a *App) newProgressBar(desc string) *progressbar.ProgressBar {
	if a.jsonOutput || !isTerminal(a.stderr) {
		return nil
	}
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(a.stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(true),
	)
}

func setProgress(bar *progressbar.ProgressBar, p float64) {
	if bar == nil {
		return
	}
	_ = bar.Set(int(min(max(p, 0), 100)))
}

func finishProgress(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}
