package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Reporter writes a validation report. abortErr is the error that stopped
// the pass, or nil.
type Reporter interface {
	Report(report *Report, abortErr error) error
}

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
}

// NewTextReporter creates a new text reporter. Verbose reports list passed
// settings as well as failed ones.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{writer: w, verbose: verbose}
}

// Report writes one line per checked setting and a summary.
func (r *TextReporter) Report(report *Report, abortErr error) error {
	w := &errWriter{w: r.writer}

	status := "COMPLETE"
	if !report.Complete {
		status = "PARTIAL"
	}
	w.printf("=== Settings audit (%s) ===\n", status)

	for _, res := range report.Results {
		if res.Passed && !r.verbose {
			continue
		}
		mark := "PASS"
		if !res.Passed {
			mark = "FAIL"
		}
		w.printf("[%s] %s = %s (%s %v)\n",
			mark, res.Setting, res.Observed, res.Constraint.Action, res.Constraint.Expected())
	}

	w.printf("\n--- Summary ---\n")
	w.printf("Checked: %d\n", len(report.Results))
	w.printf("Passed:  %d\n", report.PassCount())
	w.printf("Failed:  %d\n", report.FailCount())
	w.printf("Duration: %s\n", report.Duration.Round(time.Millisecond))
	if abortErr != nil {
		w.printf("Aborted: %v\n", abortErr)
	}
	return w.err
}

// JSONReporter outputs JSON-formatted reports.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{writer: w, pretty: pretty}
}

// JSONReport is the JSON representation of a report.
type JSONReport struct {
	Complete bool     `json:"complete"`
	Error    string   `json:"error,omitempty"`
	Duration string   `json:"duration"`
	Checked  int      `json:"checked"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Results  []Result `json:"results"`
}

// Report writes the report as a single JSON document.
func (r *JSONReporter) Report(report *Report, abortErr error) error {
	jr := JSONReport{
		Complete: report.Complete,
		Duration: report.Duration.Round(time.Millisecond).String(),
		Checked:  len(report.Results),
		Passed:   report.PassCount(),
		Failed:   report.FailCount(),
		Results:  report.Results,
	}
	if jr.Results == nil {
		jr.Results = []Result{}
	}
	if abortErr != nil {
		jr.Error = abortErr.Error()
	}

	enc := json.NewEncoder(r.writer)
	if r.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(jr)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
