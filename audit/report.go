package audit

import (
	"encoding/json"
	"time"

	"github.com/luhtfiimanal/go-serial-audit/rules"
)

// Result is the verdict for one constraint.
type Result struct {
	Setting    string
	Passed     bool
	Observed   rules.Observed
	Constraint rules.Constraint
}

// MarshalJSON emits the expectation under "required" or "forbidden",
// depending on the constraint's mode.
func (r Result) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"setting": r.Setting,
		"valid":   r.Passed,
		"current": r.Observed,
	}
	key := "required"
	if r.Constraint.Action == rules.Forbidden {
		key = "forbidden"
	}
	out[key] = r.Constraint.Expected()
	return json.Marshal(out)
}

// Report is the outcome of one validation pass.
type Report struct {
	Results  []Result
	Complete bool // false when the pass was aborted
	Started  time.Time
	Duration time.Duration
}

// PassCount returns the number of passed results.
func (r *Report) PassCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed {
			n++
		}
	}
	return n
}

// FailCount returns the number of failed results.
func (r *Report) FailCount() int {
	return len(r.Results) - r.PassCount()
}

// Passed reports whether the pass completed with no failures.
func (r *Report) Passed() bool {
	return r.Complete && r.FailCount() == 0
}

// Failures returns the failed results in order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}
