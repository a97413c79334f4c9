package rules

import (
	"regexp"
	"slices"
	"sync"
)

// assignments caches the compiled assignment pattern per setting name.
var assignments sync.Map // string -> *regexp.Regexp

func assignmentPattern(name string) *regexp.Regexp {
	if re, ok := assignments.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?:^|[^\w])` + regexp.QuoteMeta(name) + `[ \t]*=[ \t]*(\w+)`)
	actual, _ := assignments.LoadOrStore(name, re)
	return actual.(*regexp.Regexp)
}

// Extract returns the first value assigned to name in reply, in the form
// "<name> = <token>". The name must match exactly: a longer setting that ends
// in name does not count. The assignment may start mid-line.
func Extract(name, reply string) Observed {
	if name == "" {
		return Absent
	}
	m := assignmentPattern(name).FindStringSubmatch(reply)
	if m == nil {
		return Absent
	}
	return Found(m[1])
}

// Evaluate judges an observed value against c. An absent value equals
// nothing: it fails every Required constraint and passes every Forbidden one.
// A malformed constraint yields a *ConfigurationError.
func Evaluate(c Constraint, obs Observed) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	var match bool
	if c.Value != nil {
		match = obs.Present && obs.Value == *c.Value
	} else {
		match = obs.Present && slices.Contains(c.Values, obs.Value)
	}

	if c.Action == Required {
		return match, nil
	}
	return !match, nil
}
