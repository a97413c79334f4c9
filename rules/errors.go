package rules

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrConfiguration is matched by every *ConfigurationError.
var ErrConfiguration = errors.New("rules: invalid constraint")

// ConfigurationError reports a malformed declared constraint.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s for setting %s", e.Reason, e.Setting)
}

// Is reports ErrConfiguration as a match.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// LoadError reports a constraint list that could not be read or parsed.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Cause }

func quote(s string) string { return strconv.Quote(s) }
