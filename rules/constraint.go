// Package rules holds declared setting constraints and the engine that judges
// observed device values against them.
package rules

import (
	"encoding/json"
	"slices"
)

// Mode says whether a constraint's expectation must hold or must not hold.
type Mode string

const (
	// Required: the setting must equal the value, or be one of the values.
	Required Mode = "="
	// Forbidden: the setting must not equal the value, nor be any of the values.
	Forbidden Mode = "!="
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	return m == Required || m == Forbidden
}

// Constraint is one declared rule about a device setting.
// Exactly one of Value and Values must be set.
type Constraint struct {
	Name   string   `yaml:"name" json:"name"`
	Action Mode     `yaml:"action" json:"action"`
	Value  *string  `yaml:"value,omitempty" json:"value,omitempty"`
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`
}

// Equal builds a constraint requiring name to equal value.
func Equal(name, value string) Constraint {
	return Constraint{Name: name, Action: Required, Value: &value}
}

// NotEqual builds a constraint forbidding name to equal value.
func NotEqual(name, value string) Constraint {
	return Constraint{Name: name, Action: Forbidden, Value: &value}
}

// OneOf builds a constraint requiring name to hold one of values.
func OneOf(name string, values ...string) Constraint {
	return Constraint{Name: name, Action: Required, Values: nonNil(values)}
}

// NoneOf builds a constraint forbidding name to hold any of values.
func NoneOf(name string, values ...string) Constraint {
	return Constraint{Name: name, Action: Forbidden, Values: nonNil(values)}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Validate checks the constraint's shape.
func (c Constraint) Validate() error {
	if !c.Action.Valid() {
		return &ConfigurationError{Setting: c.Name, Reason: "invalid action " + quote(string(c.Action))}
	}
	switch {
	case c.Value == nil && c.Values == nil:
		return &ConfigurationError{Setting: c.Name, Reason: "neither value nor values given"}
	case c.Value != nil && c.Values != nil:
		return &ConfigurationError{Setting: c.Name, Reason: "both value and values given"}
	}
	return nil
}

// Clone returns a deep copy.
func (c Constraint) Clone() Constraint {
	if c.Value != nil {
		v := *c.Value
		c.Value = &v
	}
	if c.Values != nil {
		c.Values = slices.Clone(c.Values)
	}
	return c
}

// Expected returns the single value or the value set, whichever is declared.
func (c Constraint) Expected() any {
	if c.Value != nil {
		return *c.Value
	}
	return c.Values
}

// Observed is a setting value read from a device reply, or its absence.
type Observed struct {
	Value   string
	Present bool
}

// Found returns a present observation of v.
func Found(v string) Observed { return Observed{Value: v, Present: true} }

// Absent is the observation of a setting missing from the reply.
var Absent = Observed{}

func (o Observed) String() string {
	if !o.Present {
		return "<absent>"
	}
	return o.Value
}

// MarshalJSON encodes an absent value as null.
func (o Observed) MarshalJSON() ([]byte, error) {
	if !o.Present {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
