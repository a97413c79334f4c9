package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse reads a YAML or JSON list of constraints. Only names are checked here;
// action and value shape are checked when the constraint is evaluated.
func Parse(data []byte) ([]Constraint, error) {
	var list []Constraint
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, &LoadError{Message: "failed to parse constraints", Cause: err}
	}
	for i, c := range list {
		if c.Name == "" {
			return nil, &LoadError{Message: fmt.Sprintf("constraint %d: name is required", i)}
		}
	}
	return list, nil
}

// Load reads the constraint list from a file.
func Load(path string) ([]Constraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	list, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	return list, nil
}
