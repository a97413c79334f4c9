// Package audit checks a device's settings against declared constraints and
// reports the outcome.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/luhtfiimanal/go-serial-audit/agent"
	"github.com/luhtfiimanal/go-serial-audit/rules"
)

// Querier fetches the raw reply to a setting query. *agent.Agent implements it.
type Querier interface {
	Get(ctx context.Context, setting string) (agent.Reply, error)
}

// Validator runs constraints against a device one at a time.
type Validator struct {
	q      Querier
	logger *slog.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = l }
}

// NewValidator creates a Validator that queries the device through q.
func NewValidator(q Querier, opts ...ValidatorOption) *Validator {
	v := &Validator{
		q:      q,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateAll checks every constraint in order and returns one Result per
// constraint, in the same order.
//
// A malformed constraint, a transport failure, or a cancelled ctx stops the
// pass. The report gathered so far is returned with the error and has
// Complete set to false.
func (v *Validator) ValidateAll(ctx context.Context, constraints []rules.Constraint) (*Report, error) {
	report := &Report{
		Results: make([]Result, 0, len(constraints)),
		Started: time.Now(),
	}
	defer func() { report.Duration = time.Since(report.Started) }()

	for i, c := range constraints {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := v.validate(ctx, c)
		if err != nil {
			v.logger.Error("validation aborted", "setting", c.Name, "index", i, "error", err)
			return report, err
		}
		v.logger.Info("setting checked",
			"setting", res.Setting,
			"passed", res.Passed,
			"current", res.Observed.String())
		report.Results = append(report.Results, res)
	}
	report.Complete = true
	return report, nil
}

func (v *Validator) validate(ctx context.Context, c rules.Constraint) (Result, error) {
	if err := c.Validate(); err != nil {
		return Result{}, err
	}
	reply, err := v.q.Get(ctx, c.Name)
	if err != nil {
		return Result{}, fmt.Errorf("query %s: %w", c.Name, err)
	}
	obs := rules.Extract(c.Name, reply.String())
	passed, err := rules.Evaluate(c, obs)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Setting:    c.Name,
		Passed:     passed,
		Observed:   obs,
		Constraint: c.Clone(),
	}, nil
}
