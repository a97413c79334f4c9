package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/luhtfiimanal/go-serial-audit/agent"
	"github.com/luhtfiimanal/go-serial-audit/rules"
)

type stubQuerier struct{ mock.Mock }

func (s *stubQuerier) Get(ctx context.Context, setting string) (agent.Reply, error) {
	args := s.Called(ctx, setting)
	return args.Get(0).(agent.Reply), args.Error(1)
}

func TestValidateAll_EndToEndExample(t *testing.T) {
	q := &stubQuerier{}
	q.On("Get", mock.Anything, "crash_recovery").Return(agent.Reply("crash_recovery = on\r\n"), nil).Once()
	q.On("Get", mock.Anything, "crash_recovery").Return(agent.Reply("crash_recovery = off\r\n"), nil).Once()

	v := NewValidator(q)
	c := rules.Equal("crash_recovery", "on")

	report, err := v.ValidateAll(context.Background(), []rules.Constraint{c})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Passed)
	assert.Equal(t, rules.Found("on"), report.Results[0].Observed)
	assert.True(t, report.Complete)
	assert.True(t, report.Passed())

	report, err = v.ValidateAll(context.Background(), []rules.Constraint{c})
	require.NoError(t, err)
	assert.False(t, report.Results[0].Passed)
	assert.Equal(t, rules.Found("off"), report.Results[0].Observed)
	assert.False(t, report.Passed())

	q.AssertExpectations(t)
}

func TestValidateAll_PreservesOrder(t *testing.T) {
	q := &stubQuerier{}
	// Replies come back with very different latencies.
	q.On("Get", mock.Anything, "c1").Return(agent.Reply("c1 = a\r\n"), nil).After(30 * time.Millisecond)
	q.On("Get", mock.Anything, "c2").Return(agent.Reply("c2 = b\r\n"), nil)
	q.On("Get", mock.Anything, "c3").Return(agent.Reply("c3 = c\r\n"), nil).After(10 * time.Millisecond)

	constraints := []rules.Constraint{
		rules.Equal("c1", "a"),
		rules.NotEqual("c2", "b"),
		rules.OneOf("c3", "x", "c"),
	}
	report, err := NewValidator(q).ValidateAll(context.Background(), constraints)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	for i, res := range report.Results {
		assert.Equal(t, constraints[i].Name, res.Setting)
		assert.Equal(t, constraints[i], res.Constraint)
	}
	assert.Equal(t, []bool{true, false, true},
		[]bool{report.Results[0].Passed, report.Results[1].Passed, report.Results[2].Passed})
	assert.Equal(t, 2, report.PassCount())
	assert.Equal(t, 1, report.FailCount())
	assert.Equal(t, []Result{report.Results[1]}, report.Failures())

	calls := []string{}
	for _, c := range q.Calls {
		calls = append(calls, c.Arguments.String(1))
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, calls)
}

func TestValidateAll_AbsentValue(t *testing.T) {
	q := &stubQuerier{}
	q.On("Get", mock.Anything, "gone").Return(agent.Reply("Invalid name\r\n"), nil)

	report, err := NewValidator(q).ValidateAll(context.Background(), []rules.Constraint{
		rules.Equal("gone", "on"),
		rules.NotEqual("gone", "on"),
	})
	require.NoError(t, err)
	assert.False(t, report.Results[0].Passed)
	assert.True(t, report.Results[1].Passed)
	assert.Equal(t, rules.Absent, report.Results[0].Observed)
}

func TestValidateAll_ConfigurationErrorAborts(t *testing.T) {
	q := &stubQuerier{}
	q.On("Get", mock.Anything, "c1").Return(agent.Reply("c1 = a\r\n"), nil)

	maybe := "on"
	constraints := []rules.Constraint{
		rules.Equal("c1", "a"),
		{Name: "crash_recovery", Action: "maybe", Value: &maybe},
		rules.Equal("c3", "c"),
	}
	report, err := NewValidator(q).ValidateAll(context.Background(), constraints)
	require.ErrorIs(t, err, rules.ErrConfiguration)
	assert.Contains(t, err.Error(), "crash_recovery")

	require.Len(t, report.Results, 1)
	assert.Equal(t, "c1", report.Results[0].Setting)
	assert.False(t, report.Complete)
	assert.False(t, report.Passed())

	q.AssertNumberOfCalls(t, "Get", 1)
	q.AssertNotCalled(t, "Get", mock.Anything, "crash_recovery")
}

func TestValidateAll_TransportErrorAborts(t *testing.T) {
	q := &stubQuerier{}
	q.On("Get", mock.Anything, "c1").Return(agent.Reply(""), &agent.TransportError{Command: "get c1\n", Err: errors.New("broken pipe")})

	report, err := NewValidator(q).ValidateAll(context.Background(), []rules.Constraint{
		rules.Equal("c1", "a"),
		rules.Equal("c2", "b"),
	})
	require.ErrorIs(t, err, agent.ErrTransport)
	assert.Empty(t, report.Results)
	assert.False(t, report.Complete)
	q.AssertNumberOfCalls(t, "Get", 1)
}

func TestValidateAll_NoReplyAborts(t *testing.T) {
	q := &stubQuerier{}
	q.On("Get", mock.Anything, "c1").Return(agent.Reply(""), agent.ErrNoReply)

	_, err := NewValidator(q).ValidateAll(context.Background(), []rules.Constraint{rules.Equal("c1", "a")})
	require.ErrorIs(t, err, agent.ErrNoReply)
}

func TestValidateAll_Cancelled(t *testing.T) {
	q := &stubQuerier{}
	ctx, cancel := context.WithCancel(context.Background())
	q.On("Get", mock.Anything, "c1").Return(agent.Reply("c1 = a\r\n"), nil).Run(func(mock.Arguments) { cancel() })

	report, err := NewValidator(q).ValidateAll(ctx, []rules.Constraint{
		rules.Equal("c1", "a"),
		rules.Equal("c2", "b"),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Results, 1)
	assert.False(t, report.Complete)
	q.AssertNotCalled(t, "Get", mock.Anything, "c2")
}

func TestValidateAll_Empty(t *testing.T) {
	report, err := NewValidator(&stubQuerier{}).ValidateAll(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.True(t, report.Passed())
}

func TestValidateAll_ResultOwnsConstraintCopy(t *testing.T) {
	q := &stubQuerier{}
	q.On("Get", mock.Anything, "mode").Return(agent.Reply("mode = A\r\n"), nil)

	constraints := []rules.Constraint{rules.OneOf("mode", "A", "B")}
	report, err := NewValidator(q).ValidateAll(context.Background(), constraints)
	require.NoError(t, err)

	constraints[0].Values[0] = "Z"
	assert.Equal(t, []string{"A", "B"}, report.Results[0].Constraint.Values)
}
