// Package agent frames command/reply exchanges over a line-oriented device
// link that has no end-of-reply marker.
//
// An Agent writes one command at a time and attaches a fresh Collector to the
// line stream for exactly the lifetime of that command. The transport's reader
// feeds the Agent through HandleLine and HandleError:
//
//	a := agent.New(port, agent.WithLogger(logger))
//	go port.ReadLinesLoop(a.HandleLine, a.HandleError)
//	reply, err := a.Get(ctx, "crash_recovery")
package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// StatusProbe wakes the device's command line interface.
const StatusProbe = "#"

// Agent pairs each outbound command with one reply collection session.
// Send is safe to call from multiple goroutines; calls are serialized.
type Agent struct {
	w            io.Writer
	quiet        time.Duration
	replyTimeout time.Duration
	terminator   string
	logger       *slog.Logger

	sendMu sync.Mutex // one session open at a time

	mu      sync.Mutex
	active  *Collector
	readErr error
}

// Option configures an Agent.
type Option func(*Agent)

// WithQuietPeriod sets the silence that ends a reply.
func WithQuietPeriod(d time.Duration) Option {
	return func(a *Agent) { a.quiet = d }
}

// WithReplyTimeout bounds the wait for the first reply line.
// Zero waits until the context passed to Send ends.
func WithReplyTimeout(d time.Duration) Option {
	return func(a *Agent) { a.replyTimeout = d }
}

// WithTerminator sets the terminator re-attached to every collected line.
func WithTerminator(t string) Option {
	return func(a *Agent) { a.terminator = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an Agent that writes commands to w.
func New(w io.Writer, opts ...Option) *Agent {
	a := &Agent{
		w:            w,
		quiet:        DefaultQuietPeriod,
		replyTimeout: DefaultReplyTimeout,
		terminator:   "\r\n",
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HandleLine routes a received line to the open session. Lines that arrive
// while no command is outstanding are dropped.
func (a *Agent) HandleLine(line string) {
	a.mu.Lock()
	c := a.active
	a.mu.Unlock()

	if c == nil || !c.Feed(line) {
		a.logger.Debug("dropping unsolicited line", "line", line)
	}
}

// HandleError records a read failure of the link. The open session, if any,
// fails with it, and every later Send fails immediately.
func (a *Agent) HandleError(err error) {
	terr := &TransportError{Err: err}
	a.mu.Lock()
	if a.readErr == nil {
		a.readErr = terr
	}
	c := a.active
	a.mu.Unlock()

	a.logger.Error("link read failed", "error", err)
	if c != nil {
		c.Fail(terr)
	}
}

// Send writes command and returns the device's full reply. The command must
// carry any terminator the device needs.
func (a *Agent) Send(ctx context.Context, command string) (Reply, error) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := NewCollector(a.quiet, a.replyTimeout, a.terminator)
	if err := a.attach(c); err != nil {
		return "", err
	}
	defer a.detach(c)

	log := a.logger.With("session", c.ID().String(), "command", command)
	log.Debug("sending command")

	if _, err := a.w.Write([]byte(command)); err != nil {
		log.Warn("write failed", "error", err)
		return "", &TransportError{Command: command, Err: err}
	}

	start := time.Now()
	reply, err := c.Collect(ctx)
	if err != nil {
		log.Debug("session abandoned", "error", err)
		var te *TransportError
		if errors.As(err, &te) {
			return "", &TransportError{Command: command, Err: te.Err}
		}
		return "", err
	}
	log.Debug("reply complete", "bytes", len(reply), "elapsed", time.Since(start))
	return reply, nil
}

// Probe sends the bare status probe.
func (a *Agent) Probe(ctx context.Context) (Reply, error) {
	return a.Send(ctx, StatusProbe)
}

// Get asks the device for the current value of a setting.
func (a *Agent) Get(ctx context.Context, setting string) (Reply, error) {
	return a.Send(ctx, GetCommand(setting))
}

// GetCommand returns the wire form of a setting query.
func GetCommand(setting string) string {
	return "get " + setting + "\n"
}

func (a *Agent) attach(c *Collector) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.readErr != nil {
		return a.readErr
	}
	a.active = c
	return nil
}

func (a *Agent) detach(c *Collector) {
	a.mu.Lock()
	if a.active == c {
		a.active = nil
	}
	a.mu.Unlock()
}
