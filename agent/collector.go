package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultQuietPeriod is how long the line stream must stay silent before a
// reply is considered complete.
const DefaultQuietPeriod = 100 * time.Millisecond

// DefaultReplyTimeout bounds the wait for the first reply line.
const DefaultReplyTimeout = 2 * time.Second

// Reply is the raw text a device sent in answer to one command. Each line
// keeps its terminator.
type Reply string

// String returns the reply text.
func (r Reply) String() string { return string(r) }

// Empty reports whether the reply holds no text.
func (r Reply) Empty() bool { return len(r) == 0 }

// Lines returns the reply split into lines, terminators removed.
func (r Reply) Lines() []string {
	s := strings.TrimRight(string(r), "\r\n")
	if s == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// Collector accumulates the lines of a single reply. A reply is complete when
// no line has arrived for the quiet period after the last one.
//
// Feed may be called from the transport's reader goroutine while Collect runs
// in the caller's goroutine. Once Collect returns, Feed rejects every line.
type Collector struct {
	id           uuid.UUID
	quiet        time.Duration
	replyTimeout time.Duration
	terminator   string

	mu      sync.Mutex
	pending []string
	err     error
	closed  bool
	wake    chan struct{}
}

// NewCollector creates an idle collection session. A zero replyTimeout
// disables the first-line deadline; the session then waits until ctx ends.
func NewCollector(quiet, replyTimeout time.Duration, terminator string) *Collector {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Collector{
		id:           uuid.New(),
		quiet:        quiet,
		replyTimeout: replyTimeout,
		terminator:   terminator,
		wake:         make(chan struct{}, 1),
	}
}

// ID returns the session correlation id.
func (c *Collector) ID() uuid.UUID { return c.id }

// Feed hands a received line to the session. It returns false if the session
// is no longer collecting, in which case the line belongs to nobody.
func (c *Collector) Feed(line string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.pending = append(c.pending, line)
	c.mu.Unlock()
	c.signal()
	return true
}

// Fail ends the session with err unless it has already finished.
func (c *Collector) Fail(err error) bool {
	c.mu.Lock()
	if c.closed || c.err != nil {
		c.mu.Unlock()
		return false
	}
	c.err = err
	c.mu.Unlock()
	c.signal()
	return true
}

func (c *Collector) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// drain moves pending lines out and reports a failure set by Fail.
func (c *Collector) drain() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.pending
	c.pending = nil
	return lines, c.err
}

// finish is drain for an expired timer: when nothing is pending it closes the
// session in the same critical section, so no later Feed can be accepted and
// then lost.
func (c *Collector) finish() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.pending
	c.pending = nil
	if len(lines) == 0 && c.err == nil {
		c.closed = true
	}
	return lines, c.err
}

func (c *Collector) close() {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()
}

// Collect blocks until the reply is complete, the first-line deadline passes
// (ErrNoReply), the session is failed, or ctx ends. Only a completed reply is
// returned with a nil error.
func (c *Collector) Collect(ctx context.Context) (Reply, error) {
	defer c.close()

	var (
		sb       strings.Builder
		received int
		quiet    *time.Timer
		quietC   <-chan time.Time
		deadline <-chan time.Time
	)
	if c.replyTimeout > 0 {
		t := time.NewTimer(c.replyTimeout)
		defer t.Stop()
		deadline = t.C
	}
	defer func() {
		if quiet != nil {
			quiet.Stop()
		}
	}()

	accept := func(lines []string) {
		for _, l := range lines {
			sb.WriteString(l)
			sb.WriteString(c.terminator)
		}
		if received == 0 {
			deadline = nil
			quiet = time.NewTimer(c.quiet)
			quietC = quiet.C
		} else {
			quiet.Reset(c.quiet)
		}
		received += len(lines)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			// The first line may be racing the deadline.
			lines, err := c.finish()
			if err != nil {
				return "", err
			}
			if len(lines) == 0 {
				return "", ErrNoReply
			}
			accept(lines)
		case <-quietC:
			lines, err := c.finish()
			if err != nil {
				return "", err
			}
			if len(lines) == 0 {
				return Reply(sb.String()), nil
			}
			accept(lines)
		case <-c.wake:
			lines, err := c.drain()
			if err != nil {
				return "", err
			}
			if len(lines) > 0 {
				accept(lines)
			}
		}
	}
}
