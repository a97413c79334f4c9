// Command serial-audit checks the settings of a device on a serial port
// against a declared list of constraints.
//
// Usage:
//
//	serial-audit --device /dev/ttyACM0 --settings settings.yaml [flags]
//
// The constraint file is a YAML or JSON list:
//
//	- name: crash_recovery
//	  action: "="
//	  value: "on"
//	- name: failsafe_procedure
//	  action: "!="
//	  values: [DROP, AUTO_LAND]
//
// The exit status is 0 when every setting passed, 1 when any failed, and 2
// when the audit could not be completed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	serial "github.com/luhtfiimanal/go-serial-audit"
	"github.com/luhtfiimanal/go-serial-audit/agent"
	"github.com/luhtfiimanal/go-serial-audit/audit"
	"github.com/luhtfiimanal/go-serial-audit/rules"
)

type options struct {
	device       string
	baud         int
	settings     string
	format       string
	quiet        time.Duration
	replyTimeout time.Duration
	noProbe      bool
	logLevel     string
	verbose      bool
}

// errLinkLost ends the reader goroutine when the serial link fails, which
// cancels the audit through the errgroup context.
var errLinkLost = errors.New("serial link lost")

// exitError carries a process exit status out of RunE.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()

	var ee *exitError
	switch {
	case err == nil:
	case errors.As(err, &ee):
		os.Exit(ee.code)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "serial-audit",
		Short:         "Audit device settings over a serial link",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.device, "device", "d", "", "serial device path")
	f.IntVarP(&opts.baud, "baud", "b", 115200, "baud rate")
	f.StringVarP(&opts.settings, "settings", "s", "settings.yaml", "constraint file (YAML or JSON)")
	f.StringVar(&opts.format, "format", "text", "report format: text, json")
	f.DurationVar(&opts.quiet, "quiet", agent.DefaultQuietPeriod, "silence that ends a reply")
	f.DurationVar(&opts.replyTimeout, "reply-timeout", agent.DefaultReplyTimeout, "wait for the first reply line, 0 to wait forever")
	f.BoolVar(&opts.noProbe, "no-probe", false, "skip the initial status probe")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "list passed settings too")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	logger, err := newLogger(stderr, opts.logLevel)
	if err != nil {
		return err
	}
	reporter, err := newReporter(stdout, opts.format, opts.verbose)
	if err != nil {
		return err
	}

	constraints, err := rules.Load(opts.settings)
	if err != nil {
		return err
	}
	logger.Info("settings loaded", "file", opts.settings, "count", len(constraints))

	port, err := serial.Open(serial.Config{Device: opts.device, BaudRate: opts.baud})
	if err != nil {
		return err
	}
	defer port.Close()
	logger.Info("connection open", "device", port.Name(), "baud", opts.baud)

	a := agent.New(port,
		agent.WithQuietPeriod(opts.quiet),
		agent.WithReplyTimeout(opts.replyTimeout),
		agent.WithTerminator(port.Delimiter()),
		agent.WithLogger(logger),
	)

	var (
		report   *audit.Report
		abortErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var readErr error
		port.ReadLinesLoop(a.HandleLine, func(err error) {
			readErr = err
			a.HandleError(err)
		})
		if readErr != nil {
			return fmt.Errorf("%w: %v", errLinkLost, readErr)
		}
		return nil
	})
	g.Go(func() error {
		defer port.Close()
		if !opts.noProbe {
			reply, err := a.Probe(gctx)
			if err != nil {
				abortErr = fmt.Errorf("status probe: %w", err)
				report = &audit.Report{}
				return nil
			}
			logger.Debug("probe reply", "reply", reply.String())
		}
		v := audit.NewValidator(a, audit.WithLogger(logger))
		report, abortErr = v.ValidateAll(gctx, constraints)
		return nil
	})
	if err := g.Wait(); err != nil {
		if !errors.Is(err, errLinkLost) {
			return err
		}
		abortErr = err
	}

	if err := reporter.Report(report, abortErr); err != nil {
		return err
	}
	switch {
	case abortErr != nil:
		return &exitError{code: 2}
	case !report.Passed():
		return &exitError{code: 1}
	}
	return nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func newReporter(w io.Writer, format string, verbose bool) (audit.Reporter, error) {
	switch strings.ToLower(format) {
	case "text":
		return audit.NewTextReporter(w, verbose), nil
	case "json":
		return audit.NewJSONReporter(w, true), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}
