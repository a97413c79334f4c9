// Package serial provides a minimal, Linux-only serial port for talking to
// line-oriented embedded devices, such as a flight controller's command line
// interface.
//
// Features:
//   - Raw syscall-based serial I/O on Linux, no buffering delays
//   - Line-based reading with custom delimiter (default: \r\n), lines split
//     across reads are reassembled
//   - Writes usable as an io.Writer from any goroutine
//   - Self-pipe mechanism for killability
//   - PTY-based tests for reliability
//
// Command framing and settings auditing live in the agent, rules and audit
// subpackages; cmd/serial-audit wires them together.
//
// This package does **not** support Windows.
//
// Example usage:
//
//	p, err := serial.Open(serial.Config{
//	    Device:   "/dev/ttyACM0",
//	    BaudRate: 115200,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	a := agent.New(p)
//	go p.ReadLinesLoop(a.HandleLine, a.HandleError)
//
//	reply, err := a.Get(ctx, "crash_recovery")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(rules.Extract("crash_recovery", reply.String()))
//
//	// ... to stop reading, call p.Close() from another goroutine
package serial
