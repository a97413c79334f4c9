package serial

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// DefaultDelimiter terminates every line the device sends.
const DefaultDelimiter = "\r\n"

var (
	// ErrClosed is returned by writes on a closed Port.
	ErrClosed = errors.New("serial: port closed")
	// ErrUnsupportedBaud is returned by Open for a baud rate with no termios constant.
	ErrUnsupportedBaud = errors.New("serial: unsupported baud rate")
)

// Port is a raw, line-oriented Linux serial port.
// Writes and Close may be called from any goroutine while ReadLinesLoop runs.
type Port struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	config    Config
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
}

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device    string
	BaudRate  int    // default 115200
	Delimiter string // default "\r\n"
}

func (c Config) withDefaults() Config {
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	if c.BaudRate == 0 {
		c.BaudRate = 115200
	}
	return c
}

// Open opens a serial port in raw 8N1 mode and returns a Port.
func Open(cfg Config) (*Port, error) {
	cfg = cfg.withDefaults()
	baud, ok := baudToUnix(cfg.BaudRate)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBaud, cfg.BaudRate)
	}

	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	if err := configure(fd, baud); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	if err := syscall.SetNonblock(fd, false); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set blocking: %w", err)
	}

	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &Port{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), cfg.Device),
		done:   make(chan struct{}),
		config: cfg,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
	}, nil
}

func configure(fd int, baud uint32) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	termios.Cflag |= unix.CS8 | baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// Name returns the device path the port was opened with.
func (p *Port) Name() string { return p.config.Device }

// Delimiter returns the line delimiter in use.
func (p *Port) Delimiter() string { return p.config.Delimiter }

// Write writes raw bytes to the port.
func (p *Port) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, ErrClosed
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	n, err := p.file.Write(b)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", p.config.Device, err)
	}
	return n, nil
}

// WriteLine writes a line followed by newline.
func (p *Port) WriteLine(line string, newline string) error {
	_, err := p.Write([]byte(line + newline))
	return err
}

// ReadLinesLoop reads from the port until Close or a read error and invokes
// onLine for each complete line, without its delimiter. onError is called at
// most once, for a read error; Close ends the loop silently.
func (p *Port) ReadLinesLoop(onLine func(string), onError func(error)) {
	buf := make([]byte, 4096)
	var sp splitter
	sp.delim = p.config.Delimiter
	for {
		pfd := []unix.PollFd{
			{Fd: int32(p.fd), Events: unix.POLLIN},
			{Fd: int32(p.pipeR), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(pfd, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if !p.closed() {
				onError(err)
			}
			return
		}
		if p.closed() || pfd[1].Revents&unix.POLLIN != 0 {
			return
		}
		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := p.file.Read(buf)
			if err != nil {
				if !p.closed() {
					onError(err)
				}
				return
			}
			sp.feed(buf[:n], onLine)
		}
	}
}

func (p *Port) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close closes the port and unblocks ReadLinesLoop.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		// Wake up poll using self-pipe
		unix.Write(p.pipeW, []byte{1})
		err = p.file.Close()
		unix.Close(p.pipeR)
		unix.Close(p.pipeW)
	})
	return err
}

// splitter reassembles delimiter-terminated lines from arbitrary read chunks.
type splitter struct {
	delim   string
	pending []byte
}

func (s *splitter) feed(chunk []byte, onLine func(string)) {
	s.pending = append(s.pending, chunk...)
	for {
		idx := bytes.Index(s.pending, []byte(s.delim))
		if idx < 0 {
			return
		}
		onLine(string(s.pending[:idx]))
		s.pending = s.pending[idx+len(s.delim):]
	}
}

func baudToUnix(baud int) (uint32, bool) {
	switch baud {
	case 9600:
		return unix.B9600, true
	case 19200:
		return unix.B19200, true
	case 38400:
		return unix.B38400, true
	case 57600:
		return unix.B57600, true
	case 115200:
		return unix.B115200, true
	case 230400:
		return unix.B230400, true
	case 460800:
		return unix.B460800, true
	case 921600:
		return unix.B921600, true
	default:
		return 0, false
	}
}
