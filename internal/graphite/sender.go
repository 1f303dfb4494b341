package graphite

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mysql-collector/internal/domain"
)

// DefaultPort is the carbon plaintext listener port.
const DefaultPort = 2003

// Sender writes metrics to a carbon plaintext listener, one connection per
// metric:
//
//	<namespace>.<host segment 2>.<host segment 1>.<name> <value> <unix ts>\n
//
// With PathOverride set the line becomes
//
//	<namespace>.<override> <name> <value> <unix ts>\n
type Sender struct {
	Addr         string
	Namespace    string
	PathOverride string
	Timeout      time.Duration

	// Debug renders lines to Out instead of dialing Addr, and replaces the
	// host segments with DEBUG and the OS name.
	Debug bool
	Out   io.Writer

	hostSegments []string
	now          func() time.Time
	dial         func(ctx context.Context, network, addr string) (net.Conn, error)
}

type Options struct {
	Host         string
	Port         int
	Namespace    string
	PathOverride string
	Timeout      time.Duration
	Debug        bool
	// Hostname defaults to os.Hostname.
	Hostname string
	Out      io.Writer
}

func NewSender(opts Options) (*Sender, error) {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Namespace == "" {
		opts.Namespace = "mysql"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	var segments []string
	if opts.Debug {
		segments = []string{"DEBUG", osName()}
	} else {
		hostname := opts.Hostname
		if hostname == "" {
			h, err := os.Hostname()
			if err != nil {
				return nil, fmt.Errorf("resolve hostname: %w", err)
			}
			hostname = h
		}
		segments = strings.Split(hostname, ".")
	}

	dialer := &net.Dialer{Timeout: opts.Timeout}
	return &Sender{
		Addr:         net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Namespace:    opts.Namespace,
		PathOverride: opts.PathOverride,
		Timeout:      opts.Timeout,
		Debug:        opts.Debug,
		Out:          opts.Out,
		hostSegments: segments,
		now:          time.Now,
		dial:         dialer.DialContext,
	}, nil
}

// Path returns the metric path for name. In override mode the path is the
// namespace and override only; the name is carried as its own field.
func (s *Sender) Path(name string) string {
	if s.PathOverride != "" {
		return s.Namespace + "." + s.PathOverride
	}
	parts := []string{s.Namespace}
	if len(s.hostSegments) > 1 {
		parts = append(parts, s.hostSegments[1])
	}
	parts = append(parts, s.hostSegments[0], name)
	return strings.Join(parts, ".")
}

// Line renders one protocol line.
func (s *Sender) Line(name string, value float64, ts int64) string {
	v := strconv.FormatFloat(value, 'f', -1, 64)
	if s.PathOverride != "" {
		return fmt.Sprintf("%s %s %s %d\n", s.Path(name), name, v, ts)
	}
	return fmt.Sprintf("%s %s %d\n", s.Path(name), v, ts)
}

// Send delivers a single metric. Network failures are ConnectionErrors.
func (s *Sender) Send(ctx context.Context, name string, value float64) (domain.MetricPoint, error) {
	ts := s.now().Unix()
	point := domain.MetricPoint{Path: s.Path(name), Value: value, Timestamp: ts}
	if s.PathOverride != "" {
		// the wire line carries the name as its own field; the returned
		// point keeps a single dotted path so history can filter on it
		point.Path += "." + name
	}
	line := s.Line(name, value, ts)

	if s.Debug {
		if _, err := io.WriteString(s.Out, line); err != nil {
			return point, fmt.Errorf("write debug line: %w", err)
		}
		return point, nil
	}

	conn, err := s.dial(ctx, "tcp", s.Addr)
	if err != nil {
		return point, &domain.ConnectionError{Op: "dial", Target: s.Addr, Err: err}
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(s.Timeout)); err != nil {
		return point, &domain.ConnectionError{Op: "write", Target: s.Addr, Err: err}
	}
	if _, err := io.WriteString(conn, line); err != nil {
		return point, &domain.ConnectionError{Op: "write", Target: s.Addr, Err: err}
	}
	return point, nil
}

func osName() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(u.Sysname[:])
}
