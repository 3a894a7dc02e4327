package escpos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrNotOpen is returned by I/O on a session whose Open has not
	// succeeded.
	ErrNotOpen = errors.New("escpos: session not open")

	// ErrSessionClosed is returned by I/O on a closed session, including
	// reads that were in flight when Close ran.
	ErrSessionClosed = errors.New("escpos: session closed")
)

// closeGrace bounds how long Close waits to hand pending bytes to the
// device before dropping them.
const closeGrace = 2 * time.Second

// Dialer opens the TCP connection to a printer. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Session owns one TCP connection to one printer for one job. It is never
// reused: after Close every operation fails with ErrSessionClosed.
//
// Open, Write, Flush and Close may be called from different goroutines.
// Close may run while QueryStatus is blocked reading and unblocks it.
type Session struct {
	dialer       Dialer
	address      string
	writeTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	pending bytes.Buffer

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewSession prepares a session to host:port. No I/O happens until Open.
func NewSession(dialer Dialer, host string, port int, writeTimeout time.Duration, logger *slog.Logger) *Session {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	return &Session{
		dialer:       dialer,
		address:      address,
		writeTimeout: writeTimeout,
		logger:       logger.With("printer", address),
	}
}

// Address returns the host:port the session targets.
func (s *Session) Address() string {
	return s.address
}

// Open connects to the printer, giving up after timeout.
func (s *Session) Open(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("escpos: connect %s: %w", s.address, err)
	}
	s.conn = conn
	s.logger.Debug("printer connected")
	return nil
}

// QueryStatus runs one status round: every DLE EOT query in order, one reply
// byte each. It blocks until the device answers, ctx is done or the session
// is closed.
func (s *Session) QueryStatus(ctx context.Context) (StatusReport, error) {
	conn, err := s.connection()
	if err != nil {
		return StatusReport{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var report StatusReport
	reply := make([]byte, 1)
	for _, class := range StatusClasses() {
		if err := s.writeNow(conn, StatusQuery(class)); err != nil {
			return StatusReport{}, s.ioError("status query", err)
		}
		if _, err := io.ReadFull(conn, reply); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !s.closed.Load() {
				return StatusReport{}, ctxErr
			}
			return StatusReport{}, s.ioError("status reply", err)
		}
		sub, err := ParseStatus(class, reply[0])
		if err != nil {
			return StatusReport{}, err
		}
		report.Reports = append(report.Reports, sub)
	}

	return report, nil
}

// Write buffers p for the next Flush.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	if s.conn == nil {
		return 0, ErrNotOpen
	}
	return s.pending.Write(p)
}

// Flush sends the buffered command stream to the device.
func (s *Session) Flush() error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotOpen
	}
	data := bytes.Clone(s.pending.Bytes())
	s.pending.Reset()
	s.mu.Unlock()

	if len(data) == 0 {
		return nil
	}
	if err := s.writeWithin(conn, data, s.writeTimeout); err != nil {
		return s.ioError("flush", err)
	}
	s.logger.Debug("command stream sent", "bytes", len(data))
	return nil
}

// Close hands any pending bytes to the device and releases the connection.
// It is safe to call before or without a successful Open and any number of
// times; only the first call does work and later calls return its result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close()
	})
	return s.closeErr
}

func (s *Session) close() error {
	s.closed.Store(true)

	s.mu.Lock()
	conn := s.conn
	data := bytes.Clone(s.pending.Bytes())
	s.pending.Reset()
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	var result *multierror.Error
	if len(data) > 0 {
		if err := s.writeWithin(conn, data, closeGrace); err != nil {
			result = multierror.Append(result, fmt.Errorf("flush pending %d bytes: %w", len(data), err))
		}
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		result = multierror.Append(result, fmt.Errorf("close connection: %w", err))
	}

	s.logger.Debug("printer session closed")
	return result.ErrorOrNil()
}

func (s *Session) connection() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if s.conn == nil {
		return nil, ErrNotOpen
	}
	return s.conn, nil
}

// writeNow sends a real-time command, bypassing the pending buffer.
func (s *Session) writeNow(conn net.Conn, p []byte) error {
	return s.writeWithin(conn, p, s.writeTimeout)
}

func (s *Session) writeWithin(conn net.Conn, p []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err := conn.Write(p)
	return err
}

func (s *Session) ioError(op string, err error) error {
	if s.closed.Load() {
		return fmt.Errorf("escpos: %s %s: %w", op, s.address, ErrSessionClosed)
	}
	return fmt.Errorf("escpos: %s %s: %w", op, s.address, err)
}
