// Package escpostest provides a fake network printer for tests.
package escpostest

import (
	"bufio"
	"bytes"
	"net"
	"strconv"
	"sync"
	"time"
)

// StatusOK is the reply byte for a status query with no condition set.
const StatusOK byte = 0x12

// Printer is a TCP server on the loopback interface that answers DLE EOT
// status queries and records everything else it receives.
type Printer struct {
	listener net.Listener

	mu         sync.Mutex
	replies    map[byte]byte
	silent     bool
	replyDelay time.Duration
	received   bytes.Buffer
	accepted   int
	closed     int
	conns      map[net.Conn]struct{}

	closedCh chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Printer.
type Option func(*Printer)

// WithStatus makes the printer answer DLE EOT n with reply.
func WithStatus(n byte, reply byte) Option {
	return func(p *Printer) {
		p.replies[n] = reply
	}
}

// Silent makes the printer accept connections but never answer status
// queries.
func Silent() Option {
	return func(p *Printer) {
		p.silent = true
	}
}

// WithReplyDelay delays every status reply by d.
func WithReplyDelay(d time.Duration) Option {
	return func(p *Printer) {
		p.replyDelay = d
	}
}

// NewPrinter starts a fake printer. Callers must Close it.
func NewPrinter(opts ...Option) *Printer {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("escpostest: failed to listen: " + err.Error())
	}

	p := &Printer{
		listener: l,
		replies:  map[byte]byte{1: StatusOK, 2: StatusOK, 3: StatusOK, 4: StatusOK},
		conns:    make(map[net.Conn]struct{}),
		closedCh: make(chan struct{}, 64),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.serve()
	return p
}

// Host returns the address the printer listens on.
func (p *Printer) Host() string {
	host, _, _ := net.SplitHostPort(p.listener.Addr().String())
	return host
}

// Port returns the port the printer listens on.
func (p *Printer) Port() int {
	_, port, _ := net.SplitHostPort(p.listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Received returns every non-status byte received so far.
func (p *Printer) Received() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.received.Bytes())
}

// Accepted returns the number of connections accepted.
func (p *Printer) Accepted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

// WaitClosed waits until the client side has closed n connections.
func (p *Printer) WaitClosed(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed >= n {
			return true
		}
		select {
		case <-p.closedCh:
		case <-deadline:
			return false
		}
	}
}

// Close stops the listener and drops open connections.
func (p *Printer) Close() {
	p.listener.Close()
	p.mu.Lock()
	for c := range p.conns {
		c.Close()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Printer) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.accepted++
		p.conns[conn] = struct{}{}
		p.mu.Unlock()

		p.wg.Add(1)
		go p.handle(conn)
	}
}

func (p *Printer) handle(conn net.Conn) {
	defer p.wg.Done()
	defer func() {
		conn.Close()
		p.mu.Lock()
		delete(p.conns, conn)
		p.closed++
		p.mu.Unlock()
		select {
		case p.closedCh <- struct{}{}:
		default:
		}
	}()

	r := bufio.NewReader(conn)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if b == 0x10 {
			next, err := r.Peek(1)
			if err == nil && next[0] == 0x04 {
				r.ReadByte()
				n, err := r.ReadByte()
				if err != nil {
					return
				}
				p.reply(conn, n)
				continue
			}
		}
		p.mu.Lock()
		p.received.WriteByte(b)
		p.mu.Unlock()
	}
}

func (p *Printer) reply(conn net.Conn, n byte) {
	p.mu.Lock()
	silent := p.silent
	delay := p.replyDelay
	reply, ok := p.replies[n]
	p.mu.Unlock()

	if silent || !ok {
		return
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	conn.Write([]byte{reply})
}
