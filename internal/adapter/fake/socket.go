package fake

import (
	"context"
	"sync"

	"github.com/bennjii/reseda/internal/adapter/fake/fault"
	"github.com/bennjii/reseda/internal/connection"
	"github.com/bennjii/reseda/internal/signaling"
)

var _ connection.Socket = (*Socket)(nil)

const (
	FaultDial = "signaling.dial"
	FaultSend = "signaling.send"
)

// Socket is an in-memory negotiation socket. Tests push inbound frames with
// Push and inspect outbound queries with Sent.
type Socket struct {
	URL    string
	faults *fault.Injector

	frames chan signaling.Frame
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	sent   []signaling.Query
	closed bool
}

func newSocket(url string, faults *fault.Injector) *Socket {
	return &Socket{
		URL:    url,
		faults: faults,
		frames: make(chan signaling.Frame, 16),
		done:   make(chan struct{}),
	}
}

func (s *Socket) Send(q signaling.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return signaling.ErrClosed
	}
	if err := s.faults.Eval(FaultSend, q); err != nil {
		return err
	}
	s.sent = append(s.sent, q)
	return nil
}

func (s *Socket) Frames() <-chan signaling.Frame {
	return s.frames
}

// Close closes the socket and its frame channel. Safe to call more than once.
func (s *Socket) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.frames)
		s.mu.Unlock()
	})
	return nil
}

// Push delivers f to the reader. It reports false if the socket is closed.
func (s *Socket) Push(f signaling.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- f:
		return true
	case <-s.done:
		return false
	}
}

// Sent returns the queries written so far.
func (s *Socket) Sent() []signaling.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaling.Query(nil), s.sent...)
}

// Closed reports whether Close has been called.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed when the socket closes.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Dialer hands out fake sockets and remembers every one it opened.
type Dialer struct {
	CallRecorder
	Faults *fault.Injector

	mu      sync.Mutex
	sockets []*Socket
}

func NewDialer() *Dialer {
	return &Dialer{Faults: fault.NewInjector()}
}

// Dial implements connection.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (connection.Socket, error) {
	d.record("Dial", url)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.Faults.Eval(FaultDial, url); err != nil {
		return nil, err
	}
	s := newSocket(url, d.Faults)
	d.mu.Lock()
	d.sockets = append(d.sockets, s)
	d.mu.Unlock()
	return s, nil
}

// Sockets returns every socket opened so far, oldest first.
func (d *Dialer) Sockets() []*Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Socket(nil), d.sockets...)
}

// Last returns the most recently opened socket, or nil.
func (d *Dialer) Last() *Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}
