package connection

import (
	"context"
	"sync"

	"github.com/bennjii/reseda"
	"github.com/bennjii/reseda/internal/check"
)

const subscriberBuffer = 16

// Subscribe returns a channel that receives every snapshot published after the
// call, in publication order. The channel is closed when ctx is done or the
// controller is closed. A slow reader never blocks the controller; snapshots
// queue until it catches up.
func (c *Controller) Subscribe(ctx context.Context) <-chan reseda.ConnectionStatus {
	s := newSubscriber()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.stop()
		go s.run()
		return s.ch
	}
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	go s.run()
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
			return
		}
		c.mu.Lock()
		delete(c.subs, s)
		c.mu.Unlock()
		s.stop()
	}()
	return s.ch
}

// publish records st as the current snapshot and queues it for every
// subscriber. Callers serialise through c.mu, so all subscribers see the same
// order.
func (c *Controller) publish(st reseda.ConnectionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(st)
}

func (c *Controller) publishLocked(st reseda.ConnectionStatus) {
	check.Assertf(st.Connected == (st.State == reseda.Connected),
		"status %s published with connected=%v", st.State, st.Connected)
	c.status = st
	for s := range c.subs {
		s.push(st)
	}
	c.log.Debug("connection status", "state", st.State, "message", st.Message, "connection_id", st.ConnectionID)
}

// publishIfCurrent publishes st only if gen is still the live attempt.
func (c *Controller) publishIfCurrent(gen uint64, st reseda.ConnectionStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		return false
	}
	c.publishLocked(st)
	return true
}

type subscriber struct {
	ch     chan reseda.ConnectionStatus
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []reseda.ConnectionStatus
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch:     make(chan reseda.ConnectionStatus, subscriberBuffer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *subscriber) push(st reseda.ConnectionStatus) {
	s.mu.Lock()
	s.queue = append(s.queue, st)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// run delivers queued snapshots until stopped. On stop, queued snapshots that
// fit in the channel buffer are kept for the reader before the channel closes.
func (s *subscriber) run() {
	defer close(s.ch)
	for {
		select {
		case <-s.notify:
		case <-s.done:
			s.flush()
			return
		}
		if !s.deliver() {
			return
		}
	}
}

func (s *subscriber) deliver() bool {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return true
		}
		st := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- st:
		case <-s.done:
			s.mu.Lock()
			s.queue = append([]reseda.ConnectionStatus{st}, s.queue...)
			s.mu.Unlock()
			s.flush()
			return false
		}
	}
}

// flush hands over whatever fits in the channel buffer without blocking.
func (s *subscriber) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		select {
		case s.ch <- s.queue[0]:
			s.queue = s.queue[1:]
		default:
			s.queue = nil
			return
		}
	}
}
