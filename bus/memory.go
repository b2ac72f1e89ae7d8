package bus

import (
	"sync"
	"sync/atomic"
)

// MemoryBus delivers within the process. Publish never blocks: a full
// subscriber buffer drops the message and counts it.
type MemoryBus struct {
	buffer int

	mu     sync.RWMutex
	subs   map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	bus     *MemoryBus
	pattern string
	ch      chan *Message
	drops   atomic.Int64
	once    sync.Once
}

// NewMemoryBus returns an open bus whose subscriptions buffer
// cfg.BufferSize messages each.
func NewMemoryBus(cfg Config) *MemoryBus {
	return &MemoryBus{
		buffer: cfg.bufferSize(),
		subs:   make(map[*memorySub]struct{}),
	}
}

// Publish delivers data to every subscription whose pattern matches
// subject. It returns ErrClosed after Close.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	msg := &Message{Subject: subject, Data: data}
	for s := range b.subs {
		if !Match(s.pattern, subject) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			s.drops.Add(1)
		}
	}
	return nil
}

// Subscribe registers pattern, which may use the * and > wildcards.
func (b *MemoryBus) Subscribe(pattern string) (Subscription, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	s := &memorySub{bus: b, pattern: pattern, ch: make(chan *Message, b.buffer)}
	b.subs[s] = struct{}{}
	return s, nil
}

// Close ends every subscription. It is safe to call more than once.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for s := range b.subs {
		s.close()
	}
	clear(b.subs)
	return nil
}

// Messages is closed by Unsubscribe or by closing the bus.
func (s *memorySub) Messages() <-chan *Message { return s.ch }

// Dropped counts messages lost to a full buffer.
func (s *memorySub) Dropped() int64 { return s.drops.Load() }

// Unsubscribe is idempotent.
func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.close()
	return nil
}

// close is called with the bus lock held or after the sub left the map, so
// no Publish can be sending on ch.
func (s *memorySub) close() {
	s.once.Do(func() { close(s.ch) })
}

var _ Bus = (*MemoryBus)(nil)
