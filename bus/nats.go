package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures a connection to a NATS server.
type NATSConfig struct {
	Config

	URL  string `toml:"url" yaml:"url"`
	Name string `toml:"name" yaml:"name"`

	Token    string `toml:"token" yaml:"token"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`

	// MaxReconnects of -1 retries forever.
	MaxReconnects  int           `toml:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait  time.Duration `toml:"-" yaml:"-"`
	ConnectTimeout time.Duration `toml:"-" yaml:"-"`
}

// DefaultNATSConfig targets nats.DefaultURL and reconnects forever.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Config:         DefaultConfig(),
		URL:            nats.DefaultURL,
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

func (c NATSConfig) options() []nats.Option {
	opts := []nats.Option{nats.MaxReconnects(c.MaxReconnects)}
	if c.Name != "" {
		opts = append(opts, nats.Name(c.Name))
	}
	if c.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(c.ReconnectWait))
	}
	if c.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(c.ConnectTimeout))
	}
	switch {
	case c.Token != "":
		opts = append(opts, nats.Token(c.Token))
	case c.User != "":
		opts = append(opts, nats.UserInfo(c.User, c.Password))
	}
	return opts
}

// NATSBus publishes and subscribes through a NATS server. Subjects and
// patterns are passed to the server unchanged.
type NATSBus struct {
	conn   *nats.Conn
	buffer int
	owned  bool
}

// DialNATS connects to cfg.URL.
func DialNATS(cfg NATSConfig) (*NATSBus, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, cfg.options()...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATSBus{conn: conn, buffer: cfg.bufferSize(), owned: true}, nil
}

// NATSFromConn wraps a connection the caller already manages. Close on the
// returned bus leaves conn open.
func NATSFromConn(conn *nats.Conn, cfg Config) *NATSBus {
	return &NATSBus{conn: conn, buffer: cfg.bufferSize()}
}

// Publish sends data on subject without waiting for the server.
func (b *NATSBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe starts a server subscription on pattern. Messages arriving
// while the local buffer is full are dropped and counted.
func (b *NATSBus) Subscribe(pattern string) (Subscription, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	s := &natsSub{ch: make(chan *Message, b.buffer)}
	sub, err := b.conn.Subscribe(pattern, s.deliver)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", pattern, err)
	}
	s.sub = sub
	return s, nil
}

// Flush waits until the server has processed everything published so far.
func (b *NATSBus) Flush(ctx context.Context) error {
	return b.conn.FlushWithContext(ctx)
}

// Close flushes pending publishes and closes a connection opened by
// DialNATS.
func (b *NATSBus) Close() error {
	if !b.owned || b.conn.IsClosed() {
		return nil
	}
	err := b.conn.Flush()
	b.conn.Close()
	if err != nil {
		return fmt.Errorf("nats flush on close: %w", err)
	}
	return nil
}

type natsSub struct {
	sub   *nats.Subscription
	drops atomic.Int64

	mu     sync.Mutex
	ch     chan *Message
	closed bool
}

// deliver runs on the nats dispatcher goroutine.
func (s *natsSub) deliver(m *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- &Message{Subject: m.Subject, Data: m.Data}:
	default:
		s.drops.Add(1)
	}
}

// Messages is closed by Unsubscribe.
func (s *natsSub) Messages() <-chan *Message { return s.ch }

// Dropped counts messages lost to a full buffer.
func (s *natsSub) Dropped() int64 { return s.drops.Load() }

// Unsubscribe is idempotent.
func (s *natsSub) Unsubscribe() error {
	var err error
	if s.sub.IsValid() {
		err = s.sub.Unsubscribe()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return err
}

var _ Bus = (*NATSBus)(nil)
