package bus

import (
	"errors"
	"strings"
	"unicode"
)

var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// DefaultBufferSize is the per-subscription channel size when Config
// leaves it unset.
const DefaultBufferSize = 256

// Message is one event as delivered to a subscriber.
type Message struct {
	Subject string
	Data    []byte
}

// Publisher is the sending half of a bus. The admission controller only
// needs this.
type Publisher interface {
	// Publish must not block on slow subscribers.
	Publish(subject string, data []byte) error
}

// Bus is a subject addressed publish/subscribe transport.
type Bus interface {
	Publisher

	// Subscribe accepts NATS style patterns: "*" matches one token and a
	// trailing ">" matches one or more.
	Subscribe(pattern string) (Subscription, error)

	Close() error
}

type Subscription interface {
	// Messages is closed when the subscription or its bus ends.
	Messages() <-chan *Message

	// Dropped counts messages discarded because the buffer was full.
	Dropped() int64

	Unsubscribe() error
}

// Config is shared by every bus implementation.
type Config struct {
	BufferSize int `toml:"buffer_size" yaml:"buffer_size"`
}

// DefaultConfig buffers DefaultBufferSize messages per subscription.
func DefaultConfig() Config {
	return Config{BufferSize: DefaultBufferSize}
}

func (c Config) bufferSize() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}

// Subject joins tokens into a subject, skipping empty ones.
func Subject(tokens ...string) string {
	parts := tokens[:0:0]
	for _, t := range tokens {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ".")
}

// ValidateSubject checks a subject that is published to. Wildcards are not
// allowed.
func ValidateSubject(subject string) error {
	return validate(subject, false)
}

// ValidatePattern checks a subscription pattern.
func ValidatePattern(pattern string) error {
	return validate(pattern, true)
}

func validate(s string, wildcards bool) error {
	if s == "" {
		return ErrInvalidSubject
	}
	tokens := strings.Split(s, ".")
	for i, tok := range tokens {
		switch {
		case tok == "":
			return ErrInvalidSubject
		case strings.IndexFunc(tok, unicode.IsSpace) >= 0:
			return ErrInvalidSubject
		case tok == "*" || tok == ">":
			if !wildcards || (tok == ">" && i != len(tokens)-1) {
				return ErrInvalidSubject
			}
		}
	}
	return nil
}

// Match reports whether subject is selected by pattern.
func Match(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return len(st) > i
		}
		if i >= len(st) || (p != "*" && p != st[i]) {
			return false
		}
	}
	return len(pt) == len(st)
}
