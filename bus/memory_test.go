package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscription) *Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func assertEmpty(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		t.Errorf("unexpected message on %q", msg.Subject)
	default:
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "admission.barista.queued", Subject("admission", "barista", "queued"))
	assert.Equal(t, "admission.queued", Subject("admission", "", "queued"))
	assert.Equal(t, "", Subject())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		s              string
		subject, patrn bool
	}{
		{"admission", true, true},
		{"admission.queued", true, true},
		{"admission.>", false, true},
		{"admission.*.canceled", false, true},
		{">", false, true},
		{"a.>.b", false, false},
		{"", false, false},
		{".a", false, false},
		{"a.", false, false},
		{"a..b", false, false},
		{"a b", false, false},
		{"a.\tb", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			assert.Equal(t, tt.subject, ValidateSubject(tt.s) == nil, "ValidateSubject")
			assert.Equal(t, tt.patrn, ValidatePattern(tt.s) == nil, "ValidatePattern")
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"a.b", "a.b", true},
		{"a.b", "a.c", false},
		{"a.b", "a.b.c", false},
		{"a.>", "a.b", true},
		{"a.>", "a.b.c", true},
		{"a.>", "a", false},
		{"a.>", "ab.c", false},
		{">", "a", true},
		{"a.*", "a.b", true},
		{"a.*", "a.b.c", false},
		{"a.*.c", "a.x.c", true},
		{"*.*.canceled", "admission.barista.canceled", true},
		{"*.*.canceled", "admission.canceled", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.pattern, tt.subject), "Match(%q, %q)", tt.pattern, tt.subject)
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	require.NoError(t, b.Publish("nobody.listening", []byte("x")))

	sub, err := b.Subscribe("admission.queued")
	require.NoError(t, err)
	require.NoError(t, b.Publish("admission.queued", []byte("hello")))

	msg := receive(t, sub)
	assert.Equal(t, "admission.queued", msg.Subject)
	assert.Equal(t, "hello", string(msg.Data))
}

func TestMemoryBus_InvalidSubjects(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	assert.ErrorIs(t, b.Publish("", nil), ErrInvalidSubject)
	assert.ErrorIs(t, b.Publish("admission.>", nil), ErrInvalidSubject)
	_, err := b.Subscribe("a..b")
	assert.ErrorIs(t, err, ErrInvalidSubject)
}

func TestMemoryBus_Wildcards(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	all, _ := b.Subscribe("admission.>")
	canceled, _ := b.Subscribe("admission.*.canceled")

	b.Publish("admission.barista.queued", []byte("1"))
	b.Publish("other.barista.canceled", []byte("x"))
	b.Publish("admission.barista.canceled", []byte("2"))

	assert.Equal(t, "admission.barista.queued", receive(t, all).Subject)
	assert.Equal(t, "admission.barista.canceled", receive(t, all).Subject)
	assertEmpty(t, all)

	assert.Equal(t, "2", string(receive(t, canceled).Data))
	assertEmpty(t, canceled)
}

func TestMemoryBus_FanOut(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	subs := make([]Subscription, 3)
	for i := range subs {
		subs[i], _ = b.Subscribe("ev")
	}
	b.Publish("ev", []byte("broadcast"))
	for _, s := range subs {
		assert.Equal(t, "broadcast", string(receive(t, s).Data))
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, _ := b.Subscribe("ev")
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.NoError(t, b.Publish("ev", []byte("late")))
}

func TestMemoryBus_Close(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	sub, _ := b.Subscribe("ev")

	drained := make(chan struct{})
	go func() {
		for range sub.Messages() {
		}
		close(drained)
	}()

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("subscription not closed by Close")
	}

	assert.ErrorIs(t, b.Publish("ev", nil), ErrClosed)
	_, err := b.Subscribe("ev")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, sub.Unsubscribe())
}

func TestMemoryBus_SlowSubscriberDrops(t *testing.T) {
	b := NewMemoryBus(Config{BufferSize: 2})
	defer b.Close()

	slow, _ := b.Subscribe("ev")
	fast, _ := b.Subscribe("ev")

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish("ev", []byte{byte(i)}))
		if i < 4 {
			<-fast.Messages()
		}
	}

	assert.Equal(t, int64(3), slow.Dropped())
	assert.Len(t, slow.Messages(), 2)
	assert.Equal(t, int64(0), fast.Dropped())
	assert.Equal(t, []byte{4}, receive(t, fast).Data)
}
