package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialTestNATS connects to NATS_URL (or the default URL) and skips the
// test when no server answers.
func dialTestNATS(t testing.TB) *NATSBus {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}

	cfg := DefaultNATSConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.URL = url
	}
	cfg.Name = "admitkit-test"
	cfg.ConnectTimeout = 2 * time.Second
	cfg.MaxReconnects = 0

	b, err := DialNATS(cfg)
	if err != nil {
		t.Skipf("NATS not available at %s: %v", cfg.URL, err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func flush(t *testing.T, b *NATSBus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Flush(ctx))
}

func TestNATSBus_PublishSubscribe(t *testing.T) {
	b := dialTestNATS(t)

	sub, err := b.Subscribe("test.admission.queued")
	require.NoError(t, err)
	defer sub.Unsubscribe()
	flush(t, b)

	require.NoError(t, b.Publish("test.admission.queued", []byte("hello")))
	assert.Equal(t, "hello", string(receive(t, sub).Data))
}

func TestNATSBus_Wildcards(t *testing.T) {
	b := dialTestNATS(t)

	sub, err := b.Subscribe("test.admission.*.canceled")
	require.NoError(t, err)
	defer sub.Unsubscribe()
	flush(t, b)

	b.Publish("test.admission.barista.queued", []byte("q"))
	b.Publish("test.admission.barista.canceled", []byte("c"))
	flush(t, b)

	assert.Equal(t, "test.admission.barista.canceled", receive(t, sub).Subject)
	assertEmpty(t, sub)
}

func TestNATSBus_Unsubscribe(t *testing.T) {
	b := dialTestNATS(t)

	sub, err := b.Subscribe("test.unsub")
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
}

func TestNATSBus_Closed(t *testing.T) {
	b := dialTestNATS(t)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish("test.closed", nil), ErrClosed)
	_, err := b.Subscribe("test.closed")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNATSFromConn_LeavesConnOpen(t *testing.T) {
	owner := dialTestNATS(t)

	b := NATSFromConn(owner.conn, Config{})
	require.NoError(t, b.Close())
	assert.False(t, owner.conn.IsClosed())
	assert.NoError(t, b.Publish("test.shared", []byte("x")))
}

func TestDialNATS_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.ConnectTimeout = 300 * time.Millisecond
	cfg.MaxReconnects = 0

	_, err := DialNATS(cfg)
	assert.Error(t, err)
}

func TestNATSConfig_Options(t *testing.T) {
	cfg := DefaultNATSConfig()
	assert.Len(t, cfg.options(), 3)

	cfg.Name = "barista"
	cfg.Token = "secret"
	cfg.User = "ignored"
	assert.Len(t, cfg.options(), 5)
}

func BenchmarkNATSBus_Publish(b *testing.B) {
	nb := dialTestNATS(b)
	data := []byte(`{"type":"queued"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		nb.Publish("bench.admission.queued", data)
	}
}
