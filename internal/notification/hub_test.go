package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rapidresponse/internal/common/config"
	"rapidresponse/internal/common/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records text frames. When block is set, writes wait until it is closed.
// When writeErr is set, text frames fail with it.
type fakeConn struct {
	mu       sync.Mutex
	texts    [][]byte
	closed   bool
	block    chan struct{}
	writeErr error
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.TextMessage {
		if c.writeErr != nil {
			return c.writeErr
		}
		c.texts = append(c.texts, data)
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.texts...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestHub(t *testing.T, buffer int) *Hub {
	h := NewHub(config.LiveConfig{SendBuffer: buffer, WriteTimeout: 1000, PingInterval: 60000}, logger.NewTestLogger(t))
	t.Cleanup(h.Close)
	return h
}

func TestHub_PushDeliversToConnectedClient(t *testing.T) {
	h := newTestHub(t, 4)
	conn := &fakeConn{}
	h.Connect("unit-7", conn)

	assert.True(t, h.Connected("unit-7"))
	assert.True(t, h.Push("unit-7", []byte(`{"type":"emergency_created"}`)))

	require.Eventually(t, func() bool { return len(conn.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, `{"type":"emergency_created"}`, string(conn.messages()[0]))
}

func TestHub_PushToUnknownClient(t *testing.T) {
	h := newTestHub(t, 4)
	assert.False(t, h.Push("nobody", []byte("x")))
}

func TestHub_StalledClientDoesNotBlock(t *testing.T) {
	h := newTestHub(t, 1)
	stalled := &fakeConn{block: make(chan struct{})}
	defer close(stalled.block)
	healthy := &fakeConn{}
	h.Connect("stalled", stalled)
	h.Connect("healthy", healthy)

	// One message is held by the blocked writer, one fills the buffer.
	accepted := 0
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			if h.Push("stalled", []byte("m")) {
				accepted++
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked on a stalled client")
	}
	assert.LessOrEqual(t, accepted, 2)
	assert.Less(t, accepted, 5)

	assert.True(t, h.Push("healthy", []byte("ok")))
	require.Eventually(t, func() bool { return len(healthy.messages()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_ConnectReplacesPrevious(t *testing.T) {
	h := newTestHub(t, 4)
	first := &fakeConn{}
	second := &fakeConn{}

	releaseFirst := h.Connect("unit-1", first)
	h.Connect("unit-1", second)

	require.Eventually(t, first.isClosed, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.Count())

	// Releasing the replaced connection leaves the new one registered.
	releaseFirst()
	assert.True(t, h.Connected("unit-1"))

	assert.True(t, h.Push("unit-1", []byte("hello")))
	require.Eventually(t, func() bool { return len(second.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, first.messages())
}

func TestHub_DisconnectIsIdempotent(t *testing.T) {
	h := newTestHub(t, 4)
	conn := &fakeConn{}
	release := h.Connect("unit-2", conn)

	h.Disconnect("unit-2")
	h.Disconnect("unit-2")
	release()

	assert.False(t, h.Connected("unit-2"))
	assert.Equal(t, 0, h.Count())
	assert.False(t, h.Push("unit-2", []byte("late")))
	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
}

func TestHub_SendWaitsForWrite(t *testing.T) {
	h := newTestHub(t, 4)
	conn := &fakeConn{}
	h.Connect("unit-3", conn)

	require.NoError(t, h.Send(context.Background(), "unit-3", []byte("hello")))
	assert.Len(t, conn.messages(), 1)
}

func TestHub_SendReportsWriteFailure(t *testing.T) {
	h := newTestHub(t, 4)
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	h.Connect("unit-4", conn)

	err := h.Send(context.Background(), "unit-4", []byte("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	require.Eventually(t, func() bool { return !h.Connected("unit-4") }, time.Second, 5*time.Millisecond)
	assert.True(t, conn.isClosed())
}

func TestHub_SendGivesUpWhenContextEnds(t *testing.T) {
	h := newTestHub(t, 4)
	conn := &fakeConn{block: make(chan struct{})}
	defer close(conn.block)
	h.Connect("unit-5", conn)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.Send(ctx, "unit-5", []byte("slow"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHub_SendToAbsentClient(t *testing.T) {
	h := newTestHub(t, 4)
	assert.ErrorIs(t, h.Send(context.Background(), "nobody", []byte("x")), errNotConnected)
}
