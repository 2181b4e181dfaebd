package gateway

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/arbiter/internal/config"
	"github.com/soyeahso/arbiter/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestClientRegistry_AddGetRemove(t *testing.T) {
	reg := NewClientRegistry(testLog())
	assert.Equal(t, 0, reg.Count())

	reg.Add(&Client{ConnID: "conn-1", Info: ClientInfo{ID: "ui"}})
	reg.Add(&Client{ConnID: "conn-2", Info: ClientInfo{ID: "delegate"}})
	assert.Equal(t, 2, reg.Count())

	got, ok := reg.Get("conn-2")
	require.True(t, ok)
	assert.Equal(t, "delegate", got.Info.ID)

	reg.Remove("conn-1")
	reg.Remove("nonexistent")
	assert.Equal(t, 1, reg.Count())
	_, ok = reg.Get("conn-1")
	assert.False(t, ok)
}

// detachedClient is a client with no socket or writer; frames stay queued.
func detachedClient(id string, queue int) *Client {
	return &Client{
		ConnID: id,
		out:    make(chan Frame, queue),
		done:   make(chan struct{}),
		log:    testLog(),
	}
}

func TestClientRegistry_CloseAll(t *testing.T) {
	reg := NewClientRegistry(testLog())
	var clients []*Client
	for i := range 3 {
		c := detachedClient(fmt.Sprintf("conn-%d", i), 1)
		clients = append(clients, c)
		reg.Add(c)
	}

	reg.CloseAll()
	assert.Equal(t, 0, reg.Count())
	for _, c := range clients {
		assert.True(t, c.Closed(), c.ConnID)
	}
}

func TestClientRegistry_Broadcast(t *testing.T) {
	reg := NewClientRegistry(testLog())
	open := detachedClient("open", 4)
	closed := detachedClient("closed", 4)
	require.NoError(t, closed.Close())
	reg.Add(open)
	reg.Add(closed)

	reg.Broadcast(EventAgentsChanged, map[string]any{"agents": []any{}}, 7)

	require.Len(t, open.out, 1)
	f := <-open.out
	assert.Equal(t, FrameTypeEvent, f.Type)
	assert.Equal(t, EventAgentsChanged, f.Event)
	assert.Equal(t, int64(7), f.Seq)
	assert.Empty(t, closed.out)
}

func TestClient_SendAfterClose(t *testing.T) {
	c := detachedClient("conn-1", 1)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close(), "second close is a no-op")

	err := c.SendEvent(EventSubAgentsChanged, nil, 1)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_SlowClientIsDropped(t *testing.T) {
	c := detachedClient("conn-1", 2)

	require.NoError(t, c.SendEvent(EventTranscriptMessage, nil, 1))
	require.NoError(t, c.SendEvent(EventTranscriptMessage, nil, 2))
	assert.ErrorIs(t, c.SendEvent(EventTranscriptMessage, nil, 3), ErrSlowClient)
	assert.True(t, c.Closed())
	assert.ErrorIs(t, c.Respond("req-1", nil), ErrClientClosed)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		bind string
		port int
		host string
		want string
	}{
		{"loopback", "loopback", 18790, "", "127.0.0.1:18790"},
		{"lan", "lan", 9999, "", "0.0.0.0:9999"},
		{"auto", "auto", 8080, "", "0.0.0.0:8080"},
		{"custom default host", "custom", 3000, "", "0.0.0.0:3000"},
		{"custom host", "custom", 3000, "10.0.0.1", "10.0.0.1:3000"},
		{"custom ipv6 host", "custom", 3000, "::1", "[::1]:3000"},
		{"unknown falls back", "whatever", 5000, "", "127.0.0.1:5000"},
		{"empty falls back", "", 0, "", "127.0.0.1:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GatewayConfig{Bind: tt.bind, Port: tt.port, CustomBindHost: tt.host}
			assert.Equal(t, tt.want, resolveBindAddr(cfg))
		})
	}
}
