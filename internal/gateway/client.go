package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/arbiter/internal/logging"
)

const (
	writeTimeout = 10 * time.Second

	// sendQueue bounds the frames waiting for one client. Transcript events
	// are broadcast from the dialog executor, so a full queue drops the
	// client instead of blocking.
	sendQueue = 256
)

// Client is an authenticated WebSocket connection. Frames are written by a
// dedicated goroutine in the order they were queued.
type Client struct {
	ConnID      string
	Info        ClientInfo
	AuthResult  AuthResult
	ConnectedAt time.Time

	conn      *websocket.Conn
	out       chan Frame
	done      chan struct{}
	closeOnce sync.Once
	log       *logging.Logger
}

// NewClient wraps a connection that has completed the handshake and starts
// its writer.
func NewClient(conn *websocket.Conn, info ClientInfo, authResult AuthResult, log *logging.Logger) *Client {
	c := &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		AuthResult:  authResult,
		ConnectedAt: time.Now(),
		conn:        conn,
		out:         make(chan Frame, sendQueue),
		done:        make(chan struct{}),
		log:         log,
	}
	go c.writeLoop()
	return c
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(f); err != nil {
				c.log.Debug().Err(err).Str("connId", c.ConnID).Msg("write failed")
				c.Close()
				return
			}
		}
	}
}

// Send queues one frame. Safe for concurrent use; never blocks.
func (c *Client) Send(frame Frame) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.log.Warn().Str("connId", c.ConnID).Int("queued", len(c.out)).Msg("client too slow, disconnecting")
		c.Close()
		return ErrSlowClient
	}
}

// SendEvent queues a named event.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond answers request reqID with payload.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError answers request reqID with an error.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame blocks for the next frame.
func (c *Client) ReadFrame() (Frame, error) {
	var f Frame
	if err := c.conn.ReadJSON(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close stops the writer and closes the connection. Frames still queued are
// discarded and later sends fail with ErrClientClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Closed reports whether Close has run.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// ClientRegistry tracks connected clients by connection ID.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers c.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ConnID] = c
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

// Remove unregisters the client with connID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	delete(r.clients, connID)
	r.mu.Unlock()
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Get looks up a client.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends an event to every connected client. A client that fails
// the write is logged and skipped.
func (r *ClientRegistry) Broadcast(event string, payload any, seq int64) {
	frame, err := NewEvent(event, payload, seq)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encoding broadcast")
		return
	}
	for _, c := range r.snapshot() {
		if err := c.Send(frame); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", event).Msg("broadcast send failed")
		}
	}
}

// CloseAll closes and forgets every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}

func (r *ClientRegistry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
