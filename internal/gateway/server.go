// Package gateway is the WebSocket RPC front door through which UIs and the
// delegation collaborator talk to the dialog controller.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/arbiter/internal/channel"
	"github.com/soyeahso/arbiter/internal/config"
	"github.com/soyeahso/arbiter/internal/dialog"
	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/hooks"
	"github.com/soyeahso/arbiter/internal/logging"
	"github.com/soyeahso/arbiter/internal/version"
)

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrSlowClient   = errors.New("client send queue full")
)

const (
	maxPayload       = 4 * 1024 * 1024
	handshakeTimeout = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Server is the Arbiter gateway HTTP + WebSocket server.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	ctrl     *dialog.Controller
	channels *channel.Registry // optional
	hooks    *hooks.Manager    // optional

	mu         sync.RWMutex
	configRaw  map[string]any
	configPath string // config.set persists here when set
	addr       string
	baseCtx    context.Context
	startedAt  time.Time

	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithConfigRaw sets the raw config map served by config.get and config.set.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) {
		if raw != nil {
			s.configRaw = raw
		}
	}
}

// WithConfigFile makes config.set write accepted changes back to path.
func WithConfigFile(path string) ServerOption {
	return func(s *Server) { s.configPath = path }
}

// WithChannels reports channel status through channels.status.
func WithChannels(ch *channel.Registry) ServerOption {
	return func(s *Server) { s.channels = ch }
}

// WithHooks emits gateway lifecycle events and listens for agent changes.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// New creates a gateway serving ctrl.
func New(cfg config.Config, ctrl *dialog.Controller, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		handlers:    make(map[string]RequestHandler),
		version:     version.Version,
		ctrl:        ctrl,
		configRaw:   make(map[string]any),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: handshakeTimeout,
			CheckOrigin:      checkWebSocketOrigin(cfg.Gateway.ControlUI.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRPCHandlers()
	return s
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	slices.Sort(methods)
	return methods
}

// Events returns the event names clients may receive.
func (s *Server) Events() []string {
	return []string{EventChallenge, EventTranscriptMessage, EventAgentsChanged, EventSubAgentsChanged}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// Start serves HTTP and WebSocket connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" && s.cfg.Gateway.Bind != "" {
		s.log.Warn().Msg("TLS is not enabled, credentials travel in cleartext")
	}

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	httpServer := &http.Server{
		Handler:           withMiddleware(mux, s.log, s.cfg.Gateway.ControlUI.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.baseCtx = ctx
	s.startedAt = time.Now()
	s.mu.Unlock()

	stopLimiter := make(chan struct{})
	go s.authLimiter.run(stopLimiter)
	defer close(stopLimiter)

	detach := s.attach()
	defer detach()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("auth", s.auth.Mode).
		Int("methods", len(s.handlers)).
		Msg("gateway server ready")
	s.emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.emit(context.WithoutCancel(ctx), hooks.EventGatewayStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.clients.CloseAll()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown incomplete")
		}
	}()

	err = httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		return nil
	}
	return err
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// attach subscribes the gateway to transcript appends and agent changes and
// returns the function that undoes it.
func (s *Server) attach() (detach func()) {
	unsubscribe := s.ctrl.Transcript().Subscribe(func(msg domain.Message) {
		s.broadcast(EventTranscriptMessage, msg)
	})

	if s.hooks == nil {
		return unsubscribe
	}
	const hookName = "gateway.agents"
	for _, event := range []string{hooks.EventAgentCreated, hooks.EventAgentDeleted} {
		s.hooks.On(event, hookName, s.onAgentsChanged)
	}
	return func() {
		unsubscribe()
		s.hooks.Off(hooks.EventAgentCreated, hookName)
		s.hooks.Off(hooks.EventAgentDeleted, hookName)
	}
}

func (s *Server) onAgentsChanged(ctx context.Context, p hooks.Payload) error {
	agents, err := s.ctrl.Agents(ctx)
	if err != nil {
		return fmt.Errorf("listing agents after %s: %w", p.Event, err)
	}
	s.broadcast(EventAgentsChanged, map[string]any{"agents": agents, "reason": p.Event})
	return nil
}

func (s *Server) broadcast(event string, payload any) {
	s.clients.Broadcast(event, payload, s.eventSeq.Add(1))
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

func (s *Server) requestContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// handleWebSocket upgrades the request and serves the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()
	s.readLoop(client)
}

// handshake runs challenge, connect, hello.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, CodeProtocol, "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if params.MaxProtocol != 0 && (ProtocolVersion < params.MinProtocol || ProtocolVersion > params.MaxProtocol) {
		sendErrorAndClose(conn, frame.ID, CodeProtocol, fmt.Sprintf("protocol %d not supported", ProtocolVersion))
		return nil, fmt.Errorf("protocol mismatch: client wants %d-%d", params.MinProtocol, params.MaxProtocol)
	}

	authResult := Authorize(s.auth, params.Auth)
	if !authResult.OK {
		sendErrorAndClose(conn, frame.ID, CodeUnauthorized, authResult.Reason)
		return nil, fmt.Errorf("auth failed: %s", authResult.Reason)
	}
	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, authResult, s.log.Sub("ws"))
	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{Methods: s.Methods(), Events: s.Events()},
		Policy:   ServerPolicy{MaxPayload: maxPayload, TickIntervalMs: 30000},
	}
	if err := client.Respond(frame.ID, hello); err != nil {
		client.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", authResult.Method).
		Msg("client authenticated")
	return client, nil
}

// readLoop serves requests from client one at a time, in arrival order.
func (s *Server) readLoop(client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read loop ended")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(client, frame)
	}
}

func (s *Server) dispatch(client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + frame.Method,
		})
		return
	}
	handler(&RequestContext{
		Client: client,
		Frame:  frame,
		Server: s,
		ctx:    s.requestContext(),
	})
}

func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
