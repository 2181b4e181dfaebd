package gateway

import (
	"context"
	"encoding/json"
	"net/http"
)

// HealthResponse is returned by the public /health endpoint (status only)
// and the authenticated health RPC (every field).
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version,omitempty"`
	Clients        int    `json:"clients,omitempty"`
	Messages       int    `json:"messages,omitempty"`
	PendingReplies int    `json:"pendingReplies,omitempty"`
	UptimeMs       int64  `json:"uptimeMs,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RequestHandler serves one RPC method.
type RequestHandler func(rc *RequestContext)

// RequestContext carries a request frame and the client that sent it.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server

	ctx context.Context
}

// Context is cancelled when the gateway shuts down.
func (rc *RequestContext) Context() context.Context {
	if rc.ctx == nil {
		return context.Background()
	}
	return rc.ctx
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message}); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error response")
	}
}

// Params decodes the request params into target. Missing params leave
// target untouched.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
