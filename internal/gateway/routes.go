package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/arbiter/internal/config"
	"github.com/soyeahso/arbiter/internal/dialog"
	"github.com/soyeahso/arbiter/internal/domain"
)

// safeConfigPrefixes are the config paths reachable through config.get and
// config.set. Everything else, including auth, TLS and hooks, is denied.
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.mode",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"logging",
	"dialog",
	"registry",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("/", handleNotFound)
}

func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("chat.select", s.rpcChatSelect)
	s.Handle("agents.new", s.rpcAgentsNew)
	s.Handle("agents.list", s.rpcAgentsList)
	s.Handle("transcript.get", s.rpcTranscriptGet)
	s.Handle("wizard.state", s.rpcWizardState)
	s.Handle("subagents.update", s.rpcSubAgentsUpdate)
	s.Handle("subagents.list", s.rpcSubAgentsList)
	s.Handle("channels.status", s.rpcChannelsStatus)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	s.mu.RLock()
	started := s.startedAt
	s.mu.RUnlock()

	resp := HealthResponse{
		Status:         "ok",
		Version:        s.version,
		Clients:        s.clients.Count(),
		Messages:       s.ctrl.Transcript().Len(),
		PendingReplies: s.ctrl.PendingReplies(),
	}
	if !started.IsZero() {
		resp.UptimeMs = time.Since(started).Milliseconds()
	}
	rc.Respond(resp)
}

// ChatResult is the response to chat.send and chat.select.
type ChatResult struct {
	// Messages are the user message and any coordinator messages produced
	// synchronously by the turn.
	Messages     []domain.Message `json:"messages"`
	PendingReply bool             `json:"pendingReply"`
	ReplyDueAt   *time.Time       `json:"replyDueAt,omitempty"`
}

func newChatResult(turn *dialog.Turn) ChatResult {
	res := ChatResult{Messages: turn.Messages}
	if turn.Pending != nil {
		due := turn.Pending.Due
		res.PendingReply = true
		res.ReplyDueAt = &due
	}
	return res
}

type chatSendParams struct {
	Message *string `json:"message"`
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	var p chatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Message == nil {
		rc.RespondError(CodeInvalidParams, "message is required")
		return
	}
	turn, err := s.ctrl.Submit(rc.Context(), *p.Message)
	if err != nil {
		s.respondControllerError(rc, err)
		return
	}
	rc.Respond(newChatResult(turn))
}

type chatSelectParams struct {
	Option *string `json:"option"`
}

func (s *Server) rpcChatSelect(rc *RequestContext) {
	var p chatSelectParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Option == nil {
		rc.RespondError(CodeInvalidParams, "option is required")
		return
	}
	turn, err := s.ctrl.SelectOption(rc.Context(), *p.Option)
	if err != nil {
		s.respondControllerError(rc, err)
		return
	}
	rc.Respond(newChatResult(turn))
}

func (s *Server) rpcAgentsNew(rc *RequestContext) {
	pending, err := s.ctrl.NewAgentShortcut(rc.Context())
	if err != nil {
		s.respondControllerError(rc, err)
		return
	}
	rc.Respond(map[string]any{"pendingReply": true, "replyDueAt": pending.Due})
}

func (s *Server) rpcAgentsList(rc *RequestContext) {
	agents, err := s.ctrl.Agents(rc.Context())
	if err != nil {
		s.respondControllerError(rc, err)
		return
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	rc.Respond(map[string]any{"agents": agents})
}

type transcriptGetParams struct {
	Since int64 `json:"since"`
}

func (s *Server) rpcTranscriptGet(rc *RequestContext) {
	var p transcriptGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	rc.Respond(map[string]any{"messages": s.ctrl.Transcript().Since(p.Since)})
}

func (s *Server) rpcWizardState(rc *RequestContext) {
	st, err := s.ctrl.Wizard(rc.Context())
	if err != nil {
		s.respondControllerError(rc, err)
		return
	}
	rc.Respond(st)
}

type subAgentsUpdateParams struct {
	SubAgents []domain.SubAgent `json:"subagents"`
}

func (s *Server) rpcSubAgentsUpdate(rc *RequestContext) {
	var p subAgentsUpdateParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if err := s.ctrl.UpdateSubAgents(rc.Context(), p.SubAgents); err != nil {
		s.respondControllerError(rc, err)
		return
	}
	s.broadcast(EventSubAgentsChanged, map[string]any{"subagents": s.subAgents()})
	rc.Respond(map[string]any{"count": len(p.SubAgents)})
}

func (s *Server) rpcSubAgentsList(rc *RequestContext) {
	rc.Respond(map[string]any{"subagents": s.subAgents()})
}

func (s *Server) subAgents() []domain.SubAgent {
	if sa := s.ctrl.SubAgents(); sa != nil {
		return sa
	}
	return []domain.SubAgent{}
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	statuses := []domain.ChannelStatus{}
	if s.channels != nil {
		statuses = s.channels.Status()
	}
	rc.Respond(map[string]any{"channels": statuses})
}

// respondControllerError maps controller failures onto error codes. Dialog
// problems never reach here; they are coordinator messages.
func (s *Server) respondControllerError(rc *RequestContext, err error) {
	switch {
	case errors.Is(err, dialog.ErrStopped):
		rc.RespondError(CodeUnavailable, err.Error())
	case errors.Is(err, dialog.ErrInvalidSubAgent):
		rc.RespondError(CodeInvalidParams, err.Error())
	default:
		s.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("controller call failed")
		rc.RespondError(CodeInternal, err.Error())
	}
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	path, ok := s.configPathParam(rc, p.Key, "access denied for config path: ")
	if !ok {
		return
	}

	s.mu.RLock()
	val, found := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !found {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// rpcConfigSet applies a change only if the resulting config validates. With
// a config file attached the change is written through, and the file watcher
// picks it up from there.
func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	path, ok := s.configPathParam(rc, p.Key, "cannot modify config path: ")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate, _, err := config.ApplyEdit(s.configRaw, func(raw map[string]any) error {
		config.SetValueAtPath(raw, path, p.Value)
		return nil
	})
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			rc.Client.RespondError(rc.Frame.ID, ErrorShape{
				Code:    CodeInvalidParams,
				Message: verr.Error(),
				Details: verr.Messages(),
			})
			return
		}
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if s.configPath != "" {
		if err := config.SaveRaw(s.configPath, candidate); err != nil {
			s.log.Error().Err(err).Str("path", s.configPath).Msg("saving config failed")
			rc.RespondError(CodeInternal, "saving config: "+err.Error())
			return
		}
	}
	s.configRaw = candidate
	s.log.Info().Str("key", p.Key).Bool("persisted", s.configPath != "").Msg("config updated over rpc")
	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

func (s *Server) configPathParam(rc *RequestContext, key, deniedPrefix string) ([]string, bool) {
	if key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return nil, false
	}
	if !isAllowedConfigPath(key) {
		rc.RespondError(CodeForbidden, deniedPrefix+key)
		return nil, false
	}
	path, err := config.ParseConfigPath(key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return nil, false
	}
	return path, true
}
