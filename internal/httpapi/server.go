package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/pitwall/internal/config"
	"github.com/ent0n29/pitwall/internal/llm"
	"github.com/ent0n29/pitwall/internal/observability"
	"github.com/ent0n29/pitwall/internal/planner"
	"github.com/ent0n29/pitwall/internal/protocol"
)

const maxBodyBytes = 64 << 10

// Responder answers chat messages.
type Responder interface {
	Respond(ctx context.Context, req planner.Request) (planner.Reply, error)
}

// NewsReader serves the latest headlines.
type NewsReader interface {
	Latest(ctx context.Context) []string
}

// Store is the readiness view of the backing store.
type Store interface {
	Ping(ctx context.Context) error
	Kind() string
}

type Server struct {
	cfg      config.Config
	chat     Responder
	news     NewsReader
	store    Store
	llmMode  string
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, chat Responder, news NewsReader, store Store, llmMode string, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:     cfg,
		chat:    chat,
		news:    news,
		store:   store,
		llmMode: llmMode,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/chat", s.handleChat)
	r.Get("/news", s.handleNews)
	r.Get("/v1/chat/ws", s.handleChatWS)

	// Paths used by earlier clients.
	r.Post("/api/chat", s.handleChat)
	r.Get("/api/scrape", s.handleNews)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"llm_mode":   s.llmMode,
		"store_mode": s.storeMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "store", s.store.Kind(), "error", err)
			respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode(),
	})
}

type chatRequest struct {
	Message string                  `json:"message"`
	User    string                  `json:"user"`
	History []protocol.HistoryEntry `json:"history,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
	Source   string `json:"source"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reply, err := s.chat.Respond(r.Context(), planner.Request{
		UserID:  req.User,
		Message: req.Message,
		History: toLLMHistory(req.History),
	})
	if err != nil {
		if errors.Is(err, planner.ErrValidation) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Error("chat failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	s.metrics.ObserveChat("http", string(reply.Source))
	respondJSON(w, http.StatusOK, chatResponse{Response: reply.Text, Source: string(reply.Source)})
}

type newsResponse struct {
	News []string `json:"news"`
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	items := s.news.Latest(r.Context())
	if items == nil {
		items = []string{}
	}
	respondJSON(w, http.StatusOK, newsResponse{News: items})
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveConnections.Inc()
		defer s.metrics.ActiveConnections.Dec()
	}

	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return false
		}
		if t, ok := messageTypeOf(msg); ok {
			s.metrics.ObserveWSMessage("outbound", string(t))
		}
		return true
	}

	if !write(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "connected"}) {
		return
	}

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			if !write(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "invalid_client_message", Detail: err.Error()}) {
				return
			}
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}

		msg, ok := parsed.(protocol.ChatMessage)
		if !ok {
			continue
		}
		reply, err := s.chat.Respond(r.Context(), planner.Request{
			UserID:  msg.User,
			Message: msg.Message,
			History: toLLMHistory(msg.History),
		})
		if err != nil {
			if !write(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "invalid_request", Detail: err.Error()}) {
				return
			}
			continue
		}
		s.metrics.ObserveChat("ws", string(reply.Source))
		if !write(protocol.ChatReply{Type: protocol.TypeChatReply, Response: reply.Text, Source: string(reply.Source)}) {
			return
		}
	}
}

func toLLMHistory(entries []protocol.HistoryEntry) []llm.Message {
	if len(entries) == 0 {
		return nil
	}
	out := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, llm.Message{Role: e.Role, Content: e.Content})
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) storeMode() string {
	if s.store == nil {
		return "disabled"
	}
	return s.store.Kind()
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatMessage:
		return m.Type, true
	case protocol.ChatReply:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
