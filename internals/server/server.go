package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jadenj13/toolchat/internals/agent"
	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/llm"
	"github.com/jadenj13/toolchat/internals/relay"
	"github.com/jadenj13/toolchat/internals/search"
	"github.com/jadenj13/toolchat/internals/tools"
	"github.com/jadenj13/toolchat/internals/transcript"
)

const maxBodyBytes = 1 << 20

type TurnRunner interface {
	RunTurn(ctx context.Context, sess *chat.Session, userText string, obs agent.Observer) (agent.Reply, error)
}

type Server struct {
	agent    TurnRunner
	sessions *chat.SessionStore
	search   tools.Searcher
	relay    tools.Relay
	build    string
	log      *slog.Logger
}

func New(runner TurnRunner, sessions *chat.SessionStore, s tools.Searcher, r tools.Relay, build string, log *slog.Logger) *Server {
	return &Server{
		agent:    runner,
		sessions: sessions,
		search:   s,
		relay:    r,
		build:    build,
		log:      log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleRestartSession)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handleMessage)
	mux.HandleFunc("DELETE /api/sessions/{id}/alert", s.handleDismissAlert)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/aipipe", s.handleAIPipe)
	return mux
}

type sessionView struct {
	ID    string            `json:"id"`
	Lines []transcript.Line `json:"lines"`
	Alert string            `json:"alert"`
}

type turnView struct {
	Lines []transcript.Line `json:"lines"`
	Alert string            `json:"alert"`
	Error string            `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "build": s.build})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	s.log.Info("session created", "session", sess.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, chat.ErrSessionNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionView{
		ID:    sess.ID,
		Lines: sess.Transcript.Lines(),
		Alert: sess.Transcript.CurrentAlert(),
	})
}

func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Restart(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Info("session restarted", "session", sess.ID)
	writeJSON(w, http.StatusOK, map[string]string{"id": sess.ID})
}

type messageRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, chat.ErrSessionNotFound.Error())
		return
	}

	var req messageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	ctx := llm.ContextWithModel(r.Context(), req.Model)
	reply, err := s.agent.RunTurn(ctx, sess, text, nil)
	view := turnView{Lines: reply.Lines, Alert: sess.Transcript.CurrentAlert()}
	if view.Lines == nil {
		view.Lines = []transcript.Line{}
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, view)
	case errors.Is(err, chat.ErrTurnInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, agent.ErrMaxTurnsExceeded):
		view.Error = err.Error()
		writeJSON(w, http.StatusOK, view)
	default:
		s.log.Error("turn failed", "session", sess.ID, "err", err)
		view.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, view)
	}
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, chat.ErrSessionNotFound.Error())
		return
	}
	sess.Transcript.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	resp, err := s.search.Search(r.Context(), q)
	if err != nil {
		s.log.Error("search failed", "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, search.ErrUpstream) {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type aipipeRequest struct {
	Path    string `json:"path"`
	Payload any    `json:"payload"`
}

func (s *Server) handleAIPipe(w http.ResponseWriter, r *http.Request) {
	var req aipipeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	path := req.Path
	if path == "" {
		path = tools.DefaultAIPipePath
	}
	payload, _ := req.Payload.(map[string]any)

	data, err := s.relay.Post(r.Context(), path, payload)
	if err != nil {
		s.log.Error("aipipe failed", "path", path, "err", err)
		switch {
		case errors.Is(err, relay.ErrBaseURLMissing):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, relay.ErrUpstream):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
