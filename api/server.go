// Package api serves the rewind control API over HTTP: the recording
// lifecycle, replay windows, record ingestion, the message envelope and a
// WebSocket status feed.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/rewind/capture"
	"github.com/hazyhaar/rewind/capture/event"
	"github.com/hazyhaar/rewind/connectivity"
	"github.com/hazyhaar/rewind/kit"
	"github.com/hazyhaar/rewind/shield"
)

// Server owns the HTTP routes of one session.
type Server struct {
	sess    *capture.Session
	router  *connectivity.Router
	push    *capture.PushRecorder
	hub     *Hub
	logger  *slog.Logger
	maxBody int64
	replay  kit.Endpoint
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPushRecorder enables POST /api/recording/events, delivering the
// posted records to p.
func WithPushRecorder(p *capture.PushRecorder) Option {
	return func(s *Server) { s.push = p }
}

// WithHub serves status updates from h on /api/recording/ws.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithMaxBody caps request bodies.
func WithMaxBody(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// New creates a Server. router receives /api/message envelopes; the
// session's actions must already be registered on it.
func New(sess *capture.Session, router *connectivity.Router, opts ...Option) *Server {
	s := &Server{
		sess:    sess,
		router:  router,
		logger:  slog.Default(),
		maxBody: 8 << 20,
	}
	for _, o := range opts {
		o(s)
	}
	s.replay = kit.Chain(kit.Logging(s.logger, capture.ActionReplay))(sess.Endpoint(capture.ActionReplay))
	return s
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(s.logger, s.maxBody) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/recording", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.sess.Status())
		})
		r.Get("/data", s.action(capture.ActionData))
		r.Get("/replay", s.handleReplay)
		r.Post("/start", s.action(capture.ActionStart))
		r.Post("/stop", s.action(capture.ActionStop))
		r.Post("/pause", s.action(capture.ActionPause))
		r.Post("/resume", s.action(capture.ActionResume))
		r.Post("/discard", s.action(capture.ActionDiscard))
		r.Post("/save", s.action(capture.ActionSave))
		if s.push != nil {
			r.Post("/events", s.handleEvents)
			r.Get("/options", s.handleOptions)
		}
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWebSocket)
		}
	})

	if s.router != nil {
		r.Post("/api/message", s.handleMessage)
		r.Get("/api/actions", s.handleActions)
		r.Get("/api/actions/{action}", s.handleAction)
	}
	return r
}

// action runs a session action. The body, if any, is an ActionPayload.
func (s *Server) action(name string) http.HandlerFunc {
	ep := kit.Chain(kit.Logging(s.logger, name))(s.sess.Endpoint(name))
	return func(w http.ResponseWriter, r *http.Request) {
		var p capture.ActionPayload
		if err := decodeOptional(r.Body, &p); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.runAction(w, r, ep, &p)
	}
}

func (s *Server) runAction(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, p *capture.ActionPayload) {
	resp, err := ep(kit.WithTransport(r.Context(), "http"), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeResult(w, r, resp.(capture.Result))
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	var p capture.ActionPayload
	if v := r.URL.Query().Get("duration_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("api: duration_ms: %w", err))
			return
		}
		p.Duration = ms
	}
	s.runAction(w, r, s.replay, &p)
}

// recorderOptions is the JSON shape of the active run's sampling options,
// with durations in milliseconds.
type recorderOptions struct {
	Kind            string `json:"kind"`
	CheckoutEveryMs int64  `json:"checkout_every_ms"`
	RecordCanvas    bool   `json:"record_canvas"`
	CollectFonts    bool   `json:"collect_fonts"`
	Sampling        struct {
		ScrollMs    int64  `json:"scroll_ms"`
		MousemoveMs int64  `json:"mousemove_ms"`
		Input       string `json:"input"`
	} `json:"sampling"`
}

// handleOptions tells an external recorder how to sample the active run.
func (s *Server) handleOptions(w http.ResponseWriter, _ *http.Request) {
	if !s.push.Active() {
		writeError(w, http.StatusConflict, capture.ErrNotRecording)
		return
	}
	o := s.push.Options()
	out := recorderOptions{
		Kind:            o.Kind,
		CheckoutEveryMs: o.CheckoutEvery.Milliseconds(),
		RecordCanvas:    o.RecordCanvas,
		CollectFonts:    o.CollectFonts,
	}
	out.Sampling.ScrollMs = o.Sampling.Scroll.Milliseconds()
	out.Sampling.MousemoveMs = o.Sampling.Mousemove.Milliseconds()
	out.Sampling.Input = o.Sampling.Input
	writeJSON(w, http.StatusOK, out)
}

// handleEvents ingests records posted as a JSON array or as line-delimited
// JSON.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	recs, err := event.NewDecoder(r.Body).All()
	if err != nil {
		writeError(w, bodyStatus(err), err)
		return
	}
	n, err := s.push.Deliver(recs...)
	if errors.Is(err, capture.ErrNotRecording) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "accepted": 0})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": n, "received": len(recs)})
}

// handleMessage answers a connectivity Message envelope. Domain failures
// come back as a 200 with an unsuccessful Result so that forwarding peers
// see the same body as local callers.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, bodyStatus(err), fmt.Errorf("api: read message: %w", err))
		return
	}

	out, err := s.router.Dispatch(kit.WithTransport(r.Context(), "message"), raw)
	if err != nil {
		var (
			bad      *connectivity.ErrBadMessage
			notFound *connectivity.ErrActionNotFound
			disabled *connectivity.ErrActionDisabled
			timeout  *connectivity.ErrTimeout
			remote   *connectivity.ErrRemoteStatus
		)
		code := http.StatusInternalServerError
		switch {
		case errors.As(err, &bad):
			code = http.StatusBadRequest
		case errors.As(err, &notFound):
			code = http.StatusNotFound
		case errors.As(err, &disabled):
			code = http.StatusServiceUnavailable
		case errors.As(err, &timeout):
			code = http.StatusGatewayTimeout
		case errors.As(err, &remote):
			code = http.StatusBadGateway
		}
		shield.GetLogger(r.Context()).Warn("api: message failed", "status", code, "error", err)
		writeError(w, code, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "action")
	info, ok := s.router.Inspect(name)
	if !ok {
		writeError(w, http.StatusNotFound, &connectivity.ErrActionNotFound{Action: name})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleActions(w http.ResponseWriter, _ *http.Request) {
	list := []connectivity.ActionInfo{}
	for info := range s.router.ListActions() {
		list = append(list, info)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res capture.Result) {
	if !res.Success {
		shield.GetLogger(r.Context()).Info("api: action rejected", "code", res.Code, "error", res.Error)
	}
	writeJSON(w, resultStatus(res), res)
}

// resultStatus maps a Result code to an HTTP status.
func resultStatus(res capture.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Code {
	case capture.CodeInvalidTransition:
		return http.StatusConflict
	case capture.CodeAcquireFailed:
		return http.StatusBadGateway
	case capture.CodeBadRequest:
		return http.StatusBadRequest
	case capture.CodeClosed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func bodyStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// decodeOptional decodes a JSON body into v. An empty body leaves v unset.
func decodeOptional(body io.Reader, v any) error {
	if body == nil {
		return nil
	}
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
