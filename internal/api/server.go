// Package api serves the local status API and the HTML overlay page.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/redalert/redalert/internal/audio"
	"github.com/redalert/redalert/internal/overlay"
	"github.com/redalert/redalert/internal/session"
	"github.com/redalert/redalert/internal/transport"
	"github.com/redalert/redalert/internal/types"
	"github.com/redalert/redalert/internal/webui"
)

// ErrNoAlert is reported when an action targets an empty slot
var ErrNoAlert = errors.New("no alert displayed")

const cueSampleRate = 22050

// Session is the part of the alert session the API drives
type Session interface {
	Snapshot() session.Snapshot
	Reconnect()
}

// HealthFunc reports transport health
type HealthFunc func() transport.Health

// Server provides the HTTP API and the overlay page
type Server struct {
	session   Session
	presenter *overlay.Presenter
	health    HealthFunc
	logger    zerolog.Logger
	listen    string
	startTime time.Time

	logBuffer *webui.LogBuffer
	cue       []byte

	versionMu sync.RWMutex
	version   string
	commit    string
	buildDate string

	srvMu sync.Mutex
	srv   *http.Server
}

// NewServer creates an API server bound to listen once started
func NewServer(sess Session, presenter *overlay.Presenter, health HealthFunc, logger zerolog.Logger, listen string) *Server {
	return &Server{
		session:   sess,
		presenter: presenter,
		health:    health,
		logger:    logger.With().Str("component", "api").Logger(),
		listen:    listen,
		startTime: time.Now(),
		cue:       audio.DefaultTone.WAV(cueSampleRate),
	}
}

// SetLogBuffer exposes captured logs on /api/logs
func (s *Server) SetLogBuffer(lb *webui.LogBuffer) {
	s.logBuffer = lb
}

// SetCue replaces the tone served on /cue.wav
func (s *Server) SetCue(tone audio.Tone) {
	s.cue = tone.WAV(cueSampleRate)
}

// SetVersion sets the version information
func (s *Server) SetVersion(version, commit, buildDate string) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	s.version = version
	s.commit = commit
	s.buildDate = buildDate
}

// Handler returns the routed mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /alert", s.handleAlert)
	mux.HandleFunc("POST /alert/{action}", s.handleAction)
	mux.HandleFunc("POST /api/reconnect", s.handleReconnect)
	mux.HandleFunc("GET /api/logs", s.handleLogsAPI)
	mux.HandleFunc("GET /cue.wav", s.handleCue)
	mux.HandleFunc("GET /{$}", s.handleWebUI)

	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srvMu.Lock()
	s.srv = srv
	s.srvMu.Unlock()

	s.logger.Info().Str("address", s.listen).Msg("Starting local API with overlay page")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a running server
func (s *Server) Shutdown(ctx context.Context) error {
	s.srvMu.Lock()
	srv := s.srv
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.versionMu.RLock()
	version, commit, buildDate := s.version, s.commit, s.buildDate
	s.versionMu.RUnlock()

	h := s.health()
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"connection":   h,
		"status_text":  h.State.StatusText(),
		"alert_active": snap.Alert != nil,
		"time":         time.Now().UTC().Format(time.RFC3339),
		"uptime":       time.Since(s.startTime).Round(time.Second).String(),
		"version":      version,
		"commit":       commit,
		"build_date":   buildDate,
	})
}

// alertView is the JSON shape the overlay page renders
type alertView struct {
	Alert       *types.Alert          `json:"alert"`
	Seq         uint64                `json:"seq,omitempty"`
	DisplayDate string                `json:"display_date,omitempty"`
	Actions     []overlay.Action      `json:"actions,omitempty"`
	Status      types.ConnectionState `json:"status"`
	StatusText  string                `json:"status_text"`
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	view := alertView{
		Alert:      snap.Alert,
		Seq:        snap.Seq,
		Status:     snap.Status,
		StatusText: snap.Status.StatusText(),
	}
	if snap.Alert != nil {
		view.DisplayDate = overlay.DisplayDate(*snap.Alert)
		view.Actions = s.presenter.Actions(*snap.Alert)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	kind := overlay.ActionKind(r.PathValue("action"))
	switch kind {
	case overlay.Primary, overlay.Secondary, overlay.Dismiss:
	default:
		http.NotFound(w, r)
		return
	}

	// seq names the alert the user saw, so a newer one is never acted on
	seq, err := strconv.ParseUint(r.URL.Query().Get("seq"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid seq", http.StatusBadRequest)
		return
	}

	snap := s.session.Snapshot()
	if snap.Alert == nil {
		writeError(w, http.StatusNotFound, ErrNoAlert)
		return
	}
	if snap.Seq != seq {
		writeError(w, http.StatusConflict, overlay.ErrAlertReplaced)
		return
	}

	err = s.presenter.Do(kind, *snap.Alert, seq)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": kind, "seq": seq})
	case errors.Is(err, overlay.ErrActionUnavailable), errors.Is(err, overlay.ErrAlertReplaced):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.logger.Info().Msg("Reconnect requested via API")
	s.session.Reconnect()
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

func (s *Server) handleLogsAPI(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	minLevel := zerolog.TraceLevel
	if v := r.URL.Query().Get("level"); v != "" {
		lvl, err := zerolog.ParseLevel(v)
		if err != nil {
			http.Error(w, "invalid level", http.StatusBadRequest)
			return
		}
		minLevel = lvl
	}

	entries := []webui.LogEntry{}
	if s.logBuffer != nil {
		entries = s.logBuffer.GetRecentEntries(limit, minLevel)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleCue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.Write(s.cue)
}

func (s *Server) handleWebUI(w http.ResponseWriter, r *http.Request) {
	s.versionMu.RLock()
	data := webui.PageData{
		Version:   s.version,
		Commit:    s.commit,
		BuildDate: s.buildDate,
		Listen:    s.listen,
	}
	s.versionMu.RUnlock()

	status := s.session.Snapshot().Status
	data.Status = status.String()
	data.StatusText = status.StatusText()
	if s.logBuffer != nil {
		data.Logs = s.logBuffer.GetRecentEntries(100, zerolog.InfoLevel)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := webui.Templates.ExecuteTemplate(w, "overlay", data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render overlay template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"success": false, "error": err.Error()})
}
