package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/geonews-etl/internal/domain"
	"github.com/couchcryptid/geonews-etl/internal/pipeline"
)

const (
	defaultWindow = 7 * 24 * time.Hour
	maxLimit      = 1000
)

// EventQuerier reads stored disaster records.
type EventQuerier interface {
	QueryEvents(ctx context.Context, q domain.EventQuery) ([]domain.PersistedRecord, error)
}

// RunTrigger starts a pipeline run in the background.
type RunTrigger interface {
	Trigger() error
}

// Server exposes health, readiness, metrics, the event read API, and the
// manual run trigger.
type Server struct {
	httpServer *http.Server
	events     EventQuerier
	runs       RunTrigger
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewServer creates the HTTP server. A nil events or runs disables the
// matching route with 503.
func NewServer(addr string, ready sharedobs.ReadinessChecker, events EventQuerier, runs RunTrigger, clock clockwork.Clock, logger *slog.Logger) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		events: events,
		runs:   runs,
		clock:  clock,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /runs", s.handleRuns)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type eventsResponse struct {
	From   string                   `json:"from"`
	To     string                   `json:"to"`
	Count  int                      `json:"count"`
	Events []domain.PersistedRecord `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event storage not configured")
		return
	}

	q, err := s.parseEventQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.events.QueryEvents(r.Context(), q)
	if err != nil {
		s.logger.Error("query events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query events failed")
		return
	}
	if events == nil {
		events = []domain.PersistedRecord{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, eventsResponse{
		From:   q.From.Format(domain.DateLayout),
		To:     q.To.Format(domain.DateLayout),
		Count:  len(events),
		Events: events,
	})
}

// parseEvents accepts repeated event params and comma-separated lists.
func parseEvents(values []string) []domain.Label {
	var out []domain.Label
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if label := strings.ToLower(strings.TrimSpace(part)); label != "" {
				out = append(out, domain.Label(label))
			}
		}
	}
	return out
}

// parseEventQuery reads from/to as inclusive calendar days in UTC. Missing
// bounds default to the last seven days.
func (s *Server) parseEventQuery(r *http.Request) (domain.EventQuery, error) {
	params := r.URL.Query()
	now := s.clock.Now().UTC()
	q := domain.EventQuery{
		From: now.Add(-defaultWindow),
		To:   now,
	}

	if v := params.Get("from"); v != "" {
		from, err := time.Parse(domain.DateLayout, v)
		if err != nil {
			return q, errors.New("from must be YYYY-MM-DD")
		}
		q.From = from
	}
	if v := params.Get("to"); v != "" {
		to, err := time.Parse(domain.DateLayout, v)
		if err != nil {
			return q, errors.New("to must be YYYY-MM-DD")
		}
		q.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if q.To.Before(q.From) {
		return q, errors.New("to must not be before from")
	}

	q.Events = parseEvents(params["event"])

	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxLimit {
			return q, errors.New("limit must be between 1 and " + strconv.Itoa(maxLimit))
		}
		q.Limit = n
	}
	return q, nil
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run trigger not configured")
		return
	}
	switch err := s.runs.Trigger(); {
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
