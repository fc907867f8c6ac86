// Package server exposes the most recent run log, stored run summaries and the
// Prometheus registry over HTTP.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lzha174/BusModel/internal/sim"
)

// Archive looks up runs saved by earlier processes.
type Archive interface {
	RunSummary(ctx context.Context, runID string) (sim.Summary, error)
}

type Server struct {
	mu      sync.RWMutex
	latest  *sim.RunLog
	metrics http.Handler
	archive Archive
}

// New builds a server. metrics and archive may be nil.
func New(metrics http.Handler, archive Archive) *Server {
	return &Server{metrics: metrics, archive: archive}
}

// SetLatest publishes a finished run to readers.
func (s *Server) SetLatest(rl *sim.RunLog) {
	s.mu.Lock()
	s.latest = rl
	s.mu.Unlock()
}

func (s *Server) Latest() *sim.RunLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PassengersResponse struct {
	RunID      string                `json:"runId"`
	Count      int                   `json:"count"`
	Passengers []sim.PassengerRecord `json:"passengers"`
}

type SummaryResponse struct {
	RunID   string      `json:"runId"`
	Summary sim.Summary `json:"summary"`
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/runs/latest", func(r chi.Router) {
		r.Get("/", s.getLatest)
		r.Get("/summary", s.getLatestSummary)
		r.Get("/buses/{busID}", s.getBus)
		r.Get("/passengers", s.getPassengers)
		r.Get("/passengers/{passengerID}", s.getPassenger)
	})
	r.Get("/runs/{runID}/summary", s.getRunSummary)
	return r
}

// Serve starts an HTTP server for Routes on addr.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: s.Routes()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("report server error: %v", err)
		}
	}()
	log.Printf("report server listening on %s", addr)
	return srv
}

func (s *Server) requireLatest(w http.ResponseWriter) *sim.RunLog {
	rl := s.Latest()
	if rl == nil {
		writeError(w, http.StatusNotFound, "no run has finished yet")
	}
	return rl
}

func (s *Server) getLatest(w http.ResponseWriter, r *http.Request) {
	if rl := s.requireLatest(w); rl != nil {
		writeJSON(w, http.StatusOK, rl)
	}
}

func (s *Server) getLatestSummary(w http.ResponseWriter, r *http.Request) {
	if rl := s.requireLatest(w); rl != nil {
		writeJSON(w, http.StatusOK, SummaryResponse{RunID: rl.RunID, Summary: rl.Summary})
	}
}

func (s *Server) getBus(w http.ResponseWriter, r *http.Request) {
	rl := s.requireLatest(w)
	if rl == nil {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "busID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "busID must be an integer")
		return
	}
	b, ok := rl.Bus(sim.BusID(id))
	if !ok {
		writeError(w, http.StatusNotFound, "bus not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// getPassengers lists passengers, optionally filtered by ?outcome=.
func (s *Server) getPassengers(w http.ResponseWriter, r *http.Request) {
	rl := s.requireLatest(w)
	if rl == nil {
		return
	}
	outcome := r.URL.Query().Get("outcome")
	switch outcome {
	case "", sim.OutcomeCompleted, sim.OutcomeAbandoned, sim.OutcomeStranded, sim.OutcomeIncomplete:
	default:
		writeError(w, http.StatusBadRequest, "unknown outcome "+strconv.Quote(outcome))
		return
	}
	out := make([]sim.PassengerRecord, 0, len(rl.Passengers))
	for _, p := range rl.Passengers {
		if outcome == "" || p.Outcome == outcome {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, PassengersResponse{RunID: rl.RunID, Count: len(out), Passengers: out})
}

func (s *Server) getPassenger(w http.ResponseWriter, r *http.Request) {
	rl := s.requireLatest(w)
	if rl == nil {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "passengerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "passengerID must be an integer")
		return
	}
	p, ok := rl.Passenger(sim.PassengerID(id))
	if !ok {
		writeError(w, http.StatusNotFound, "passenger not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// getRunSummary answers from memory for the latest run and from the archive otherwise.
func (s *Server) getRunSummary(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if rl := s.Latest(); rl != nil && rl.RunID == runID {
		writeJSON(w, http.StatusOK, SummaryResponse{RunID: runID, Summary: rl.Summary})
		return
	}
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	sum, err := s.archive.RunSummary(r.Context(), runID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "run not found")
	case err != nil:
		log.Printf("archive lookup %s: %v", runID, err)
		writeError(w, http.StatusInternalServerError, "failed to read run")
	default:
		writeJSON(w, http.StatusOK, SummaryResponse{RunID: runID, Summary: sum})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
