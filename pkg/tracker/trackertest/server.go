// Package trackertest provides an in-process fake of the tracker's test
// cycle API for tests.
package trackertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// Request is one request received by the fake tracker.
type Request struct {
	PhaseID      string
	AssignmentID string
	CycleID      string
	APIKey       string
	ContentType  string
	Form         url.Values

	// ReceivedAt and RespondedAt bracket the handling of the request.
	ReceivedAt  time.Time
	RespondedAt time.Time
}

// Server records cycle and result requests. Zero-valued status fields
// mean success.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	cycles  []Request
	results []Request

	// CycleID is returned by successful cycle creations.
	CycleID int64

	// CycleStatus, when set, is returned for cycle creation instead of 201.
	CycleStatus int

	// CycleBody, when set, replaces the JSON body of a successful cycle creation.
	CycleBody string

	// ResultStatus returns the status for the n-th result submission
	// (1-based). Nil means 201 for every submission.
	ResultStatus func(n int) int

	// ResultDelay is slept before answering each result submission.
	ResultDelay time.Duration
}

// New starts a fake tracker that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{CycleID: 1001}

	r := chi.NewRouter()
	r.Route("/test_phases/{phaseID}/test_suite_assignments/{assignmentID}", func(r chi.Router) {
		r.Post("/test_cycles.json", s.handleCreateCycle)
		r.Post("/test_cycles/{cycleID}/test_results.json", s.handleSubmitResult)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)

	return s
}

// Cycles returns the cycle creation requests received so far.
func (s *Server) Cycles() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.cycles...)
}

// Results returns the result submissions received so far.
func (s *Server) Results() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.results...)
}

func (s *Server) record(r *http.Request) (Request, bool) {
	received := time.Now()

	if err := r.ParseForm(); err != nil {
		return Request{}, false
	}

	return Request{
		PhaseID:      chi.URLParam(r, "phaseID"),
		AssignmentID: chi.URLParam(r, "assignmentID"),
		CycleID:      chi.URLParam(r, "cycleID"),
		APIKey:       r.URL.Query().Get("api_key"),
		ContentType:  r.Header.Get("Content-Type"),
		Form:         r.PostForm,
		ReceivedAt:   received,
	}, true
}

func (s *Server) handleCreateCycle(w http.ResponseWriter, r *http.Request) {
	req, ok := s.record(r)
	if !ok {
		http.Error(w, `{"error":"bad form"}`, http.StatusBadRequest)

		return
	}

	s.mu.Lock()
	s.cycles = append(s.cycles, req)
	status, body, id := s.CycleStatus, s.CycleBody, s.CycleID
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"errors":["rejected by fake tracker"]}`))

		return
	}

	w.WriteHeader(http.StatusCreated)

	if body != "" {
		_, _ = w.Write([]byte(body))

		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":   id,
		"name": req.Form.Get("test_cycle[name]"),
	})
}

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	req, ok := s.record(r)
	if !ok {
		http.Error(w, `{"error":"bad form"}`, http.StatusBadRequest)

		return
	}

	s.mu.Lock()
	s.results = append(s.results, req)
	n := len(s.results)
	statusFn, delay := s.ResultStatus, s.ResultDelay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	s.results[n-1].RespondedAt = time.Now()
	s.mu.Unlock()

	status := http.StatusCreated
	if statusFn != nil {
		if st := statusFn(n); st != 0 {
			status = st
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"id":` + strconv.Itoa(n) + `}`))
}
