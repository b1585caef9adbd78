// Command researchd exposes Run, StreamProgress, and ListSources over
// HTTP: POST /runs, GET /runs/{id}/events, GET /sources. It is the one
// thin network surface this module ships; everything else is a library
// consumed directly by Go callers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	research "github.com/brianmills2718/osint-deep-research"
	"github.com/brianmills2718/osint-deep-research/config"
	"github.com/brianmills2718/osint-deep-research/logging"
	"github.com/brianmills2718/osint-deep-research/registry"
)

type runRequest struct {
	Question       string  `json:"question"`
	Sensitivity    string  `json:"sensitivity,omitempty"`
	MaxTasks       *int    `json:"max_tasks,omitempty"`
	MaxTimeMinutes *int    `json:"max_time_minutes,omitempty"`
	MaxCostUSD     *float64 `json:"max_cost_usd,omitempty"`
}

type runAccepted struct {
	RunID string `json:"run_id"`
}

type server struct {
	logger logging.Logger
	reg    *registry.Registry
}

func main() {
	cfg, err := config.Load(os.Getenv("RESEARCH_CONFIG_PATH"), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "researchd: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)
	reg, err := registry.New(cfg.Registry.RedisURL, logger)
	if err != nil {
		logger.Error("building registry", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	research.WarmSources(reg, cfg, logger)

	srv := &server{logger: logger, reg: reg}

	mux := http.NewServeMux()
	mux.HandleFunc("/runs", srv.handleRuns)
	mux.HandleFunc("/runs/", srv.handleRunEvents)
	mux.HandleFunc("/sources", srv.handleSources)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	addr := os.Getenv("RESEARCH_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // /runs/{id}/events streams indefinitely
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting researchd", map[string]interface{}{"addr": addr})
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

// handleRuns starts a run in the background and returns its run id
// immediately, so the caller can start polling /runs/{id}/events before
// the run finishes.
func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("malformed request body: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	question := research.Question{
		Text:        req.Question,
		Sensitivity: research.Sensitivity(req.Sensitivity),
	}
	overrides := &config.Overrides{
		MaxTasks:       req.MaxTasks,
		MaxTimeMinutes: req.MaxTimeMinutes,
		MaxCostUSD:     req.MaxCostUSD,
	}

	runID := uuid.New().String()
	ctx := research.WithRunID(context.Background(), runID)

	go func() {
		if _, err := research.Run(ctx, question, overrides); err != nil {
			s.logger.Error("run failed", map[string]interface{}{"run_id": runID, "error": err.Error()})
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(runAccepted{RunID: runID})
}

// handleRunEvents streams one run's execution log as newline-delimited
// JSON, flushing after every event so a client reading the response body
// incrementally sees progress as it happens (an SSE-like stream without
// committing to the text/event-stream framing, since the teacher's HTTP
// layer doesn't use it elsewhere either).
func (s *server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID, ok := parseRunEventsPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	events, err := research.StreamProgress(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

func parseRunEventsPath(path string) (string, bool) {
	rest := strings.TrimPrefix(path, "/runs/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "events" {
		return "", false
	}
	return parts[0], true
}

func (s *server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(research.ListSources(s.reg))
}
