// Package server provides the HTTP API over the universe store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/uniradar/uniradar/internal/store"
	"github.com/uniradar/uniradar/pkg/radar"
)

// PlaceResolver maps a place id to its universe id.
type PlaceResolver interface {
	ResolveUniverseFromPlace(ctx context.Context, placeID int64) (int64, error)
}

// Server provides the HTTP API.
type Server struct {
	store       store.Store
	snapshotter *radar.Snapshotter
	resolver    PlaceResolver
	httpServer  *http.Server
	log         *slog.Logger
}

// New creates a new HTTP server.
func New(s store.Store, snapshotter *radar.Snapshotter, resolver PlaceResolver, port int, logger *slog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		store:       s,
		snapshotter: snapshotter,
		resolver:    resolver,
		log:         logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /api/v1/universes", srv.handleListUniverses)
	mux.HandleFunc("GET /api/v1/universes/{id}", srv.handleGetUniverse)
	mux.HandleFunc("GET /api/v1/universes/{id}/history", srv.handleHistory)
	mux.HandleFunc("GET /api/v1/radar/breakouts", srv.handleBreakouts)
	mux.HandleFunc("POST /api/v1/track", srv.handleTrack)
	mux.HandleFunc("DELETE /api/v1/track/{id}", srv.handleUntrack)
	mux.HandleFunc("POST /api/v1/snapshot", srv.handleSnapshot)

	srv.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return srv
}

// ListenAndServe starts the HTTP server and blocks.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListUniverses(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOpts{Order: r.URL.Query().Get("order")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		opts.Limit, _ = strconv.Atoi(limit)
	}

	rows, err := s.store.ListUniverses(r.Context(), opts)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  rows,
		"count": len(rows),
	})
}

func (s *Server) handleGetUniverse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	u, err := s.store.GetUniverse(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "universe not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	view := map[string]any{"universe": u}
	if lc, err := s.store.GetLiveCache(r.Context(), id); err == nil {
		view["live"] = lc
	}
	if ts, err := s.store.LatestTrendScore(r.Context(), id); err == nil {
		view["trend"] = ts
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "playing"
	}
	hours := parseWindowHours(r.URL.Query().Get("window"), 24)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	series, err := s.store.History(r.Context(), id, metric, since)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

func (s *Server) handleBreakouts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	var minVotes int64
	if v := r.URL.Query().Get("minVotes"); v != "" {
		minVotes, _ = strconv.ParseInt(v, 10, 64)
	}

	rows, err := s.store.Breakouts(r.Context(), limit, minVotes)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UniverseID int64   `json:"universe_id"`
		PlaceID    int64   `json:"place_id"`
		Name       *string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	id := req.UniverseID
	if id == 0 && req.PlaceID != 0 {
		resolved, err := s.resolver.ResolveUniverseFromPlace(r.Context(), req.PlaceID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "universe not found for place"})
			return
		}
		id = resolved
	}
	if id == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "universe_id or place_id required"})
		return
	}

	if err := s.store.Track(r.Context(), id, req.Name); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "universe_id": id})
}

func (s *Server) handleUntrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.store.Untrack(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	res, err := s.snapshotter.Run(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return id, nil
}

// parseWindowHours accepts "24h" or "14d" style windows.
func parseWindowHours(window string, def int) int {
	if window == "" {
		return def
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(window, "d")); err == nil && strings.HasSuffix(window, "d") {
		return n * 24
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(window, "h")); err == nil {
		return n
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
