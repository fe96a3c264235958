/*
 * This file is part of Xiaolang (https://github.com/xiaolang-labs/xiaolang).
 * Copyright (C) 2026 Xiaolang Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package server exposes the smart-processor dispatch endpoint over
// HTTP, plus health and event-query APIs.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xiaolang-labs/xiaolang-hub/internal/config"
	"github.com/xiaolang-labs/xiaolang-hub/internal/dispatch"
	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
	"github.com/xiaolang-labs/xiaolang-hub/internal/messaging"
	"github.com/xiaolang-labs/xiaolang-hub/internal/storage"
)

// Server is the xiaolang hub HTTP server.
type Server struct {
	cfg    *config.Config
	mux    *http.ServeMux
	server *http.Server

	dispatcher *dispatch.Dispatcher
	events     *storage.DispatchEventsStore
	nats       *messaging.NATSService

	ctx    context.Context
	cancel context.CancelFunc
}

// Option wires optional server dependencies.
type Option func(*Server)

// WithEventStore enables dispatch-event persistence.
func WithEventStore(store *storage.DispatchEventsStore) Option {
	return func(s *Server) { s.events = store }
}

// WithMessaging enables NATS publication of command and state events.
func WithMessaging(nats *messaging.NATSService) Option {
	return func(s *Server) { s.nats = nats }
}

// New creates the hub server. Storage and messaging are optional; the
// dispatch endpoint itself is stateless and works without them.
func New(cfg *config.Config, opts ...Option) *Server {
	mux := http.NewServeMux()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg: cfg,
		mux: mux,
		dispatcher: dispatch.New(dispatch.Options{
			AckPhrase:      cfg.Assistant.AckPhrase,
			WakeToneHz:     cfg.Assistant.WakeToneHz,
			WakeToneHighHz: cfg.Assistant.WakeToneHighHz,
			SleepToneHz:    cfg.Assistant.SleepToneHz,
			ToneDurationMs: cfg.Assistant.ToneDurationMs,
		}),
		ctx:    ctx,
		cancel: cancel,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.routes()
	return s
}

// Handler exposes the routed mux, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// maintenanceInterval paces event-log pruning and compaction.
const maintenanceInterval = time.Hour

// Start runs the HTTP server until Stop.
func (s *Server) Start() error {
	logging.Sugar.Infow("🚀 Xiaolang hub starting",
		"http_port", s.cfg.Server.Port,
		"persistence", s.events != nil,
		"messaging", s.nats != nil)

	if s.events != nil && s.cfg.Database.Retention > 0 {
		go s.maintainEvents()
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// maintainEvents periodically prunes the dispatch log to the configured
// retention window and compacts the database.
func (s *Server) maintainEvents() {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.Database.Retention)
			pruned, err := s.events.Maintain(cutoff)
			if err != nil {
				logging.LogError(err, "event log maintenance failed")
				continue
			}
			if pruned > 0 {
				logging.Sugar.Infow("🧹 Pruned dispatch events",
					"pruned", pruned,
					"retention", s.cfg.Database.Retention.String())
			}
		}
	}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	logging.Sugar.Infow("🛑 Shutting down Xiaolang hub")
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logging.Sugar.Infow("✅ Xiaolang hub shut down")
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/smart-processor", s.handleSmartProcessor)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleListEvents)

	logging.Sugar.Infow("🌐 HTTP routes configured",
		"dispatch_endpoint", "/smart-processor",
		"events_endpoint", "/api/events")
}

// handleHealth provides system health information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
	}
	if s.events != nil {
		health["persistence"] = true
	}
	if s.nats != nil {
		stats := s.nats.GetStats()
		health["nats_connected"] = s.nats.IsConnected()
		health["nats"] = map[string]interface{}{
			"in_msgs":    stats.InMsgs,
			"out_msgs":   stats.OutMsgs,
			"reconnects": stats.Reconnects,
		}
	}

	writeJSON(w, http.StatusOK, health)
}

// handleListEvents serves the persisted dispatch log.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed,
			map[string]string{"error": fmt.Sprintf("Method %s not allowed", r.Method)})
		return
	}
	if s.events == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"error": "Event persistence is not enabled"})
		return
	}

	options := storage.ListOptions{
		SessionID: r.URL.Query().Get("session_id"),
		Matched:   r.URL.Query().Get("matched"),
		Limit:     50,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit <= 500 {
			options.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			options.Offset = offset
		}
	}

	list, err := s.events.List(options)
	if err != nil {
		logging.LogError(err, "failed to list dispatch events")
		writeJSON(w, http.StatusInternalServerError,
			map[string]string{"error": "Failed to list events"})
		return
	}

	total, err := s.events.Count(options)
	if err != nil {
		logging.LogError(err, "failed to count dispatch events")
		total = int64(len(list))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": list,
		"total":  total,
		"limit":  options.Limit,
		"offset": options.Offset,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Sugar.Errorw("Failed to write JSON response", "error", err)
	}
}
