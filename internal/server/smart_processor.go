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

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xiaolang-labs/xiaolang-hub/internal/dispatch"
	"github.com/xiaolang-labs/xiaolang-hub/internal/events"
	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
	"github.com/xiaolang-labs/xiaolang-hub/internal/messaging"
)

// maxDispatchBody caps the request body; utterances are short.
const maxDispatchBody = 64 * 1024

// rawPreviewLimit bounds how much of a malformed payload is echoed back.
const rawPreviewLimit = 80

// handleSmartProcessor is the stateless dispatch endpoint. Every
// response, including errors, carries permissive CORS headers so browser
// clients on any origin can call it.
func (s *Server) handleSmartProcessor(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	switch r.Method {
	case http.MethodOptions:
		// Preflight: answer before touching the body.
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":   true,
			"name": "smart-processor",
			"hint": "POST {sessionId, state, text, isFinal} for a dispatch decision",
		})

	case http.MethodPost:
		s.dispatchTurn(w, r)

	default:
		writeJSON(w, http.StatusMethodNotAllowed,
			map[string]string{"error": fmt.Sprintf("Method %s not allowed", r.Method)})
	}
}

func (s *Server) dispatchTurn(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDispatchBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
		return
	}
	defer func() { _ = r.Body.Close() }()

	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Empty request body"})
		return
	}

	var req dispatch.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":      "Invalid JSON",
			"detail":     err.Error(),
			"rawPreview": truncateRunes(string(body), rawPreviewLimit),
		})
		return
	}

	resp := s.dispatcher.Dispatch(req)

	matched := dispatch.MatchedNone
	normalized := ""
	if resp.Debug != nil {
		matched = resp.Debug.Matched
		normalized = resp.Debug.Normalized
	}
	logging.LogDispatch(req.SessionID, string(req.State), string(matched),
		zap.String("next_state", string(resp.NextState)),
		zap.Bool("is_final", req.IsFinal),
		zap.Int64("processing_time_ms", time.Since(start).Milliseconds()))

	// Persistence and messaging are observability side channels; the
	// dispatch answer never waits on them.
	go s.recordTurn(req, resp, normalized, matched, time.Since(start))

	writeJSON(w, http.StatusOK, resp)
}

// recordTurn publishes the turn to NATS and persists it, best effort.
// Publication runs first so a fan-out failure lands in the persisted
// record as a failed turn.
func (s *Server) recordTurn(req dispatch.Request, resp dispatch.Response,
	normalized string, matched dispatch.Matched, elapsed time.Duration) {

	event := events.NewDispatchEvent(req.SessionID)
	event.SetInput(string(req.State), req.Text, req.IsFinal)

	commandText := ""
	if resp.Action.Payload != nil {
		commandText = resp.Action.Payload.CommandText
	}
	event.SetDecision(normalized, string(matched), string(resp.NextState),
		string(resp.Action.Type), commandText, resp.TTS)
	event.ProcessingTime = elapsed.Milliseconds()

	if err := s.publishTurn(req, resp, matched); err != nil {
		logging.LogError(err, "failed to publish dispatch turn",
			zap.String("session_id", req.SessionID))
		event.SetError(err)
		event.ProcessingTime = elapsed.Milliseconds()
	}

	if s.events == nil {
		return
	}
	if err := s.events.Insert(event); err != nil {
		logging.LogError(err, "failed to persist dispatch event",
			zap.String("session_id", req.SessionID))
	}
}

// publishTurn fans the turn out to NATS when messaging is configured.
func (s *Server) publishTurn(req dispatch.Request, resp dispatch.Response,
	matched dispatch.Matched) error {

	if s.nats == nil {
		return nil
	}

	now := time.Now().UnixMilli()
	if req.State != resp.NextState {
		err := s.nats.PublishStateChange(&messaging.StateChangeEvent{
			SessionID: req.SessionID,
			PrevState: string(req.State),
			NextState: string(resp.NextState),
			Reason:    string(matched),
			Timestamp: now,
		})
		if err != nil {
			return fmt.Errorf("state change publication: %w", err)
		}
	}

	if resp.Action.Type == dispatch.ActionExecuteCommand && resp.Action.Payload != nil {
		err := s.nats.PublishCommand(&messaging.CommandEvent{
			SessionID:   req.SessionID,
			CommandText: resp.Action.Payload.CommandText,
			Matched:     string(matched),
			ActionType:  string(resp.Action.Type),
			View:        resp.Action.Payload.View,
			Timestamp:   now,
		})
		if err != nil {
			return fmt.Errorf("command publication: %w", err)
		}
	}

	return nil
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// truncateRunes bounds a string to n runes without splitting a UTF-8
// sequence.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
