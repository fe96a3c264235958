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

package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DispatchEvent records one smart-processor turn with full traceability.
// The session identifier is client-generated and carries no server-side
// state; it exists for correlation across turns only.
type DispatchEvent struct {
	// Core identification
	UUID      string    `json:"uuid" db:"uuid"`
	SessionID string    `json:"session_id" db:"session_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Turn input
	State   string `json:"state" db:"state"`
	RawText string `json:"raw_text" db:"raw_text"`
	IsFinal bool   `json:"is_final" db:"is_final"`

	// Decision
	Normalized  string `json:"normalized" db:"normalized"`
	Matched     string `json:"matched" db:"matched"`
	NextState   string `json:"next_state" db:"next_state"`
	ActionType  string `json:"action_type" db:"action_type"`
	CommandText string `json:"command_text,omitempty" db:"command_text"`
	TTS         string `json:"tts,omitempty" db:"tts"`

	// Outcome
	ProcessingTime int64  `json:"processing_time_ms" db:"processing_time_ms"`
	Success        bool   `json:"success" db:"success"`
	ErrorMessage   string `json:"error_message,omitempty" db:"error_message"`
}

// NewDispatchEvent creates a DispatchEvent with a generated UUID and the
// current timestamp.
func NewDispatchEvent(sessionID string) *DispatchEvent {
	return &DispatchEvent{
		UUID:      uuid.NewString(),
		SessionID: sessionID,
		Timestamp: time.Now(),
		Success:   true,
	}
}

// SetInput records the turn input.
func (de *DispatchEvent) SetInput(state, rawText string, isFinal bool) {
	de.State = state
	de.RawText = rawText
	de.IsFinal = isFinal
}

// SetDecision records the dispatcher decision and closes the processing
// time window.
func (de *DispatchEvent) SetDecision(normalized, matched, nextState, actionType, commandText, tts string) {
	de.Normalized = normalized
	de.Matched = matched
	de.NextState = nextState
	de.ActionType = actionType
	de.CommandText = commandText
	de.TTS = tts
	de.ProcessingTime = time.Since(de.Timestamp).Milliseconds()
}

// SetError marks the event as failed with an error message.
func (de *DispatchEvent) SetError(err error) {
	de.Success = false
	de.ErrorMessage = err.Error()
	de.ProcessingTime = time.Since(de.Timestamp).Milliseconds()
}

// IsValid performs basic validation on the dispatch event.
func (de *DispatchEvent) IsValid() error {
	if de.UUID == "" {
		return fmt.Errorf("UUID is required")
	}

	if de.SessionID == "" {
		return fmt.Errorf("sessionID is required")
	}

	if de.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	return nil
}

// String returns a human-readable representation of the dispatch event.
func (de *DispatchEvent) String() string {
	return fmt.Sprintf("DispatchEvent{UUID: %s, Session: %s, State: %s -> %s, Matched: %s, Text: %q, Success: %t}",
		de.UUID, de.SessionID, de.State, de.NextState, de.Matched, de.RawText, de.Success)
}
