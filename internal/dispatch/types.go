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

package dispatch

// State is the assistant state carried on the wire. The dispatcher holds
// no session data; the caller always supplies its current state.
type State string

const (
	// StateWakeListen is standby: listening, scanning for the wake phrase only.
	StateWakeListen State = "wake_listen"
	// StateAwake is the command window: any utterance is a command.
	StateAwake State = "awake"
)

// normalizeState folds legacy/initial state spellings into StateWakeListen.
func normalizeState(s State) State {
	switch s {
	case StateAwake:
		return StateAwake
	default:
		// "", "standby", "idle" and anything unrecognized are all
		// treated as the wake-listening state.
		return StateWakeListen
	}
}

// Request is one dispatch turn. Stateless on the wire.
type Request struct {
	SessionID string `json:"sessionId"`
	State     State  `json:"state"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"isFinal"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// CueTone is a short synthesized beep, played client-side.
type CueTone struct {
	Frequency  int `json:"frequency"`
	DurationMs int `json:"durationMs"`
}

// ActionType enumerates what the client should do with this turn.
type ActionType string

const (
	ActionNone           ActionType = "none"
	ActionNavigate       ActionType = "navigate"
	ActionExecuteCommand ActionType = "execute_command"
)

// ActionPayload carries the action arguments.
type ActionPayload struct {
	CommandText string `json:"commandText,omitempty"`
	View        string `json:"view,omitempty"`
}

// Action tells the client what to perform after applying nextState.
type Action struct {
	Type    ActionType     `json:"type"`
	Payload *ActionPayload `json:"payload,omitempty"`
}

// Matched tags which branch of the dispatch algorithm fired, echoed back
// in the debug block for client-side tracing.
type Matched string

const (
	MatchedEmpty   Matched = "empty"
	MatchedWake    Matched = "wake"
	MatchedSleep   Matched = "sleep"
	MatchedCommand Matched = "command"
	MatchedNone    Matched = "none"
)

// Debug echoes the normalized text and matched tag for a turn.
type Debug struct {
	Normalized string  `json:"normalized"`
	Matched    Matched `json:"matched"`
}

// Response drives all client-side effects for one turn.
type Response struct {
	NextState State     `json:"nextState"`
	TTS       string    `json:"tts"`
	Cues      []CueTone `json:"cues"`
	Action    Action    `json:"action"`
	Debug     *Debug    `json:"debug,omitempty"`
}
