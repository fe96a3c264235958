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

// Package dispatch implements the smart-processor decision function: a
// pure mapping from (current state, latest utterance) to the next state
// plus the spoken acknowledgment, cue tones and action for that turn.
package dispatch

import (
	"github.com/xiaolang-labs/xiaolang-hub/internal/lexicon"
)

// Options carries the cosmetic constants of a dispatcher. Wording and
// tone frequencies are configurable; the state contract is not.
type Options struct {
	AckPhrase      string
	WakeToneHz     int
	WakeToneHighHz int
	SleepToneHz    int
	ToneDurationMs int
}

// DefaultOptions returns the stock acknowledgment and cue tones.
func DefaultOptions() Options {
	return Options{
		AckPhrase:      "我在",
		WakeToneHz:     880,
		WakeToneHighHz: 1320,
		SleepToneHz:    440,
		ToneDurationMs: 120,
	}
}

// Dispatcher decides dispatch turns. Safe for concurrent use; it holds
// only immutable configuration.
type Dispatcher struct {
	opts Options
}

// New creates a dispatcher with the given options.
func New(opts Options) *Dispatcher {
	if opts.AckPhrase == "" {
		opts.AckPhrase = DefaultOptions().AckPhrase
	}
	if opts.WakeToneHz == 0 {
		opts.WakeToneHz = DefaultOptions().WakeToneHz
	}
	if opts.WakeToneHighHz == 0 {
		opts.WakeToneHighHz = DefaultOptions().WakeToneHighHz
	}
	if opts.SleepToneHz == 0 {
		opts.SleepToneHz = DefaultOptions().SleepToneHz
	}
	if opts.ToneDurationMs == 0 {
		opts.ToneDurationMs = DefaultOptions().ToneDurationMs
	}
	return &Dispatcher{opts: opts}
}

// Dispatch is a pure function of the request plus the static lexicon.
// Partials never transition; only finals reach the wake/sleep/command
// branches.
func (d *Dispatcher) Dispatch(req Request) Response {
	state := normalizeState(req.State)
	normalized := lexicon.Normalize(req.Text)

	debug := &Debug{Normalized: normalized, Matched: MatchedNone}

	if !req.IsFinal {
		// Partials are client-local preview signals. Echo the state
		// untouched so a speculative round trip cannot move it.
		return Response{
			NextState: state,
			Cues:      []CueTone{},
			Action:    Action{Type: ActionNone},
			Debug:     debug,
		}
	}

	if normalized == "" {
		debug.Matched = MatchedEmpty
		return Response{
			NextState: state,
			Cues:      []CueTone{},
			Action:    Action{Type: ActionNone},
			Debug:     debug,
		}
	}

	if state == StateWakeListen && lexicon.ContainsWake(normalized) {
		debug.Matched = MatchedWake
		return Response{
			NextState: StateAwake,
			TTS:       d.opts.AckPhrase,
			Cues: []CueTone{
				{Frequency: d.opts.WakeToneHz, DurationMs: d.opts.ToneDurationMs},
				{Frequency: d.opts.WakeToneHighHz, DurationMs: d.opts.ToneDurationMs},
			},
			Action: Action{Type: ActionNone},
			Debug:  debug,
		}
	}

	if state == StateAwake && lexicon.ContainsExit(normalized) {
		debug.Matched = MatchedSleep
		return Response{
			NextState: StateWakeListen,
			Cues: []CueTone{
				{Frequency: d.opts.SleepToneHz, DurationMs: d.opts.ToneDurationMs},
			},
			Action: Action{Type: ActionNone},
			Debug:  debug,
		}
	}

	if state == StateAwake {
		// The utterance may still carry an embedded wake phrase
		// ("你好小朗打开知识库" spoken in one breath); strip it so the
		// command portion routes cleanly.
		command := lexicon.StripWake(normalized)
		if command == "" && lexicon.ContainsWake(normalized) {
			// Wake-only while already awake: nothing to route. The
			// client re-arms its window on any final regardless.
			debug.Matched = MatchedWake
			return Response{
				NextState: StateAwake,
				Cues:      []CueTone{},
				Action:    Action{Type: ActionNone},
				Debug:     debug,
			}
		}
		if command == "" {
			command = normalized
		}
		debug.Matched = MatchedCommand
		return Response{
			NextState: StateAwake,
			Cues:      []CueTone{},
			Action: Action{
				Type:    ActionExecuteCommand,
				Payload: &ActionPayload{CommandText: command},
			},
			Debug: debug,
		}
	}

	// Standby, no wake match: stay put.
	return Response{
		NextState: state,
		Cues:      []CueTone{},
		Action:    Action{Type: ActionNone},
		Debug:     debug,
	}
}
