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

// Package transport turns microphone audio into an ordered sequence of
// transcript events. A single Recognizer interface fronts the available
// backends (realtime WebSocket stream, buffered HTTP fallback), selected
// once at startup; consumers see one event-handler callback regardless.
package transport

import (
	"context"
	"time"

	"github.com/xiaolang-labs/xiaolang-hub/internal/config"
)

// EventType enumerates recognizer lifecycle and transcript events.
type EventType string

const (
	// EventReady: transport is open; audio may be sent.
	EventReady EventType = "ready"
	// EventStarted: the recognizer began decoding the stream.
	EventStarted EventType = "started"
	// EventPartial: best-effort preview of an in-progress utterance.
	// Later partials supersede earlier ones for the same utterance.
	EventPartial EventType = "partial"
	// EventFinal: terminal transcript for one utterance.
	EventFinal EventType = "final"
	// EventError: transport failure. Err is always set. The transport
	// does not retry; the consumer owns that policy.
	EventError EventType = "error"
)

// Event is one recognizer event. Immutable once emitted.
type Event struct {
	Type      EventType
	Text      string
	Timestamp time.Time
	Err       *Error
}

// Handler consumes recognizer events. Called from the transport's read
// goroutine; handlers must be quick and must not call back into the
// recognizer synchronously.
type Handler func(Event)

// Backend names, as reported by Recognizer.Backend. The stream backend
// endpoints utterances server-side; the buffered backend only
// transcribes on EndUtterance (or when its utterance buffer fills), so
// a consumer feeding it raw audio must detect end-of-speech itself.
const (
	BackendStream   = "stream"
	BackendBuffered = "buffered"
)

// Recognizer is the capability interface over recognition backends.
//
// Within one utterance, zero or more partial events precede exactly one
// final. Ready/started arrive before any transcript event. Stop is
// idempotent and releases the transport; it never emits an error event
// for the teardown it causes itself.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop() error
	// SendAudio ships one frame of 16 kHz mono s16le PCM.
	SendAudio(pcm []byte) error
	// EndUtterance asks the backend to finalize the current utterance.
	EndUtterance() error
	// Backend names the active variant, for logs.
	Backend() string
}

// Select picks the recognition backend once at startup: the realtime
// stream when configured, the buffered HTTP fallback otherwise.
func Select(cfg config.RecognizerConfig, handler Handler) (Recognizer, error) {
	if cfg.StreamURL != "" {
		return NewStreamRecognizer(cfg.StreamURL, cfg.StreamToken, handler), nil
	}
	if cfg.STTURL != "" {
		return NewBufferedRecognizer(cfg.STTURL, cfg.Language, cfg.SampleRate, handler), nil
	}
	return nil, ErrRecognitionUnsupported
}
