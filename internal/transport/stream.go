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

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
)

// serverMessage is the inbound JSON envelope from the streaming
// recognizer: {type: ready|started|partial|final|error|nls_error,
// text?, message?}.
type serverMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// stopControlFrame signals end-of-utterance on the wire.
const stopControlFrame = "stop"

// StreamRecognizer streams 16 kHz mono s16le PCM over a persistent
// WebSocket and receives partial/final transcripts as JSON messages.
// It reports failures exactly once and never reconnects on its own.
type StreamRecognizer struct {
	url     string
	token   string
	handler Handler

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	// stopping suppresses the read-loop error event during an
	// intentional teardown.
	stopping bool
}

// NewStreamRecognizer creates a streaming recognizer client.
func NewStreamRecognizer(url, token string, handler Handler) *StreamRecognizer {
	return &StreamRecognizer{
		url:     url,
		token:   token,
		handler: handler,
	}
}

// Backend names the active variant.
func (r *StreamRecognizer) Backend() string { return BackendStream }

// Start dials the recognizer. Lifecycle events (ready, started) arrive
// from the server before any transcript event.
func (r *StreamRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	header := http.Header{}
	if r.token != "" {
		header.Set("Authorization", "Bearer "+r.token)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, r.url, header)
	if err != nil {
		return NewError(ErrorNetwork, "failed to open recognizer stream", err)
	}

	r.conn = conn
	r.running = true
	r.stopping = false

	logging.LogTransport(r.Backend(), "connected", zap.String("url", r.url))
	go r.readLoop(conn)

	return nil
}

// Stop finalizes the stream and closes the connection. Idempotent;
// calling it when not running is a no-op.
func (r *StreamRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	r.stopping = true
	r.running = false

	// Best effort: let the server flush a final before the close.
	_ = r.conn.WriteMessage(websocket.TextMessage, []byte(stopControlFrame))
	_ = r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := r.conn.Close()
	r.conn = nil

	logging.LogTransport(r.Backend(), "stopped")
	if err != nil {
		return NewError(ErrorNetwork, "failed to close recognizer stream", err)
	}
	return nil
}

// SendAudio ships one binary PCM frame.
func (r *StreamRecognizer) SendAudio(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return NewError(ErrorNetwork, "recognizer stream not running", nil)
	}

	if err := r.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return NewError(ErrorNetwork, "failed to write audio frame", err)
	}
	return nil
}

// EndUtterance sends the textual stop control frame without closing the
// connection; the server answers with a final for the current utterance.
func (r *StreamRecognizer) EndUtterance() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	if err := r.conn.WriteMessage(websocket.TextMessage, []byte(stopControlFrame)); err != nil {
		return NewError(ErrorNetwork, "failed to write stop frame", err)
	}
	return nil
}

// readLoop consumes inbound JSON messages until the connection ends.
func (r *StreamRecognizer) readLoop(conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			intentional := r.stopping
			r.running = false
			r.mu.Unlock()

			if !intentional {
				r.handler(Event{
					Type:      EventError,
					Timestamp: time.Now(),
					Err:       NewError(ErrorNetwork, "recognizer stream ended", err),
				})
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			// The server has no business sending audio back on this
			// channel; ignore rather than fail the whole stream.
			continue
		}

		event, perr := parseServerMessage(msg)
		if perr != nil {
			r.handler(Event{
				Type:      EventError,
				Timestamp: time.Now(),
				Err:       perr,
			})
			continue
		}

		r.handler(event)
	}
}

// parseServerMessage maps one inbound JSON message to a transport event.
func parseServerMessage(msg []byte) (Event, *Error) {
	var parsed serverMessage
	if err := json.Unmarshal(msg, &parsed); err != nil {
		return Event{}, NewError(ErrorProtocol, "malformed recognizer message", err)
	}

	now := time.Now()
	switch parsed.Type {
	case "ready":
		return Event{Type: EventReady, Timestamp: now}, nil
	case "started":
		return Event{Type: EventStarted, Timestamp: now}, nil
	case "partial":
		return Event{Type: EventPartial, Text: parsed.Text, Timestamp: now}, nil
	case "final":
		return Event{Type: EventFinal, Text: parsed.Text, Timestamp: now}, nil
	case "error", "nls_error":
		return Event{
			Type:      EventError,
			Timestamp: now,
			Err:       NewError(ErrorProtocol, recognizerErrorMessage(parsed), nil),
		}, nil
	default:
		return Event{}, NewError(ErrorProtocol, "unknown recognizer message type: "+parsed.Type, nil)
	}
}

func recognizerErrorMessage(m serverMessage) string {
	if m.Message != "" {
		return m.Message
	}
	return "recognizer reported an error"
}
