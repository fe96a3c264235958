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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaolang-labs/xiaolang-hub/internal/config"
)

func streamOnlyConfig() config.RecognizerConfig {
	return config.RecognizerConfig{
		StreamURL:  "ws://localhost:9000/recognize",
		Language:   "zh",
		SampleRate: 16000,
	}
}

func bufferedOnlyConfig() config.RecognizerConfig {
	return config.RecognizerConfig{
		STTURL:     "http://localhost:8000",
		Language:   "zh",
		SampleRate: 16000,
	}
}

func emptyRecognizerConfig() config.RecognizerConfig {
	return config.RecognizerConfig{Language: "zh", SampleRate: 16000}
}

func TestParseServerMessage(t *testing.T) {
	testCases := []struct {
		name         string
		payload      string
		expectedType EventType
		expectedText string
		expectErr    bool
		errKind      ErrorKind
	}{
		{
			name:         "ready",
			payload:      `{"type": "ready"}`,
			expectedType: EventReady,
		},
		{
			name:         "started",
			payload:      `{"type": "started"}`,
			expectedType: EventStarted,
		},
		{
			name:         "partial_with_text",
			payload:      `{"type": "partial", "text": "你好"}`,
			expectedType: EventPartial,
			expectedText: "你好",
		},
		{
			name:         "final_with_text",
			payload:      `{"type": "final", "text": "你好小朗"}`,
			expectedType: EventFinal,
			expectedText: "你好小朗",
		},
		{
			name:         "error_message",
			payload:      `{"type": "error", "message": "decoder crashed"}`,
			expectedType: EventError,
		},
		{
			name:         "nls_error_alias",
			payload:      `{"type": "nls_error", "message": "engine busy"}`,
			expectedType: EventError,
		},
		{
			name:      "unknown_type",
			payload:   `{"type": "telemetry"}`,
			expectErr: true,
			errKind:   ErrorProtocol,
		},
		{
			name:      "malformed_json",
			payload:   `{"type": `,
			expectErr: true,
			errKind:   ErrorProtocol,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := parseServerMessage([]byte(tc.payload))

			if tc.expectErr {
				require.NotNil(t, err)
				assert.Equal(t, tc.errKind, err.Kind)
				return
			}

			require.Nil(t, err)
			assert.Equal(t, tc.expectedType, event.Type)
			assert.Equal(t, tc.expectedText, event.Text)
			assert.False(t, event.Timestamp.IsZero())

			if tc.expectedType == EventError {
				require.NotNil(t, event.Err)
				assert.Equal(t, ErrorProtocol, event.Err.Kind)
				assert.NotEmpty(t, event.Err.Message)
			}
		})
	}
}

func TestErrorKindOf(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{
			name:     "typed_permission",
			err:      NewError(ErrorPermission, "denied", nil),
			expected: ErrorPermission,
		},
		{
			name:     "wrapped_typed_error",
			err:      fmt.Errorf("start failed: %w", NewError(ErrorDevice, "no mic", nil)),
			expected: ErrorDevice,
		},
		{
			name:     "plain_error_defaults_to_network",
			err:      errors.New("connection reset"),
			expected: ErrorNetwork,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, KindOf(tc.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewError(ErrorNetwork, "failed to open recognizer stream", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to open recognizer stream")
}

func TestSelectPrefersStream(t *testing.T) {
	handler := func(Event) {}

	t.Run("stream_when_configured", func(t *testing.T) {
		rec, err := Select(streamOnlyConfig(), handler)
		require.NoError(t, err)
		assert.Equal(t, "stream", rec.Backend())
	})

	t.Run("buffered_fallback", func(t *testing.T) {
		rec, err := Select(bufferedOnlyConfig(), handler)
		require.NoError(t, err)
		assert.Equal(t, "buffered", rec.Backend())
	})

	t.Run("unsupported_when_nothing_configured", func(t *testing.T) {
		_, err := Select(emptyRecognizerConfig(), handler)
		require.Error(t, err)
		assert.Equal(t, ErrorUnsupported, KindOf(err))
	})
}

func TestBufferedStopDiscardsAudio(t *testing.T) {
	r := NewBufferedRecognizer("http://localhost:1", "zh", 16000, func(Event) {})

	// Not running: frames rejected, stop is a no-op.
	assert.Error(t, r.SendAudio([]byte{0, 0}))
	assert.NoError(t, r.Stop())
	assert.NoError(t, r.Stop())
}
