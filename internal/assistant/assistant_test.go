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

package assistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaolang-labs/xiaolang-hub/internal/config"
	"github.com/xiaolang-labs/xiaolang-hub/internal/dispatch"
	"github.com/xiaolang-labs/xiaolang-hub/internal/transport"
)

// fakeRecognizer is a controllable transport: tests feed events through
// the assistant's handler directly and observe start/stop bookkeeping.
type fakeRecognizer struct {
	mu        sync.Mutex
	starts    int
	stops     int
	startErrs []error // consumed one per Start call; nil entry = success
}

func (f *fakeRecognizer) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		return err
	}
	return nil
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeRecognizer) SendAudio(pcm []byte) error { return nil }
func (f *fakeRecognizer) EndUtterance() error        { return nil }
func (f *fakeRecognizer) Backend() string            { return "fake" }

func (f *fakeRecognizer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeRecognizer) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// statusLog collects status messages thread-safely.
type statusLog struct {
	mu       sync.Mutex
	messages []string
}

func (s *statusLog) record(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func (s *statusLog) countContaining(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

func testConfig() config.Config {
	return config.Config{
		Recognizer: config.RecognizerConfig{
			Language:   "zh",
			SampleRate: 16000,
		},
		Assistant: config.AssistantConfig{
			AwakeWindow:    300 * time.Millisecond,
			RestartBackoff: 20 * time.Millisecond,
			AckPhrase:      "我在",
			WakeToneHz:     880,
			WakeToneHighHz: 1320,
			SleepToneHz:    440,
			ToneDurationMs: 120,
		},
		TTS: config.TTSConfig{Timeout: time.Second},
	}
}

func newTestAssistant(t *testing.T, cfg config.Config, opts ...Option) (*Assistant, *fakeRecognizer, *statusLog) {
	t.Helper()

	fake := &fakeRecognizer{}
	status := &statusLog{}
	opts = append([]Option{
		WithRecognizer(fake),
		WithoutAudio(),
		WithStatus(status.record),
	}, opts...)

	a, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a, fake, status
}

func (a *Assistant) feedFinal(text string) {
	a.handleTransportEvent(transport.Event{
		Type:      transport.EventFinal,
		Text:      text,
		Timestamp: time.Now(),
	})
}

func (a *Assistant) feedError(kind transport.ErrorKind) {
	a.handleTransportEvent(transport.Event{
		Type:      transport.EventError,
		Timestamp: time.Now(),
		Err:       transport.NewError(kind, "induced failure", nil),
	})
}

func TestWakeCommandExitCycle(t *testing.T) {
	var (
		mu       sync.Mutex
		commands []string
	)
	a, _, _ := newTestAssistant(t, testConfig(), WithExecuteCommand(func(text string) {
		mu.Lock()
		commands = append(commands, text)
		mu.Unlock()
	}))

	require.NoError(t, a.StartListening(context.Background()))
	assert.Equal(t, dispatch.StateWakeListen, a.State())

	a.feedFinal("你好小朗")
	assert.Eventually(t, func() bool {
		return a.State() == dispatch.StateAwake
	}, time.Second, 5*time.Millisecond, "wake phrase should open the command window")

	a.feedFinal("打开知识库")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(commands) == 1 && commands[0] == "打开知识库"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, dispatch.StateAwake, a.State(), "commands keep the window open")

	a.feedFinal("退下吧")
	assert.Eventually(t, func() bool {
		return a.State() == dispatch.StateWakeListen
	}, time.Second, 5*time.Millisecond, "exit phrase should close the command window")
	assert.True(t, a.Listening(), "exit returns to standby, not disengaged")
}

func TestAwakeWindowTimesOutOnce(t *testing.T) {
	a, _, status := newTestAssistant(t, testConfig())

	require.NoError(t, a.StartListening(context.Background()))
	a.feedFinal("你好小朗")
	assert.Eventually(t, func() bool {
		return a.State() == dispatch.StateAwake
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return a.State() == dispatch.StateWakeListen
	}, 2*time.Second, 10*time.Millisecond, "awake window should expire")

	// Give a duplicate firing time to show up, then check it did not.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1, status.countContaining("超时"), "timeout feedback must fire exactly once")
	assert.True(t, a.Listening())
}

func TestAwakeWindowSlides(t *testing.T) {
	a, _, _ := newTestAssistant(t, testConfig(), WithExecuteCommand(func(string) {}))

	require.NoError(t, a.StartListening(context.Background()))
	a.feedFinal("你好小朗")
	assert.Eventually(t, func() bool {
		return a.State() == dispatch.StateAwake
	}, time.Second, 5*time.Millisecond)

	// Keep talking past the original deadline; each final re-arms.
	time.Sleep(200 * time.Millisecond)
	a.feedFinal("打开知识库")
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, dispatch.StateAwake, a.State(),
		"window must slide while utterances keep arriving")
}

func TestStopListeningIdempotent(t *testing.T) {
	a, fake, _ := newTestAssistant(t, testConfig())

	require.NoError(t, a.StartListening(context.Background()))
	require.NoError(t, a.StopListening())
	require.NoError(t, a.StopListening())

	assert.False(t, a.Listening())
	assert.GreaterOrEqual(t, fake.stopCount(), 1)

	// Late events from before the stop must be discarded.
	a.feedFinal("你好小朗")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, dispatch.StateWakeListen, a.State())
	assert.False(t, a.Listening())
}

func TestRestartExactlyOnce(t *testing.T) {
	a, fake, _ := newTestAssistant(t, testConfig())

	require.NoError(t, a.StartListening(context.Background()))
	require.Equal(t, 1, fake.startCount())

	a.feedError(transport.ErrorNetwork)
	assert.Eventually(t, func() bool {
		return fake.startCount() == 2
	}, time.Second, 5*time.Millisecond, "first network error earns one restart")
	assert.True(t, a.Listening())

	a.feedError(transport.ErrorNetwork)
	assert.Eventually(t, func() bool {
		return !a.Listening()
	}, time.Second, 5*time.Millisecond, "second failure gives up")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, fake.startCount(), "no further restart attempts")
}

func TestRestartFailureGivesUp(t *testing.T) {
	a, fake, status := newTestAssistant(t, testConfig())
	fake.startErrs = []error{nil, transport.NewError(transport.ErrorNetwork, "still down", nil)}

	require.NoError(t, a.StartListening(context.Background()))
	a.feedError(transport.ErrorNetwork)

	assert.Eventually(t, func() bool {
		return !a.Listening()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, fake.startCount())
	assert.Equal(t, 1, status.countContaining("恢复失败"))
}

func TestTerminalErrorsDoNotRetry(t *testing.T) {
	testCases := []struct {
		name string
		kind transport.ErrorKind
	}{
		{name: "permission", kind: transport.ErrorPermission},
		{name: "device", kind: transport.ErrorDevice},
		{name: "unsupported", kind: transport.ErrorUnsupported},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, fake, status := newTestAssistant(t, testConfig())

			require.NoError(t, a.StartListening(context.Background()))
			a.feedError(tc.kind)

			assert.Eventually(t, func() bool {
				return !a.Listening()
			}, time.Second, 5*time.Millisecond)

			time.Sleep(100 * time.Millisecond)
			assert.Equal(t, 1, fake.startCount(), "terminal kinds must not restart")
			assert.Greater(t, status.countContaining(""), 0)
		})
	}
}

func TestBufferedBackendFinalizesOnSilence(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "你好小朗"}`))
	})
	stt := httptest.NewServer(mux)
	t.Cleanup(stt.Close)

	cfg := testConfig()
	cfg.Recognizer.STTURL = stt.URL

	status := &statusLog{}
	a, err := New(cfg, WithoutAudio(), WithStatus(status.record))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.StartListening(context.Background()))
	require.Equal(t, transport.BackendBuffered, a.recognizer.Backend())

	loud := make([]float32, 960)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 0.25
		} else {
			loud[i] = -0.25
		}
	}
	quiet := make([]float32, 960)

	// Speech, then enough trailing silence for end-of-speech detection:
	// the buffered utterance must be transcribed and dispatched without
	// any explicit finalize call.
	for i := 0; i < 5; i++ {
		a.handleFrame(loud)
	}
	for i := 0; i < 40; i++ {
		a.handleFrame(quiet)
	}

	assert.Eventually(t, func() bool {
		return a.State() == dispatch.StateAwake
	}, 2*time.Second, 10*time.Millisecond,
		"silence after speech must produce a final on the buffered backend")
}

func TestStartListeningIdempotent(t *testing.T) {
	a, fake, _ := newTestAssistant(t, testConfig())

	require.NoError(t, a.StartListening(context.Background()))
	require.NoError(t, a.StartListening(context.Background()))

	assert.Equal(t, 1, fake.startCount(), "second start while engaged is a no-op")
}
