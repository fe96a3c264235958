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

// Package assistant is the client-side wake/command state machine. It
// owns one capture session, one recognizer, one inactivity timer and one
// playback at a time, and drives everything from a single event loop so
// handlers run to completion without races.
package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaolang-labs/xiaolang-hub/internal/audio"
	"github.com/xiaolang-labs/xiaolang-hub/internal/config"
	"github.com/xiaolang-labs/xiaolang-hub/internal/dispatch"
	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
	"github.com/xiaolang-labs/xiaolang-hub/internal/router"
	"github.com/xiaolang-labs/xiaolang-hub/internal/transport"
	"github.com/xiaolang-labs/xiaolang-hub/internal/tts"
)

// NavigateFunc receives routed navigation actions.
type NavigateFunc = router.NavigateFunc

// StatusFunc receives short-lived user-visible status messages.
type StatusFunc func(message string)

// ExecuteFunc overrides the built-in action router for command text.
type ExecuteFunc func(commandText string)

// Option customizes an Assistant.
type Option func(*Assistant)

// WithRemoteDispatcher routes dispatch turns through the smart-processor
// HTTP endpoint instead of the in-process dispatcher. If the remote path
// reports a configuration problem it is disabled for the session and
// local dispatch takes over.
func WithRemoteDispatcher(url string) Option {
	return func(a *Assistant) { a.remote = newRemoteDispatcher(url) }
}

// WithNavigate installs the host navigation callback.
func WithNavigate(fn NavigateFunc) Option {
	return func(a *Assistant) { a.navigate = fn }
}

// WithStatus installs the user-visible status callback.
func WithStatus(fn StatusFunc) Option {
	return func(a *Assistant) { a.onStatus = fn }
}

// WithExecuteCommand overrides the default action router.
func WithExecuteCommand(fn ExecuteFunc) Option {
	return func(a *Assistant) { a.onExecute = fn }
}

// WithRecognizer injects a recognizer, bypassing transport.Select.
func WithRecognizer(r transport.Recognizer) Option {
	return func(a *Assistant) { a.recognizer = r }
}

// WithoutAudio disables microphone capture and local playback; transcript
// events are then fed through the injected recognizer only. Used by hosts
// that own their audio path, and by tests.
func WithoutAudio() Option {
	return func(a *Assistant) { a.noAudio = true }
}

// task is one unit of event-loop work, tagged with the engagement
// generation that produced it so stale work is discarded after a stop.
type task struct {
	gen uint64
	fn  func()
}

// Assistant is the voice front-end state machine.
type Assistant struct {
	cfg config.Config

	dispatcher *dispatch.Dispatcher
	remote     *remoteDispatcher
	recognizer transport.Recognizer
	capture    *audio.Capture
	segmenter  *audio.VAD
	player     *audio.Player
	speech     *tts.Client
	actions    *router.Router

	navigate  NavigateFunc
	onStatus  StatusFunc
	onExecute ExecuteFunc
	noAudio   bool

	mu             sync.Mutex
	engaged        bool
	gen            uint64
	state          dispatch.State
	sessionID      string
	transcript     string
	awakeTimer     *time.Timer
	restartTimer   *time.Timer
	restartPending bool
	restartUsed    bool
	remoteDisabled bool

	tasks     chan task
	loopOnce  sync.Once
	closeOnce sync.Once
	closed    chan struct{}
}

// New builds an assistant from configuration. The microphone and speaker
// are not touched until StartListening.
func New(cfg config.Config, opts ...Option) (*Assistant, error) {
	a := &Assistant{
		cfg: cfg,
		dispatcher: dispatch.New(dispatch.Options{
			AckPhrase:      cfg.Assistant.AckPhrase,
			WakeToneHz:     cfg.Assistant.WakeToneHz,
			WakeToneHighHz: cfg.Assistant.WakeToneHighHz,
			SleepToneHz:    cfg.Assistant.SleepToneHz,
			ToneDurationMs: cfg.Assistant.ToneDurationMs,
		}),
		speech: tts.NewClient(cfg.TTS),
		player: audio.NewPlayer(),
		state:  dispatch.StateWakeListen,
		tasks:  make(chan task, 64),
		closed: make(chan struct{}),
	}

	if cfg.Assistant.DispatchURL != "" {
		a.remote = newRemoteDispatcher(cfg.Assistant.DispatchURL)
	}

	for _, opt := range opts {
		opt(a)
	}

	a.actions = router.New(a.navigate, func(message string) {
		a.emitStatus(message)
	})

	if a.recognizer == nil {
		rec, err := transport.Select(cfg.Recognizer, a.handleTransportEvent)
		if err != nil {
			return nil, err
		}
		a.recognizer = rec
	}

	if !a.noAudio {
		a.capture = audio.NewCapture(audio.DefaultCaptureRate, a.handleFrame)
	}

	// The buffered backend only transcribes on end-of-utterance, so the
	// assistant must detect end-of-speech itself; the stream backend
	// endpoints server-side.
	if a.recognizer.Backend() == transport.BackendBuffered {
		a.segmenter = audio.NewVAD()
	}

	return a, nil
}

// StartListening engages the assistant: opens the recognizer transport,
// acquires the microphone and enters standby. Idempotent while engaged.
func (a *Assistant) StartListening(ctx context.Context) error {
	a.mu.Lock()
	if a.engaged {
		a.mu.Unlock()
		return nil
	}
	a.gen++
	a.engaged = true
	a.state = dispatch.StateWakeListen
	a.sessionID = uuid.NewString()
	a.transcript = ""
	a.restartUsed = false
	a.restartPending = false
	a.remoteDisabled = false
	sessionID := a.sessionID
	a.mu.Unlock()

	a.loopOnce.Do(func() { go a.loop() })

	if a.segmenter != nil {
		a.segmenter.Reset()
	}

	if err := a.recognizer.Start(ctx); err != nil {
		a.teardown("recognizer start failed")
		a.emitStatus(statusMessage(transport.KindOf(err)))
		return err
	}

	if a.capture != nil {
		if err := a.capture.Start(); err != nil {
			_ = a.recognizer.Stop()
			a.teardown("capture start failed")
			a.emitStatus(statusMessage(transport.KindOf(err)))
			return err
		}
	}

	logging.LogAssistant(sessionID, string(dispatch.StateWakeListen), "engaged",
		zap.String("backend", a.recognizer.Backend()))
	return nil
}

// StopListening disengages: releases the microphone, closes the
// transport and resets to standby. Safe to call at any point, including
// while a dispatch round trip or restart is outstanding; late results
// from before the stop are discarded.
func (a *Assistant) StopListening() error {
	a.mu.Lock()
	if !a.engaged {
		a.mu.Unlock()
		return nil
	}
	sessionID := a.sessionID
	a.mu.Unlock()

	a.teardown("disengaged")
	logging.LogAssistant(sessionID, string(dispatch.StateWakeListen), "disengaged")
	return nil
}

// Close shuts down the event loop. The assistant is unusable afterwards.
func (a *Assistant) Close() error {
	err := a.StopListening()
	a.closeOnce.Do(func() { close(a.closed) })
	return err
}

// State reports the current wake state.
func (a *Assistant) State() dispatch.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Listening reports whether the assistant is engaged.
func (a *Assistant) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engaged
}

// Transcript returns the in-progress partial transcript, for hosts that
// display live previews. Cleared on every final and on state resets.
func (a *Assistant) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcript
}

// teardown releases all resources and invalidates in-flight work by
// bumping the generation. Every path through here leaves the machine in
// standby with the microphone released.
func (a *Assistant) teardown(reason string) {
	a.mu.Lock()
	a.engaged = false
	a.gen++
	a.state = dispatch.StateWakeListen
	a.transcript = ""
	if a.awakeTimer != nil {
		a.awakeTimer.Stop()
		a.awakeTimer = nil
	}
	if a.restartTimer != nil {
		a.restartTimer.Stop()
		a.restartTimer = nil
	}
	a.restartPending = false
	a.mu.Unlock()

	if a.capture != nil {
		if err := a.capture.Stop(); err != nil {
			logging.LogError(err, "failed to release microphone", zap.String("reason", reason))
		}
	}
	if err := a.recognizer.Stop(); err != nil {
		logging.LogError(err, "failed to stop recognizer", zap.String("reason", reason))
	}
}

// post queues work on the event loop under the current generation.
func (a *Assistant) post(fn func()) {
	a.mu.Lock()
	gen := a.gen
	engaged := a.engaged
	a.mu.Unlock()
	if !engaged {
		return
	}

	select {
	case a.tasks <- task{gen: gen, fn: fn}:
	default:
		// Loop is saturated; drop rather than block the audio path.
		logging.LogWarn("assistant event loop saturated, dropping event")
	}
}

// loop runs queued handlers one at a time for the assistant's lifetime.
// Tasks from a previous engagement are skipped.
func (a *Assistant) loop() {
	for {
		select {
		case <-a.closed:
			return
		case t := <-a.tasks:
			a.mu.Lock()
			stale := t.gen != a.gen || !a.engaged
			a.mu.Unlock()
			if stale {
				continue
			}
			t.fn()
		}
	}
}

// handleFrame downsamples one capture frame and ships it. Runs on the
// capture goroutine; errors surface through the recognizer's own event
// path, not here.
func (a *Assistant) handleFrame(samples []float32) {
	srcRate := audio.DefaultCaptureRate
	if a.capture != nil {
		srcRate = a.capture.SampleRate()
	}
	pcm := audio.DownsampleToPCM16(samples, srcRate, a.cfg.Recognizer.SampleRate)
	if len(pcm) == 0 {
		return
	}
	if err := a.recognizer.SendAudio(pcm); err != nil {
		logging.LogWarn("dropped audio frame", zap.Error(err))
		return
	}
	if a.segmenter != nil && a.segmenter.Observe(samples) {
		if err := a.recognizer.EndUtterance(); err != nil {
			logging.LogWarn("failed to finalize utterance", zap.Error(err))
		}
	}
}

// handleTransportEvent moves recognizer events onto the event loop.
func (a *Assistant) handleTransportEvent(ev transport.Event) {
	a.post(func() { a.applyEvent(ev) })
}

func (a *Assistant) applyEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventReady, transport.EventStarted:
		a.mu.Lock()
		sessionID, state := a.sessionID, a.state
		a.mu.Unlock()
		logging.LogAssistant(sessionID, string(state), string(ev.Type))

	case transport.EventPartial:
		// Last write wins; partials are preview only and never
		// transition state.
		a.mu.Lock()
		a.transcript = ev.Text
		a.mu.Unlock()

	case transport.EventFinal:
		a.handleFinal(ev.Text)

	case transport.EventError:
		a.handleTransportError(ev.Err)
	}
}

// handleFinal runs one dispatch turn for a final transcript and applies
// its effects.
func (a *Assistant) handleFinal(text string) {
	a.mu.Lock()
	req := dispatch.Request{
		SessionID: a.sessionID,
		State:     a.state,
		Text:      text,
		IsFinal:   true,
		Timestamp: time.Now().UnixMilli(),
	}
	gen := a.gen
	a.mu.Unlock()

	resp := a.dispatchTurn(req)

	// A stop may have landed while a remote round trip was in flight.
	a.mu.Lock()
	if gen != a.gen || !a.engaged {
		a.mu.Unlock()
		return
	}
	prevState := a.state
	a.state = resp.NextState
	a.transcript = ""
	sessionID := a.sessionID
	a.mu.Unlock()

	matched := dispatch.MatchedNone
	if resp.Debug != nil {
		matched = resp.Debug.Matched
	}
	logging.LogDispatch(sessionID, string(prevState), string(matched),
		zap.String("next_state", string(resp.NextState)))

	switch {
	case prevState == dispatch.StateWakeListen && resp.NextState == dispatch.StateAwake:
		a.playResponse(resp)
		a.armAwakeTimer()

	case prevState == dispatch.StateAwake && resp.NextState == dispatch.StateWakeListen:
		a.disarmAwakeTimer()
		a.playResponse(resp)

	case resp.NextState == dispatch.StateAwake:
		// Still in the command window: sliding inactivity window.
		a.armAwakeTimer()
		if resp.Action.Type == dispatch.ActionExecuteCommand && resp.Action.Payload != nil {
			a.executeCommand(resp.Action.Payload.CommandText)
		}
	}
}

// dispatchTurn prefers the remote smart-processor when configured and
// healthy; configuration failures disable it for the session, transient
// failures fall back to local dispatch for this turn only.
func (a *Assistant) dispatchTurn(req dispatch.Request) dispatch.Response {
	a.mu.Lock()
	remote := a.remote
	disabled := a.remoteDisabled
	a.mu.Unlock()

	if remote != nil && !disabled {
		resp, err := remote.dispatch(req)
		if err == nil {
			return resp
		}
		if transport.KindOf(err) == transport.ErrorConfig {
			a.mu.Lock()
			a.remoteDisabled = true
			a.mu.Unlock()
			logging.LogWarn("remote dispatch disabled for session", zap.Error(err))
		} else {
			logging.LogWarn("remote dispatch failed, using local", zap.Error(err))
		}
	}

	return a.dispatcher.Dispatch(req)
}

// executeCommand hands the command text to the override or the router.
func (a *Assistant) executeCommand(commandText string) {
	if commandText == "" {
		return
	}
	if a.onExecute != nil {
		a.onExecute(commandText)
		return
	}
	a.actions.Route(commandText)
}

// playResponse plays a turn's cues and speech. Capture is paused for the
// duration so the device does not transcribe its own voice; the pause is
// invisible to the restart policy because the transport stays open.
func (a *Assistant) playResponse(resp dispatch.Response) {
	if a.noAudio {
		return
	}
	if len(resp.Cues) == 0 && resp.TTS == "" {
		return
	}

	if a.capture != nil {
		a.capture.Pause()
		defer a.capture.Resume()
	}

	if len(resp.Cues) > 0 {
		tones := make([]audio.Tone, len(resp.Cues))
		for i, cue := range resp.Cues {
			tones[i] = audio.Tone{
				FrequencyHz: cue.Frequency,
				Duration:    time.Duration(cue.DurationMs) * time.Millisecond,
			}
		}
		if err := a.player.PlayTones(tones); err != nil {
			logging.LogWarn("cue playback failed", zap.Error(err))
		}
	}

	if resp.TTS != "" && a.speech.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.TTS.Timeout)
		result, err := a.speech.Synthesize(ctx, resp.TTS)
		cancel()
		if err != nil {
			logging.LogWarn("acknowledgment synthesis failed", zap.Error(err))
			return
		}
		if err := a.player.PlayEncoded(result.Audio, result.Format); err != nil {
			logging.LogWarn("acknowledgment playback failed", zap.Error(err))
		}
	}
}

// armAwakeTimer (re)arms the single-shot inactivity window. Always stops
// the previous timer first so the window slides instead of stacking.
func (a *Assistant) armAwakeTimer() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.awakeTimer != nil {
		a.awakeTimer.Stop()
	}
	gen := a.gen
	a.awakeTimer = time.AfterFunc(a.cfg.Assistant.AwakeWindow, func() {
		a.postForGen(gen, a.awakeTimedOut)
	})
}

func (a *Assistant) disarmAwakeTimer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.awakeTimer != nil {
		a.awakeTimer.Stop()
		a.awakeTimer = nil
	}
}

// postForGen queues work tagged with an explicit generation, for timer
// callbacks created before the current moment.
func (a *Assistant) postForGen(gen uint64, fn func()) {
	select {
	case a.tasks <- task{gen: gen, fn: fn}:
	default:
		logging.LogWarn("assistant event loop saturated, dropping timer event")
	}
}

// awakeTimedOut drops back to standby after the inactivity window.
func (a *Assistant) awakeTimedOut() {
	a.mu.Lock()
	if a.state != dispatch.StateAwake {
		a.mu.Unlock()
		return
	}
	a.state = dispatch.StateWakeListen
	a.transcript = ""
	a.awakeTimer = nil
	sessionID := a.sessionID
	a.mu.Unlock()

	logging.LogAssistant(sessionID, string(dispatch.StateWakeListen), "awake_window_expired")
	a.emitStatus(statusAwakeTimeout)
}

// handleTransportError applies the retry policy: network and protocol
// failures get exactly one restart after a fixed backoff; permission,
// device and unsupported failures are terminal for the session.
func (a *Assistant) handleTransportError(terr *transport.Error) {
	kind := transport.ErrorNetwork
	if terr != nil {
		kind = terr.Kind
	}

	a.mu.Lock()
	sessionID := a.sessionID
	retryable := kind == transport.ErrorNetwork || kind == transport.ErrorProtocol
	canRestart := retryable && !a.restartUsed && !a.restartPending
	if canRestart {
		a.restartUsed = true
		a.restartPending = true
		gen := a.gen
		a.restartTimer = time.AfterFunc(a.cfg.Assistant.RestartBackoff, func() {
			a.postForGen(gen, a.attemptRestart)
		})
	}
	a.mu.Unlock()

	logging.LogError(terr, "recognizer transport failed",
		zap.String("session_id", sessionID),
		zap.String("kind", string(kind)),
		zap.Bool("restart_scheduled", canRestart))

	a.emitStatus(statusMessage(kind))

	// One restart is the whole retry budget. Anything past it, and any
	// non-retryable kind, disengages; the user toggles listening again.
	if !canRestart {
		a.teardown("transport error, no retry available")
	}
}

// attemptRestart is the single recovery attempt. If it fails the
// assistant gives up and disengages; the user must toggle listening
// again.
func (a *Assistant) attemptRestart() {
	a.mu.Lock()
	a.restartPending = false
	a.restartTimer = nil
	sessionID := a.sessionID
	a.mu.Unlock()

	logging.LogAssistant(sessionID, string(dispatch.StateWakeListen), "restart_attempt")

	_ = a.recognizer.Stop()
	if err := a.recognizer.Start(context.Background()); err != nil {
		logging.LogError(err, "restart failed, giving up",
			zap.String("session_id", sessionID))
		a.teardown("restart failed")
		a.emitStatus(statusRestartFailed)
		return
	}

	// Recovery drops any half-heard utterance and returns to standby.
	a.mu.Lock()
	a.state = dispatch.StateWakeListen
	a.transcript = ""
	if a.awakeTimer != nil {
		a.awakeTimer.Stop()
		a.awakeTimer = nil
	}
	a.mu.Unlock()
	a.emitStatus(statusReconnected)
}

func (a *Assistant) emitStatus(message string) {
	if a.onStatus != nil && message != "" {
		a.onStatus(message)
	}
}
