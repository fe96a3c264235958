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
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
)

// BufferedRecognizer is the HTTP fallback: it accumulates PCM frames
// until end-of-utterance, posts the buffered recording as WAV to an
// OpenAI-compatible transcription endpoint, and emits a single final.
// Higher latency than the stream variant, no partials.
type BufferedRecognizer struct {
	baseURL    string
	language   string
	sampleRate int
	handler    Handler
	httpClient *http.Client

	mu      sync.Mutex
	buf     bytes.Buffer
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// transcriptionResponse is the OpenAI-compatible response body.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// NewBufferedRecognizer creates the HTTP fallback recognizer.
func NewBufferedRecognizer(baseURL, language string, sampleRate int, handler Handler) *BufferedRecognizer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &BufferedRecognizer{
		baseURL:    baseURL,
		language:   language,
		sampleRate: sampleRate,
		handler:    handler,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// maxUtteranceSeconds caps how much audio one utterance may buffer. A
// consumer that misses end-of-speech (or hears only room noise) would
// otherwise grow the buffer without bound; at the cap the recording is
// transcribed as-is.
const maxUtteranceSeconds = 30

// Backend names the active variant.
func (r *BufferedRecognizer) Backend() string { return BackendBuffered }

// Start verifies the service is reachable and emits the lifecycle events
// the streaming variant would receive from its server.
func (r *BufferedRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.buf.Reset()
	r.mu.Unlock()

	if err := r.healthCheck(ctx); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}

	logging.LogTransport(r.Backend(), "connected", zap.String("base_url", r.baseURL))

	r.handler(Event{Type: EventReady, Timestamp: time.Now()})
	r.handler(Event{Type: EventStarted, Timestamp: time.Now()})
	return nil
}

// Stop discards any buffered audio and stops accepting frames.
// Idempotent.
func (r *BufferedRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	r.running = false
	r.buf.Reset()
	if r.cancel != nil {
		r.cancel()
	}

	logging.LogTransport(r.Backend(), "stopped")
	return nil
}

// SendAudio buffers one PCM frame. When the utterance buffer hits its
// cap the recording is flushed to transcription as if the utterance had
// ended.
func (r *BufferedRecognizer) SendAudio(pcm []byte) error {
	r.mu.Lock()

	if !r.running {
		r.mu.Unlock()
		return NewError(ErrorNetwork, "buffered recognizer not running", nil)
	}

	r.buf.Write(pcm)
	if r.buf.Len() < maxUtteranceSeconds*r.sampleRate*2 {
		r.mu.Unlock()
		return nil
	}

	buffered, ctx := r.drainLocked()
	r.mu.Unlock()

	logging.LogTransport(r.Backend(), "utterance_buffer_full",
		zap.Int("buffered_bytes", len(buffered)))
	go r.transcribe(ctx, buffered)
	return nil
}

// EndUtterance posts the buffered recording for transcription. The final
// (or an error event) is delivered asynchronously so the caller's audio
// loop is never blocked on the HTTP round trip.
func (r *BufferedRecognizer) EndUtterance() error {
	r.mu.Lock()
	if !r.running || r.buf.Len() == 0 {
		r.mu.Unlock()
		return nil
	}
	pcm, ctx := r.drainLocked()
	r.mu.Unlock()

	go r.transcribe(ctx, pcm)
	return nil
}

// drainLocked copies and resets the utterance buffer. Caller holds mu.
func (r *BufferedRecognizer) drainLocked() ([]byte, context.Context) {
	pcm := make([]byte, r.buf.Len())
	copy(pcm, r.buf.Bytes())
	r.buf.Reset()
	return pcm, r.ctx
}

func (r *BufferedRecognizer) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return NewError(ErrorConfig, "invalid STT service URL", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return NewError(ErrorNetwork, "failed to reach STT service", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return NewError(ErrorNetwork,
			fmt.Sprintf("STT service health check returned %d", resp.StatusCode), nil)
	}

	return nil
}

// transcribe posts one buffered utterance and emits the result.
func (r *BufferedRecognizer) transcribe(ctx context.Context, pcm []byte) {
	start := time.Now()

	wavData := pcm16ToWAV(pcm, r.sampleRate)

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	audioWriter, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		r.emitError(NewError(ErrorProtocol, "failed to build transcription request", err))
		return
	}
	if _, err := audioWriter.Write(wavData); err != nil {
		r.emitError(NewError(ErrorProtocol, "failed to write audio data", err))
		return
	}

	_ = writer.WriteField("language", r.language)
	_ = writer.WriteField("temperature", "0.0")
	_ = writer.WriteField("response_format", "json")

	contentType := writer.FormDataContentType()
	if err := writer.Close(); err != nil {
		r.emitError(NewError(ErrorProtocol, "failed to close multipart writer", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/v1/audio/transcriptions", &requestBody)
	if err != nil {
		r.emitError(NewError(ErrorConfig, "invalid STT service URL", err))
		return
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Stopped while the request was in flight; the result must
			// not surface after cancellation.
			return
		}
		r.emitError(NewError(ErrorNetwork, "transcription request failed", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		r.emitError(NewError(ErrorNetwork,
			fmt.Sprintf("transcription failed with status %d: %s", resp.StatusCode, body), nil))
		return
	}

	var parsed transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		r.emitError(NewError(ErrorProtocol, "failed to parse transcription response", err))
		return
	}

	logging.LogTransport(r.Backend(), "transcribed",
		zap.Int64("processing_time_ms", time.Since(start).Milliseconds()),
		zap.Int("text_length", len(parsed.Text)))

	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return
	}

	r.handler(Event{Type: EventFinal, Text: parsed.Text, Timestamp: time.Now()})
}

func (r *BufferedRecognizer) emitError(err *Error) {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return
	}

	r.handler(Event{Type: EventError, Timestamp: time.Now(), Err: err})
}

// pcm16ToWAV wraps raw 16-bit mono little-endian PCM in a WAV container.
func pcm16ToWAV(pcm []byte, sampleRate int) []byte {
	dataSize := len(pcm)
	fileSize := 36 + dataSize

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	writeU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	writeU16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		buf.Write(b[:])
	}

	buf.WriteString("RIFF")
	writeU32(uint32(fileSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeU32(16) // PCM subchunk size
	writeU16(1)  // AudioFormat 1 = integer PCM
	writeU16(1)  // Mono
	writeU32(uint32(sampleRate))
	writeU32(uint32(sampleRate * 2)) // ByteRate = SampleRate * 1ch * 16bit/8
	writeU16(2)                      // BlockAlign
	writeU16(16)                     // BitsPerSample
	buf.WriteString("data")
	writeU32(uint32(dataSize))
	buf.Write(pcm)

	return buf.Bytes()
}
