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

// Package audio owns the microphone device and local playback: capture
// frames, downsampling for transport, cue tones and synthesized speech.
package audio

import (
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
	"github.com/xiaolang-labs/xiaolang-hub/internal/transport"
)

// DefaultCaptureRate is the native capture rate requested from the
// device; frames are downsampled to the transport rate before sending.
const DefaultCaptureRate = 48000

// frameSize is samples per capture frame (~20ms at 48 kHz).
const frameSize = 960

// Capture exclusively owns the microphone stream. Frames are delivered
// to one callback; Pause drops frames without releasing the device so
// the assistant can mute itself while its own speech plays.
type Capture struct {
	sampleRate int
	onFrame    func(samples []float32)

	mu      sync.Mutex
	stream  *portaudio.Stream
	in      []float32
	running bool
	paused  bool
	done    chan struct{}
}

// NewCapture creates a microphone capture delivering float32 frames at
// the given native rate.
func NewCapture(sampleRate int, onFrame func(samples []float32)) *Capture {
	if sampleRate <= 0 {
		sampleRate = DefaultCaptureRate
	}
	return &Capture{
		sampleRate: sampleRate,
		onFrame:    onFrame,
	}
}

// SampleRate returns the native capture rate.
func (c *Capture) SampleRate() int { return c.sampleRate }

// Start acquires the microphone and begins delivering frames. A missing
// input device and a denied device are reported as distinct error kinds.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return classifyCaptureError(err)
	}

	c.in = make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.sampleRate), frameSize, c.in)
	if err != nil {
		_ = portaudio.Terminate()
		return classifyCaptureError(err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return classifyCaptureError(err)
	}

	c.stream = stream
	c.running = true
	c.paused = false
	c.done = make(chan struct{})

	logging.LogTransport("capture", "started", zap.Int("sample_rate", c.sampleRate))
	go c.readLoop(stream, c.done)

	return nil
}

// Stop releases the microphone. Idempotent; every teardown path stops
// the track so the device is never left busy.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	c.running = false
	close(c.done)

	_ = c.stream.Stop()
	err := c.stream.Close()
	c.stream = nil
	_ = portaudio.Terminate()

	logging.LogTransport("capture", "stopped")
	if err != nil {
		return transport.NewError(transport.ErrorDevice, "failed to close capture stream", err)
	}
	return nil
}

// Pause drops frames without releasing the device.
func (c *Capture) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume restores frame delivery after a Pause.
func (c *Capture) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

func (c *Capture) readLoop(stream *portaudio.Stream, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			c.mu.Lock()
			stopped := !c.running
			c.mu.Unlock()
			if stopped {
				return
			}
			// Transient overflows happen under load; skip the frame.
			continue
		}

		c.mu.Lock()
		paused := c.paused
		running := c.running
		var frame []float32
		if running && !paused {
			frame = make([]float32, len(c.in))
			copy(frame, c.in)
		}
		c.mu.Unlock()

		if frame != nil {
			c.onFrame(frame)
		}
	}
}

// classifyCaptureError maps portaudio failures onto the transport error
// taxonomy. Portaudio reports both conditions as plain errors, so this
// is substring matching on the driver message.
func classifyCaptureError(err error) *transport.Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access denied"):
		return transport.NewError(transport.ErrorPermission, "microphone access denied", err)
	case strings.Contains(msg, "no default input") || strings.Contains(msg, "no device") ||
		strings.Contains(msg, "invalid device"):
		return transport.NewError(transport.ErrorDevice, "no microphone available", err)
	default:
		return transport.NewError(transport.ErrorDevice, "failed to open microphone", err)
	}
}
