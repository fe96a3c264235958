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

package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/generators"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// playbackRate is the shared speaker rate; decoded audio at any other
// rate is resampled into it.
const playbackRate beep.SampleRate = 44100

// Tone is one sine cue: frequency and duration.
type Tone struct {
	FrequencyHz int
	Duration    time.Duration
}

// Player serializes all local playback (cue tones, synthesized speech)
// through one speaker. Methods block until playback completes so callers
// can resume capture only after the room is quiet again.
type Player struct {
	initOnce sync.Once
	initErr  error

	mu sync.Mutex
}

// NewPlayer creates a playback sink. The speaker device is opened lazily
// on first use.
func NewPlayer() *Player {
	return &Player{}
}

func (p *Player) ensureSpeaker() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(playbackRate, playbackRate.N(time.Second/10))
	})
	return p.initErr
}

// PlayTones plays the cue sequence back to back and returns when the
// last tone has finished.
func (p *Player) PlayTones(tones []Tone) error {
	if len(tones) == 0 {
		return nil
	}
	if err := p.ensureSpeaker(); err != nil {
		return fmt.Errorf("failed to open speaker: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	streamers := make([]beep.Streamer, 0, len(tones)+1)
	for _, tone := range tones {
		sine, err := generators.SinTone(playbackRate, tone.FrequencyHz)
		if err != nil {
			return fmt.Errorf("failed to generate %d Hz tone: %w", tone.FrequencyHz, err)
		}
		streamers = append(streamers, beep.Take(playbackRate.N(tone.Duration), sine))
	}

	done := make(chan bool)
	streamers = append(streamers, beep.Callback(func() {
		done <- true
	}))

	speaker.Play(beep.Seq(streamers...))
	<-done
	return nil
}

// PlayEncoded decodes and plays one audio payload. Format is "mp3" or
// "wav"; anything else is rejected. Blocks until playback finishes.
func (p *Player) PlayEncoded(rc io.ReadCloser, format string) error {
	if err := p.ensureSpeaker(); err != nil {
		_ = rc.Close()
		return fmt.Errorf("failed to open speaker: %w", err)
	}

	var (
		streamer beep.StreamSeekCloser
		decoded  beep.Format
		err      error
	)
	switch format {
	case "mp3":
		streamer, decoded, err = mp3.Decode(rc)
	case "wav":
		streamer, decoded, err = wav.Decode(rc)
	default:
		_ = rc.Close()
		return fmt.Errorf("unsupported audio format %q", format)
	}
	if err != nil {
		_ = rc.Close()
		return fmt.Errorf("failed to decode %s audio: %w", format, err)
	}
	defer func() { _ = streamer.Close() }()

	p.mu.Lock()
	defer p.mu.Unlock()

	var playable beep.Streamer = streamer
	if decoded.SampleRate != playbackRate {
		playable = beep.Resample(4, decoded.SampleRate, playbackRate, streamer)
	}

	done := make(chan bool)
	speaker.Play(beep.Seq(playable, beep.Callback(func() {
		done <- true
	})))
	<-done
	return nil
}
