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
	"testing"

	"github.com/stretchr/testify/assert"
)

func loudFrame() []float32 {
	frame := make([]float32, 960)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 0.25
		} else {
			frame[i] = -0.25
		}
	}
	return frame
}

func quietFrame() []float32 {
	return make([]float32, 960)
}

// feed runs frames through the detector and counts end-of-utterance
// signals.
func feed(v *VAD, frames int, frame []float32) int {
	ends := 0
	for i := 0; i < frames; i++ {
		if v.Observe(frame) {
			ends++
		}
	}
	return ends
}

func TestVADEndsUtteranceAfterSilence(t *testing.T) {
	v := NewVAD()

	assert.Zero(t, feed(v, 5, loudFrame()), "speech alone must not end an utterance")
	assert.Equal(t, 1, feed(v, 40, quietFrame()), "sustained silence ends the utterance exactly once")
	assert.Zero(t, feed(v, 40, quietFrame()), "further silence stays quiet")
}

func TestVADIgnoresBriefPause(t *testing.T) {
	v := NewVAD()

	feed(v, 5, loudFrame())
	assert.Zero(t, feed(v, 10, quietFrame()), "a short pause must not end the utterance")
	assert.Zero(t, feed(v, 5, loudFrame()), "speech resumes within the same utterance")
	assert.Equal(t, 1, feed(v, 40, quietFrame()))
}

func TestVADSilenceOnlyNeverEnds(t *testing.T) {
	v := NewVAD()

	assert.Zero(t, feed(v, 200, quietFrame()))
}

func TestVADSpuriousSpikeDoesNotOpen(t *testing.T) {
	v := NewVAD()

	// A single loud frame is below the open hysteresis.
	v.Observe(loudFrame())
	assert.Zero(t, feed(v, 40, quietFrame()))
}

func TestVADReset(t *testing.T) {
	v := NewVAD()

	feed(v, 5, loudFrame())
	v.Reset()
	assert.Zero(t, feed(v, 40, quietFrame()), "reset discards the open utterance")
}
