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
	"math"
	"sync"
)

// VAD is an RMS-energy voice activity detector with hysteresis: a louder
// threshold with a few consecutive frames opens speech, a quieter one with
// many consecutive frames closes it, so the state does not flicker on
// breaths or brief pauses. Recognition backends that only transcribe on
// explicit end-of-utterance use the close transition as their cue.
type VAD struct {
	mu sync.Mutex

	speechThreshold  float64 // RMS level that counts as speech
	silenceThreshold float64 // RMS level that counts as silence
	speechFrames     int     // consecutive speech frames to open
	silenceFrames    int     // consecutive silence frames to close

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewVAD returns a detector tuned for 20 ms capture frames.
func NewVAD() *VAD {
	return &VAD{
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechFrames:     3,  // ~60 ms to open
		silenceFrames:    30, // ~600 ms of silence to close
	}
}

// Observe feeds one capture frame and reports whether an utterance just
// ended: speech was in progress and the silence run is now long enough to
// call it finished. It returns true exactly once per utterance.
func (v *VAD) Observe(samples []float32) bool {
	level := rms(samples)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.inSpeech {
		if level < v.silenceThreshold {
			v.silenceCount++
			if v.silenceCount >= v.silenceFrames {
				v.inSpeech = false
				v.silenceCount = 0
				return true
			}
		} else {
			v.silenceCount = 0
		}
		return false
	}

	if level >= v.speechThreshold {
		v.speechCount++
		if v.speechCount >= v.speechFrames {
			v.inSpeech = true
			v.speechCount = 0
		}
	} else {
		v.speechCount = 0
	}
	return false
}

// Reset clears the detector between engagements.
func (v *VAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inSpeech = false
	v.speechCount = 0
	v.silenceCount = 0
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
