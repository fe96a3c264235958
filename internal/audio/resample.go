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

import "encoding/binary"

// TransportRate is the PCM rate shipped to recognizers: 16 kHz mono
// 16-bit little-endian.
const TransportRate = 16000

// DownsampleToPCM16 decimates mono float32 samples from srcRate to
// dstRate by nearest-neighbor selection and quantizes to s16le bytes.
// Amplitudes are clamped to [-1, 1] before quantizing so a hot mic never
// wraps around.
func DownsampleToPCM16(samples []float32, srcRate, dstRate int) []byte {
	if len(samples) == 0 || srcRate <= 0 || dstRate <= 0 {
		return nil
	}

	if srcRate == dstRate {
		return quantizePCM16(samples)
	}

	ratio := float64(srcRate) / float64(dstRate)
	outN := int(float64(len(samples)) / ratio)
	out := make([]byte, 0, outN*2)

	var b [2]byte
	for i := 0; i < outN; i++ {
		src := int(float64(i) * ratio)
		if src >= len(samples) {
			src = len(samples) - 1
		}
		binary.LittleEndian.PutUint16(b[:], uint16(quantizeSample(samples[src])))
		out = append(out, b[:]...)
	}
	return out
}

func quantizePCM16(samples []float32) []byte {
	out := make([]byte, 0, len(samples)*2)
	var b [2]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint16(b[:], uint16(quantizeSample(s)))
		out = append(out, b[:]...)
	}
	return out
}

func quantizeSample(s float32) int16 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	// 32767 rather than 32768 keeps +1.0 in range.
	return int16(s * 32767)
}
