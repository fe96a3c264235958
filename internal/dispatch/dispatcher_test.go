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

package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchWakeFromStandby(t *testing.T) {
	d := New(DefaultOptions())

	resp := d.Dispatch(Request{
		SessionID: "s1",
		State:     StateWakeListen,
		Text:      "你好，小朗",
		IsFinal:   true,
	})

	assert.Equal(t, StateAwake, resp.NextState)
	assert.Equal(t, "我在", resp.TTS)
	require.Len(t, resp.Cues, 2)
	assert.Less(t, resp.Cues[0].Frequency, resp.Cues[1].Frequency, "wake cue pair should ascend")
	assert.Equal(t, ActionNone, resp.Action.Type)
	require.NotNil(t, resp.Debug)
	assert.Equal(t, MatchedWake, resp.Debug.Matched)
	assert.Equal(t, "你好小朗", resp.Debug.Normalized)
}

func TestDispatchExitFromAwake(t *testing.T) {
	d := New(DefaultOptions())

	resp := d.Dispatch(Request{
		SessionID: "s1",
		State:     StateAwake,
		Text:      "退下吧",
		IsFinal:   true,
	})

	assert.Equal(t, StateWakeListen, resp.NextState)
	assert.Empty(t, resp.TTS)
	require.Len(t, resp.Cues, 1)
	assert.Equal(t, ActionNone, resp.Action.Type)
	assert.Equal(t, MatchedSleep, resp.Debug.Matched)
}

func TestDispatchCommandWhileAwake(t *testing.T) {
	d := New(DefaultOptions())

	testCases := []struct {
		name            string
		text            string
		expectedCommand string
	}{
		{
			name:            "plain_command",
			text:            "打开知识库",
			expectedCommand: "打开知识库",
		},
		{
			name:            "embedded_wake_stripped",
			text:            "你好小朗打开知识库",
			expectedCommand: "打开知识库",
		},
		{
			name:            "doubled_wake_stripped",
			text:            "你好小朗你好小朗打开知识库",
			expectedCommand: "打开知识库",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := d.Dispatch(Request{
				SessionID: "s1",
				State:     StateAwake,
				Text:      tc.text,
				IsFinal:   true,
			})

			assert.Equal(t, StateAwake, resp.NextState)
			assert.Equal(t, ActionExecuteCommand, resp.Action.Type)
			require.NotNil(t, resp.Action.Payload)
			assert.Equal(t, tc.expectedCommand, resp.Action.Payload.CommandText)
			assert.Equal(t, MatchedCommand, resp.Debug.Matched)
			assert.Empty(t, resp.Cues)
		})
	}
}

func TestDispatchWakeOnlyWhileAwake(t *testing.T) {
	d := New(DefaultOptions())

	resp := d.Dispatch(Request{
		SessionID: "s1",
		State:     StateAwake,
		Text:      "你好小朗",
		IsFinal:   true,
	})

	// Re-waking an awake session routes nothing; the caller re-arms its
	// window on the final regardless.
	assert.Equal(t, StateAwake, resp.NextState)
	assert.Equal(t, ActionNone, resp.Action.Type)
	assert.Equal(t, MatchedWake, resp.Debug.Matched)
}

func TestDispatchPartialNeverTransitions(t *testing.T) {
	d := New(DefaultOptions())

	resp := d.Dispatch(Request{
		SessionID: "s1",
		State:     StateWakeListen,
		Text:      "你好小朗",
		IsFinal:   false,
	})

	assert.Equal(t, StateWakeListen, resp.NextState)
	assert.Empty(t, resp.TTS)
	assert.Empty(t, resp.Cues)
	assert.Equal(t, ActionNone, resp.Action.Type)
	assert.Equal(t, MatchedNone, resp.Debug.Matched)
}

func TestDispatchEmptyText(t *testing.T) {
	d := New(DefaultOptions())

	for _, text := range []string{"", "   ", "。。。"} {
		resp := d.Dispatch(Request{
			SessionID: "s1",
			State:     StateAwake,
			Text:      text,
			IsFinal:   true,
		})

		assert.Equal(t, StateAwake, resp.NextState)
		assert.Equal(t, ActionNone, resp.Action.Type)
		assert.Equal(t, MatchedEmpty, resp.Debug.Matched)
	}
}

func TestDispatchStandbyIgnoresNonWake(t *testing.T) {
	d := New(DefaultOptions())

	resp := d.Dispatch(Request{
		SessionID: "s1",
		State:     StateWakeListen,
		Text:      "打开知识库",
		IsFinal:   true,
	})

	assert.Equal(t, StateWakeListen, resp.NextState)
	assert.Equal(t, ActionNone, resp.Action.Type)
	assert.Equal(t, MatchedNone, resp.Debug.Matched)
}

func TestDispatchUnknownStateFoldsToStandby(t *testing.T) {
	d := New(DefaultOptions())

	testCases := []struct {
		name  string
		state State
	}{
		{name: "empty_state", state: ""},
		{name: "legacy_standby", state: "standby"},
		{name: "garbage", state: "definitely-not-a-state"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := d.Dispatch(Request{
				SessionID: "s1",
				State:     tc.state,
				Text:      "你好小朗",
				IsFinal:   true,
			})

			// Unknown states behave as standby, so the wake phrase works.
			assert.Equal(t, StateAwake, resp.NextState)
			assert.Equal(t, MatchedWake, resp.Debug.Matched)
		})
	}
}

func TestDispatchCustomOptions(t *testing.T) {
	d := New(Options{
		AckPhrase:      "在呢",
		WakeToneHz:     600,
		WakeToneHighHz: 900,
		SleepToneHz:    300,
		ToneDurationMs: 80,
	})

	resp := d.Dispatch(Request{
		State:   StateWakeListen,
		Text:    "你好小朗",
		IsFinal: true,
	})

	assert.Equal(t, "在呢", resp.TTS)
	require.Len(t, resp.Cues, 2)
	assert.Equal(t, 600, resp.Cues[0].Frequency)
	assert.Equal(t, 900, resp.Cues[1].Frequency)
	assert.Equal(t, 80, resp.Cues[0].DurationMs)
}
