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

// Package lexicon holds the static wake/exit phrase sets and the text
// normalization used on both sides of the dispatch boundary. Matching is
// plain substring containment over normalized text; recognizers mishear
// the wake word often enough that each phrase carries homophone variants.
package lexicon

import (
	"sort"
	"strings"
	"unicode"
)

// Wake phrase variants, normalized form. The recognizer frequently
// substitutes homophones for 小朗, so near misses are listed explicitly.
var wakePhrases = []string{
	"你好小朗",
	"你好小狼",
	"你好小郎",
	"你好晓朗",
	"你好小浪",
	"你好小蓝",
	"nihaoxiaolang",
	"hello xiaolang",
	"hey xiaolang",
}

// Exit phrase variants, normalized form.
var exitPhrases = []string{
	"退下吧",
	"退下",
	"再见小朗",
	"再见",
	"先退下",
	"休眠吧",
	"休眠",
	"别听了",
	"goodbye xiaolang",
	"bye xiaolang",
}

// wakeByLength is wakePhrases sorted longest-first so StripWake removes
// the most specific variant before its prefixes.
var wakeByLength = func() []string {
	sorted := make([]string, len(wakePhrases))
	copy(sorted, wakePhrases)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	return sorted
}()

// Normalize strips CJK and ASCII punctuation, collapses whitespace and
// case-folds any Latin spelling. The result is the only form matching
// functions ever see.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			// Punctuation from either script becomes a word break so
			// "你好，小朗" still contains the wake phrase after collapsing.
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	fields := strings.Fields(b.String())

	// CJK text carries no meaningful spaces; recognizers insert them
	// arbitrarily between characters. Join runs of CJK directly and keep
	// single spaces between Latin words.
	var out strings.Builder
	for i, f := range fields {
		if i > 0 && !endsCJK(fields[i-1]) && !startsCJK(f) {
			out.WriteRune(' ')
		}
		out.WriteString(f)
	}
	return out.String()
}

// ContainsWake reports whether normalized text contains any wake phrase.
func ContainsWake(text string) bool {
	for _, phrase := range wakePhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// ContainsExit reports whether normalized text contains any exit phrase.
func ContainsExit(text string) bool {
	for _, phrase := range exitPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// StripWake removes every wake-phrase occurrence from normalized text and
// returns the trimmed remainder. A doubled wake phrase ("你好小朗你好小朗")
// is one stronger trigger, not two utterances; stripping all occurrences
// leaves the command portion either way. Empty remainder means the
// utterance was wake-only.
func StripWake(text string) string {
	for _, phrase := range wakeByLength {
		text = strings.ReplaceAll(text, phrase, " ")
	}
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// WakePhrases returns a copy of the wake phrase set, for health/debug
// surfaces only.
func WakePhrases() []string {
	out := make([]string, len(wakePhrases))
	copy(out, wakePhrases)
	return out
}

// ExitPhrases returns a copy of the exit phrase set.
func ExitPhrases() []string {
	out := make([]string, len(exitPhrases))
	copy(out, exitPhrases)
	return out
}

func startsCJK(s string) bool {
	for _, r := range s {
		return unicode.Is(unicode.Han, r)
	}
	return false
}

func endsCJK(s string) bool {
	var last rune
	for _, r := range s {
		last = r
	}
	return unicode.Is(unicode.Han, last)
}
