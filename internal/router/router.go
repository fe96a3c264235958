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

// Package router maps spoken command text to host navigation targets.
// This is deliberate keyword matching, not NLU: rules are evaluated in a
// fixed priority order, most specific first, against normalized text.
package router

import (
	"strings"

	"go.uber.org/zap"

	"github.com/xiaolang-labs/xiaolang-hub/internal/lexicon"
	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
)

// Views the router can navigate to.
const (
	ViewKnowledgeBase = "knowledge-base"
	ViewImageAnalysis = "image-analysis"
	ViewDataViewer    = "data-viewer"
	ViewHome          = "home"
	ViewSettings      = "settings"
)

// NavigateFunc is the host-supplied navigation callback.
type NavigateFunc func(view string, params map[string]string)

// FeedbackFunc receives the "command not recognized" message when no
// rule matches.
type FeedbackFunc func(message string)

// rule matches when every keyword in one of its keyword sets appears in
// the command text. Multi-keyword sets bind tighter than single-keyword
// ones, so rules are ordered most specific first.
type rule struct {
	view     string
	params   map[string]string
	keywords [][]string
}

var rules = []rule{
	{
		view:   ViewImageAnalysis,
		params: map[string]string{"mode": "upload"},
		keywords: [][]string{
			{"打开", "图片分析"},
			{"上传", "图片"},
			{"analyze", "image"},
		},
	},
	{
		view:   ViewDataViewer,
		params: map[string]string{"range": "today"},
		keywords: [][]string{
			{"今天", "数据"},
			{"show", "today", "data"},
		},
	},
	{
		view: ViewKnowledgeBase,
		keywords: [][]string{
			{"知识库"},
			{"知识"},
			{"knowledge"},
		},
	},
	{
		view: ViewImageAnalysis,
		keywords: [][]string{
			{"图片"},
			{"图像"},
			{"image"},
		},
	},
	{
		view: ViewDataViewer,
		keywords: [][]string{
			{"数据"},
			{"报表"},
			{"data"},
		},
	},
	{
		view: ViewSettings,
		keywords: [][]string{
			{"设置"},
			{"settings"},
		},
	},
	{
		view: ViewHome,
		keywords: [][]string{
			{"首页"},
			{"回家"},
			{"home"},
		},
	},
}

// NotRecognizedMessage is the feedback emitted when nothing matches.
const NotRecognizedMessage = "没有听懂这个指令"

// Router routes command text to a navigation callback.
type Router struct {
	navigate NavigateFunc
	feedback FeedbackFunc
}

// New creates a router. Either callback may be nil.
func New(navigate NavigateFunc, feedback FeedbackFunc) *Router {
	return &Router{navigate: navigate, feedback: feedback}
}

// Route matches commandText against the rule table and fires the
// navigation callback for the first (most specific) match. Unmatched
// text produces feedback and no navigation.
func (r *Router) Route(commandText string) bool {
	normalized := lexicon.Normalize(commandText)
	if normalized == "" {
		r.emitFeedback(NotRecognizedMessage)
		return false
	}

	for _, rl := range rules {
		if !rl.matches(normalized) {
			continue
		}

		if logging.Sugar != nil {
			logging.Sugar.Infow("Routing command",
				"view", rl.view,
				"command", commandText,
			)
		}
		if r.navigate != nil {
			r.navigate(rl.view, rl.params)
		}
		return true
	}

	logging.LogWarn("Command not recognized", zap.String("command", commandText))
	r.emitFeedback(NotRecognizedMessage)
	return false
}

func (r *Router) emitFeedback(message string) {
	if r.feedback != nil {
		r.feedback(message)
	}
}

func (rl rule) matches(normalized string) bool {
	for _, set := range rl.keywords {
		if containsAll(normalized, set) {
			return true
		}
	}
	return false
}

func containsAll(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" || !strings.Contains(text, kw) {
			return false
		}
	}
	return true
}
