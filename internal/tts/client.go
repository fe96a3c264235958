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

// Package tts is a client for OpenAI-compatible speech synthesis
// services.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xiaolang-labs/xiaolang-hub/internal/config"
	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
)

// speechRequest is the OpenAI-compatible synthesis payload.
type speechRequest struct {
	Model  string  `json:"model"`
	Input  string  `json:"input"`
	Voice  string  `json:"voice"`
	Format string  `json:"response_format"`
	Speed  float32 `json:"speed,omitempty"`
}

// Result carries one synthesized utterance. The caller owns Audio and
// must close it.
type Result struct {
	Audio  io.ReadCloser
	Format string // "mp3" or "wav", as requested
}

// Client synthesizes speech through an OpenAI-compatible endpoint.
type Client struct {
	baseURL string
	cfg     config.TTSConfig
	client  *http.Client
}

// NewClient creates a TTS client. An empty URL is allowed; Synthesize
// then fails and the assistant falls back to cue tones only.
func NewClient(cfg config.TTSConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether a synthesis endpoint is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// Synthesize converts text to speech and returns the audio stream.
func (c *Client) Synthesize(ctx context.Context, text string) (*Result, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("no TTS endpoint configured")
	}
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	payload := speechRequest{
		Model:  "tts-1",
		Input:  text,
		Voice:  c.cfg.Voice,
		Format: c.cfg.ResponseFormat,
		Speed:  c.cfg.Speed,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")

	resp, err := c.client.Do(req)
	if err != nil {
		logging.LogError(err, "TTS request failed", zap.Int("text_length", len(text)))
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("TTS service returned %d: %s", resp.StatusCode, detail)
	}

	logging.LogTransport("tts", "synthesized",
		zap.String("voice", c.cfg.Voice),
		zap.Int("text_length", len(text)))

	return &Result{Audio: resp.Body, Format: c.cfg.ResponseFormat}, nil
}
