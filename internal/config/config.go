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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Xiaolang hub and assistant runtime
type Config struct {
	Server     ServerConfig
	Recognizer RecognizerConfig
	TTS        TTSConfig
	Assistant  AssistantConfig
	Logging    LoggingConfig
	NATS       NATSConfig
	Database   DatabaseConfig
}

// ServerConfig holds smart-processor HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RecognizerConfig holds speech recognition transport configuration.
// StreamURL selects the realtime WebSocket recognizer; STTURL selects the
// buffered HTTP fallback. Both empty means recognition is unavailable.
type RecognizerConfig struct {
	StreamURL   string // WebSocket endpoint for streamed 16 kHz PCM
	StreamToken string // Bearer token for the streaming endpoint
	STTURL      string // OpenAI-compatible REST STT service (fallback)
	Language    string
	SampleRate  int // Target sample rate for outbound PCM
}

// TTSConfig holds Text-to-Speech service configuration
type TTSConfig struct {
	URL            string        // OpenAI-compatible speech endpoint
	Voice          string        // Default voice
	Speed          float32       // Speech speed (1.0 = normal)
	ResponseFormat string        // Audio format (mp3, wav)
	Timeout        time.Duration // Request timeout
}

// AssistantConfig holds wake/command state machine tunables.
// The acknowledgment phrase and cue tones are cosmetic and configurable;
// the two-state standby/awake contract is not.
type AssistantConfig struct {
	AwakeWindow    time.Duration // Inactivity window while awake
	RestartBackoff time.Duration // Delay before the single restart attempt
	AckPhrase      string        // Spoken when the wake phrase is heard
	DispatchURL    string        // Remote smart-processor endpoint; empty = local dispatch
	WakeToneHz     int           // First tone of the ascending wake pair
	WakeToneHighHz int           // Second tone of the ascending wake pair
	SleepToneHz    int           // Single low tone on exit
	ToneDurationMs int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	URL           string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// DatabaseConfig holds event store configuration
type DatabaseConfig struct {
	Path      string
	Retention time.Duration // Dispatch events older than this are pruned; 0 disables pruning
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("XIAOLANG_HOST", "0.0.0.0"),
			Port:         getEnvInt("XIAOLANG_PORT", 8080),
			ReadTimeout:  getEnvDuration("XIAOLANG_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("XIAOLANG_WRITE_TIMEOUT", 30*time.Second),
		},
		Recognizer: RecognizerConfig{
			StreamURL:   getEnvString("RECOGNIZER_STREAM_URL", ""),
			StreamToken: getEnvString("RECOGNIZER_STREAM_TOKEN", ""),
			STTURL:      getEnvString("STT_URL", ""),
			Language:    getEnvString("STT_LANGUAGE", "zh"),
			SampleRate:  getEnvInt("RECOGNIZER_SAMPLE_RATE", 16000),
		},
		TTS: TTSConfig{
			URL:            getEnvString("TTS_URL", ""),
			Voice:          getEnvString("TTS_VOICE", "zh_female_calm"),
			Speed:          getEnvFloat32("TTS_SPEED", 1.0),
			ResponseFormat: getEnvString("TTS_FORMAT", "mp3"),
			Timeout:        getEnvDuration("TTS_TIMEOUT", 10*time.Second),
		},
		Assistant: AssistantConfig{
			AwakeWindow:    getEnvDuration("ASSISTANT_AWAKE_WINDOW", 8*time.Second),
			RestartBackoff: getEnvDuration("ASSISTANT_RESTART_BACKOFF", 600*time.Millisecond),
			AckPhrase:      getEnvString("ASSISTANT_ACK_PHRASE", "我在"),
			DispatchURL:    getEnvString("ASSISTANT_DISPATCH_URL", ""),
			WakeToneHz:     getEnvInt("ASSISTANT_WAKE_TONE_HZ", 880),
			WakeToneHighHz: getEnvInt("ASSISTANT_WAKE_TONE_HIGH_HZ", 1320),
			SleepToneHz:    getEnvInt("ASSISTANT_SLEEP_TONE_HZ", 440),
			ToneDurationMs: getEnvInt("ASSISTANT_TONE_DURATION_MS", 120),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		NATS: NATSConfig{
			URL:           getEnvString("NATS_URL", "nats://localhost:4222"),
			MaxReconnect:  getEnvInt("NATS_MAX_RECONNECT", 10),
			ReconnectWait: getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Database: DatabaseConfig{
			Path:      getEnvString("DB_PATH", "./data/xiaolang-hub.db"),
			Retention: getEnvDuration("DB_RETENTION", 30*24*time.Hour),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Recognizer.SampleRate <= 0 {
		return fmt.Errorf("invalid recognizer sample rate: %d", c.Recognizer.SampleRate)
	}

	if c.Assistant.AwakeWindow <= 0 {
		return fmt.Errorf("awake window must be positive: %v", c.Assistant.AwakeWindow)
	}

	if c.Assistant.RestartBackoff <= 0 {
		return fmt.Errorf("restart backoff must be positive: %v", c.Assistant.RestartBackoff)
	}

	if c.TTS.Speed <= 0 {
		return fmt.Errorf("TTS speed must be positive: %f", c.TTS.Speed)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
