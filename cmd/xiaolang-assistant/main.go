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

// xiaolang-assistant is the standalone client runtime: microphone in,
// wake/command state machine, navigation actions printed to stdout.
// Applications embed internal/assistant instead and supply their own
// navigation callback.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/xiaolang-labs/xiaolang-hub/internal/assistant"
	"github.com/xiaolang-labs/xiaolang-hub/internal/config"
	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
)

func main() {
	_ = godotenv.Load()

	if err := logging.Initialize(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		logging.LogError(err, "Invalid configuration")
		log.Fatalf("Invalid configuration: %v", err)
	}

	a, err := assistant.New(*cfg,
		assistant.WithNavigate(func(view string, params map[string]string) {
			fmt.Printf("navigate -> %s %v\n", view, params)
		}),
		assistant.WithStatus(func(message string) {
			fmt.Printf("status   -> %s\n", message)
		}),
	)
	if err != nil {
		logging.LogError(err, "Failed to create assistant")
		log.Fatalf("Failed to create assistant: %v", err)
	}

	ctx := context.Background()
	if err := a.StartListening(ctx); err != nil {
		logging.LogError(err, "Failed to start listening")
		log.Fatalf("Failed to start listening: %v", err)
	}

	logging.Sugar.Infow("🎤 Xiaolang assistant listening", "say", "你好小朗")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := a.Close(); err != nil {
		logging.LogError(err, "Shutdown failed")
	}
}
