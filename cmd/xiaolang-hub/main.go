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

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/xiaolang-labs/xiaolang-hub/internal/config"
	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
	"github.com/xiaolang-labs/xiaolang-hub/internal/messaging"
	"github.com/xiaolang-labs/xiaolang-hub/internal/server"
	"github.com/xiaolang-labs/xiaolang-hub/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
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

	var opts []server.Option

	db, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Database.Path})
	if err != nil {
		logging.LogError(err, "Failed to open event database, continuing without persistence")
	} else {
		defer func() { _ = db.Close() }()
		opts = append(opts, server.WithEventStore(storage.NewDispatchEventsStore(db)))
	}

	nats := messaging.NewNATSService(cfg.NATS.URL, cfg.NATS.MaxReconnect, cfg.NATS.ReconnectWait)
	if err := nats.Connect(); err != nil {
		logging.LogError(err, "Failed to connect to NATS, continuing without messaging")
	} else {
		defer nats.Close()
		opts = append(opts, server.WithMessaging(nats))
	}

	srv := server.New(cfg, opts...)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		if err := srv.Stop(); err != nil {
			logging.LogError(err, "Graceful shutdown failed")
		}
	}()

	if err := srv.Start(); err != nil {
		logging.LogError(err, "Failed to start server")
		log.Fatalf("Failed to start server: %v", err)
	}
}
