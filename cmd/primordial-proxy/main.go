// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Primordial-proxy is the in-sandbox credential proxy. It is a
// self-contained, stdlib-only binary deployed at mode 0700 inside a
// session's VM; it reads its route configuration once from standard
// input and never again.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/primordial-run/primordial/lib/process"
	"github.com/primordial-run/primordial/proxy"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := proxy.ReadConfig(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}

	server, err := proxy.Start(cfg, os.Stderr, logger)
	if err != nil {
		return fmt.Errorf("starting proxy: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("received shutdown signal")

	return server.Close()
}
