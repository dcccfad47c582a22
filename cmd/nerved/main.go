// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerved/nerved/internal/stdiotransport"
	"github.com/nerved/nerved/pkg/engine"
	"github.com/nerved/nerved/pkg/log"
	"github.com/nerved/nerved/pkg/nerveconfig"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a YAML config file")
		serverName  = flag.String("server-name", "", "Override the configured server name")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("nerved %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := nerveconfig.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if *serverName != "" {
		cfg.Session.ServerName = *serverName
	}

	e, err := engine.New(engine.Config{
		DefaultSessionID: cfg.Session.DefaultSessionID,
		ServerName:       cfg.Session.ServerName,
		HistoryEnabled:   cfg.Session.HistoryEnabled,
		HistoryBaseDir:   cfg.Session.HistoryBaseDir,
		Sink:             stdiotransport.NewLineSink(os.Stdout),
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to construct engine", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("nerved starting", slog.String("server_name", cfg.Session.ServerName), slog.String("version", version))
	if err := stdiotransport.Serve(ctx, e, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("stdio transport stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("nerved shut down cleanly")
}
