/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/adapters/linear"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/adapters/openai"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/adapters/telegram"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/config"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/http"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/jobs"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/logger"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/prefs"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/query"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // Preferences (sqlite)
    store, err := prefs.Open(ctx, cfg.PrefsPath)
    if err != nil { log.Fatal().Err(err).Str("path", cfg.PrefsPath).Msg("prefs open failed") }
    defer store.Close()

    // Adapters
    lc := linear.NewClient(cfg, log)
    llm := openai.NewClient(cfg, log)
    tg := telegram.NewClient(cfg, log)

    // Service + cache
    cache := query.NewCache(cfg.CacheTTL, cfg.StaleTTL, log)
    svc := services.New(cfg, log, lc, llm, tg, cache, store)
    svc.Bootstrap(ctx)

    // Cron
    cron := jobs.NewCron(cfg, log, svc)
    cron.Start()
    defer cron.Stop()

    // HTTP server (Gin)
    router := http.NewRouter(cfg, log, svc)

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()
    log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
