/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
    "context"
    "sync"
    "time"

    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/config"
)

type service interface {
    SelectedTeam(ctx context.Context) string
    WarmTeam(ctx context.Context, teamID string) error
    RunWeeklyDigest(ctx context.Context) error
}

type Cron struct {
    cfg config.Config
    log zerolog.Logger
    svc service
    c   *cron.Cron

    mu      sync.Mutex
    running bool
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service) *Cron {
    loc, err := time.LoadLocation(cfg.TZ)
    if err != nil {
        log.Warn().Err(err).Str("tz", cfg.TZ).Msg("cron: bad timezone, using UTC")
        loc = time.UTC
    }
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, c: c}
    _, _ = c.AddFunc(cfg.RefreshCron, cr.refresh)
    _, _ = c.AddFunc(cfg.DigestCron, cr.weekly)
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

// refresh re-fetches the selected team's data so the cache stays warm even
// when nobody is looking at the dashboard.
func (cr *Cron) refresh() {
    if !cr.tryAcquire() { cr.log.Info().Msg("cron: refresh already running"); return }
    defer cr.release()
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute); defer cancel()
    teamID := cr.svc.SelectedTeam(ctx)
    if teamID == "" { return }
    cr.log.Info().Str("team", teamID).Msg("cron: warm cache")
    if err := cr.svc.WarmTeam(ctx, teamID); err != nil { cr.log.Error().Err(err).Msg("cron: warm failed") }
}

func (cr *Cron) weekly() {
    if !cr.tryAcquire() { cr.log.Info().Msg("cron: already running"); return }
    defer cr.release()
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute); defer cancel()
    cr.log.Info().Msg("cron: weekly digest")
    if err := cr.svc.RunWeeklyDigest(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: digest failed") }
}

func (cr *Cron) tryAcquire() bool {
    cr.mu.Lock()
    defer cr.mu.Unlock()
    if cr.running { return false }
    cr.running = true
    return true
}

func (cr *Cron) release() {
    cr.mu.Lock()
    cr.running = false
    cr.mu.Unlock()
}
