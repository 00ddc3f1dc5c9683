/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "regexp"
    "strings"
    "time"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/metrics"
)

type ReportView struct {
    Meta      Meta               `json:"meta"`
    KPIs      map[string]float64 `json:"kpis"`
    Alerts    []metrics.Alert    `json:"alerts"`
    Narrative string             `json:"narrative"`
    ByLLM     bool               `json:"byLlm"`
}

// WeeklyReport builds the digest for the selected team. The narrative comes
// from the LLM when a key is configured, otherwise from the deterministic
// renderer; the numbers are identical either way.
func (s *Service) WeeklyReport(ctx context.Context) ReportView {
    teamID := s.SelectedTeam(ctx)
    pr, ir := s.teamData(ctx, teamID)
    now := s.now()

    issues := ir.Data
    velocity := metrics.VelocityStats(issues, 7, now)
    progress := metrics.ProjectProgress(issues, nil, s.strategy)
    kpis := metrics.KPIMap(issues, velocity, progress)

    grouped := issuesByProject(issues)
    var alerts []metrics.Alert
    for _, p := range pr.Data {
        mine := grouped[p.ID]
        pp := metrics.ProjectProgress(mine, nil, s.strategy)
        alerts = append(alerts, metrics.GuardrailAlerts(p, mine, nil, pp, s.thresholds, now)...)
    }
    kpis["alerts_total"] = float64(len(alerts))

    view := ReportView{
        Meta:   mergeMeta(meta(teamID, pr), meta(teamID, ir)),
        KPIs:   kpis,
        Alerts: alerts,
    }

    findings := make([]map[string]any, 0, len(alerts))
    for _, a := range alerts {
        findings = append(findings, map[string]any{"severity": a.Severity, "message": scrubPII(a.Message)})
    }
    if s.llm != nil && s.llm.Configured() {
        text, err := s.llm.Summarize(ctx, kpis, findings)
        if err == nil {
            view.Narrative = text
            view.ByLLM = true
            return view
        }
        s.log.Warn().Err(err).Msg("llm summary failed, using fallback renderer")
    }
    view.Narrative = renderDigest(kpis, alerts, now)
    return view
}

// RunWeeklyDigest builds the report and delivers it to the configured
// Telegram chats. The cron scheduler drives this.
func (s *Service) RunWeeklyDigest(ctx context.Context) error {
    s.log.Info().Msg("WeeklyDigest: start")
    report := s.WeeklyReport(ctx)
    if len(report.Meta.Errors) > 0 {
        return fmt.Errorf("weekly digest degraded: %s", strings.Join(report.Meta.Errors, "; "))
    }
    if s.tg == nil || !s.tg.Configured() || len(s.cfg.TelegramChatIDs) == 0 {
        s.log.Info().Msg("WeeklyDigest: no notifier configured, report available over http only")
        return nil
    }
    var lastErr error
    for _, chatID := range s.cfg.TelegramChatIDs {
        if err := s.tg.SendMessage(ctx, chatID, report.Narrative); err != nil {
            s.log.Error().Int64("chat", chatID).Err(err).Msg("digest delivery failed")
            lastErr = err
        }
    }
    s.log.Info().Msg("WeeklyDigest: done")
    return lastErr
}

var (
    emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+`)
    urlRe   = regexp.MustCompile(`https?://[^\s]+`)
    tokenRe = regexp.MustCompile(`(?i)\b(?:token|secret|password|apikey|api_key|bearer|lin_api)[:=\s_]+[A-Za-z0-9\-\._~+/]{8,}\b`)
)

// scrubPII strips obvious PII and secrets from text before it leaves for
// the LLM. Issue and project titles are free-form and occasionally carry
// emails or links.
func scrubPII(s string) string {
    s = emailRe.ReplaceAllString(s, "<email>")
    s = urlRe.ReplaceAllString(s, "<url>")
    s = tokenRe.ReplaceAllString(s, "<secret>")
    return s
}

func renderDigest(kpis map[string]float64, alerts []metrics.Alert, now time.Time) string {
    b := &strings.Builder{}
    fmt.Fprintf(b, "Linear Pulse — week of %s\n\n", now.Format("Jan 2"))
    fmt.Fprintf(b, "Issues: %d total, %d completed\n", int(kpis["issues_total"]), int(kpis["issues_completed"]))
    fmt.Fprintf(b, "Progress: %d%%\n", int(kpis["progress_percent"]))
    fmt.Fprintf(b, "Throughput (7d): %d\n", int(kpis["throughput"]))
    fmt.Fprintf(b, "Velocity: %.1f/wk\n", kpis["velocity_per_week"])
    fmt.Fprintf(b, "Cycle avg: %.1fd\n", kpis["avg_cycle_time_days"])
    if len(alerts) > 0 {
        fmt.Fprintf(b, "\nGuardrails:\n")
        limit := alerts
        if len(limit) > 8 { limit = limit[:8] }
        for i, a := range limit {
            fmt.Fprintf(b, "%d. [%s] %s\n", i+1, a.Severity, a.Message)
        }
    }
    return b.String()
}
