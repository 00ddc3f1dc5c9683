/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
    "fmt"
    "math"
    "sort"
    "strings"
    "time"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
)

// Pure derivations over issue/project slices. Nothing here errors: empty or
// partial input yields zero values, never NaN or Inf, and every percentage
// is clamped to [0,100].

// Progress strategies. The active one is picked by configuration; views
// never mix strategies within a payload.
const (
    StrategyRatio     = "ratio"
    StrategyWeighted  = "weighted"
    StrategyMilestone = "milestone"
)

// stateWeight maps workflow state types to partial credit for the weighted
// strategy. Unlisted types (backlog, unstarted, canceled, triage, unknown)
// contribute nothing.
func stateWeight(stateType string) float64 {
    switch stateType {
    case domain.StateCompleted:
        return 100
    case domain.StateStarted:
        return 60
    }
    return 0
}

func clampPct(v float64) int {
    if math.IsNaN(v) || v < 0 { return 0 }
    if v > 100 { return 100 }
    return int(math.Round(v))
}

// ProgressPercent is the plain completed-over-total ratio.
func ProgressPercent(issues []domain.Issue) int {
    if len(issues) == 0 { return 0 }
    done := 0
    for _, i := range issues {
        if i.Completed() { done++ }
    }
    return clampPct(100 * float64(done) / float64(len(issues)))
}

// ProjectProgress computes the canonical project progress under the given
// strategy. The milestone strategy falls back to weighted when the project
// has no milestones.
func ProjectProgress(issues []domain.Issue, milestones []MilestoneMetric, strategy string) int {
    switch strategy {
    case StrategyRatio:
        return ProgressPercent(issues)
    case StrategyMilestone:
        if len(milestones) > 0 {
            done := 0
            for _, m := range milestones {
                if m.Status == MilestoneCompleted { done++ }
            }
            return clampPct(100 * float64(done) / float64(len(milestones)))
        }
    }
    // weighted (default)
    if len(issues) == 0 { return 0 }
    sum := 0.0
    for _, i := range issues { sum += stateWeight(i.StateType()) }
    return clampPct(sum / float64(len(issues)))
}

// StateDistribution counts issues per state type. The values always sum to
// len(issues); unclassifiable states land in "unknown".
func StateDistribution(issues []domain.Issue) map[string]int {
    out := map[string]int{}
    for _, i := range issues { out[i.StateType()]++ }
    return out
}

type LabelCount struct {
    LabelID string `json:"labelId"`
    Name    string `json:"name"`
    Color   string `json:"color,omitempty"`
    Count   int    `json:"count"`
}

// LabelDistribution counts issues per label id, descending by count with
// first-seen order breaking ties. A label repeated on one issue counts once.
func LabelDistribution(issues []domain.Issue) []LabelCount {
    byID := map[string]*LabelCount{}
    order := []string{}
    for _, i := range issues {
        seen := map[string]bool{}
        for _, l := range i.Labels {
            if l.ID == "" || seen[l.ID] { continue }
            seen[l.ID] = true
            lc, ok := byID[l.ID]
            if !ok {
                lc = &LabelCount{LabelID: l.ID, Name: l.Name, Color: domain.NormalizeColor(l.Color)}
                byID[l.ID] = lc
                order = append(order, l.ID)
            }
            lc.Count++
        }
    }
    rank := map[string]int{}
    for idx, id := range order { rank[id] = idx }
    out := make([]LabelCount, 0, len(order))
    for _, id := range order { out = append(out, *byID[id]) }
    sort.SliceStable(out, func(a, b int) bool {
        if out[a].Count != out[b].Count { return out[a].Count > out[b].Count }
        return rank[out[a].LabelID] < rank[out[b].LabelID]
    })
    return out
}

type AssigneeLoad struct {
    AssigneeID     string  `json:"assigneeId"`
    Name           string  `json:"name"`
    IssueCount     int     `json:"issueCount"`
    CompletedCount int     `json:"completedCount"`
    PointsSum      float64 `json:"pointsSum"`
}

// WorkloadByAssignee groups issues by assignee id. Unassigned issues are
// excluded; callers that want them count len(issues) minus the group sums.
func WorkloadByAssignee(issues []domain.Issue) []AssigneeLoad {
    byID := map[string]*AssigneeLoad{}
    order := []string{}
    for _, i := range issues {
        if i.Assignee == nil || i.Assignee.ID == "" { continue }
        al, ok := byID[i.Assignee.ID]
        if !ok {
            al = &AssigneeLoad{AssigneeID: i.Assignee.ID, Name: i.Assignee.Name}
            byID[i.Assignee.ID] = al
            order = append(order, i.Assignee.ID)
        }
        al.IssueCount++
        if i.Completed() { al.CompletedCount++ }
        if i.Estimate != nil { al.PointsSum += *i.Estimate }
    }
    out := make([]AssigneeLoad, 0, len(order))
    for _, id := range order { out = append(out, *byID[id]) }
    sort.SliceStable(out, func(a, b int) bool { return out[a].IssueCount > out[b].IssueCount })
    return out
}

type Velocity struct {
    VelocityPerWeek  float64 `json:"velocityPerWeek"`
    ThroughputCount  int     `json:"throughputCount"`
    AvgCycleTimeDays float64 `json:"avgCycleTimeDays"`
}

// VelocityStats derives completion rates from issues with a non-nil
// CompletedAt. windowDays <= 0 means all time. Zero struct when nothing
// completed.
func VelocityStats(issues []domain.Issue, windowDays int, now time.Time) Velocity {
    var cutoff time.Time
    if windowDays > 0 { cutoff = now.AddDate(0, 0, -windowDays) }
    var earliest time.Time
    count := 0
    cycleSum := 0.0
    for _, i := range issues {
        if i.CompletedAt == nil { continue }
        done := *i.CompletedAt
        if windowDays > 0 && done.Before(cutoff) { continue }
        count++
        cycleSum += done.Sub(i.CreatedAt).Hours() / 24
        if earliest.IsZero() || done.Before(earliest) { earliest = done }
    }
    if count == 0 { return Velocity{} }
    weeks := now.Sub(earliest).Hours() / (24 * 7)
    if weeks < 1 { weeks = 1 }
    avgCycle := cycleSum / float64(count)
    if avgCycle < 0 { avgCycle = 0 }
    return Velocity{
        VelocityPerWeek:  float64(count) / weeks,
        ThroughputCount:  count,
        AvgCycleTimeDays: avgCycle,
    }
}

// Thresholds are deployment constants for guardrail alerts, never derived
// from historical baselines.
type Thresholds struct {
    BlockedRatio     float64
    TargetWindowDays int
    MinProgress      int
}

var DefaultThresholds = Thresholds{BlockedRatio: 0.25, TargetWindowDays: 7, MinProgress: 60}

const (
    SeverityWarning  = "warning"
    SeverityCritical = "critical"
)

type Alert struct {
    ID       string `json:"id"`
    Severity string `json:"severity"`
    Message  string `json:"message"`
}

// GuardrailAlerts flags projects with a high blocked-label ratio and
// approaching target dates with insufficient progress.
func GuardrailAlerts(p domain.Project, issues []domain.Issue, ms []MilestoneMetric, progress int, th Thresholds, now time.Time) []Alert {
    var out []Alert
    if len(issues) > 0 {
        blocked := 0
        for _, i := range issues {
            if i.HasLabel("blocked") { blocked++ }
        }
        ratio := float64(blocked) / float64(len(issues))
        if ratio > th.BlockedRatio {
            out = append(out, Alert{
                ID:       p.ID + "-blocked",
                Severity: SeverityWarning,
                Message:  fmt.Sprintf("%s: %d of %d issues carry a blocked label", p.Name, blocked, len(issues)),
            })
        }
    }
    window := now.AddDate(0, 0, th.TargetWindowDays)
    if p.TargetDate != nil && !p.TargetDate.Before(now) && !p.TargetDate.After(window) && progress < th.MinProgress {
        out = append(out, Alert{
            ID:       p.ID + "-due",
            Severity: SeverityCritical,
            Message:  fmt.Sprintf("%s: target date %s with progress at %d%%", p.Name, p.TargetDate.Format("2006-01-02"), progress),
        })
    }
    for _, m := range ms {
        if m.TargetDate == nil || m.Status == MilestoneCompleted { continue }
        if !m.TargetDate.Before(now) && !m.TargetDate.After(window) && m.CompletionRate < th.MinProgress {
            out = append(out, Alert{
                ID:       m.ID + "-due",
                Severity: SeverityCritical,
                Message:  fmt.Sprintf("%s / %s: milestone due %s at %d%%", p.Name, m.Name, m.TargetDate.Format("2006-01-02"), m.CompletionRate),
            })
        }
    }
    return out
}

// Milestone statuses.
const (
    MilestoneCompleted = "completed"
    MilestoneOnTrack   = "on-track"
    MilestoneAtRisk    = "at-risk"
    MilestoneOverdue   = "overdue"
    MilestonePlanned   = "planned"
)

type MilestoneMetric struct {
    ID             string     `json:"id"`
    Name           string     `json:"name"`
    Description    string     `json:"description,omitempty"`
    StartDate      *time.Time `json:"startDate,omitempty"`
    TargetDate     *time.Time `json:"targetDate,omitempty"`
    CompletedAt    *time.Time `json:"completedAt,omitempty"`
    TotalIssues    int        `json:"totalIssues"`
    CompletedIssues int       `json:"completedIssues"`
    CompletionRate int        `json:"completionRate"`
    DaysUntilDue   *int       `json:"daysUntilDue,omitempty"`
    Status         string     `json:"status"`
}

// MilestoneMetrics enriches milestones (ordered by sortOrder) with issue
// counts and a schedule status. Start dates are sequential: the first
// milestone starts at projectStart, each following one at its predecessor's
// target date.
func MilestoneMetrics(milestones []domain.Milestone, issues []domain.Issue, projectStart *time.Time, now time.Time) []MilestoneMetric {
    ms := make([]domain.Milestone, len(milestones))
    copy(ms, milestones)
    sort.SliceStable(ms, func(a, b int) bool { return ms[a].SortOrder < ms[b].SortOrder })

    byMilestone := map[string][]domain.Issue{}
    for _, i := range issues {
        if i.Milestone == nil || i.Milestone.ID == "" { continue }
        byMilestone[i.Milestone.ID] = append(byMilestone[i.Milestone.ID], i)
    }

    out := make([]MilestoneMetric, 0, len(ms))
    prevTarget := projectStart
    for _, m := range ms {
        mine := byMilestone[m.ID]
        total := len(mine)
        done := 0
        for _, i := range mine {
            if i.Completed() { done++ }
        }
        rate := 0
        if total > 0 { rate = clampPct(100 * float64(done) / float64(total)) }

        mm := MilestoneMetric{
            ID:              m.ID,
            Name:            m.Name,
            Description:     m.Description,
            StartDate:       prevTarget,
            TargetDate:      m.TargetDate,
            CompletedAt:     m.CompletedAt,
            TotalIssues:     total,
            CompletedIssues: done,
            CompletionRate:  rate,
        }
        if m.TargetDate != nil {
            d := int(math.Ceil(m.TargetDate.Sub(now).Hours() / 24))
            mm.DaysUntilDue = &d
        }
        mm.Status = milestoneStatus(mm, now)
        out = append(out, mm)
        if m.TargetDate != nil { prevTarget = m.TargetDate }
    }
    return out
}

func milestoneStatus(m MilestoneMetric, now time.Time) string {
    // an explicit completion timestamp wins over the derived rate
    if m.CompletedAt != nil { return MilestoneCompleted }
    if m.TotalIssues > 0 && m.CompletionRate >= 100 { return MilestoneCompleted }
    if m.TargetDate != nil && m.TargetDate.Before(now) { return MilestoneOverdue }
    if m.StartDate != nil && m.StartDate.After(now) && m.CompletedIssues == 0 { return MilestonePlanned }
    if m.TargetDate == nil { return MilestoneOnTrack }
    if m.DaysUntilDue != nil && *m.DaysUntilDue < 7 { return MilestoneAtRisk }
    if m.StartDate != nil && m.TargetDate.After(*m.StartDate) {
        elapsed := now.Sub(*m.StartDate).Hours()
        span := m.TargetDate.Sub(*m.StartDate).Hours()
        expected := clampPct(100 * elapsed / span)
        if m.CompletionRate < expected-20 { return MilestoneAtRisk }
    }
    return MilestoneOnTrack
}

// BlockedRatio is exposed for views that show the raw figure alongside the
// guardrail alert.
func BlockedRatio(issues []domain.Issue) float64 {
    if len(issues) == 0 { return 0 }
    blocked := 0
    for _, i := range issues {
        if i.HasLabel("blocked") { blocked++ }
    }
    return float64(blocked) / float64(len(issues))
}

// KPIMap flattens headline figures for the digest renderer and the LLM
// summarizer.
func KPIMap(issues []domain.Issue, v Velocity, progress int) map[string]float64 {
    dist := StateDistribution(issues)
    return map[string]float64{
        "issues_total":        float64(len(issues)),
        "issues_completed":    float64(dist[domain.StateCompleted]),
        "issues_started":      float64(dist[domain.StateStarted]),
        "issues_backlog":      float64(dist[domain.StateBacklog] + dist[domain.StateUnstarted]),
        "progress_percent":    float64(progress),
        "velocity_per_week":   math.Round(v.VelocityPerWeek*100) / 100,
        "throughput":          float64(v.ThroughputCount),
        "avg_cycle_time_days": math.Round(v.AvgCycleTimeDays*100) / 100,
        "blocked_ratio":       math.Round(BlockedRatio(issues)*1000) / 1000,
    }
}

// SearchText is the haystack used by free-text issue search.
func SearchText(i domain.Issue) string {
    parts := []string{i.Identifier, i.Title}
    for _, l := range i.Labels { parts = append(parts, l.Name) }
    if i.Assignee != nil { parts = append(parts, i.Assignee.Name) }
    return strings.Join(parts, " ")
}
