/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
    "sort"
    "time"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
)

// Weekly chart series computed from real createdAt/completedAt history.
// Simulated is always false and stays in the payload so clients can assert
// they never render fabricated data.

type WeekPoint struct {
    WeekStart time.Time `json:"weekStart"`
    Open      int       `json:"open"`
    Completed int       `json:"completed"`
}

type Series struct {
    Points    []WeekPoint `json:"points"`
    Simulated bool        `json:"simulated"`
}

func weekStart(t time.Time) time.Time {
    weekday := int(t.Weekday())
    if weekday == 0 { weekday = 7 }
    delta := time.Duration(weekday-1) * 24 * time.Hour
    day := t.Add(-delta)
    return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
}

// BurndownSeries reports, for each of the trailing weeks, how many issues
// were open (created, not yet completed) at the end of that week and how
// many completed during it.
func BurndownSeries(issues []domain.Issue, weeks int, now time.Time) Series {
    if weeks <= 0 { weeks = 8 }
    s := Series{Points: make([]WeekPoint, 0, weeks)}
    start := weekStart(now).AddDate(0, 0, -7*(weeks-1))
    for w := 0; w < weeks; w++ {
        ws := start.AddDate(0, 0, 7*w)
        we := ws.AddDate(0, 0, 7)
        open, done := 0, 0
        for _, i := range issues {
            if i.CreatedAt.After(we) || i.CreatedAt.Equal(we) { continue }
            completedBefore := i.CompletedAt != nil && i.CompletedAt.Before(we)
            if !completedBefore { open++ }
            if i.CompletedAt != nil && !i.CompletedAt.Before(ws) && i.CompletedAt.Before(we) { done++ }
        }
        s.Points = append(s.Points, WeekPoint{WeekStart: ws, Open: open, Completed: done})
    }
    return s
}

// ThroughputSeries counts completions per trailing week.
func ThroughputSeries(issues []domain.Issue, weeks int, now time.Time) Series {
    if weeks <= 0 { weeks = 8 }
    s := Series{Points: make([]WeekPoint, 0, weeks)}
    start := weekStart(now).AddDate(0, 0, -7*(weeks-1))
    for w := 0; w < weeks; w++ {
        ws := start.AddDate(0, 0, 7*w)
        we := ws.AddDate(0, 0, 7)
        done := 0
        for _, i := range issues {
            if i.CompletedAt != nil && !i.CompletedAt.Before(ws) && i.CompletedAt.Before(we) { done++ }
        }
        s.Points = append(s.Points, WeekPoint{WeekStart: ws, Completed: done})
    }
    return s
}

type DayCount struct {
    Date    string         `json:"date"` // YYYY-MM-DD
    Total   int            `json:"total"`
    ByState map[string]int `json:"byState"`
}

// IssueCountSeries buckets issues by creation day with a per-state-type
// breakdown, ascending by date. Days without creations are omitted.
func IssueCountSeries(issues []domain.Issue) []DayCount {
    byDay := map[string]*DayCount{}
    for _, i := range issues {
        day := i.CreatedAt.Format("2006-01-02")
        dc, ok := byDay[day]
        if !ok {
            dc = &DayCount{Date: day, ByState: map[string]int{}}
            byDay[day] = dc
        }
        dc.Total++
        dc.ByState[i.StateType()]++
    }
    out := make([]DayCount, 0, len(byDay))
    for _, dc := range byDay { out = append(out, *dc) }
    sort.Slice(out, func(a, b int) bool { return out[a].Date < out[b].Date })
    return out
}
