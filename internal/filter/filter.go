/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package filter

import (
    "strings"
    "time"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
)

// Filter narrows an issue set. Semantics: AND across dimensions, OR within
// one, and an empty selection matches everything. Matching is by id, never
// by display name.
type Filter struct {
    LabelIDs    []string
    StateTypes  []string
    AssigneeIDs []string

    // CreatedAfter/CreatedBefore bound Issue.CreatedAt. Zero means unbounded.
    CreatedAfter  time.Time
    CreatedBefore time.Time

    // Query is a case-insensitive substring over SearchText.
    Query string

    // SearchText supplies the haystack for Query. Nil falls back to
    // identifier + title.
    SearchText func(domain.Issue) string
}

// Date range presets mirroring the dashboard's picker.
const (
    RangeAll       = "all"
    Range7Days     = "7d"
    Range14Days    = "14d"
    Range30Days    = "30d"
    Range60Days    = "60d"
    Range90Days    = "90d"
    RangeThisMonth = "this-month"
)

// RangeFromPreset resolves a preset name to a CreatedAfter bound relative to
// now. Unknown presets behave like all-time.
func RangeFromPreset(preset string, now time.Time) time.Time {
    switch preset {
    case Range7Days:
        return now.AddDate(0, 0, -7)
    case Range14Days:
        return now.AddDate(0, 0, -14)
    case Range30Days:
        return now.AddDate(0, 0, -30)
    case Range60Days:
        return now.AddDate(0, 0, -60)
    case Range90Days:
        return now.AddDate(0, 0, -90)
    case RangeThisMonth:
        return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
    }
    return time.Time{}
}

func (f Filter) Empty() bool {
    return len(f.LabelIDs) == 0 && len(f.StateTypes) == 0 && len(f.AssigneeIDs) == 0 &&
        f.CreatedAfter.IsZero() && f.CreatedBefore.IsZero() && strings.TrimSpace(f.Query) == ""
}

// Match reports whether a single issue passes every active dimension.
func (f Filter) Match(i domain.Issue) bool {
    if len(f.StateTypes) > 0 && !containsFold(f.StateTypes, i.StateType()) { return false }
    if len(f.AssigneeIDs) > 0 {
        if i.Assignee == nil || !contains(f.AssigneeIDs, i.Assignee.ID) { return false }
    }
    if len(f.LabelIDs) > 0 && !f.anyLabel(i) { return false }
    if !f.CreatedAfter.IsZero() && i.CreatedAt.Before(f.CreatedAfter) { return false }
    if !f.CreatedBefore.IsZero() && i.CreatedAt.After(f.CreatedBefore) { return false }
    if q := strings.TrimSpace(f.Query); q != "" {
        hay := i.Identifier + " " + i.Title
        if f.SearchText != nil { hay = f.SearchText(i) }
        if !strings.Contains(strings.ToLower(hay), strings.ToLower(q)) { return false }
    }
    return true
}

// Apply returns the issues passing the filter, preserving input order.
// The fast path hands back the input slice untouched.
func (f Filter) Apply(issues []domain.Issue) []domain.Issue {
    if f.Empty() { return issues }
    out := make([]domain.Issue, 0, len(issues))
    for _, i := range issues {
        if f.Match(i) { out = append(out, i) }
    }
    return out
}

func (f Filter) anyLabel(i domain.Issue) bool {
    for _, l := range i.Labels {
        if contains(f.LabelIDs, l.ID) { return true }
    }
    return false
}

func contains(xs []string, s string) bool {
    for _, x := range xs {
        if x == s { return true }
    }
    return false
}

func containsFold(xs []string, s string) bool {
    for _, x := range xs {
        if strings.EqualFold(x, s) { return true }
    }
    return false
}
