/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
    "strings"
    "time"
)

// Entities as consumed from the remote GraphQL source. Every relation is
// optional: the API may omit any nested field and the dashboard must not care.

type WorkflowState struct {
    ID   string `json:"id"`
    Name string `json:"name"`
    Type string `json:"type"`
}

// Canonical state types. The vocabulary is open; anything else maps to
// StateUnknown for grouping purposes.
const (
    StateBacklog   = "backlog"
    StateUnstarted = "unstarted"
    StateStarted   = "started"
    StateCompleted = "completed"
    StateCanceled  = "canceled"
    StateTriage    = "triage"
    StateDuplicate = "duplicate"
    StateUnknown   = "unknown"
)

type Label struct {
    ID    string `json:"id"`
    Name  string `json:"name"`
    Color string `json:"color,omitempty"`
}

type User struct {
    ID        string `json:"id"`
    Name      string `json:"name"`
    Email     string `json:"email,omitempty"`
    AvatarURL string `json:"avatarUrl,omitempty"`
    Active    bool   `json:"active"`
}

type Team struct {
    ID    string `json:"id"`
    Name  string `json:"name"`
    Key   string `json:"key"`
    Icon  string `json:"icon,omitempty"`
    Color string `json:"color,omitempty"`
}

type ProjectRef struct {
    ID   string `json:"id"`
    Name string `json:"name"`
}

type MilestoneRef struct {
    ID   string `json:"id"`
    Name string `json:"name"`
}

type Issue struct {
    ID          string         `json:"id"`
    Identifier  string         `json:"identifier"`
    Title       string         `json:"title"`
    Priority    int            `json:"priority"` // 0..4, 0 = none
    Estimate    *float64       `json:"estimate,omitempty"`
    CreatedAt   time.Time      `json:"createdAt"`
    UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
    StartedAt   *time.Time     `json:"startedAt,omitempty"`
    CompletedAt *time.Time     `json:"completedAt,omitempty"`
    DueDate     *time.Time     `json:"dueDate,omitempty"`
    State       WorkflowState  `json:"state"`
    Assignee    *User          `json:"assignee,omitempty"`
    Labels      []Label        `json:"labels,omitempty"`
    Project     *ProjectRef    `json:"project,omitempty"`
    Milestone   *MilestoneRef  `json:"milestone,omitempty"`
}

type Milestone struct {
    ID          string     `json:"id"`
    Name        string     `json:"name"`
    Description string     `json:"description,omitempty"`
    TargetDate  *time.Time `json:"targetDate,omitempty"`
    SortOrder   float64    `json:"sortOrder"`
    CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type Project struct {
    ID          string      `json:"id"`
    Name        string      `json:"name"`
    Description string      `json:"description,omitempty"`
    State       string      `json:"state"`
    Progress    *float64    `json:"progress,omitempty"` // fraction 0..1, normalized at the adapter
    StartDate   *time.Time  `json:"startDate,omitempty"`
    TargetDate  *time.Time  `json:"targetDate,omitempty"`
    UpdatedAt   *time.Time  `json:"updatedAt,omitempty"`
    Lead        *User       `json:"lead,omitempty"`
    Milestones  []Milestone `json:"milestones,omitempty"`
}

type Viewer struct {
    ID           string `json:"id"`
    Name         string `json:"name"`
    Email        string `json:"email,omitempty"`
    Organization struct {
        ID     string `json:"id"`
        Name   string `json:"name"`
        URLKey string `json:"urlKey,omitempty"`
    } `json:"organization"`
}

// StateType returns the lowercased state type with the unknown fallback.
// Classification always goes through here, never through State.Name.
func (i Issue) StateType() string {
    t := strings.ToLower(strings.TrimSpace(i.State.Type))
    if t == "" { return StateUnknown }
    return t
}

func (i Issue) Completed() bool { return i.StateType() == StateCompleted }

// HasLabel reports whether any label name contains needle (case-insensitive).
func (i Issue) HasLabel(needle string) bool {
    needle = strings.ToLower(needle)
    for _, l := range i.Labels {
        if strings.Contains(strings.ToLower(l.Name), needle) { return true }
    }
    return false
}

// NormalizeColor ensures a leading '#' on hex colors the API sometimes
// returns bare.
func NormalizeColor(c string) string {
    c = strings.TrimSpace(c)
    if c == "" { return "" }
    if strings.HasPrefix(c, "#") { return c }
    return "#" + c
}
