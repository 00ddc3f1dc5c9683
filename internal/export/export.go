/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package export

import (
    "bytes"
    "encoding/csv"
    "encoding/json"
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
)

// Issue table exports. The column list is fixed so output is deterministic
// run to run; no map iteration decides header order.

var issueColumns = []string{
    "identifier", "title", "state", "state_type", "assignee", "labels",
    "priority", "estimate", "project", "milestone",
    "created_at", "completed_at", "due_date",
}

func issueRow(i domain.Issue) []string {
    assignee := ""
    if i.Assignee != nil { assignee = i.Assignee.Name }
    labels := make([]string, 0, len(i.Labels))
    for _, l := range i.Labels { labels = append(labels, l.Name) }
    estimate := ""
    if i.Estimate != nil { estimate = strconv.FormatFloat(*i.Estimate, 'f', -1, 64) }
    project, milestone := "", ""
    if i.Project != nil { project = i.Project.Name }
    if i.Milestone != nil { milestone = i.Milestone.Name }
    return []string{
        i.Identifier,
        i.Title,
        i.State.Name,
        i.StateType(),
        assignee,
        strings.Join(labels, "; "),
        strconv.Itoa(i.Priority),
        estimate,
        project,
        milestone,
        fmtTime(&i.CreatedAt),
        fmtTime(i.CompletedAt),
        fmtDay(i.DueDate),
    }
}

func fmtTime(t *time.Time) string {
    if t == nil || t.IsZero() { return "" }
    return t.UTC().Format(time.RFC3339)
}

func fmtDay(t *time.Time) string {
    if t == nil || t.IsZero() { return "" }
    return t.Format("2006-01-02")
}

// IssuesCSV renders the issue table as RFC 4180 CSV: fields containing
// commas, quotes or newlines are quoted, inner quotes doubled.
func IssuesCSV(issues []domain.Issue) ([]byte, error) {
    var buf bytes.Buffer
    w := csv.NewWriter(&buf)
    if err := w.Write(issueColumns); err != nil { return nil, err }
    for _, i := range issues {
        if err := w.Write(issueRow(i)); err != nil { return nil, err }
    }
    w.Flush()
    if err := w.Error(); err != nil { return nil, err }
    return buf.Bytes(), nil
}

// IssuesJSON renders any export payload indented.
func IssuesJSON(payload any) ([]byte, error) {
    return json.MarshalIndent(payload, "", "  ")
}

// Filename builds the attachment name from a stem, e.g. "issues-atlas.csv".
func Filename(stem, ext string, now time.Time) string {
    stem = strings.TrimSpace(strings.ToLower(stem))
    stem = strings.Map(func(r rune) rune {
        switch {
        case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
            return r
        case r == ' ':
            return '-'
        }
        return -1
    }, stem)
    if stem == "" { stem = "export" }
    return fmt.Sprintf("%s-%s.%s", stem, now.Format("2006-01-02"), ext)
}
