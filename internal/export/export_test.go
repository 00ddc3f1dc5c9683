/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package export

import (
    "encoding/csv"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
)

func TestIssuesCSVQuotesCommas(t *testing.T) {
    done := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
    issues := []domain.Issue{
        {
            Identifier: "ENG-1",
            Title:      `Fix crash, then "verify" rollout`,
            CreatedAt:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
            CompletedAt: &done,
            State:      domain.WorkflowState{Name: "Done", Type: "completed"},
            Assignee:   &domain.User{ID: "u1", Name: "Avery"},
            Labels:     []domain.Label{{Name: "bug"}, {Name: "p0"}},
        },
    }
    out, err := IssuesCSV(issues)
    require.NoError(t, err)

    text := string(out)
    assert.True(t, strings.HasPrefix(text, "identifier,title,state,"))
    // the comma-bearing title is quoted with doubled inner quotes
    assert.Contains(t, text, `"Fix crash, then ""verify"" rollout"`)

    // round-trips through a conforming reader
    rows, err := csv.NewReader(strings.NewReader(text)).ReadAll()
    require.NoError(t, err)
    require.Len(t, rows, 2)
    assert.Equal(t, `Fix crash, then "verify" rollout`, rows[1][1])
    assert.Equal(t, "completed", rows[1][3])
    assert.Equal(t, "bug; p0", rows[1][5])
    assert.Equal(t, "2025-06-10T08:00:00Z", rows[1][11])
}

func TestIssuesCSVEmptyStillHasHeader(t *testing.T) {
    out, err := IssuesCSV(nil)
    require.NoError(t, err)
    rows, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
    require.NoError(t, err)
    require.Len(t, rows, 1)
    assert.Len(t, rows[0], len(issueColumns))
}

func TestIssuesCSVOptionalFieldsBlank(t *testing.T) {
    issues := []domain.Issue{{Identifier: "ENG-2", Title: "bare", CreatedAt: time.Now()}}
    out, err := IssuesCSV(issues)
    require.NoError(t, err)
    rows, _ := csv.NewReader(strings.NewReader(string(out))).ReadAll()
    require.Len(t, rows, 2)
    assert.Equal(t, "", rows[1][4])  // assignee
    assert.Equal(t, "", rows[1][7])  // estimate
    assert.Equal(t, "", rows[1][12]) // due date
}

func TestIssuesJSONIndented(t *testing.T) {
    out, err := IssuesJSON(map[string]int{"total": 3})
    require.NoError(t, err)
    assert.Contains(t, string(out), "\n  \"total\": 3")
}

func TestFilename(t *testing.T) {
    now := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
    assert.Equal(t, "issues-atlas-2025-06-16.csv", Filename("Issues Atlas", "csv", now))
    assert.Equal(t, "export-2025-06-16.json", Filename("///", "json", now))
}
