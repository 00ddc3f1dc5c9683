/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package filter

import (
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
)

var now = time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

func fixture() []domain.Issue {
    return []domain.Issue{
        {
            ID: "1", Identifier: "ENG-1", Title: "Fix login crash",
            CreatedAt: now.AddDate(0, 0, -3),
            State:     domain.WorkflowState{Type: "started"},
            Assignee:  &domain.User{ID: "u1", Name: "Avery"},
            Labels:    []domain.Label{{ID: "bug", Name: "Bug"}},
        },
        {
            ID: "2", Identifier: "ENG-2", Title: "Polish dashboard",
            CreatedAt: now.AddDate(0, 0, -40),
            State:     domain.WorkflowState{Type: "completed"},
            Assignee:  &domain.User{ID: "u2", Name: "Sam"},
            Labels:    []domain.Label{{ID: "ui", Name: "UI"}},
        },
        {
            ID: "3", Identifier: "ENG-3", Title: "Write docs",
            CreatedAt: now.AddDate(0, 0, -1),
            State:     domain.WorkflowState{Type: "backlog"},
        },
    }
}

func ids(issues []domain.Issue) []string {
    out := make([]string, 0, len(issues))
    for _, i := range issues { out = append(out, i.ID) }
    return out
}

func TestEmptyFilterMatchesAll(t *testing.T) {
    issues := fixture()
    got := Filter{}.Apply(issues)
    assert.Equal(t, ids(issues), ids(got))
}

func TestOrWithinDimension(t *testing.T) {
    got := Filter{StateTypes: []string{"started", "backlog"}}.Apply(fixture())
    assert.Equal(t, []string{"1", "3"}, ids(got))
}

func TestAndAcrossDimensions(t *testing.T) {
    f := Filter{StateTypes: []string{"started"}, LabelIDs: []string{"bug"}}
    assert.Equal(t, []string{"1"}, ids(f.Apply(fixture())))

    f.LabelIDs = []string{"ui"}
    assert.Empty(t, f.Apply(fixture()))
}

func TestAssigneeByIDNotName(t *testing.T) {
    got := Filter{AssigneeIDs: []string{"u2"}}.Apply(fixture())
    assert.Equal(t, []string{"2"}, ids(got))
    // names never match
    assert.Empty(t, Filter{AssigneeIDs: []string{"Sam"}}.Apply(fixture()))
    // unassigned issues fail any assignee selection
    got = Filter{AssigneeIDs: []string{"u1", "u2"}}.Apply(fixture())
    assert.NotContains(t, ids(got), "3")
}

func TestCreatedAfterPreset(t *testing.T) {
    f := Filter{CreatedAfter: RangeFromPreset(Range7Days, now)}
    assert.Equal(t, []string{"1", "3"}, ids(f.Apply(fixture())))

    assert.True(t, RangeFromPreset(RangeAll, now).IsZero())
    assert.True(t, RangeFromPreset("nonsense", now).IsZero())

    month := RangeFromPreset(RangeThisMonth, now)
    assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), month)
}

func TestQueryCaseInsensitive(t *testing.T) {
    got := Filter{Query: "LOGIN"}.Apply(fixture())
    assert.Equal(t, []string{"1"}, ids(got))
    // identifier matches too
    got = Filter{Query: "eng-3"}.Apply(fixture())
    assert.Equal(t, []string{"3"}, ids(got))
}

func TestQueryCustomExtractor(t *testing.T) {
    f := Filter{Query: "avery", SearchText: func(i domain.Issue) string {
        if i.Assignee == nil { return i.Title }
        return i.Title + " " + i.Assignee.Name
    }}
    assert.Equal(t, []string{"1"}, ids(f.Apply(fixture())))
}

func TestDebouncerCollapsesBursts(t *testing.T) {
    var fired int32
    db := NewDebouncer(20 * time.Millisecond)
    for i := 0; i < 5; i++ {
        db.Trigger(func() { atomic.AddInt32(&fired, 1) })
        time.Sleep(2 * time.Millisecond)
    }
    time.Sleep(60 * time.Millisecond)
    assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestDebouncerStopCancels(t *testing.T) {
    var fired int32
    db := NewDebouncer(20 * time.Millisecond)
    db.Trigger(func() { atomic.AddInt32(&fired, 1) })
    db.Stop()
    time.Sleep(50 * time.Millisecond)
    assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
