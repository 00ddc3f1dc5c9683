/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "path/filepath"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/mock"
    "github.com/stretchr/testify/require"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/config"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/filter"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/prefs"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/query"
)

var testNow = time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

type mockLinear struct{ mock.Mock }

func (m *mockLinear) Viewer(ctx context.Context) (*domain.Viewer, error) {
    args := m.Called(ctx)
    v, _ := args.Get(0).(*domain.Viewer)
    return v, args.Error(1)
}

func (m *mockLinear) Teams(ctx context.Context) ([]domain.Team, error) {
    args := m.Called(ctx)
    t, _ := args.Get(0).([]domain.Team)
    return t, args.Error(1)
}

func (m *mockLinear) TeamProjects(ctx context.Context, teamID string) ([]domain.Project, error) {
    args := m.Called(ctx, teamID)
    p, _ := args.Get(0).([]domain.Project)
    return p, args.Error(1)
}

func (m *mockLinear) TeamIssues(ctx context.Context, teamID string) ([]domain.Issue, error) {
    args := m.Called(ctx, teamID)
    i, _ := args.Get(0).([]domain.Issue)
    return i, args.Error(1)
}

func (m *mockLinear) WorkspaceUsers(ctx context.Context) ([]domain.User, error) {
    args := m.Called(ctx)
    u, _ := args.Get(0).([]domain.User)
    return u, args.Error(1)
}

func (m *mockLinear) ProjectMilestones(ctx context.Context, projectID string) ([]domain.Milestone, []domain.Issue, error) {
    args := m.Called(ctx, projectID)
    ms, _ := args.Get(0).([]domain.Milestone)
    is, _ := args.Get(1).([]domain.Issue)
    return ms, is, args.Error(2)
}

func (m *mockLinear) SetAPIKey(key string) { m.Called(key) }

func testConfig() config.Config {
    return config.Config{
        ProgressStrategy: "weighted",
        Guardrails:       config.Guardrails{BlockedRatio: 0.25, TargetWindowDays: 7, MinProgress: 60},
        DefaultCapacity:  10,
        CacheTTL:         time.Minute,
        StaleTTL:         time.Hour,
    }
}

func newTestService(t *testing.T, ml *mockLinear) *Service {
    t.Helper()
    store, err := prefs.Open(context.Background(), filepath.Join(t.TempDir(), "prefs.db"))
    require.NoError(t, err)
    t.Cleanup(func() { _ = store.Close() })
    cache := query.NewCache(time.Minute, time.Hour, zerolog.Nop())
    s := New(testConfig(), zerolog.Nop(), ml, nil, nil, cache, store)
    s.now = func() time.Time { return testNow }
    return s
}

func fixtureIssues(projectID string) []domain.Issue {
    done := testNow.AddDate(0, 0, -2)
    return []domain.Issue{
        {
            ID: "i1", Identifier: "ENG-1", Title: "Ship exporter",
            CreatedAt: testNow.AddDate(0, 0, -20), CompletedAt: &done,
            State:    domain.WorkflowState{Type: "completed"},
            Assignee: &domain.User{ID: "u1", Name: "Avery"},
            Project:  &domain.ProjectRef{ID: projectID, Name: "Atlas"},
        },
        {
            ID: "i2", Identifier: "ENG-2", Title: "Fix importer",
            CreatedAt: testNow.AddDate(0, 0, -10),
            State:    domain.WorkflowState{Type: "started"},
            Assignee: &domain.User{ID: "u1", Name: "Avery"},
            Labels:   []domain.Label{{ID: "l1", Name: "blocked"}},
            Project:  &domain.ProjectRef{ID: projectID, Name: "Atlas"},
        },
        {
            ID: "i3", Identifier: "ENG-3", Title: "Write docs",
            CreatedAt: testNow.AddDate(0, 0, -5),
            State:   domain.WorkflowState{Type: "backlog"},
            Project: &domain.ProjectRef{ID: projectID, Name: "Atlas"},
        },
    }
}

func TestOverviewSkipsWithoutTeam(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)

    view := s.Overview(context.Background())
    assert.True(t, view.Meta.Skipped)
    assert.Equal(t, 0.0, view.KPIs["issues_total"])
    // no team selected, no remote calls
    ml.AssertNotCalled(t, "TeamIssues", mock.Anything, mock.Anything)
}

func TestOverviewComputesKPIs(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)
    require.NoError(t, s.SelectTeam(context.Background(), "team-1"))

    upd := testNow.AddDate(0, 0, -1)
    ml.On("TeamProjects", mock.Anything, "team-1").Return([]domain.Project{
        {ID: "p1", Name: "Atlas", State: "started", UpdatedAt: &upd},
    }, nil)
    ml.On("TeamIssues", mock.Anything, "team-1").Return(fixtureIssues("p1"), nil)

    view := s.Overview(context.Background())
    assert.False(t, view.Meta.Skipped)
    assert.Empty(t, view.Meta.Errors)
    assert.Equal(t, 3.0, view.KPIs["issues_total"])
    assert.Equal(t, 1.0, view.KPIs["issues_completed"])
    // weighted: (100+60+0)/3 = 53
    assert.Equal(t, 53.0, view.KPIs["progress_percent"])
    assert.Equal(t, 1, view.IssueStates["completed"])
    assert.Equal(t, 1, view.ProjectStates["started"])
    require.Len(t, view.RecentProjects, 1)
    assert.Equal(t, "Atlas", view.RecentProjects[0].Name)
}

func TestOverviewDegradesOnIssueFailure(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)
    require.NoError(t, s.SelectTeam(context.Background(), "team-1"))

    ml.On("TeamProjects", mock.Anything, "team-1").Return([]domain.Project{{ID: "p1", Name: "Atlas"}}, nil)
    ml.On("TeamIssues", mock.Anything, "team-1").Return(nil, errors.New("remote down"))

    view := s.Overview(context.Background())
    // projects side still renders
    require.Len(t, view.RecentProjects, 1)
    require.Len(t, view.Meta.Errors, 1)
    assert.Contains(t, view.Meta.Errors[0], "remote down")
}

func TestProjectDetailAggregatesOverFullScope(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)
    require.NoError(t, s.SelectTeam(context.Background(), "team-1"))

    ml.On("TeamProjects", mock.Anything, "team-1").Return([]domain.Project{{ID: "p1", Name: "Atlas"}}, nil)
    ml.On("TeamIssues", mock.Anything, "team-1").Return(fixtureIssues("p1"), nil)
    ml.On("ProjectMilestones", mock.Anything, "p1").Return(nil, nil, nil)

    f := filter.Filter{StateTypes: []string{"completed"}}
    view := s.ProjectDetail(context.Background(), "p1", f)

    require.NotNil(t, view.Project)
    // the table is filtered, the aggregates are not
    assert.Len(t, view.Issues, 1)
    assert.Equal(t, 3, view.Aggregates.IssueCount)
    assert.Equal(t, "1 of 3 issues", view.FilteredBy)
    assert.Equal(t, 3, sumStates(view.Aggregates.States))
    assert.False(t, view.Burndown.Simulated)
    assert.InDelta(t, 1.0/3.0, view.Aggregates.Blocked, 0.001)
}

func sumStates(m map[string]int) int {
    n := 0
    for _, v := range m { n += v }
    return n
}

func TestExecutiveSummaryScopesToFollowedProjects(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)
    require.NoError(t, s.SelectTeam(context.Background(), "team-1"))

    ml.On("TeamProjects", mock.Anything, "team-1").Return([]domain.Project{
        {ID: "p1", Name: "Atlas"},
        {ID: "p2", Name: "Borealis"},
    }, nil)
    all := append(fixtureIssues("p1"), fixtureIssues("p2")...)
    ml.On("TeamIssues", mock.Anything, "team-1").Return(all, nil)
    ml.On("ProjectMilestones", mock.Anything, mock.Anything).Return(nil, nil, nil)

    // nothing followed: every team project is in scope
    view := s.ExecutiveSummary(context.Background())
    assert.Len(t, view.GanttLanes, 2)
    assert.Equal(t, 6.0, view.KPIs["issues_total"])
    assert.Equal(t, 2.0, view.KPIs["projects_total"])

    _, err := s.ToggleFollow(context.Background(), "p2")
    require.NoError(t, err)

    view = s.ExecutiveSummary(context.Background())
    require.Len(t, view.GanttLanes, 1)
    assert.Equal(t, "p2", view.GanttLanes[0].ProjectID)
    assert.Equal(t, 3.0, view.KPIs["issues_total"])
    assert.Equal(t, 1.0, view.KPIs["projects_total"])
    assert.Equal(t, 3, sumStates(view.States))
}

func TestConnectRejectsEmptyKeyBeforeNetwork(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)

    _, err := s.Connect(context.Background(), "   ")
    assert.Error(t, err)
    ml.AssertNotCalled(t, "Viewer", mock.Anything)
}

func TestConnectPersistsValidatedKey(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)

    ml.On("SetAPIKey", "lin_api_new").Return()
    ml.On("Viewer", mock.Anything).Return(&domain.Viewer{ID: "v1", Name: "Avery"}, nil)

    viewer, err := s.Connect(context.Background(), "lin_api_new")
    require.NoError(t, err)
    assert.Equal(t, "Avery", viewer.Name)

    stored, err := s.prefs.APIKey(context.Background())
    require.NoError(t, err)
    assert.Equal(t, "lin_api_new", stored)
}

func TestConnectRollsBackOnInvalidKey(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)
    require.NoError(t, s.prefs.SetAPIKey(context.Background(), "lin_api_old"))

    ml.On("SetAPIKey", mock.Anything).Return()
    ml.On("Viewer", mock.Anything).Return(nil, errors.New("401"))

    _, err := s.Connect(context.Background(), "lin_api_bad")
    require.Error(t, err)

    stored, _ := s.prefs.APIKey(context.Background())
    assert.Equal(t, "lin_api_old", stored)
    // the rollback re-applies the stored key
    ml.AssertCalled(t, "SetAPIKey", "lin_api_old")
}

func TestPeopleUsesCapacityOverrides(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)
    require.NoError(t, s.SelectTeam(context.Background(), "team-1"))
    _, err := s.prefs.SetCapacityOverride(context.Background(), "u1", 4)
    require.NoError(t, err)

    est := 3.0
    issues := fixtureIssues("p1")
    issues[1].Estimate = &est
    ml.On("TeamProjects", mock.Anything, "team-1").Return(nil, nil)
    ml.On("TeamIssues", mock.Anything, "team-1").Return(issues, nil)
    ml.On("WorkspaceUsers", mock.Anything).Return([]domain.User{{ID: "u1", Name: "Avery", AvatarURL: "http://a"}}, nil)

    view := s.People(context.Background())
    require.Len(t, view.People, 1)
    p := view.People[0]
    assert.Equal(t, 4.0, p.Capacity)
    assert.Equal(t, 75, p.Utilization) // 3 points of 4
    assert.Equal(t, "http://a", p.AvatarURL)
}

func TestWeeklyReportFallbackRenderer(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)
    require.NoError(t, s.SelectTeam(context.Background(), "team-1"))

    ml.On("TeamProjects", mock.Anything, "team-1").Return([]domain.Project{{ID: "p1", Name: "Atlas"}}, nil)
    ml.On("TeamIssues", mock.Anything, "team-1").Return(fixtureIssues("p1"), nil)

    report := s.WeeklyReport(context.Background())
    assert.False(t, report.ByLLM)
    assert.Contains(t, report.Narrative, "Linear Pulse")
    assert.Contains(t, report.Narrative, "Issues: 3 total")
    // 1 of 3 blocked is over the ratio guardrail
    require.NotEmpty(t, report.Alerts)
    assert.Contains(t, report.Narrative, "Guardrails:")
}

func TestSearchIssuesFiltersCachedData(t *testing.T) {
    ml := &mockLinear{}
    s := newTestService(t, ml)
    require.NoError(t, s.SelectTeam(context.Background(), "team-1"))
    ml.On("TeamIssues", mock.Anything, "team-1").Return(fixtureIssues("p1"), nil)

    view := s.SearchIssues(context.Background(), filter.Filter{Query: "importer"})
    require.Len(t, view.Issues, 1)
    assert.Equal(t, "ENG-2", view.Issues[0].Identifier)
}
