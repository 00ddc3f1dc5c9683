/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/config"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/filter"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/query"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/services"
)

type stubService struct {
    connectErr error
    connected  bool
    teamID     string
    lastFilter filter.Filter
    refreshed  int
    issues     []domain.Issue
}

func (s *stubService) Connect(ctx context.Context, apiKey string) (*domain.Viewer, error) {
    if s.connectErr != nil { return nil, s.connectErr }
    s.connected = true
    return &domain.Viewer{ID: "u1", Name: "Dana"}, nil
}

func (s *stubService) Disconnect(ctx context.Context) error { s.connected = false; return nil }

func (s *stubService) Preferences(ctx context.Context) (services.PrefsView, error) {
    return services.PrefsView{Connected: s.connected, SelectedTeam: s.teamID}, nil
}

func (s *stubService) Teams(ctx context.Context) query.Result[[]domain.Team] {
    return query.Result[[]domain.Team]{Data: []domain.Team{{ID: "t1", Name: "Core", Key: "CORE"}}}
}

func (s *stubService) SelectTeam(ctx context.Context, teamID string) error {
    s.teamID = teamID
    return nil
}

func (s *stubService) SelectedTeam(ctx context.Context) string { return s.teamID }

func (s *stubService) RefreshTeam(ctx context.Context, teamID string) int {
    s.refreshed++
    return 3
}

func (s *stubService) RunWeeklyDigest(ctx context.Context) error { return nil }

func (s *stubService) Overview(ctx context.Context) services.OverviewView {
    return services.OverviewView{KPIs: map[string]float64{"issues_total": 3}}
}

func (s *stubService) Projects(ctx context.Context) services.ProjectsView {
    return services.ProjectsView{}
}

func (s *stubService) ProjectDetail(ctx context.Context, projectID string, f filter.Filter) services.ProjectDetailView {
    s.lastFilter = f
    if projectID != "p1" { return services.ProjectDetailView{} }
    return services.ProjectDetailView{Project: &domain.Project{ID: "p1", Name: "Launch"}}
}

func (s *stubService) ExecutiveSummary(ctx context.Context) services.ExecutiveSummaryView {
    return services.ExecutiveSummaryView{}
}

func (s *stubService) People(ctx context.Context) services.PeopleView { return services.PeopleView{} }

func (s *stubService) Labels(ctx context.Context) services.LabelsView { return services.LabelsView{} }

func (s *stubService) TeamStats(ctx context.Context) services.TeamStatsView {
    return services.TeamStatsView{}
}

func (s *stubService) SearchIssues(ctx context.Context, f filter.Filter) services.SearchView {
    s.lastFilter = f
    return services.SearchView{Issues: s.issues}
}

func (s *stubService) WeeklyReport(ctx context.Context) services.ReportView {
    return services.ReportView{Narrative: "quiet week"}
}

func (s *stubService) ExportIssues(ctx context.Context, f filter.Filter) ([]domain.Issue, services.Meta) {
    s.lastFilter = f
    return s.issues, services.Meta{TeamID: s.teamID}
}

func (s *stubService) ToggleFavorite(ctx context.Context, projectID string) ([]string, error) {
    return []string{projectID}, nil
}

func (s *stubService) ToggleFollow(ctx context.Context, projectID string) ([]string, error) {
    return []string{projectID}, nil
}

func (s *stubService) SetCapacity(ctx context.Context, assigneeID string, capacity float64) (map[string]float64, error) {
    return map[string]float64{assigneeID: capacity}, nil
}

func newTestRouter(t *testing.T, svc *stubService) http.Handler {
    t.Helper()
    cfg := config.Config{AppEnv: "test"}
    return NewRouter(cfg, zerolog.Nop(), svc)
}

func TestHealthz(t *testing.T) {
    r := newTestRouter(t, &stubService{})
    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
    assert.Equal(t, http.StatusOK, w.Code)
}

func TestConnectRequiresAPIKey(t *testing.T) {
    svc := &stubService{}
    r := newTestRouter(t, svc)

    w := httptest.NewRecorder()
    req := httptest.NewRequest("POST", "/api/session", strings.NewReader(`{"apiKey":"  "}`))
    req.Header.Set("Content-Type", "application/json")
    r.ServeHTTP(w, req)

    assert.Equal(t, http.StatusBadRequest, w.Code)
    assert.False(t, svc.connected)
}

func TestConnectBadGatewayOnRemoteError(t *testing.T) {
    svc := &stubService{connectErr: errors.New("authentication failed")}
    r := newTestRouter(t, svc)

    w := httptest.NewRecorder()
    req := httptest.NewRequest("POST", "/api/session", strings.NewReader(`{"apiKey":"lin_api_x"}`))
    req.Header.Set("Content-Type", "application/json")
    r.ServeHTTP(w, req)

    assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestConnectReturnsViewer(t *testing.T) {
    svc := &stubService{}
    r := newTestRouter(t, svc)

    w := httptest.NewRecorder()
    req := httptest.NewRequest("POST", "/api/session", strings.NewReader(`{"apiKey":"lin_api_x"}`))
    req.Header.Set("Content-Type", "application/json")
    r.ServeHTTP(w, req)

    require.Equal(t, http.StatusOK, w.Code)
    assert.Contains(t, w.Body.String(), "Dana")
    assert.True(t, svc.connected)
}

func TestProjectDetailNotFound(t *testing.T) {
    r := newTestRouter(t, &stubService{})
    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest("GET", "/api/views/projects/nope", nil))
    assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectDetailParsesFilter(t *testing.T) {
    svc := &stubService{}
    r := newTestRouter(t, svc)

    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest("GET", "/api/views/projects/p1?labels=l1,l2&states=started&q=auth&range=30d", nil))

    require.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, []string{"l1", "l2"}, svc.lastFilter.LabelIDs)
    assert.Equal(t, []string{"started"}, svc.lastFilter.StateTypes)
    assert.Equal(t, "auth", svc.lastFilter.Query)
    assert.False(t, svc.lastFilter.CreatedAfter.IsZero())
}

func TestExportIssuesCSVSetsAttachment(t *testing.T) {
    svc := &stubService{
        teamID: "t1",
        issues: []domain.Issue{{ID: "i1", Identifier: "CORE-1", Title: "Fix login", CreatedAt: time.Now()}},
    }
    r := newTestRouter(t, svc)

    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest("GET", "/api/export/issues.csv", nil))

    require.Equal(t, http.StatusOK, w.Code)
    assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
    assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
    assert.Contains(t, w.Body.String(), "CORE-1")
}

func TestRefreshAccepted(t *testing.T) {
    svc := &stubService{teamID: "t1"}
    r := newTestRouter(t, svc)

    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest("POST", "/api/refresh", nil))

    assert.Equal(t, http.StatusAccepted, w.Code)
    assert.Equal(t, 1, svc.refreshed)
}

func TestRequestIDEchoed(t *testing.T) {
    r := newTestRouter(t, &stubService{})

    w := httptest.NewRecorder()
    req := httptest.NewRequest("GET", "/healthz", nil)
    req.Header.Set("X-Request-Id", "abc-123")
    r.ServeHTTP(w, req)

    assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
}

func TestSetCapacityValidatesBody(t *testing.T) {
    r := newTestRouter(t, &stubService{})

    w := httptest.NewRecorder()
    req := httptest.NewRequest("PUT", "/api/prefs/capacity", strings.NewReader(`{"capacity":8}`))
    req.Header.Set("Content-Type", "application/json")
    r.ServeHTTP(w, req)

    assert.Equal(t, http.StatusBadRequest, w.Code)
}
