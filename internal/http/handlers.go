/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/config"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/export"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/filter"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/query"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/services"
)

// service is what the handlers need from the view service.
type service interface {
    Connect(ctx context.Context, apiKey string) (*domain.Viewer, error)
    Disconnect(ctx context.Context) error
    Preferences(ctx context.Context) (services.PrefsView, error)

    Teams(ctx context.Context) query.Result[[]domain.Team]
    SelectTeam(ctx context.Context, teamID string) error
    SelectedTeam(ctx context.Context) string
    RefreshTeam(ctx context.Context, teamID string) int
    RunWeeklyDigest(ctx context.Context) error

    Overview(ctx context.Context) services.OverviewView
    Projects(ctx context.Context) services.ProjectsView
    ProjectDetail(ctx context.Context, projectID string, f filter.Filter) services.ProjectDetailView
    ExecutiveSummary(ctx context.Context) services.ExecutiveSummaryView
    People(ctx context.Context) services.PeopleView
    Labels(ctx context.Context) services.LabelsView
    TeamStats(ctx context.Context) services.TeamStatsView
    SearchIssues(ctx context.Context, f filter.Filter) services.SearchView
    WeeklyReport(ctx context.Context) services.ReportView
    ExportIssues(ctx context.Context, f filter.Filter) ([]domain.Issue, services.Meta)

    ToggleFavorite(ctx context.Context, projectID string) ([]string, error)
    ToggleFollow(ctx context.Context, projectID string) ([]string, error)
    SetCapacity(ctx context.Context, assigneeID string, capacity float64) (map[string]float64, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
    now func() time.Time
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc, now: time.Now}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

// parseFilter reads the filter dimensions from the query string. Selections
// are comma-separated ids; empty means match-all.
func parseFilter(c *gin.Context, now time.Time) filter.Filter {
    f := filter.Filter{
        LabelIDs:    splitCSV(c.Query("labels")),
        StateTypes:  splitCSV(c.Query("states")),
        AssigneeIDs: splitCSV(c.Query("assignees")),
        Query:       c.Query("q"),
    }
    if preset := c.Query("range"); preset != "" {
        f.CreatedAfter = filter.RangeFromPreset(preset, now)
    }
    if from := c.Query("from"); from != "" {
        if t, err := time.Parse("2006-01-02", from); err == nil { f.CreatedAfter = t }
    }
    if to := c.Query("to"); to != "" {
        if t, err := time.Parse("2006-01-02", to); err == nil { f.CreatedBefore = t.AddDate(0, 0, 1) }
    }
    return f
}

func splitCSV(s string) []string {
    if strings.TrimSpace(s) == "" { return nil }
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}

// ---- session ----

func (h *Handlers) Connect(c *gin.Context) {
    var body struct {
        APIKey string `json:"apiKey"`
    }
    if err := c.ShouldBindJSON(&body); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
        return
    }
    if strings.TrimSpace(body.APIKey) == "" {
        // rejected before any network call
        c.JSON(http.StatusBadRequest, gin.H{"error": "apiKey is required"})
        return
    }
    viewer, err := h.svc.Connect(c.Request.Context(), body.APIKey)
    if err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"viewer": viewer})
}

func (h *Handlers) Disconnect(c *gin.Context) {
    if err := h.svc.Disconnect(c.Request.Context()); err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) GetPrefs(c *gin.Context) {
    view, err := h.svc.Preferences(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, view)
}

// ---- teams ----

func (h *Handlers) Teams(c *gin.Context) {
    r := h.svc.Teams(c.Request.Context())
    if r.Err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": r.Err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"teams": r.Data, "stale": r.Stale})
}

func (h *Handlers) SelectTeam(c *gin.Context) {
    var body struct {
        TeamID string `json:"teamId"`
    }
    if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.TeamID) == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "teamId is required"})
        return
    }
    if err := h.svc.SelectTeam(c.Request.Context(), body.TeamID); err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"selectedTeamId": body.TeamID})
}

// ---- views ----

func (h *Handlers) Overview(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.Overview(c.Request.Context()))
}

func (h *Handlers) Projects(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.Projects(c.Request.Context()))
}

func (h *Handlers) ProjectDetail(c *gin.Context) {
    id := c.Param("id")
    if id == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "project id is required"})
        return
    }
    view := h.svc.ProjectDetail(c.Request.Context(), id, parseFilter(c, h.now()))
    if view.Project == nil && !view.Meta.Stale && len(view.Meta.Errors) == 0 && !view.Meta.Skipped {
        c.JSON(http.StatusNotFound, gin.H{"error": "unknown project"})
        return
    }
    c.JSON(http.StatusOK, view)
}

func (h *Handlers) ExecutiveSummary(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.ExecutiveSummary(c.Request.Context()))
}

func (h *Handlers) People(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.People(c.Request.Context()))
}

func (h *Handlers) Labels(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.Labels(c.Request.Context()))
}

func (h *Handlers) TeamStats(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.TeamStats(c.Request.Context()))
}

func (h *Handlers) Report(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.WeeklyReport(c.Request.Context()))
}

func (h *Handlers) Search(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.SearchIssues(c.Request.Context(), parseFilter(c, h.now())))
}

// ---- export ----

func (h *Handlers) ExportIssuesCSV(c *gin.Context) {
    issues, meta := h.svc.ExportIssues(c.Request.Context(), parseFilter(c, h.now()))
    out, err := export.IssuesCSV(issues)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    name := export.Filename("issues-"+meta.TeamID, "csv", h.now())
    c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
    c.Data(http.StatusOK, "text/csv; charset=utf-8", out)
}

func (h *Handlers) ExportIssuesJSON(c *gin.Context) {
    issues, meta := h.svc.ExportIssues(c.Request.Context(), parseFilter(c, h.now()))
    payload := gin.H{"meta": meta, "issues": issues}
    out, err := export.IssuesJSON(payload)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    name := export.Filename("issues-"+meta.TeamID, "json", h.now())
    c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
    c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// ---- prefs mutations ----

func (h *Handlers) ToggleFavorite(c *gin.Context) {
    ids, err := h.svc.ToggleFavorite(c.Request.Context(), c.Param("id"))
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"favoriteProjects": ids})
}

func (h *Handlers) ToggleFollow(c *gin.Context) {
    ids, err := h.svc.ToggleFollow(c.Request.Context(), c.Param("id"))
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"followedProjects": ids})
}

func (h *Handlers) SetCapacity(c *gin.Context) {
    var body struct {
        AssigneeID string  `json:"assigneeId"`
        Capacity   float64 `json:"capacity"`
    }
    if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.AssigneeID) == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "assigneeId is required"})
        return
    }
    caps, err := h.svc.SetCapacity(c.Request.Context(), body.AssigneeID, body.Capacity)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"capacityOverrides": caps})
}

// ---- refresh ----

func (h *Handlers) Refresh(c *gin.Context) {
    teamID := h.svc.SelectedTeam(c.Request.Context())
    n := h.svc.RefreshTeam(c.Request.Context(), teamID)
    c.JSON(http.StatusAccepted, gin.H{"invalidated": n})
}

func (h *Handlers) RunDigest(c *gin.Context) {
    // detached from the request so client disconnects cannot cancel delivery
    go func() { _ = h.svc.RunWeeklyDigest(context.Background()) }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
