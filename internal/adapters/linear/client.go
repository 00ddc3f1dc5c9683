/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package linear

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/config"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
    "github.com/rs/zerolog"
)

// ErrNoAPIKey is returned when a request is attempted before a key is
// configured, either via env or via the preferences API.
var ErrNoAPIKey = errors.New("linear: no api key configured")

const maxIssuePages = 25 // hard stop so a runaway cursor cannot loop forever

type Client struct {
    baseURL  string
    http     *http.Client
    log      zerolog.Logger
    pageSize int

    mu  sync.RWMutex
    key string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL:  cfg.LinearBaseURL,
        http:     &http.Client{ Timeout: cfg.HTTPTimeout },
        log:      log,
        pageSize: cfg.IssuesPageSize,
        key:      cfg.LinearAPIKey,
    }
}

// SetAPIKey swaps the key at runtime when the user connects a new session.
func (c *Client) SetAPIKey(key string) {
    c.mu.Lock()
    c.key = strings.TrimSpace(key)
    c.mu.Unlock()
}

func (c *Client) apiKey() string {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return c.key
}

type gqlError struct {
    Message    string `json:"message"`
    Extensions struct {
        Code string `json:"code"`
    } `json:"extensions"`
}

type gqlResponse struct {
    Data   json.RawMessage `json:"data"`
    Errors []gqlError      `json:"errors"`
}

func retryable(errs []gqlError) bool {
    for _, e := range errs {
        if e.Extensions.Code == "RATELIMITED" { return true }
    }
    return false
}

// do posts one GraphQL document and decodes data into out.
// Retries 429/5xx and RATELIMITED responses with exponential backoff.
func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
    key := c.apiKey()
    if key == "" { return ErrNoAPIKey }
    payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
    if err != nil { return err }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(string(payload)))
        if err != nil { return err }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("Authorization", key)
        resp, err := c.http.Do(req)
        if err != nil { lastErr = err } else {
            retry, rerr := decodeResponse(resp, out)
            if rerr == nil { return nil }
            if !retry { return rerr }
            lastErr = rerr
        }
        // backoff
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return lastErr
}

func decodeResponse(resp *http.Response, out any) (retry bool, err error) {
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        b, _ := io.ReadAll(resp.Body)
        retry = resp.StatusCode == 429 || resp.StatusCode >= 500
        return retry, fmt.Errorf("linear api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
    }
    var envelope gqlResponse
    if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil { return false, err }
    if len(envelope.Errors) > 0 {
        return retryable(envelope.Errors), fmt.Errorf("linear api: %s", envelope.Errors[0].Message)
    }
    return false, json.Unmarshal(envelope.Data, out)
}

// Wire shapes. Linear returns timestamps as RFC3339 and day-precision dates
// (dueDate, startDate, targetDate) as bare YYYY-MM-DD strings, so the day
// fields decode as strings and get parsed in the mappers.

type wireLabel struct {
    ID    string `json:"id"`
    Name  string `json:"name"`
    Color string `json:"color"`
}

type wireUser struct {
    ID        string `json:"id"`
    Name      string `json:"name"`
    Email     string `json:"email"`
    AvatarURL string `json:"avatarUrl"`
    Active    *bool  `json:"active"`
}

type wireIssue struct {
    ID          string     `json:"id"`
    Identifier  string     `json:"identifier"`
    Title       string     `json:"title"`
    Priority    float64    `json:"priority"`
    Estimate    *float64   `json:"estimate"`
    CreatedAt   time.Time  `json:"createdAt"`
    UpdatedAt   *time.Time `json:"updatedAt"`
    StartedAt   *time.Time `json:"startedAt"`
    CompletedAt *time.Time `json:"completedAt"`
    DueDate     string     `json:"dueDate"`
    State       *struct {
        ID   string `json:"id"`
        Name string `json:"name"`
        Type string `json:"type"`
    } `json:"state"`
    Assignee *wireUser `json:"assignee"`
    Labels   *struct {
        Nodes []wireLabel `json:"nodes"`
    } `json:"labels"`
    Project *struct {
        ID   string `json:"id"`
        Name string `json:"name"`
    } `json:"project"`
    ProjectMilestone *struct {
        ID   string `json:"id"`
        Name string `json:"name"`
    } `json:"projectMilestone"`
}

type wireProject struct {
    ID          string     `json:"id"`
    Name        string     `json:"name"`
    Description string     `json:"description"`
    State       string     `json:"state"`
    Progress    *float64   `json:"progress"`
    StartDate   string     `json:"startDate"`
    TargetDate  string     `json:"targetDate"`
    UpdatedAt   *time.Time `json:"updatedAt"`
    Lead        *wireUser  `json:"lead"`
}

type wireMilestone struct {
    ID          string     `json:"id"`
    Name        string     `json:"name"`
    Description string     `json:"description"`
    TargetDate  string     `json:"targetDate"`
    SortOrder   float64    `json:"sortOrder"`
    CompletedAt *time.Time `json:"completedAt"`
}

func parseDay(s string) *time.Time {
    s = strings.TrimSpace(s)
    if s == "" { return nil }
    t, err := time.Parse("2006-01-02", s)
    if err != nil { return nil }
    return &t
}

// normalizeProgress enforces the 0..1 contract. Out-of-range values clamp;
// no unit guessing happens downstream of the adapter.
func normalizeProgress(p *float64) *float64 {
    if p == nil { return nil }
    v := *p
    if v < 0 { v = 0 }
    if v > 1 { v = 1 }
    return &v
}

func mapUser(w *wireUser) *domain.User {
    if w == nil { return nil }
    active := true
    if w.Active != nil { active = *w.Active }
    return &domain.User{ID: w.ID, Name: w.Name, Email: w.Email, AvatarURL: w.AvatarURL, Active: active}
}

func mapIssue(w wireIssue) domain.Issue {
    out := domain.Issue{
        ID:          w.ID,
        Identifier:  w.Identifier,
        Title:       w.Title,
        Priority:    int(w.Priority),
        Estimate:    w.Estimate,
        CreatedAt:   w.CreatedAt,
        UpdatedAt:   w.UpdatedAt,
        StartedAt:   w.StartedAt,
        CompletedAt: w.CompletedAt,
        DueDate:     parseDay(w.DueDate),
        Assignee:    mapUser(w.Assignee),
    }
    if w.State != nil {
        out.State = domain.WorkflowState{ID: w.State.ID, Name: w.State.Name, Type: w.State.Type}
    }
    if w.Labels != nil {
        for _, l := range w.Labels.Nodes {
            out.Labels = append(out.Labels, domain.Label{ID: l.ID, Name: l.Name, Color: domain.NormalizeColor(l.Color)})
        }
    }
    if w.Project != nil {
        out.Project = &domain.ProjectRef{ID: w.Project.ID, Name: w.Project.Name}
    }
    if w.ProjectMilestone != nil {
        out.Milestone = &domain.MilestoneRef{ID: w.ProjectMilestone.ID, Name: w.ProjectMilestone.Name}
    }
    return out
}

func mapProject(w wireProject) domain.Project {
    return domain.Project{
        ID:          w.ID,
        Name:        w.Name,
        Description: w.Description,
        State:       w.State,
        Progress:    normalizeProgress(w.Progress),
        StartDate:   parseDay(w.StartDate),
        TargetDate:  parseDay(w.TargetDate),
        UpdatedAt:   w.UpdatedAt,
        Lead:        mapUser(w.Lead),
    }
}

func (c *Client) Viewer(ctx context.Context) (*domain.Viewer, error) {
    var data struct {
        Viewer *domain.Viewer `json:"viewer"`
    }
    if err := c.do(ctx, queryViewer, nil, &data); err != nil { return nil, err }
    if data.Viewer == nil { return nil, errors.New("linear: empty viewer") }
    return data.Viewer, nil
}

func (c *Client) Teams(ctx context.Context) ([]domain.Team, error) {
    var data struct {
        Teams struct {
            Nodes []domain.Team `json:"nodes"`
        } `json:"teams"`
    }
    if err := c.do(ctx, queryTeams, nil, &data); err != nil { return nil, err }
    return data.Teams.Nodes, nil
}

func (c *Client) TeamProjects(ctx context.Context, teamID string) ([]domain.Project, error) {
    if teamID == "" { return nil, errors.New("linear: empty team id") }
    var data struct {
        Team *struct {
            Projects struct {
                Nodes []wireProject `json:"nodes"`
            } `json:"projects"`
        } `json:"team"`
    }
    if err := c.do(ctx, queryTeamProjects, map[string]any{"teamId": teamID}, &data); err != nil { return nil, err }
    if data.Team == nil { return nil, fmt.Errorf("linear: unknown team %s", teamID) }
    out := make([]domain.Project, 0, len(data.Team.Projects.Nodes))
    for _, p := range data.Team.Projects.Nodes { out = append(out, mapProject(p)) }
    return out, nil
}

// TeamIssues walks the cursor until the API reports no next page.
func (c *Client) TeamIssues(ctx context.Context, teamID string) ([]domain.Issue, error) {
    if teamID == "" { return nil, errors.New("linear: empty team id") }
    var out []domain.Issue
    after := ""
    for page := 0; page < maxIssuePages; page++ {
        vars := map[string]any{"teamId": teamID, "first": c.pageSize}
        if after != "" { vars["after"] = after }
        var data struct {
            Team *struct {
                Issues struct {
                    PageInfo struct {
                        HasNextPage bool   `json:"hasNextPage"`
                        EndCursor   string `json:"endCursor"`
                    } `json:"pageInfo"`
                    Nodes []wireIssue `json:"nodes"`
                } `json:"issues"`
            } `json:"team"`
        }
        if err := c.do(ctx, queryTeamIssues, vars, &data); err != nil { return nil, err }
        if data.Team == nil { return nil, fmt.Errorf("linear: unknown team %s", teamID) }
        for _, n := range data.Team.Issues.Nodes { out = append(out, mapIssue(n)) }
        if !data.Team.Issues.PageInfo.HasNextPage { return out, nil }
        after = data.Team.Issues.PageInfo.EndCursor
    }
    c.log.Warn().Str("team", teamID).Int("issues", len(out)).Msg("issue pagination hit page cap")
    return out, nil
}

func (c *Client) WorkspaceUsers(ctx context.Context) ([]domain.User, error) {
    var data struct {
        Users struct {
            Nodes []wireUser `json:"nodes"`
        } `json:"users"`
    }
    if err := c.do(ctx, queryWorkspaceUsers, nil, &data); err != nil { return nil, err }
    out := make([]domain.User, 0, len(data.Users.Nodes))
    for _, u := range data.Users.Nodes {
        if m := mapUser(&u); m != nil { out = append(out, *m) }
    }
    return out, nil
}

// ProjectMilestones returns a project's milestones ordered by sortOrder plus
// a thin issue list (state and milestone link only) for completion rates.
func (c *Client) ProjectMilestones(ctx context.Context, projectID string) ([]domain.Milestone, []domain.Issue, error) {
    if projectID == "" { return nil, nil, errors.New("linear: empty project id") }
    var data struct {
        Project *struct {
            ProjectMilestones struct {
                Nodes []wireMilestone `json:"nodes"`
            } `json:"projectMilestones"`
            Issues struct {
                Nodes []wireIssue `json:"nodes"`
            } `json:"issues"`
        } `json:"project"`
    }
    if err := c.do(ctx, queryProjectMilestones, map[string]any{"projectId": projectID}, &data); err != nil { return nil, nil, err }
    if data.Project == nil { return nil, nil, fmt.Errorf("linear: unknown project %s", projectID) }
    ms := make([]domain.Milestone, 0, len(data.Project.ProjectMilestones.Nodes))
    for _, m := range data.Project.ProjectMilestones.Nodes {
        ms = append(ms, domain.Milestone{
            ID:          m.ID,
            Name:        m.Name,
            Description: m.Description,
            TargetDate:  parseDay(m.TargetDate),
            SortOrder:   m.SortOrder,
            CompletedAt: m.CompletedAt,
        })
    }
    issues := make([]domain.Issue, 0, len(data.Project.Issues.Nodes))
    for _, n := range data.Project.Issues.Nodes { issues = append(issues, mapIssue(n)) }
    return ms, issues, nil
}
