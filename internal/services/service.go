/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "strings"
    "sync"
    "time"

    "github.com/rs/zerolog"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/config"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/filter"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/metrics"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/prefs"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/query"
)

type LinearClient interface {
    Viewer(ctx context.Context) (*domain.Viewer, error)
    Teams(ctx context.Context) ([]domain.Team, error)
    TeamProjects(ctx context.Context, teamID string) ([]domain.Project, error)
    TeamIssues(ctx context.Context, teamID string) ([]domain.Issue, error)
    WorkspaceUsers(ctx context.Context) ([]domain.User, error)
    ProjectMilestones(ctx context.Context, projectID string) ([]domain.Milestone, []domain.Issue, error)
    SetAPIKey(key string)
}

type LLM interface {
    Configured() bool
    Summarize(ctx context.Context, kpis map[string]float64, findings []map[string]any) (string, error)
}

type Notifier interface {
    Configured() bool
    SendMessage(ctx context.Context, chatID int64, text string) error
}

type Service struct {
    cfg    config.Config
    log    zerolog.Logger
    linear LinearClient
    llm    LLM
    tg     Notifier
    cache  *query.Cache
    prefs  *prefs.Store

    strategy   string
    thresholds metrics.Thresholds
    debounce   *filter.Debouncer
    now        func() time.Time
}

func New(cfg config.Config, log zerolog.Logger, linear LinearClient, llm LLM, tg Notifier, cache *query.Cache, store *prefs.Store) *Service {
    strategy := cfg.ProgressStrategy
    switch strategy {
    case metrics.StrategyRatio, metrics.StrategyWeighted, metrics.StrategyMilestone:
    default:
        log.Warn().Str("strategy", strategy).Msg("unknown progress strategy, using weighted")
        strategy = metrics.StrategyWeighted
    }
    return &Service{
        cfg:      cfg,
        log:      log,
        linear:   linear,
        llm:      llm,
        tg:       tg,
        cache:    cache,
        prefs:    store,
        strategy: strategy,
        thresholds: metrics.Thresholds{
            BlockedRatio:     cfg.Guardrails.BlockedRatio,
            TargetWindowDays: cfg.Guardrails.TargetWindowDays,
            MinProgress:      cfg.Guardrails.MinProgress,
        },
        debounce: filter.NewDebouncer(filter.DefaultDebounce),
        now:      time.Now,
    }
}

// Bootstrap loads the persisted session at startup: a stored API key
// overrides the env bootstrap key.
func (s *Service) Bootstrap(ctx context.Context) {
    key, err := s.prefs.APIKey(ctx)
    if err != nil {
        s.log.Warn().Err(err).Msg("cannot read stored api key")
        return
    }
    if key != "" { s.linear.SetAPIKey(key) }
}

// Connect validates the key against the remote before persisting anything;
// an empty key is rejected without a network call.
func (s *Service) Connect(ctx context.Context, apiKey string) (*domain.Viewer, error) {
    apiKey = strings.TrimSpace(apiKey)
    if apiKey == "" { return nil, errors.New("api key is required") }
    s.linear.SetAPIKey(apiKey)
    viewer, err := s.linear.Viewer(ctx)
    if err != nil {
        // roll back to whatever was stored
        s.linear.SetAPIKey("")
        s.Bootstrap(ctx)
        return nil, err
    }
    if err := s.prefs.SetAPIKey(ctx, apiKey); err != nil { return nil, err }
    s.cache.Invalidate("")
    return viewer, nil
}

func (s *Service) Disconnect(ctx context.Context) error {
    if err := s.prefs.ClearSession(ctx); err != nil { return err }
    s.linear.SetAPIKey("")
    s.cache.Invalidate("")
    return nil
}

func (s *Service) Teams(ctx context.Context) query.Result[[]domain.Team] {
    return query.Resolve(ctx, s.cache, "teams", s.linear.Teams)
}

func (s *Service) SelectTeam(ctx context.Context, teamID string) error {
    teamID = strings.TrimSpace(teamID)
    if teamID == "" { return errors.New("team id is required") }
    return s.prefs.SetSelectedTeam(ctx, teamID)
}

func (s *Service) SelectedTeam(ctx context.Context) string {
    teamID, err := s.prefs.SelectedTeam(ctx)
    if err != nil {
        s.log.Warn().Err(err).Msg("cannot read selected team")
        return ""
    }
    return teamID
}

func (s *Service) projects(ctx context.Context, teamID string) query.Result[[]domain.Project] {
    if teamID == "" { return query.Skip[[]domain.Project]() }
    return query.Resolve(ctx, s.cache, "team:"+teamID+":projects", func(ctx context.Context) ([]domain.Project, error) {
        return s.linear.TeamProjects(ctx, teamID)
    })
}

func (s *Service) issues(ctx context.Context, teamID string) query.Result[[]domain.Issue] {
    if teamID == "" { return query.Skip[[]domain.Issue]() }
    return query.Resolve(ctx, s.cache, "team:"+teamID+":issues", func(ctx context.Context) ([]domain.Issue, error) {
        return s.linear.TeamIssues(ctx, teamID)
    })
}

func (s *Service) users(ctx context.Context) query.Result[[]domain.User] {
    return query.Resolve(ctx, s.cache, "users", s.linear.WorkspaceUsers)
}

// milestoneData pairs a project's milestones with its thin issue list.
type milestoneData struct {
    Milestones []domain.Milestone
    Issues     []domain.Issue
}

func (s *Service) milestones(ctx context.Context, projectID string) query.Result[milestoneData] {
    if projectID == "" { return query.Skip[milestoneData]() }
    return query.Resolve(ctx, s.cache, "project:"+projectID+":milestones", func(ctx context.Context) (milestoneData, error) {
        ms, issues, err := s.linear.ProjectMilestones(ctx, projectID)
        if err != nil { return milestoneData{}, err }
        return milestoneData{Milestones: ms, Issues: issues}, nil
    })
}

// teamData fetches projects and issues concurrently. Either side can fail
// or be stale on its own; views degrade instead of erroring out.
func (s *Service) teamData(ctx context.Context, teamID string) (query.Result[[]domain.Project], query.Result[[]domain.Issue]) {
    var pr query.Result[[]domain.Project]
    var ir query.Result[[]domain.Issue]
    var wg sync.WaitGroup
    wg.Add(2)
    go func() { defer wg.Done(); pr = s.projects(ctx, teamID) }()
    go func() { defer wg.Done(); ir = s.issues(ctx, teamID) }()
    wg.Wait()
    return pr, ir
}

// RefreshTeam marks every query for the team stale so the next reads
// revalidate. The manual refresh endpoint calls this.
func (s *Service) RefreshTeam(ctx context.Context, teamID string) int {
    if teamID == "" { return 0 }
    n := s.cache.MarkStale("team:" + teamID)
    n += s.cache.MarkStale("project:")
    return n
}

// WarmTeam fetches the team's queries unconditionally, for the cron warmer.
func (s *Service) WarmTeam(ctx context.Context, teamID string) error {
    if teamID == "" { return nil }
    if err := query.Refresh(ctx, s.cache, "team:"+teamID+":projects", func(ctx context.Context) ([]domain.Project, error) {
        return s.linear.TeamProjects(ctx, teamID)
    }); err != nil { return err }
    return query.Refresh(ctx, s.cache, "team:"+teamID+":issues", func(ctx context.Context) ([]domain.Issue, error) {
        return s.linear.TeamIssues(ctx, teamID)
    })
}

// ScheduleRevalidate coalesces bursts of search keystrokes into a single
// cache revalidation for the team's issues.
func (s *Service) ScheduleRevalidate(teamID string) {
    if teamID == "" { return }
    s.debounce.Trigger(func() {
        s.cache.MarkStale("team:" + teamID + ":issues")
    })
}

func (s *Service) ToggleFavorite(ctx context.Context, projectID string) ([]string, error) {
    return s.prefs.ToggleFavorite(ctx, projectID)
}

func (s *Service) ToggleFollow(ctx context.Context, projectID string) ([]string, error) {
    return s.prefs.ToggleFollow(ctx, projectID)
}

func (s *Service) SetCapacity(ctx context.Context, assigneeID string, capacity float64) (map[string]float64, error) {
    return s.prefs.SetCapacityOverride(ctx, assigneeID, capacity)
}

// PrefsView is the stored session state as the client sees it. The API key
// itself never leaves the server, only whether one exists.
type PrefsView struct {
    Connected    bool               `json:"connected"`
    SelectedTeam string             `json:"selectedTeamId,omitempty"`
    Favorites    []string           `json:"favoriteProjects"`
    Follows      []string           `json:"followedProjects"`
    Capacity     map[string]float64 `json:"capacityOverrides"`
}

func (s *Service) Preferences(ctx context.Context) (PrefsView, error) {
    key, err := s.prefs.APIKey(ctx)
    if err != nil { return PrefsView{}, err }
    team, err := s.prefs.SelectedTeam(ctx)
    if err != nil { return PrefsView{}, err }
    favs, err := s.prefs.FavoriteProjects(ctx)
    if err != nil { return PrefsView{}, err }
    follows, err := s.prefs.FollowedProjects(ctx)
    if err != nil { return PrefsView{}, err }
    caps, err := s.prefs.CapacityOverrides(ctx)
    if err != nil { return PrefsView{}, err }
    if favs == nil { favs = []string{} }
    if follows == nil { follows = []string{} }
    return PrefsView{
        Connected:    key != "" || s.cfg.LinearAPIKey != "",
        SelectedTeam: team,
        Favorites:    favs,
        Follows:      follows,
        Capacity:     caps,
    }, nil
}

func issuesByProject(issues []domain.Issue) map[string][]domain.Issue {
    out := map[string][]domain.Issue{}
    for _, i := range issues {
        if i.Project == nil || i.Project.ID == "" { continue }
        out[i.Project.ID] = append(out[i.Project.ID], i)
    }
    return out
}

func stringSet(ids []string) map[string]bool {
    out := make(map[string]bool, len(ids))
    for _, id := range ids { out[id] = true }
    return out
}
