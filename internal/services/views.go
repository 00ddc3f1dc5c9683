/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "sort"
    "time"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/domain"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/filter"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/metrics"
    "github.com/ahnjh51-tft/linear-pulse-viz/internal/query"
)

// Meta rides along with every view payload so the client can tell fresh
// data from stale and see which sides of the fetch degraded.
type Meta struct {
    TeamID    string    `json:"teamId,omitempty"`
    Stale     bool      `json:"stale"`
    FetchedAt time.Time `json:"fetchedAt"`
    Skipped   bool      `json:"skipped,omitempty"`
    Errors    []string  `json:"errors,omitempty"`
}

func meta[T any](teamID string, results ...query.Result[T]) Meta {
    m := Meta{TeamID: teamID}
    for _, r := range results {
        if r.Stale { m.Stale = true }
        if r.Skipped { m.Skipped = true }
        if r.Err != nil { m.Errors = append(m.Errors, r.Err.Error()) }
        if m.FetchedAt.IsZero() || (!r.FetchedAt.IsZero() && r.FetchedAt.Before(m.FetchedAt)) {
            m.FetchedAt = r.FetchedAt
        }
    }
    return m
}

func mergeMeta(ms ...Meta) Meta {
    out := Meta{}
    for _, m := range ms {
        if m.TeamID != "" { out.TeamID = m.TeamID }
        if m.Stale { out.Stale = true }
        if m.Skipped { out.Skipped = true }
        out.Errors = append(out.Errors, m.Errors...)
        if out.FetchedAt.IsZero() || (!m.FetchedAt.IsZero() && m.FetchedAt.Before(out.FetchedAt)) {
            out.FetchedAt = m.FetchedAt
        }
    }
    return out
}

type OverviewView struct {
    Meta           Meta                `json:"meta"`
    KPIs           map[string]float64  `json:"kpis"`
    IssueStates    map[string]int      `json:"issueStates"`
    ProjectStates  map[string]int      `json:"projectStates"`
    RecentProjects []ProjectCard       `json:"recentProjects"`
    Velocity       metrics.Velocity    `json:"velocity"`
}

type ProjectCard struct {
    ID         string     `json:"id"`
    Name       string     `json:"name"`
    State      string     `json:"state"`
    Progress   int        `json:"progress"`
    IssueCount int        `json:"issueCount"`
    AlertCount int        `json:"alertCount"`
    TargetDate *time.Time `json:"targetDate,omitempty"`
    UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
    Lead       string     `json:"lead,omitempty"`
    Favorite   bool       `json:"favorite"`
    Followed   bool       `json:"followed"`
}

// Overview is the landing view: headline KPIs plus project and issue state
// charts for the selected team.
func (s *Service) Overview(ctx context.Context) OverviewView {
    teamID := s.SelectedTeam(ctx)
    pr, ir := s.teamData(ctx, teamID)
    now := s.now()

    issues := ir.Data
    progress := metrics.ProjectProgress(issues, nil, s.strategy)
    velocity := metrics.VelocityStats(issues, 0, now)

    projectStates := map[string]int{}
    for _, p := range pr.Data { projectStates[p.State]++ }

    cards := s.projectCards(ctx, pr.Data, issuesByProject(issues), now)
    sort.SliceStable(cards, func(a, b int) bool {
        au, bu := cards[a].UpdatedAt, cards[b].UpdatedAt
        if au == nil { return false }
        if bu == nil { return true }
        return au.After(*bu)
    })
    if len(cards) > 5 { cards = cards[:5] }

    return OverviewView{
        Meta:           mergeMeta(meta(teamID, pr), meta(teamID, ir)),
        KPIs:           metrics.KPIMap(issues, velocity, progress),
        IssueStates:    metrics.StateDistribution(issues),
        ProjectStates:  projectStates,
        RecentProjects: cards,
        Velocity:       velocity,
    }
}

type ProjectsView struct {
    Meta     Meta          `json:"meta"`
    Projects []ProjectCard `json:"projects"`
}

// Projects lists every project of the team as a card.
func (s *Service) Projects(ctx context.Context) ProjectsView {
    teamID := s.SelectedTeam(ctx)
    pr, ir := s.teamData(ctx, teamID)
    cards := s.projectCards(ctx, pr.Data, issuesByProject(ir.Data), s.now())
    return ProjectsView{Meta: mergeMeta(meta(teamID, pr), meta(teamID, ir)), Projects: cards}
}

func (s *Service) projectCards(ctx context.Context, projects []domain.Project, grouped map[string][]domain.Issue, now time.Time) []ProjectCard {
    favs := stringSet(s.favoriteIDs(ctx))
    follows := stringSet(s.followedIDs(ctx))
    cards := make([]ProjectCard, 0, len(projects))
    for _, p := range projects {
        mine := grouped[p.ID]
        progress := metrics.ProjectProgress(mine, nil, s.strategy)
        alerts := metrics.GuardrailAlerts(p, mine, nil, progress, s.thresholds, now)
        card := ProjectCard{
            ID:         p.ID,
            Name:       p.Name,
            State:      p.State,
            Progress:   progress,
            IssueCount: len(mine),
            AlertCount: len(alerts),
            TargetDate: p.TargetDate,
            UpdatedAt:  p.UpdatedAt,
            Favorite:   favs[p.ID],
            Followed:   follows[p.ID],
        }
        if p.Lead != nil { card.Lead = p.Lead.Name }
        cards = append(cards, card)
    }
    return cards
}

type ProjectDetailView struct {
    Meta       Meta                      `json:"meta"`
    Project    *domain.Project           `json:"project,omitempty"`
    Progress   int                       `json:"progress"`
    // Aggregates are computed over the project's full issue set; Issues is
    // the filtered table. Both are labeled so the client cannot conflate
    // them.
    Aggregates ProjectAggregates         `json:"aggregates"`
    Issues     []domain.Issue            `json:"issues"`
    FilteredBy string                    `json:"filteredBy,omitempty"`
    Milestones []metrics.MilestoneMetric `json:"milestones"`
    Alerts     []metrics.Alert           `json:"alerts"`
    Burndown   metrics.Series            `json:"burndown"`
    Throughput metrics.Series            `json:"throughput"`
}

type ProjectAggregates struct {
    States    map[string]int        `json:"states"`
    Labels    []metrics.LabelCount  `json:"labels"`
    Workload  []metrics.AssigneeLoad `json:"workload"`
    Velocity  metrics.Velocity      `json:"velocity"`
    Blocked   float64               `json:"blockedRatio"`
    IssueCount int                  `json:"issueCount"`
}

// ProjectDetail assembles the full drill-down for one project. The filter
// narrows only the issue table; aggregates always cover the whole project.
func (s *Service) ProjectDetail(ctx context.Context, projectID string, f filter.Filter) ProjectDetailView {
    teamID := s.SelectedTeam(ctx)
    pr, ir := s.teamData(ctx, teamID)
    md := s.milestones(ctx, projectID)
    now := s.now()

    var project *domain.Project
    for idx := range pr.Data {
        if pr.Data[idx].ID == projectID { project = &pr.Data[idx]; break }
    }
    scope := issuesByProject(ir.Data)[projectID]

    ms := metrics.MilestoneMetrics(md.Data.Milestones, md.Data.Issues, projectStart(project), now)
    progress := metrics.ProjectProgress(scope, ms, s.strategy)

    var alerts []metrics.Alert
    if project != nil {
        alerts = metrics.GuardrailAlerts(*project, scope, ms, progress, s.thresholds, now)
    }

    if f.SearchText == nil { f.SearchText = metrics.SearchText }
    filtered := f.Apply(scope)
    filteredBy := ""
    if !f.Empty() { filteredBy = fmt.Sprintf("%d of %d issues", len(filtered), len(scope)) }

    return ProjectDetailView{
        Meta:     mergeMeta(meta(teamID, pr), meta(teamID, ir), meta(teamID, md)),
        Project:  project,
        Progress: progress,
        Aggregates: ProjectAggregates{
            States:     metrics.StateDistribution(scope),
            Labels:     metrics.LabelDistribution(scope),
            Workload:   metrics.WorkloadByAssignee(scope),
            Velocity:   metrics.VelocityStats(scope, 0, now),
            Blocked:    metrics.BlockedRatio(scope),
            IssueCount: len(scope),
        },
        Issues:     filtered,
        FilteredBy: filteredBy,
        Milestones: ms,
        Alerts:     alerts,
        Burndown:   metrics.BurndownSeries(scope, 8, now),
        Throughput: metrics.ThroughputSeries(scope, 8, now),
    }
}

func projectStart(p *domain.Project) *time.Time {
    if p == nil { return nil }
    return p.StartDate
}

type ExecutiveSummaryView struct {
    Meta         Meta                  `json:"meta"`
    KPIs         map[string]float64    `json:"kpis"`
    States       map[string]int        `json:"states"`
    GanttLanes   []GanttLane           `json:"ganttLanes"`
    IssueCounts  []metrics.DayCount    `json:"issueCounts"`
    Milestones   []MilestoneProgress   `json:"milestones"`
    Alerts       []metrics.Alert       `json:"alerts"`
}

type GanttLane struct {
    ProjectID  string     `json:"projectId"`
    Name       string     `json:"name"`
    StartDate  *time.Time `json:"startDate,omitempty"`
    TargetDate *time.Time `json:"targetDate,omitempty"`
    Progress   int        `json:"progress"`
}

type MilestoneProgress struct {
    ProjectID   string                    `json:"projectId"`
    ProjectName string                    `json:"projectName"`
    Milestones  []metrics.MilestoneMetric `json:"milestones"`
}

// ExecutiveSummary spans the followed projects (all team projects when
// nothing is followed): timeline lanes, milestone progress, alerts, and the
// issue-count series.
func (s *Service) ExecutiveSummary(ctx context.Context) ExecutiveSummaryView {
    teamID := s.SelectedTeam(ctx)
    pr, ir := s.teamData(ctx, teamID)
    now := s.now()

    followed := stringSet(s.followedIDs(ctx))
    projects := pr.Data
    if len(followed) > 0 {
        kept := projects[:0:0]
        for _, p := range projects {
            if followed[p.ID] { kept = append(kept, p) }
        }
        if len(kept) > 0 { projects = kept }
    }

    grouped := issuesByProject(ir.Data)
    scoped := make([]domain.Issue, 0, len(ir.Data))
    lanes := make([]GanttLane, 0, len(projects))
    progressTotal := 0
    var milestones []MilestoneProgress
    var alerts []metrics.Alert
    metas := []Meta{meta(teamID, pr), meta(teamID, ir)}
    for _, p := range projects {
        mine := grouped[p.ID]
        scoped = append(scoped, mine...)
        md := s.milestones(ctx, p.ID)
        metas = append(metas, meta(teamID, md))
        ms := metrics.MilestoneMetrics(md.Data.Milestones, md.Data.Issues, p.StartDate, now)
        progress := metrics.ProjectProgress(mine, ms, s.strategy)
        progressTotal += progress
        lanes = append(lanes, GanttLane{
            ProjectID: p.ID, Name: p.Name,
            StartDate: p.StartDate, TargetDate: p.TargetDate,
            Progress: progress,
        })
        if len(ms) > 0 {
            milestones = append(milestones, MilestoneProgress{ProjectID: p.ID, ProjectName: p.Name, Milestones: ms})
        }
        alerts = append(alerts, metrics.GuardrailAlerts(p, mine, ms, progress, s.thresholds, now)...)
    }

    velocity := metrics.VelocityStats(scoped, 0, now)
    avgProgress := 0
    if len(projects) > 0 { avgProgress = progressTotal / len(projects) }
    kpis := metrics.KPIMap(scoped, velocity, avgProgress)
    kpis["projects_total"] = float64(len(projects))
    kpis["alerts_total"] = float64(len(alerts))

    return ExecutiveSummaryView{
        Meta:        mergeMeta(metas...),
        KPIs:        kpis,
        States:      metrics.StateDistribution(scoped),
        GanttLanes:  lanes,
        IssueCounts: metrics.IssueCountSeries(scoped),
        Milestones:  milestones,
        Alerts:      alerts,
    }
}

type PersonLoad struct {
    metrics.AssigneeLoad
    AvatarURL   string  `json:"avatarUrl,omitempty"`
    Capacity    float64 `json:"capacity"`
    Utilization int     `json:"utilization"` // percent of capacity, clamped
}

type PeopleView struct {
    Meta   Meta         `json:"meta"`
    People []PersonLoad `json:"people"`
}

// People reports per-assignee workload against capacity. Capacity comes
// from stored overrides, falling back to the configured default.
func (s *Service) People(ctx context.Context) PeopleView {
    teamID := s.SelectedTeam(ctx)
    _, ir := s.teamData(ctx, teamID)
    ur := s.users(ctx)

    caps, err := s.prefs.CapacityOverrides(ctx)
    if err != nil {
        s.log.Warn().Err(err).Msg("cannot read capacity overrides")
        caps = map[string]float64{}
    }
    avatars := map[string]string{}
    for _, u := range ur.Data { avatars[u.ID] = u.AvatarURL }

    loads := metrics.WorkloadByAssignee(ir.Data)
    people := make([]PersonLoad, 0, len(loads))
    for _, l := range loads {
        capacity := s.cfg.DefaultCapacity
        if v, ok := caps[l.AssigneeID]; ok { capacity = v }
        util := 0
        if capacity > 0 { util = int(100 * l.PointsSum / capacity) }
        if util < 0 { util = 0 }
        if util > 100 { util = 100 }
        people = append(people, PersonLoad{
            AssigneeLoad: l,
            AvatarURL:    avatars[l.AssigneeID],
            Capacity:     capacity,
            Utilization:  util,
        })
    }
    return PeopleView{Meta: mergeMeta(meta(teamID, ir), meta(teamID, ur)), People: people}
}

type LabelsView struct {
    Meta   Meta                 `json:"meta"`
    Labels []metrics.LabelCount `json:"labels"`
}

func (s *Service) Labels(ctx context.Context) LabelsView {
    teamID := s.SelectedTeam(ctx)
    ir := s.issues(ctx, teamID)
    return LabelsView{Meta: meta(teamID, ir), Labels: metrics.LabelDistribution(ir.Data)}
}

type TeamStatsView struct {
    Meta       Meta               `json:"meta"`
    KPIs       map[string]float64 `json:"kpis"`
    States     map[string]int     `json:"states"`
    Velocity   metrics.Velocity   `json:"velocity"`
    Throughput metrics.Series     `json:"throughput"`
    Burndown   metrics.Series     `json:"burndown"`
}

func (s *Service) TeamStats(ctx context.Context) TeamStatsView {
    teamID := s.SelectedTeam(ctx)
    ir := s.issues(ctx, teamID)
    now := s.now()
    velocity := metrics.VelocityStats(ir.Data, 0, now)
    progress := metrics.ProjectProgress(ir.Data, nil, s.strategy)
    return TeamStatsView{
        Meta:       meta(teamID, ir),
        KPIs:       metrics.KPIMap(ir.Data, velocity, progress),
        States:     metrics.StateDistribution(ir.Data),
        Velocity:   velocity,
        Throughput: metrics.ThroughputSeries(ir.Data, 8, now),
        Burndown:   metrics.BurndownSeries(ir.Data, 8, now),
    }
}

type SearchView struct {
    Meta   Meta           `json:"meta"`
    Issues []domain.Issue `json:"issues"`
}

// SearchIssues filters the team's cached issues. Each call also schedules a
// debounced revalidation so bursts of keystrokes trigger one refresh.
func (s *Service) SearchIssues(ctx context.Context, f filter.Filter) SearchView {
    teamID := s.SelectedTeam(ctx)
    ir := s.issues(ctx, teamID)
    if f.SearchText == nil { f.SearchText = metrics.SearchText }
    s.ScheduleRevalidate(teamID)
    return SearchView{Meta: meta(teamID, ir), Issues: f.Apply(ir.Data)}
}

// ExportIssues returns the filtered issue table for the export handlers.
func (s *Service) ExportIssues(ctx context.Context, f filter.Filter) ([]domain.Issue, Meta) {
    teamID := s.SelectedTeam(ctx)
    ir := s.issues(ctx, teamID)
    if f.SearchText == nil { f.SearchText = metrics.SearchText }
    return f.Apply(ir.Data), meta(teamID, ir)
}

func (s *Service) favoriteIDs(ctx context.Context) []string {
    ids, err := s.prefs.FavoriteProjects(ctx)
    if err != nil { s.log.Warn().Err(err).Msg("cannot read favorites"); return nil }
    return ids
}

func (s *Service) followedIDs(ctx context.Context) []string {
    ids, err := s.prefs.FollowedProjects(ctx)
    if err != nil { s.log.Warn().Err(err).Msg("cannot read follows"); return nil }
    return ids
}
