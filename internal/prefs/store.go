/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package prefs

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "strings"
    "sync"

    _ "modernc.org/sqlite"
)

// Store is the dashboard's session state: API key, selected team, followed
// and favorite projects, capacity overrides. One embedded key-value table,
// last writer wins.

const (
    keyAPIKey            = "api_key"
    keySelectedTeam      = "selected_team_id"
    keyFollowedProjects  = "followed_projects"
    keyFavoriteProjects  = "favorite_projects"
    keyCapacityOverrides = "capacity_overrides"
)

type Store struct {
    db *sql.DB
    mu sync.Mutex
}

func Open(ctx context.Context, path string) (*Store, error) {
    if strings.TrimSpace(path) == "" { return nil, errors.New("prefs: empty path") }
    // modernc.org/sqlite driver name is "sqlite".
    db, err := sql.Open("sqlite", path)
    if err != nil { return nil, err }
    pragmas := []string{
        "PRAGMA journal_mode=WAL;",
        "PRAGMA synchronous=NORMAL;",
        "PRAGMA busy_timeout=5000;",
    }
    for _, p := range pragmas {
        if _, err := db.ExecContext(ctx, p); err != nil {
            _ = db.Close()
            return nil, err
        }
    }
    if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS prefs (
        k TEXT PRIMARY KEY,
        v TEXT NOT NULL
    );`); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(ctx context.Context, key string) (string, error) {
    var v string
    err := s.db.QueryRowContext(ctx, `SELECT v FROM prefs WHERE k = ?`, key).Scan(&v)
    if errors.Is(err, sql.ErrNoRows) { return "", nil }
    if err != nil { return "", err }
    return v, nil
}

// write is the raw upsert; callers hold s.mu.
func (s *Store) write(ctx context.Context, key, value string) error {
    _, err := s.db.ExecContext(ctx,
        `INSERT INTO prefs (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, value)
    return err
}

func (s *Store) set(ctx context.Context, key, value string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.write(ctx, key, value)
}

func (s *Store) delete(ctx context.Context, key string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    _, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE k = ?`, key)
    return err
}

func (s *Store) APIKey(ctx context.Context) (string, error) { return s.get(ctx, keyAPIKey) }

func (s *Store) SetAPIKey(ctx context.Context, key string) error {
    key = strings.TrimSpace(key)
    if key == "" { return errors.New("prefs: empty api key") }
    return s.set(ctx, keyAPIKey, key)
}

// ClearSession removes the key and the team selection, the disconnect
// semantics of the session endpoint. Follows and favorites survive.
func (s *Store) ClearSession(ctx context.Context) error {
    if err := s.delete(ctx, keyAPIKey); err != nil { return err }
    return s.delete(ctx, keySelectedTeam)
}

func (s *Store) SelectedTeam(ctx context.Context) (string, error) { return s.get(ctx, keySelectedTeam) }

func (s *Store) SetSelectedTeam(ctx context.Context, teamID string) error {
    teamID = strings.TrimSpace(teamID)
    if teamID == "" { return errors.New("prefs: empty team id") }
    return s.set(ctx, keySelectedTeam, teamID)
}

func (s *Store) getIDList(ctx context.Context, key string) ([]string, error) {
    raw, err := s.get(ctx, key)
    if err != nil { return nil, err }
    if raw == "" { return nil, nil }
    var ids []string
    if err := json.Unmarshal([]byte(raw), &ids); err != nil {
        // malformed stored value defaults to empty, never errors the caller
        return nil, nil
    }
    return ids, nil
}

// setIDList serializes under s.mu held by the caller.
func (s *Store) setIDList(ctx context.Context, key string, ids []string) error {
    if ids == nil { ids = []string{} }
    raw, err := json.Marshal(ids)
    if err != nil { return err }
    return s.write(ctx, key, string(raw))
}

func (s *Store) FollowedProjects(ctx context.Context) ([]string, error) {
    return s.getIDList(ctx, keyFollowedProjects)
}

func (s *Store) FavoriteProjects(ctx context.Context) ([]string, error) {
    return s.getIDList(ctx, keyFavoriteProjects)
}

// ToggleFollow flips membership and returns the new list.
func (s *Store) ToggleFollow(ctx context.Context, projectID string) ([]string, error) {
    return s.toggle(ctx, keyFollowedProjects, projectID)
}

// ToggleFavorite flips membership and returns the new list.
func (s *Store) ToggleFavorite(ctx context.Context, projectID string) ([]string, error) {
    return s.toggle(ctx, keyFavoriteProjects, projectID)
}

func (s *Store) toggle(ctx context.Context, key, projectID string) ([]string, error) {
    projectID = strings.TrimSpace(projectID)
    if projectID == "" { return nil, errors.New("prefs: empty project id") }
    // the read-modify-write must be one critical section or concurrent
    // toggles drop each other's membership changes
    s.mu.Lock()
    defer s.mu.Unlock()
    ids, err := s.getIDList(ctx, key)
    if err != nil { return nil, err }
    next := make([]string, 0, len(ids)+1)
    removed := false
    for _, id := range ids {
        if id == projectID { removed = true; continue }
        next = append(next, id)
    }
    if !removed { next = append(next, projectID) }
    if err := s.setIDList(ctx, key, next); err != nil { return nil, err }
    return next, nil
}

// CapacityOverrides maps assignee id to points per week.
func (s *Store) CapacityOverrides(ctx context.Context) (map[string]float64, error) {
    raw, err := s.get(ctx, keyCapacityOverrides)
    if err != nil { return nil, err }
    out := map[string]float64{}
    if raw == "" { return out, nil }
    if err := json.Unmarshal([]byte(raw), &out); err != nil { return map[string]float64{}, nil }
    return out, nil
}

// SetCapacityOverride upserts one assignee's capacity. A non-positive value
// removes the override.
func (s *Store) SetCapacityOverride(ctx context.Context, assigneeID string, capacity float64) (map[string]float64, error) {
    assigneeID = strings.TrimSpace(assigneeID)
    if assigneeID == "" { return nil, errors.New("prefs: empty assignee id") }
    s.mu.Lock()
    defer s.mu.Unlock()
    m, err := s.CapacityOverrides(ctx)
    if err != nil { return nil, err }
    if capacity > 0 { m[assigneeID] = capacity } else { delete(m, assigneeID) }
    raw, err := json.Marshal(m)
    if err != nil { return nil, err }
    if err := s.write(ctx, keyCapacityOverrides, string(raw)); err != nil { return nil, err }
    return m, nil
}
