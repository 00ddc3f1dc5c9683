/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package prefs

import (
    "context"
    "fmt"
    "path/filepath"
    "sync"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
    t.Helper()
    s, err := Open(context.Background(), filepath.Join(t.TempDir(), "prefs.db"))
    require.NoError(t, err)
    t.Cleanup(func() { _ = s.Close() })
    return s
}

func TestAPIKeyRoundTrip(t *testing.T) {
    s := openTemp(t)
    ctx := context.Background()

    key, err := s.APIKey(ctx)
    require.NoError(t, err)
    assert.Empty(t, key)

    require.NoError(t, s.SetAPIKey(ctx, "lin_api_xxx"))
    key, err = s.APIKey(ctx)
    require.NoError(t, err)
    assert.Equal(t, "lin_api_xxx", key)

    assert.Error(t, s.SetAPIKey(ctx, "   "))
}

func TestClearSessionKeepsFollows(t *testing.T) {
    s := openTemp(t)
    ctx := context.Background()
    require.NoError(t, s.SetAPIKey(ctx, "k"))
    require.NoError(t, s.SetSelectedTeam(ctx, "team-1"))
    _, err := s.ToggleFollow(ctx, "p1")
    require.NoError(t, err)

    require.NoError(t, s.ClearSession(ctx))

    key, _ := s.APIKey(ctx)
    team, _ := s.SelectedTeam(ctx)
    assert.Empty(t, key)
    assert.Empty(t, team)

    follows, err := s.FollowedProjects(ctx)
    require.NoError(t, err)
    assert.Equal(t, []string{"p1"}, follows)
}

func TestToggleFavorite(t *testing.T) {
    s := openTemp(t)
    ctx := context.Background()

    favs, err := s.ToggleFavorite(ctx, "p1")
    require.NoError(t, err)
    assert.Equal(t, []string{"p1"}, favs)

    favs, err = s.ToggleFavorite(ctx, "p2")
    require.NoError(t, err)
    assert.Equal(t, []string{"p1", "p2"}, favs)

    // second toggle removes
    favs, err = s.ToggleFavorite(ctx, "p1")
    require.NoError(t, err)
    assert.Equal(t, []string{"p2"}, favs)

    _, err = s.ToggleFavorite(ctx, "")
    assert.Error(t, err)
}

func TestLastWriterWins(t *testing.T) {
    s := openTemp(t)
    ctx := context.Background()
    require.NoError(t, s.SetSelectedTeam(ctx, "a"))
    require.NoError(t, s.SetSelectedTeam(ctx, "b"))
    team, err := s.SelectedTeam(ctx)
    require.NoError(t, err)
    assert.Equal(t, "b", team)
}

func TestCapacityOverrides(t *testing.T) {
    s := openTemp(t)
    ctx := context.Background()

    m, err := s.CapacityOverrides(ctx)
    require.NoError(t, err)
    assert.Empty(t, m)

    m, err = s.SetCapacityOverride(ctx, "u1", 8)
    require.NoError(t, err)
    assert.Equal(t, 8.0, m["u1"])

    // zero removes the override
    m, err = s.SetCapacityOverride(ctx, "u1", 0)
    require.NoError(t, err)
    assert.NotContains(t, m, "u1")
}

func TestMalformedStoredJSONDefaults(t *testing.T) {
    s := openTemp(t)
    ctx := context.Background()
    require.NoError(t, s.set(ctx, keyFollowedProjects, "{not json"))
    follows, err := s.FollowedProjects(ctx)
    require.NoError(t, err)
    assert.Empty(t, follows)
}

func TestConcurrentTogglesKeepEveryMembership(t *testing.T) {
    s := openTemp(t)
    ctx := context.Background()
    ids := []string{"p1", "p2", "p3", "p4", "p5"}

    var wg sync.WaitGroup
    for _, id := range ids {
        wg.Add(1)
        go func(id string) {
            defer wg.Done()
            _, err := s.ToggleFollow(ctx, id)
            assert.NoError(t, err)
        }(id)
    }
    wg.Wait()

    follows, err := s.FollowedProjects(ctx)
    require.NoError(t, err)
    assert.ElementsMatch(t, ids, follows)
}

func TestConcurrentCapacityOverridesKeepEveryEntry(t *testing.T) {
    s := openTemp(t)
    ctx := context.Background()

    var wg sync.WaitGroup
    for i := 1; i <= 5; i++ {
        wg.Add(1)
        go func(n int) {
            defer wg.Done()
            _, err := s.SetCapacityOverride(ctx, fmt.Sprintf("u%d", n), float64(n))
            assert.NoError(t, err)
        }(i)
    }
    wg.Wait()

    m, err := s.CapacityOverrides(ctx)
    require.NoError(t, err)
    assert.Len(t, m, 5)
    assert.Equal(t, 3.0, m["u3"])
}
