/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/config"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc service) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(RequestID())
    r.Use(RequestLogger(log))

    h := NewHandlers(cfg, log, svc)

    r.GET("/healthz", h.Healthz)

    api := r.Group("/api")
    {
        api.POST("/session", h.Connect)
        api.DELETE("/session", h.Disconnect)

        api.GET("/teams", h.Teams)
        api.POST("/teams/select", h.SelectTeam)

        api.GET("/views/overview", h.Overview)
        api.GET("/views/projects", h.Projects)
        api.GET("/views/projects/:id", h.ProjectDetail)
        api.GET("/views/executive", h.ExecutiveSummary)
        api.GET("/views/people", h.People)
        api.GET("/views/labels", h.Labels)
        api.GET("/views/team", h.TeamStats)
        api.GET("/views/report", h.Report)

        api.GET("/search", h.Search)

        api.GET("/export/issues.csv", h.ExportIssuesCSV)
        api.GET("/export/issues.json", h.ExportIssuesJSON)

        api.GET("/prefs", h.GetPrefs)
        api.POST("/prefs/favorites/:id", h.ToggleFavorite)
        api.POST("/prefs/follows/:id", h.ToggleFollow)
        api.PUT("/prefs/capacity", h.SetCapacity)

        api.POST("/refresh", h.Refresh)
        api.POST("/digest/run", h.RunDigest)
    }

    return r
}
