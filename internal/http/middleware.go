/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "time"

    "github.com/gin-gonic/gin"
    "github.com/google/uuid"
    "github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-Id"

// RequestID echoes the caller's request id or mints one.
func RequestID() gin.HandlerFunc {
    return func(c *gin.Context) {
        id := c.GetHeader(requestIDHeader)
        if id == "" { id = uuid.NewString() }
        c.Set("request_id", id)
        c.Writer.Header().Set(requestIDHeader, id)
        c.Next()
    }
}

func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
    return func(c *gin.Context) {
        start := time.Now()
        c.Next()
        log.Info().
            Str("m", c.Request.Method).
            Str("p", c.FullPath()).
            Int("s", c.Writer.Status()).
            Dur("d", time.Since(start)).
            Str("rid", c.GetString("request_id")).
            Msg("http")
    }
}
