/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
    "log"
    "os"
    "strconv"
    "strings"
    "time"

    "gopkg.in/yaml.v3"
)

// Guardrails holds the fixed alert thresholds. They are deployment settings,
// not values derived from historical baselines.
type Guardrails struct {
    BlockedRatio     float64 `yaml:"blocked_ratio"`      // warning above this fraction of blocked issues
    TargetWindowDays int     `yaml:"target_window_days"` // critical window before the target date
    MinProgress      int     `yaml:"min_progress"`       // critical below this percent inside the window
}

type Config struct {
    AppEnv   string
    TZ       string
    HTTPAddr string
    LogLevel string

    LinearBaseURL string
    LinearAPIKey  string // bootstrap key; a key stored via the prefs API takes precedence

    IssuesPageSize   int
    HTTPTimeout      time.Duration
    CacheTTL         time.Duration
    StaleTTL         time.Duration
    RefreshCron      string
    DigestCron       string
    PrefsPath        string
    ProgressStrategy string

    OpenAIKey     string
    OpenAIModel   string
    OpenAITimeout time.Duration

    TelegramToken   string
    TelegramChatIDs []int64

    Guardrails      Guardrails
    DefaultCapacity float64 // points per assignee per week when no override exists
}

func getenv(key, def string) string {
    v := os.Getenv(key)
    if v == "" { return def }
    return v
}

func atoi(key string, def int) int {
    v := os.Getenv(key)
    if v == "" { return def }
    i, err := strconv.Atoi(v)
    if err != nil { return def }
    return i
}

func dur(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" { return def }
    d, err := time.ParseDuration(v)
    if err != nil { return def }
    return d
}

func parseInt64s(csv string) []int64 {
    if csv == "" { return nil }
    parts := strings.Split(csv, ",")
    out := make([]int64, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        n, err := strconv.ParseInt(p, 10, 64)
        if err == nil { out = append(out, n) }
    }
    return out
}

func Load() Config {
    cfg := Config{
        AppEnv:   getenv("APP_ENV", "dev"),
        TZ:       getenv("APP_TZ", "UTC"),
        HTTPAddr: getenv("HTTP_ADDR", ":8080"),
        LogLevel: getenv("LOG_LEVEL", "info"),

        LinearBaseURL: getenv("LINEAR_BASE_URL", "https://api.linear.app/graphql"),
        LinearAPIKey:  getenv("LINEAR_API_KEY", ""),

        IssuesPageSize:   atoi("ISSUES_PAGE_SIZE", 200),
        HTTPTimeout:      dur("HTTP_TIMEOUT", 15*time.Second),
        CacheTTL:         dur("CACHE_TTL", 2*time.Minute),
        StaleTTL:         dur("STALE_TTL", 24*time.Hour),
        RefreshCron:      getenv("REFRESH_CRON", "*/10 * * * *"),
        DigestCron:       getenv("CRON_SPEC", "0 10 * * FRI"),
        PrefsPath:        getenv("PREFS_PATH", "linear-pulse.db"),
        ProgressStrategy: getenv("PROGRESS_STRATEGY", "weighted"),

        OpenAIKey:     getenv("OPENAI_API_KEY", ""),
        OpenAIModel:   getenv("OPENAI_MODEL", "o3-mini"),
        OpenAITimeout: dur("OPENAI_TIMEOUT", 15*time.Second),

        TelegramToken:   getenv("TELEGRAM_BOT_TOKEN", ""),
        TelegramChatIDs: parseInt64s(getenv("TELEGRAM_CHAT_IDS", "")),

        Guardrails: Guardrails{
            BlockedRatio:     0.25,
            TargetWindowDays: 7,
            MinProgress:      60,
        },
        DefaultCapacity: 10,
    }

    // the remote API rejects page sizes above 500
    if cfg.IssuesPageSize < 1 { cfg.IssuesPageSize = 200 }
    if cfg.IssuesPageSize > 500 { cfg.IssuesPageSize = 500 }

    // set global timezone if available
    if loc, err := time.LoadLocation(cfg.TZ); err == nil {
        time.Local = loc
    } else {
        log.Printf("warning: cannot load TZ %s: %v", cfg.TZ, err)
    }

    // Optional: overlay guardrail thresholds and capacity defaults from a YAML file
    if path := getenv("CONFIG_FILE", ""); path != "" {
        if data, err := os.ReadFile(path); err == nil {
            var overlay struct {
                Guardrails      *Guardrails `yaml:"guardrails"`
                DefaultCapacity *float64    `yaml:"default_capacity"`
            }
            if err := yaml.Unmarshal(data, &overlay); err == nil {
                if overlay.Guardrails != nil { cfg.Guardrails = *overlay.Guardrails }
                if overlay.DefaultCapacity != nil { cfg.DefaultCapacity = *overlay.DefaultCapacity }
            } else {
                log.Printf("warning: cannot parse %s: %v", path, err)
            }
        } else {
            log.Printf("warning: cannot read %s: %v", path, err)
        }
    }
    return cfg
}
