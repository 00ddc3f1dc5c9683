/* Copyright (c) 2025 linear-pulse-viz authors
 * SPDX-License-Identifier: BSD-3-Clause */
package openai

import (
    "context"
    "encoding/json"
    "errors"
    "strings"

    openai "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/openai/openai-go/v2/shared"
    "github.com/rs/zerolog"

    "github.com/ahnjh51-tft/linear-pulse-viz/internal/config"
)

type Client struct {
    key   string
    model string
    cli   openai.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    model := cfg.OpenAIModel
    if strings.TrimSpace(model) == "" { model = "gpt-4.1-mini" }
    cli := openai.NewClient(option.WithAPIKey(cfg.OpenAIKey))
    return &Client{key: cfg.OpenAIKey, model: model, cli: cli, log: log}
}

// Configured reports whether digest narratives can use the LLM at all;
// callers fall back to the deterministic renderer otherwise.
func (c *Client) Configured() bool { return strings.TrimSpace(c.key) != "" }

// Summarize turns the KPI map and guardrail findings into a short narrative
// for the weekly digest.
func (c *Client) Summarize(ctx context.Context, kpis map[string]float64, findings []map[string]any) (string, error) {
    if !c.Configured() { return "", errors.New("openai: missing key") }
    c.log.Info().Str("model", c.model).Msg("openai Summarize call")
    payload := map[string]any{"kpis": kpis, "findings": findings}
    userContent := ""
    if b, err := json.Marshal(payload); err == nil { userContent = string(b) }
    params := openai.ChatCompletionNewParams{
        Model: shared.ChatModel(c.model),
        Messages: []openai.ChatCompletionMessageParamUnion{
            openai.SystemMessage("You are a senior delivery lead. Given project KPIs and guardrail findings, produce a concise, actionable weekly summary: current trajectory, anomalies, and suggested actions. Plain text, no markdown."),
            openai.UserMessage(userContent),
        },
    }
    resp, err := c.cli.Chat.Completions.New(ctx, params)
    if err != nil { return "", err }
    if len(resp.Choices) == 0 { return "", errors.New("openai: no choices") }
    return resp.Choices[0].Message.Content, nil
}
