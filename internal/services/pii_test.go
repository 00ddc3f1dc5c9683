package services

import (
    "strings"
    "testing"
)

func TestScrubPIIMasksCommonPatterns(t *testing.T) {
    in := "Atlas: contact alice@example.com, docs at https://internal.example.com/spec, api_key=abcdEFGH1234 in description"
    out := scrubPII(in)

    if strings.Contains(out, "alice@example.com") { t.Fatalf("email not scrubbed: %s", out) }
    if strings.Contains(out, "https://") { t.Fatalf("url not scrubbed: %s", out) }
    if strings.Contains(out, "abcdEFGH1234") { t.Fatalf("secret not scrubbed: %s", out) }
    if !strings.Contains(out, "Atlas") { t.Fatalf("plain text should survive: %s", out) }
    if !strings.Contains(out, "<email>") || !strings.Contains(out, "<url>") {
        t.Fatalf("placeholders missing: %s", out)
    }
}

func TestScrubPIILeavesCleanTextAlone(t *testing.T) {
    in := "Atlas: 5 of 12 issues carry a blocked label"
    if got := scrubPII(in); got != in {
        t.Fatalf("clean text altered: %s", got)
    }
}
