package main

import (
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/tbcv/tbcv/internal/types"
)

// disableColor strips ANSI codes so expectations compare plain text.
func disableColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestResultHeadline(t *testing.T) {
	disableColor(t)

	tests := []struct {
		name     string
		status   types.ValidationStatus
		path     string
		expected string
	}{
		{"passed", types.ValidationPassed, "docs/ok.md", "✓ docs/ok.md passed"},
		{"failed", types.ValidationFailed, "docs/bad.md", "✗ docs/bad.md failed"},
		{"errored", types.ValidationError, "docs/odd.md", "⚠ docs/odd.md error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resultHeadline(tt.status, tt.path); got != tt.expected {
				t.Errorf("resultHeadline() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFindingLine(t *testing.T) {
	disableColor(t)

	tests := []struct {
		name     string
		finding  *types.Finding
		expected string
	}{
		{
			name: "plain finding",
			finding: &types.Finding{
				ValidatorKind: "yaml",
				Severity:      types.SeverityError,
				Message:       "duplicate key",
			},
			expected: "● yaml: duplicate key",
		},
		{
			name: "with location",
			finding: &types.Finding{
				ValidatorKind: "links",
				Severity:      types.SeverityError,
				Message:       "broken link: https://example.com/gone",
				Location:      "docs/guide.md",
			},
			expected: "● links: broken link: https://example.com/gone (docs/guide.md)",
		},
		{
			name: "infrastructure failure",
			finding: &types.Finding{
				ValidatorKind:  "facts",
				Severity:       types.SeverityError,
				Message:        "validator timed out",
				Infrastructure: true,
			},
			expected: "● facts: validator timed out [infra]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findingLine(tt.finding); got != tt.expected {
				t.Errorf("findingLine() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFormatValidationLine(t *testing.T) {
	disableColor(t)

	created := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	completed := created.Add(2 * time.Second)

	tests := []struct {
		name     string
		result   *types.ValidationResult
		expected string
	}{
		{
			name: "completed run uses completion time",
			result: &types.ValidationResult{
				ID:          "abcdef1234567890",
				Status:      types.ValidationPassed,
				CreatedAt:   created,
				CompletedAt: &completed,
			},
			expected: "09:30:02 ●  abcdef12  passed   0 finding(s)",
		},
		{
			name: "failed run with findings",
			result: &types.ValidationResult{
				ID:          "fedcba0987654321",
				Status:      types.ValidationFailed,
				CreatedAt:   created,
				CompletedAt: &completed,
				Findings: []*types.Finding{
					{ValidatorKind: "yaml", Severity: types.SeverityError, Message: "tab indentation"},
					{ValidatorKind: "yaml", Severity: types.SeverityWarning, Message: "duplicate key"},
				},
			},
			expected: "09:30:02 ●  fedcba09  failed   2 finding(s)",
		},
		{
			name: "pending run falls back to creation time",
			result: &types.ValidationResult{
				ID:        "0123456789abcdef",
				Status:    types.ValidationPending,
				CreatedAt: created,
			},
			expected: "09:30:00 ○  01234567  pending  0 finding(s)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValidationLine(tt.result); got != tt.expected {
				t.Errorf("formatValidationLine() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStatusBadge(t *testing.T) {
	disableColor(t)

	tests := []struct {
		status   types.RecommendationStatus
		expected string
	}{
		{types.RecProposed, "proposed"},
		{types.RecApproved, "approved"},
		{types.RecRejected, "rejected"},
		{types.RecEnhanced, "enhanced"},
		{types.RecApplied, "applied "},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := statusBadge(tt.status); got != tt.expected {
				t.Errorf("statusBadge(%s) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2026, 8, 28, 9, 30, 5, 0, time.UTC)
	if got := formatTime(ts); got != "2026-08-28 09:30:05" {
		t.Errorf("formatTime() = %q", got)
	}
}
