package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbcv/tbcv/internal/types"
)

// Verdict is a fact checker's judgment of one claim.
type Verdict string

const (
	VerdictSupported Verdict = "supported"
	VerdictDisputed  Verdict = "disputed"
	VerdictUnknown   Verdict = "unknown"
)

// FactChecker judges a single declarative claim. An error means the checking
// service itself failed and is surfaced as an infrastructure failure.
type FactChecker interface {
	Check(ctx context.Context, claim string) (Verdict, error)
}

// StaticFactChecker answers from a fixed claim table. Claims not in the
// table are unknown. Useful for tests and offline runs.
type StaticFactChecker struct {
	Verdicts map[string]Verdict
}

func (c *StaticFactChecker) Check(_ context.Context, claim string) (Verdict, error) {
	if v, ok := c.Verdicts[claim]; ok {
		return v, nil
	}
	return VerdictUnknown, nil
}

// FactValidator extracts checkable claims from prose artifacts and asks a
// fact checker about each. Only sentences carrying a number are treated as
// checkable; disputed claims produce warnings, unknown ones are left alone.
type FactValidator struct {
	checker FactChecker
}

func NewFactValidator(checker FactChecker) *FactValidator {
	return &FactValidator{checker: checker}
}

func (v *FactValidator) Kind() string { return "facts" }

func (v *FactValidator) ApplicableKinds() []types.ArtifactKind {
	return []types.ArtifactKind{types.KindMarkdown, types.KindText}
}

func (v *FactValidator) Validate(ctx context.Context, artifact *types.Artifact) ([]*types.Finding, error) {
	var findings []*types.Finding
	for _, claim := range ExtractClaims(artifact.Content) {
		verdict, err := v.checker.Check(ctx, claim)
		if err != nil {
			return nil, fmt.Errorf("fact checker: %w", err)
		}
		if verdict == VerdictDisputed {
			findings = append(findings, &types.Finding{
				ValidatorKind: v.Kind(),
				Severity:      types.SeverityWarning,
				Message:       fmt.Sprintf("disputed claim: %q", claim),
				Location:      artifact.Locator,
			})
		}
	}
	return findings, nil
}

// ExtractClaims splits content into sentences and keeps the ones that state
// something checkable, meaning they contain at least one digit.
func ExtractClaims(content string) []string {
	var claims []string
	for _, line := range strings.Split(content, "\n") {
		for _, sentence := range strings.Split(line, ". ") {
			sentence = strings.TrimSpace(strings.TrimSuffix(sentence, "."))
			if sentence == "" || !strings.ContainsAny(sentence, "0123456789") {
				continue
			}
			claims = append(claims, sentence)
		}
	}
	return claims
}
