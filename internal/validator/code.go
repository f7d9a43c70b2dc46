package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbcv/tbcv/internal/types"
)

const maxLineLength = 200

// CodeValidator runs language-agnostic hygiene checks on code artifacts:
// leftover merge conflict markers, unbalanced brackets, trailing whitespace,
// and lines long enough to suggest minified or generated content.
type CodeValidator struct{}

func NewCodeValidator() *CodeValidator {
	return &CodeValidator{}
}

func (v *CodeValidator) Kind() string { return "code" }

func (v *CodeValidator) ApplicableKinds() []types.ArtifactKind {
	return []types.ArtifactKind{types.KindCode}
}

func (v *CodeValidator) Validate(ctx context.Context, artifact *types.Artifact) ([]*types.Finding, error) {
	var findings []*types.Finding

	lines := strings.Split(artifact.Content, "\n")
	trailingCount := 0
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "<<<<<<<"), strings.HasPrefix(line, ">>>>>>>"), line == "=======":
			findings = append(findings, &types.Finding{
				ValidatorKind: v.Kind(),
				Severity:      types.SeverityError,
				Message:       "merge conflict marker",
				Location:      fmt.Sprintf("%s:%d", artifact.Locator, i+1),
			})
		case len(line) > maxLineLength:
			findings = append(findings, &types.Finding{
				ValidatorKind: v.Kind(),
				Severity:      types.SeverityInfo,
				Message:       fmt.Sprintf("line exceeds %d characters", maxLineLength),
				Location:      fmt.Sprintf("%s:%d", artifact.Locator, i+1),
			})
		}
		if line != strings.TrimRight(line, " \t") {
			trailingCount++
		}
	}
	if trailingCount > 0 {
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityInfo,
			Message:       fmt.Sprintf("%d line(s) with trailing whitespace", trailingCount),
			Location:      artifact.Locator,
		})
	}

	if d := bracketDepthOutsideStrings(artifact.Content); d != 0 {
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityWarning,
			Message:       fmt.Sprintf("unbalanced brackets (depth %+d at end of file)", d),
			Location:      artifact.Locator,
		})
	}

	return findings, nil
}

// bracketDepthOutsideStrings counts net bracket depth, skipping single- and
// double-quoted string contents. This is a heuristic, not a parser: it will
// be fooled by brackets in comments, which is acceptable for a warning.
func bracketDepthOutsideStrings(content string) int {
	depth := 0
	var quote byte
	escaped := false
	for i := 0; i < len(content); i++ {
		c := content[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote || c == '\n':
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
		}
	}
	return depth
}
