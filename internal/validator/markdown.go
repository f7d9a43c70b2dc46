package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/tbcv/tbcv/internal/types"
)

// MarkdownValidator checks document structure: a single top-level heading,
// no skipped heading levels, no empty headings, and fenced code blocks that
// declare a language.
type MarkdownValidator struct {
	md goldmark.Markdown
}

func NewMarkdownValidator() *MarkdownValidator {
	return &MarkdownValidator{md: goldmark.New()}
}

func (v *MarkdownValidator) Kind() string { return "markdown" }

func (v *MarkdownValidator) ApplicableKinds() []types.ArtifactKind {
	return []types.ArtifactKind{types.KindMarkdown}
}

func (v *MarkdownValidator) Validate(ctx context.Context, artifact *types.Artifact) ([]*types.Finding, error) {
	var findings []*types.Finding

	if strings.TrimSpace(artifact.Content) == "" {
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityWarning,
			Message:       "document is empty",
			Location:      artifact.Locator,
		})
		return findings, nil
	}

	source := []byte(artifact.Content)
	doc := v.md.Parser().Parse(text.NewReader(source))

	h1Count := 0
	prevLevel := 0
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			headingText := strings.TrimSpace(string(node.Text(source)))
			if headingText == "" {
				findings = append(findings, &types.Finding{
					ValidatorKind: v.Kind(),
					Severity:      types.SeverityWarning,
					Message:       fmt.Sprintf("empty level-%d heading", node.Level),
					Location:      artifact.Locator,
				})
			}
			if node.Level == 1 {
				h1Count++
				if h1Count > 1 {
					findings = append(findings, &types.Finding{
						ValidatorKind: v.Kind(),
						Severity:      types.SeverityWarning,
						Message:       fmt.Sprintf("multiple top-level headings (%q)", headingText),
						Location:      artifact.Locator,
					})
				}
			}
			if prevLevel > 0 && node.Level > prevLevel+1 {
				findings = append(findings, &types.Finding{
					ValidatorKind: v.Kind(),
					Severity:      types.SeverityWarning,
					Message:       fmt.Sprintf("heading level jumps from %d to %d (%q)", prevLevel, node.Level, headingText),
					Location:      artifact.Locator,
				})
			}
			prevLevel = node.Level
		case *ast.FencedCodeBlock:
			if node.Language(source) == nil {
				findings = append(findings, &types.Finding{
					ValidatorKind: v.Kind(),
					Severity:      types.SeverityInfo,
					Message:       "fenced code block without a language",
					Location:      artifact.Locator,
				})
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking markdown AST: %w", err)
	}

	if h1Count == 0 {
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityWarning,
			Message:       "no top-level heading",
			Location:      artifact.Locator,
		})
	}

	return findings, nil
}
