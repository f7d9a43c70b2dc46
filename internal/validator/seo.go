package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/tbcv/tbcv/internal/types"
)

const (
	minTitleLength = 10
	maxTitleLength = 70
	minWordCount   = 300
)

// SEOValidator applies search-visibility heuristics to published content:
// title presence and length, meta description on HTML pages, image alt text,
// and a minimum body length for substantive pages.
type SEOValidator struct {
	md goldmark.Markdown
}

func NewSEOValidator() *SEOValidator {
	return &SEOValidator{md: goldmark.New()}
}

func (v *SEOValidator) Kind() string { return "seo" }

func (v *SEOValidator) ApplicableKinds() []types.ArtifactKind {
	return []types.ArtifactKind{types.KindMarkdown, types.KindHTML}
}

func (v *SEOValidator) Validate(ctx context.Context, artifact *types.Artifact) ([]*types.Finding, error) {
	switch artifact.Kind {
	case types.KindMarkdown:
		return v.validateMarkdown(artifact)
	case types.KindHTML:
		return v.validateHTML(artifact)
	}
	return nil, nil
}

func (v *SEOValidator) validateMarkdown(artifact *types.Artifact) ([]*types.Finding, error) {
	source := []byte(artifact.Content)
	doc := v.md.Parser().Parse(text.NewReader(source))

	title := ""
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 && title == "" {
			title = strings.TrimSpace(string(h.Text(source)))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking markdown AST: %w", err)
	}

	findings := v.titleFindings(artifact, title)
	findings = append(findings, v.wordCountFindings(artifact, artifact.Content)...)
	return findings, nil
}

func (v *SEOValidator) validateHTML(artifact *types.Artifact) ([]*types.Finding, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(artifact.Content))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	findings := v.titleFindings(artifact, title)

	if desc, _ := doc.Find(`meta[name="description"]`).Attr("content"); strings.TrimSpace(desc) == "" {
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityWarning,
			Message:       "missing meta description",
			Location:      artifact.Locator,
		})
	}

	missingAlt := 0
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if alt, _ := s.Attr("alt"); strings.TrimSpace(alt) == "" {
			missingAlt++
		}
	})
	if missingAlt > 0 {
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityWarning,
			Message:       fmt.Sprintf("%d image(s) without alt text", missingAlt),
			Location:      artifact.Locator,
		})
	}

	findings = append(findings, v.wordCountFindings(artifact, doc.Find("body").Text())...)
	return findings, nil
}

func (v *SEOValidator) titleFindings(artifact *types.Artifact, title string) []*types.Finding {
	var findings []*types.Finding
	switch {
	case title == "":
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityWarning,
			Message:       "missing title",
			Location:      artifact.Locator,
		})
	case len(title) < minTitleLength:
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityInfo,
			Message:       fmt.Sprintf("title is short (%d chars, want at least %d)", len(title), minTitleLength),
			Location:      artifact.Locator,
		})
	case len(title) > maxTitleLength:
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityWarning,
			Message:       fmt.Sprintf("title is long (%d chars, want at most %d)", len(title), maxTitleLength),
			Location:      artifact.Locator,
		})
	}
	return findings
}

func (v *SEOValidator) wordCountFindings(artifact *types.Artifact, body string) []*types.Finding {
	words := len(strings.Fields(body))
	if words >= minWordCount {
		return nil
	}
	return []*types.Finding{{
		ValidatorKind: v.Kind(),
		Severity:      types.SeverityInfo,
		Message:       fmt.Sprintf("thin content: %d words (want at least %d)", words, minWordCount),
		Location:      artifact.Locator,
	}}
}
