package validator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/time/rate"

	"github.com/tbcv/tbcv/internal/types"
)

// Resolver answers whether an absolute URL is reachable. reachable=false with
// a nil error is a content judgment (the link target does not exist); a
// non-nil error means the resolver itself could not complete the check and is
// treated as an infrastructure failure.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (reachable bool, err error)
}

// HTTPResolver resolves links with HEAD requests, rate limited so a
// link-dense document does not hammer remote hosts.
type HTTPResolver struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPResolver creates a resolver with the given per-request timeout and
// request rate in requests per second.
func NewHTTPResolver(timeout time.Duration, rps float64) *HTTPResolver {
	return &HTTPResolver{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, rawURL string) (bool, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("resolving %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	// Some hosts reject HEAD outright; retry those with GET before judging.
	if resp.StatusCode == http.StatusMethodNotAllowed {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return false, fmt.Errorf("building request for %s: %w", rawURL, err)
		}
		resp2, err := r.client.Do(req)
		if err != nil {
			return false, fmt.Errorf("resolving %s: %w", rawURL, err)
		}
		defer resp2.Body.Close()
		return resp2.StatusCode < 400, nil
	}

	return resp.StatusCode < 400, nil
}

// LinkValidator extracts links from markdown and HTML artifacts and checks
// that each target exists. Absolute http(s) URLs go through the resolver;
// relative targets are checked against the filesystem next to the artifact's
// locator. Fragment-only links and non-web schemes are skipped.
type LinkValidator struct {
	resolver Resolver
	md       goldmark.Markdown
}

func NewLinkValidator(resolver Resolver) *LinkValidator {
	return &LinkValidator{
		resolver: resolver,
		md:       goldmark.New(),
	}
}

func (v *LinkValidator) Kind() string { return "links" }

func (v *LinkValidator) ApplicableKinds() []types.ArtifactKind {
	return []types.ArtifactKind{types.KindMarkdown, types.KindHTML}
}

func (v *LinkValidator) Validate(ctx context.Context, artifact *types.Artifact) ([]*types.Finding, error) {
	var targets []string
	var err error
	switch artifact.Kind {
	case types.KindMarkdown:
		targets, err = v.markdownTargets(artifact.Content)
	case types.KindHTML:
		targets, err = v.htmlTargets(artifact.Content)
	}
	if err != nil {
		return nil, err
	}

	var findings []*types.Finding
	seen := make(map[string]bool)
	for _, target := range targets {
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true

		if strings.HasPrefix(target, "#") {
			continue
		}
		parsed, perr := url.Parse(target)
		if perr != nil {
			findings = append(findings, &types.Finding{
				ValidatorKind: v.Kind(),
				Severity:      types.SeverityError,
				Message:       fmt.Sprintf("malformed link target %q: %v", target, perr),
				Location:      artifact.Locator,
			})
			continue
		}

		switch parsed.Scheme {
		case "http", "https":
			reachable, rerr := v.resolver.Resolve(ctx, target)
			if rerr != nil {
				return nil, fmt.Errorf("link resolver: %w", rerr)
			}
			if !reachable {
				findings = append(findings, &types.Finding{
					ValidatorKind: v.Kind(),
					Severity:      types.SeverityError,
					Message:       fmt.Sprintf("broken link: %s", target),
					Location:      artifact.Locator,
				})
			}
		case "":
			// Relative target: resolve against the artifact's directory.
			rel := filepath.Join(filepath.Dir(artifact.Locator), parsed.Path)
			if _, serr := os.Stat(rel); serr != nil {
				findings = append(findings, &types.Finding{
					ValidatorKind: v.Kind(),
					Severity:      types.SeverityError,
					Message:       fmt.Sprintf("missing link target: %s", target),
					Location:      artifact.Locator,
				})
			}
		default:
			// mailto:, ftp:, etc. are out of scope.
		}
	}
	return findings, nil
}

func (v *LinkValidator) markdownTargets(content string) ([]string, error) {
	source := []byte(content)
	doc := v.md.Parser().Parse(text.NewReader(source))

	var targets []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			targets = append(targets, string(node.Destination))
		case *ast.Image:
			targets = append(targets, string(node.Destination))
		case *ast.AutoLink:
			targets = append(targets, string(node.URL(source)))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking markdown AST: %w", err)
	}
	return targets, nil
}

func (v *LinkValidator) htmlTargets(content string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var targets []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			targets = append(targets, href)
		}
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			targets = append(targets, src)
		}
	})
	return targets, nil
}
