package validator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tbcv/tbcv/internal/types"
)

func findingMessages(findings []*types.Finding) []string {
	msgs := make([]string, len(findings))
	for i, f := range findings {
		msgs[i] = f.Message
	}
	return msgs
}

func hasFindingContaining(findings []*types.Finding, substr string) bool {
	for _, f := range findings {
		if strings.Contains(f.Message, substr) {
			return true
		}
	}
	return false
}

func TestRegistryOrderAndMatching(t *testing.T) {
	reg := NewRegistry()
	yamlV := NewYAMLValidator()
	mdV := NewMarkdownValidator()
	seoV := NewSEOValidator()
	reg.Register(yamlV)
	reg.Register(mdV)
	reg.Register(seoV)

	if reg.Len() != 3 {
		t.Fatalf("Expected 3 validators, got %d", reg.Len())
	}

	forMD := reg.For(types.KindMarkdown)
	if len(forMD) != 2 {
		t.Fatalf("Expected 2 markdown validators, got %d", len(forMD))
	}
	if forMD[0].Kind() != "markdown" || forMD[1].Kind() != "seo" {
		t.Errorf("Expected registration order [markdown seo], got [%s %s]", forMD[0].Kind(), forMD[1].Kind())
	}

	if got := reg.For(types.KindCode); got != nil {
		t.Errorf("Expected no validators for code, got %d", len(got))
	}
}

func TestYAMLValidator(t *testing.T) {
	v := NewYAMLValidator()
	ctx := context.Background()

	t.Run("valid document", func(t *testing.T) {
		a := types.NewArtifact(types.KindYAML, "config.yaml", "server:\n  port: 8080\n")
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(findings) != 0 {
			t.Errorf("Expected no findings, got %v", findingMessages(findings))
		}
	})

	t.Run("parse error", func(t *testing.T) {
		a := types.NewArtifact(types.KindYAML, "bad.yaml", "key: [unclosed\n")
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(findings) == 0 || findings[0].Severity != types.SeverityError {
			t.Fatalf("Expected an error finding, got %v", findingMessages(findings))
		}
	})

	t.Run("duplicate keys", func(t *testing.T) {
		a := types.NewArtifact(types.KindYAML, "dup.yaml", "port: 1\nhost: x\nport: 2\n")
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if !hasFindingContaining(findings, `duplicate key "port"`) {
			t.Errorf("Expected duplicate key finding, got %v", findingMessages(findings))
		}
	})
}

func TestMarkdownValidator(t *testing.T) {
	v := NewMarkdownValidator()
	ctx := context.Background()

	t.Run("well formed", func(t *testing.T) {
		a := types.NewArtifact(types.KindMarkdown, "doc.md", "# Title\n\n## Section\n\nBody text.\n")
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(findings) != 0 {
			t.Errorf("Expected no findings, got %v", findingMessages(findings))
		}
	})

	t.Run("structure problems", func(t *testing.T) {
		content := "## Not a title\n\n#### Skipped level\n\n# One\n\n# Two\n"
		a := types.NewArtifact(types.KindMarkdown, "doc.md", content)
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if !hasFindingContaining(findings, "heading level jumps from 2 to 4") {
			t.Errorf("Expected level-jump finding, got %v", findingMessages(findings))
		}
		if !hasFindingContaining(findings, "multiple top-level headings") {
			t.Errorf("Expected multiple-H1 finding, got %v", findingMessages(findings))
		}
	})

	t.Run("empty document", func(t *testing.T) {
		a := types.NewArtifact(types.KindMarkdown, "empty.md", "   \n")
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if !hasFindingContaining(findings, "document is empty") {
			t.Errorf("Expected empty-document finding, got %v", findingMessages(findings))
		}
	})

	t.Run("unlabeled code fence", func(t *testing.T) {
		a := types.NewArtifact(types.KindMarkdown, "doc.md", "# T\n\n```\ncode\n```\n")
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if !hasFindingContaining(findings, "without a language") {
			t.Errorf("Expected code-fence finding, got %v", findingMessages(findings))
		}
	})
}

func TestLinkValidatorHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := NewLinkValidator(NewHTTPResolver(srv.Client().Timeout, 100))
	ctx := context.Background()

	content := "# Doc\n\n[good](" + srv.URL + "/ok) and [bad](" + srv.URL + "/missing) and [frag](#section)\n"
	a := types.NewArtifact(types.KindMarkdown, "doc.md", content)

	findings, err := v.Validate(ctx, a)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %v", findingMessages(findings))
	}
	if !strings.Contains(findings[0].Message, "/missing") {
		t.Errorf("Expected broken link finding for /missing, got %q", findings[0].Message)
	}
}

func TestLinkValidatorHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	v := NewLinkValidator(NewHTTPResolver(srv.Client().Timeout, 100))
	html := `<html><body><a href="` + srv.URL + `/x">x</a><img src="` + srv.URL + `/y"></body></html>`
	a := types.NewArtifact(types.KindHTML, "page.html", html)

	findings, err := v.Validate(context.Background(), a)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(findings) != 2 {
		t.Errorf("Expected 2 broken link findings, got %v", findingMessages(findings))
	}
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}

func TestLinkValidatorResolverFailure(t *testing.T) {
	v := NewLinkValidator(failingResolver{})
	a := types.NewArtifact(types.KindMarkdown, "doc.md", "[x](https://example.com/x)\n")

	if _, err := v.Validate(context.Background(), a); err == nil {
		t.Fatal("Expected an infrastructure error from a failing resolver")
	}
}

func TestSchemaValidator(t *testing.T) {
	ctx := context.Background()

	t.Run("well-formedness only", func(t *testing.T) {
		v, err := NewSchemaValidator("")
		if err != nil {
			t.Fatalf("NewSchemaValidator failed: %v", err)
		}
		a := types.NewArtifact(types.KindJSON, "data.json", `{"name": "x"`)
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if !hasFindingContaining(findings, "invalid JSON") {
			t.Errorf("Expected invalid JSON finding, got %v", findingMessages(findings))
		}
	})

	t.Run("schema violations", func(t *testing.T) {
		schema := `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`
		v, err := NewSchemaValidator(schema)
		if err != nil {
			t.Fatalf("NewSchemaValidator failed: %v", err)
		}

		a := types.NewArtifact(types.KindJSON, "data.json", `{"name": 42}`)
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(findings) == 0 || findings[0].Severity != types.SeverityError {
			t.Fatalf("Expected a schema violation finding, got %v", findingMessages(findings))
		}

		a = types.NewArtifact(types.KindJSON, "ok.json", `{"name": "valid"}`)
		findings, err = v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if len(findings) != 0 {
			t.Errorf("Expected no findings for a conforming document, got %v", findingMessages(findings))
		}
	})
}

func TestCodeValidator(t *testing.T) {
	v := NewCodeValidator()
	ctx := context.Background()

	t.Run("conflict markers and balance", func(t *testing.T) {
		content := "func main() {\n<<<<<<< HEAD\n\tx := 1\n=======\n\tx := 2\n>>>>>>> branch\n"
		a := types.NewArtifact(types.KindCode, "main.go", content)
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		markers := 0
		for _, f := range findings {
			if f.Message == "merge conflict marker" {
				markers++
			}
		}
		if markers != 3 {
			t.Errorf("Expected 3 conflict marker findings, got %d", markers)
		}
		if !hasFindingContaining(findings, "unbalanced brackets") {
			t.Errorf("Expected unbalanced bracket finding, got %v", findingMessages(findings))
		}
	})

	t.Run("brackets in strings are ignored", func(t *testing.T) {
		a := types.NewArtifact(types.KindCode, "ok.go", "func f() string {\n\treturn \"((((\"\n}\n")
		findings, err := v.Validate(ctx, a)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if hasFindingContaining(findings, "unbalanced") {
			t.Errorf("Brackets inside string literals should not count: %v", findingMessages(findings))
		}
	})
}

func TestSEOValidatorHTML(t *testing.T) {
	v := NewSEOValidator()
	html := `<html><head><title>Short</title></head><body><img src="a.png"><p>tiny</p></body></html>`
	a := types.NewArtifact(types.KindHTML, "page.html", html)

	findings, err := v.Validate(context.Background(), a)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	for _, want := range []string{"title is short", "missing meta description", "without alt text", "thin content"} {
		if !hasFindingContaining(findings, want) {
			t.Errorf("Expected finding containing %q, got %v", want, findingMessages(findings))
		}
	}
}

func TestFactValidator(t *testing.T) {
	checker := &StaticFactChecker{Verdicts: map[string]Verdict{
		"The service handles 500 requests per second": VerdictDisputed,
		"Released in 2019":                            VerdictSupported,
	}}
	v := NewFactValidator(checker)

	content := "The service handles 500 requests per second. Released in 2019. No numbers here.\n"
	a := types.NewArtifact(types.KindText, "notes.txt", content)

	findings, err := v.Validate(context.Background(), a)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("Expected 1 disputed-claim finding, got %v", findingMessages(findings))
	}
	if !strings.Contains(findings[0].Message, "500 requests") {
		t.Errorf("Wrong claim flagged: %q", findings[0].Message)
	}
}

func TestExtractClaims(t *testing.T) {
	claims := ExtractClaims("First has 10 things. Second has none. Third line.\nLine with 3 items.\n")
	want := []string{"First has 10 things", "Line with 3 items"}
	if diff := cmp.Diff(want, claims); diff != "" {
		t.Errorf("ExtractClaims mismatch (-want +got):\n%s", diff)
	}
}
