package validator

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tbcv/tbcv/internal/types"
)

// YAMLValidator checks that YAML artifacts parse and flags constructs that
// routinely cause grief in config files: tab indentation and duplicate
// mapping keys.
type YAMLValidator struct{}

func NewYAMLValidator() *YAMLValidator {
	return &YAMLValidator{}
}

func (v *YAMLValidator) Kind() string { return "yaml" }

func (v *YAMLValidator) ApplicableKinds() []types.ArtifactKind {
	return []types.ArtifactKind{types.KindYAML}
}

func (v *YAMLValidator) Validate(ctx context.Context, artifact *types.Artifact) ([]*types.Finding, error) {
	var findings []*types.Finding

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(artifact.Content), &root); err != nil {
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityError,
			Message:       fmt.Sprintf("invalid YAML: %v", err),
			Location:      artifact.Locator,
		})
		return findings, nil
	}

	for i, line := range strings.Split(artifact.Content, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if strings.HasPrefix(trimmed, "\t") {
			findings = append(findings, &types.Finding{
				ValidatorKind: v.Kind(),
				Severity:      types.SeverityError,
				Message:       "tab character used for indentation",
				Location:      fmt.Sprintf("%s:%d", artifact.Locator, i+1),
			})
		}
	}

	findings = append(findings, v.checkDuplicateKeys(artifact, &root)...)
	return findings, nil
}

// checkDuplicateKeys walks mapping nodes looking for repeated scalar keys.
// yaml.v3 accepts duplicates silently (last value wins), which is almost
// never what the author meant.
func (v *YAMLValidator) checkDuplicateKeys(artifact *types.Artifact, node *yaml.Node) []*types.Finding {
	var findings []*types.Finding

	if node.Kind == yaml.MappingNode {
		seen := make(map[string]int)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if key.Kind != yaml.ScalarNode {
				continue
			}
			if first, ok := seen[key.Value]; ok {
				findings = append(findings, &types.Finding{
					ValidatorKind: v.Kind(),
					Severity:      types.SeverityWarning,
					Message:       fmt.Sprintf("duplicate key %q (first defined at line %d)", key.Value, first),
					Location:      fmt.Sprintf("%s:%d", artifact.Locator, key.Line),
				})
			} else {
				seen[key.Value] = key.Line
			}
		}
	}

	for _, child := range node.Content {
		findings = append(findings, v.checkDuplicateKeys(artifact, child)...)
	}
	return findings
}
