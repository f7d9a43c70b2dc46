package validator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tbcv/tbcv/internal/types"
)

// SchemaValidator checks JSON artifacts. Without a schema it verifies the
// document parses; with one it also validates the document against it.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles the given JSON Schema. An empty schema string
// disables schema checking and leaves only well-formedness.
func NewSchemaValidator(schemaJSON string) (*SchemaValidator, error) {
	v := &SchemaValidator{}
	if schemaJSON != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
		if err != nil {
			return nil, fmt.Errorf("compiling JSON schema: %w", err)
		}
		v.schema = schema
	}
	return v, nil
}

func (v *SchemaValidator) Kind() string { return "jsonschema" }

func (v *SchemaValidator) ApplicableKinds() []types.ArtifactKind {
	return []types.ArtifactKind{types.KindJSON}
}

func (v *SchemaValidator) Validate(ctx context.Context, artifact *types.Artifact) ([]*types.Finding, error) {
	var findings []*types.Finding

	var parsed any
	if err := json.Unmarshal([]byte(artifact.Content), &parsed); err != nil {
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityError,
			Message:       fmt.Sprintf("invalid JSON: %v", err),
			Location:      artifact.Locator,
		})
		return findings, nil
	}

	if v.schema == nil {
		return findings, nil
	}

	result, err := v.schema.Validate(gojsonschema.NewStringLoader(artifact.Content))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	for _, desc := range result.Errors() {
		findings = append(findings, &types.Finding{
			ValidatorKind: v.Kind(),
			Severity:      types.SeverityError,
			Message:       fmt.Sprintf("%s: %s", desc.Field(), desc.Description()),
			Location:      artifact.Locator,
		})
	}
	return findings, nil
}
