package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tbcv/tbcv/internal/types"
)

// getTestConfig returns a config for testing based on environment variables
func getTestConfig() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("TBCV_TEST_PG_HOST"); host != "" {
		cfg.Host = host
	}
	if db := os.Getenv("TBCV_TEST_PG_DATABASE"); db != "" {
		cfg.Database = db
	}
	if user := os.Getenv("TBCV_TEST_PG_USER"); user != "" {
		cfg.User = user
	}
	if pass := os.Getenv("TBCV_TEST_PG_PASSWORD"); pass != "" {
		cfg.Password = pass
	}
	return cfg
}

// setupTestStorage creates a test storage and cleans up the database
func setupTestStorage(t *testing.T) *PostgresStorage {
	t.Helper()
	ctx := context.Background()

	storage, err := New(ctx, getTestConfig())
	if err != nil {
		t.Skipf("Skipping PostgreSQL test (database not available): %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	_, err = storage.pool.Exec(ctx, `
		TRUNCATE TABLE enhancements, recommendations, findings, validations, artifacts, config CASCADE;
	`)
	if err != nil {
		t.Fatalf("Failed to clean up test database: %v", err)
	}
	return storage
}

func TestValidationLifecycle(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	artifact := types.NewArtifact(types.KindYAML, "deploy.yaml", "replicas: 3\n")
	if err := storage.CreateArtifact(ctx, artifact); err != nil {
		t.Fatalf("Failed to create artifact: %v", err)
	}

	v := &types.ValidationResult{
		ID:         "val-pg-1",
		ArtifactID: artifact.ID,
		Status:     types.ValidationRunning,
		CreatedAt:  time.Now(),
	}
	if err := storage.CreateValidation(ctx, v); err != nil {
		t.Fatalf("Failed to create validation: %v", err)
	}

	findings := []*types.Finding{
		{ValidatorKind: "yaml", Severity: types.SeverityInfo, Message: "parsed cleanly", Position: 0},
		{ValidatorKind: "schema", Severity: types.SeverityError, Message: "replicas out of range", Position: 1},
	}
	if err := storage.AppendFindings(ctx, v.ID, findings); err != nil {
		t.Fatalf("Failed to append findings: %v", err)
	}

	now := time.Now()
	if err := storage.SetValidationStatus(ctx, v.ID, types.ValidationRunning, types.ValidationFailed, &now); err != nil {
		t.Fatalf("Failed to complete validation: %v", err)
	}

	got, err := storage.GetValidation(ctx, v.ID)
	if err != nil {
		t.Fatalf("Failed to get validation: %v", err)
	}
	if got.Status != types.ValidationFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}
	if len(got.Findings) != 2 || got.Findings[0].Message != "parsed cleanly" {
		t.Errorf("Finding order not preserved: %+v", got.Findings)
	}

	// Findings frozen on terminal runs
	err = storage.AppendFindings(ctx, v.ID, findings[:1])
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestRecommendationWorkflowCAS(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	artifact := types.NewArtifact(types.KindMarkdown, "post.md", "# Post\n")
	if err := storage.CreateArtifact(ctx, artifact); err != nil {
		t.Fatalf("Failed to create artifact: %v", err)
	}
	v := &types.ValidationResult{
		ID:         "val-pg-2",
		ArtifactID: artifact.ID,
		Status:     types.ValidationRunning,
		CreatedAt:  time.Now(),
	}
	if err := storage.CreateValidation(ctx, v); err != nil {
		t.Fatalf("Failed to create validation: %v", err)
	}

	rec := &types.Recommendation{
		ID:           "rec-pg-1",
		ValidationID: v.ID,
		Title:        "Shorten the title",
		Status:       types.RecProposed,
		CreatedAt:    time.Now(),
	}
	if err := storage.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("Failed to create recommendation: %v", err)
	}

	now := time.Now()
	if err := storage.TransitionRecommendation(ctx, rec.ID, types.RecProposed, types.RecApproved, &now, "alice"); err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}

	err := storage.TransitionRecommendation(ctx, rec.ID, types.RecProposed, types.RecRejected, &now, "bob")
	if !errors.Is(err, types.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification, got %v", err)
	}

	// Dangling back-reference is a referential integrity fault
	bad := &types.Recommendation{
		ID:           "rec-pg-dangling",
		ValidationID: "no-such-validation",
		Title:        "Dangling",
		Status:       types.RecProposed,
		CreatedAt:    time.Now(),
	}
	err = storage.CreateRecommendation(ctx, bad)
	if !errors.Is(err, types.ErrReferentialIntegrity) {
		t.Errorf("Expected ErrReferentialIntegrity, got %v", err)
	}
}
