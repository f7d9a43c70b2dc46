package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbcv/tbcv/internal/types"
)

// setupTestDB creates an in-memory database for testing
func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seedValidation creates an artifact and a running validation for tests
func seedValidation(t *testing.T, db *SQLiteStorage, id string) *types.ValidationResult {
	t.Helper()
	ctx := context.Background()

	artifact := types.NewArtifact(types.KindMarkdown, "docs/"+id+".md", "# "+id+"\n")
	if err := db.CreateArtifact(ctx, artifact); err != nil {
		t.Fatalf("Failed to create artifact: %v", err)
	}

	v := &types.ValidationResult{
		ID:         id,
		ArtifactID: artifact.ID,
		Status:     types.ValidationRunning,
		CreatedAt:  time.Now(),
	}
	if err := db.CreateValidation(ctx, v); err != nil {
		t.Fatalf("Failed to create validation: %v", err)
	}
	return v
}

func TestCreateArtifactIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := types.NewArtifact(types.KindYAML, "config.yaml", "key: value\n")
	if err := db.CreateArtifact(ctx, a); err != nil {
		t.Fatalf("Failed to create artifact: %v", err)
	}
	// Same content, same identity: resubmission is a no-op
	if err := db.CreateArtifact(ctx, a); err != nil {
		t.Fatalf("Resubmitting identical artifact should not fail: %v", err)
	}

	got, err := db.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("Failed to get artifact: %v", err)
	}
	if got.Content != a.Content || got.Kind != a.Kind {
		t.Errorf("Artifact round trip mismatch: got %+v", got)
	}
}

func TestGetArtifactNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetArtifact(context.Background(), "missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFindingOrderSurvivesRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	v := seedValidation(t, db, "val-order")

	findings := []*types.Finding{
		{ValidatorKind: "yaml", Severity: types.SeverityInfo, Message: "first", Position: 0},
		{ValidatorKind: "links", Severity: types.SeverityError, Message: "second", Position: 1},
		{ValidatorKind: "seo", Severity: types.SeverityWarning, Message: "third", Position: 2},
	}
	if err := db.AppendFindings(ctx, v.ID, findings); err != nil {
		t.Fatalf("Failed to append findings: %v", err)
	}

	got, err := db.GetValidation(ctx, v.ID)
	if err != nil {
		t.Fatalf("Failed to get validation: %v", err)
	}
	if len(got.Findings) != 3 {
		t.Fatalf("Expected 3 findings, got %d", len(got.Findings))
	}
	// Ordering is by position (validator invocation order), not severity
	for i, want := range []string{"first", "second", "third"} {
		if got.Findings[i].Message != want {
			t.Errorf("Finding %d: expected %q, got %q", i, want, got.Findings[i].Message)
		}
	}
}

func TestAppendFindingsFrozenAfterTerminal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	v := seedValidation(t, db, "val-frozen")

	now := time.Now()
	if err := db.SetValidationStatus(ctx, v.ID, types.ValidationRunning, types.ValidationPassed, &now); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}

	err := db.AppendFindings(ctx, v.ID, []*types.Finding{
		{ValidatorKind: "yaml", Severity: types.SeverityInfo, Message: "late"},
	})
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for findings on terminal run, got %v", err)
	}
}

func TestSetValidationStatusCAS(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	v := seedValidation(t, db, "val-cas")

	now := time.Now()
	if err := db.SetValidationStatus(ctx, v.ID, types.ValidationRunning, types.ValidationFailed, &now); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}

	// Second transition with a stale expectation loses the swap
	err := db.SetValidationStatus(ctx, v.ID, types.ValidationRunning, types.ValidationPassed, &now)
	if !errors.Is(err, types.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification, got %v", err)
	}

	// Invalid transition rejected before touching the database
	err = db.SetValidationStatus(ctx, "whatever", types.ValidationPending, types.ValidationPassed, nil)
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestCreateRecommendationReferentialIntegrity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := &types.Recommendation{
		ID:           "rec-dangling",
		ValidationID: "no-such-validation",
		Title:        "Fix something",
		Status:       types.RecProposed,
		CreatedAt:    time.Now(),
	}
	err := db.CreateRecommendation(ctx, rec)
	if !errors.Is(err, types.ErrReferentialIntegrity) {
		t.Errorf("Expected ErrReferentialIntegrity for dangling reference, got %v", err)
	}
}

func TestTransitionRecommendation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	v := seedValidation(t, db, "val-wf")

	rec := &types.Recommendation{
		ID:           "rec-1",
		ValidationID: v.ID,
		Title:        "Fix broken link",
		Status:       types.RecProposed,
		CreatedAt:    time.Now(),
	}
	if err := db.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("Failed to create recommendation: %v", err)
	}

	now := time.Now()
	if err := db.TransitionRecommendation(ctx, rec.ID, types.RecProposed, types.RecApproved, &now, "alice"); err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}

	got, err := db.GetRecommendation(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Failed to get recommendation: %v", err)
	}
	if got.Status != types.RecApproved {
		t.Errorf("Expected approved, got %s", got.Status)
	}
	if got.DecidedAt == nil {
		t.Error("Expected decided_at to be recorded")
	}
	if got.DecidedBy != "alice" {
		t.Errorf("Expected decided_by alice, got %q", got.DecidedBy)
	}

	// Stale swap loses with ErrConcurrentModification
	err = db.TransitionRecommendation(ctx, rec.ID, types.RecProposed, types.RecRejected, &now, "bob")
	if !errors.Is(err, types.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification, got %v", err)
	}

	// Illegal edge rejected up front
	err = db.TransitionRecommendation(ctx, rec.ID, types.RecApproved, types.RecApplied, nil, "")
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for approved -> applied, got %v", err)
	}
}

func TestTransitionRecommendationTerminal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	v := seedValidation(t, db, "val-term")

	rec := &types.Recommendation{
		ID:           "rec-term",
		ValidationID: v.ID,
		Title:        "Reject me",
		Status:       types.RecProposed,
		CreatedAt:    time.Now(),
	}
	if err := db.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("Failed to create recommendation: %v", err)
	}

	now := time.Now()
	if err := db.TransitionRecommendation(ctx, rec.ID, types.RecProposed, types.RecRejected, &now, "carol"); err != nil {
		t.Fatalf("Failed to reject: %v", err)
	}

	// Any attempt out of a terminal state is a TerminalStateViolation
	err := db.TransitionRecommendation(ctx, rec.ID, types.RecRejected, types.RecApproved, &now, "dave")
	if !errors.Is(err, types.ErrTerminalState) {
		t.Errorf("Expected ErrTerminalState, got %v", err)
	}

	// A stale writer expecting proposed observes terminal, not a plain race
	err = db.TransitionRecommendation(ctx, rec.ID, types.RecProposed, types.RecApproved, &now, "dave")
	if !errors.Is(err, types.ErrTerminalState) {
		t.Errorf("Expected ErrTerminalState for stale writer, got %v", err)
	}
}

func TestConcurrentDecisionsExactlyOneWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	v := seedValidation(t, db, "val-race")

	rec := &types.Recommendation{
		ID:           "rec-race",
		ValidationID: v.ID,
		Title:        "Contended decision",
		Status:       types.RecProposed,
		CreatedAt:    time.Now(),
	}
	if err := db.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("Failed to create recommendation: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := time.Now()
			to := types.RecApproved
			if i%2 == 1 {
				to = types.RecRejected
			}
			errs[i] = db.TransitionRecommendation(ctx, rec.ID, types.RecProposed, to, &now, "racer")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, types.ErrConcurrentModification) && !errors.Is(err, types.ErrTerminalState) {
			t.Errorf("Loser observed unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly one winning decision, got %d", wins)
	}
}

func TestEnhancementPreviewOverwrite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	v := seedValidation(t, db, "val-enh")

	rec := &types.Recommendation{
		ID:           "rec-enh",
		ValidationID: v.ID,
		Title:        "Enhance me",
		Status:       types.RecApproved,
		CreatedAt:    time.Now(),
	}
	if err := db.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("Failed to create recommendation: %v", err)
	}

	for _, content := range []string{"draft one", "draft two"} {
		err := db.SaveEnhancement(ctx, &types.EnhancementRecord{
			RecommendationID: rec.ID,
			Preview:          true,
			EnhancedContent:  content,
			CreatedAt:        time.Now(),
		})
		if err != nil {
			t.Fatalf("Failed to save preview: %v", err)
		}
	}

	got, err := db.GetEnhancement(ctx, rec.ID, true)
	if err != nil {
		t.Fatalf("Failed to get preview: %v", err)
	}
	if got.EnhancedContent != "draft two" {
		t.Errorf("Expected later preview to overwrite, got %q", got.EnhancedContent)
	}
}

func TestEnhancementCommittedSingleShot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	v := seedValidation(t, db, "val-enh2")

	rec := &types.Recommendation{
		ID:           "rec-enh2",
		ValidationID: v.ID,
		Title:        "Enhance once",
		Status:       types.RecApproved,
		CreatedAt:    time.Now(),
	}
	if err := db.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("Failed to create recommendation: %v", err)
	}

	record := &types.EnhancementRecord{
		RecommendationID: rec.ID,
		EnhancedContent:  "final content",
		CreatedAt:        time.Now(),
	}
	if err := db.SaveEnhancement(ctx, record); err != nil {
		t.Fatalf("Failed to save enhancement: %v", err)
	}

	err := db.SaveEnhancement(ctx, record)
	if !errors.Is(err, types.ErrConcurrentModification) {
		t.Errorf("Expected conflict on second committed enhancement, got %v", err)
	}

	appliedAt := time.Now()
	if err := db.MarkEnhancementApplied(ctx, rec.ID, appliedAt); err != nil {
		t.Fatalf("Failed to mark applied: %v", err)
	}
	got, err := db.GetEnhancement(ctx, rec.ID, false)
	if err != nil {
		t.Fatalf("Failed to get enhancement: %v", err)
	}
	if got.AppliedAt == nil {
		t.Error("Expected applied_at to be set")
	}
}

func TestGetStatistics(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	passed := seedValidation(t, db, "val-s1")
	failed := seedValidation(t, db, "val-s2")
	now := time.Now()
	if err := db.SetValidationStatus(ctx, passed.ID, types.ValidationRunning, types.ValidationPassed, &now); err != nil {
		t.Fatalf("Failed to pass validation: %v", err)
	}
	if err := db.SetValidationStatus(ctx, failed.ID, types.ValidationRunning, types.ValidationFailed, &now); err != nil {
		t.Fatalf("Failed to fail validation: %v", err)
	}

	rec := &types.Recommendation{
		ID:           "rec-stats",
		ValidationID: failed.ID,
		Title:        "Pending decision",
		Status:       types.RecProposed,
		CreatedAt:    time.Now(),
	}
	if err := db.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("Failed to create recommendation: %v", err)
	}

	stats, err := db.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("Failed to get statistics: %v", err)
	}
	if stats.TotalValidations != 2 {
		t.Errorf("Expected 2 validations, got %d", stats.TotalValidations)
	}
	if stats.PassedValidations != 1 || stats.FailedValidations != 1 {
		t.Errorf("Expected 1 passed / 1 failed, got %d / %d", stats.PassedValidations, stats.FailedValidations)
	}
	if stats.PendingDecisions != 1 {
		t.Errorf("Expected 1 pending decision, got %d", stats.PendingDecisions)
	}
	if stats.PassRate != 0.5 {
		t.Errorf("Expected pass rate 0.5, got %f", stats.PassRate)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SetConfig(ctx, "failure_threshold", "error"); err != nil {
		t.Fatalf("Failed to set config: %v", err)
	}
	if err := db.SetConfig(ctx, "failure_threshold", "warning"); err != nil {
		t.Fatalf("Failed to overwrite config: %v", err)
	}

	got, err := db.GetConfig(ctx, "failure_threshold")
	if err != nil {
		t.Fatalf("Failed to get config: %v", err)
	}
	if got != "warning" {
		t.Errorf("Expected warning, got %q", got)
	}

	missing, err := db.GetConfig(ctx, "nope")
	if err != nil || missing != "" {
		t.Errorf("Expected empty value for missing key, got %q, %v", missing, err)
	}
}

// seedTerminalValidation creates a validation at a controlled creation time
// and moves it to the given terminal status.
func seedTerminalValidation(t *testing.T, db *SQLiteStorage, artifactID, id string, createdAt time.Time, status types.ValidationStatus) {
	t.Helper()
	ctx := context.Background()

	v := &types.ValidationResult{
		ID:         id,
		ArtifactID: artifactID,
		Status:     types.ValidationRunning,
		CreatedAt:  createdAt,
	}
	if err := db.CreateValidation(ctx, v); err != nil {
		t.Fatalf("Failed to create validation: %v", err)
	}
	done := createdAt.Add(time.Second)
	if err := db.SetValidationStatus(ctx, id, types.ValidationRunning, status, &done); err != nil {
		t.Fatalf("Failed to complete validation: %v", err)
	}
}

func TestPruneValidations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	artifact := types.NewArtifact(types.KindMarkdown, "docs/history.md", "# History\n")
	if err := db.CreateArtifact(ctx, artifact); err != nil {
		t.Fatalf("Failed to create artifact: %v", err)
	}

	old := time.Now().AddDate(0, 0, -40)
	for i, id := range []string{"old-1", "old-2", "old-3", "old-4"} {
		seedTerminalValidation(t, db, artifact.ID, id, old.Add(time.Duration(i)*time.Hour), types.ValidationPassed)
	}
	seedTerminalValidation(t, db, artifact.ID, "old-kept", old, types.ValidationFailed)
	seedTerminalValidation(t, db, artifact.ID, "recent-1", time.Now().Add(-time.Hour), types.ValidationPassed)
	seedTerminalValidation(t, db, artifact.ID, "recent-2", time.Now(), types.ValidationPassed)

	// A referenced run must survive no matter how old it is.
	rec := &types.Recommendation{
		ID:           "rec-keeper",
		ValidationID: "old-kept",
		Title:        "Keep this run",
		Status:       types.RecProposed,
		CreatedAt:    time.Now(),
	}
	if err := db.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("Failed to create recommendation: %v", err)
	}

	cutoff := time.Now().AddDate(0, 0, -30)
	// Batch size smaller than the eligible set exercises the delete loop.
	n, err := db.PruneValidations(ctx, cutoff, 2, 2)
	if err != nil {
		t.Fatalf("PruneValidations failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 pruned validations, got %d", n)
	}

	for _, id := range []string{"old-1", "old-2", "old-3", "old-4"} {
		if _, err := db.GetValidation(ctx, id); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("Expected %s pruned, got %v", id, err)
		}
	}
	for _, id := range []string{"old-kept", "recent-1", "recent-2"} {
		if _, err := db.GetValidation(ctx, id); err != nil {
			t.Errorf("Expected %s kept, got %v", id, err)
		}
	}
}

func TestPruneValidationsKeepsMostRecentPerArtifact(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	artifact := types.NewArtifact(types.KindYAML, "config/ancient.yaml", "key: value\n")
	if err := db.CreateArtifact(ctx, artifact); err != nil {
		t.Fatalf("Failed to create artifact: %v", err)
	}

	old := time.Now().AddDate(0, 0, -90)
	seedTerminalValidation(t, db, artifact.ID, "ancient-1", old, types.ValidationPassed)
	seedTerminalValidation(t, db, artifact.ID, "ancient-2", old.Add(time.Hour), types.ValidationFailed)
	seedTerminalValidation(t, db, artifact.ID, "ancient-3", old.Add(2*time.Hour), types.ValidationPassed)

	cutoff := time.Now().AddDate(0, 0, -30)
	n, err := db.PruneValidations(ctx, cutoff, 2, 500)
	if err != nil {
		t.Fatalf("PruneValidations failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected only the oldest run pruned, got %d", n)
	}

	if _, err := db.GetValidation(ctx, "ancient-1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ancient-1 pruned, got %v", err)
	}
	for _, id := range []string{"ancient-2", "ancient-3"} {
		if _, err := db.GetValidation(ctx, id); err != nil {
			t.Errorf("Expected %s kept, got %v", id, err)
		}
	}
}

func TestPruneValidationsDeletesFindings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	artifact := types.NewArtifact(types.KindMarkdown, "docs/findings.md", "# Findings\n")
	if err := db.CreateArtifact(ctx, artifact); err != nil {
		t.Fatalf("Failed to create artifact: %v", err)
	}

	old := time.Now().AddDate(0, 0, -40)
	v := &types.ValidationResult{
		ID:         "old-with-findings",
		ArtifactID: artifact.ID,
		Status:     types.ValidationRunning,
		CreatedAt:  old,
	}
	if err := db.CreateValidation(ctx, v); err != nil {
		t.Fatalf("Failed to create validation: %v", err)
	}
	findings := []*types.Finding{
		{ValidatorKind: "markdown", Severity: types.SeverityWarning, Message: "no top-level heading", Position: 0},
	}
	if err := db.AppendFindings(ctx, v.ID, findings); err != nil {
		t.Fatalf("Failed to append findings: %v", err)
	}
	done := old.Add(time.Second)
	if err := db.SetValidationStatus(ctx, v.ID, types.ValidationRunning, types.ValidationFailed, &done); err != nil {
		t.Fatalf("Failed to complete validation: %v", err)
	}
	seedTerminalValidation(t, db, artifact.ID, "still-here", time.Now(), types.ValidationPassed)

	cutoff := time.Now().AddDate(0, 0, -30)
	if _, err := db.PruneValidations(ctx, cutoff, 1, 500); err != nil {
		t.Fatalf("PruneValidations failed: %v", err)
	}

	stats, err := db.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("Failed to get statistics: %v", err)
	}
	if stats.TotalFindings != 0 {
		t.Errorf("Expected the pruned run's findings gone, got %d", stats.TotalFindings)
	}
	if stats.TotalValidations != 1 {
		t.Errorf("Expected 1 surviving validation, got %d", stats.TotalValidations)
	}
}
