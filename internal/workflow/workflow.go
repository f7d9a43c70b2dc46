// Package workflow drives recommendations through their approval lifecycle:
// proposed, then approved or rejected, then enhanced, then applied.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/tbcv/tbcv/internal/broadcast"
	"github.com/tbcv/tbcv/internal/enhance"
	"github.com/tbcv/tbcv/internal/log"
	"github.com/tbcv/tbcv/internal/storage"
	"github.com/tbcv/tbcv/internal/types"
)

// Engine executes workflow operations against the store. Transitions are
// fail-fast: concurrent writers race on the store's compare-and-swap and the
// loser returns the store's conflict error unretried.
type Engine struct {
	store    storage.Storage
	rewriter enhance.Rewriter
	bc       *broadcast.Broadcaster
	logger   log.Logger
}

// New creates a workflow engine. The broadcaster may be nil.
func New(store storage.Storage, rewriter enhance.Rewriter, bc *broadcast.Broadcaster, logger log.Logger) *Engine {
	return &Engine{store: store, rewriter: rewriter, bc: bc, logger: logger}
}

// Decide resolves a proposed recommendation to approved or rejected,
// recording who decided and when. A recommendation that already left
// proposed fails the guard with an invalid-transition or terminal-state
// error. Exactly one of multiple concurrent decisions wins; losers that
// pass the guard before the winner commits observe the store's conflict
// error instead.
func (e *Engine) Decide(ctx context.Context, recID string, decision types.Decision, actor string) (*types.Recommendation, error) {
	if !decision.IsValid() {
		return nil, fmt.Errorf("invalid decision: %s", decision)
	}

	rec, err := e.store.GetRecommendation(ctx, recID)
	if err != nil {
		return nil, err
	}
	if rec.Status != types.RecProposed {
		if rec.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: recommendation %s is %s", types.ErrTerminalState, recID, rec.Status)
		}
		return nil, fmt.Errorf("%w: cannot decide a %s recommendation", types.ErrInvalidTransition, rec.Status)
	}

	now := time.Now()
	target := decision.Status()
	if err := e.store.TransitionRecommendation(ctx, recID, types.RecProposed, target, &now, actor); err != nil {
		return nil, err
	}

	e.publishTransition(recID, types.RecProposed, target)
	e.logger.Info("recommendation decided", "rec", recID, "decision", decision, "actor", actor)
	return e.store.GetRecommendation(ctx, recID)
}

// Enhance runs the rewriter over the content behind an approved
// recommendation. In preview mode the result is recorded without touching
// the recommendation's status, and repeated previews overwrite each other.
// A committed enhancement records the result and moves the recommendation to
// enhanced. The rewriter is retried once; if both attempts fail the
// recommendation stays approved and the error wraps ErrEnhancementFailed.
func (e *Engine) Enhance(ctx context.Context, recID string, preview bool) (*types.EnhancementRecord, error) {
	rec, err := e.store.GetRecommendation(ctx, recID)
	if err != nil {
		return nil, err
	}
	if rec.Status != types.RecApproved {
		if rec.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: recommendation %s is %s", types.ErrTerminalState, recID, rec.Status)
		}
		return nil, fmt.Errorf("%w: cannot enhance a %s recommendation", types.ErrInvalidTransition, rec.Status)
	}

	content, err := e.artifactContent(ctx, rec.ValidationID)
	if err != nil {
		return nil, err
	}

	enhanced, err := e.rewriter.Rewrite(ctx, content, rec)
	if err != nil {
		e.logger.Warn("rewrite failed, retrying once", "rec", recID, "error", err)
		enhanced, err = e.rewriter.Rewrite(ctx, content, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEnhancementFailed, err)
	}

	record := &types.EnhancementRecord{
		RecommendationID: recID,
		Preview:          preview,
		EnhancedContent:  enhanced,
		CreatedAt:        time.Now(),
	}
	if err := e.store.SaveEnhancement(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting enhancement: %w", err)
	}

	if preview {
		return record, nil
	}

	if err := e.store.TransitionRecommendation(ctx, recID, types.RecApproved, types.RecEnhanced, nil, ""); err != nil {
		return nil, err
	}
	e.publishTransition(recID, types.RecApproved, types.RecEnhanced)
	e.logger.Info("recommendation enhanced", "rec", recID)
	return record, nil
}

// Apply writes the committed enhancement to the content sink and moves the
// recommendation to applied. It requires a committed (non-preview)
// enhancement record; previews alone cannot be applied.
func (e *Engine) Apply(ctx context.Context, recID string, sink enhance.ContentSink) (*types.EnhancementRecord, error) {
	rec, err := e.store.GetRecommendation(ctx, recID)
	if err != nil {
		return nil, err
	}
	if rec.Status != types.RecEnhanced {
		if rec.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: recommendation %s is %s", types.ErrTerminalState, recID, rec.Status)
		}
		return nil, fmt.Errorf("%w: cannot apply a %s recommendation", types.ErrInvalidTransition, rec.Status)
	}

	record, err := e.store.GetEnhancement(ctx, recID, false)
	if err != nil {
		return nil, fmt.Errorf("loading committed enhancement: %w", err)
	}

	locator, err := e.artifactLocator(ctx, rec.ValidationID)
	if err != nil {
		return nil, err
	}
	if err := sink.Write(ctx, locator, record.EnhancedContent); err != nil {
		return nil, fmt.Errorf("applying enhancement: %w", err)
	}

	// The timestamp lands before the terminal transition: a failure between
	// the two leaves the recommendation enhanced and Apply retryable, never
	// applied without an applied_at on the record.
	now := time.Now()
	if err := e.store.MarkEnhancementApplied(ctx, recID, now); err != nil {
		return nil, fmt.Errorf("recording application time: %w", err)
	}
	if err := e.store.TransitionRecommendation(ctx, recID, types.RecEnhanced, types.RecApplied, nil, ""); err != nil {
		return nil, err
	}
	record.AppliedAt = &now

	e.publishTransition(recID, types.RecEnhanced, types.RecApplied)
	e.logger.Info("recommendation applied", "rec", recID, "locator", locator)
	return record, nil
}

func (e *Engine) artifactContent(ctx context.Context, validationID string) (string, error) {
	artifact, err := e.artifact(ctx, validationID)
	if err != nil {
		return "", err
	}
	return artifact.Content, nil
}

func (e *Engine) artifactLocator(ctx context.Context, validationID string) (string, error) {
	artifact, err := e.artifact(ctx, validationID)
	if err != nil {
		return "", err
	}
	return artifact.Locator, nil
}

func (e *Engine) artifact(ctx context.Context, validationID string) (*types.Artifact, error) {
	validation, err := e.store.GetValidation(ctx, validationID)
	if err != nil {
		return nil, fmt.Errorf("loading validation %s: %w", validationID, err)
	}
	artifact, err := e.store.GetArtifact(ctx, validation.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("loading artifact %s: %w", validation.ArtifactID, err)
	}
	return artifact, nil
}

func (e *Engine) publishTransition(recID string, from, to types.RecommendationStatus) {
	if e.bc != nil {
		e.bc.Publish(broadcast.NewTransitionEvent(recID, string(from), string(to)))
	}
}
