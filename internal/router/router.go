// Package router dispatches artifacts to their applicable validators and
// aggregates the per-validator findings into one persisted validation result.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tbcv/tbcv/internal/broadcast"
	"github.com/tbcv/tbcv/internal/log"
	"github.com/tbcv/tbcv/internal/storage"
	"github.com/tbcv/tbcv/internal/types"
	"github.com/tbcv/tbcv/internal/validator"
)

// Options tune dispatch behavior. The zero value gets sensible defaults.
type Options struct {
	// ValidatorTimeout bounds each validator invocation. Zero means no
	// per-validator deadline beyond the dispatch context.
	ValidatorTimeout time.Duration

	// MaxConcurrent caps how many validators run at once per dispatch.
	// Zero or negative means unbounded.
	MaxConcurrent int

	// FailureThreshold is the lowest content finding severity that fails a
	// validation. Defaults to error severity.
	FailureThreshold types.Severity
}

// Router routes one artifact at a time per identity through all applicable
// validators. Dispatches for distinct artifacts run freely in parallel;
// dispatches for the same artifact ID are serialized so two submissions of
// identical content cannot interleave their store writes.
type Router struct {
	registry *validator.Registry
	store    storage.Storage
	bc       *broadcast.Broadcaster
	logger   log.Logger
	opts     Options

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// New creates a router. The broadcaster may be nil when no live consumers
// exist, for one-shot CLI runs.
func New(registry *validator.Registry, store storage.Storage, bc *broadcast.Broadcaster, logger log.Logger, opts Options) *Router {
	if opts.FailureThreshold == "" {
		opts.FailureThreshold = types.SeverityError
	}
	return &Router{
		registry: registry,
		store:    store,
		bc:       bc,
		logger:   logger,
		opts:     opts,
		inflight: make(map[string]*sync.Mutex),
	}
}

// Dispatch validates one artifact and returns the terminal validation result.
// The artifact and the result are persisted; the returned error covers store
// failures only. Validator failures never surface as errors: they degrade to
// infrastructure findings and, when no validator completes, an error status.
func (r *Router) Dispatch(ctx context.Context, artifact *types.Artifact) (*types.ValidationResult, error) {
	if err := artifact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}

	lock := r.artifactLock(artifact.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := r.store.CreateArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("persisting artifact: %w", err)
	}

	result := &types.ValidationResult{
		ID:         uuid.New().String(),
		ArtifactID: artifact.ID,
		Status:     types.ValidationPending,
		CreatedAt:  time.Now(),
	}
	if err := r.store.CreateValidation(ctx, result); err != nil {
		return nil, fmt.Errorf("persisting validation: %w", err)
	}

	validators := r.registry.For(artifact.Kind)
	if len(validators) == 0 {
		return r.finishUnsupported(ctx, result, artifact)
	}

	if err := r.store.SetValidationStatus(ctx, result.ID, types.ValidationPending, types.ValidationRunning, nil); err != nil {
		return nil, fmt.Errorf("starting validation: %w", err)
	}
	result.Status = types.ValidationRunning
	r.publish(broadcast.NewStatusEvent(broadcast.EventValidationStarted,
		fmt.Sprintf("validating %s (%d validators)", artifact.Locator, len(validators)),
		map[string]any{"validation_id": result.ID, "artifact_id": artifact.ID}))

	findings, completed := r.runValidators(ctx, validators, artifact, result.ID)

	terminal := r.classify(ctx, findings, completed)
	return r.finish(ctx, result, findings, terminal)
}

// runValidators fans the artifact out to all validators concurrently and
// merges their findings back in invocation order. completed counts
// validators that returned a content judgment rather than failing.
func (r *Router) runValidators(ctx context.Context, validators []validator.Validator, artifact *types.Artifact, validationID string) ([]*types.Finding, int) {
	perValidator := make([][]*types.Finding, len(validators))
	failed := make([]bool, len(validators))

	g, gctx := errgroup.WithContext(ctx)
	if r.opts.MaxConcurrent > 0 {
		g.SetLimit(r.opts.MaxConcurrent)
	}

	for i, v := range validators {
		g.Go(func() error {
			vctx := gctx
			cancel := context.CancelFunc(func() {})
			if r.opts.ValidatorTimeout > 0 {
				vctx, cancel = context.WithTimeout(gctx, r.opts.ValidatorTimeout)
			}
			defer cancel()

			findings, err := v.Validate(vctx, artifact)
			if err != nil {
				failed[i] = true
				perValidator[i] = []*types.Finding{infraFinding(v.Kind(), artifact.Locator, err)}
				r.logger.Warn("validator failed", "validator", v.Kind(), "artifact", artifact.ID, "error", err)
				return nil
			}
			perValidator[i] = findings
			return nil
		})
	}
	// Validator errors are captured per slot, never returned, so a failing
	// validator cannot cancel its siblings through the group context.
	_ = g.Wait()

	var merged []*types.Finding
	completed := 0
	for i, v := range validators {
		if !failed[i] {
			completed++
		}
		for _, f := range perValidator[i] {
			f.ValidationID = validationID
			f.ValidatorKind = v.Kind()
			f.Position = i
			merged = append(merged, f)
		}
	}
	return merged, completed
}

// classify picks the terminal status for a finished run.
func (r *Router) classify(ctx context.Context, findings []*types.Finding, completed int) types.ValidationStatus {
	if ctx.Err() != nil {
		return types.ValidationError
	}
	if completed == 0 {
		// Every validator failed on infrastructure; no content judgment
		// exists, so the run is an error, not a content failure.
		return types.ValidationError
	}
	for _, f := range findings {
		if !f.Infrastructure && f.Severity.Rank() >= r.opts.FailureThreshold.Rank() {
			return types.ValidationFailed
		}
	}
	return types.ValidationPassed
}

func (r *Router) finishUnsupported(ctx context.Context, result *types.ValidationResult, artifact *types.Artifact) (*types.ValidationResult, error) {
	finding := &types.Finding{
		ValidationID:   result.ID,
		ValidatorKind:  "router",
		Severity:       types.SeverityError,
		Message:        fmt.Sprintf("%v: %s", types.ErrUnsupportedArtifactKind, artifact.Kind),
		Location:       artifact.Locator,
		Infrastructure: true,
	}
	return r.finishFrom(ctx, result, types.ValidationPending, []*types.Finding{finding}, types.ValidationError)
}

func (r *Router) finish(ctx context.Context, result *types.ValidationResult, findings []*types.Finding, terminal types.ValidationStatus) (*types.ValidationResult, error) {
	if ctx.Err() != nil {
		findings = append(findings, &types.Finding{
			ValidationID:   result.ID,
			ValidatorKind:  "router",
			Severity:       types.SeverityError,
			Message:        fmt.Sprintf("dispatch cancelled: %v", ctx.Err()),
			Location:       "",
			Infrastructure: true,
		})
	}
	return r.finishFrom(ctx, result, types.ValidationRunning, findings, terminal)
}

// finishFrom appends findings, moves the run to its terminal status and
// publishes the completion event. Store writes run on a fresh context so a
// cancelled dispatch still records its error outcome.
func (r *Router) finishFrom(ctx context.Context, result *types.ValidationResult, from types.ValidationStatus, findings []*types.Finding, terminal types.ValidationStatus) (*types.ValidationResult, error) {
	storeCtx := context.WithoutCancel(ctx)

	if len(findings) > 0 {
		if err := r.store.AppendFindings(storeCtx, result.ID, findings); err != nil {
			return nil, fmt.Errorf("persisting findings: %w", err)
		}
	}

	now := time.Now()
	if err := r.store.SetValidationStatus(storeCtx, result.ID, from, terminal, &now); err != nil {
		return nil, fmt.Errorf("completing validation: %w", err)
	}

	result.Status = terminal
	result.CompletedAt = &now
	result.Findings = findings

	r.publish(broadcast.NewStatusEvent(broadcast.EventValidationCompleted,
		fmt.Sprintf("validation %s: %s (%d findings)", result.ID, terminal, len(findings)),
		map[string]any{"validation_id": result.ID, "artifact_id": result.ArtifactID, "status": string(terminal)}))
	r.logger.Info("validation completed", "validation", result.ID, "status", terminal, "findings", len(findings))
	return result, nil
}

func (r *Router) publish(ev *broadcast.StatusEvent) {
	if r.bc != nil {
		r.bc.Publish(ev)
	}
}

// artifactLock returns the per-artifact dispatch mutex, creating it on first
// use. Locks are never reclaimed; artifact cardinality is bounded by what a
// single process submits.
func (r *Router) artifactLock(artifactID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.inflight[artifactID]
	if !ok {
		lock = &sync.Mutex{}
		r.inflight[artifactID] = lock
	}
	return lock
}

func infraFinding(validatorKind, locator string, err error) *types.Finding {
	msg := fmt.Sprintf("validator failed: %v", err)
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "validator timed out"
	}
	return &types.Finding{
		ValidatorKind:  validatorKind,
		Severity:       types.SeverityError,
		Message:        msg,
		Location:       locator,
		Infrastructure: true,
	}
}
