// Package sequencer drives state-changing user actions through a fixed
// ordered pipeline: validate, optionally upload content, check the spending
// allowance, approve when insufficient, submit the primary transaction, wait
// for confirmation, decode emitted events, and invalidate affected caches.
package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/forescene/forescene/internal/chain"
	"github.com/forescene/forescene/internal/domain"
)

// AllowanceReader reads the acting account's current spending allowance for
// the registry. The sequencer calls it immediately before deciding whether
// to approve; cached allowance values are never trusted.
type AllowanceReader interface {
	Allowance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Submitter issues the write transactions and waits for their receipts.
type Submitter interface {
	Approve(ctx context.Context, amount *big.Int) (common.Hash, error)
	StakeFor(ctx context.Context, recordID uint64, amount *big.Int) (common.Hash, error)
	StakeAgainst(ctx context.Context, recordID uint64, amount *big.Int) (common.Hash, error)
	CopyRecord(ctx context.Context, recordID uint64, amount *big.Int) (common.Hash, error)
	CreateRecord(ctx context.Context, args chain.CreateArgs) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) ([]chain.Event, error)
}

// Uploader pins off-chain content during the uploading stage.
type Uploader interface {
	PinFile(ctx context.Context, name string, data []byte, contentType string, keyvalues map[string]string) (domain.ContentDescriptor, error)
	PinJSON(ctx context.Context, name string, v any) (domain.ContentDescriptor, error)
}

// WriteEvent describes a completed write so caches scoped to the affected
// records and the acting account can be invalidated.
type WriteEvent struct {
	Action   domain.Action
	RecordID uint64
	Amount   *big.Int
	Account  common.Address
}

// Invalidator evicts derived-state cache entries whose scope a completed
// write could affect.
type Invalidator interface {
	InvalidateAfterWrite(ctx context.Context, ev WriteEvent) error
}

// Deps carries every collaborator a Sequencer needs. Account and chain id
// are injected explicitly; nothing is read from ambient state.
type Deps struct {
	Allowance   AllowanceReader
	Submitter   Submitter
	Uploader    Uploader
	Invalidator Invalidator
	Account     common.Address
	ChainID     uint64
	Logger      *slog.Logger

	// OnStage, when set, observes every stage transition (for UI push).
	OnStage func(domain.SequenceStatus)

	// Now overrides the wall clock in tests.
	Now func() time.Time
}

// Sequencer executes one pending action at a time. Stage, last error, and
// resulting hash are observable synchronously via Status at all times; a
// second invocation while a run is active fails with ErrSequenceActive.
type Sequencer struct {
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	status  domain.SequenceStatus
}

// New creates a Sequencer in the idle state.
func New(deps Deps) *Sequencer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Sequencer{
		deps:   deps,
		logger: logger.With(slog.String("component", "sequencer")),
		status: domain.SequenceStatus{Stage: domain.StageIdle},
	}
}

// Status returns a copy of the current run state. Safe to call from any
// goroutine while a run is in flight.
func (s *Sequencer) Status() domain.SequenceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Reset discards all transient run state and returns the sequencer to idle.
// It has no effect on a transaction already submitted to the ledger; only
// the local tracking state is abandoned.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.status = domain.SequenceStatus{Stage: domain.StageIdle}
}

// StakeFor runs the staking pipeline on the "for" side of a record.
func (s *Sequencer) StakeFor(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error) {
	return s.runStake(ctx, domain.ActionStakeFor, recordID, amount)
}

// StakeAgainst runs the staking pipeline on the "against" side of a record.
func (s *Sequencer) StakeAgainst(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error) {
	return s.runStake(ctx, domain.ActionStakeAgainst, recordID, amount)
}

// Copy runs the copy pipeline against an existing record.
func (s *Sequencer) Copy(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error) {
	return s.runStake(ctx, domain.ActionCopy, recordID, amount)
}

// runStake drives the shared pipeline for the three amount-moving actions on
// existing records. At most one primary transaction is submitted. The submit
// method is resolved only after begin has verified the submitter is present.
func (s *Sequencer) runStake(
	ctx context.Context,
	action domain.Action,
	recordID uint64,
	amountStr string,
) (domain.SequenceResult, error) {
	if err := s.begin(action, recordID); err != nil {
		return domain.SequenceResult{}, err
	}
	defer s.finish()

	var submit func(context.Context, uint64, *big.Int) (common.Hash, error)
	switch action {
	case domain.ActionStakeAgainst:
		submit = s.deps.Submitter.StakeAgainst
	case domain.ActionCopy:
		submit = s.deps.Submitter.CopyRecord
	default:
		submit = s.deps.Submitter.StakeFor
	}

	// validating
	s.setStage(domain.StageValidating)
	amount, err := domain.ParseAmount(amountStr)
	if err != nil {
		return domain.SequenceResult{}, s.fail(ctx, err)
	}

	if err := s.ensureApproved(ctx, amount); err != nil {
		return domain.SequenceResult{}, err
	}

	// submitting
	s.setStage(domain.StageSubmitting)
	hash, err := submit(ctx, recordID, amount)
	if err != nil {
		return domain.SequenceResult{}, s.fail(ctx, err)
	}
	s.setTxHash(hash.Hex())

	// waiting
	s.setStage(domain.StageWaiting)
	if _, err := s.deps.Submitter.WaitMined(ctx, hash); err != nil {
		return domain.SequenceResult{}, s.fail(ctx, err)
	}

	s.invalidate(ctx, WriteEvent{Action: action, RecordID: recordID, Amount: amount})
	s.setStage(domain.StageSuccess)
	return domain.SequenceResult{TxHash: hash.Hex()}, nil
}

// Create runs the record-creation pipeline, including the uploading stage
// when no pre-existing content reference was supplied.
func (s *Sequencer) Create(ctx context.Context, p CreateParams) (domain.SequenceResult, error) {
	if err := s.begin(domain.ActionCreate, 0); err != nil {
		return domain.SequenceResult{}, err
	}
	defer s.finish()

	// validating
	s.setStage(domain.StageValidating)
	amount, err := p.validate(s.deps.Now())
	if err != nil {
		return domain.SequenceResult{}, s.fail(ctx, err)
	}

	// uploading (skipped when the caller already holds a content reference)
	contentRef := p.ContentRef
	kind := p.kind()
	if contentRef == "" {
		s.setStage(domain.StageUploading)
		contentRef, err = s.uploadContent(ctx, p, kind)
		if err != nil {
			return domain.SequenceResult{}, s.fail(ctx, err)
		}
	}

	if err := s.ensureApproved(ctx, amount); err != nil {
		return domain.SequenceResult{}, err
	}

	// submitting
	s.setStage(domain.StageSubmitting)
	hash, err := s.deps.Submitter.CreateRecord(ctx, chain.CreateArgs{
		ContentRef: contentRef,
		Format:     domain.FormatForKind(kind),
		Category:   p.category(),
		Deadline:   p.Deadline,
		FeeBps:     uint16(p.FeeBps),
		Amount:     amount,
	})
	if err != nil {
		return domain.SequenceResult{}, s.fail(ctx, err)
	}
	s.setTxHash(hash.Hex())

	// waiting
	s.setStage(domain.StageWaiting)
	events, err := s.deps.Submitter.WaitMined(ctx, hash)
	if err != nil {
		return domain.SequenceResult{}, s.fail(ctx, err)
	}

	result := domain.SequenceResult{TxHash: hash.Hex(), ContentCID: contentRef}
	ev := WriteEvent{Action: domain.ActionCreate, Amount: amount}
	if created, ok := chain.FirstRecordCreated(events); ok {
		id := created.ID
		result.RecordID = &id
		ev.RecordID = id
	}

	s.invalidate(ctx, ev)
	s.setStage(domain.StageSuccess)
	return result, nil
}

// ensureApproved re-reads the allowance and, when it is insufficient,
// requests approval and blocks until that transaction is confirmed. The
// approving stage is never entered when the allowance already covers the
// amount; approval and the dependent action are never pipelined.
func (s *Sequencer) ensureApproved(ctx context.Context, amount *big.Int) error {
	s.setStage(domain.StageCheckingAllowance)
	allowance, err := s.deps.Allowance.Allowance(ctx, s.deps.Account)
	if err != nil {
		return s.fail(ctx, fmt.Errorf("read allowance: %w", err))
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	s.setStage(domain.StageApproving)
	hash, err := s.deps.Submitter.Approve(ctx, amount)
	if err != nil {
		return s.fail(ctx, fmt.Errorf("approve: %w", err))
	}
	if _, err := s.deps.Submitter.WaitMined(ctx, hash); err != nil {
		return s.fail(ctx, fmt.Errorf("approval confirmation: %w", err))
	}
	return nil
}

// uploadContent pins the user's payload. Video submissions pin the media
// first, then a JSON metadata document embedding the media's content id; the
// record's on-chain reference points at the metadata document so structured
// fields travel with the record.
func (s *Sequencer) uploadContent(ctx context.Context, p CreateParams, kind domain.MediaKind) (string, error) {
	if s.deps.Uploader == nil {
		return "", fmt.Errorf("uploader not configured: %w", domain.ErrNoClient)
	}

	switch kind {
	case domain.MediaVideo:
		media, err := s.deps.Uploader.PinFile(ctx, p.fileName(), p.File, p.FileContentType, map[string]string{
			"category": p.category(),
		})
		if err != nil {
			return "", fmt.Errorf("pin media: %w", err)
		}
		meta := domain.ContentMetadata{
			Title:    p.Title,
			Summary:  p.Summary,
			Category: p.category(),
			Kind:     string(domain.MediaVideo),
			Media: &domain.MediaDescriptor{
				CID:         media.CID,
				Kind:        string(domain.MediaVideo),
				ContentType: p.FileContentType,
			},
		}
		desc, err := s.deps.Uploader.PinJSON(ctx, p.fileName()+".meta.json", meta)
		if err != nil {
			return "", fmt.Errorf("pin metadata: %w", err)
		}
		return desc.CID, nil

	case domain.MediaImage:
		if len(p.File) == 0 {
			return "", fmt.Errorf("%w: image submission requires a file", domain.ErrValidation)
		}
		desc, err := s.deps.Uploader.PinFile(ctx, p.fileName(), p.File, p.FileContentType, map[string]string{
			"category": p.category(),
		})
		if err != nil {
			return "", fmt.Errorf("pin image: %w", err)
		}
		return desc.CID, nil

	default:
		meta := domain.ContentMetadata{
			Title:    p.Title,
			Text:     p.Text,
			Summary:  p.Summary,
			Category: p.category(),
			Kind:     string(domain.MediaText),
		}
		desc, err := s.deps.Uploader.PinJSON(ctx, "prediction.json", meta)
		if err != nil {
			return "", fmt.Errorf("pin text content: %w", err)
		}
		return desc.CID, nil
	}
}

// begin checks preconditions and claims the sequencer for one run.
// Connectivity failures surface before any stage executes.
func (s *Sequencer) begin(action domain.Action, recordID uint64) error {
	if s.deps.Submitter == nil || s.deps.Allowance == nil {
		return fmt.Errorf("sequencer: %w", domain.ErrNoClient)
	}
	if (s.deps.Account == common.Address{}) {
		return fmt.Errorf("sequencer: %w", domain.ErrNoAccount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sequencer: %w", domain.ErrSequenceActive)
	}
	s.running = true
	s.status = domain.SequenceStatus{
		RunID:     uuid.New().String(),
		Action:    action,
		RecordID:  recordID,
		Stage:     domain.StageIdle,
		StartedAt: s.deps.Now(),
	}
	return nil
}

func (s *Sequencer) finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// setStage advances to the next stage and notifies the observer. Stages
// only move forward; a regression is a programming error and is ignored.
func (s *Sequencer) setStage(stage domain.Stage) {
	s.mu.Lock()
	if stage != domain.StageError && !s.status.Stage.Before(stage) && s.status.Stage != domain.StageIdle {
		s.mu.Unlock()
		return
	}
	s.status.Stage = stage
	snapshot := s.status
	s.mu.Unlock()

	s.logger.Debug("stage transition",
		slog.String("run_id", snapshot.RunID),
		slog.String("action", string(snapshot.Action)),
		slog.String("stage", string(stage)),
	)
	if s.deps.OnStage != nil {
		s.deps.OnStage(snapshot)
	}
}

func (s *Sequencer) setTxHash(hash string) {
	s.mu.Lock()
	s.status.TxHash = hash
	s.mu.Unlock()
}

// fail freezes the failing stage for diagnostics, moves to the error stage,
// and returns the wrapped error. Failures are always surfaced to the caller.
func (s *Sequencer) fail(ctx context.Context, err error) error {
	s.mu.Lock()
	s.status.FailedStage = s.status.Stage
	s.status.Stage = domain.StageError
	s.status.Error = err.Error()
	snapshot := s.status
	s.mu.Unlock()

	s.logger.ErrorContext(ctx, "sequence failed",
		slog.String("run_id", snapshot.RunID),
		slog.String("action", string(snapshot.Action)),
		slog.String("failed_stage", string(snapshot.FailedStage)),
		slog.String("error", err.Error()),
	)
	if s.deps.OnStage != nil {
		s.deps.OnStage(snapshot)
	}
	return fmt.Errorf("sequencer: %s at %s: %w", snapshot.Action, snapshot.FailedStage, err)
}

// invalidate evicts affected cache scopes after a confirmed write. Failures
// are logged, not fatal: entries expire on their own.
func (s *Sequencer) invalidate(ctx context.Context, ev WriteEvent) {
	if s.deps.Invalidator == nil {
		return
	}
	ev.Account = s.deps.Account
	if err := s.deps.Invalidator.InvalidateAfterWrite(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed",
			slog.String("action", string(ev.Action)),
			slog.Uint64("record_id", ev.RecordID),
			slog.String("error", err.Error()),
		)
	}
}
