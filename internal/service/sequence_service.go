package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/sequencer"
)

const (
	channelSequences = "sequences"
	streamSequences  = "sequences:history"

	eventSequenceSuccess = "sequence_success"
	eventSequenceError   = "sequence_error"
	eventRecordCreated   = "record_created"
)

// SequenceService fronts the transaction sequencer: it runs the pipelines,
// mirrors every stage transition onto the signal bus for live subscribers,
// appends terminal states to a durable history stream, and raises operator
// notifications.
type SequenceService struct {
	seq    *sequencer.Sequencer
	bus    domain.SignalBus
	events Events
	logger *slog.Logger
}

// NewSequenceService builds the sequencer from deps and wires its stage
// observer to the bus. Bus and events are optional.
func NewSequenceService(deps sequencer.Deps, bus domain.SignalBus, events Events, logger *slog.Logger) *SequenceService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SequenceService{
		bus:    bus,
		events: events,
		logger: logger.With(slog.String("component", "sequence_service")),
	}

	inner := deps.OnStage
	deps.OnStage = func(status domain.SequenceStatus) {
		s.onStage(status)
		if inner != nil {
			inner(status)
		}
	}
	s.seq = sequencer.New(deps)
	return s
}

// StakeFor stakes on the "for" side of a record and blocks until the
// transaction is confirmed or a stage fails.
func (s *SequenceService) StakeFor(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error) {
	return s.finish(ctx, domain.ActionStakeFor)(s.seq.StakeFor(ctx, recordID, amount))
}

// StakeAgainst stakes on the "against" side of a record.
func (s *SequenceService) StakeAgainst(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error) {
	return s.finish(ctx, domain.ActionStakeAgainst)(s.seq.StakeAgainst(ctx, recordID, amount))
}

// Copy copies an existing record with a stake.
func (s *SequenceService) Copy(ctx context.Context, recordID uint64, amount string) (domain.SequenceResult, error) {
	return s.finish(ctx, domain.ActionCopy)(s.seq.Copy(ctx, recordID, amount))
}

// Create creates a new record, pinning its content first when needed.
func (s *SequenceService) Create(ctx context.Context, params sequencer.CreateParams) (domain.SequenceResult, error) {
	result, err := s.finish(ctx, domain.ActionCreate)(s.seq.Create(ctx, params))
	if err == nil && result.RecordID != nil && s.events != nil {
		_ = s.events.Notify(ctx, eventRecordCreated,
			"Record created",
			fmt.Sprintf("Record #%d created, tx %s", *result.RecordID, result.TxHash),
		)
	}
	return result, err
}

// Status returns the current run state for polling clients.
func (s *SequenceService) Status() domain.SequenceStatus {
	return s.seq.Status()
}

// Reset returns the sequencer to idle so a new run can start after an error.
func (s *SequenceService) Reset() {
	s.seq.Reset()
}

// History reads terminal sequence states back from the durable stream.
func (s *SequenceService) History(ctx context.Context, lastID string, count int) ([]domain.SequenceStatus, string, error) {
	if s.bus == nil {
		return nil, lastID, nil
	}
	if lastID == "" {
		lastID = "0"
	}
	if count <= 0 {
		count = 50
	}

	messages, err := s.bus.StreamRead(ctx, streamSequences, lastID, count)
	if err != nil {
		return nil, lastID, fmt.Errorf("sequence_service: history: %w", err)
	}

	statuses := make([]domain.SequenceStatus, 0, len(messages))
	for _, msg := range messages {
		var status domain.SequenceStatus
		if err := json.Unmarshal(msg.Payload, &status); err != nil {
			continue
		}
		statuses = append(statuses, status)
		lastID = msg.ID
	}
	return statuses, lastID, nil
}

// finish wraps a pipeline return, raising the terminal operator notification.
func (s *SequenceService) finish(ctx context.Context, action domain.Action) func(domain.SequenceResult, error) (domain.SequenceResult, error) {
	return func(result domain.SequenceResult, err error) (domain.SequenceResult, error) {
		if s.events == nil {
			return result, err
		}
		if err != nil {
			_ = s.events.Notify(ctx, eventSequenceError,
				fmt.Sprintf("%s failed", action),
				err.Error(),
			)
		} else {
			_ = s.events.Notify(ctx, eventSequenceSuccess,
				fmt.Sprintf("%s confirmed", action),
				fmt.Sprintf("tx %s", result.TxHash),
			)
		}
		return result, err
	}
}

// onStage mirrors a stage snapshot to live subscribers and, for terminal
// stages, the history stream. Bus failures never interfere with the run.
func (s *SequenceService) onStage(status domain.SequenceStatus) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return
	}

	ctx := context.Background()
	if err := s.bus.Publish(ctx, channelSequences, payload); err != nil {
		s.logger.Debug("stage publish failed",
			slog.String("error", err.Error()),
		)
	}
	if status.Stage == domain.StageSuccess || status.Stage == domain.StageError {
		if err := s.bus.StreamAppend(ctx, streamSequences, payload); err != nil {
			s.logger.Debug("history append failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
