package domain

import "time"

// Stage is the lifecycle stage of a pending on-chain action. Stages advance
// strictly forward; error may be entered from any stage and freezes the stage
// at which the failure occurred for diagnostics.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageValidating        Stage = "validating"
	StageUploading         Stage = "uploading"
	StageCheckingAllowance Stage = "checking-allowance"
	StageApproving         Stage = "approving"
	StageSubmitting        Stage = "submitting"
	StageWaiting           Stage = "waiting"
	StageSuccess           Stage = "success"
	StageError             Stage = "error"
)

// stageOrder fixes the forward ordering of pipeline stages.
var stageOrder = map[Stage]int{
	StageIdle:              0,
	StageValidating:        1,
	StageUploading:         2,
	StageCheckingAllowance: 3,
	StageApproving:         4,
	StageSubmitting:        5,
	StageWaiting:           6,
	StageSuccess:           7,
}

// Before reports whether s is strictly earlier than other in the pipeline.
// StageError is terminal and ordered after everything.
func (s Stage) Before(other Stage) bool {
	if s == StageError {
		return false
	}
	if other == StageError {
		return true
	}
	return stageOrder[s] < stageOrder[other]
}

// Action identifies the state-changing user action a sequence drives.
type Action string

const (
	ActionStakeFor     Action = "stake-for"
	ActionStakeAgainst Action = "stake-against"
	ActionCopy         Action = "copy"
	ActionCreate       Action = "create"
)

// SequenceStatus is the synchronously observable state of a sequencer run.
// It is ephemeral, owned by the run that created it, and never persisted.
type SequenceStatus struct {
	RunID       string    `json:"run_id"`
	Action      Action    `json:"action"`
	RecordID    uint64    `json:"record_id,omitempty"`
	Stage       Stage     `json:"stage"`
	FailedStage Stage     `json:"failed_stage,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

// SequenceResult is returned to the caller on a successful run.
type SequenceResult struct {
	TxHash     string  `json:"tx_hash"`
	RecordID   *uint64 `json:"record_id,omitempty"` // from the decoded creation event
	ContentCID string  `json:"content_cid,omitempty"`
}
