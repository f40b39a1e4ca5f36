package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forescene/forescene/internal/chain"
	"github.com/forescene/forescene/internal/domain"
)

type fakeAllowance struct {
	allowance *big.Int
	err       error
	calls     int
}

func (f *fakeAllowance) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.allowance, nil
}

type submitCall struct {
	method string
	id     uint64
	amount *big.Int
}

type fakeSubmitter struct {
	calls      []submitCall
	events     []chain.Event
	approveErr error
	submitErr  error
	waitErr    error
	// waitHold, when non-nil, blocks WaitMined until closed.
	waitHold chan struct{}
}

func (f *fakeSubmitter) record(method string, id uint64, amount *big.Int) common.Hash {
	f.calls = append(f.calls, submitCall{method: method, id: id, amount: amount})
	return common.HexToHash(fmt.Sprintf("0x%02x", len(f.calls)))
}

func (f *fakeSubmitter) Approve(ctx context.Context, amount *big.Int) (common.Hash, error) {
	if f.approveErr != nil {
		return common.Hash{}, f.approveErr
	}
	return f.record("approve", 0, amount), nil
}

func (f *fakeSubmitter) StakeFor(ctx context.Context, recordID uint64, amount *big.Int) (common.Hash, error) {
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return f.record("stakeFor", recordID, amount), nil
}

func (f *fakeSubmitter) StakeAgainst(ctx context.Context, recordID uint64, amount *big.Int) (common.Hash, error) {
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return f.record("stakeAgainst", recordID, amount), nil
}

func (f *fakeSubmitter) CopyRecord(ctx context.Context, recordID uint64, amount *big.Int) (common.Hash, error) {
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return f.record("copy", recordID, amount), nil
}

func (f *fakeSubmitter) CreateRecord(ctx context.Context, args chain.CreateArgs) (common.Hash, error) {
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return f.record("create", 0, args.Amount), nil
}

func (f *fakeSubmitter) WaitMined(ctx context.Context, hash common.Hash) ([]chain.Event, error) {
	if f.waitHold != nil {
		select {
		case <-f.waitHold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.calls = append(f.calls, submitCall{method: "wait"})
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.events, nil
}

type pinCall struct {
	method string
	name   string
}

type fakeUploader struct {
	calls    []pinCall
	lastJSON any
	err      error
}

func (f *fakeUploader) PinFile(ctx context.Context, name string, data []byte, contentType string, keyvalues map[string]string) (domain.ContentDescriptor, error) {
	if f.err != nil {
		return domain.ContentDescriptor{}, f.err
	}
	f.calls = append(f.calls, pinCall{method: "file", name: name})
	return domain.ContentDescriptor{CID: fmt.Sprintf("file-cid-%d", len(f.calls))}, nil
}

func (f *fakeUploader) PinJSON(ctx context.Context, name string, v any) (domain.ContentDescriptor, error) {
	if f.err != nil {
		return domain.ContentDescriptor{}, f.err
	}
	f.calls = append(f.calls, pinCall{method: "json", name: name})
	f.lastJSON = v
	return domain.ContentDescriptor{CID: fmt.Sprintf("json-cid-%d", len(f.calls))}, nil
}

type fakeInvalidator struct {
	events []WriteEvent
}

func (f *fakeInvalidator) InvalidateAfterWrite(ctx context.Context, ev WriteEvent) error {
	f.events = append(f.events, ev)
	return nil
}

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

func newTestDeps(allowance *fakeAllowance, sub *fakeSubmitter) (Deps, *fakeInvalidator, *[]domain.Stage) {
	inv := &fakeInvalidator{}
	stages := &[]domain.Stage{}
	deps := Deps{
		Allowance:   allowance,
		Submitter:   sub,
		Uploader:    &fakeUploader{},
		Invalidator: inv,
		Account:     testAccount,
		ChainID:     31337,
		OnStage: func(st domain.SequenceStatus) {
			*stages = append(*stages, st.Stage)
		},
	}
	return deps, inv, stages
}

func TestStakeForSkipsApprovalWhenAllowanceSufficient(t *testing.T) {
	allowance := &fakeAllowance{allowance: big.NewInt(0).Mul(big.NewInt(100), big.NewInt(1e18))}
	sub := &fakeSubmitter{}
	deps, inv, stages := newTestDeps(allowance, sub)
	seq := New(deps)

	result, err := seq.StakeFor(context.Background(), 7, "1.5")
	require.NoError(t, err)
	assert.NotEmpty(t, result.TxHash)

	assert.Equal(t, []domain.Stage{
		domain.StageValidating,
		domain.StageCheckingAllowance,
		domain.StageSubmitting,
		domain.StageWaiting,
		domain.StageSuccess,
	}, *stages)

	// Exactly one primary transaction, no approval.
	require.Len(t, sub.calls, 2)
	assert.Equal(t, "stakeFor", sub.calls[0].method)
	assert.Equal(t, uint64(7), sub.calls[0].id)
	assert.Equal(t, "1500000000000000000", sub.calls[0].amount.String())

	// Allowance was read fresh for this run.
	assert.Equal(t, 1, allowance.calls)

	require.Len(t, inv.events, 1)
	assert.Equal(t, domain.ActionStakeFor, inv.events[0].Action)
	assert.Equal(t, uint64(7), inv.events[0].RecordID)
	assert.Equal(t, testAccount, inv.events[0].Account)
}

func TestStakeForApprovesAndConfirmsBeforeSubmit(t *testing.T) {
	allowance := &fakeAllowance{allowance: big.NewInt(0)}
	sub := &fakeSubmitter{}
	deps, _, stages := newTestDeps(allowance, sub)
	seq := New(deps)

	_, err := seq.StakeFor(context.Background(), 3, "2")
	require.NoError(t, err)

	assert.Contains(t, *stages, domain.StageApproving)

	// Approval is submitted and confirmed strictly before the stake.
	methods := make([]string, 0, len(sub.calls))
	for _, c := range sub.calls {
		methods = append(methods, c.method)
	}
	assert.Equal(t, []string{"approve", "wait", "stakeFor", "wait"}, methods)
}

func TestStakeValidationFailureFreezesStage(t *testing.T) {
	allowance := &fakeAllowance{allowance: big.NewInt(0)}
	sub := &fakeSubmitter{}
	deps, _, _ := newTestDeps(allowance, sub)
	seq := New(deps)

	_, err := seq.StakeFor(context.Background(), 1, "-5")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	st := seq.Status()
	assert.Equal(t, domain.StageError, st.Stage)
	assert.Equal(t, domain.StageValidating, st.FailedStage)
	assert.NotEmpty(t, st.Error)

	// No network call was attempted.
	assert.Zero(t, allowance.calls)
	assert.Empty(t, sub.calls)
}

func TestStakeSubmitFailureFreezesSubmittingStage(t *testing.T) {
	allowance := &fakeAllowance{allowance: big.NewInt(1e18)}
	sub := &fakeSubmitter{submitErr: errors.New("nonce too low")}
	deps, inv, _ := newTestDeps(allowance, sub)
	seq := New(deps)

	_, err := seq.StakeAgainst(context.Background(), 9, "1")
	require.Error(t, err)

	st := seq.Status()
	assert.Equal(t, domain.StageError, st.Stage)
	assert.Equal(t, domain.StageSubmitting, st.FailedStage)
	assert.Empty(t, inv.events)
}

func TestSecondRunWhileActiveFails(t *testing.T) {
	allowance := &fakeAllowance{allowance: big.NewInt(1e18)}
	hold := make(chan struct{})
	sub := &fakeSubmitter{waitHold: hold}
	deps, _, _ := newTestDeps(allowance, sub)
	seq := New(deps)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = seq.StakeFor(context.Background(), 1, "1")
	}()

	// Wait until the first run is blocked in the waiting stage.
	require.Eventually(t, func() bool {
		return seq.Status().Stage == domain.StageWaiting
	}, time.Second, 5*time.Millisecond)

	_, err := seq.StakeFor(context.Background(), 2, "1")
	assert.ErrorIs(t, err, domain.ErrSequenceActive)

	close(hold)
	<-done
}

func TestResetReturnsToIdle(t *testing.T) {
	allowance := &fakeAllowance{allowance: big.NewInt(0)}
	sub := &fakeSubmitter{}
	deps, _, _ := newTestDeps(allowance, sub)
	seq := New(deps)

	_, err := seq.StakeFor(context.Background(), 1, "not-a-number")
	require.Error(t, err)
	require.Equal(t, domain.StageError, seq.Status().Stage)

	seq.Reset()
	st := seq.Status()
	assert.Equal(t, domain.StageIdle, st.Stage)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.FailedStage)

	// Reset is idempotent.
	seq.Reset()
	assert.Equal(t, domain.StageIdle, seq.Status().Stage)
}

func TestBeginRequiresAccountAndClient(t *testing.T) {
	deps, _, _ := newTestDeps(&fakeAllowance{allowance: big.NewInt(0)}, &fakeSubmitter{})
	deps.Account = common.Address{}
	seq := New(deps)
	_, err := seq.StakeFor(context.Background(), 1, "1")
	assert.ErrorIs(t, err, domain.ErrNoAccount)

	deps2, _, _ := newTestDeps(&fakeAllowance{}, &fakeSubmitter{})
	deps2.Submitter = nil
	seq2 := New(deps2)
	_, err = seq2.StakeFor(context.Background(), 1, "1")
	assert.ErrorIs(t, err, domain.ErrNoClient)
	_, err = seq2.StakeAgainst(context.Background(), 1, "1")
	assert.ErrorIs(t, err, domain.ErrNoClient)
	_, err = seq2.Copy(context.Background(), 1, "1")
	assert.ErrorIs(t, err, domain.ErrNoClient)
	assert.Equal(t, domain.StageIdle, seq2.Status().Stage)
}

func createParams(deadline time.Time) CreateParams {
	return CreateParams{
		Title:    "Will it rain tomorrow",
		Text:     "Local forecast disagreement",
		Category: "weather",
		Deadline: deadline,
		FeeBps:   250,
		Amount:   "10",
	}
}

func TestCreateTextPinsMetadataAndDecodesRecordID(t *testing.T) {
	allowance := &fakeAllowance{allowance: big.NewInt(0).Mul(big.NewInt(100), big.NewInt(1e18))}
	sub := &fakeSubmitter{events: []chain.Event{
		chain.RecordCreated{ID: 42, Creator: testAccount, ContentRef: "json-cid-1"},
	}}
	deps, inv, stages := newTestDeps(allowance, sub)
	up := &fakeUploader{}
	deps.Uploader = up
	seq := New(deps)

	result, err := seq.Create(context.Background(), createParams(time.Now().Add(48*time.Hour)))
	require.NoError(t, err)

	require.NotNil(t, result.RecordID)
	assert.Equal(t, uint64(42), *result.RecordID)
	assert.Equal(t, "json-cid-1", result.ContentCID)

	require.Len(t, up.calls, 1)
	assert.Equal(t, "json", up.calls[0].method)
	meta, ok := up.lastJSON.(domain.ContentMetadata)
	require.True(t, ok)
	assert.Equal(t, "Will it rain tomorrow", meta.Title)
	assert.Equal(t, string(domain.MediaText), meta.Kind)

	assert.Contains(t, *stages, domain.StageUploading)

	require.Len(t, inv.events, 1)
	assert.Equal(t, domain.ActionCreate, inv.events[0].Action)
	assert.Equal(t, uint64(42), inv.events[0].RecordID)
}

func TestCreateVideoPinsMediaThenMetadata(t *testing.T) {
	allowance := &fakeAllowance{allowance: big.NewInt(0).Mul(big.NewInt(100), big.NewInt(1e18))}
	sub := &fakeSubmitter{}
	deps, _, _ := newTestDeps(allowance, sub)
	up := &fakeUploader{}
	deps.Uploader = up
	seq := New(deps)

	p := createParams(time.Now().Add(48 * time.Hour))
	p.File = []byte{0x00, 0x01}
	p.FileName = "clip.mp4"
	p.FileContentType = "video/mp4"

	result, err := seq.Create(context.Background(), p)
	require.NoError(t, err)

	// Media first, then the metadata document embedding its CID.
	require.Len(t, up.calls, 2)
	assert.Equal(t, "file", up.calls[0].method)
	assert.Equal(t, "json", up.calls[1].method)

	meta, ok := up.lastJSON.(domain.ContentMetadata)
	require.True(t, ok)
	require.NotNil(t, meta.Media)
	assert.Equal(t, "file-cid-1", meta.Media.CID)
	assert.Equal(t, string(domain.MediaVideo), meta.Media.Kind)

	// The record references the metadata document, not the raw media.
	assert.Equal(t, "json-cid-2", result.ContentCID)
}

func TestCreateWithContentRefSkipsUpload(t *testing.T) {
	allowance := &fakeAllowance{allowance: big.NewInt(0).Mul(big.NewInt(100), big.NewInt(1e18))}
	sub := &fakeSubmitter{}
	deps, _, stages := newTestDeps(allowance, sub)
	up := &fakeUploader{}
	deps.Uploader = up
	seq := New(deps)

	p := createParams(time.Now().Add(48 * time.Hour))
	p.ContentRef = "bafyexisting"

	result, err := seq.Create(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "bafyexisting", result.ContentCID)
	assert.Empty(t, up.calls)
	assert.NotContains(t, *stages, domain.StageUploading)
}
