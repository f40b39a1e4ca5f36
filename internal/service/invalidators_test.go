package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/sequencer"
)

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) InvalidateAfterWrite(ctx context.Context, ev sequencer.WriteEvent) error {
	c.calls++
	return c.err
}

func TestInvalidatorsFanOutReachesEveryMember(t *testing.T) {
	failing := &countingInvalidator{err: errors.New("cache down")}
	healthy := &countingInvalidator{}

	err := Invalidators{failing, nil, healthy}.InvalidateAfterWrite(context.Background(), sequencer.WriteEvent{
		Action: domain.ActionStakeFor,
	})

	require.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls, "a failing member does not stop the fan-out")
}

func TestInvalidatorsEmptyIsNoop(t *testing.T) {
	assert.NoError(t, Invalidators{}.InvalidateAfterWrite(context.Background(), sequencer.WriteEvent{}))
}
