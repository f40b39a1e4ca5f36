package service

import (
	"context"
	"errors"

	"github.com/forescene/forescene/internal/sequencer"
)

// Invalidators fans a confirmed write out to every cache layer whose scope it
// can affect. Each member sees the event even when another fails.
type Invalidators []sequencer.Invalidator

func (m Invalidators) InvalidateAfterWrite(ctx context.Context, ev sequencer.WriteEvent) error {
	var errs []error
	for _, inv := range m {
		if inv == nil {
			continue
		}
		if err := inv.InvalidateAfterWrite(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ sequencer.Invalidator = (Invalidators)(nil)
