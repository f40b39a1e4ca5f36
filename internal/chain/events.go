package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is the tagged union over decoded registry log events. Consumers
// switch on the concrete type rather than probing dynamic shapes.
type Event interface {
	EventName() string
}

// RecordCreated is emitted when the registry assigns a new record id.
type RecordCreated struct {
	ID         uint64
	Creator    common.Address
	ContentRef string
}

func (RecordCreated) EventName() string { return "RecordCreated" }

// Staked is emitted on every stake, carrying the side and amount.
type Staked struct {
	ID      uint64
	Staker  common.Address
	ForSide bool
	Amount  *big.Int
}

func (Staked) EventName() string { return "Staked" }

// Copied is emitted when a record is copied.
type Copied struct {
	ID     uint64
	Copier common.Address
	Amount *big.Int
}

func (Copied) EventName() string { return "Copied" }

// DecodeReceiptEvents scans all logs emitted by the given contract address
// and decodes the known registry events. Logs from other contracts and logs
// that fail to decode are skipped; decoding never fails the caller.
func DecodeReceiptEvents(receipt *types.Receipt, contract common.Address) []Event {
	var events []Event
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != contract {
			continue
		}
		if ev, ok := decodeLog(lg); ok {
			events = append(events, ev)
		}
	}
	return events
}

// FirstRecordCreated returns the first RecordCreated event, if any.
func FirstRecordCreated(events []Event) (RecordCreated, bool) {
	for _, ev := range events {
		if rc, ok := ev.(RecordCreated); ok {
			return rc, true
		}
	}
	return RecordCreated{}, false
}

func decodeLog(lg *types.Log) (Event, bool) {
	if len(lg.Topics) == 0 {
		return nil, false
	}
	ev, err := registryABI.EventByID(lg.Topics[0])
	if err != nil {
		return nil, false
	}

	data, err := ev.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, false
	}

	switch ev.Name {
	case "RecordCreated":
		if len(lg.Topics) < 3 || len(data) < 1 {
			return nil, false
		}
		contentRef, ok := data[0].(string)
		if !ok {
			return nil, false
		}
		return RecordCreated{
			ID:         new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
			Creator:    common.BytesToAddress(lg.Topics[2].Bytes()),
			ContentRef: contentRef,
		}, true

	case "Staked":
		if len(lg.Topics) < 3 || len(data) < 2 {
			return nil, false
		}
		forSide, ok1 := data[0].(bool)
		amount, ok2 := data[1].(*big.Int)
		if !ok1 || !ok2 {
			return nil, false
		}
		return Staked{
			ID:      new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
			Staker:  common.BytesToAddress(lg.Topics[2].Bytes()),
			ForSide: forSide,
			Amount:  amount,
		}, true

	case "Copied":
		if len(lg.Topics) < 3 || len(data) < 1 {
			return nil, false
		}
		amount, ok := data[0].(*big.Int)
		if !ok {
			return nil, false
		}
		return Copied{
			ID:     new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
			Copier: common.BytesToAddress(lg.Topics[2].Bytes()),
			Amount: amount,
		}, true
	}

	return nil, false
}
