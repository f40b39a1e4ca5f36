package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRegistry = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testAccount  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func idTopic(id uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(id))
}

func addrTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func recordCreatedLog(t *testing.T, id uint64, creator common.Address, contentRef string) *types.Log {
	t.Helper()
	ev := registryABI.Events["RecordCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(contentRef)
	require.NoError(t, err)
	return &types.Log{
		Address: testRegistry,
		Topics:  []common.Hash{ev.ID, idTopic(id), addrTopic(creator)},
		Data:    data,
	}
}

func stakedLog(t *testing.T, id uint64, staker common.Address, forSide bool, amount *big.Int) *types.Log {
	t.Helper()
	ev := registryABI.Events["Staked"]
	data, err := ev.Inputs.NonIndexed().Pack(forSide, amount)
	require.NoError(t, err)
	return &types.Log{
		Address: testRegistry,
		Topics:  []common.Hash{ev.ID, idTopic(id), addrTopic(staker)},
		Data:    data,
	}
}

func TestDecodeReceiptEvents(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		recordCreatedLog(t, 7, testAccount, "QmContent"),
		stakedLog(t, 7, testAccount, true, big.NewInt(1000)),
	}}

	events := DecodeReceiptEvents(receipt, testRegistry)
	require.Len(t, events, 2)

	created, ok := events[0].(RecordCreated)
	require.True(t, ok)
	assert.Equal(t, uint64(7), created.ID)
	assert.Equal(t, testAccount, created.Creator)
	assert.Equal(t, "QmContent", created.ContentRef)

	staked, ok := events[1].(Staked)
	require.True(t, ok)
	assert.Equal(t, uint64(7), staked.ID)
	assert.True(t, staked.ForSide)
	assert.Equal(t, "1000", staked.Amount.String())
}

func TestDecodeReceiptEventsSkipsForeignAndMalformedLogs(t *testing.T) {
	other := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	receipt := &types.Receipt{Logs: []*types.Log{
		nil,
		// Emitted by a different contract.
		func() *types.Log {
			lg := recordCreatedLog(t, 1, testAccount, "QmA")
			lg.Address = other
			return lg
		}(),
		// Unknown topic.
		{Address: testRegistry, Topics: []common.Hash{common.HexToHash("0xdead")}},
		// No topics at all.
		{Address: testRegistry},
		recordCreatedLog(t, 2, testAccount, "QmB"),
	}}

	events := DecodeReceiptEvents(receipt, testRegistry)
	require.Len(t, events, 1)
	created, ok := events[0].(RecordCreated)
	require.True(t, ok)
	assert.Equal(t, uint64(2), created.ID)
}

func TestFirstRecordCreated(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		stakedLog(t, 3, testAccount, false, big.NewInt(5)),
		recordCreatedLog(t, 42, testAccount, "QmFirst"),
		recordCreatedLog(t, 43, testAccount, "QmSecond"),
	}}
	events := DecodeReceiptEvents(receipt, testRegistry)

	created, ok := FirstRecordCreated(events)
	require.True(t, ok)
	assert.Equal(t, uint64(42), created.ID)
	assert.Equal(t, "QmFirst", created.ContentRef)

	_, ok = FirstRecordCreated(nil)
	assert.False(t, ok)
}
