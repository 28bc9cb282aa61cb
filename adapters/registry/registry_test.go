package registry

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/keyauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	registryAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	aliceKey     = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	guardianKey  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type fakeBackend struct {
	keys map[core.UserID]map[common.Address]bool

	head    uint64
	logs    []types.Log
	callErr error
	headErr error
	logsErr error
	raw     []byte

	lastCall  ethereum.CallMsg
	lastQuery ethereum.FilterQuery
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.lastCall = call
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.raw != nil {
		return f.raw, nil
	}

	method, err := parsedABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}

	userID := core.UserID(args[0].([32]byte))
	key := args[1].(common.Address)

	return method.Outputs.Pack(f.keys[userID][key])
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.lastQuery = q
	if f.logsErr != nil {
		return nil, f.logsErr
	}

	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.head, f.headErr
}

func eventLog(t *testing.T, name string, block uint64, indexed ...common.Hash) types.Log {
	t.Helper()
	ev, ok := parsedABI.Events[name]
	require.True(t, ok, "unknown event %s", name)

	return types.Log{
		Address:     registryAddr,
		Topics:      append([]common.Hash{ev.ID}, indexed...),
		BlockNumber: block,
		TxHash:      crypto.Keccak256Hash([]byte(name), new(big.Int).SetUint64(block).Bytes()),
	}
}

func TestContractRegistry_IsKey(t *testing.T) {
	alice := core.DeriveUserID("alice")
	backend := &fakeBackend{
		keys: map[core.UserID]map[common.Address]bool{
			alice: {aliceKey: true},
		},
	}
	reg := NewContractRegistry(backend, registryAddr)

	ok, err := reg.IsKey(context.Background(), alice, aliceKey)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, backend.lastCall.To)
	assert.Equal(t, registryAddr, *backend.lastCall.To)

	ok, err = reg.IsKey(context.Background(), alice, guardianKey)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reg.IsKey(context.Background(), core.DeriveUserID("bob"), aliceKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContractRegistry_IsKeyFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
	}{
		{name: "rpc error", backend: &fakeBackend{callErr: errors.New("connection refused")}},
		{name: "timeout", backend: &fakeBackend{callErr: context.DeadlineExceeded}},
		{name: "empty result", backend: &fakeBackend{raw: []byte{}}},
		{name: "garbage result", backend: &fakeBackend{raw: []byte{0x01, 0x02}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewContractRegistry(tt.backend, registryAddr)
			ok, err := reg.IsKey(context.Background(), core.DeriveUserID("alice"), aliceKey)
			assert.False(t, ok)
			assert.ErrorIs(t, err, core.ErrOracleUnavailable)
		})
	}
}

func TestContractRegistry_RecentEvents(t *testing.T) {
	alice := core.DeriveUserID("alice")
	userTopic := common.Hash(alice)

	backend := &fakeBackend{
		head: 6000,
		logs: []types.Log{
			eventLog(t, "UserRegistered", 500, userTopic, common.BytesToHash(aliceKey.Bytes())),
			eventLog(t, "UserRegistered", 1200, userTopic, common.BytesToHash(aliceKey.Bytes())),
			eventLog(t, "KeyAdded", 1300, userTopic, common.BytesToHash(guardianKey.Bytes())),
			eventLog(t, "RecoveryProposed", 5900, userTopic, common.BytesToHash(aliceKey.Bytes()), common.BytesToHash(guardianKey.Bytes())),
			// unknown topic is skipped
			{Address: registryAddr, Topics: []common.Hash{crypto.Keccak256Hash([]byte("Other()"))}, BlockNumber: 5950},
			// wrong topic count is skipped
			eventLog(t, "KeyRemoved", 5960, userTopic),
		},
	}
	reg := NewContractRegistry(backend, registryAddr)

	events, err := reg.RecentEvents(context.Background(), DefaultEventWindow)
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), backend.lastQuery.FromBlock.Uint64())
	assert.Equal(t, uint64(6000), backend.lastQuery.ToBlock.Uint64())
	assert.Equal(t, []common.Address{registryAddr}, backend.lastQuery.Addresses)

	require.Len(t, events, 3)

	assert.Equal(t, "UserRegistered", events[0].Name)
	assert.Equal(t, uint64(1200), events[0].BlockNumber)
	assert.Equal(t, alice.String(), events[0].Args["userId"])
	assert.Equal(t, aliceKey.Hex(), events[0].Args["key"])
	assert.Equal(t, backend.logs[1].TxHash.Hex(), events[0].TxHash)

	assert.Equal(t, "KeyAdded", events[1].Name)
	assert.Equal(t, guardianKey.Hex(), events[1].Args["key"])

	assert.Equal(t, "RecoveryProposed", events[2].Name)
	assert.Equal(t, map[string]string{
		"userId":   alice.String(),
		"newKey":   aliceKey.Hex(),
		"guardian": guardianKey.Hex(),
	}, events[2].Args)
}

func TestContractRegistry_RecentEventsSmallChain(t *testing.T) {
	backend := &fakeBackend{head: 10}
	reg := NewContractRegistry(backend, registryAddr)

	events, err := reg.RecentEvents(context.Background(), DefaultEventWindow)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotNil(t, events, "empty result should encode as []")
	assert.Equal(t, uint64(0), backend.lastQuery.FromBlock.Uint64())
}

func TestContractRegistry_RecentEventsGenesis(t *testing.T) {
	backend := &fakeBackend{head: 0}
	reg := NewContractRegistry(backend, registryAddr)

	events, err := reg.RecentEvents(context.Background(), DefaultEventWindow)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Nil(t, backend.lastQuery.ToBlock, "logs should not be queried at genesis")
}

func TestContractRegistry_RecentEventsFailures(t *testing.T) {
	for name, backend := range map[string]*fakeBackend{
		"head":   {headErr: errors.New("boom")},
		"filter": {head: 100, logsErr: errors.New("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewContractRegistry(backend, registryAddr).RecentEvents(context.Background(), 10)
			assert.ErrorIs(t, err, core.ErrEventsUnavailable)
		})
	}
}
