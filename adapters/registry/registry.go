package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/keyauth/core"
	"github.com/layer-3/keyauth/ports"
)

// DefaultEventWindow is how many blocks back RecentEvents looks by default
const DefaultEventWindow = 5000

// Backend is the subset of the JSON-RPC client the registry needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ContractRegistry reads key membership and events from the registry contract
type ContractRegistry struct {
	backend Backend
	address common.Address
	abi     abi.ABI
}

// NewContractRegistry creates a registry bound to the contract at address
func NewContractRegistry(backend Backend, address common.Address) *ContractRegistry {
	return &ContractRegistry{
		backend: backend,
		address: address,
		abi:     parsedABI,
	}
}

// Dial connects to rpcURL and binds the registry at address
func Dial(ctx context.Context, rpcURL string, address common.Address) (*ContractRegistry, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	return NewContractRegistry(client, address), client, nil
}

var _ ports.Registry = (*ContractRegistry)(nil)

// IsKey calls isKey(userId, key) on the latest block
func (r *ContractRegistry) IsKey(ctx context.Context, userID core.UserID, key common.Address) (bool, error) {
	data, err := r.abi.Pack("isKey", userID.Bytes(), key)
	if err != nil {
		return false, fmt.Errorf("failed to pack isKey call: %w", err)
	}

	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("%w: isKey call failed: %w", core.ErrOracleUnavailable, err)
	}

	results, err := r.abi.Unpack("isKey", out)
	if err != nil {
		return false, fmt.Errorf("%w: failed to decode isKey result: %w", core.ErrOracleUnavailable, err)
	}
	if len(results) != 1 {
		return false, fmt.Errorf("%w: unexpected isKey result count %d", core.ErrOracleUnavailable, len(results))
	}

	ok, isBool := results[0].(bool)
	if !isBool {
		return false, fmt.Errorf("%w: unexpected isKey result type %T", core.ErrOracleUnavailable, results[0])
	}

	return ok, nil
}

// RecentEvents returns the decoded registry logs of the last window blocks.
// Logs that do not match a known event are skipped.
func (r *ContractRegistry) RecentEvents(ctx context.Context, window uint64) ([]core.RegistryEvent, error) {
	head, err := r.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read head block: %w", core.ErrEventsUnavailable, err)
	}

	events := []core.RegistryEvent{}
	if head == 0 {
		return events, nil
	}

	from := uint64(0)
	if head > window {
		from = head - window
	}

	logs, err := r.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{r.address},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to filter logs: %w", core.ErrEventsUnavailable, err)
	}

	for _, l := range logs {
		ev, err := r.decodeLog(l)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

var errUnknownEvent = errors.New("unknown event")

func (r *ContractRegistry) decodeLog(l types.Log) (core.RegistryEvent, error) {
	if len(l.Topics) == 0 {
		return core.RegistryEvent{}, errUnknownEvent
	}

	event, err := r.abi.EventByID(l.Topics[0])
	if err != nil {
		return core.RegistryEvent{}, errUnknownEvent
	}

	values := make(map[string]interface{})

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, l.Topics[1:]); err != nil {
		return core.RegistryEvent{}, fmt.Errorf("failed to decode topics: %w", err)
	}
	if err := event.Inputs.UnpackIntoMap(values, l.Data); err != nil {
		return core.RegistryEvent{}, fmt.Errorf("failed to decode data: %w", err)
	}

	args := make(map[string]string, len(values))
	for i, arg := range event.Inputs {
		name := arg.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		args[name] = formatArg(values[arg.Name])
	}

	return core.RegistryEvent{
		Name:        event.Name,
		Args:        args,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash.Hex(),
	}, nil
}

func formatArg(v interface{}) string {
	switch val := v.(type) {
	case common.Address:
		return val.Hex()
	case [32]byte:
		return hexutil.Encode(val[:])
	case common.Hash:
		return val.Hex()
	case []byte:
		return hexutil.Encode(val)
	case *big.Int:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
