package core

// RegistryEvent is a decoded log emitted by the key registry contract
type RegistryEvent struct {
	Name        string            `json:"name"`
	Args        map[string]string `json:"args"`
	BlockNumber uint64            `json:"blockNumber"`
	TxHash      string            `json:"txHash"`
}
