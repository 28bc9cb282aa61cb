package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// registryABI covers the read-only surface of the key registry contract
const registryABI = `[
	{"type":"function","name":"isKey","stateMutability":"view",
	 "inputs":[{"name":"userId","type":"bytes32"},{"name":"key","type":"address"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"UserRegistered","anonymous":false,
	 "inputs":[{"name":"userId","type":"bytes32","indexed":true},{"name":"key","type":"address","indexed":true}]},
	{"type":"event","name":"KeyAdded","anonymous":false,
	 "inputs":[{"name":"userId","type":"bytes32","indexed":true},{"name":"key","type":"address","indexed":true}]},
	{"type":"event","name":"KeyRemoved","anonymous":false,
	 "inputs":[{"name":"userId","type":"bytes32","indexed":true},{"name":"key","type":"address","indexed":true}]},
	{"type":"event","name":"RecoveryProposed","anonymous":false,
	 "inputs":[{"name":"userId","type":"bytes32","indexed":true},{"name":"newKey","type":"address","indexed":true},{"name":"guardian","type":"address","indexed":true}]},
	{"type":"event","name":"RecoveryExecuted","anonymous":false,
	 "inputs":[{"name":"userId","type":"bytes32","indexed":true},{"name":"newKey","type":"address","indexed":true}]}
]`

var parsedABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()
