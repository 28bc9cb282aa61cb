package ports

import "github.com/ethereum/go-ethereum/common"

// SignatureVerifier recovers the signer of a personal message
type SignatureVerifier interface {
	RecoverAddress(message, signature []byte) (common.Address, error)
}
