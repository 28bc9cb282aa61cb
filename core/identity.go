package core

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserID is the keccak256 digest of a normalized username
type UserID common.Hash

// DeriveUserID hashes the trimmed username. Blank input is the caller's concern.
func DeriveUserID(username string) UserID {
	return UserID(crypto.Keccak256Hash([]byte(strings.TrimSpace(username))))
}

// ParseUserID decodes the 0x-prefixed hex form produced by UserID.String
func ParseUserID(s string) (UserID, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return UserID{}, fmt.Errorf("%w: %v", ErrInvalidUserID, err)
	}
	if len(b) != common.HashLength {
		return UserID{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidUserID, common.HashLength, len(b))
	}
	return UserID(common.BytesToHash(b)), nil
}

func (id UserID) String() string {
	return common.Hash(id).Hex()
}

func (id UserID) Bytes() [32]byte {
	return [32]byte(id)
}
