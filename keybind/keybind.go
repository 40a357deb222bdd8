// Package keybind turns an enclave signing key into the 32-byte commitment
// bound into attestations, and back-checks a verified quote against the
// expected key.
package keybind

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CommitmentSize matches the report-data commitment the generation protocol
// accepts.
const CommitmentSize = 32

// GenerateEnclaveKey creates a fresh secp256k1 signing key for the enclave.
func GenerateEnclaveKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate enclave key: %v", err)
	}
	return key, nil
}

// KeyAddress derives the 20-byte address of an enclave signing key.
func KeyAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Commitment places the key's address in the leading bytes of the report
// data commitment, zero-padded; this is the value a relying party later
// recovers with Quote.GetEnclaveKeyAddress.
func Commitment(key *ecdsa.PrivateKey) [CommitmentSize]byte {
	var data [CommitmentSize]byte
	copy(data[:], KeyAddress(key).Bytes())
	return data
}
