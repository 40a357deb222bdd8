package keybind

import (
	"bytes"
	"testing"
)

func TestCommitmentLayout(t *testing.T) {
	key, err := GenerateEnclaveKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	commitment := Commitment(key)
	addr := KeyAddress(key)

	if !bytes.Equal(commitment[:20], addr.Bytes()) {
		t.Fatalf("commitment prefix %x does not match address %x", commitment[:20], addr.Bytes())
	}
	if !bytes.Equal(commitment[20:], make([]byte, 12)) {
		t.Fatalf("commitment padding is not zero: %x", commitment[20:])
	}
}
