package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HashSize is the digest size of the facto hash primitive, in bytes.
const HashSize = 32

// ZeroHash is the canonical prev_hash of the first event in a session.
var ZeroHash = strings.Repeat("0", HashSize*2)

// Hash computes the SHA3-256 digest of canonical bytes.
func Hash(canonical []byte) [HashSize]byte {
	return sha3.Sum256(canonical)
}

// HashHex computes the SHA3-256 digest of canonical bytes and returns it as
// 64 lowercase hex characters, the wire form of event_hash and Merkle roots.
func HashHex(canonical []byte) string {
	h := Hash(canonical)
	return hex.EncodeToString(h[:])
}

// DecodeHashHex parses a 64-character lowercase hex hash. Uppercase hex is
// rejected: the verifier must accept only the canonical lowercase form.
func DecodeHashHex(s string) ([HashSize]byte, error) {
	var out [HashSize]byte
	if len(s) != HashSize*2 {
		return out, fmt.Errorf("hash must be %d hex characters, got %d", HashSize*2, len(s))
	}
	for _, c := range s {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			continue
		}
		return out, fmt.Errorf("hash %q is not lowercase hex", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("decode hash: %w", err)
	}
	copy(out[:], b)
	return out, nil
}
