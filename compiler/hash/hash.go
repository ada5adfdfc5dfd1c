package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/jsvm/compiler"
)

// HashProgram computes the SHA-256 content hash of a parsed program.
//
// The hash is computed over a deterministic serialization of the syntax
// tree. Source positions, whitespace and comments do not contribute, so
// two scripts that differ only in layout produce the same hash.
func HashProgram(prog *compiler.Program) [32]byte {
	return sha256.Sum256(Serialize(prog))
}

// Key returns the hex form of HashProgram, for use as a storage key.
func Key(prog *compiler.Program) string {
	sum := HashProgram(prog)
	return hex.EncodeToString(sum[:])
}
