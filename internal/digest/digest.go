// Package digest computes the deterministic fingerprint used to
// compare two copies of a Record without transferring either one.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/aryanbagade/gossip-fabric/internal/model"
)

// Of canonicalizes the record as a deterministic JSON serialization
// with Digest cleared, hashes it with SHA-256, and returns the
// lowercase hex string. encoding/json already emits struct fields in the order
// they're declared and map keys sorted, which gives the canonical
// form the record needs without a bespoke encoder.
func Of(r model.Record) (string, error) {
	r.Digest = ""
	buf, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// Stamp computes the digest of r and returns a copy with Digest set,
// so callers never have to remember to clear-then-hash-then-assign
// in the right order.
func Stamp(r model.Record) (model.Record, error) {
	d, err := Of(r)
	if err != nil {
		return r, err
	}
	r.Digest = d
	return r, nil
}
