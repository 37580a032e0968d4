// Package hasher provides the hash functions used to authenticate
// the nodes of the trie, and a registry to look them up by name.
package hasher

import (
	"fmt"

	"github.com/bverify/bverify-go/crypto"
)

// Hash represents the output of the used hash function.
type Hash [crypto.HashSizeByte]byte

// TreeHasher provides hash functions for the trie implementation.
type TreeHasher interface {
	// ID returns the name of the cryptographic hash function.
	ID() string
	// Size returns the size of the hash output in bytes.
	Size() int
	// Digest hashes all passed byte slices. The passed slices won't be mutated.
	Digest(ms ...[]byte) []byte

	// HashInterior computes the hash of an interior node as:
	// H(Identifier || left || right)
	HashInterior(left, right []byte) []byte

	// HashLeaf computes the hash of a leaf node as:
	// H(Identifier || key || value)
	HashLeaf(key, value []byte) []byte

	// HashEmpty returns the fixed hash of an empty subtree:
	// H(Identifier)
	HashEmpty() []byte
}

var hashers = make(map[string]TreeHasher)

// RegisterHasher registers a hasher for use.
func RegisterHasher(h string, f func() TreeHasher) {
	if _, ok := hashers[h]; ok {
		panic(fmt.Sprintf("RegisterHasher(%v) is already registered", h))
	}
	hashers[h] = f()
}

// Hasher returns a TreeHasher.
func Hasher(h string) (TreeHasher, error) {
	if f, ok := hashers[h]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("Hasher(%v) is unknown hasher", h)
}

// ToHash copies a byte slice into a Hash.
// Shorter slices are zero padded, longer ones are truncated.
func ToHash(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}
