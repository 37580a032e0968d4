// Package bverify implements the default trie hasher and registers it
// with the hasher package under the name BVerifyHasher.
package bverify

import (
	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/crypto/hasher"
)

func init() {
	hasher.RegisterHasher(BVerifyHasher, New)
}

const (
	// BVerifyHasher is the identity of the default hashing algorithm.
	BVerifyHasher = "BVERIFY-" + crypto.HashID

	emptyIdentifier    = 'E'
	leafIdentifier     = 'L'
	interiorIdentifier = 'I'
)

type bverifyHasher struct {
	empty []byte
}

// New returns an instance of the default trie hasher.
func New() hasher.TreeHasher {
	h := new(bverifyHasher)
	h.empty = h.Digest([]byte{emptyIdentifier})
	return h
}

func (bverifyHasher) ID() string {
	return BVerifyHasher
}

func (bverifyHasher) Size() int {
	return crypto.HashSizeByte
}

func (bverifyHasher) Digest(ms ...[]byte) []byte {
	return crypto.Digest(ms...)
}

func (bh *bverifyHasher) HashInterior(left, right []byte) []byte {
	return bh.Digest([]byte{interiorIdentifier}, left, right)
}

func (bh *bverifyHasher) HashLeaf(key, value []byte) []byte {
	return bh.Digest([]byte{leafIdentifier}, key, value)
}

// HashEmpty returns a copy of the precomputed empty subtree hash.
func (bh *bverifyHasher) HashEmpty() []byte {
	return append([]byte{}, bh.empty...)
}
