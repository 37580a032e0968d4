package protocol

import (
	"bytes"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/utils"
)

// A Commitment is the server's signed statement of the root hash
// of the trie after sealing batch Seq. Commitments form a hash chain:
// PreviousHash is the hash of the previous commitment's signature.
// The sequence number is a counter from 0, and increases by 1
// with every sealed batch.
type Commitment struct {
	Seq          uint64
	RootHash     []byte
	PreviousHash []byte
	Signature    []byte
}

// NewCommitment constructs a Commitment with the given sequence
// number, root hash and previous hash, and digitally signs it
// using the given signing key.
func NewCommitment(key sign.PrivateKey, seq uint64, root, prevHash []byte) *Commitment {
	c := &Commitment{
		Seq:          seq,
		RootHash:     append([]byte{}, root...),
		PreviousHash: append([]byte{}, prevHash...),
	}
	c.Signature = key.Sign(c.Serialize())
	return c
}

// Serialize serializes the commitment into
// a specified format for signing.
func (c *Commitment) Serialize() []byte {
	var bs []byte
	bs = append(bs, utils.ULongToBytes(c.Seq)...) // seq
	bs = append(bs, c.RootHash...)                // root
	bs = append(bs, c.PreviousHash...)            // previous commitment hash
	return bs
}

// Hash returns the hash that the next commitment chains to.
func (c *Commitment) Hash() []byte {
	return crypto.Digest(c.Signature)
}

// VerifySignature checks the signature of c against pk.
func (c *Commitment) VerifySignature(pk sign.PublicKey) bool {
	return pk.Verify(c.Serialize(), c.Signature)
}

// VerifyHashChain computes the hash of prev's signature,
// and compares it to the previous hash included in c.
// The hash chain is valid if these two hash values are equal
// and the sequence numbers are consecutive.
func (c *Commitment) VerifyHashChain(prev *Commitment) bool {
	return c.Seq == prev.Seq+1 &&
		bytes.Equal(prev.Hash(), c.PreviousHash)
}

// Roots returns the root hashes of cs, indexed like cs.
func Roots(cs []*Commitment) [][]byte {
	roots := make([][]byte, len(cs))
	for i, c := range cs {
		roots[i] = c.RootHash
	}
	return roots
}
