package merkletree

import (
	"bytes"

	"github.com/bverify/bverify-go/crypto/hasher"
	"github.com/bverify/bverify-go/utils"
)

// ProofNode can be a user node or an empty node,
// which is included in the returned AuthenticationPath
// of a given key. The type of that node can be determined
// by the IsEmpty value.
type ProofNode struct {
	Level   uint32
	Key     []byte
	Value   []byte
	IsEmpty bool
}

func (n *ProofNode) hash() []byte {
	if n.IsEmpty {
		return treeHasher.HashEmpty()
	}
	return treeHasher.HashLeaf(n.Key, n.Value)
}

// ProofType tells whether an AuthenticationPath proves
// the inclusion or the absence of its lookup key.
type ProofType int

const (
	undeterminedProof ProofType = iota
	// ProofOfAbsence is a path ending in an empty leaf,
	// or in a leaf holding a different key with the same prefix.
	ProofOfAbsence
	// ProofOfInclusion is a path ending in the leaf
	// holding the lookup key.
	ProofOfInclusion
)

func (t ProofType) String() string {
	switch t {
	case ProofOfAbsence:
		return "absence"
	case ProofOfInclusion:
		return "inclusion"
	}
	return "undetermined"
}

// AuthenticationPath is a pruned tree containing
// the prefix path between the corresponding leaf node
// (of type ProofNode) and the root. This is a proof
// of inclusion or absence of requested key.
// PrunedTree[i] is the hash of the sibling at depth i+1,
// so the path from the root to the leaf follows the bits
// of LookupKey.
type AuthenticationPath struct {
	LookupKey  []byte
	PrunedTree []hasher.Hash
	Leaf       *ProofNode
}

// PathStep is one level of an AuthenticationPath:
// the side the path takes and the hash on the other side.
type PathStep struct {
	Right   bool
	Sibling hasher.Hash
}

// wellFormed checks the shape of the path without
// doing any hashing. Paths come from untrusted sources,
// so every accessor checks this before indexing.
func (ap *AuthenticationPath) wellFormed() bool {
	if ap == nil || ap.Leaf == nil || len(ap.LookupKey) != KeySize {
		return false
	}
	if ap.Leaf.Level > maxDepth || int(ap.Leaf.Level) != len(ap.PrunedTree) {
		return false
	}
	if !ap.Leaf.IsEmpty && (len(ap.Leaf.Key) != KeySize || len(ap.Leaf.Value) != ValueSize) {
		return false
	}
	return true
}

// ProofType returns the kind of proof ap is.
func (ap *AuthenticationPath) ProofType() ProofType {
	if !ap.wellFormed() {
		return undeterminedProof
	}
	if !ap.Leaf.IsEmpty && bytes.Equal(ap.LookupKey, ap.Leaf.Key) {
		return ProofOfInclusion
	}
	return ProofOfAbsence
}

// Steps returns the steps of the path from the leaf up to the root.
func (ap *AuthenticationPath) Steps() []PathStep {
	if !ap.wellFormed() {
		return nil
	}
	steps := make([]PathStep, 0, len(ap.PrunedTree))
	for depth := len(ap.PrunedTree); depth > 0; depth-- {
		steps = append(steps, PathStep{
			Right:   utils.GetNthBit(ap.LookupKey, uint32(depth-1)),
			Sibling: ap.PrunedTree[depth-1],
		})
	}
	return steps
}

// RootHash folds the path from the leaf up to the root
// and returns the resulting root hash, or nil if
// the path is malformed.
func (ap *AuthenticationPath) RootHash() []byte {
	if !ap.wellFormed() {
		return nil
	}
	hash := ap.Leaf.hash()
	for depth := ap.Leaf.Level; depth > 0; depth-- {
		if utils.GetNthBit(ap.LookupKey, depth-1) {
			hash = treeHasher.HashInterior(ap.PrunedTree[depth-1][:], hash)
		} else {
			hash = treeHasher.HashInterior(hash, ap.PrunedTree[depth-1][:])
		}
	}
	return hash
}

// Verify checks that ap proves that key maps to value
// in the tree whose root hash is treeHash.
func (ap *AuthenticationPath) Verify(key, value, treeHash []byte) bool {
	if ap.ProofType() != ProofOfInclusion ||
		!bytes.Equal(ap.LookupKey, key) ||
		!bytes.Equal(ap.Leaf.Value, value) {
		return false
	}
	return bytes.Equal(treeHash, ap.RootHash())
}

// VerifyAbsence checks that ap proves that key is absent
// from the tree whose root hash is treeHash.
func (ap *AuthenticationPath) VerifyAbsence(key, treeHash []byte) bool {
	if ap.ProofType() != ProofOfAbsence || !bytes.Equal(ap.LookupKey, key) {
		return false
	}
	// a different leaf must share the first l bits with the key,
	// otherwise the lookup would not have ended there
	if !ap.Leaf.IsEmpty && utils.CommonPrefixBits(ap.Leaf.Key, key) < ap.Leaf.Level {
		return false
	}
	return bytes.Equal(treeHash, ap.RootHash())
}

// Clone returns a deep copy of ap.
func (ap *AuthenticationPath) Clone() *AuthenticationPath {
	if ap == nil {
		return nil
	}
	c := &AuthenticationPath{
		LookupKey:  append([]byte{}, ap.LookupKey...),
		PrunedTree: append([]hasher.Hash{}, ap.PrunedTree...),
	}
	if ap.Leaf != nil {
		c.Leaf = ap.Leaf.clone()
	}
	return c
}

func (n *ProofNode) clone() *ProofNode {
	c := *n
	c.Key = append([]byte(nil), n.Key...)
	c.Value = append([]byte(nil), n.Value...)
	return &c
}
