package merkletree

import (
	"github.com/bverify/bverify-go/crypto/hasher"
)

// interiorNode is owned by the tree whose generation equals gen;
// only that tree may modify it in place. The cached child hashes
// are nil when the child changed since the last hash computation.
type interiorNode struct {
	gen        uint64
	leftChild  merkleNode
	rightChild merkleNode
	leftHash   []byte
	rightHash  []byte
}

// userLeafNode is immutable once inserted into a tree.
type userLeafNode struct {
	key    []byte
	value  []byte
	digest []byte
}

type emptyNode struct{}

// empty is shared by every tree: all empty leaves hash the same.
var empty = &emptyNode{}

type merkleNode interface {
	isEmpty() bool
	hash(hasher.TreeHasher) []byte
}

var _ merkleNode = (*userLeafNode)(nil)
var _ merkleNode = (*interiorNode)(nil)
var _ merkleNode = (*emptyNode)(nil)

func newInteriorNode(gen uint64) *interiorNode {
	return &interiorNode{
		gen:        gen,
		leftChild:  empty,
		rightChild: empty,
	}
}

func newUserLeafNode(h hasher.TreeHasher, key, value []byte) *userLeafNode {
	n := &userLeafNode{
		key:   append([]byte{}, key...),
		value: append([]byte{}, value...),
	}
	n.digest = h.HashLeaf(n.key, n.value)
	return n
}

func (n *interiorNode) hash(h hasher.TreeHasher) []byte {
	if n.leftHash == nil {
		n.leftHash = n.leftChild.hash(h)
	}
	if n.rightHash == nil {
		n.rightHash = n.rightChild.hash(h)
	}
	return h.HashInterior(n.leftHash, n.rightHash)
}

func (n *userLeafNode) hash(hasher.TreeHasher) []byte {
	return n.digest
}

func (n *emptyNode) hash(h hasher.TreeHasher) []byte {
	return h.HashEmpty()
}

// copyFor returns a shallow copy of n owned by generation gen.
// Children and cached hashes are shared with n.
func (n *interiorNode) copyFor(gen uint64) *interiorNode {
	return &interiorNode{
		gen:        gen,
		leftChild:  n.leftChild,
		rightChild: n.rightChild,
		leftHash:   n.leftHash,
		rightHash:  n.rightHash,
	}
}

// child returns the child in the given direction and the cached hash
// of the child on the other side.
func (n *interiorNode) child(right bool) (merkleNode, []byte) {
	if right {
		return n.rightChild, n.leftHash
	}
	return n.leftChild, n.rightHash
}

// setChild replaces the child in the given direction and invalidates
// its cached hash.
func (n *interiorNode) setChild(right bool, c merkleNode) {
	if right {
		n.rightChild = c
		n.rightHash = nil
	} else {
		n.leftChild = c
		n.leftHash = nil
	}
}

func (n *userLeafNode) isEmpty() bool {
	return false
}

func (n *interiorNode) isEmpty() bool {
	return false
}

func (n *emptyNode) isEmpty() bool {
	return true
}
