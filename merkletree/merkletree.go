package merkletree

import (
	"bytes"
	"errors"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/crypto/hasher"
	"github.com/bverify/bverify-go/crypto/hasher/bverify"
	"github.com/bverify/bverify-go/utils"
)

var (
	// ErrInvalidTree indicates a panic due to
	// a malformed operation on the tree.
	ErrInvalidTree = errors.New("[merkletree] Invalid tree")
	// ErrFrozenTree indicates an attempt to modify a snapshot.
	ErrFrozenTree = errors.New("[merkletree] Snapshot is read-only")
	// ErrInvalidKey indicates a key that is not exactly
	// crypto.HashSizeByte bytes long.
	ErrInvalidKey = errors.New("[merkletree] Invalid key length")
	// ErrInvalidValue indicates a value that is not exactly
	// crypto.HashSizeByte bytes long.
	ErrInvalidValue = errors.New("[merkletree] Invalid value length")
)

const (
	// KeySize is the size of the keys stored in the tree.
	KeySize = crypto.HashSizeByte
	// ValueSize is the size of the values stored in the tree.
	ValueSize = crypto.HashSizeByte

	maxDepth = KeySize * 8
)

var treeHasher = mustHasher(bverify.BVerifyHasher)

func mustHasher(name string) hasher.TreeHasher {
	h, err := hasher.Hasher(name)
	if err != nil {
		panic(err)
	}
	return h
}

// MerkleTree represents the Merkle prefix tree data structure,
// which includes the root node and its hash.
//
// A MerkleTree is either the working tree, which Set mutates,
// or a frozen snapshot returned by Snapshot. The working tree
// must be used by one goroutine at a time; snapshots are safe
// for concurrent reads.
type MerkleTree struct {
	root   *interiorNode
	hash   []byte
	gen    uint64
	frozen bool
}

// NewMerkleTree returns an empty Merkle prefix tree.
// The tree root is an interior node and its children
// are two empty leaf nodes.
func NewMerkleTree() *MerkleTree {
	return &MerkleTree{
		root: newInteriorNode(0),
	}
}

// Lookup returns the value stored for key, if any.
func (m *MerkleTree) Lookup(key []byte) ([]byte, bool) {
	if len(key) != KeySize {
		return nil, false
	}
	var node merkleNode = m.root
	for depth := uint32(0); ; depth++ {
		switch n := node.(type) {
		case *interiorNode:
			node, _ = n.child(utils.GetNthBit(key, depth))
		case *userLeafNode:
			if bytes.Equal(n.key, key) {
				return append([]byte{}, n.value...), true
			}
			return nil, false
		default:
			return nil, false
		}
	}
}

// Get returns an AuthenticationPath used as a proof
// of inclusion/absence for the requested key.
func (m *MerkleTree) Get(lookupKey []byte) (*AuthenticationPath, error) {
	if len(lookupKey) != KeySize {
		return nil, ErrInvalidKey
	}
	if m.hash == nil {
		m.recomputeHash()
	}

	authPath := &AuthenticationPath{
		LookupKey: append([]byte{}, lookupKey...),
	}
	var node merkleNode = m.root
	depth := uint32(0)
	for {
		in, ok := node.(*interiorNode)
		if !ok {
			break
		}
		var sibling []byte
		node, sibling = in.child(utils.GetNthBit(lookupKey, depth))
		authPath.PrunedTree = append(authPath.PrunedTree, hasher.ToHash(sibling))
		depth++
	}
	authPath.Leaf = proofNodeOf(node, depth)
	return authPath, nil
}

func proofNodeOf(node merkleNode, level uint32) *ProofNode {
	switch n := node.(type) {
	case *userLeafNode:
		return &ProofNode{
			Level: level,
			Key:   append([]byte{}, n.key...),
			Value: append([]byte{}, n.value...),
		}
	case *emptyNode:
		return &ProofNode{
			Level:   level,
			IsEmpty: true,
		}
	}
	panic(ErrInvalidTree)
}

// Set inserts or updates the value of the given key.
// It returns the previous value, or nil if the key was absent.
func (m *MerkleTree) Set(key, value []byte) ([]byte, error) {
	if m.frozen {
		return nil, ErrFrozenTree
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(value) != ValueSize {
		return nil, ErrInvalidValue
	}
	toAdd := newUserLeafNode(treeHasher, key, value)
	prev := m.insertNode(toAdd)
	m.hash = nil
	return prev, nil
}

func (m *MerkleTree) own(n *interiorNode) *interiorNode {
	if n.gen == m.gen {
		return n
	}
	return n.copyFor(m.gen)
}

func (m *MerkleTree) insertNode(toAdd *userLeafNode) []byte {
	m.root = m.own(m.root)
	node := m.root
	for depth := uint32(0); depth < maxDepth; depth++ {
		direction := utils.GetNthBit(toAdd.key, depth)
		child, _ := node.child(direction)
		switch c := child.(type) {
		case *emptyNode:
			node.setChild(direction, toAdd)
			return nil
		case *userLeafNode:
			if bytes.Equal(c.key, toAdd.key) {
				node.setChild(direction, toAdd)
				return append([]byte{}, c.value...)
			}
			// push the existing leaf one level down
			// and continue insertion from there
			if depth+1 >= maxDepth {
				panic(ErrInvalidTree)
			}
			n := newInteriorNode(m.gen)
			n.setChild(utils.GetNthBit(c.key, depth+1), c)
			node.setChild(direction, n)
			node = n
		case *interiorNode:
			owned := m.own(c)
			node.setChild(direction, owned)
			node = owned
		default:
			panic(ErrInvalidTree)
		}
	}
	panic(ErrInvalidTree)
}

// Snapshot computes the hashes of the working tree and returns
// a frozen copy of it. The copy shares all of its nodes with the
// working tree; the next Set copies the nodes it needs to modify.
func (m *MerkleTree) Snapshot() *MerkleTree {
	if m.frozen {
		return m
	}
	m.recomputeHash()
	snap := &MerkleTree{
		root:   m.root,
		hash:   m.hash,
		gen:    m.gen,
		frozen: true,
	}
	m.gen++
	return snap
}

// Rollback discards every change made to the working tree since
// the given snapshot was taken.
func (m *MerkleTree) Rollback(to *MerkleTree) error {
	if m.frozen {
		return ErrFrozenTree
	}
	if to == nil || !to.frozen || to.gen >= m.gen {
		return ErrInvalidTree
	}
	m.root = to.root
	m.hash = to.hash
	return nil
}

// RootHash returns the hash of the root node.
func (m *MerkleTree) RootHash() []byte {
	if m.hash == nil {
		m.recomputeHash()
	}
	return append([]byte{}, m.hash...)
}

// Frozen reports whether m is a read-only snapshot.
func (m *MerkleTree) Frozen() bool {
	return m.frozen
}

func (m *MerkleTree) recomputeHash() {
	m.hash = m.root.hash(treeHasher)
}

// Walk calls fn for every key-value pair in the tree,
// in ascending key order.
func (m *MerkleTree) Walk(fn func(key, value []byte)) {
	walk(m.root, fn)
}

func walk(node merkleNode, fn func(key, value []byte)) {
	switch n := node.(type) {
	case *interiorNode:
		walk(n.leftChild, fn)
		walk(n.rightChild, fn)
	case *userLeafNode:
		fn(n.key, n.value)
	}
}
