package merkletree

import (
	"bytes"
	"errors"

	"github.com/bverify/bverify-go/crypto/hasher"
	"github.com/bverify/bverify-go/utils"
)

// ErrMalformedPathUpdate indicates a PathUpdate that can't be applied
// to the given AuthenticationPath.
var ErrMalformedPathUpdate = errors.New("[merkletree] Malformed path update")

// SiblingUpdate replaces the sibling hash at the given depth
// of an AuthenticationPath.
type SiblingUpdate struct {
	Depth uint32
	Hash  hasher.Hash
}

// PathUpdate is the difference between the authentication paths
// of one key in two snapshots. A nil Leaf means that neither the
// leaf nor its level changed.
type PathUpdate struct {
	Leaf     *ProofNode
	Siblings []SiblingUpdate
}

// Empty reports whether applying u is a no-op.
func (u *PathUpdate) Empty() bool {
	return u.Leaf == nil && len(u.Siblings) == 0
}

// PathUpdate returns the changes needed to turn the authentication
// path of key in prev into its path in m. Both trees must be
// snapshots, prev taken before m. The walk stops at the first node
// the two trees share, so its cost depends on how much of the path
// changed rather than on the depth of the leaf.
func (m *MerkleTree) PathUpdate(prev *MerkleTree, key []byte) (*PathUpdate, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if !m.frozen || prev == nil || !prev.frozen {
		return nil, ErrInvalidTree
	}

	u := new(PathUpdate)
	var older, newer merkleNode = prev.root, m.root
	depth := uint32(0)
	for {
		if older == newer {
			return u, nil
		}
		in, ok := newer.(*interiorNode)
		if !ok {
			break
		}
		direction := utils.GetNthBit(key, depth)
		next, sibling := in.child(direction)
		var olderNext merkleNode
		var olderSibling []byte
		if oin, ok := older.(*interiorNode); ok {
			olderNext, olderSibling = oin.child(direction)
		}
		if olderSibling == nil || !bytes.Equal(olderSibling, sibling) {
			u.Siblings = append(u.Siblings, SiblingUpdate{
				Depth: depth,
				Hash:  hasher.ToHash(sibling),
			})
		}
		older, newer = olderNext, next
		depth++
	}

	leaf := proofNodeOf(newer, depth)
	if older == nil || !sameLeaf(older, newer) {
		u.Leaf = leaf
	}
	return u, nil
}

// sameLeaf compares two leaves reached at the same depth.
func sameLeaf(a, b merkleNode) bool {
	switch x := a.(type) {
	case *emptyNode:
		return b.isEmpty()
	case *userLeafNode:
		y, ok := b.(*userLeafNode)
		return ok && bytes.Equal(x.key, y.key) && bytes.Equal(x.value, y.value)
	}
	return false
}

// Apply returns the authentication path obtained by applying u to ap.
// ap is left unchanged. When the leaf moves deeper, u must provide
// every sibling hash below the old leaf.
func (ap *AuthenticationPath) Apply(u *PathUpdate) (*AuthenticationPath, error) {
	if !ap.wellFormed() || u == nil {
		return nil, ErrMalformedPathUpdate
	}
	next := ap.Clone()
	known := len(next.PrunedTree)
	if u.Leaf != nil {
		if u.Leaf.Level > maxDepth {
			return nil, ErrMalformedPathUpdate
		}
		next.Leaf = u.Leaf.clone()
		level := int(u.Leaf.Level)
		if level <= known {
			next.PrunedTree = next.PrunedTree[:level]
			known = level
		} else {
			next.PrunedTree = append(next.PrunedTree, make([]hasher.Hash, level-known)...)
		}
	}

	filled := make(map[uint32]bool)
	for _, s := range u.Siblings {
		if int(s.Depth) >= len(next.PrunedTree) {
			return nil, ErrMalformedPathUpdate
		}
		next.PrunedTree[s.Depth] = s.Hash
		if int(s.Depth) >= known {
			filled[s.Depth] = true
		}
	}
	if len(filled) != len(next.PrunedTree)-known {
		return nil, ErrMalformedPathUpdate
	}
	if !next.wellFormed() {
		return nil, ErrMalformedPathUpdate
	}
	return next, nil
}
