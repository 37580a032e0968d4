package merkletree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bverify/bverify-go/utils"
)

func newTestTree(t *testing.T, keys ...[]byte) *MerkleTree {
	m := NewMerkleTree()
	for _, k := range keys {
		_, err := m.Set(k, testValue(string(k)))
		require.NoError(t, err)
	}
	return m.Snapshot()
}

func TestVerifyProofOfInclusion(t *testing.T) {
	keys := [][]byte{testKey(1), testKey(2), testKey(3)}
	m := newTestTree(t, keys...)
	root := m.RootHash()

	for _, k := range keys {
		ap, err := m.Get(k)
		require.NoError(t, err)
		require.Equal(t, ProofOfInclusion, ap.ProofType())
		require.Equal(t, testValue(string(k)), ap.Leaf.Value)
		require.True(t, ap.Verify(k, testValue(string(k)), root))
		require.Equal(t, root, ap.RootHash())

		// wrong value, wrong key, wrong root
		require.False(t, ap.Verify(k, testValue("other"), root))
		require.False(t, ap.Verify(testKey(4), testValue(string(k)), root))
		require.False(t, ap.Verify(k, testValue(string(k)), testValue("root")))
		// an inclusion proof never proves absence
		require.False(t, ap.VerifyAbsence(k, root))
	}
}

func TestTamperedProofs(t *testing.T) {
	keys := make([][]byte, 32)
	for i := range keys {
		keys[i] = testKey(i)
	}
	m := newTestTree(t, keys...)
	root := m.RootHash()
	key, val := keys[7], testValue(string(keys[7]))

	ap, err := m.Get(key)
	require.NoError(t, err)
	require.True(t, ap.Verify(key, val, root))

	// claim a different value in the leaf itself
	forged := ap.Clone()
	forged.Leaf.Value = testValue("forged")
	require.False(t, forged.Verify(key, forged.Leaf.Value, root))

	// flip one bit of every sibling in turn
	for i := range ap.PrunedTree {
		forged := ap.Clone()
		forged.PrunedTree[i][0] ^= 1
		require.False(t, forged.Verify(key, val, root), "sibling %d", i)
	}

	// drop the last sibling and move the leaf up
	forged = ap.Clone()
	forged.PrunedTree = forged.PrunedTree[:len(forged.PrunedTree)-1]
	forged.Leaf.Level--
	require.False(t, forged.Verify(key, val, root))

	// inconsistent level
	forged = ap.Clone()
	forged.Leaf.Level++
	require.False(t, forged.Verify(key, val, root))
	require.Nil(t, forged.RootHash())

	// the cloned paths never touched the original
	require.True(t, ap.Verify(key, val, root))
}

func TestMalformedProofs(t *testing.T) {
	var nilPath *AuthenticationPath
	require.False(t, nilPath.Verify(testKey(1), testValue("v"), nil))
	require.False(t, nilPath.VerifyAbsence(testKey(1), nil))
	require.Nil(t, nilPath.Steps())

	noLeaf := &AuthenticationPath{LookupKey: testKey(1)}
	require.False(t, noLeaf.Verify(testKey(1), testValue("v"), nil))
	require.Nil(t, noLeaf.RootHash())

	shortKey := &AuthenticationPath{
		LookupKey: []byte{1},
		Leaf:      &ProofNode{IsEmpty: true},
	}
	require.False(t, shortKey.VerifyAbsence([]byte{1}, nil))

	badLeaf := &AuthenticationPath{
		LookupKey: testKey(1),
		Leaf:      &ProofNode{Key: testKey(1), Value: []byte{1}},
	}
	require.False(t, badLeaf.Verify(testKey(1), []byte{1}, nil))
}

func TestVerifyProofOfAbsenceEmptyLeaf(t *testing.T) {
	b := keyWithPrefix("10", 1)
	c := keyWithPrefix("11", 1)
	m := newTestTree(t, b, c)
	root := m.RootHash()

	absent := keyWithPrefix("0", 1)
	ap, err := m.Get(absent)
	require.NoError(t, err)
	require.Equal(t, ProofOfAbsence, ap.ProofType())
	require.True(t, ap.Leaf.IsEmpty)
	require.Equal(t, uint32(1), ap.Leaf.Level)
	require.True(t, ap.VerifyAbsence(absent, root))
	require.False(t, ap.Verify(absent, testValue("v"), root))
	require.False(t, ap.VerifyAbsence(absent, testValue("root")))
	require.False(t, ap.VerifyAbsence(b, root))
}

func TestVerifyProofOfAbsenceOtherLeaf(t *testing.T) {
	a := keyWithPrefix("0", 1)
	b := keyWithPrefix("10", 1)
	c := keyWithPrefix("11", 1)
	m := newTestTree(t, a, b, c)
	root := m.RootHash()

	absent := keyWithPrefix("01", 1)
	ap, err := m.Get(absent)
	require.NoError(t, err)
	require.Equal(t, ProofOfAbsence, ap.ProofType())
	require.False(t, ap.Leaf.IsEmpty)
	require.Equal(t, a, ap.Leaf.Key)
	require.True(t, ap.VerifyAbsence(absent, root))

	// a leaf that does not share the prefix with the lookup key
	// can't be the end of its path
	forged := ap.Clone()
	forged.Leaf.Key = append([]byte{}, forged.Leaf.Key...)
	forged.Leaf.Key[0] ^= 0x80
	require.False(t, forged.VerifyAbsence(absent, root))

	// turning the proof into an inclusion proof for the found key
	// only works with the found key's value
	forged = ap.Clone()
	forged.LookupKey = a
	require.True(t, forged.Verify(a, testValue(string(a)), root))
	require.False(t, forged.Verify(a, testValue("other"), root))
}

func TestSteps(t *testing.T) {
	keys := make([][]byte, 16)
	for i := range keys {
		keys[i] = testKey(i)
	}
	m := newTestTree(t, keys...)
	key := keys[3]
	ap, err := m.Get(key)
	require.NoError(t, err)

	steps := ap.Steps()
	require.Len(t, steps, int(ap.Leaf.Level))

	// folding the steps from the leaf reproduces the root
	hash := treeHasher.HashLeaf(key, testValue(string(key)))
	for i, s := range steps {
		depth := uint32(len(steps) - 1 - i)
		require.Equal(t, utils.GetNthBit(key, depth), s.Right)
		require.Equal(t, ap.PrunedTree[depth], s.Sibling)
		if s.Right {
			hash = treeHasher.HashInterior(s.Sibling[:], hash)
		} else {
			hash = treeHasher.HashInterior(hash, s.Sibling[:])
		}
	}
	require.Equal(t, m.RootHash(), hash)
}
