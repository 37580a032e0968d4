package merkletree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func pathUpdate(t *testing.T, prev, next *MerkleTree, key []byte) *PathUpdate {
	u, err := next.PathUpdate(prev, key)
	require.NoError(t, err)
	return u
}

func requireApplies(t *testing.T, prev, next *MerkleTree, key []byte) *PathUpdate {
	old, err := prev.Get(key)
	require.NoError(t, err)
	want, err := next.Get(key)
	require.NoError(t, err)

	u := pathUpdate(t, prev, next, key)
	got, err := old.Apply(u)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, next.RootHash(), got.RootHash())
	return u
}

func TestPathUpdateUnchanged(t *testing.T) {
	m := NewMerkleTree()
	_, err := m.Set(keyWithPrefix("0", 1), testValue("a"))
	require.NoError(t, err)
	s1 := m.Snapshot()
	_, err = m.Set(keyWithPrefix("1", 1), testValue("b"))
	require.NoError(t, err)
	s2 := m.Snapshot()

	// nothing changed below the root on the left side
	u := requireApplies(t, s1, s2, keyWithPrefix("0", 1))
	require.Nil(t, u.Leaf)
	require.Len(t, u.Siblings, 1)
	require.Equal(t, uint32(0), u.Siblings[0].Depth)

	// identical snapshots need no update at all
	s3 := m.Snapshot()
	u = requireApplies(t, s2, s3, keyWithPrefix("0", 1))
	require.True(t, u.Empty())
}

func TestPathUpdateValueChange(t *testing.T) {
	m := NewMerkleTree()
	keys := make([][]byte, 64)
	for i := range keys {
		keys[i] = testKey(i)
		_, err := m.Set(keys[i], testValue("old"))
		require.NoError(t, err)
	}
	s1 := m.Snapshot()
	_, err := m.Set(keys[5], testValue("new"))
	require.NoError(t, err)
	s2 := m.Snapshot()

	u := requireApplies(t, s1, s2, keys[5])
	require.NotNil(t, u.Leaf)
	require.Equal(t, testValue("new"), u.Leaf.Value)
	require.Empty(t, u.Siblings)

	// every other key only sees the sibling on the diverging level
	for i, k := range keys {
		if i == 5 {
			continue
		}
		u := requireApplies(t, s1, s2, k)
		require.Nil(t, u.Leaf)
		require.Len(t, u.Siblings, 1)
	}
}

func TestPathUpdateLeafPushedDown(t *testing.T) {
	m := NewMerkleTree()
	a := keyWithPrefix("0", 1)
	_, err := m.Set(a, testValue("a"))
	require.NoError(t, err)
	s1 := m.Snapshot()

	// differs from a only in the second to last bit
	_, err = m.Set(keyWithPrefix("00000000", 2), testValue("b"))
	require.NoError(t, err)
	s2 := m.Snapshot()

	u := requireApplies(t, s1, s2, a)
	require.NotNil(t, u.Leaf)
	require.Equal(t, uint32(maxDepth-1), u.Leaf.Level)

	// the absent key that used to end at the same empty leaf
	requireApplies(t, s1, s2, keyWithPrefix("1", 1))
	requireApplies(t, s1, s2, keyWithPrefix("00000000", 3))
}

func TestPathUpdateChain(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	m := NewMerkleTree()
	keys := make([][]byte, 128)
	for i := range keys {
		keys[i] = testKey(i)
	}
	// the first half is present from the start, the rest shows up later
	for _, k := range keys[:64] {
		_, err := m.Set(k, testValue("0"))
		require.NoError(t, err)
	}
	snaps := []*MerkleTree{m.Snapshot()}
	for batch := 1; batch <= 20; batch++ {
		for i := 0; i < 8; i++ {
			k := keys[r.Intn(len(keys))]
			_, err := m.Set(k, testValue(string(rune(batch))))
			require.NoError(t, err)
		}
		snaps = append(snaps, m.Snapshot())
	}

	tracked := []int{0, 1, 63, 64, 100, 127}
	for _, i := range tracked {
		k := keys[i]
		path, err := snaps[0].Get(k)
		require.NoError(t, err)
		for n := 1; n < len(snaps); n++ {
			u := pathUpdate(t, snaps[n-1], snaps[n], k)
			path, err = path.Apply(u)
			require.NoError(t, err)
			require.Equal(t, snaps[n].RootHash(), path.RootHash(), "key %d, snapshot %d", i, n)
		}
		full, err := snaps[len(snaps)-1].Get(k)
		require.NoError(t, err)
		require.Equal(t, full, path)
	}
}

func TestApplyMalformedPathUpdate(t *testing.T) {
	m := NewMerkleTree()
	a := keyWithPrefix("0", 1)
	_, err := m.Set(a, testValue("a"))
	require.NoError(t, err)
	s := m.Snapshot()
	ap, err := s.Get(a)
	require.NoError(t, err)

	// deeper leaf without the missing siblings
	_, err = ap.Apply(&PathUpdate{
		Leaf: &ProofNode{Level: 3, Key: a, Value: testValue("a")},
	})
	require.Equal(t, ErrMalformedPathUpdate, err)

	// sibling below the leaf
	_, err = ap.Apply(&PathUpdate{
		Siblings: []SiblingUpdate{{Depth: 1}},
	})
	require.Equal(t, ErrMalformedPathUpdate, err)

	// leaf beyond the key size
	_, err = ap.Apply(&PathUpdate{
		Leaf: &ProofNode{Level: maxDepth + 1, IsEmpty: true},
	})
	require.Equal(t, ErrMalformedPathUpdate, err)

	_, err = ap.Apply(nil)
	require.Equal(t, ErrMalformedPathUpdate, err)

	// the working tree can't be diffed
	_, err = m.PathUpdate(s, a)
	require.Equal(t, ErrInvalidTree, err)
	_, err = s.PathUpdate(s, []byte{1})
	require.Equal(t, ErrInvalidKey, err)
}
