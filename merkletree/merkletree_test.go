package merkletree

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/bverify/bverify-go/utils"
)

func TestEmptyTreeRootHash(t *testing.T) {
	m := NewMerkleTree()
	empty := treeHasher.HashEmpty()
	require.Equal(t, treeHasher.HashInterior(empty, empty), m.RootHash())
}

func TestOneEntry(t *testing.T) {
	m := NewMerkleTree()
	key, val := testKey(1), testValue("v1")

	prev, err := m.Set(key, val)
	require.NoError(t, err)
	require.Nil(t, prev)

	got, ok := m.Lookup(key)
	require.True(t, ok)
	require.Equal(t, val, got)

	// the only leaf sits right below the root
	empty := treeHasher.HashEmpty()
	leaf := treeHasher.HashLeaf(key, val)
	var want []byte
	if utils.GetNthBit(key, 0) {
		want = treeHasher.HashInterior(empty, leaf)
	} else {
		want = treeHasher.HashInterior(leaf, empty)
	}
	require.Equal(t, want, m.RootHash())

	ap, err := m.Get(key)
	require.NoError(t, err)
	require.Equal(t, ProofOfInclusion, ap.ProofType())
	require.Equal(t, uint32(1), ap.Leaf.Level)
	require.True(t, ap.Verify(key, val, m.RootHash()))
}

func TestLeafLevels(t *testing.T) {
	m := NewMerkleTree()
	a := keyWithPrefix("0", 1)
	b := keyWithPrefix("10", 1)
	c := keyWithPrefix("11", 1)
	for _, k := range [][]byte{a, b, c} {
		_, err := m.Set(k, testValue(string(k)))
		require.NoError(t, err)
	}

	for k, level := range map[string]uint32{string(a): 1, string(b): 2, string(c): 2} {
		ap, err := m.Get([]byte(k))
		require.NoError(t, err)
		assert.Equal(t, level, ap.Leaf.Level)
		assert.Len(t, ap.PrunedTree, int(level))
	}

	// two keys sharing all but the last bit end up at the bottom
	d := keyWithPrefix("11", 0)
	_, err := m.Set(d, testValue("d"))
	require.NoError(t, err)
	ap, err := m.Get(d)
	require.NoError(t, err)
	require.Equal(t, uint32(maxDepth), ap.Leaf.Level)
	require.True(t, ap.Verify(d, testValue("d"), m.RootHash()))
	ap, err = m.Get(c)
	require.NoError(t, err)
	require.Equal(t, uint32(maxDepth), ap.Leaf.Level)
}

func TestInsertExistedKey(t *testing.T) {
	m := NewMerkleTree()
	key := testKey(1)
	val1, val2 := testValue("value"), testValue("new value")

	_, err := m.Set(key, val1)
	require.NoError(t, err)
	prev, err := m.Set(key, val2)
	require.NoError(t, err)
	require.Equal(t, val1, prev)

	got, ok := m.Lookup(key)
	require.True(t, ok)
	require.Equal(t, val2, got)

	// updating a value never moves the leaf
	other := NewMerkleTree()
	_, err = other.Set(key, val2)
	require.NoError(t, err)
	require.Equal(t, other.RootHash(), m.RootHash())
}

func TestInvalidLengths(t *testing.T) {
	m := NewMerkleTree()
	_, err := m.Set([]byte("short"), testValue("v"))
	require.Equal(t, ErrInvalidKey, err)
	_, err = m.Set(testKey(1), []byte("short"))
	require.Equal(t, ErrInvalidValue, err)
	_, err = m.Get([]byte("short"))
	require.Equal(t, ErrInvalidKey, err)
	_, ok := m.Lookup(nil)
	require.False(t, ok)
}

func TestInsertionOrderIndependence(t *testing.T) {
	const n = 200
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = testKey(i)
	}

	m1 := NewMerkleTree()
	for _, k := range keys {
		_, err := m1.Set(k, testValue(string(k)))
		require.NoError(t, err)
	}

	r := rand.New(rand.NewSource(42))
	r.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	m2 := NewMerkleTree()
	for i, k := range keys {
		_, err := m2.Set(k, testValue(string(k)))
		require.NoError(t, err)
		// snapshots in between must not change the result
		if i%17 == 0 {
			m2.Snapshot()
		}
	}
	require.Equal(t, m1.RootHash(), m2.RootHash())
}

func TestSnapshotIsolation(t *testing.T) {
	m := NewMerkleTree()
	k1, k2 := testKey(1), testKey(2)
	_, err := m.Set(k1, testValue("v1"))
	require.NoError(t, err)

	snap := m.Snapshot()
	require.True(t, snap.Frozen())
	root := snap.RootHash()

	_, err = m.Set(k1, testValue("v2"))
	require.NoError(t, err)
	_, err = m.Set(k2, testValue("v3"))
	require.NoError(t, err)
	require.NotEqual(t, root, m.RootHash())

	require.Equal(t, root, snap.RootHash())
	got, ok := snap.Lookup(k1)
	require.True(t, ok)
	require.Equal(t, testValue("v1"), got)
	_, ok = snap.Lookup(k2)
	require.False(t, ok)

	ap, err := snap.Get(k1)
	require.NoError(t, err)
	require.True(t, ap.Verify(k1, testValue("v1"), root))

	_, err = snap.Set(k2, testValue("v4"))
	require.Equal(t, ErrFrozenTree, err)
}

func TestRollback(t *testing.T) {
	m := NewMerkleTree()
	_, err := m.Set(testKey(1), testValue("v1"))
	require.NoError(t, err)
	snap := m.Snapshot()

	_, err = m.Set(testKey(1), testValue("v2"))
	require.NoError(t, err)
	_, err = m.Set(testKey(2), testValue("v2"))
	require.NoError(t, err)

	require.NoError(t, m.Rollback(snap))
	require.Equal(t, snap.RootHash(), m.RootHash())
	_, ok := m.Lookup(testKey(2))
	require.False(t, ok)

	// the working tree is still usable and does not touch the snapshot
	_, err = m.Set(testKey(3), testValue("v3"))
	require.NoError(t, err)
	_, ok = snap.Lookup(testKey(3))
	require.False(t, ok)

	require.Equal(t, ErrInvalidTree, m.Rollback(m))
	require.Equal(t, ErrFrozenTree, snap.Rollback(snap))
}

func TestWalk(t *testing.T) {
	m := NewMerkleTree()
	want := make(map[string][]byte)
	for i := 0; i < 50; i++ {
		k, v := testKey(i), testValue(string(rune(i)))
		want[string(k)] = v
		_, err := m.Set(k, v)
		require.NoError(t, err)
	}

	var prev []byte
	got := make(map[string][]byte)
	m.Walk(func(key, value []byte) {
		require.True(t, prev == nil || bytes.Compare(prev, key) < 0, "keys out of order")
		prev = key
		got[string(key)] = value
	})
	require.Equal(t, want, got)
}

func TestConcurrentSnapshotReads(t *testing.T) {
	m := NewMerkleTree()
	for i := 0; i < 64; i++ {
		_, err := m.Set(testKey(i), testValue("old"))
		require.NoError(t, err)
	}
	snap := m.Snapshot()
	root := snap.RootHash()

	var g errgroup.Group
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for i := 0; i < 64; i++ {
				ap, err := snap.Get(testKey(i))
				if err != nil {
					return err
				}
				if !ap.Verify(testKey(i), testValue("old"), root) {
					return ErrInvalidTree
				}
			}
			return nil
		})
	}
	for i := 0; i < 128; i++ {
		_, err := m.Set(testKey(i), testValue("new"))
		require.NoError(t, err)
		if i%10 == 0 {
			m.RootHash()
		}
	}
	require.NoError(t, g.Wait())
}
