package commitmentkv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/merkletree"
	"github.com/bverify/bverify-go/protocol"
	"github.com/bverify/bverify-go/protocol/client"
	"github.com/bverify/bverify-go/protocol/commitlog"
	"github.com/bverify/bverify-go/storage/kv/leveldbkv"
)

func TestCommitmentStore(t *testing.T) {
	db := leveldbkv.WithDB(t)
	sk := crypto.NewStaticTestSigningKey()
	c0 := protocol.NewCommitment(sk, 0, crypto.StaticTestValue("r0"), []byte("genesis"))
	c1 := protocol.NewCommitment(sk, 1, crypto.StaticTestValue("r1"), c0.Hash())
	require.NoError(t, StoreCommitment(db, c0))
	require.NoError(t, StoreCommitment(db, c1))

	got, err := LoadCommitment(db, 1)
	require.NoError(t, err)
	assert.Equal(t, c1, got)

	_, err = LoadCommitment(db, 2)
	assert.Equal(t, db.ErrNotFound(), err)

	cs, err := LoadCommitments(db)
	require.NoError(t, err)
	assert.Equal(t, []*protocol.Commitment{c0, c1}, cs)
}

func TestLoadCommitmentsOrdering(t *testing.T) {
	db := leveldbkv.WithDB(t)
	sk := crypto.NewStaticTestSigningKey()
	// 256 sorts before 1 in little endian
	prev := []byte("genesis")
	for seq := uint64(0); seq <= 300; seq++ {
		c := protocol.NewCommitment(sk, seq, crypto.StaticTestValue("r"), prev)
		require.NoError(t, StoreCommitment(db, c))
		prev = c.Hash()
	}
	cs, err := LoadCommitments(db)
	require.NoError(t, err)
	require.Len(t, cs, 301)
	for i, c := range cs {
		assert.Equal(t, uint64(i), c.Seq)
	}
}

func TestLoadCommitmentsGap(t *testing.T) {
	db := leveldbkv.WithDB(t)
	sk := crypto.NewStaticTestSigningKey()
	require.NoError(t, StoreCommitment(db, protocol.NewCommitment(sk, 0, crypto.StaticTestValue("r0"), nil)))
	require.NoError(t, StoreCommitment(db, protocol.NewCommitment(sk, 2, crypto.StaticTestValue("r2"), nil)))
	_, err := LoadCommitments(db)
	assert.ErrorIs(t, err, ErrMissingCommitment)
}

func TestSinkRecordsAuditableChain(t *testing.T) {
	db := leveldbkv.WithDB(t)
	sink, err := NewSink(db)
	require.NoError(t, err)

	sk := crypto.NewStaticTestSigningKey()
	tree := merkletree.NewMerkleTree()
	log, err := commitlog.New(sk, tree.Snapshot(), 0, nil, sink)
	require.NoError(t, err)
	for seq := uint64(1); seq <= 3; seq++ {
		_, err := tree.Set(crypto.StaticTestADSID(int(seq)), crypto.StaticTestValue("v"))
		require.NoError(t, err)
		_, err = log.Append(seq, tree.Snapshot())
		require.NoError(t, err)
	}

	cs, err := LoadCommitments(db)
	require.NoError(t, err)
	assert.Equal(t, log.Commitments(), cs)
	pk, _ := sk.Public()
	require.True(t, cs[0].VerifySignature(pk))
	assert.NoError(t, client.VerifyCommitments(pk, cs[0], cs[1:]))

	_, err = NewSink(db)
	assert.Equal(t, ErrChainExists, err)
}
