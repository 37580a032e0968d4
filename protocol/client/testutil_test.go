package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/merkletree"
	"github.com/bverify/bverify-go/protocol"
)

var staticSigningKey = crypto.NewStaticTestSigningKey()

// history is a chain of committed snapshots built without a server.
type history struct {
	tree        *merkletree.MerkleTree
	snaps       []*merkletree.MerkleTree
	commitments []*protocol.Commitment
}

func newHistory(t *testing.T, n int) *history {
	tree := merkletree.NewMerkleTree()
	for i := 0; i < n; i++ {
		_, err := tree.Set(crypto.StaticTestADSID(i), crypto.StaticTestValue("v0"))
		require.NoError(t, err)
	}
	h := &history{tree: tree}
	h.commit([]byte("genesis"))
	return h
}

func (h *history) commit(prev []byte) {
	snap := h.tree.Snapshot()
	seq := uint64(len(h.snaps))
	h.snaps = append(h.snaps, snap)
	h.commitments = append(h.commitments,
		protocol.NewCommitment(staticSigningKey, seq, snap.RootHash(), prev))
}

// seal sets the given ADSes and commits the result.
func (h *history) seal(t *testing.T, sets map[int]string) {
	for i, v := range sets {
		_, err := h.tree.Set(crypto.StaticTestADSID(i), crypto.StaticTestValue(v))
		require.NoError(t, err)
	}
	h.commit(h.commitments[len(h.commitments)-1].Hash())
}

func (h *history) proof(t *testing.T, seq uint64, i int) *protocol.ADSProof {
	ap, err := h.snaps[seq].Get(crypto.StaticTestADSID(i))
	require.NoError(t, err)
	return &protocol.ADSProof{Seq: seq, Path: ap}
}

func (h *history) updates(t *testing.T, from uint64, i int) []*protocol.ADSProofUpdate {
	var us []*protocol.ADSProofUpdate
	for seq := from + 1; seq < uint64(len(h.snaps)); seq++ {
		u, err := h.snaps[seq].PathUpdate(h.snaps[seq-1], crypto.StaticTestADSID(i))
		require.NoError(t, err)
		us = append(us, &protocol.ADSProofUpdate{Seq: seq, Update: u})
	}
	return us
}

func staticPublicKey(t *testing.T) sign.PublicKey {
	pk, ok := staticSigningKey.Public()
	require.True(t, ok)
	return pk
}
