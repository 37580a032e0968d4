// Implements the checks a bverify client runs on proofs received from
// a server. A proof is only ever checked against a root hash the
// client already trusts, never against data carried by the proof.

package client

import (
	"bytes"
	"errors"

	"github.com/bverify/bverify-go/protocol"
)

// ErrUpdateOutOfOrder indicates a proof update that does not
// follow the proof it is applied to.
var ErrUpdateOutOfOrder = errors.New("[client] Proof update is out of order")

// rootAt returns the trusted root for the commitment seq, or nil.
func rootAt(roots [][]byte, seq uint64) []byte {
	if seq >= uint64(len(roots)) {
		return nil
	}
	return roots[seq]
}

// CheckProof reports whether proof shows that adsID maps to value
// in the trie committed to by roots[proof.Seq]. roots must be the
// root hashes of the commitments the caller trusts, indexed by
// sequence number. It never panics on malformed proofs.
func CheckProof(proof *protocol.ADSProof, adsID, value []byte, roots [][]byte) bool {
	if proof == nil || proof.Path == nil {
		return false
	}
	root := rootAt(roots, proof.Seq)
	if root == nil {
		return false
	}
	return proof.Path.Verify(adsID, value, root)
}

// CheckAbsence reports whether proof shows that adsID is not in
// the trie committed to by roots[proof.Seq].
func CheckAbsence(proof *protocol.ADSProof, adsID []byte, roots [][]byte) bool {
	if proof == nil || proof.Path == nil {
		return false
	}
	root := rootAt(roots, proof.Seq)
	if root == nil {
		return false
	}
	return proof.Path.VerifyAbsence(adsID, root)
}

// ApplyProofUpdates applies updates to proof, in order, and returns
// the proof for the commitment of the last update. The updates must
// cover consecutive sequence numbers starting right after proof.Seq.
// proof is left unchanged.
func ApplyProofUpdates(proof *protocol.ADSProof, updates []*protocol.ADSProofUpdate) (*protocol.ADSProof, error) {
	return applyProofUpdates(proof, updates, nil)
}

func applyProofUpdates(proof *protocol.ADSProof, updates []*protocol.ADSProofUpdate,
	check func(*protocol.ADSProof) bool) (*protocol.ADSProof, error) {
	if proof == nil || proof.Path == nil {
		return nil, protocol.ErrMalformedMessage
	}
	current := &protocol.ADSProof{Seq: proof.Seq, Path: proof.Path}
	for _, u := range updates {
		if u == nil || u.Seq != current.Seq+1 {
			return nil, ErrUpdateOutOfOrder
		}
		path, err := current.Path.Apply(u.Update)
		if err != nil {
			return nil, err
		}
		current = &protocol.ADSProof{Seq: u.Seq, Path: path}
		if check != nil && !check(current) {
			return nil, protocol.ErrMalformedMessage
		}
	}
	if current.Path == proof.Path {
		current.Path = proof.Path.Clone()
	}
	return current, nil
}

// CheckProofUpdates walks a proof forward through updates, checking
// that every intermediate proof folds to the trusted root of its
// commitment, and reports whether the final proof shows that adsID
// maps to value.
func CheckProofUpdates(proof *protocol.ADSProof, updates []*protocol.ADSProofUpdate,
	adsID, value []byte, roots [][]byte) bool {
	if proof == nil || proof.Path == nil {
		return false
	}
	root := rootAt(roots, proof.Seq)
	if root == nil || !bytes.Equal(proof.Path.RootHash(), root) {
		return false
	}
	last, err := applyProofUpdates(proof, updates, func(p *protocol.ADSProof) bool {
		r := rootAt(roots, p.Seq)
		return r != nil && bytes.Equal(p.Path.RootHash(), r)
	})
	if err != nil {
		return false
	}
	return CheckProof(last, adsID, value, roots)
}
