// Implements the consistency checks a bverify client runs on
// commitments received from a server: signature verification,
// hash chain verification and non-equivocation checks.

package client

import (
	"bytes"
	"errors"

	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/protocol"
)

var (
	// ErrBadSignature indicates a commitment that is not signed
	// by the server's key.
	ErrBadSignature = errors.New("[client] Commitment has an invalid signature")
	// ErrBrokenHashChain indicates a commitment that does not
	// chain to the previous one.
	ErrBrokenHashChain = errors.New("[client] Commitment does not extend the hash chain")
	// ErrEquivocation indicates two different commitments
	// with the same sequence number.
	ErrEquivocation = errors.New("[client] Server returned conflicting commitments")
	// ErrProofRejected indicates a proof that does not fold to
	// the trusted root of its commitment.
	ErrProofRejected = errors.New("[client] Proof does not match the trusted commitment")
	// ErrUnknownCommitment indicates a proof bound to a commitment
	// the client hasn't verified yet.
	ErrUnknownCommitment = errors.New("[client] Proof is bound to an unverified commitment")
)

// VerifyCommitments checks that every commitment in next is signed by
// pk and extends the hash chain starting at trusted, in order.
func VerifyCommitments(pk sign.PublicKey, trusted *protocol.Commitment, next []*protocol.Commitment) error {
	prev := trusted
	for _, c := range next {
		if c == nil {
			return protocol.ErrMalformedMessage
		}
		if !c.VerifySignature(pk) {
			return ErrBadSignature
		}
		if !c.VerifyHashChain(prev) {
			return ErrBrokenHashChain
		}
		prev = c
	}
	return nil
}

// ConsistencyChecks stores the commitments a client has verified
// for one server, starting from a pinned commitment, and the
// server's public signing key.
//
// The client should create a ConsistencyChecks instance once, from
// a commitment it obtained out of band, and use it to verify every
// later response from the server.
type ConsistencyChecks struct {
	signKey     sign.PublicKey
	first       uint64
	commitments []*protocol.Commitment
}

// New creates an instance of ConsistencyChecks from the pinned
// commitment and the server's public signing key.
func New(pinned *protocol.Commitment, signKey sign.PublicKey) (*ConsistencyChecks, error) {
	if pinned == nil {
		return nil, protocol.ErrMalformedMessage
	}
	if !pinned.VerifySignature(signKey) {
		return nil, ErrBadSignature
	}
	return &ConsistencyChecks{
		signKey:     signKey,
		first:       pinned.Seq,
		commitments: []*protocol.Commitment{pinned},
	}, nil
}

// Latest returns the latest verified commitment.
func (cc *ConsistencyChecks) Latest() *protocol.Commitment {
	return cc.commitments[len(cc.commitments)-1]
}

// Roots returns the verified root hashes indexed by sequence number.
// Entries before the pinned commitment are nil.
func (cc *ConsistencyChecks) Roots() [][]byte {
	roots := make([][]byte, cc.first, cc.first+uint64(len(cc.commitments)))
	return append(roots, protocol.Roots(cc.commitments)...)
}

// UpdateCommitments verifies the commitments carried by msg and
// appends the new ones. Commitments the client already verified must
// be identical to the saved ones.
func (cc *ConsistencyChecks) UpdateCommitments(msg *protocol.Response) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	r, ok := msg.Payload.(*protocol.CommitmentRange)
	if !ok || len(r.Commitments) == 0 {
		return protocol.ErrMalformedMessage
	}
	return cc.Update(r.Commitments)
}

// Update verifies cs and appends the commitments that are newer than
// the latest verified one.
func (cc *ConsistencyChecks) Update(cs []*protocol.Commitment) error {
	latest := cc.Latest().Seq
	var fresh []*protocol.Commitment
	for _, c := range cs {
		if c == nil {
			return protocol.ErrMalformedMessage
		}
		switch {
		case c.Seq < cc.first:
			continue
		case c.Seq <= latest:
			if !sameCommitment(cc.commitments[c.Seq-cc.first], c) {
				return ErrEquivocation
			}
		default:
			fresh = append(fresh, c)
		}
	}
	if err := VerifyCommitments(cc.signKey, cc.Latest(), fresh); err != nil {
		return err
	}
	cc.commitments = append(cc.commitments, fresh...)
	return nil
}

// VerifyProof checks that the ADSProof carried by msg shows that
// adsID maps to value at a verified commitment.
func (cc *ConsistencyChecks) VerifyProof(msg *protocol.Response, adsID, value []byte) (*protocol.ADSProof, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	proof, ok := msg.Payload.(*protocol.ADSProof)
	if !ok {
		return nil, protocol.ErrMalformedMessage
	}
	if proof.Seq > cc.Latest().Seq || proof.Seq < cc.first {
		return nil, ErrUnknownCommitment
	}
	if !CheckProof(proof, adsID, value, cc.Roots()) {
		return nil, ErrProofRejected
	}
	return proof, nil
}

// VerifyProofUpdates walks a previously verified proof forward through
// the updates carried by msg, and checks that the result shows that
// adsID maps to value at the latest verified commitment it reaches.
func (cc *ConsistencyChecks) VerifyProofUpdates(proof *protocol.ADSProof, msg *protocol.Response,
	adsID, value []byte) (*protocol.ADSProof, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	updates, ok := msg.Payload.(*protocol.ADSProofUpdates)
	if !ok {
		return nil, protocol.ErrMalformedMessage
	}
	if n := len(updates.Updates); n > 0 && updates.Updates[n-1].Seq > cc.Latest().Seq {
		return nil, ErrUnknownCommitment
	}
	roots := cc.Roots()
	if !CheckProofUpdates(proof, updates.Updates, adsID, value, roots) {
		return nil, ErrProofRejected
	}
	return ApplyProofUpdates(proof, updates.Updates)
}

func sameCommitment(a, b *protocol.Commitment) bool {
	return a.Seq == b.Seq &&
		bytes.Equal(a.RootHash, b.RootHash) &&
		bytes.Equal(a.PreviousHash, b.PreviousHash) &&
		bytes.Equal(a.Signature, b.Signature)
}
