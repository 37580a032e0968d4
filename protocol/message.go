// Defines the message format of the bverify protocol
// and constructors for the response messages for each
// request.

package protocol

import (
	"github.com/bverify/bverify-go/crypto/sign"
	m "github.com/bverify/bverify-go/merkletree"
)

// The types of requests bverify clients send to a server.
const (
	PerformUpdateType = iota
	AuthorizationUpdateType
	ProveADSRootType
	ProveADSRootAtType
	ProofUpdatesType
	CommitmentsType
)

// A Request message defines the data a bverify client must send to a
// server for a particular request.
type Request struct {
	Type    int
	Request interface{}
}

// An ADSUpdate binds a new value to an ADS.
type ADSUpdate struct {
	ADSID []byte
	Value []byte
}

// A Signature is a signature by Signer over the canonical
// message of a request.
type Signature struct {
	Signer sign.PublicKey
	Sig    []byte
}

// An UpdateRequest changes the values of one or more ADSes together.
// Batch must be the number of the batch that is open on the server;
// Signatures must contain a signature over UpdateMessage(Batch, Updates)
// by every key authorized for any of the updated ADSes.
//
// The response to an accepted request is an UpdateAccepted
// with the batch the update was admitted to.
type UpdateRequest struct {
	Updates    []ADSUpdate
	Batch      uint64
	Signatures []Signature
}

// An AuthorizationUpdateRequest replaces the set of keys authorized
// to update an ADS. Signatures must contain a signature over
// AuthorizationMessage(Batch, ADSID, Keys) by every key currently
// authorized for the ADS.
type AuthorizationUpdateRequest struct {
	ADSID      []byte
	Keys       []sign.PublicKey
	Batch      uint64
	Signatures []Signature
}

// A ProveADSRootRequest asks for a proof of the value of an ADS
// at the latest commitment.
//
// The response to a successful request is an ADSProof.
type ProveADSRootRequest struct {
	ADSID []byte
}

// A ProveADSRootAtRequest asks for a proof of the value of an ADS
// at the commitment with sequence number Seq.
//
// The response to a successful request is an ADSProof.
type ProveADSRootAtRequest struct {
	ADSID []byte
	Seq   uint64
}

// A ProofUpdatesRequest asks for the changes to the proof of an ADS
// for every commitment after From, up to the latest one.
//
// The response to a successful request is an ADSProofUpdates.
type ProofUpdatesRequest struct {
	ADSID []byte
	From  uint64
}

// A CommitmentsRequest asks for the commitments with sequence numbers
// From and up.
//
// The response to a successful request is a CommitmentRange.
type CommitmentsRequest struct {
	From uint64
}

// A Response message indicates the result of a bverify client request
// with an appropriate error code, and defines the payload the server
// returns as part of its response.
type Response struct {
	Error   ErrorCode
	Payload ResponsePayload `json:",omitempty"`
}

// A ResponsePayload is the body of a successful response.
type ResponsePayload interface{}

// UpdateAccepted tells the client which batch its update will be
// committed in.
type UpdateAccepted struct {
	Batch uint64
}

// An ADSProof is an authentication path for an ADS in the trie
// committed to by the commitment with sequence number Seq.
type ADSProof struct {
	Seq  uint64
	Path *m.AuthenticationPath
}

// An ADSProofUpdate turns a proof for commitment Seq-1 into a proof
// for commitment Seq.
type ADSProofUpdate struct {
	Seq    uint64
	Update *m.PathUpdate
}

// ADSProofUpdates is the response to a ProofUpdatesRequest.
type ADSProofUpdates struct {
	Updates []*ADSProofUpdate
}

// CommitmentRange is the response to a CommitmentsRequest.
type CommitmentRange struct {
	Commitments []*Commitment
}

// NewErrorResponse creates a new response message indicating the error
// that occurred while a server was processing a client request.
func NewErrorResponse(e ErrorCode) *Response {
	return &Response{Error: e}
}

// NewUpdateAcceptedResponse creates the response to an accepted update.
func NewUpdateAcceptedResponse(batch uint64) *Response {
	return &Response{
		Error:   ReqSuccess,
		Payload: &UpdateAccepted{Batch: batch},
	}
}

// NewADSProofResponse creates the response to a proof request.
func NewADSProofResponse(proof *ADSProof) *Response {
	return &Response{
		Error:   ReqSuccess,
		Payload: proof,
	}
}

// NewProofUpdatesResponse creates the response to a proof updates request.
func NewProofUpdatesResponse(updates []*ADSProofUpdate) *Response {
	return &Response{
		Error:   ReqSuccess,
		Payload: &ADSProofUpdates{Updates: updates},
	}
}

// NewCommitmentsResponse creates the response to a commitments request.
func NewCommitmentsResponse(cs []*Commitment) *Response {
	return &Response{
		Error:   ReqSuccess,
		Payload: &CommitmentRange{Commitments: cs},
	}
}

// Validate returns nil if msg reports a successful request and
// carries a payload, and the error code of the response otherwise.
func (msg *Response) Validate() error {
	if msg == nil {
		return ErrMalformedMessage
	}
	if msg.Error != ReqSuccess {
		return msg.Error
	}
	if msg.Payload == nil {
		return ErrMalformedMessage
	}
	return nil
}
