// Defines constants representing the types
// of errors that the server may return to a client.

package protocol

// An ErrorCode describes the result of a request. ReqSuccess
// means the request was accepted; the Req* codes are rejections
// of an individual request; the Err* codes are failures of the
// server or of the message itself.
type ErrorCode int

// The result codes a bverify server may return.
const (
	ReqSuccess ErrorCode = iota + 100
	ReqUnknownADS
	ReqMissingSignature
	ReqInvalidSignature
	ReqUnauthorizedSigner
	ReqStaleBatchNumber
	ReqDuplicateUpdate
	ReqUnknownCommitment

	ErrMalformedMessage
	ErrInternalServer
	ErrServerStopped
)

var (
	errorMessages = map[ErrorCode]string{
		ReqSuccess:            "[bverify] Successful request",
		ReqUnknownADS:         "[bverify] Requested ADS doesn't exist",
		ReqMissingSignature:   "[bverify] An authorized key did not sign the update",
		ReqInvalidSignature:   "[bverify] Update carries an invalid signature",
		ReqUnauthorizedSigner: "[bverify] Update is signed by a key that is not authorized",
		ReqStaleBatchNumber:   "[bverify] Update is bound to a batch other than the open one",
		ReqDuplicateUpdate:    "[bverify] ADS was already updated in the open batch",
		ReqUnknownCommitment:  "[bverify] Requested commitment is not available",

		ErrMalformedMessage: "[bverify] Malformed message",
		ErrInternalServer:   "[bverify] Internal server error",
		ErrServerStopped:    "[bverify] Server is stopped",
	}
)

// Error returns the message describing e.
func (e ErrorCode) Error() string {
	if msg, ok := errorMessages[e]; ok {
		return msg
	}
	return errorMessages[ErrInternalServer]
}

// IsRejection reports whether e rejects an individual request
// while the server keeps working normally.
func (e ErrorCode) IsRejection() bool {
	return e > ReqSuccess && e < ErrMalformedMessage
}

// IsKnown reports whether e is one of the codes a server returns.
func (e ErrorCode) IsKnown() bool {
	_, ok := errorMessages[e]
	return ok
}
