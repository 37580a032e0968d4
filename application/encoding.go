// Defines methods/functions to encode/decode messages between client
// and server. Both encodings carry the same message structure: a
// request is a protocol.Request, a response a protocol.Response whose
// payload type is determined by the request type.

package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/bverify/bverify-go/protocol"
)

// ErrUnknownEncoding indicates a wire encoding
// other than "json" and "cbor".
var ErrUnknownEncoding = errors.New("[application] Unknown wire encoding")

// A WireEncoding encodes and decodes the messages exchanged
// between bverify clients and servers.
type WireEncoding interface {
	Name() string
	MarshalRequest(reqType int, request interface{}) ([]byte, error)
	UnmarshalRequest(msg []byte) (*protocol.Request, error)
	MarshalResponse(response *protocol.Response) ([]byte, error)
	UnmarshalResponse(reqType int, msg []byte) *protocol.Response
}

// NewWireEncoding returns the encoding with the given name.
// The empty name is JSON.
func NewWireEncoding(name string) (WireEncoding, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return jsonEncoding, nil
	case "cbor":
		return cborEncoding, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// envelope holds the undecoded parts of a message.
type envelope struct {
	Type    int
	Request []byte
	Error   protocol.ErrorCode
	Payload []byte
}

type codec struct {
	name      string
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
	open      func(msg []byte) (*envelope, error)
}

var jsonEncoding = &codec{
	name:      "json",
	marshal:   json.Marshal,
	unmarshal: json.Unmarshal,
	open: func(msg []byte) (*envelope, error) {
		var raw struct {
			Type    int
			Request json.RawMessage
			Error   protocol.ErrorCode
			Payload json.RawMessage
		}
		if err := json.Unmarshal(msg, &raw); err != nil {
			return nil, err
		}
		return &envelope{raw.Type, raw.Request, raw.Error, raw.Payload}, nil
	},
}

var cborEncoding = &codec{
	name:      "cbor",
	marshal:   cbor.Marshal,
	unmarshal: cbor.Unmarshal,
	open: func(msg []byte) (*envelope, error) {
		var raw struct {
			Type    int
			Request cbor.RawMessage
			Error   protocol.ErrorCode
			Payload cbor.RawMessage
		}
		if err := cbor.Unmarshal(msg, &raw); err != nil {
			return nil, err
		}
		return &envelope{raw.Type, raw.Request, raw.Error, raw.Payload}, nil
	},
}

// isNull reports whether an undecoded field is absent or null
// in either encoding.
func isNull(body []byte) bool {
	return len(body) == 0 || string(body) == "null" ||
		(len(body) == 1 && body[0] == 0xf6)
}

func (c *codec) Name() string {
	return c.name
}

// MarshalRequest returns the encoding of the client's request.
func (c *codec) MarshalRequest(reqType int, request interface{}) ([]byte, error) {
	return c.marshal(&protocol.Request{
		Type:    reqType,
		Request: request,
	})
}

// UnmarshalRequest parses an encoded request msg and creates the
// corresponding protocol.Request, which will be handled by the server.
// Unknown request types are malformed.
func (c *codec) UnmarshalRequest(msg []byte) (*protocol.Request, error) {
	env, err := c.open(msg)
	if err != nil {
		return nil, err
	}
	request := newRequest(env.Type)
	if request == nil || isNull(env.Request) {
		return nil, protocol.ErrMalformedMessage
	}
	if err := c.unmarshal(env.Request, request); err != nil {
		return nil, err
	}
	return &protocol.Request{Type: env.Type, Request: request}, nil
}

// MarshalResponse returns the encoding of the server's response.
func (c *codec) MarshalResponse(response *protocol.Response) ([]byte, error) {
	return c.marshal(response)
}

// UnmarshalResponse decodes the given message into a protocol.Response
// according to the given request type reqType. Any message that can't
// be decoded, or that reports success without a payload, is returned
// as an ErrMalformedMessage response.
func (c *codec) UnmarshalResponse(reqType int, msg []byte) *protocol.Response {
	malformed := protocol.NewErrorResponse(protocol.ErrMalformedMessage)
	env, err := c.open(msg)
	if err != nil || !env.Error.IsKnown() {
		return malformed
	}

	// Payload is omitempty for the error responses
	if isNull(env.Payload) {
		if env.Error == protocol.ReqSuccess {
			return malformed
		}
		return protocol.NewErrorResponse(env.Error)
	}
	payload := newPayload(reqType)
	if payload == nil {
		return malformed
	}
	if err := c.unmarshal(env.Payload, payload); err != nil {
		return malformed
	}
	return &protocol.Response{
		Error:   env.Error,
		Payload: payload,
	}
}

func newRequest(reqType int) interface{} {
	switch reqType {
	case protocol.PerformUpdateType:
		return new(protocol.UpdateRequest)
	case protocol.AuthorizationUpdateType:
		return new(protocol.AuthorizationUpdateRequest)
	case protocol.ProveADSRootType:
		return new(protocol.ProveADSRootRequest)
	case protocol.ProveADSRootAtType:
		return new(protocol.ProveADSRootAtRequest)
	case protocol.ProofUpdatesType:
		return new(protocol.ProofUpdatesRequest)
	case protocol.CommitmentsType:
		return new(protocol.CommitmentsRequest)
	}
	return nil
}

func newPayload(reqType int) interface{} {
	switch reqType {
	case protocol.PerformUpdateType, protocol.AuthorizationUpdateType:
		return new(protocol.UpdateAccepted)
	case protocol.ProveADSRootType, protocol.ProveADSRootAtType:
		return new(protocol.ADSProof)
	case protocol.ProofUpdatesType:
		return new(protocol.ADSProofUpdates)
	case protocol.CommitmentsType:
		return new(protocol.CommitmentRange)
	}
	return nil
}
