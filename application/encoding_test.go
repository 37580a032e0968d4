package application

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/merkletree"
	"github.com/bverify/bverify-go/protocol"
	"github.com/bverify/bverify-go/protocol/client"
)

func encodings(t *testing.T) []WireEncoding {
	var encs []WireEncoding
	for _, name := range []string{"json", "cbor"} {
		enc, err := NewWireEncoding(name)
		require.NoError(t, err)
		encs = append(encs, enc)
	}
	return encs
}

func TestNewWireEncoding(t *testing.T) {
	enc, err := NewWireEncoding("")
	require.NoError(t, err)
	assert.Equal(t, "json", enc.Name())
	enc, err = NewWireEncoding("CBOR")
	require.NoError(t, err)
	assert.Equal(t, "cbor", enc.Name())
	_, err = NewWireEncoding("protobuf")
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestUpdateRequestRoundTrip(t *testing.T) {
	owner := crypto.NewStaticTestOwnerKey(0)
	req := &protocol.UpdateRequest{
		Updates: []protocol.ADSUpdate{{ADSID: crypto.StaticTestADSID(0), Value: crypto.StaticTestValue("v1")}},
		Batch:   3,
	}
	req.Sign(owner)
	pk, _ := owner.Public()

	for _, enc := range encodings(t) {
		t.Run(enc.Name(), func(t *testing.T) {
			msg, err := enc.MarshalRequest(protocol.PerformUpdateType, req)
			require.NoError(t, err)
			got, err := enc.UnmarshalRequest(msg)
			require.NoError(t, err)
			assert.Equal(t, protocol.PerformUpdateType, got.Type)
			decoded, ok := got.Request.(*protocol.UpdateRequest)
			require.True(t, ok)
			assert.Equal(t, req, decoded)
			assert.True(t, pk.Verify(decoded.Message(), decoded.Signatures[0].Sig))
		})
	}
}

func TestUnmarshalMalformedRequest(t *testing.T) {
	for _, enc := range encodings(t) {
		t.Run(enc.Name(), func(t *testing.T) {
			msg, err := enc.MarshalRequest(42, &protocol.CommitmentsRequest{})
			require.NoError(t, err)
			_, err = enc.UnmarshalRequest(msg)
			assert.Equal(t, protocol.ErrMalformedMessage, err)

			msg, err = enc.MarshalRequest(protocol.CommitmentsType, nil)
			require.NoError(t, err)
			_, err = enc.UnmarshalRequest(msg)
			assert.Equal(t, protocol.ErrMalformedMessage, err)

			_, err = enc.UnmarshalRequest([]byte{0xff, 0x00, '{'})
			assert.Error(t, err)
		})
	}
}

func TestProofResponseStillVerifies(t *testing.T) {
	tree := merkletree.NewMerkleTree()
	for i := 0; i < 5; i++ {
		_, err := tree.Set(crypto.StaticTestADSID(i), crypto.StaticTestValue("v"))
		require.NoError(t, err)
	}
	snap := tree.Snapshot()
	ap, err := snap.Get(crypto.StaticTestADSID(3))
	require.NoError(t, err)
	c := protocol.NewCommitment(crypto.NewStaticTestSigningKey(), 0, snap.RootHash(), []byte("prev"))
	res := protocol.NewADSProofResponse(&protocol.ADSProof{Seq: 0, Path: ap})

	for _, enc := range encodings(t) {
		t.Run(enc.Name(), func(t *testing.T) {
			msg, err := enc.MarshalResponse(res)
			require.NoError(t, err)
			got := enc.UnmarshalResponse(protocol.ProveADSRootType, msg)
			require.NoError(t, got.Validate())
			proof := got.Payload.(*protocol.ADSProof)
			assert.True(t, client.CheckProof(proof, crypto.StaticTestADSID(3), crypto.StaticTestValue("v"),
				[][]byte{c.RootHash}))

			cmsg, err := enc.MarshalResponse(protocol.NewCommitmentsResponse([]*protocol.Commitment{c}))
			require.NoError(t, err)
			cres := enc.UnmarshalResponse(protocol.CommitmentsType, cmsg)
			require.NoError(t, cres.Validate())
			assert.Equal(t, c, cres.Payload.(*protocol.CommitmentRange).Commitments[0])
		})
	}
}

func TestUnmarshalErrorResponse(t *testing.T) {
	for _, enc := range encodings(t) {
		t.Run(enc.Name(), func(t *testing.T) {
			msg, err := enc.MarshalResponse(protocol.NewErrorResponse(protocol.ReqStaleBatchNumber))
			require.NoError(t, err)
			res := enc.UnmarshalResponse(protocol.PerformUpdateType, msg)
			assert.Equal(t, protocol.ReqStaleBatchNumber, res.Error)
			assert.Nil(t, res.Payload)

			// success without a payload
			msg, err = enc.MarshalResponse(&protocol.Response{Error: protocol.ReqSuccess})
			require.NoError(t, err)
			res = enc.UnmarshalResponse(protocol.PerformUpdateType, msg)
			assert.Equal(t, protocol.ErrMalformedMessage, res.Error)

			// unknown error code
			msg, err = enc.MarshalResponse(&protocol.Response{Error: 7})
			require.NoError(t, err)
			res = enc.UnmarshalResponse(protocol.PerformUpdateType, msg)
			assert.Equal(t, protocol.ErrMalformedMessage, res.Error)

			res = enc.UnmarshalResponse(protocol.PerformUpdateType, []byte("garbage"))
			assert.Equal(t, protocol.ErrMalformedMessage, res.Error)
		})
	}
}

func TestJSONErrorResponseOmitsPayload(t *testing.T) {
	msg, err := jsonEncoding.MarshalResponse(protocol.NewErrorResponse(protocol.ErrServerStopped))
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(msg, &fields))
	assert.NotContains(t, fields, "Payload")
}
