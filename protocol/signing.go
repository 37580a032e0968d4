package protocol

import (
	"bytes"
	"sort"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/utils"
)

const (
	updateIdentifier        = 'U'
	authorizationIdentifier = 'K'
	authKeyIdentifier       = 'A'
)

// UpdateMessage returns the canonical message the owners of the
// updated ADSes sign for an UpdateRequest:
// H('U' || batch || adsID_1 || value_1 || ... || adsID_n || value_n)
func UpdateMessage(batch uint64, updates []ADSUpdate) []byte {
	ms := [][]byte{{updateIdentifier}, utils.ULongToBytes(batch)}
	for _, u := range updates {
		ms = append(ms, u.ADSID, u.Value)
	}
	return crypto.Digest(ms...)
}

// AuthorizationMessage returns the canonical message the current
// owners of an ADS sign for an AuthorizationUpdateRequest:
// H('K' || batch || adsID || AuthorizationDigest(keys))
func AuthorizationMessage(batch uint64, adsID []byte, keys []sign.PublicKey) []byte {
	return crypto.Digest(
		[]byte{authorizationIdentifier},
		utils.ULongToBytes(batch),
		adsID,
		AuthorizationDigest(keys),
	)
}

// AuthorizationDigest commits to a set of public keys,
// independently of their order.
func AuthorizationDigest(keys []sign.PublicKey) []byte {
	sorted := SortKeys(keys)
	ms := make([][]byte, len(sorted))
	for i := range sorted {
		ms[i] = sorted[i]
	}
	return crypto.Digest(ms...)
}

// AuthorizationKey returns the trie key under which the
// AuthorizationDigest of an ADS's keys is stored.
func AuthorizationKey(adsID []byte) []byte {
	return crypto.Digest([]byte{authKeyIdentifier}, adsID)
}

// SortKeys returns a sorted copy of keys.
func SortKeys(keys []sign.PublicKey) []sign.PublicKey {
	sorted := append([]sign.PublicKey{}, keys...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i], sorted[j]) < 0
	})
	return sorted
}

// Sign appends a signature by every key in signers to r.
func (r *UpdateRequest) Sign(signers ...sign.PrivateKey) {
	msg := UpdateMessage(r.Batch, r.Updates)
	r.Signatures = appendSignatures(r.Signatures, msg, signers)
}

// Message returns the canonical message for r.
func (r *UpdateRequest) Message() []byte {
	return UpdateMessage(r.Batch, r.Updates)
}

// Sign appends a signature by every key in signers to r.
func (r *AuthorizationUpdateRequest) Sign(signers ...sign.PrivateKey) {
	msg := AuthorizationMessage(r.Batch, r.ADSID, r.Keys)
	r.Signatures = appendSignatures(r.Signatures, msg, signers)
}

// Message returns the canonical message for r.
func (r *AuthorizationUpdateRequest) Message() []byte {
	return AuthorizationMessage(r.Batch, r.ADSID, r.Keys)
}

func appendSignatures(sigs []Signature, msg []byte, signers []sign.PrivateKey) []Signature {
	for _, sk := range signers {
		pk, ok := sk.Public()
		if !ok {
			continue
		}
		sigs = append(sigs, Signature{
			Signer: pk,
			Sig:    sk.Sign(msg),
		})
	}
	return sigs
}
