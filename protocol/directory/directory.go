// This module implements the ADS directory that a bverify server
// maintains.
// The directory maps every ADS identifier to the set of public keys
// that must jointly sign changes to it, and validates update requests
// against the sets as of the last closed batch.

package directory

import (
	"bytes"
	"errors"
	"sync"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/merkletree"
	"github.com/bverify/bverify-go/protocol"
)

var (
	// ErrMalformedEntry indicates an initial entry with a bad identifier,
	// value or key set.
	ErrMalformedEntry = errors.New("[directory] Malformed entry")
	// ErrDuplicateEntry indicates two initial entries for the same ADS.
	ErrDuplicateEntry = errors.New("[directory] Duplicate entry")
)

// An Entry is the initial state of one ADS:
// its identifier, value and authorized keys.
type Entry struct {
	ADSID []byte
	Value []byte
	Keys  []sign.PublicKey
}

// A Directory keeps the authorization view the open batch is validated
// against. The view only changes when a batch is closed.
type Directory struct {
	mu                sync.RWMutex
	view              *View
	requireSignatures bool
}

// A View is an immutable snapshot of the authorized keys of every ADS,
// as of the batch before Batch. Requests bound to batch Batch are
// validated against it.
type View struct {
	batch             uint64
	auth              map[string][]sign.PublicKey
	requireSignatures bool
}

// New constructs a Directory from the initial entries, and writes the
// value and authorization entry of every ADS into tree.
// The first open batch is batch 1.
// requireSignatures indicates whether updates must be signed by the
// authorized keys; it should only be disabled for testing and
// benchmarking.
func New(tree *merkletree.MerkleTree, entries []Entry, requireSignatures bool) (*Directory, error) {
	auth := make(map[string][]sign.PublicKey, len(entries))
	for _, e := range entries {
		if !wellFormedID(e.ADSID) || !wellFormedValue(e.Value) || !wellFormedKeys(e.Keys) {
			return nil, ErrMalformedEntry
		}
		if _, ok := auth[string(e.ADSID)]; ok {
			return nil, ErrDuplicateEntry
		}
		keys := protocol.SortKeys(e.Keys)
		auth[string(e.ADSID)] = keys
		if _, err := tree.Set(e.ADSID, e.Value); err != nil {
			return nil, err
		}
		if _, err := tree.Set(protocol.AuthorizationKey(e.ADSID), protocol.AuthorizationDigest(keys)); err != nil {
			return nil, err
		}
	}
	d := &Directory{
		requireSignatures: requireSignatures,
	}
	d.view = &View{
		batch:             1,
		auth:              auth,
		requireSignatures: requireSignatures,
	}
	return d, nil
}

// View returns the current authorization view.
func (d *Directory) View() *View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view
}

// Advance closes the current batch: it installs the key sets changed
// by the given authorization updates, in order, and moves the view to
// the next batch. The updates must have been validated against the
// current view.
func (d *Directory) Advance(changes []*protocol.AuthorizationUpdateRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	auth := d.view.auth
	if len(changes) > 0 {
		auth = make(map[string][]sign.PublicKey, len(d.view.auth))
		for id, keys := range d.view.auth {
			auth[id] = keys
		}
		for _, c := range changes {
			auth[string(c.ADSID)] = protocol.SortKeys(c.Keys)
		}
	}
	d.view = &View{
		batch:             d.view.batch + 1,
		auth:              auth,
		requireSignatures: d.requireSignatures,
	}
}

// Batch returns the number of the open batch.
func (d *Directory) Batch() uint64 {
	return d.View().batch
}

// Exists reports whether adsID is a known ADS.
func (d *Directory) Exists(adsID []byte) bool {
	return d.View().Exists(adsID)
}

// AuthorizedKeys returns the keys authorized to update adsID,
// as of the last closed batch.
func (d *Directory) AuthorizedKeys(adsID []byte) ([]sign.PublicKey, bool) {
	return d.View().AuthorizedKeys(adsID)
}

// Len returns the number of ADSes in the directory.
func (d *Directory) Len() int {
	return len(d.View().auth)
}

// Batch returns the number of the batch v validates requests for.
func (v *View) Batch() uint64 {
	return v.batch
}

// Exists reports whether adsID is a known ADS.
func (v *View) Exists(adsID []byte) bool {
	_, ok := v.auth[string(adsID)]
	return ok
}

// AuthorizedKeys returns a copy of the keys authorized to update adsID.
func (v *View) AuthorizedKeys(adsID []byte) ([]sign.PublicKey, bool) {
	keys, ok := v.auth[string(adsID)]
	if !ok {
		return nil, false
	}
	return append([]sign.PublicKey{}, keys...), true
}

// ValidateUpdate checks req against v and returns ReqSuccess if it
// can be admitted to the open batch.
// A request is malformed if it updates no ADS, updates one ADS twice,
// or carries an identifier or value of the wrong size.
// Every key authorized for any of the updated ADSes must sign the
// request, and no other key may.
func (v *View) ValidateUpdate(req *protocol.UpdateRequest) protocol.ErrorCode {
	if req == nil || len(req.Updates) == 0 {
		return protocol.ErrMalformedMessage
	}
	seen := make(map[string]bool, len(req.Updates))
	for _, u := range req.Updates {
		if !wellFormedID(u.ADSID) || !wellFormedValue(u.Value) || seen[string(u.ADSID)] {
			return protocol.ErrMalformedMessage
		}
		seen[string(u.ADSID)] = true
	}
	if req.Batch != v.batch {
		return protocol.ReqStaleBatchNumber
	}

	var required []sign.PublicKey
	for _, u := range req.Updates {
		keys, ok := v.auth[string(u.ADSID)]
		if !ok {
			return protocol.ReqUnknownADS
		}
		required = append(required, keys...)
	}
	return v.checkSignatures(req.Message(), required, req.Signatures)
}

// ValidateAuthorizationUpdate checks req against v and returns
// ReqSuccess if it can be admitted to the open batch.
// The new key set must not be empty or contain duplicates, and every
// key currently authorized for the ADS must sign the request.
func (v *View) ValidateAuthorizationUpdate(req *protocol.AuthorizationUpdateRequest) protocol.ErrorCode {
	if req == nil || !wellFormedID(req.ADSID) || !wellFormedKeys(req.Keys) {
		return protocol.ErrMalformedMessage
	}
	if req.Batch != v.batch {
		return protocol.ReqStaleBatchNumber
	}
	keys, ok := v.auth[string(req.ADSID)]
	if !ok {
		return protocol.ReqUnknownADS
	}
	return v.checkSignatures(req.Message(), keys, req.Signatures)
}

func (v *View) checkSignatures(msg []byte, required []sign.PublicKey, sigs []protocol.Signature) protocol.ErrorCode {
	if !v.requireSignatures {
		return protocol.ReqSuccess
	}
	signed := make(map[string]bool, len(sigs))
	for _, s := range sigs {
		if !containsKey(required, s.Signer) {
			return protocol.ReqUnauthorizedSigner
		}
		if !s.Signer.Verify(msg, s.Sig) {
			return protocol.ReqInvalidSignature
		}
		signed[string(s.Signer)] = true
	}
	for _, pk := range required {
		if !signed[string(pk)] {
			return protocol.ReqMissingSignature
		}
	}
	return protocol.ReqSuccess
}

// ValueEntries returns the trie entries written by an update request.
func ValueEntries(req *protocol.UpdateRequest) (keys, values [][]byte) {
	for _, u := range req.Updates {
		keys = append(keys, u.ADSID)
		values = append(values, u.Value)
	}
	return
}

// AuthorizationEntry returns the trie entry written by an
// authorization update request.
func AuthorizationEntry(req *protocol.AuthorizationUpdateRequest) (key, value []byte) {
	return protocol.AuthorizationKey(req.ADSID), protocol.AuthorizationDigest(req.Keys)
}

func containsKey(keys []sign.PublicKey, pk sign.PublicKey) bool {
	for _, k := range keys {
		if bytes.Equal(k, pk) {
			return true
		}
	}
	return false
}

func wellFormedID(id []byte) bool {
	return len(id) == crypto.HashSizeByte
}

func wellFormedValue(value []byte) bool {
	return len(value) == merkletree.ValueSize
}

func wellFormedKeys(keys []sign.PublicKey) bool {
	if len(keys) == 0 {
		return false
	}
	for i, k := range keys {
		if len(k) != sign.PublicKeySize {
			return false
		}
		for _, other := range keys[:i] {
			if bytes.Equal(k, other) {
				return false
			}
		}
	}
	return true
}
