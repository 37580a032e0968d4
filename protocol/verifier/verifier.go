// Package verifier implements the request-facing side of a bverify
// server: it admits signed updates into batches and answers proof
// requests from the sealed snapshots.
//
// A Verifier wires together the directory, the batch scheduler and the
// commitment log. Proofs are always built from sealed snapshots, so
// they never observe a batch that is still being applied.
package verifier

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/merkletree"
	"github.com/bverify/bverify-go/protocol"
	"github.com/bverify/bverify-go/protocol/batch"
	"github.com/bverify/bverify-go/protocol/client"
	"github.com/bverify/bverify-go/protocol/commitlog"
	"github.com/bverify/bverify-go/protocol/directory"
)

// ErrSigningKey indicates a signing key whose
// public key cannot be derived.
var ErrSigningKey = errors.New("[verifier] Invalid signing key")

// Config configures a Verifier.
type Config struct {
	Batch batch.Config
	// HistoryLength is the number of sealed snapshots kept in memory
	// for historical proofs and proof updates; 0 keeps all of them.
	HistoryLength uint64
	// ProofCacheSize is the number of full proofs cached;
	// 0 disables the cache.
	ProofCacheSize int
	// RequireSignatures indicates whether updates must be signed
	// by the authorized keys of the ADSes they change.
	RequireSignatures bool
}

type proofKey struct {
	seq   uint64
	adsID string
}

// A Verifier serves the requests of bverify clients.
// All of its methods may be called concurrently.
type Verifier struct {
	dir    *directory.Directory
	log    *commitlog.Log
	sched  *batch.Scheduler
	proofs *lru.Cache
	pk     sign.PublicKey
	logger *zap.SugaredLogger
}

// New bulk-loads entries into a new trie, seals it as commitment 0
// and starts accepting updates for batch 1.
//
// signKey is the private key the server uses to sign commitments.
// Every commitment is handed to sinks after it is appended.
func New(cfg Config, entries []directory.Entry, signKey sign.PrivateKey,
	logger *zap.SugaredLogger, sinks ...commitlog.Sink) (*Verifier, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	pk, ok := signKey.Public()
	if !ok {
		return nil, ErrSigningKey
	}
	if cfg.ProofCacheSize < 0 {
		return nil, batch.ErrInvalidConfig
	}

	tree := merkletree.NewMerkleTree()
	dir, err := directory.New(tree, entries, cfg.RequireSignatures)
	if err != nil {
		return nil, err
	}
	log, err := commitlog.New(signKey, tree.Snapshot(), cfg.HistoryLength, logger, sinks...)
	if err != nil {
		return nil, err
	}
	sched, err := batch.New(cfg.Batch, dir, tree, log, logger)
	if err != nil {
		return nil, err
	}

	v := &Verifier{
		dir:    dir,
		log:    log,
		sched:  sched,
		pk:     pk,
		logger: logger,
	}
	if cfg.ProofCacheSize > 0 {
		if v.proofs, err = lru.New(cfg.ProofCacheSize); err != nil {
			sched.Stop()
			return nil, err
		}
	}
	logger.Infow("Verifier initialized", "ads", len(entries),
		"requireSignatures", cfg.RequireSignatures)
	return v, nil
}

// PublicKey returns the key that verifies the server's commitments.
func (v *Verifier) PublicKey() sign.PublicKey {
	return v.pk
}

// PerformUpdate validates req and admits it to the open batch.
// It returns as soon as the update is admitted or rejected; the
// returned batch number is the sequence number of the commitment
// that will include the update.
func (v *Verifier) PerformUpdate(req *protocol.UpdateRequest) (uint64, protocol.ErrorCode) {
	if req == nil {
		return 0, protocol.ErrMalformedMessage
	}
	return v.sched.PerformUpdate(req)
}

// PerformAuthorizationUpdate validates req and admits it to the
// open batch. The new authorized keys apply from the next batch on.
func (v *Verifier) PerformAuthorizationUpdate(req *protocol.AuthorizationUpdateRequest) (uint64, protocol.ErrorCode) {
	if req == nil {
		return 0, protocol.ErrMalformedMessage
	}
	return v.sched.PerformAuthorizationUpdate(req)
}

// ProveADSRoot returns a proof of the value of adsID against the
// latest commitment. For an ADS that doesn't exist the proof is a
// proof of absence.
func (v *Verifier) ProveADSRoot(adsID []byte) (*protocol.ADSProof, error) {
	c, snap := v.log.Latest()
	return v.prove(snap, c.Seq, adsID)
}

// ProveADSRootAt returns a proof of the value of adsID against the
// commitment seq. It returns ReqUnknownCommitment if seq is not
// sealed yet or its snapshot is no longer kept.
func (v *Verifier) ProveADSRootAt(adsID []byte, seq uint64) (*protocol.ADSProof, error) {
	snap, err := v.snapshot(seq)
	if err != nil {
		return nil, err
	}
	return v.prove(snap, seq, adsID)
}

func (v *Verifier) prove(snap *merkletree.MerkleTree, seq uint64, adsID []byte) (*protocol.ADSProof, error) {
	if len(adsID) != merkletree.KeySize {
		return nil, protocol.ErrMalformedMessage
	}
	key := proofKey{seq: seq, adsID: string(adsID)}
	if v.proofs != nil {
		if ap, ok := v.proofs.Get(key); ok {
			return &protocol.ADSProof{Seq: seq, Path: ap.(*merkletree.AuthenticationPath).Clone()}, nil
		}
	}
	ap, err := snap.Get(adsID)
	if err != nil {
		v.logger.Errorw("Cannot build proof", "seq", seq, "error", err)
		return nil, protocol.ErrInternalServer
	}
	if v.proofs != nil {
		v.proofs.Add(key, ap.Clone())
	}
	return &protocol.ADSProof{Seq: seq, Path: ap}, nil
}

// GetProofUpdates returns one proof update for adsID per commitment
// after from, up to the latest one. Applied in order to a proof for
// commitment from, they yield a proof for the latest commitment.
func (v *Verifier) GetProofUpdates(adsID []byte, from uint64) ([]*protocol.ADSProofUpdate, error) {
	if len(adsID) != merkletree.KeySize {
		return nil, protocol.ErrMalformedMessage
	}
	latest, _ := v.log.Latest()
	if from > latest.Seq {
		return nil, protocol.ReqUnknownCommitment
	}
	prev, err := v.snapshot(from)
	if err != nil {
		return nil, err
	}
	updates := make([]*protocol.ADSProofUpdate, 0, latest.Seq-from)
	for seq := from + 1; seq <= latest.Seq; seq++ {
		next, err := v.snapshot(seq)
		if err != nil {
			return nil, err
		}
		u, err := next.PathUpdate(prev, adsID)
		if err != nil {
			v.logger.Errorw("Cannot build proof update", "seq", seq, "error", err)
			return nil, protocol.ErrInternalServer
		}
		updates = append(updates, &protocol.ADSProofUpdate{Seq: seq, Update: u})
		prev = next
	}
	return updates, nil
}

func (v *Verifier) snapshot(seq uint64) (*merkletree.MerkleTree, error) {
	snap, err := v.log.Snapshot(seq)
	switch {
	case errors.Is(err, commitlog.ErrNotSealed), errors.Is(err, commitlog.ErrSnapshotEvicted):
		return nil, protocol.ReqUnknownCommitment
	case err != nil:
		return nil, protocol.ErrInternalServer
	}
	return snap, nil
}

// CheckProof reports whether proof shows that adsID maps to value
// in the commitment it is bound to, taking the root hash from the
// trusted commitments, indexed by sequence number.
func CheckProof(proof *protocol.ADSProof, adsID, value []byte, commitments []*protocol.Commitment) bool {
	return client.CheckProof(proof, adsID, value, protocol.Roots(commitments))
}

// Commitments returns every commitment published so far.
func (v *Verifier) Commitments() []*protocol.Commitment {
	return v.log.Commitments()
}

// CommitmentsFrom returns the commitments with sequence numbers from
// and up. It returns ReqUnknownCommitment if from is not sealed.
func (v *Verifier) CommitmentsFrom(from uint64) ([]*protocol.Commitment, error) {
	cs := v.log.Range(from)
	if len(cs) == 0 {
		return nil, protocol.ReqUnknownCommitment
	}
	return cs, nil
}

// LatestCommitment returns the latest commitment.
func (v *Verifier) LatestCommitment() *protocol.Commitment {
	c, _ := v.log.Latest()
	return c
}

// WaitForCommitment blocks until commitment seq is sealed, ctx is
// done or the server fails.
func (v *Verifier) WaitForCommitment(ctx context.Context, seq uint64) (*protocol.Commitment, error) {
	return v.log.WaitFor(ctx, seq)
}

// CurrentValue returns the value of adsID at the latest commitment.
func (v *Verifier) CurrentValue(adsID []byte) ([]byte, bool) {
	_, snap := v.log.Latest()
	return snap.Lookup(adsID)
}

// AuthorizedKeys returns the keys that must sign
// updates of adsID in the open batch.
func (v *Verifier) AuthorizedKeys(adsID []byte) ([]sign.PublicKey, bool) {
	return v.dir.AuthorizedKeys(adsID)
}

// OpenBatch returns the number of the batch accepting updates.
func (v *Verifier) OpenBatch() uint64 {
	return v.sched.OpenBatch()
}

// Flush closes the open batch if it holds any update.
func (v *Verifier) Flush() (uint64, bool) {
	return v.sched.Flush()
}

// State returns the state of the batch scheduler.
func (v *Verifier) State() batch.State {
	return v.sched.State()
}

// Err returns the error that failed the server, if any.
func (v *Verifier) Err() error {
	return v.sched.Err()
}

// Shutdown seals every admitted update and stops the server.
// Waiters on commitments that will never be sealed are released.
func (v *Verifier) Shutdown() {
	v.sched.Stop()
	v.log.Close()
	v.logger.Infow("Verifier stopped", "commitments", v.log.Len())
}
