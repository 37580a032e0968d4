// Package commitlog implements the append-only log of signed
// commitments a bverify server publishes, one per sealed batch,
// together with the trie snapshots they commit to.
//
// Commitments are hash chained and never removed. Snapshots are kept
// in memory for a bounded number of recent commitments.
package commitlog

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/merkletree"
	"github.com/bverify/bverify-go/protocol"
)

var (
	// ErrDuplicateSeq indicates an append with a sequence number
	// other than the next one. The log is failed when this happens.
	ErrDuplicateSeq = errors.New("[commitlog] Sequence number is not the next one")
	// ErrNotSealed indicates a request for a commitment
	// that has not been appended yet.
	ErrNotSealed = errors.New("[commitlog] Sequence number is not sealed yet")
	// ErrSnapshotEvicted indicates a request for a snapshot
	// that is no longer kept in memory.
	ErrSnapshotEvicted = errors.New("[commitlog] Snapshot is no longer retained")
	// ErrNotSnapshot indicates an append of a tree that
	// is not a frozen snapshot.
	ErrNotSnapshot = errors.New("[commitlog] Tree is not a snapshot")
	// ErrClosed is returned to waiters once the log is closed.
	ErrClosed = errors.New("[commitlog] Log is closed")
)

// A Sink receives every commitment after it is appended, in order.
// Publishing errors are logged and never stop the log.
type Sink interface {
	Publish(c *protocol.Commitment) error
}

// A Log holds the sequence of commitments and the recent snapshots.
// Commitment n commits to the root of snapshot n.
//
// Append is called by a single writer; all other methods
// may be called concurrently.
type Log struct {
	signKey sign.PrivateKey
	logger  *zap.SugaredLogger
	sinks   []Sink

	mu            sync.RWMutex
	commitments   []*protocol.Commitment
	snapshots     map[uint64]*merkletree.MerkleTree
	loadedSeqs    []uint64 // slice of sequence numbers in snapshots
	historyLength uint64
	sealed        chan struct{} // closed and replaced on every append
	err           error
}

// New constructs a Log whose commitment 0 commits to initial,
// which must be a snapshot.
// historyLength indicates the number of snapshots the log keeps in
// memory; 0 keeps all of them. The latest snapshot is always kept.
func New(signKey sign.PrivateKey, initial *merkletree.MerkleTree, historyLength uint64,
	logger *zap.SugaredLogger, sinks ...Sink) (*Log, error) {
	if initial == nil || !initial.Frozen() {
		return nil, ErrNotSnapshot
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	prevHash, err := crypto.MakeRand()
	if err != nil {
		return nil, err
	}
	l := &Log{
		signKey:       signKey,
		logger:        logger,
		sinks:         sinks,
		snapshots:     make(map[uint64]*merkletree.MerkleTree),
		historyLength: historyLength,
		sealed:        make(chan struct{}),
	}
	c := protocol.NewCommitment(signKey, 0, initial.RootHash(), prevHash)
	l.appendInternal(c, initial)
	l.publish(c)
	return l, nil
}

// Append signs a commitment to snap with sequence number seq,
// chains it to the latest commitment and appends it.
// seq must be exactly Len(); any other value fails the log
// and returns ErrDuplicateSeq.
func (l *Log) Append(seq uint64, snap *merkletree.MerkleTree) (*protocol.Commitment, error) {
	if snap == nil || !snap.Frozen() {
		return nil, ErrNotSnapshot
	}
	l.mu.Lock()
	if l.err != nil {
		err := l.err
		l.mu.Unlock()
		return nil, err
	}
	next := uint64(len(l.commitments))
	if seq != next {
		l.failLocked(ErrDuplicateSeq)
		l.mu.Unlock()
		l.logger.Errorw("Refusing to append commitment",
			"seq", seq, "expected", next)
		return nil, ErrDuplicateSeq
	}
	prev := l.commitments[next-1]
	c := protocol.NewCommitment(l.signKey, seq, snap.RootHash(), prev.Hash())
	l.appendInternal(c, snap)
	l.mu.Unlock()

	l.publish(c)
	return c, nil
}

// appendInternal stores c and snap and wakes up the waiters.
// It must be called with the lock held, or before the log is shared.
func (l *Log) appendInternal(c *protocol.Commitment, snap *merkletree.MerkleTree) {
	l.commitments = append(l.commitments, c)
	if l.historyLength > 0 && uint64(len(l.loadedSeqs)) == l.historyLength {
		// evict the oldest half of the snapshots,
		// always keeping at least one
		n := (l.historyLength + 1) / 2
		for _, seq := range l.loadedSeqs[:n] {
			delete(l.snapshots, seq)
		}
		l.loadedSeqs = append(l.loadedSeqs[:0], l.loadedSeqs[n:]...)
	}
	l.snapshots[c.Seq] = snap
	l.loadedSeqs = append(l.loadedSeqs, c.Seq)
	close(l.sealed)
	l.sealed = make(chan struct{})
}

func (l *Log) publish(c *protocol.Commitment) {
	for _, s := range l.sinks {
		if err := s.Publish(c); err != nil {
			l.logger.Errorw("Cannot publish commitment",
				"seq", c.Seq, "error", err)
		}
	}
}

// Fail marks the log as failed with err: later appends are refused
// and waiters for unsealed sequence numbers get err.
// Commitments already appended stay readable.
func (l *Log) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failLocked(err)
}

// Close wakes up all waiters with ErrClosed, unless the log
// has already failed.
func (l *Log) Close() {
	l.Fail(ErrClosed)
}

func (l *Log) failLocked(err error) {
	if l.err != nil {
		return
	}
	l.err = err
	close(l.sealed)
	l.sealed = make(chan struct{})
}

// Err returns the error the log failed with, if any.
func (l *Log) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Len returns the number of commitments in the log.
func (l *Log) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.commitments))
}

// Latest returns the latest commitment and its snapshot.
func (l *Log) Latest() (*protocol.Commitment, *merkletree.MerkleTree) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c := l.commitments[len(l.commitments)-1]
	return c, l.snapshots[c.Seq]
}

// Get returns the commitment with sequence number seq.
func (l *Log) Get(seq uint64) (*protocol.Commitment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq >= uint64(len(l.commitments)) {
		return nil, ErrNotSealed
	}
	return l.commitments[seq], nil
}

// Snapshot returns the trie snapshot committed to by commitment seq.
func (l *Log) Snapshot(seq uint64) (*merkletree.MerkleTree, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq >= uint64(len(l.commitments)) {
		return nil, ErrNotSealed
	}
	snap, ok := l.snapshots[seq]
	if !ok {
		return nil, ErrSnapshotEvicted
	}
	return snap, nil
}

// Commitments returns all the commitments in order.
func (l *Log) Commitments() []*protocol.Commitment {
	return l.Range(0)
}

// Range returns the commitments with sequence numbers from and up.
func (l *Log) Range(from uint64) []*protocol.Commitment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from >= uint64(len(l.commitments)) {
		return nil
	}
	return append([]*protocol.Commitment{}, l.commitments[from:]...)
}

// Roots returns the root hashes of all the commitments,
// indexed by sequence number.
func (l *Log) Roots() [][]byte {
	return protocol.Roots(l.Commitments())
}

// WaitFor blocks until commitment seq is appended and returns it.
// It returns early with the context's error when ctx is done,
// or with the log's error when the log fails or is closed first.
func (l *Log) WaitFor(ctx context.Context, seq uint64) (*protocol.Commitment, error) {
	for {
		l.mu.RLock()
		if seq < uint64(len(l.commitments)) {
			c := l.commitments[seq]
			l.mu.RUnlock()
			return c, nil
		}
		err, ch := l.err, l.sealed
		l.mu.RUnlock()
		if err != nil {
			return nil, err
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
