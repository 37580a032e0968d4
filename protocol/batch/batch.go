// Package batch implements the scheduler that groups admitted updates
// into batches and seals every closed batch into a new commitment.
//
// There is always exactly one open batch. Validated requests are
// appended to it under a single lock. When the batch is full, when the
// batch interval elapses or on Flush, the batch is closed: the
// authorization changes it carries are installed in the directory, the
// next batch opens, and the closed batch is queued for the sealer.
// A single sealer goroutine applies closed batches to the working
// trie in order, snapshots it, checks the result and appends the
// commitment to the log.
package batch

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bverify/bverify-go/merkletree"
	"github.com/bverify/bverify-go/protocol"
	"github.com/bverify/bverify-go/protocol/commitlog"
	"github.com/bverify/bverify-go/protocol/directory"
	"github.com/bverify/bverify-go/utils"
)

var (
	// ErrInvalidConfig indicates a scheduler configuration
	// that can't be used.
	ErrInvalidConfig = errors.New("[batch] Invalid configuration")
	// ErrRootMismatch indicates that a sealed snapshot does not
	// prove the values the batch wrote.
	ErrRootMismatch = errors.New("[batch] Snapshot does not match the applied updates")
	// ErrSealPanicked indicates that applying a batch panicked.
	ErrSealPanicked = errors.New("[batch] Sealing panicked")
)

// DuplicatePolicy decides what happens to a second update of the
// same trie entry within one open batch.
type DuplicatePolicy int

const (
	// LastWriteWins admits every update; when the batch is sealed
	// the last admitted value of an entry is the one committed.
	LastWriteWins DuplicatePolicy = iota
	// RejectDuplicates rejects an update with ReqDuplicateUpdate
	// if the open batch already updates one of its entries.
	RejectDuplicates
)

// ParseDuplicatePolicy parses the configuration name of a policy:
// "last-write-wins" or "reject". The empty string is LastWriteWins.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(s) {
	case "", "last-write-wins":
		return LastWriteWins, nil
	case "reject":
		return RejectDuplicates, nil
	}
	return LastWriteWins, fmt.Errorf("%w: unknown duplicate policy %q", ErrInvalidConfig, s)
}

func (p DuplicatePolicy) String() string {
	if p == RejectDuplicates {
		return "reject"
	}
	return "last-write-wins"
}

// State is the state of a Scheduler.
type State int32

// The states of a Scheduler. Failed and Stopped are final.
const (
	Open State = iota
	Sealing
	Failed
	Stopped
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Sealing:
		return "sealing"
	case Failed:
		return "failed"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Config configures a Scheduler.
type Config struct {
	// BatchSize is the number of admitted requests that closes a batch.
	BatchSize int
	// BatchInterval, if positive, closes a non-empty open batch
	// at this interval regardless of its size.
	BatchInterval time.Duration
	// MaxPendingBatches is the number of closed batches that may wait
	// for the sealer. Admission blocks when the queue is full.
	MaxPendingBatches int
	// DuplicatePolicy decides how repeated updates
	// within a batch are handled.
	DuplicatePolicy DuplicatePolicy
}

type write struct {
	key   []byte
	value []byte
}

type closedBatch struct {
	number   uint64
	requests int
	writes   []write
}

// A Scheduler owns the working trie. Admission methods may be called
// concurrently from many goroutines.
type Scheduler struct {
	cfg    Config
	dir    *directory.Directory
	log    *commitlog.Log
	logger *zap.SugaredLogger

	mu          sync.Mutex
	open        uint64
	requests    int
	writes      []write
	written     map[string]bool
	authChanges []*protocol.AuthorizationUpdateRequest
	stopped     bool

	state   int32 // atomic State of the sealer
	failure atomic.Value

	// owned by the sealer goroutine
	tree   *merkletree.MerkleTree
	latest *merkletree.MerkleTree

	queue     chan *closedBatch
	done      chan struct{}
	stopTimer chan struct{}
	timerDone chan struct{}
}

// New starts a Scheduler for the working trie tree. The latest
// snapshot in log must be the latest snapshot of tree, and the open
// batch of dir must be the next sequence number of log.
func New(cfg Config, dir *directory.Directory, tree *merkletree.MerkleTree,
	log *commitlog.Log, logger *zap.SugaredLogger) (*Scheduler, error) {
	if cfg.BatchSize < 1 || cfg.MaxPendingBatches < 0 || cfg.BatchInterval < 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.MaxPendingBatches == 0 {
		cfg.MaxPendingBatches = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	latestCommitment, latest := log.Latest()
	if dir.Batch() != log.Len() || latest == nil ||
		!bytes.Equal(latest.RootHash(), tree.RootHash()) {
		return nil, fmt.Errorf("%w: trie, directory and log are out of sync", ErrInvalidConfig)
	}

	s := &Scheduler{
		cfg:       cfg,
		dir:       dir,
		log:       log,
		logger:    logger,
		open:      dir.Batch(),
		written:   make(map[string]bool),
		tree:      tree,
		latest:    latest,
		queue:     make(chan *closedBatch, cfg.MaxPendingBatches),
		done:      make(chan struct{}),
		stopTimer: make(chan struct{}),
		timerDone: make(chan struct{}),
	}
	go s.sealLoop()
	if cfg.BatchInterval > 0 {
		go s.timerLoop()
	} else {
		close(s.timerDone)
	}
	s.logger.Infow("Batch scheduler started",
		"openBatch", s.open,
		"latestRoot", utils.ShortHex(latestCommitment.RootHash),
		"batchSize", cfg.BatchSize,
		"duplicatePolicy", cfg.DuplicatePolicy.String())
	return s, nil
}

// PerformUpdate validates req against the authorization view of the
// open batch and admits it. It returns the batch the update will be
// committed in, and ReqSuccess, or the reason for the rejection.
func (s *Scheduler) PerformUpdate(req *protocol.UpdateRequest) (uint64, protocol.ErrorCode) {
	if code := s.refusal(); code != protocol.ReqSuccess {
		return 0, code
	}
	view := s.dir.View()
	if code := view.ValidateUpdate(req); code != protocol.ReqSuccess {
		return 0, code
	}
	keys, values := directory.ValueEntries(req)
	ws := make([]write, len(keys))
	for i := range keys {
		ws[i] = write{
			key:   append([]byte{}, keys[i]...),
			value: append([]byte{}, values[i]...),
		}
	}
	return s.admit(view.Batch(), ws, nil)
}

// PerformAuthorizationUpdate validates req against the authorization
// view of the open batch and admits it. The new keys are used to
// validate requests from the next batch on.
func (s *Scheduler) PerformAuthorizationUpdate(req *protocol.AuthorizationUpdateRequest) (uint64, protocol.ErrorCode) {
	if code := s.refusal(); code != protocol.ReqSuccess {
		return 0, code
	}
	view := s.dir.View()
	if code := view.ValidateAuthorizationUpdate(req); code != protocol.ReqSuccess {
		return 0, code
	}
	change := &protocol.AuthorizationUpdateRequest{
		ADSID: append([]byte{}, req.ADSID...),
		Keys:  protocol.SortKeys(req.Keys),
		Batch: req.Batch,
	}
	key, value := directory.AuthorizationEntry(change)
	return s.admit(view.Batch(), []write{{key: key, value: value}}, change)
}

// refusal returns the error code for requests arriving
// after the scheduler stopped or failed.
func (s *Scheduler) refusal() protocol.ErrorCode {
	switch s.State() {
	case Stopped:
		return protocol.ErrServerStopped
	case Failed:
		return protocol.ErrInternalServer
	}
	return protocol.ReqSuccess
}

func (s *Scheduler) admit(batch uint64, ws []write, auth *protocol.AuthorizationUpdateRequest) (uint64, protocol.ErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, protocol.ErrServerStopped
	}
	if s.State() == Failed {
		return 0, protocol.ErrInternalServer
	}
	// the batch may have closed since the request was validated
	if batch != s.open {
		return 0, protocol.ReqStaleBatchNumber
	}
	if s.cfg.DuplicatePolicy == RejectDuplicates {
		for _, w := range ws {
			if s.written[string(w.key)] {
				return 0, protocol.ReqDuplicateUpdate
			}
		}
	}

	for _, w := range ws {
		s.writes = append(s.writes, w)
		s.written[string(w.key)] = true
	}
	if auth != nil {
		s.authChanges = append(s.authChanges, auth)
	}
	s.requests++
	if s.requests >= s.cfg.BatchSize {
		s.closeLocked()
	}
	return batch, protocol.ReqSuccess
}

// closeLocked closes the open batch and queues it for sealing.
// It blocks while the queue is full.
func (s *Scheduler) closeLocked() {
	b := &closedBatch{
		number:   s.open,
		requests: s.requests,
		writes:   s.writes,
	}
	s.dir.Advance(s.authChanges)
	s.open++
	s.requests = 0
	s.writes = nil
	s.authChanges = nil
	s.written = make(map[string]bool)
	s.queue <- b
}

// Flush closes the open batch if it holds any request.
// It returns the number of the closed batch and whether
// a batch was closed.
func (s *Scheduler) Flush() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.requests == 0 || s.State() == Failed {
		return 0, false
	}
	n := s.open
	s.closeLocked()
	return n, true
}

// OpenBatch returns the number of the open batch.
func (s *Scheduler) OpenBatch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Pending returns the number of requests in the open batch.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// State returns the current state of the scheduler.
func (s *Scheduler) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Err returns the error that failed the scheduler, if any.
func (s *Scheduler) Err() error {
	if err, ok := s.failure.Load().(error); ok {
		return err
	}
	return nil
}

// Stop closes the open batch if it holds any request, waits until
// every closed batch is sealed, and stops the scheduler. Later
// admissions return ErrServerStopped. Stop may be called more
// than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	if s.requests > 0 && s.State() != Failed {
		s.closeLocked()
	}
	close(s.queue)
	s.mu.Unlock()

	close(s.stopTimer)
	<-s.timerDone
	<-s.done
	atomic.CompareAndSwapInt32(&s.state, int32(Open), int32(Stopped))
	s.logger.Infow("Batch scheduler stopped", "state", s.State().String())
}

func (s *Scheduler) timerLoop() {
	defer close(s.timerDone)
	ticker := time.NewTicker(s.cfg.BatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, ok := s.Flush(); ok {
				s.logger.Debugw("Batch interval elapsed", "batch", n)
			}
		case <-s.stopTimer:
			return
		}
	}
}

func (s *Scheduler) sealLoop() {
	defer close(s.done)
	for b := range s.queue {
		if s.State() == Failed {
			s.logger.Errorw("Dropping batch after failure", "batch", b.number)
			continue
		}
		atomic.StoreInt32(&s.state, int32(Sealing))
		if err := s.seal(b); err != nil {
			s.fail(b.number, err)
			continue
		}
		atomic.CompareAndSwapInt32(&s.state, int32(Sealing), int32(Open))
	}
}

func (s *Scheduler) fail(batch uint64, err error) {
	s.failure.Store(err)
	atomic.StoreInt32(&s.state, int32(Failed))
	s.log.Fail(err)
	s.logger.Errorw("Cannot seal batch, refusing further batches",
		"batch", batch, "error", err)
}

// seal applies b to the working trie and appends the commitment.
// On any error the working trie is restored to the latest sealed
// snapshot, so no part of b is ever committed.
func (s *Scheduler) seal(b *closedBatch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSealPanicked, r)
		}
		if err != nil {
			if rerr := s.tree.Rollback(s.latest); rerr != nil {
				s.logger.Errorw("Cannot restore the working trie", "error", rerr)
			}
		}
	}()

	final := make(map[string][]byte, len(b.writes))
	for _, w := range b.writes {
		if _, err := s.tree.Set(w.key, w.value); err != nil {
			return err
		}
		final[string(w.key)] = w.value
	}
	snap := s.tree.Snapshot()
	root := snap.RootHash()
	for key, value := range final {
		ap, err := snap.Get([]byte(key))
		if err != nil {
			return err
		}
		if !ap.Verify([]byte(key), value, root) {
			return ErrRootMismatch
		}
	}

	c, err := s.log.Append(b.number, snap)
	if err != nil {
		return err
	}
	s.latest = snap
	s.logger.Infow("Sealed batch",
		"batch", c.Seq,
		"requests", b.requests,
		"entries", len(final),
		"root", utils.ShortHex(c.RootHash))
	return nil
}
