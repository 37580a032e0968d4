package commitlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/merkletree"
	"github.com/bverify/bverify-go/protocol"
)

var staticSigningKey = crypto.NewStaticTestSigningKey()

type recordingSink struct {
	mu   sync.Mutex
	seqs []uint64
	err  error
}

func (s *recordingSink) Publish(c *protocol.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs = append(s.seqs, c.Seq)
	return s.err
}

// newTestLog returns a log and the working tree its
// initial snapshot was taken from.
func newTestLog(t *testing.T, historyLength uint64, sinks ...Sink) (*Log, *merkletree.MerkleTree) {
	tree := merkletree.NewMerkleTree()
	_, err := tree.Set(crypto.StaticTestADSID(0), crypto.StaticTestValue("v0"))
	require.NoError(t, err)
	l, err := New(staticSigningKey, tree.Snapshot(), historyLength, nil, sinks...)
	require.NoError(t, err)
	return l, tree
}

func appendBatch(t *testing.T, l *Log, tree *merkletree.MerkleTree, value string) *protocol.Commitment {
	_, err := tree.Set(crypto.StaticTestADSID(0), crypto.StaticTestValue(value))
	require.NoError(t, err)
	c, err := l.Append(l.Len(), tree.Snapshot())
	require.NoError(t, err)
	return c
}

func TestHashChain(t *testing.T) {
	pk, ok := staticSigningKey.Public()
	require.True(t, ok)
	l, tree := newTestLog(t, 0)
	for i := 1; i <= 5; i++ {
		c := appendBatch(t, l, tree, string(rune('a'+i)))
		require.Equal(t, uint64(i), c.Seq)
	}
	require.Equal(t, uint64(6), l.Len())

	cs := l.Commitments()
	require.Len(t, cs, 6)
	for i, c := range cs {
		require.True(t, c.VerifySignature(pk))
		if i > 0 {
			require.True(t, c.VerifyHashChain(cs[i-1]))
		}
		snap, err := l.Snapshot(uint64(i))
		require.NoError(t, err)
		require.Equal(t, snap.RootHash(), c.RootHash)
	}
	require.Equal(t, protocol.Roots(cs), l.Roots())
	require.Len(t, l.Range(4), 2)
	require.Nil(t, l.Range(6))

	latest, snap := l.Latest()
	require.Equal(t, cs[5], latest)
	require.Equal(t, latest.RootHash, snap.RootHash())

	_, err := l.Get(6)
	require.Equal(t, ErrNotSealed, err)
	_, err = l.Snapshot(6)
	require.Equal(t, ErrNotSealed, err)
}

func TestDuplicateSeqFailsLog(t *testing.T) {
	l, tree := newTestLog(t, 0)
	appendBatch(t, l, tree, "v1")

	_, err := l.Append(1, tree.Snapshot())
	require.Equal(t, ErrDuplicateSeq, err)
	require.Equal(t, ErrDuplicateSeq, l.Err())

	// nothing is appended after the failure
	_, err = l.Append(2, tree.Snapshot())
	require.Equal(t, ErrDuplicateSeq, err)
	require.Equal(t, uint64(2), l.Len())

	_, err = l.WaitFor(context.Background(), 2)
	require.Equal(t, ErrDuplicateSeq, err)
	// already sealed commitments are still served
	c, err := l.WaitFor(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.Seq)
}

func TestAppendRequiresSnapshot(t *testing.T) {
	l, tree := newTestLog(t, 0)
	_, err := l.Append(1, tree)
	require.Equal(t, ErrNotSnapshot, err)
	require.NoError(t, l.Err())

	_, err = New(staticSigningKey, tree, 0, nil)
	require.Equal(t, ErrNotSnapshot, err)
}

func TestSnapshotEviction(t *testing.T) {
	l, tree := newTestLog(t, 4)
	for i := 1; i <= 9; i++ {
		appendBatch(t, l, tree, string(rune('a'+i)))
	}
	// the latest snapshot is always kept
	_, err := l.Snapshot(9)
	require.NoError(t, err)
	_, err = l.Snapshot(0)
	require.Equal(t, ErrSnapshotEvicted, err)

	kept := 0
	for seq := uint64(0); seq < l.Len(); seq++ {
		if _, err := l.Snapshot(seq); err == nil {
			kept++
		}
		// commitments are never evicted
		_, err := l.Get(seq)
		require.NoError(t, err)
	}
	require.True(t, kept >= 1 && kept <= 4, "kept %d snapshots", kept)
}

func TestWaitFor(t *testing.T) {
	l, tree := newTestLog(t, 0)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			c, err := l.WaitFor(context.Background(), 3)
			if err != nil {
				return err
			}
			if c.Seq != 3 {
				return errors.New("unexpected commitment")
			}
			return nil
		})
	}
	for i := 1; i <= 3; i++ {
		time.Sleep(time.Millisecond)
		appendBatch(t, l, tree, string(rune('a'+i)))
	}
	require.NoError(t, g.Wait())
}

func TestWaitForContext(t *testing.T) {
	l, _ := newTestLog(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.WaitFor(ctx, 1)
	require.Equal(t, context.DeadlineExceeded, err)
}

func TestCloseWakesWaiters(t *testing.T) {
	l, _ := newTestLog(t, 0)
	done := make(chan error, 1)
	go func() {
		_, err := l.WaitFor(context.Background(), 1)
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)
	l.Close()
	select {
	case err := <-done:
		require.Equal(t, ErrClosed, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken up")
	}
	// the first failure sticks
	l.Fail(errors.New("later"))
	require.Equal(t, ErrClosed, l.Err())
}

func TestSinks(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("ledger unavailable")}
	l, tree := newTestLog(t, 0, failing, ok)
	appendBatch(t, l, tree, "v1")
	appendBatch(t, l, tree, "v2")

	require.Equal(t, []uint64{0, 1, 2}, ok.seqs)
	// failing sinks don't stop the log
	require.Equal(t, []uint64{0, 1, 2}, failing.seqs)
	require.NoError(t, l.Err())
}
