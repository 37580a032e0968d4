// Package commitmentkv persists the commitments of a bverify server
// in a kv.DB, so that they can be audited independently of the
// running server.
package commitmentkv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/bverify/bverify-go/protocol"
	"github.com/bverify/bverify-go/storage/kv"
)

// CommitmentIdentifier is the domain separation for commitments.
const CommitmentIdentifier = 'C'

var (
	// ErrChainExists indicates a database that already holds
	// the commitments of another chain.
	ErrChainExists = errors.New("[commitmentkv] Database already holds commitments")
	// ErrMissingCommitment indicates a gap in the stored sequence.
	ErrMissingCommitment = errors.New("[commitmentkv] Stored commitments are not contiguous")
)

// StoreCommitment stores c into the db under the key which is the
// combination of the CommitmentIdentifier and c's sequence number.
func StoreCommitment(db kv.DB, c *protocol.Commitment) error {
	buf, err := cbor.Marshal(c)
	if err != nil {
		return err
	}
	wb := db.NewBatch()
	wb.Put(commitmentKey(c.Seq), buf)
	return db.Write(wb)
}

// LoadCommitment loads the commitment with sequence number seq.
func LoadCommitment(db kv.DB, seq uint64) (*protocol.Commitment, error) {
	buf, err := db.Get(commitmentKey(seq))
	if err != nil {
		return nil, err
	}
	return decode(buf)
}

// LoadCommitments loads every stored commitment, in order.
// The stored sequence numbers must start at 0 and be contiguous.
func LoadCommitments(db kv.DB) ([]*protocol.Commitment, error) {
	iter := db.NewIterator(kv.PrefixRange([]byte{CommitmentIdentifier}))
	defer iter.Release()
	var cs []*protocol.Commitment
	for iter.Next() {
		c, err := decode(iter.Value())
		if err != nil {
			return nil, err
		}
		if c.Seq != uint64(len(cs)) {
			return nil, fmt.Errorf("%w: found %d, expected %d", ErrMissingCommitment, c.Seq, len(cs))
		}
		cs = append(cs, c)
	}
	return cs, iter.Error()
}

func decode(buf []byte) (*protocol.Commitment, error) {
	c := new(protocol.Commitment)
	if err := cbor.Unmarshal(buf, c); err != nil {
		return nil, err
	}
	return c, nil
}

// keys are big endian so that iteration follows the sequence
func commitmentKey(seq uint64) []byte {
	key := make([]byte, 1+8)
	key[0] = CommitmentIdentifier
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

// A Sink stores every commitment a server publishes.
type Sink struct {
	db kv.DB
}

// NewSink returns a Sink writing to db. A server starts a new chain
// on every start, so db must not hold commitments yet.
func NewSink(db kv.DB) (*Sink, error) {
	iter := db.NewIterator(kv.PrefixRange([]byte{CommitmentIdentifier}))
	defer iter.Release()
	if iter.First() {
		return nil, ErrChainExists
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return &Sink{db: db}, nil
}

// Publish implements commitlog.Sink.
func (s *Sink) Publish(c *protocol.Commitment) error {
	return StoreCommitment(s.db, c)
}
