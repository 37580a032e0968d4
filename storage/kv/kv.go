// Package kv contains a generic interface for ordered key-value
// databases with support for batch writes. All operations are safe
// for concurrent use, atomic and synchronously persistent.
package kv

import "errors"

// DB is an abstract ordered key-value store. After Put(k, v) has
// returned, Get(k) must return v until the next Put(k, ?), even
// across a restart of the process. Write(...) performs a series of
// Put-s atomically.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	NewBatch() Batch
	Write(Batch) error
	NewIterator(*Range) Iterator
	Close() error

	ErrNotFound() error
}

// A Batch contains a sequence of Put-s waiting to be Write-n to a DB.
type Batch interface {
	Reset()
	Put(key, value []byte)
	Delete(key []byte)
}

// A Range is the key range [Start, Limit). A nil Start is the
// beginning of the DB and a nil Limit its end.
type Range struct {
	Start []byte
	Limit []byte
}

// PrefixRange returns the range of keys that start with prefix.
func PrefixRange(prefix []byte) *Range {
	var limit []byte
	for i := len(prefix) - 1; i >= 0; i-- {
		if c := prefix[i]; c < 0xff {
			limit = make([]byte, i+1)
			copy(limit, prefix)
			limit[i] = c + 1
			break
		}
	}
	return &Range{Start: prefix, Limit: limit}
}

// Iterator is an abstract pointer to a DB entry. It must be valid to call
// Error() after release. The boolean return values indicate whether the
// requested entry exists.
type Iterator interface {
	Key() []byte
	Value() []byte
	First() bool
	Next() bool
	Last() bool
	Release()
	Error() error
}

// ErrBadBufferLength indicates a stored entry of the wrong size.
var ErrBadBufferLength = errors.New("[kv] Bad KV buffer's length")
