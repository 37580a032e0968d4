/*
Package protocol defines the data model shared by bverify servers
and clients: update requests and their canonical signed encodings,
signed commitments, proofs, and the error codes a server returns.

The engine itself lives in the subpackages.

Directory

The directory subpackage maps every ADS identifier to its current value
and to the set of public keys that must sign changes to it, and validates
update requests against that set.

Commitment Log

The commitlog subpackage keeps the append-only, hash-chained sequence of
signed commitments, one per sealed batch, and the trie snapshot each one
commits to.

Batch Scheduler

The batch subpackage admits validated updates into the open batch and
seals closed batches into new commitments, one at a time, in order.

Verifier

The verifier subpackage ties the pieces together into the server-side
engine: it admits updates and builds full and incremental proofs against
sealed commitments.

Client

The client subpackage checks proofs and commitment chains without
trusting the server.

Error

This module defines the constants representing the types
of errors that a bverify server may return to a client.
*/
package protocol
