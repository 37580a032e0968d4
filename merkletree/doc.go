/*
Package merkletree implements the authenticated dictionary that backs
a bverify server: a Merkle prefix tree over fixed size keys, with
persistent snapshots and compact proofs.

Merkle Prefix Tree

The tree is a binary tree indexed by the bits of the key, most
significant bit first. The root is always an interior node. A key is
stored in a leaf at the shallowest depth that distinguishes it from
every other key in the tree; the other branches along the way end in
empty leaves. The shape of the tree, and so its root hash, depends
only on the set of key-value pairs it holds, never on the order in
which they were inserted.

Node hashes are domain separated:
	empty leaf:    H('E')
	user leaf:     H('L' || key || value)
	interior node: H('I' || left || right)
where H is the hasher registered as bverify.BVerifyHasher.

Snapshots

Updates copy the path from the root to the modified leaf, so a
snapshot taken with Snapshot shares all unmodified subtrees with the
working tree and with every other snapshot. A snapshot is frozen: it
can be read concurrently with further updates to the working tree,
but it can't be modified.

Proofs

Get returns an AuthenticationPath, the list of sibling hashes from the
root down to the leaf reached by the lookup key, together with that
leaf. It proves either that a key maps to a value (proof of inclusion)
or that the key is absent, when the path ends in an empty leaf or in
a leaf holding a different key with the same prefix (proof of
absence).

Given two snapshots, PathUpdate computes the minimal set of changes to
turn a key's authentication path in the older snapshot into its path
in the newer one. Clients holding a path can apply a sequence of such
updates instead of downloading a full path for every commitment.
*/
package merkletree
