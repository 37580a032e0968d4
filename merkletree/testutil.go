package merkletree

import (
	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/utils"
)

// testKey returns a deterministic key derived from i.
func testKey(i int) []byte {
	return crypto.Digest([]byte("key"), []byte{byte(i >> 8), byte(i)})
}

// testValue returns a deterministic value derived from s.
func testValue(s string) []byte {
	return crypto.Digest([]byte("value"), []byte(s))
}

// keyWithPrefix returns a key whose first bits are given by prefix,
// followed by zeros, with its last byte set to tail.
func keyWithPrefix(prefix string, tail byte) []byte {
	bits := make([]bool, len(prefix))
	for i, c := range prefix {
		bits[i] = c == '1'
	}
	k := make([]byte, KeySize)
	copy(k, utils.ToBytes(bits))
	k[KeySize-1] |= tail
	return k
}
