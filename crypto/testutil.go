package crypto

import (
	"bytes"
	"fmt"

	"github.com/bverify/bverify-go/crypto/sign"
)

// NewStaticTestSigningKey returns a static private signing key for _tests_.
func NewStaticTestSigningKey() sign.PrivateKey {
	sk, err := sign.GenerateKey(bytes.NewReader(
		[]byte("deterministic tests need 256 bit")))
	if err != nil {
		panic(err)
	}
	return sk
}

// NewStaticTestOwnerKey returns the i-th static private key of an
// ADS owner for _tests_. The same i always yields the same key.
func NewStaticTestOwnerKey(i int) sign.PrivateKey {
	seed := Digest([]byte(fmt.Sprintf("owner key %d", i)))
	sk, err := sign.GenerateKey(bytes.NewReader(seed))
	if err != nil {
		panic(err)
	}
	return sk
}

// StaticTestADSID returns a deterministic ADS identifier for _tests_.
func StaticTestADSID(i int) []byte {
	return Digest([]byte(fmt.Sprintf("ads %d", i)))
}

// StaticTestValue returns a deterministic ADS value for _tests_.
func StaticTestValue(s string) []byte {
	return Digest([]byte(s))
}
