package directory

import (
	"fmt"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/crypto/sign"
)

// NewTestEntries returns n initial entries for _tests_. ADS i is
// crypto.StaticTestADSID(i) with value StaticTestValue("v0-<i>"),
// and is owned by the static owner key i alone.
// The returned private keys are indexed like the entries.
func NewTestEntries(n int) ([]Entry, []sign.PrivateKey) {
	entries := make([]Entry, n)
	owners := make([]sign.PrivateKey, n)
	for i := range entries {
		owners[i] = crypto.NewStaticTestOwnerKey(i)
		pk, ok := owners[i].Public()
		if !ok {
			panic("bad static owner key")
		}
		entries[i] = Entry{
			ADSID: crypto.StaticTestADSID(i),
			Value: TestInitialValue(i),
			Keys:  []sign.PublicKey{pk},
		}
	}
	return entries, owners
}

// TestInitialValue returns the value of ADS i in NewTestEntries.
func TestInitialValue(i int) []byte {
	return crypto.StaticTestValue(fmt.Sprintf("v0-%d", i))
}
