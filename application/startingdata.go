package application

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/bverify/bverify-go/crypto"
	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/protocol/directory"
	"github.com/bverify/bverify-go/utils"
)

// LoadStartingData reads the ADSes a server starts with from the
// JSON file at path, relative to the config file.
func LoadStartingData(path, file string) ([]directory.Entry, error) {
	buf, err := os.ReadFile(utils.ResolvePath(path, file))
	if err != nil {
		return nil, fmt.Errorf("cannot read starting data: %w", err)
	}
	var entries []directory.Entry
	if err := json.Unmarshal(buf, &entries); err != nil {
		return nil, fmt.Errorf("cannot parse starting data: %w", err)
	}
	return entries, nil
}

// SaveStartingData writes entries to a new JSON file at path.
func SaveStartingData(path string, entries []directory.Entry) error {
	buf, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFile(path, buf, 0644)
}

// MockStartingData returns n ADSes with random identifiers, each
// owned by a fresh key. The owners' private keys are indexed like
// the entries.
func MockStartingData(n int) ([]directory.Entry, []sign.PrivateKey, error) {
	entries := make([]directory.Entry, n)
	owners := make([]sign.PrivateKey, n)
	for i := range entries {
		sk, err := sign.GenerateKey(nil)
		if err != nil {
			return nil, nil, err
		}
		pk, _ := sk.Public()
		id := uuid.New()
		adsID := crypto.Digest(id[:])
		entries[i] = directory.Entry{
			ADSID: adsID,
			Value: crypto.Digest([]byte("initial value"), adsID),
			Keys:  []sign.PublicKey{pk},
		}
		owners[i] = sk
	}
	return entries, owners, nil
}
