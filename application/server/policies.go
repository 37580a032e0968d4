package server

import (
	"time"

	"github.com/bverify/bverify-go/application"
	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/protocol/batch"
	"github.com/bverify/bverify-go/protocol/directory"
	"github.com/bverify/bverify-go/protocol/verifier"
)

// A Duration is a time.Duration written as a string like "500ms"
// in config files.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Policies contains a server's batching and proof serving policies,
// the path to its signing key, and the paths to the data it starts
// from and persists commitments to.
type Policies struct {
	SignKeyPath string `toml:"sign_key_path"`
	// BatchSize is the number of admitted requests that closes a batch.
	BatchSize int `toml:"batch_size"`
	// BatchInterval closes a non-empty batch after this long,
	// whatever its size. Zero disables timed batches.
	BatchInterval     Duration `toml:"batch_interval,omitempty"`
	MaxPendingBatches int      `toml:"max_pending_batches,omitempty"`
	ProofCacheSize    int      `toml:"proof_cache_size,omitempty"`
	RequireSignatures bool     `toml:"require_signatures"`
	// DuplicatePolicy is "last-write-wins" (default) or "reject".
	DuplicatePolicy string `toml:"duplicate_policy,omitempty"`
	// StartingDataPath is a JSON file with the initial ADSes.
	// A server without one starts with an empty trie.
	StartingDataPath string `toml:"starting_data_path,omitempty"`
	// CommitmentDBPath is a LevelDB directory every commitment is
	// written to. It must not hold commitments from an earlier run.
	CommitmentDBPath string `toml:"commitment_db_path,omitempty"`
	// WireEncoding is "json" (default) or "cbor".
	WireEncoding string `toml:"wire_encoding,omitempty"`

	signKey sign.PrivateKey
	entries []directory.Entry
}

// NewPolicies initializes a new Policies struct.
func NewPolicies(signKeyPath string, batchSize int, batchInterval time.Duration,
	requireSignatures bool, signKey sign.PrivateKey) *Policies {
	return &Policies{
		SignKeyPath:       signKeyPath,
		BatchSize:         batchSize,
		BatchInterval:     Duration(batchInterval),
		RequireSignatures: requireSignatures,
		signKey:           signKey,
	}
}

// verifierConfig checks the policies and turns them
// into the configuration of a verifier.
func (p *Policies) verifierConfig(historyLength uint64) (verifier.Config, error) {
	dup, err := batch.ParseDuplicatePolicy(p.DuplicatePolicy)
	if err != nil {
		return verifier.Config{}, err
	}
	return verifier.Config{
		Batch: batch.Config{
			BatchSize:         p.BatchSize,
			BatchInterval:     time.Duration(p.BatchInterval),
			MaxPendingBatches: p.MaxPendingBatches,
			DuplicatePolicy:   dup,
		},
		HistoryLength:     historyLength,
		ProofCacheSize:    p.ProofCacheSize,
		RequireSignatures: p.RequireSignatures,
	}, nil
}

func (p *Policies) wireEncoding() (application.WireEncoding, error) {
	return application.NewWireEncoding(p.WireEncoding)
}
