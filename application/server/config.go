package server

import (
	"github.com/bverify/bverify-go/application"
	"github.com/bverify/bverify-go/utils"
)

// A Config contains configuration values
// which are read at initialization time from
// a TOML format configuration file.
type Config struct {
	*application.CommonConfig
	// LoadedHistoryLength is the maximum number of
	// snapshots kept in memory. 0 keeps all of them.
	LoadedHistoryLength uint64 `toml:"loaded_history_length"`
	// Policies contains the server's policies configuration.
	Policies *Policies `toml:"policies"`
	// Addresses contains the server's connections configuration.
	Addresses []*Address `toml:"addresses"`
}

var _ application.AppConfig = (*Config)(nil)

// NewConfig initializes a new server configuration at the given file
// path, with the given config encoding, server addresses, logger
// configuration, loaded history length and server policies.
func NewConfig(file, encoding string, addrs []*Address,
	logConfig *application.LoggerConfig, loadedHistLen uint64,
	policies *Policies) *Config {
	var conf = Config{
		CommonConfig:        application.NewCommonConfig(file, encoding, logConfig),
		LoadedHistoryLength: loadedHistLen,
		Addresses:           addrs,
		Policies:            policies,
	}

	return &conf
}

// Load initializes a server's configuration from the given file
// using the given encoding. It reads the signing key and the starting
// data, and makes every path in the config relative to the file.
func (conf *Config) Load(file, encoding string) error {
	conf.CommonConfig = application.NewCommonConfig(file, encoding, nil)
	if err := conf.GetLoader().Decode(conf); err != nil {
		return err
	}
	if conf.Policies == nil {
		conf.Policies = new(Policies)
	}

	// load signing key
	signKey, err := application.LoadSigningKey(conf.Policies.SignKeyPath, file)
	if err != nil {
		return err
	}
	conf.Policies.signKey = signKey

	if conf.Policies.StartingDataPath != "" {
		entries, err := application.LoadStartingData(conf.Policies.StartingDataPath, file)
		if err != nil {
			return err
		}
		conf.Policies.entries = entries
	}
	if conf.Policies.CommitmentDBPath != "" {
		conf.Policies.CommitmentDBPath = utils.ResolvePath(conf.Policies.CommitmentDBPath, file)
	}

	// also update path for TLS cert files
	for _, addr := range conf.Addresses {
		if addr.TLSCertPath != "" {
			addr.TLSCertPath = utils.ResolvePath(addr.TLSCertPath, file)
		}
		if addr.TLSKeyPath != "" {
			addr.TLSKeyPath = utils.ResolvePath(addr.TLSKeyPath, file)
		}
	}
	conf.ResolveLoggerPath()

	return nil
}

// Save writes a server's configuration.
func (conf *Config) Save() error {
	return conf.GetLoader().Encode(conf)
}

// GetPath returns the server's configuration file path.
func (conf *Config) GetPath() string {
	return conf.Path
}
