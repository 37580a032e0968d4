package application

import (
	"fmt"
	"os"

	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/utils"
)

// AppConfig provides an abstraction of the
// underlying encoding format for the configs.
type AppConfig interface {
	Load(file, encoding string) error
	Save() error
	GetPath() string
}

// CommonConfig is the generic type used to specify the configuration of
// any kind of bverify application-level executable. It contains the
// file path, the logger configuration, and the config loader.
type CommonConfig struct {
	Path     string        `toml:"-"`
	Logger   *LoggerConfig `toml:"logger"`
	Encoding string        `toml:"-"`
	loader   ConfigLoader
}

// NewCommonConfig initializes an application's config file path,
// its loader for the given encoding, and the logger configuration.
// Note: This constructor must be called in each Load() method
// implementation of an AppConfig.
func NewCommonConfig(file, encoding string, logger *LoggerConfig) *CommonConfig {
	return &CommonConfig{
		Path:     file,
		Logger:   logger,
		Encoding: encoding,
		loader:   newConfigLoader(encoding),
	}
}

// GetLoader returns the config's loader.
func (conf *CommonConfig) GetLoader() ConfigLoader {
	return conf.loader
}

// ResolveLoggerPath makes the logger's output path
// relative to the config file.
func (conf *CommonConfig) ResolveLoggerPath() {
	if conf.Logger != nil && conf.Logger.Path != "" {
		conf.Logger.Path = utils.ResolvePath(conf.Logger.Path, conf.Path)
	}
}

// LoadSigningKey loads a private signing key at the given path
// relative to the given config file.
func LoadSigningKey(path, file string) (sign.PrivateKey, error) {
	signPath := utils.ResolvePath(path, file)
	signKey, err := os.ReadFile(signPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read signing key: %w", err)
	}
	if len(signKey) != sign.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes (got %d)", sign.PrivateKeySize, len(signKey))
	}
	return signKey, nil
}

// LoadSigningPubKey loads a public signing key at the given path
// relative to the given config file.
// If there is any parsing error or the key is malformed,
// LoadSigningPubKey() returns an error with a nil key.
func LoadSigningPubKey(path, file string) (sign.PublicKey, error) {
	signPath := utils.ResolvePath(path, file)
	signPubKey, err := os.ReadFile(signPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read signing public key: %w", err)
	}
	if len(signPubKey) != sign.PublicKeySize {
		return nil, fmt.Errorf("signing public key must be %d bytes (got %d)", sign.PublicKeySize, len(signPubKey))
	}
	return signPubKey, nil
}
