package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bverify/bverify-go/application"
	"github.com/bverify/bverify-go/application/server"
	"github.com/bverify/bverify-go/cli"
	"github.com/bverify/bverify-go/crypto/sign"
	"github.com/bverify/bverify-go/utils"
)

// initCmd represents the init command
var initCmd = cli.NewInitCommand("bverify server", initRunFunc)

func init() {
	RootCmd.AddCommand(initCmd)
	initCmd.Flags().StringP("dir", "d", ".", "Location of directory for storing generated files")
	initCmd.Flags().BoolP("cert", "c", false, "Generate self-signed ssl keys/cert with sane defaults")
	initCmd.Flags().IntP("mock", "m", 0, "Generate starting data with this many ADSes and their owner keys")
	initCmd.Flags().StringP("encoding", "e", "json", "Wire encoding of requests and responses (json or cbor)")
}

func initRunFunc(cmd *cobra.Command, args []string) error {
	dir := cmd.Flag("dir").Value.String()
	cert, _ := cmd.Flags().GetBool("cert")
	mock, _ := cmd.Flags().GetInt("mock")
	wire := cmd.Flag("encoding").Value.String()
	if _, err := application.NewWireEncoding(wire); err != nil {
		return err
	}

	if err := mkConfig(dir, wire, mock > 0); err != nil {
		return err
	}
	if err := mkSigningKey(dir); err != nil {
		return err
	}
	if mock > 0 {
		if err := mkStartingData(dir, mock); err != nil {
			return err
		}
	}
	if cert {
		if err := application.CreateTLSCert(dir); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Created configuration in", dir)
	return nil
}

func mkConfig(dir, wire string, withData bool) error {
	file := filepath.Join(dir, "config.toml")
	addrs := []*server.Address{
		{
			ServerAddress: &application.ServerAddress{
				Address: "unix:///tmp/bverify.sock",
			},
			AllowUpdates: true,
		},
		{
			ServerAddress: &application.ServerAddress{
				Address:     "tcp://0.0.0.0:3000",
				TLSCertPath: "server.pem",
				TLSKeyPath:  "server.key",
			},
		},
	}
	logger := &application.LoggerConfig{
		EnableStacktrace: true,
		Environment:      "development",
		Path:             "bverifyserver.log",
	}

	policies := server.NewPolicies("sign.priv", 1000, time.Second, true, nil)
	policies.MaxPendingBatches = 4
	policies.ProofCacheSize = 10000
	policies.CommitmentDBPath = "commitments"
	policies.WireEncoding = wire
	if withData {
		policies.StartingDataPath = "ads.json"
	}

	conf := server.NewConfig(file, "toml", addrs, logger, 1000, policies)
	return conf.Save()
}

func mkSigningKey(dir string) error {
	sk, err := sign.GenerateKey(nil)
	if err != nil {
		return err
	}
	pk, _ := sk.Public()
	if err := utils.WriteFile(filepath.Join(dir, "sign.priv"), sk, 0600); err != nil {
		return err
	}
	return utils.WriteFile(filepath.Join(dir, "sign.pub"), pk, 0600)
}

// mkStartingData writes n mock ADSes to ads.json, and the private key
// owning each of them to owners.json, in the same order.
func mkStartingData(dir string, n int) error {
	entries, owners, err := application.MockStartingData(n)
	if err != nil {
		return err
	}
	if err := application.SaveStartingData(filepath.Join(dir, "ads.json"), entries); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(owners, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFile(filepath.Join(dir, "owners.json"), buf, 0600)
}
