package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bverify/bverify-go/application"
	"github.com/bverify/bverify-go/protocol/client"
	"github.com/bverify/bverify-go/storage/commitmentkv"
	"github.com/bverify/bverify-go/storage/kv/leveldbkv"
)

// errEmptyChain indicates a commitment database without commitments.
var errEmptyChain = errors.New("no commitments stored")

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify the commitments persisted by a stopped server.",
	Long: `Verify the commitments persisted by a stopped server.

Every stored commitment must be signed by the server's key and
extend the hash chain of the previous one.`,
	Args: cobra.NoArgs,
	RunE: audit,
}

func init() {
	RootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringP("db", "b", "commitments", "Path to the commitment database")
	auditCmd.Flags().StringP("pubkey", "k", "sign.pub", "Path to the server's public signing key")
}

func audit(cmd *cobra.Command, args []string) error {
	pk, err := application.LoadSigningPubKey(cmd.Flag("pubkey").Value.String(), "")
	if err != nil {
		return err
	}
	db, err := leveldbkv.OpenDB(cmd.Flag("db").Value.String())
	if err != nil {
		return err
	}
	defer db.Close()

	cs, err := commitmentkv.LoadCommitments(db)
	if err != nil {
		return err
	}
	if len(cs) == 0 {
		return errEmptyChain
	}
	if !cs[0].VerifySignature(pk) {
		return client.ErrBadSignature
	}
	if err := client.VerifyCommitments(pk, cs[0], cs[1:]); err != nil {
		return err
	}
	latest := cs[len(cs)-1]
	fmt.Fprintf(cmd.OutOrStdout(), "%d commitments verified, latest root %s\n",
		len(cs), hex.EncodeToString(latest.RootHash))
	return nil
}
