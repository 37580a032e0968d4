package cmd

import (
	"github.com/bverify/bverify-go/cli"
)

var versionCmd = cli.NewVersionCommand("bverifyserver")

func init() {
	RootCmd.AddCommand(versionCmd)
}
