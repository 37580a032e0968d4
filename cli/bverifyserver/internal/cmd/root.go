// Package cmd implements the CLI commands for a bverify server.
package cmd

import (
	"github.com/bverify/bverify-go/cli"
)

// RootCmd represents the base "bverifyserver" command when called without any subcommands.
var RootCmd = cli.NewRootCommand("bverifyserver",
	"bverify server implementation in Go",
	`A bverify server batches signed updates to authenticated data
structures and publishes a signed, hash-chained commitment to the
root of its trie for every batch.`)
