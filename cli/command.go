// Package cli provides the building blocks of the bverify
// command-line executables.
package cli

import (
	"github.com/spf13/cobra"
)

// cobraCommand is used to implement any type of cobra command
// for any of the bverify command-line tools and executables.
type cobraCommand interface {
	Build() *cobra.Command
}

// A RunFunc implements a command. Returned errors are
// printed by the root command.
type RunFunc func(cmd *cobra.Command, args []string) error
