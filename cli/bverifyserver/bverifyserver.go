// Executable bverify server. Run "bverifyserver init" to create a
// configuration and keys, then "bverifyserver run".
package main

import (
	"github.com/bverify/bverify-go/cli"
	"github.com/bverify/bverify-go/cli/bverifyserver/internal/cmd"
)

func main() {
	cli.ExecuteRoot(cmd.RootCmd)
}
