package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bverify/bverify-go/application/server"
	"github.com/bverify/bverify-go/cli"
)

// runCmd represents the run command
var runCmd = cli.NewRunCommand("bverify server", run)

func init() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("config", "c", "config.toml", "Path to server configuration file")
	runCmd.Flags().BoolP("pid", "p", false, "Write down the process id to bverify.pid in the current working directory")
}

func run(cmd *cobra.Command, args []string) error {
	confPath := cmd.Flag("config").Value.String()
	// ignore the error here since it is handled by the flag parser.
	if pid, _ := cmd.Flags().GetBool("pid"); pid {
		writePID()
	}

	conf := &server.Config{}
	if err := conf.Load(confPath, "toml"); err != nil {
		return err
	}
	serv, err := server.NewBVerifyServer(conf)
	if err != nil {
		return err
	}

	// run the server until receiving an interrupt signal
	if err := serv.Run(conf.Addresses); err != nil {
		serv.Shutdown()
		return err
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	return serv.Shutdown()
}

func writePID() {
	pidf, err := os.OpenFile(filepath.Join(".", "bverify.pid"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		log.Printf("Cannot create bverify.pid: %v", err)
		return
	}
	defer pidf.Close()
	if _, err := fmt.Fprint(pidf, os.Getpid()); err != nil {
		log.Printf("Cannot write to pid file: %v", err)
	}
}
