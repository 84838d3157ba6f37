package main

import (
	"os"

	"github.com/rvanraamsdonk/closegate/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
