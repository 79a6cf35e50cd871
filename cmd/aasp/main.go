package main

import (
	"os"

	"github.com/xela07ax/aasp-sandbox/cmd/aasp/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
