package main

import (
	"os"

	"github.com/MEKXH/breakbot/cmd/breakbot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
