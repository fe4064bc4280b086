package main

import (
	"os"

	"sparsechat/cmd/sparse/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
