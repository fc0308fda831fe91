package main

import (
	"os"

	"github.com/nmhq/claude-bridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
