package main

import (
	"os"

	"github.com/jacq-os/jacq/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
