package main

import (
	"os"

	"github.com/Swind/go-worklet-runner/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
