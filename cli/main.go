package main

import (
	"os"

	"github.com/telhawk-systems/exception-monitor/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
