package main

import (
	"os"

	"github.com/G-Research/jobstate/cmd/jobstate/cmd"
	"github.com/G-Research/jobstate/internal/common/logging"
)

func main() {
	logging.ConfigureLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
