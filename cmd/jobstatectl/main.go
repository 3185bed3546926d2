package main

import (
	"os"

	"github.com/G-Research/jobstate/cmd/jobstatectl/cmd"
	"github.com/G-Research/jobstate/internal/common/logging"
)

func main() {
	logging.ConfigureCommandLineLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
