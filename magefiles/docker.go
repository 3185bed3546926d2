//go:build mage
// +build mage

package main

import (
	"strings"

	"github.com/magefile/mage/sh"
)

const dockerConstraint = ">= 19.0.0"

func dockerBinary() string {
	return binaryWithExt("docker")
}

func dockerOutput(args ...string) (string, error) {
	return sh.Output(dockerBinary(), args...)
}

func dockerRun(args ...string) error {
	return sh.Run(dockerBinary(), args...)
}

// dockerRemove force-removes containers, ignoring the ones that do not exist.
func dockerRemove(names ...string) error {
	for _, name := range names {
		out, err := dockerOutput("ps", "-aq", "--filter", "name=^"+name+"$")
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			continue
		}
		if err := dockerRun("rm", "-f", name); err != nil {
			return err
		}
	}
	return nil
}

func dockerCheck() error {
	return checkToolVersion("docker", 2, dockerConstraint)
}
