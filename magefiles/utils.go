//go:build mage
// +build mage

package main

import (
	"fmt"
	"runtime"
	"strings"

	semver "github.com/Masterminds/semver/v3"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

func binaryWithExt(name string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("%s.exe", name)
	}
	return name
}

// checkToolVersion runs "<tool> --version", takes the whitespace separated field at index
// and checks it against constraint.
func checkToolVersion(tool string, index int, constraint string) error {
	output, err := sh.Output(binaryWithExt(tool), "--version")
	if err != nil {
		return errors.Wrapf(err, "running %s --version", tool)
	}
	fields := strings.Fields(output)
	if len(fields) <= index {
		return errors.Errorf("unexpected %s version output: %s", tool, output)
	}
	version, err := semver.NewVersion(strings.Trim(fields[index], "v,"))
	if err != nil {
		return errors.Wrapf(err, "parsing %s version %q", tool, fields[index])
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.WithStack(err)
	}
	if !c.Check(version) {
		return errors.Errorf("%s %v does not satisfy %s", tool, version, constraint)
	}
	return nil
}
