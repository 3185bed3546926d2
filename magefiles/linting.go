//go:build mage
// +build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

const golangciLintConstraint = ">= 1.52.0"

func golangciLintCheck() error {
	return checkToolVersion("golangci-lint", 3, golangciLintConstraint)
}

// Fix lint findings in place.
func LintFix() error {
	return golangciLint("run", "--fix", "--timeout", "10m")
}

// Lint the module.
func CheckLint() error {
	return golangciLint("run", "--timeout", "10m")
}

func golangciLint(args ...string) error {
	mg.Deps(golangciLintCheck)
	output, err := sh.Output(binaryWithExt("golangci-lint"), args...)
	if err != nil {
		fmt.Println(output)
		return errors.Wrap(err, "golangci-lint")
	}
	return nil
}
