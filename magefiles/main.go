//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

var binaries = []string{"jobstate", "jobstatectl"}

// Check dependent tools are present and the correct version.
func CheckDeps() error {
	checks := []struct {
		name  string
		check func() error
	}{
		{"docker", dockerCheck},
		{"golangci-lint", golangciLintCheck},
	}
	failures := false
	for _, check := range checks {
		fmt.Printf("Checking %s... ", check.name)
		if err := check.check(); err != nil {
			fmt.Printf("FAILED\nReason: %v\n", err)
			failures = true
		} else {
			fmt.Println("PASSED")
		}
	}
	if failures {
		return errors.New("check(s) failed.")
	}
	return nil
}

// Removes build and test output.
func Clean() {
	fmt.Println("Cleaning...")
	for _, path := range []string{"bin", "test_reports"} {
		os.RemoveAll(path)
	}
}

// Builds the server and the command line tool into ./bin.
func Build() error {
	mg.Deps(makeLocalBin)
	for _, binary := range binaries {
		out := binaryWithExt("bin/" + binary)
		if err := sh.RunV("go", "build", "-o", out, "./cmd/"+binary); err != nil {
			return errors.Wrapf(err, "building %s", binary)
		}
	}
	return nil
}

// Applies the database migrations using the local config.
func Migrate() error {
	mg.Deps(Build)
	return sh.RunV(binaryWithExt("bin/jobstate"), "migrate")
}
