//go:build mage
// +build mage

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Gotestsum string

var LocalBin = filepath.Join(os.Getenv("PWD"), "/bin")

func makeLocalBin() error {
	if _, err := os.Stat(LocalBin); os.IsNotExist(err) {
		err = os.MkdirAll(LocalBin, os.ModePerm)
		if err != nil {
			return err
		}
	}
	return nil
}

// Gotestsum downloads gotestsum locally if necessary
func gotestsum() error {
	mg.Deps(makeLocalBin)
	Gotestsum = filepath.Join(LocalBin, "/gotestsum")

	if _, err := os.Stat(Gotestsum); os.IsNotExist(err) {
		fmt.Println(Gotestsum)
		cmd := exec.Command("go", "install", "gotest.tools/gotestsum@v1.8.2")
		cmd.Env = append(os.Environ(), "GOBIN="+LocalBin)
		return cmd.Run()
	}
	return nil
}

// Starts the postgres and redis containers the tests and a local server need.
func Infra() error {
	mg.Deps(dockerCheck)
	if err := dockerRun("run", "-d", "--name=jobstate-redis", "-p=6379:6379", "redis:6.2.6"); err != nil {
		return err
	}
	if err := dockerRun("run", "-d", "--name=jobstate-postgres", "-p", "5432:5432", "-e", "POSTGRES_PASSWORD=psw", "postgres:14.2"); err != nil {
		return err
	}
	return sh.Run("sleep", "3")
}

// Stops the containers started by Infra.
func InfraDown() error {
	return dockerRemove("jobstate-redis", "jobstate-postgres")
}

// Tests is a mage target that runs the tests and generates coverage reports.
func Tests() (err error) {
	mg.Deps(gotestsum)
	if err := Infra(); err != nil {
		return err
	}
	defer func() {
		if dockerErr := InfraDown(); dockerErr != nil {
			if err == nil {
				err = dockerErr
			} else {
				err = fmt.Errorf("%w; %s", err, dockerErr.Error())
			}
		}
	}()

	if err := os.MkdirAll("test_reports", os.ModePerm); err != nil {
		return err
	}
	if err := runtest("internal_coverage.xml", "internal.txt", "./internal/..."); err != nil {
		return err
	}
	if err := runtest("pkg_coverage.xml", "pkg.txt", "./pkg/..."); err != nil {
		return err
	}
	return runtest("cmd_coverage.xml", "cmd.txt", "./cmd/...")
}

func runtest(coverageFileName, outputFileName string, directories ...string) error {
	args := []string{"--", "-v", "-count=1"}
	if coverageFileName != "" {
		args = append(args, "-coverprofile", filepath.Join("test_reports", coverageFileName))
	}
	args = append(args, directories...)

	cmd := exec.Command(Gotestsum, args...)
	file, err := os.Create(filepath.Join("test_reports", outputFileName))
	if err != nil {
		return err
	}
	defer file.Close()

	cmd.Stdout = io.MultiWriter(os.Stdout, file)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
