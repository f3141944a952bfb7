//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir     = "bin"
	binary     = "testrig"
	mainPkg    = "./cmd/testrig"
	versionPkg = "github.com/dkoosis/testrig/internal/version"
)

// Default target - build the binary
var Default = Build

// Build builds the testrig binary with version information.
func Build() error {
	mg.Deps(Lint.Vet)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-ldflags", ldflags(), "-o", filepath.Join(binDir, binary), mainPkg)
}

func ldflags() string {
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		commit = "unknown"
	}
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return strings.Join([]string{
		"-X " + versionPkg + ".Version=" + version,
		"-X " + versionPkg + ".CommitHash=" + commit,
		"-X " + versionPkg + ".BuildDate=" + time.Now().UTC().Format(time.RFC3339),
	}, " ")
}

// Clean removes build artifacts
func Clean() error {
	for _, p := range []string{binDir, "coverage.out"} {
		if err := sh.Rm(p); err != nil {
			return err
		}
	}
	return nil
}

// Example builds and runs the demo suites.
func Example() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binary), "example")
}

type Lint mg.Namespace

// All runs every linter.
func (Lint) All() error {
	mg.SerialDeps(Lint.Format, Lint.Vet)
	return nil
}

// Format fails when any file is not gofmt-clean.
func (Lint) Format() error {
	out, err := sh.Output("gofmt", "-l", "cmd", "internal", "pkg", "magefile.go")
	if err != nil {
		return err
	}
	if out != "" {
		return fmt.Errorf("files need gofmt:\n%s", out)
	}
	return nil
}

// Vet runs go vet.
func (Lint) Vet() error {
	return sh.RunV("go", "vet", "./...")
}

type Test mg.Namespace

// All runs the unit tests.
func (Test) All() error {
	return sh.RunV("go", "test", "./...")
}

// Race runs the tests with the race detector.
func (Test) Race() error {
	return sh.RunWith(map[string]string{"CGO_ENABLED": "1"}, "go", "test", "-race", "./...")
}

// Coverage writes coverage.out and prints the per-function summary.
func (Test) Coverage() error {
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}
