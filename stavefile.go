//go:build stave

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
	"github.com/yaklabco/stave/pkg/target"
)

// Default target when running `stave` with no arguments.
var Default = All

// Aliases for common targets.
var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"l": Lint,
	"c": Clean,
}

// All runs lint, short tests, then the build.
func All() error {
	st.Deps(Init)
	st.Deps(Lint, TestShort)
	st.Deps(Build)
	return nil
}

// Init ensures the module dependencies are up to date.
func Init() error {
	return sh.Run("go", "mod", "tidy")
}

// Build compiles the verdict binary with version information.
func Build() error {
	st.Deps(Init)

	rebuild, err := target.Glob("bin/verdict", "**/*.go", "go.mod", "go.sum")
	if err != nil {
		return fmt.Errorf("checking rebuild: %w", err)
	}
	if !rebuild {
		if st.Verbose() {
			fmt.Println("verdict is up to date")
		}
		return nil
	}

	version, _ := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	ldflags := "-X github.com/andresmejia3/verdict/cmd.Version=" + strings.TrimSpace(version)
	if strings.TrimSpace(version) == "" {
		ldflags = ""
	}
	return sh.RunV("go", "build", "-ldflags", ldflags, "-o", "bin/verdict", ".")
}

// Test runs all tests, including the Postgres integration tests, with race detection and coverage.
func Test() error {
	st.Deps(Init)
	return sh.RunV("go", "test", "-race", "-cover", "./...")
}

// TestShort skips the tests that need Docker.
func TestShort() error {
	st.Deps(Init)
	return sh.RunV("go", "test", "-short", "-race", "./...")
}

// Lint runs golangci-lint on the codebase.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Vet runs go vet on all packages.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	for _, a := range []string{"bin/", "verdict"} {
		if err := sh.Rm(a); err != nil {
			return fmt.Errorf("removing %s: %w", a, err)
		}
	}
	return nil
}

// Install builds and copies the binary to GOBIN.
func Install() error {
	st.Deps(Build)

	gocmd := st.GoCmd()
	bin, err := sh.Output(gocmd, "env", "GOBIN")
	if err != nil {
		return fmt.Errorf("determining GOBIN: %w", err)
	}
	if bin == "" {
		gopath, err := sh.Output(gocmd, "env", "GOPATH")
		if err != nil {
			return fmt.Errorf("determining GOPATH: %w", err)
		}
		bin = gopath + "/bin"
	}

	dst := bin + "/verdict"
	if runtime.GOOS == "windows" {
		dst += ".exe"
	}
	if err := sh.Copy(dst, "bin/verdict"); err != nil {
		return fmt.Errorf("installing verdict: %w", err)
	}
	if st.Verbose() {
		fmt.Printf("Installed verdict to %s\n", dst)
	}
	return nil
}

// DB namespace for the local run archive.
type DB st.Namespace

// Up starts a throwaway Postgres container for the run archive on port 5432.
func (DB) Up() error {
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "verdict"
	}
	return sh.RunV("docker", "run", "-d", "--rm", "--name", "verdict-db",
		"-e", "POSTGRES_DB=verdict",
		"-e", "POSTGRES_USER=verdict",
		"-e", "POSTGRES_PASSWORD="+password,
		"-p", "5432:5432",
		"postgres:16-alpine",
	)
}

// Down stops the archive container.
func (DB) Down() error {
	return sh.RunV("docker", "stop", "verdict-db")
}
