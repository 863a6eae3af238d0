//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

// Build compiles every executable into ./bin
func Build() error {
	mg.Deps(BuildScanner, BuildMeasureAlgos, BuildTimeAlign, BuildInstantTime)
	fmt.Println("Compilation finished")
	return nil
}

func BuildScanner() error {
	fmt.Println("Building scanner executable...")
	return goBuild("./bin/scanner", "./scanner")
}

func BuildMeasureAlgos() error {
	fmt.Println("Building measureAlgos executable...")
	return goBuild("./bin/measureAlgos", "./measureAlgos")
}

func BuildTimeAlign() error {
	fmt.Println("Building timeAlign executable...")
	return goBuild("./bin/timeAlign", "./timeAlign")
}

func BuildInstantTime() error {
	fmt.Println("Building instantTime executable...")
	return goBuild("./bin/instantTime", "./instantTime")
}

// Test runs the unit tests of every package
func Test() error {
	fmt.Println("Running tests...")
	return runWithCgo("go", "test", "./...")
}

func goBuild(output string, pkg string) error {
	return runWithCgo("go", "build", "-o", output, pkg)
}

// The HDF5 bindings need cgo, with the library location taken from the
// environment.
func runWithCgo(name string, args ...string) error {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
