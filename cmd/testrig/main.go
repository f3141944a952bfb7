// testrig runs fixture-driven test suites and benchmark groups and renders
// their reports.
//
// Usage:
//
//	testrig example                         # run the built-in demo suites
//	testrig example --out report.json       # also save the report
//	testrig render report.json --format md  # re-render a saved report
//	go test -json ./... | testrig import  # render a go test run
//	testrig serve --app health --port 8080  # serve a built-in test app
//
// Exit codes: 0 when every instance passed or was skipped, 1 when any
// failed or errored, 2 for usage and configuration errors.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkoosis/testrig/pkg/testserver"
)

func main() {
	// The binary doubles as a test server child when started by testserver.
	testserver.Serve(testserver.BuiltinApps())
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error { return &exitError{code: 2, err: err} }

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "testrig: %v\n", ee.err)
		}
		return ee.code
	}
	// cobra's own flag and argument errors
	fmt.Fprintf(stderr, "testrig: %v\n", err)
	return 2
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "testrig",
		Short:         "Fixture-driven test orchestration and benchmarking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default .testrig.yaml if present)")
	root.AddCommand(newExampleCmd(), newRenderCmd(), newImportCmd(), newServeCmd(), newVersionCmd())
	return root
}
