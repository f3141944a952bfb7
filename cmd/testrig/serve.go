package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dkoosis/testrig/pkg/testserver"
)

func newServeCmd() *cobra.Command {
	var (
		app  string
		host string
		port int
	)
	apps := testserver.BuiltinApps()
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a built-in test application",
		Long: `Serves one of the built-in applications until interrupted. The same
binary serves as a test server child when TESTRIG_APP is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fn, ok := apps[app]
			if !ok {
				return usageError(fmt.Errorf("unknown app %q (available: %s)", app, strings.Join(names, ", ")))
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			addr := net.JoinHostPort(host, strconv.Itoa(port))
			fmt.Fprintf(cmd.ErrOrStderr(), "serving %s on http://%s\n", app, addr)
			if err := testserver.RunApp(ctx, fn, addr); err != nil {
				return &exitError{code: 1, err: err}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&app, "app", "health", "application to serve: "+strings.Join(names, ", "))
	f.StringVar(&host, "host", testserver.DefaultHost, "listen host")
	f.IntVar(&port, "port", 8080, "listen port")
	return cmd
}
