package testserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
)

// App registers the routes of a child application. It runs before the
// listener opens, so a slow App delays readiness and an App error makes the
// child exit before it is ready. ctx is cancelled on SIGTERM or interrupt.
type App func(ctx context.Context, e *echo.Echo) error

// Serve runs the child side of the Start contract. When TESTRIG_APP is not
// set it returns false immediately; otherwise it serves the named app until
// terminated and exits the process, never returning. Call it first thing in
// main or TestMain:
//
//	func TestMain(m *testing.M) {
//		testserver.Serve(apps)
//		os.Exit(m.Run())
//	}
func Serve(apps map[string]App) bool {
	name, ok := os.LookupEnv(EnvApp)
	if !ok {
		return false
	}
	app, ok := apps[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "testserver: unknown app %q\n", name)
		os.Exit(2)
	}
	host := os.Getenv(EnvHost)
	if host == "" {
		host = DefaultHost
	}
	addr := net.JoinHostPort(host, os.Getenv(EnvPort))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := RunApp(ctx, app, addr); err != nil {
		fmt.Fprintf(os.Stderr, "testserver: %s: %v\n", name, err)
		os.Exit(1)
	}
	os.Exit(0)
	return true
}

// RunApp serves app on addr until ctx is done, then shuts down gracefully.
func RunApp(ctx context.Context, app App, addr string) error {
	e := NewEcho()
	if err := app(ctx, e); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serveUntil(ctx, e, ln)
}

func serveUntil(ctx context.Context, e *echo.Echo, ln net.Listener) error {
	srv := &http.Server{Handler: e, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// NewEcho returns an echo instance configured for test servers.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// HealthApp serves GET /health.
func HealthApp(_ context.Context, e *echo.Echo) error {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	return nil
}

// EchoApp serves /health plus GET /echo, which returns its query parameters.
func EchoApp(ctx context.Context, e *echo.Echo) error {
	if err := HealthApp(ctx, e); err != nil {
		return err
	}
	e.GET("/echo", func(c echo.Context) error {
		out := map[string]string{}
		for k, v := range c.QueryParams() {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
		return c.JSON(http.StatusOK, out)
	})
	return nil
}

// BuiltinApps are the apps served by "testrig serve".
func BuiltinApps() map[string]App {
	return map[string]App{
		"health": HealthApp,
		"echo":   EchoApp,
	}
}
