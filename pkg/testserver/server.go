// Package testserver starts applications as child processes for
// integration tests and hands back a handle once they are observably ready.
//
// A server moves through Starting, Polling, Ready, Stopping and Stopped.
// Start never returns before the child answers its health probe (or fails),
// and a failed or cancelled start always terminates the child first. Stop is
// bounded: SIGTERM, a grace period, then SIGKILL. Children are never reaped
// implicitly; a Handle that is not stopped leaks its process.
package testserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Environment contract between Start and Serve.
const (
	EnvApp  = "TESTRIG_APP"
	EnvPort = "TESTRIG_PORT"
	EnvHost = "TESTRIG_HOST"
)

// Defaults applied to zero Config fields.
const (
	DefaultStartupTimeout = 10 * time.Second
	DefaultGracePeriod    = 2 * time.Second
	DefaultPollInterval   = 50 * time.Millisecond
	DefaultHost           = "127.0.0.1"
)

// State is the lifecycle position of a server.
type State int

const (
	Starting State = iota
	Polling
	Ready
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Polling:
		return "polling"
	case Ready:
		return "ready"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Config describes the child to spawn. AppModule is the executable and
// AppCallable names the application inside it; the child receives the name
// in TESTRIG_APP and the port in TESTRIG_PORT.
type Config struct {
	AppModule      string
	AppCallable    string
	Port           int
	Host           string
	StartupTimeout time.Duration
	// HealthEndpoint is polled with GET until it answers 2xx. Empty means
	// readiness is a connectable TCP port.
	HealthEndpoint string
	GracePeriod    time.Duration
	PollInterval   time.Duration
	Args           []string
	Env            []string
	MaxOutputBytes int
	Logger         *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HealthEndpoint != "" && !strings.HasPrefix(c.HealthEndpoint, "/") {
		c.HealthEndpoint = "/" + c.HealthEndpoint
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Server starts children from a Config. Servers share no state, so any
// number may run concurrently on distinct ports.
type Server struct {
	cfg Config
}

// New creates a server from cfg.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// FromApp configures a server for appCallable inside the executable
// appModule. Port 0 picks a free port at Start.
func FromApp(appModule, appCallable string, port int, startupTimeout time.Duration, healthEndpoint string) *Server {
	return New(Config{
		AppModule:      appModule,
		AppCallable:    appCallable,
		Port:           port,
		StartupTimeout: startupTimeout,
		HealthEndpoint: healthEndpoint,
	})
}

// Config returns the configuration with defaults applied.
func (s *Server) Config() Config { return s.cfg.withDefaults() }

// StartupError reports a child that did not become ready. Output holds what
// the child wrote before it was terminated.
type StartupError struct {
	App     string
	Command string
	Reason  string
	Elapsed time.Duration
	Output  []string
	Err     error
}

func (e *StartupError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "test server %q failed to start: %s after %s", e.App, e.Reason, e.Elapsed.Round(time.Millisecond))
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	if len(e.Output) > 0 {
		sb.WriteString("\n--- output ---\n")
		sb.WriteString(strings.Join(e.Output, "\n"))
	}
	return sb.String()
}

func (e *StartupError) Unwrap() error { return e.Err }

// Reasons carried by StartupError.
const (
	ReasonSpawn   = "spawn failed"
	ReasonExited  = "exited before ready"
	ReasonTimeout = "timed out waiting for readiness"
)

// Start spawns the child and blocks until it is ready. On failure or
// cancellation the child is stopped before Start returns.
func (s *Server) Start(ctx context.Context) (*Handle, error) {
	cfg := s.cfg.withDefaults()
	log := cfg.Logger.With(zap.String("app", cfg.AppCallable))
	if cfg.AppModule == "" {
		return nil, &StartupError{App: cfg.AppCallable, Reason: ReasonSpawn, Err: errors.New("no app module")}
	}

	port := cfg.Port
	if port == 0 {
		p, err := FreePort(cfg.Host)
		if err != nil {
			return nil, &StartupError{App: cfg.AppCallable, Reason: ReasonSpawn, Err: err}
		}
		port = p
	}

	cmd := exec.Command(cfg.AppModule, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Env = append(cmd.Env,
		EnvApp+"="+cfg.AppCallable,
		EnvPort+"="+strconv.Itoa(port),
		EnvHost+"="+cfg.Host,
	)
	out := newOutputBuffer(cfg.MaxOutputBytes)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = cfg.GracePeriod
	setProcessGroup(cmd)

	command := shellescape.QuoteCommand(append([]string{cfg.AppModule}, cfg.Args...))
	h := &Handle{
		URL:     "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Port:    port,
		cmd:     cmd,
		out:     out,
		grace:   cfg.GracePeriod,
		log:     log,
		exited:  make(chan struct{}),
		state:   Starting,
		command: command,
	}

	start := time.Now()
	log.Info("spawning test server", zap.String("command", command), zap.Int("port", port))
	if err := cmd.Start(); err != nil {
		return nil, &StartupError{App: cfg.AppCallable, Command: command, Reason: ReasonSpawn,
			Elapsed: time.Since(start), Err: err}
	}
	h.PID = cmd.Process.Pid
	go h.wait()

	reason, err := h.poll(ctx, cfg)
	if reason == "" && err == nil {
		h.setState(Ready)
		log.Info("test server ready", zap.String("url", h.URL), zap.Int("pid", h.PID),
			zap.Duration("elapsed", time.Since(start)))
		return h, nil
	}

	if stopErr := h.Stop(context.Background()); stopErr != nil {
		log.Warn("stopping failed test server", zap.Error(stopErr))
	}
	if reason == "" {
		// cancelled by the caller
		return nil, err
	}
	return nil, &StartupError{
		App:     cfg.AppCallable,
		Command: command,
		Reason:  reason,
		Elapsed: time.Since(start),
		Output:  out.Lines(),
		Err:     err,
	}
}

// poll probes until ready. It returns a failure reason, or an empty reason
// with the context error when the caller cancelled.
func (h *Handle) poll(ctx context.Context, cfg Config) (string, error) {
	h.setState(Polling)
	pctx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(cfg.PollInterval), 1)
	client := &http.Client{Timeout: time.Second}
	var lastErr error
	for {
		select {
		case <-h.exited:
			return ReasonExited, h.ExitErr()
		default:
		}
		if err := limiter.Wait(pctx); err != nil {
			// Wait fails early when the next tick would pass the deadline.
			<-pctx.Done()
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return ReasonTimeout, lastErr
		}
		if lastErr = h.probe(pctx, client, cfg.HealthEndpoint); lastErr == nil {
			return "", nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}

func (h *Handle) probe(ctx context.Context, client *http.Client, endpoint string) error {
	if endpoint == "" {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(h.URL, "http://"))
		if err != nil {
			return err
		}
		return conn.Close()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL+endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check %s returned %s", endpoint, resp.Status)
	}
	return nil
}

// Handle is a running child. It is owned by the test that started it.
type Handle struct {
	URL  string
	Port int
	PID  int

	cmd     *exec.Cmd
	out     *outputBuffer
	grace   time.Duration
	log     *zap.Logger
	command string

	exited  chan struct{}
	waitErr error

	mu    sync.Mutex
	state State

	stopOnce sync.Once
	stopErr  error
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.waitErr = err
	h.mu.Unlock()
	close(h.exited)
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Output returns what the child has written so far.
func (h *Handle) Output() []string { return h.out.Lines() }

// Command is the shell-quoted command line the child was started with.
func (h *Handle) Command() string { return h.command }

// Done is closed when the child exits.
func (h *Handle) Done() <-chan struct{} { return h.exited }

// ExitErr is the child's wait error once it has exited.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// Stop terminates the child: SIGTERM to its process group, then SIGKILL once
// the grace period or ctx runs out. It returns within about two grace
// periods whatever the child does, and later calls return the first result.
func (h *Handle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { h.stopErr = h.stop(ctx) })
	return h.stopErr
}

func (h *Handle) stop(ctx context.Context) error {
	h.setState(Stopping)
	defer h.setState(Stopped)

	select {
	case <-h.exited:
		return nil
	default:
	}

	if err := terminateGroup(h.cmd); err != nil {
		h.log.Debug("terminate signal failed", zap.Int("pid", h.PID), zap.Error(err))
	}
	grace := time.NewTimer(h.grace)
	defer grace.Stop()
	select {
	case <-h.exited:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	h.log.Warn("test server ignored termination, killing", zap.Int("pid", h.PID))
	if err := killGroup(h.cmd); err != nil {
		h.log.Debug("kill signal failed", zap.Int("pid", h.PID), zap.Error(err))
	}
	final := time.NewTimer(h.grace)
	defer final.Stop()
	select {
	case <-h.exited:
		return nil
	case <-final.C:
		return fmt.Errorf("test server pid %d did not exit after SIGKILL", h.PID)
	}
}

// FreePort asks the kernel for an unused TCP port on host.
func FreePort(host string) (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("find free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
