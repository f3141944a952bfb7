package testserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
)

type route struct {
	method string
	path   string
	status int
	body   any
}

// Static declares fixed JSON routes served in-process, for smoke tests that
// do not need a separate process:
//
//	h, err := testserver.NewStatic().Get("/users", users).Port(0).Start(ctx)
type Static struct {
	host   string
	port   int
	routes []route
}

// NewStatic returns an empty in-process server on a free port.
func NewStatic() *Static {
	return &Static{host: DefaultHost}
}

// Get serves body as JSON with status 200 for GET path.
func (s *Static) Get(path string, body any) *Static {
	return s.Route(http.MethodGet, path, http.StatusOK, body)
}

// Route serves body as JSON with the given status.
func (s *Static) Route(method, path string, status int, body any) *Static {
	s.routes = append(s.routes, route{method: method, path: path, status: status, body: body})
	return s
}

// Port sets the port; 0 picks a free one.
func (s *Static) Port(n int) *Static {
	s.port = n
	return s
}

// Start listens and serves the declared routes. The listener is open when
// Start returns, so the handle is immediately usable.
func (s *Static) Start(ctx context.Context) (*StaticHandle, error) {
	e := NewEcho()
	for _, r := range s.routes {
		e.Add(r.method, r.path, func(c echo.Context) error {
			return c.JSON(r.status, r.body)
		})
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return nil, fmt.Errorf("static test server: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &StaticHandle{
		URL:    "http://" + net.JoinHostPort(s.host, strconv.Itoa(port)),
		Port:   port,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		h.err = serveUntil(sctx, e, ln)
	}()
	return h, nil
}

// StaticHandle is a running in-process server.
type StaticHandle struct {
	URL  string
	Port int

	cancel context.CancelFunc
	done   chan struct{}
	err    error
	once   sync.Once
}

// Stop shuts the server down and waits for it, up to ctx.
func (h *StaticHandle) Stop(ctx context.Context) error {
	h.once.Do(h.cancel)
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
