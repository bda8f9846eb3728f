// Package control exposes a running engine to local clients: JSON-RPC 2.0
// over POST /rpc and a websocket feed of dot-dash activations on /ws.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/offlinefirst/scrollzoom/pkg/engine"
	"github.com/offlinefirst/scrollzoom/pkg/logging"
)

// Server timeouts
const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 10 * time.Second
	IdleTimeout  = 120 * time.Second
)

// Engine is the part of *engine.Engine the server drives. Every call is
// made on the loop.
type Engine interface {
	Status() engine.Status
	SetEnabled(enable bool) bool
	SetDotDashEnabled(enable bool) bool
	Subscribe(fn func(engine.Activation)) (cancel func())
}

// Loop runs fn on the engine's scheduling context and waits for it.
type Loop interface {
	Send(fn func())
}

// Options configures a Server.
type Options struct {
	// Addr is host:port, or a bare port bound on localhost.
	Addr    string
	Engine  Engine
	Loop    Loop
	RunID   string
	Version string
	// Shutdown is invoked, off the request goroutine, by server.shutdown.
	Shutdown func()
	Logger   *slog.Logger
}

// Server serves the control surface.
type Server struct {
	engine   Engine
	loop     Loop
	runID    string
	version  string
	pid      int
	shutdown func()
	logger   *slog.Logger

	addr     string
	http     *http.Server
	listener net.Listener
	feed     *feed
	cancel   func()
}

// New returns a server that is not yet listening.
func New(opts Options) (*Server, error) {
	if opts.Engine == nil || opts.Loop == nil {
		return nil, errors.New("control: engine and loop are required")
	}
	addr, err := NormalizeAddr(opts.Addr)
	if err != nil {
		return nil, err
	}
	logger := logging.Component(opts.Logger, "control")
	s := &Server{
		engine:   opts.Engine,
		loop:     opts.Loop,
		runID:    opts.RunID,
		version:  opts.Version,
		pid:      os.Getpid(),
		shutdown: opts.Shutdown,
		logger:   logger,
		addr:     addr,
		feed:     newFeed(logger),
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
	return s, nil
}

// NormalizeAddr turns a bare port into a localhost address.
func NormalizeAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("control: listen address is required")
	}
	if !strings.Contains(addr, ":") {
		port, err := strconv.Atoi(addr)
		if err != nil {
			return "", fmt.Errorf("invalid port: %v", err)
		}
		addr = fmt.Sprintf("127.0.0.1:%d", port)
	}
	return addr, nil
}

// Handler routes /rpc and /ws. It subscribes to activations on first use.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.sendBanner)
	mux.HandleFunc("/rpc", s.handleJSONRPC)
	mux.HandleFunc("/ws", s.handleFeed)
	return mux
}

// Start subscribes to activations and begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.Subscribe()

	s.logger.Info("control server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control server stopped", "error", err)
		}
	}()
	return nil
}

// Subscribe attaches the activation feed to the engine. Start calls it;
// callers serving Handler themselves call it once.
func (s *Server) Subscribe() {
	if s.cancel != nil {
		return
	}
	s.loop.Send(func() { s.cancel = s.engine.Subscribe(s.feed.publish) })
}

// Addr is the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Close stops accepting requests, drops feed clients and detaches from the
// engine.
func (s *Server) Close(ctx context.Context) error {
	if s.cancel != nil {
		cancel := s.cancel
		s.cancel = nil
		s.loop.Send(cancel)
	}
	s.feed.closeAll()
	if s.listener == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown control server: %w", err)
	}
	return nil
}

func (s *Server) sendBanner(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "scrollzoom %s control server\n", s.version)
}
