// Package server is the HTTP/1.x engine: it accepts connections, parses
// requests and answers them from the document root, with directory listings
// and CGI programs.
package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"cghttpd/config"
)

const (
	ServerName    = "cghttpd"
	ServerVersion = "1.0"

	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second

	eventBacklog = 256
)

// ServerSoftware is sent in the Server header and to CGI programs.
const ServerSoftware = ServerName + "/" + ServerVersion

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server: closed")

// Server accepts connections and runs one handler goroutine per connection.
// The configuration is only read, never changed.
type Server struct {
	// ReadTimeout bounds a single read; a request fails after
	// maxConsecutiveTimeouts of them in a row.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single write attempt.
	WriteTimeout time.Duration
	Logger       *log.Logger

	cfg    config.Config
	events chan Event

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

func New(cfg config.Config) *Server {
	return &Server{
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		Logger:       log.Default(),
		cfg:          cfg,
		events:       make(chan Event, eventBacklog),
	}
}

// Events returns the event stream. Events are dropped while the channel is
// full, so a slow consumer never stalls a connection.
func (s *Server) Events() <-chan Event { return s.events }

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe binds the configured address and port and serves on it.
// A bind failure is returned as is; it is not retried.
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.cfg.ListenAddress(), strconv.Itoa(s.cfg.Port()))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close. The listener is closed on
// return.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()
	defer ln.Close()

	s.logf("I listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if isTimeout(err) {
				s.logf("W accept: %v", err)
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		ip, port := splitAddr(conn.RemoteAddr())
		s.emit(Event{Kind: EventConnectionReceived, RemoteIP: ip, RemotePort: port})

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()

		h := newHandler(s, conn) // h owns conn from here on
		go func() {
			defer s.wg.Done()
			h.run()
		}()
	}
}

// Close stops accepting and waits for running handlers to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case s.events <- e:
	default:
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// splitAddr returns the host and port of addr, or zero values when addr has
// no port.
func splitAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	n, _ := strconv.Atoi(port)
	return host, n
}
