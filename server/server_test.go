package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"cghttpd/config"
)

func startServer(t *testing.T, store *config.Store) (*Server, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	s := newTestServer(store)
	s.ReadTimeout = time.Second
	s.WriteTimeout = time.Second
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	return s, done
}

func roundTrip(t *testing.T, addr net.Addr, request string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()
	if _, err := io.WriteString(conn, request); err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	data, err := io.ReadAll(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return string(data)
}

func TestServeAndClose(t *testing.T) {
	store, _ := newTestRoot(t)
	s, done := startServer(t, store)

	var addr net.Addr
	for i := 0; i < 100 && addr == nil; i++ {
		addr = s.Addr()
		time.Sleep(time.Millisecond)
	}
	if addr == nil {
		t.Fatalf("Server did not start listening")
	}

	for i := 0; i < 3; i++ {
		raw := roundTrip(t, addr, "GET /index.html HTTP/1.1\r\nHost: test\r\n\r\n")
		resp := parseTestResponse(t, raw)
		if resp.status != "HTTP/1.1 200 OK" || resp.body != indexContent {
			t.Fatalf("Unexpected response %q", raw)
		}
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrServerClosed) {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after Close")
	}

	var kinds []EventKind
	for _, e := range drainEvents(s) {
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 9 {
		t.Fatalf("Expected 9 events for 3 connections, got %v", kinds)
	}
	counts := make(map[EventKind]int)
	for _, k := range kinds {
		counts[k]++
	}
	for _, k := range []EventKind{EventConnectionReceived, EventConnectionPolicy, EventAction} {
		if counts[k] != 3 {
			t.Errorf("Expected 3 events of kind %d, got %d", k, counts[k])
		}
	}
}

func TestRejectedOverNetwork(t *testing.T) {
	store, _ := newTestRoot(t)
	store.SetDefaultConnectionPolicy(config.PolicyReject)
	s, done := startServer(t, store)
	defer func() {
		s.Close()
		<-done
	}()

	var addr net.Addr
	for i := 0; i < 100 && addr == nil; i++ {
		addr = s.Addr()
		time.Sleep(time.Millisecond)
	}
	if addr == nil {
		t.Fatalf("Server did not start listening")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if n != 0 {
		t.Errorf("Expected rejected connection to be closed silently, got %q", buf[:n])
	}
	if isTimeout(err) {
		t.Errorf("Expected rejected connection to be closed, read timed out")
	}
}

func TestServeAfterClose(t *testing.T) {
	s := newTestServer(config.NewStore())
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	if err := s.Serve(ln); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed, got %v", err)
	}
}

func TestListenAndServeBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()

	store := config.NewStore()
	store.SetListenAddress("127.0.0.1")
	store.SetPort(ln.Addr().(*net.TCPAddr).Port)
	s := newTestServer(store)

	err = s.ListenAndServe()
	if err == nil || !strings.Contains(err.Error(), strconv.Itoa(store.Port())) {
		t.Errorf("Expected bind error naming the port, got %v", err)
	}
}

func TestSplitAddr(t *testing.T) {
	testCases := []struct {
		addr net.Addr
		ip   string
		port int
	}{
		{&net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 80}, "10.0.0.1", 80},
		{&net.TCPAddr{IP: net.ParseIP("::1"), Port: 443}, "::1", 443},
		{&net.UnixAddr{Name: "/tmp/sock", Net: "unix"}, "/tmp/sock", 0},
		{nil, "", 0},
	}

	for _, tc := range testCases {
		ip, port := splitAddr(tc.addr)
		if ip != tc.ip || port != tc.port {
			t.Errorf("splitAddr(%v) = %s, %d; want %s, %d", tc.addr, ip, port, tc.ip, tc.port)
		}
	}
}

func TestEventString(t *testing.T) {
	e := Event{Kind: EventAction, RemoteIP: "10.0.0.1", RemotePort: 5000, Action: config.ActionCGI, Resource: "/srv/x.cgi"}
	if got := e.String(); !strings.Contains(got, "/srv/x.cgi") || !strings.Contains(got, "10.0.0.1:5000") {
		t.Errorf("Unexpected event string %q", got)
	}
	rejected := Event{Kind: EventConnectionPolicy, RemoteIP: "10.0.0.2", Policy: config.PolicyReject}
	if got := rejected.String(); !strings.Contains(got, "rejected") {
		t.Errorf("Unexpected event string %q", got)
	}
}
