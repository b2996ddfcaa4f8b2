package server

import (
	"bytes"
	"io"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"cghttpd/config"
)

var (
	testRemoteAddr = &net.TCPAddr{IP: net.IPv4(192, 0, 2, 10), Port: 40000}
	testLocalAddr  = &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 8080}
)

// Mock net.Conn implementation for testing
type mockConn struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
	remote   net.Addr
	local    net.Addr
	closed   bool
}

func newMockConn(input string) *mockConn {
	return &mockConn{
		readBuf:  bytes.NewBufferString(input),
		writeBuf: &bytes.Buffer{},
		remote:   testRemoteAddr,
		local:    testLocalAddr,
	}
}

func (m *mockConn) Read(b []byte) (n int, err error)   { return m.readBuf.Read(b) }
func (m *mockConn) Write(b []byte) (n int, err error)  { return m.writeBuf.Write(b) }
func (m *mockConn) Close() error                       { m.closed = true; return nil }
func (m *mockConn) LocalAddr() net.Addr                { return m.local }
func (m *mockConn) RemoteAddr() net.Addr               { return m.remote }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }
func (m *mockConn) GetWrittenData() string             { return m.writeBuf.String() }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// scriptedConn replays reads step by step: a chunk of data, or a timeout
// when the step is empty. After the last step it reports EOF.
type scriptedConn struct {
	*mockConn
	steps []string
}

func newScriptedConn(steps ...string) *scriptedConn {
	return &scriptedConn{mockConn: newMockConn(""), steps: steps}
}

func (c *scriptedConn) Read(b []byte) (int, error) {
	if len(c.steps) == 0 {
		return 0, io.EOF
	}
	step := c.steps[0]
	if step == "" {
		c.steps = c.steps[1:]
		return 0, timeoutError{}
	}
	n := copy(b, step)
	if n == len(step) {
		c.steps = c.steps[1:]
	} else {
		c.steps[0] = step[n:]
	}
	return n, nil
}

// trickleConn hands out its input a few bytes per Read.
type trickleConn struct {
	*mockConn
	max int
}

func (c *trickleConn) Read(b []byte) (int, error) {
	if len(b) > c.max {
		b = b[:c.max]
	}
	return c.mockConn.Read(b)
}

func newTestServer(store *config.Store) *Server {
	s := New(store)
	s.Logger = log.New(io.Discard, "", 0)
	s.ReadTimeout = 0
	s.WriteTimeout = 0
	return s
}

// testResponse is a response split into its parts.
type testResponse struct {
	status  string
	headers map[string]string
	body    string
}

func parseTestResponse(t *testing.T, raw string) *testResponse {
	t.Helper()
	head, body, found := strings.Cut(raw, "\r\n\r\n")
	if !found {
		t.Fatalf("Response has no header terminator: %q", raw)
	}
	lines := strings.Split(head, "\r\n")
	resp := &testResponse{status: lines[0], headers: make(map[string]string), body: body}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			t.Fatalf("Malformed response header %q", line)
		}
		resp.headers[strings.ToLower(name)] = value
	}
	return resp
}

// serve runs one handler over a mock connection and returns what it wrote.
func serve(t *testing.T, s *Server, request string) *testResponse {
	t.Helper()
	conn := newMockConn(request)
	newHandler(s, conn).run()
	if !conn.closed {
		t.Errorf("Handler did not close the connection")
	}
	return parseTestResponse(t, conn.GetWrittenData())
}

// drainEvents returns the events emitted so far.
func drainEvents(s *Server) []Event {
	var events []Event
	for {
		select {
		case e := <-s.events:
			events = append(events, e)
		default:
			return events
		}
	}
}
