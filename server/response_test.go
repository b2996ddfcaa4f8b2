package server

import (
	"errors"
	"testing"
)

// flakyConn times out a number of writes before accepting them.
type flakyConn struct {
	*mockConn
	failures int
}

func (c *flakyConn) Write(b []byte) (int, error) {
	if c.failures > 0 {
		c.failures--
		return 0, timeoutError{}
	}
	return c.mockConn.Write(b)
}

func TestResponseStages(t *testing.T) {
	conn := newMockConn("")
	w := newResponseWriter(conn, 0)

	if w.stage != StageSendingResponse {
		t.Fatalf("Expected initial stage %v, got %v", StageSendingResponse, w.stage)
	}
	if err := w.sendResponse(StatusOK, ""); err != nil {
		t.Fatalf("sendResponse: %v", err)
	}
	if err := w.sendResponse(StatusOK, ""); !errors.Is(err, ErrStage) {
		t.Errorf("Expected stage error for second status line, got %v", err)
	}
	if err := w.sendHeader("Content-Type", "text/plain"); err != nil {
		t.Fatalf("sendHeader: %v", err)
	}
	if err := w.sendBody([]byte("one ")); err != nil {
		t.Fatalf("sendBody: %v", err)
	}
	if err := w.sendBody([]byte("two")); err != nil {
		t.Fatalf("sendBody: %v", err)
	}

	err := w.sendHeader("X-Late", "1")
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *StageError for header after body, got %v", err)
	}
	if se.Stage != StageSendingBody || se.Op != "sendHeader" {
		t.Errorf("Unexpected stage error %+v", se)
	}

	if err := w.complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := w.sendBody([]byte("more")); !errors.Is(err, ErrStage) {
		t.Errorf("Expected stage error for body after completion, got %v", err)
	}

	expected := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\none two"
	if got := conn.GetWrittenData(); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestImplicitStatusLine(t *testing.T) {
	conn := newMockConn("")
	w := newResponseWriter(conn, 0)
	if err := w.sendHeader("X-Early", "1"); err != nil {
		t.Fatalf("sendHeader: %v", err)
	}
	if err := w.sendResponse(StatusNotFound, ""); !errors.Is(err, ErrStage) {
		t.Errorf("Expected stage error for status line after a header, got %v", err)
	}

	bodyOnly := newMockConn("")
	w = newResponseWriter(bodyOnly, 0)
	if err := w.sendBody([]byte("x")); err != nil {
		t.Fatalf("sendBody: %v", err)
	}

	if got := conn.GetWrittenData(); got != "HTTP/1.1 200 OK\r\nX-Early: 1\r\n" {
		t.Errorf("Unexpected output %q", got)
	}
	if got := bodyOnly.GetWrittenData(); got != "HTTP/1.1 200 OK\r\n\r\nx" {
		t.Errorf("Unexpected output %q", got)
	}
}

func TestCompleteEndsHeaderBlock(t *testing.T) {
	conn := newMockConn("")
	w := newResponseWriter(conn, 0)
	w.sendResponse(StatusNotFound, "Gone Fishing")
	w.sendRawHeader("X-Raw: yes")
	if err := w.complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if w.stage != StageCompleted {
		t.Errorf("Expected stage %v, got %v", StageCompleted, w.stage)
	}

	expected := "HTTP/1.1 404 Gone Fishing\r\nX-Raw: yes\r\n\r\n"
	if got := conn.GetWrittenData(); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestWriteRetries(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		conn := &flakyConn{mockConn: newMockConn(""), failures: maxWriteRetries}
		w := newResponseWriter(conn, 0)
		if err := w.sendResponse(StatusOK, ""); err != nil {
			t.Fatalf("Expected write to succeed after %d timeouts, got %v", maxWriteRetries, err)
		}
		if got := conn.GetWrittenData(); got != "HTTP/1.1 200 OK\r\n" {
			t.Errorf("Unexpected output %q", got)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		conn := &flakyConn{mockConn: newMockConn(""), failures: maxWriteRetries + 1}
		w := newResponseWriter(conn, 0)
		err := w.sendResponse(StatusOK, "")
		if err == nil || !isTimeout(err) {
			t.Fatalf("Expected timeout error, got %v", err)
		}
		if err := w.sendHeader("Server", ServerSoftware); err == nil {
			t.Errorf("Expected writes after a failure to fail")
		}
		if got := conn.GetWrittenData(); got != "" {
			t.Errorf("Expected nothing written, got %q", got)
		}
	})
}
