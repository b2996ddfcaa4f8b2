package server

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Stage is the position of a handler in the response it is sending. Stages
// only move forward.
type Stage int

const (
	StageSendingResponse Stage = iota
	StageSendingHeaders
	StageSendingBody
	StageCompleted
)

func (s Stage) String() string {
	switch s {
	case StageSendingResponse:
		return "sending response"
	case StageSendingHeaders:
		return "sending headers"
	case StageSendingBody:
		return "sending body"
	case StageCompleted:
		return "completed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ErrStage is wrapped by every StageError.
var ErrStage = errors.New("response stage violation")

// StageError reports a send operation attempted in a stage that does not
// allow it. It is a programming error, never the client's.
type StageError struct {
	Op    string
	Stage Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("server: %s not allowed while %s", e.Op, e.Stage)
}

func (e *StageError) Unwrap() error { return ErrStage }

const maxWriteRetries = 3

// responseWriter writes a response in order: status line, headers, a blank
// line, body.
type responseWriter struct {
	conn    net.Conn
	timeout time.Duration
	stage   Stage
	status  int
	written int64
	err     error // first write failure; nothing is written after it
}

func newResponseWriter(conn net.Conn, timeout time.Duration) *responseWriter {
	return &responseWriter{conn: conn, timeout: timeout}
}

// sendResponse writes the status line. reason defaults to the standard phrase.
func (w *responseWriter) sendResponse(status int, reason string) error {
	if w.stage != StageSendingResponse {
		return &StageError{Op: "sendResponse", Stage: w.stage}
	}
	if reason == "" {
		reason = StatusReason(status)
	}
	w.status = status
	w.stage = StageSendingHeaders
	return w.write([]byte(fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, reason)))
}

// implicitOK sends a 200 status line when a header or the body comes first.
func (w *responseWriter) implicitOK() error {
	if w.stage == StageSendingResponse {
		return w.sendResponse(StatusOK, "")
	}
	return nil
}

// sendHeader writes one header line. Before the status line it implies 200.
func (w *responseWriter) sendHeader(name, value string) error {
	return w.sendRawHeader(name + ": " + value)
}

// sendRawHeader writes a complete header line as given.
func (w *responseWriter) sendRawHeader(line string) error {
	if err := w.implicitOK(); err != nil {
		return err
	}
	if w.stage != StageSendingHeaders {
		return &StageError{Op: "sendHeader", Stage: w.stage}
	}
	return w.write([]byte(line + "\r\n"))
}

// sendBody ends the header block on first use, then writes p. Before the
// status line it implies 200.
func (w *responseWriter) sendBody(p []byte) error {
	if err := w.implicitOK(); err != nil {
		return err
	}
	switch w.stage {
	case StageSendingHeaders:
		w.stage = StageSendingBody
		if err := w.write([]byte("\r\n")); err != nil {
			return err
		}
	case StageSendingBody:
	default:
		return &StageError{Op: "sendBody", Stage: w.stage}
	}
	if len(p) == 0 {
		return nil
	}
	return w.write(p)
}

// complete closes the response. A response still in its header block gets
// its terminating blank line first.
func (w *responseWriter) complete() error {
	var err error
	if w.stage == StageSendingHeaders {
		err = w.sendBody(nil)
	}
	w.stage = StageCompleted
	return err
}

// write retries stalled writes a bounded number of times, then gives up on
// the connection for good.
func (w *responseWriter) write(p []byte) error {
	if w.err != nil {
		return w.err
	}
	retries := 0
	for len(p) > 0 {
		if w.timeout > 0 {
			w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
		}
		n, err := w.conn.Write(p)
		w.written += int64(n)
		p = p[n:]
		if err == nil {
			continue
		}
		if isTimeout(err) && retries < maxWriteRetries {
			retries++
			continue
		}
		w.err = fmt.Errorf("write: %w", err)
		return w.err
	}
	return nil
}
