package server

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// maxConsecutiveTimeouts read timeouts in a row fail the request; any
	// successful read resets the count.
	maxConsecutiveTimeouts = 3

	maxLineLength   = 8 << 10
	maxHeaders      = 100
	maxBodySize     = 64 << 20
	maxLeadingLines = 4
	bodyChunkSize   = 32 << 10
)

var (
	requestLinePattern = regexp.MustCompile(`^(OPTIONS|GET|HEAD|POST|PUT|DELETE|TRACE|CONNECT) (\S+) HTTP/(\S+)$`)
	headerPattern      = regexp.MustCompile(`^([A-Za-z0-9-]+):[ \t]*(.*?)[ \t]*$`)
)

// URI is the request target split into its parts. Path is still
// percent-encoded.
type URI struct {
	Raw      string
	Path     string
	Query    string
	Fragment string
	HasQuery bool
}

func parseURI(raw string) URI {
	u := URI{Raw: raw}
	rest := raw
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		u.Fragment = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		u.Query = rest[i+1:]
		u.HasQuery = true
		rest = rest[:i]
	}
	u.Path = rest
	return u
}

// Request is a parsed HTTP request. Header names are lower case; when a
// header repeats, the last one wins.
type Request struct {
	Method  string
	URI     URI
	Version string // "1.0" or "1.1"
	Headers map[string]string
	Body    []byte
}

// Header looks a header up by name, ignoring case.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.Headers[strings.ToLower(name)]
	return v, ok
}

// requestError is a failure to read a request, with the status to answer.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%d %s: %v", e.status, StatusReason(e.status), e.err)
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{status: StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// requestReader reads one request from a connection, tolerating up to
// maxConsecutiveTimeouts stalled reads in a row.
type requestReader struct {
	conn    net.Conn
	br      *bufio.Reader
	timeout time.Duration
	logf    func(format string, args ...any)
}

func newRequestReader(conn net.Conn, timeout time.Duration, logf func(string, ...any)) *requestReader {
	return &requestReader{
		conn:    conn,
		br:      bufio.NewReader(conn),
		timeout: timeout,
		logf:    logf,
	}
}

func (r *requestReader) armDeadline() {
	if r.timeout > 0 {
		r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func timedOut(what string) error {
	return &requestError{
		status: StatusRequestTimeout,
		err:    fmt.Errorf("%d consecutive timeouts reading %s", maxConsecutiveTimeouts, what),
	}
}

// readLine returns the next line without its terminator.
func (r *requestReader) readLine() (string, error) {
	var line []byte
	timeouts := 0
	for {
		r.armDeadline()
		chunk, err := r.br.ReadSlice('\n')
		if len(chunk) > 0 {
			timeouts = 0
			line = append(line, chunk...)
		}
		if len(line) > maxLineLength {
			return "", badRequest("line longer than %d bytes", maxLineLength)
		}
		switch {
		case err == nil:
			line = line[:len(line)-1]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return string(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
		case isTimeout(err):
			if timeouts++; timeouts >= maxConsecutiveTimeouts {
				return "", timedOut("line")
			}
		default:
			return "", badRequest("reading line: %w", err)
		}
	}
}

// readRequest reads the request line, the headers and the body.
func (r *requestReader) readRequest() (*Request, error) {
	var line string
	var err error
	for i := 0; ; i++ {
		if line, err = r.readLine(); err != nil {
			return nil, err
		}
		if line != "" || i >= maxLeadingLines {
			break
		}
	}

	m := requestLinePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, badRequest("malformed request line %q", line)
	}
	req := &Request{
		Method:  m[1],
		URI:     parseURI(m[2]),
		Version: m[3],
		Headers: make(map[string]string),
	}

	if err := r.readHeaders(req); err != nil {
		return nil, err
	}
	if req.Version != "1.0" && req.Version != "1.1" {
		return nil, &requestError{
			status: StatusHTTPVersionNotSupported,
			err:    fmt.Errorf("HTTP/%s", req.Version),
		}
	}

	length, err := contentLength(req)
	if err != nil {
		return nil, err
	}
	if req.Body, err = r.readBody(length); err != nil {
		return nil, err
	}
	if n := r.br.Buffered(); n > 0 {
		r.logf("W ignoring %d bytes beyond Content-Length %d", n, length)
	}

	if sum, ok := req.Headers["content-md5"]; ok {
		digest := md5.Sum(req.Body)
		if !strings.EqualFold(strings.TrimSpace(sum), hex.EncodeToString(digest[:])) {
			return nil, badRequest("Content-MD5 mismatch")
		}
	}
	return req, nil
}

func (r *requestReader) readHeaders(req *Request) error {
	for n := 0; ; n++ {
		line, err := r.readLine()
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		if n >= maxHeaders {
			return badRequest("more than %d headers", maxHeaders)
		}
		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			return badRequest("malformed header %q", line)
		}
		req.Headers[strings.ToLower(m[1])] = m[2]
	}
}

// contentLength returns the declared body length. A request without
// Content-Length has no body.
func contentLength(req *Request) (int, error) {
	v, ok := req.Headers["content-length"]
	if !ok {
		return 0, nil
	}
	digits := strings.TrimSpace(v)
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, badRequest("invalid Content-Length %q", v)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, badRequest("invalid Content-Length %q", v)
	}
	if n > maxBodySize {
		return 0, &requestError{
			status: StatusRequestEntityTooLarge,
			err:    fmt.Errorf("Content-Length %d exceeds %d", n, maxBodySize),
		}
	}
	return int(n), nil
}

// readBody reads exactly n bytes. The buffer grows with what arrives, not
// with what was declared.
func (r *requestReader) readBody(n int) ([]byte, error) {
	var body bytes.Buffer
	chunk := make([]byte, min(n, bodyChunkSize))
	got, timeouts := 0, 0
	for got < n {
		r.armDeadline()
		m, err := r.br.Read(chunk[:min(n-got, len(chunk))])
		if m > 0 {
			timeouts = 0
			got += m
			body.Write(chunk[:m])
		}
		if err == nil {
			continue
		}
		switch {
		case isTimeout(err):
			if timeouts++; timeouts >= maxConsecutiveTimeouts {
				return nil, timedOut("body")
			}
		case errors.Is(err, io.EOF):
			if got < n {
				return nil, badRequest("body ended after %d of %d bytes", got, n)
			}
		default:
			return nil, badRequest("reading body: %w", err)
		}
	}
	return body.Bytes(), nil
}
