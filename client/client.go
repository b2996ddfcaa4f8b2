package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// headerFlags collects repeated -H values.
type headerFlags []string

func (h *headerFlags) String() string     { return strings.Join(*h, ", ") }
func (h *headerFlags) Set(v string) error { *h = append(*h, v); return nil }

var (
	addr    string
	method  string
	uri     string
	data    string
	headers headerFlags
)

func main() {

	flag.StringVar(&addr, "a", "localhost:8080", "Server address")
	flag.StringVar(&method, "m", "GET", "Request method")
	flag.StringVar(&uri, "u", "/", "Request URI")
	flag.StringVar(&data, "data", "", "Request body")
	flag.Var(&headers, "H", "Request header, may be repeated")
	flag.Parse()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("Error: %v", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write(buildRequest(method, uri, addr, headers, []byte(data))); err != nil {
		log.Fatalf("Error: %v", err)
	}

	resp, err := readResponse(conn)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Fprintln(os.Stderr, resp.status)
	for _, h := range resp.headers {
		fmt.Fprintln(os.Stderr, h)
	}
	os.Stdout.Write(resp.body)
}

func buildRequest(method, uri, host string, headers []string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, uri)
	fmt.Fprintf(&b, "Host: %s\r\n", host)
	for _, h := range headers {
		fmt.Fprintf(&b, "%s\r\n", h)
	}
	if len(body) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	}
	b.WriteString("\r\n")
	b.Write(body)
	return b.Bytes()
}

type response struct {
	status  string
	headers []string
	body    []byte // decoded
}

// readResponse reads a response up to the end of the connection and undoes
// its content-coding.
func readResponse(r io.Reader) (*response, error) {
	br := bufio.NewReader(r)
	resp := &response{}
	encoding, length := "", -1
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if resp.status == "" {
			resp.status = line
			continue
		}
		resp.headers = append(resp.headers, line)
		name, value, _ := strings.Cut(line, ":")
		value = strings.TrimSpace(value)
		switch strings.ToLower(name) {
		case "content-encoding":
			encoding = strings.ToLower(value)
		case "content-length":
			if n, err := strconv.Atoi(value); err == nil {
				length = n
			}
		}
	}

	var body io.Reader = br
	if length >= 0 {
		body = io.LimitReader(br, int64(length))
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if resp.body, err = decode(encoding, raw); err != nil {
		return nil, fmt.Errorf("decoding %s body: %w", encoding, err)
	}
	return resp, nil
}

func decode(encoding string, raw []byte) ([]byte, error) {
	var rc io.ReadCloser
	var err error
	switch encoding {
	case "", "identity":
		return raw, nil
	case "gzip":
		rc, err = gzip.NewReader(bytes.NewReader(raw))
	case "deflate":
		rc, err = zlib.NewReader(bytes.NewReader(raw))
	default:
		return nil, errors.New("unknown content-coding")
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
