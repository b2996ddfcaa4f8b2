package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cghttpd/config"
)

const (
	cgiGatewayInterface = "CGI/1.1"

	// cgiDrainDelay bounds reading output after the program has exited.
	cgiDrainDelay = 250 * time.Millisecond
)

// errCGITimeout is returned when the program does not start or finish in time.
var errCGITimeout = errors.New("cgi: timed out")

// cgiCommand is a resolved CGI invocation.
type cgiCommand struct {
	path string
	args []string
	dir  string
	env  []string
}

// resolveCGI finds the program to run for resource. It refuses any program
// outside the CGI directory, whatever the configured action says.
func resolveCGI(cfg config.Config, resource, mimeType string) (*cgiCommand, error) {
	bin := cfg.CGIBin()
	if bin == "" {
		return nil, errors.New("no CGI directory configured")
	}
	binAbs, err := filepath.Abs(bin)
	if err != nil {
		return nil, err
	}

	cmd := &cgiCommand{dir: filepath.Dir(resource)}
	if exe := cfg.MimeTypeCGI(mimeType); exe != "" {
		if filepath.IsAbs(exe) {
			cmd.path = filepath.Clean(exe)
		} else {
			cmd.path = filepath.Join(binAbs, exe)
		}
		cmd.args = []string{resource}
	} else {
		cmd.path = resource
	}
	if !within(binAbs, cmd.path) {
		return nil, fmt.Errorf("%s is outside the CGI directory %s", cmd.path, binAbs)
	}
	return cmd, nil
}

// cgiEnv builds the environment of a CGI program for the current request.
func (h *handler) cgiEnv(root, resource string) []string {
	req := h.req
	serverIP, serverPort := splitAddr(h.conn.LocalAddr())
	env := []string{
		"GATEWAY_INTERFACE=" + cgiGatewayInterface,
		"REMOTE_ADDR=" + h.remoteIP,
		"REMOTE_PORT=" + strconv.Itoa(h.remotePort),
		"REQUEST_METHOD=" + req.Method,
		"REQUEST_URI=" + req.URI.Raw,
		"SCRIPT_NAME=" + req.URI.Path,
		"SCRIPT_FILENAME=" + resource,
		"SERVER_ADDR=" + serverIP,
		"SERVER_PORT=" + strconv.Itoa(serverPort),
		"DOCUMENT_ROOT=" + root,
		"SERVER_PROTOCOL=HTTP/" + req.Version,
		"SERVER_SOFTWARE=" + ServerSoftware,
		fmt.Sprintf("SERVER_SIGNATURE=<address>%s Server at %s Port %d</address>", ServerSoftware, serverIP, serverPort),
		"SERVER_ADMIN=" + h.cfg.AdministratorEmail(),
		"REDIRECT_STATUS=200",
	}
	if req.URI.HasQuery {
		env = append(env, "QUERY_STRING="+req.URI.Query)
	}
	if v, ok := req.Header("Content-Type"); ok {
		env = append(env, "CONTENT_TYPE="+v)
	}
	if _, ok := req.Header("Content-Length"); ok {
		env = append(env, "CONTENT_LENGTH="+strconv.Itoa(len(req.Body)))
	}

	names := make([]string, 0, len(req.Headers))
	for name := range req.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		env = append(env, key+"="+req.Headers[name])
	}
	return env
}

// runCGI executes the CGI program for resource and relays its output.
func (h *handler) runCGI(root, resource, mimeType string) {
	cmd, err := resolveCGI(h.cfg, resource, mimeType)
	if err != nil {
		h.logf("W cgi refused: %v", err)
		h.sendError(StatusForbidden, "")
		return
	}
	cmd.env = h.cgiEnv(root, resource)

	timeout := h.cfg.CGITimeout()
	if timeout <= 0 {
		timeout = config.DefaultCGITimeout
	}
	output, err := h.execCGI(cmd, timeout)
	switch {
	case errors.Is(err, errCGITimeout):
		h.logf("W cgi %s: %v", cmd.path, err)
		h.sendError(StatusRequestTimeout, "The CGI program did not respond in time.")
		return
	case err != nil:
		h.logf("E cgi %s: %v", cmd.path, err)
		h.sendError(StatusInternalServerError, "")
		return
	}

	if err := h.sendCGIOutput(output); err != nil {
		h.logf("E sending cgi output: %v", err)
	}
}

// execCGI runs cmd with the request body on its standard input and returns
// its standard output. Starting and finishing are each bounded by timeout.
// The program has finished when it exits; output still held open by its own
// children is read for at most cgiDrainDelay more. A non-zero exit status is
// only logged.
func (h *handler) execCGI(c *cgiCommand, timeout time.Duration) ([]byte, error) {
	cmd := exec.Command(c.path, c.args...)
	cmd.Dir = c.dir
	cmd.Env = c.env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	closeReaders := func() {
		stdoutR.Close()
		stderrR.Close()
	}
	defer closeReaders()

	started := make(chan error, 1)
	go func() {
		err := cmd.Start()
		// the child holds its own copies
		stdoutW.Close()
		stderrW.Close()
		started <- err
	}()
	startTimer := time.NewTimer(timeout)
	select {
	case err := <-started:
		startTimer.Stop()
		if err != nil {
			stdin.Close()
			return nil, fmt.Errorf("start: %w", err)
		}
	case <-startTimer.C:
		go func() {
			if <-started == nil {
				cmd.Process.Kill()
				cmd.Wait()
			} else {
				stdin.Close()
			}
		}()
		return nil, fmt.Errorf("%w starting %s", errCGITimeout, c.path)
	}

	var out, errOut bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		if len(h.req.Body) == 0 {
			return nil
		}
		if _, err := stdin.Write(h.req.Body); err != nil {
			// the program need not read its input
			h.logf("W cgi stdin: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		_, err := io.Copy(&out, stdoutR)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&errOut, stderrR)
		return err
	})
	pumped := make(chan error, 1)
	go func() { pumped <- g.Wait() }()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	finishTimer := time.NewTimer(timeout)
	defer finishTimer.Stop()
	select {
	case err = <-exited:
	case <-finishTimer.C:
		cmd.Process.Kill()
		closeReaders()
		<-exited
		<-pumped
		return nil, fmt.Errorf("%w waiting for %s", errCGITimeout, c.path)
	}

	drainTimer := time.NewTimer(cgiDrainDelay)
	defer drainTimer.Stop()
	select {
	case ioErr := <-pumped:
		if err == nil {
			err = ioErr
		}
	case <-drainTimer.C:
		h.logf("W cgi %s left its output open after exiting", c.path)
		closeReaders()
		<-pumped
	}

	if errOut.Len() > 0 {
		h.logf("W cgi %s stderr: %s", c.path, strings.TrimSpace(errOut.String()))
	}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		h.logf("W cgi %s exited with status %d", c.path, exitErr.ExitCode())
	case err != nil:
		return nil, err
	}
	return out.Bytes(), nil
}

// splitCGIOutput cuts program output at the first blank line into the header
// block and the body. Output without a blank line is all headers.
func splitCGIOutput(out []byte) (header, body []byte) {
	end, sepLen := -1, 0
	if i := bytes.Index(out, []byte("\r\n\r\n")); i >= 0 {
		end, sepLen = i, 4
	}
	if i := bytes.Index(out, []byte("\n\n")); i >= 0 && (end < 0 || i < end) {
		end, sepLen = i, 2
	}
	if end < 0 {
		return out, nil
	}
	return out[:end], out[end+sepLen:]
}

// sendCGIOutput relays program output: the program's headers follow our
// status line and common headers, and its body is sent as is, with no
// content-coding.
func (h *handler) sendCGIOutput(out []byte) error {
	header, body := splitCGIOutput(out)
	if err := h.w.sendResponse(StatusOK, ""); err != nil {
		return err
	}
	if err := h.sendCommonHeaders(); err != nil {
		return err
	}
	for _, line := range strings.Split(string(header), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		if err := h.w.sendRawHeader(line); err != nil {
			return err
		}
	}
	if !h.checksummed() {
		return h.w.sendBody(nil)
	}
	return h.w.sendBody(body)
}
