package server

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"net"
	"strconv"
	"time"

	"cghttpd/coding"
	"cghttpd/config"
)

// httpDateFormat is the IMF-fixdate layout of RFC 9110.
const httpDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

func httpDate(t time.Time) string { return t.UTC().Format(httpDateFormat) }

// handler serves the single request of one connection. It owns the
// connection and is discarded when run returns.
type handler struct {
	srv  *Server
	cfg  config.Config
	conn net.Conn
	w    *responseWriter

	remoteIP   string
	remotePort int

	req      *Request
	encoding string // negotiated content-coding
}

func newHandler(srv *Server, conn net.Conn) *handler {
	ip, port := splitAddr(conn.RemoteAddr())
	return &handler{
		srv:        srv,
		cfg:        srv.cfg,
		conn:       conn,
		w:          newResponseWriter(conn, srv.WriteTimeout),
		remoteIP:   ip,
		remotePort: port,
		encoding:   coding.Identity,
	}
}

func (h *handler) logf(format string, args ...any) {
	h.srv.logf("%s:%d "+format, append([]any{h.remoteIP, h.remotePort}, args...)...)
}

func (h *handler) run() {
	defer h.conn.Close()

	if !h.admit() {
		return
	}

	req, err := newRequestReader(h.conn, h.srv.ReadTimeout, h.logf).readRequest()
	if err != nil {
		var re *requestError
		if !errors.As(err, &re) {
			re = &requestError{status: StatusInternalServerError, err: err}
		}
		h.logf("E %v", re)
		h.sendError(re.status, "")
		h.finish()
		return
	}
	h.req = req
	h.logf("I %s %s HTTP/%s", req.Method, req.URI.Raw, req.Version)

	h.handle()
	h.finish()
}

// admit applies the connection policy for the client address.
func (h *handler) admit() bool {
	policy := h.cfg.IPAddressConnectionPolicy(h.remoteIP)
	if policy == config.PolicyNone {
		policy = h.cfg.DefaultConnectionPolicy()
	}
	if policy == config.PolicyNone {
		policy = config.PolicyAccept
	}
	h.srv.emit(Event{
		Kind:       EventConnectionPolicy,
		RemoteIP:   h.remoteIP,
		RemotePort: h.remotePort,
		Policy:     policy,
	})
	if policy == config.PolicyReject {
		h.logf("I connection rejected")
		return false
	}
	return true
}

func (h *handler) handle() {
	switch h.req.Method {
	case "GET", "HEAD", "POST":
	default:
		h.sendError(StatusNotImplemented, fmt.Sprintf("The %s method is not supported.", h.req.Method))
		return
	}

	if accept, ok := h.req.Header("Accept-Encoding"); ok {
		name, err := coding.Negotiate(accept)
		if err != nil {
			h.logf("W negotiation failed for %q", accept)
			h.sendError(StatusNotAcceptable, "")
			return
		}
		h.encoding = name
	}

	h.dispatch()
}

func (h *handler) finish() {
	if err := h.w.complete(); err != nil {
		h.logf("E %v", err)
	}
	if h.w.err != nil {
		h.logf("E response abandoned: %v", h.w.err)
	}
}

// withBody reports whether the response carries a body. HEAD never does.
func (h *handler) withBody() bool {
	return h.req == nil || h.req.Method != "HEAD"
}

func (h *handler) emitAction(action config.Action, resource string) {
	h.srv.emit(Event{
		Kind:       EventAction,
		RemoteIP:   h.remoteIP,
		RemotePort: h.remotePort,
		Action:     action,
		Resource:   resource,
	})
}

func (h *handler) sendCommonHeaders() error {
	if err := h.w.sendHeader("Date", httpDate(time.Now())); err != nil {
		return err
	}
	if err := h.w.sendHeader("Server", ServerSoftware); err != nil {
		return err
	}
	return h.w.sendHeader("Connection", "close")
}

// sendError sends a complete HTML error response. message defaults to the
// status' standard explanation.
func (h *handler) sendError(status int, message string) {
	if message == "" {
		message = StatusMessage(status)
	}
	reason := StatusReason(status)
	page := fmt.Sprintf("<!DOCTYPE html>\n<html><head><title>%d %s</title></head>\n"+
		"<body><h1>%s</h1>\n<p>%s</p>\n<hr><address>%s</address></body></html>\n",
		status, html.EscapeString(reason), html.EscapeString(reason),
		html.EscapeString(message), ServerSoftware)

	err := h.w.sendResponse(status, reason)
	if err == nil {
		err = h.sendCommonHeaders()
	}
	if err == nil {
		err = h.w.sendHeader("Content-Type", "text/html; charset=utf-8")
	}
	if err == nil {
		err = h.w.sendHeader("Content-Length", strconv.Itoa(len(page)))
	}
	if err == nil {
		if h.withBody() {
			err = h.w.sendBody([]byte(page))
		} else {
			err = h.w.sendBody(nil)
		}
	}
	if err != nil {
		h.logf("E sending %d: %v", status, err)
	}
}

// sendEntity sends a 200 response whose whole body is in memory, encoded with
// the negotiated coding. Content-MD5 covers the bytes on the wire; it is sent
// when withSum is set, for HEAD too. Only GET and POST get the body.
func (h *handler) sendEntity(contentType string, body []byte, withSum bool) error {
	enc := coding.New(h.encoding)
	encoded, err := coding.Encode(enc, body)
	if err != nil {
		return err
	}
	if err := h.w.sendResponse(StatusOK, ""); err != nil {
		return err
	}
	if err := h.sendCommonHeaders(); err != nil {
		return err
	}
	if err := h.w.sendHeader("Content-Type", contentType); err != nil {
		return err
	}
	for _, hdr := range enc.Headers() {
		if err := h.w.sendHeader(hdr.Name, hdr.Value); err != nil {
			return err
		}
	}
	if err := h.w.sendHeader("Content-Length", strconv.Itoa(len(encoded))); err != nil {
		return err
	}
	if withSum {
		sum := md5.Sum(encoded)
		if err := h.w.sendHeader("Content-MD5", hex.EncodeToString(sum[:])); err != nil {
			return err
		}
	}
	h.logf("I sending %d bytes of %s as %s", len(encoded), contentType, enc.Name())
	if !h.checksummed() {
		return h.w.sendBody(nil)
	}
	return h.w.sendBody(encoded)
}

// checksummed reports whether the body and its Content-MD5 are sent: only
// GET and POST carry them.
func (h *handler) checksummed() bool {
	return h.req.Method == "GET" || h.req.Method == "POST"
}
