package server

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"strconv"

	"cghttpd/coding"
)

const (
	// maxBufferedEncode is the largest file encoded in memory so that its
	// encoded length and checksum can be sent up front. Larger files are
	// streamed and delimited by closing the connection.
	maxBufferedEncode = 4 << 20

	copyBufferSize = 32 << 10
)

// serveFile sends a regular file as mimeType through the negotiated coding.
func (h *handler) serveFile(path, mimeType string) {
	f, err := os.Open(path)
	if err != nil {
		h.sendStatError(err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.sendStatError(err)
		return
	}
	size := info.Size()

	switch {
	case h.encoding == coding.Identity:
		err = h.sendIdentityFile(f, mimeType, size)
	case size <= maxBufferedEncode:
		var data []byte
		if data, err = io.ReadAll(f); err == nil {
			err = h.sendEntity(mimeType, data, h.checksummed())
		}
	default:
		err = h.streamEncodedFile(f, mimeType)
	}
	if err != nil {
		h.logf("E serving %s: %v", path, err)
		if h.w.stage == StageSendingResponse {
			h.sendError(StatusInternalServerError, "")
		}
	}
}

func (h *handler) sendIdentityFile(f *os.File, mimeType string, size int64) error {
	var sum string
	if h.checksummed() {
		digest := md5.New()
		if _, err := io.Copy(digest, f); err != nil {
			return err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		sum = hex.EncodeToString(digest.Sum(nil))
	}

	if err := h.w.sendResponse(StatusOK, ""); err != nil {
		return err
	}
	if err := h.sendCommonHeaders(); err != nil {
		return err
	}
	if err := h.w.sendHeader("Content-Type", mimeType); err != nil {
		return err
	}
	if err := h.w.sendHeader("Content-Length", strconv.FormatInt(size, 10)); err != nil {
		return err
	}
	if !h.checksummed() {
		return h.w.sendBody(nil)
	}
	if err := h.w.sendHeader("Content-MD5", sum); err != nil {
		return err
	}
	if err := h.w.sendBody(nil); err != nil {
		return err
	}
	return h.copyBody(f, func(p []byte) ([]byte, error) { return p, nil })
}

func (h *handler) streamEncodedFile(f *os.File, mimeType string) error {
	enc := coding.New(h.encoding)
	h.logf("I streaming %s as %s", f.Name(), enc.Name())
	if err := h.w.sendResponse(StatusOK, ""); err != nil {
		return err
	}
	if err := h.sendCommonHeaders(); err != nil {
		return err
	}
	if err := h.w.sendHeader("Content-Type", mimeType); err != nil {
		return err
	}
	for _, hdr := range enc.Headers() {
		if err := h.w.sendHeader(hdr.Name, hdr.Value); err != nil {
			return err
		}
	}
	if err := h.w.sendBody(nil); err != nil {
		return err
	}
	if !h.checksummed() {
		return nil
	}

	head, err := enc.Start()
	if err != nil {
		return err
	}
	if err := h.w.sendBody(head); err != nil {
		return err
	}
	if err := h.copyBody(f, enc.Encode); err != nil {
		return err
	}
	tail, err := enc.Finish()
	if err != nil {
		return err
	}
	return h.w.sendBody(tail)
}

// copyBody pushes the rest of r through transform into the body.
func (h *handler) copyBody(r io.Reader, transform func([]byte) ([]byte, error)) error {
	buf := make([]byte, copyBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out, terr := transform(buf[:n])
			if terr != nil {
				return terr
			}
			if werr := h.w.sendBody(out); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
