package server

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"cghttpd/config"
)

// within reports whether path is root or lies below it. Both must be clean
// absolute paths.
func within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// resolvePath maps a decoded request path onto the document root. ok is false
// when the result would leave the root.
func resolvePath(root, requestPath string) (string, bool) {
	full := filepath.Join(root, filepath.FromSlash(requestPath))
	if !within(root, full) {
		return "", false
	}
	return full, true
}

// mediaTypes returns the candidate media types of a file, most preferred first.
func mediaTypes(cfg config.Config, file string) []string {
	ext := strings.TrimPrefix(filepath.Ext(file), ".")
	if ext != "" {
		if types := cfg.MimeTypesForFileExtension(ext); len(types) > 0 {
			return types
		}
	}
	if def := cfg.DefaultMimeType(); def != "" {
		return []string{def}
	}
	return nil
}

// dispatch resolves the request path and runs the action configured for the
// resource. Anything outside the document root is reported as not found so
// as not to reveal what exists there.
func (h *handler) dispatch() {
	requestPath, err := url.PathUnescape(h.req.URI.Path)
	if err != nil {
		h.sendError(StatusBadRequest, "The request path is not properly encoded.")
		return
	}
	root, err := filepath.Abs(h.cfg.DocumentRoot())
	if err != nil {
		h.logf("E document root: %v", err)
		h.sendError(StatusInternalServerError, "")
		return
	}
	resource, ok := resolvePath(root, requestPath)
	if !ok {
		h.logf("W %q escapes the document root", requestPath)
		h.sendError(StatusNotFound, "")
		return
	}

	info, err := os.Stat(resource)
	if err != nil {
		h.sendStatError(err)
		return
	}

	if info.IsDir() {
		if !h.cfg.DirectoryListingsAllowed() {
			h.emitAction(config.ActionForbid, resource)
			h.sendError(StatusForbidden, "Directory listings are not allowed.")
			return
		}
		h.emitAction(config.ActionServe, resource)
		h.listDirectory(root, resource, requestPath)
		return
	}

	for _, mimeType := range mediaTypes(h.cfg, resource) {
		switch action := h.cfg.MimeTypeAction(mimeType); action {
		case config.ActionIgnore:
			continue
		case config.ActionServe:
			h.emitAction(action, resource)
			h.serveFile(resource, mimeType)
			return
		case config.ActionCGI:
			h.emitAction(action, resource)
			h.runCGI(root, resource, mimeType)
			return
		case config.ActionForbid:
			h.emitAction(action, resource)
			h.sendError(StatusForbidden, "")
			return
		}
	}
	h.sendError(StatusNotFound, "")
}

func (h *handler) sendStatError(err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		h.sendError(StatusNotFound, "")
	case errors.Is(err, fs.ErrPermission):
		h.sendError(StatusForbidden, "")
	default:
		// ENOTDIR, ENAMETOOLONG and friends: the path names nothing we serve
		h.logf("W stat: %v", err)
		h.sendError(StatusNotFound, "")
	}
}
