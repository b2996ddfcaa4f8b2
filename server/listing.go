package server

import (
	"fmt"
	"html"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"cghttpd/config"
)

// maxSymlinkHops bounds how many links are followed to find the type of a
// listed entry.
const maxSymlinkHops = 16

// Icon names, used as CSS classes on listing entries.
const (
	iconParent     = "parent"
	iconDirectory  = "dir"
	iconBrokenLink = "link-broken"
	iconUnknown    = "unknown"
)

// suffixIcons overrides the per-category icon for some extensions.
var suffixIcons = map[string]string{
	"7z":   "archive",
	"gz":   "archive",
	"rar":  "archive",
	"tar":  "archive",
	"zip":  "archive",
	"htm":  "html",
	"html": "html",
	"pdf":  "pdf",
}

type listingEntry struct {
	name    string
	isDir   bool // of the link target for symbolic links
	size    int64
	modTime time.Time
	icon    string
}

// listDirectory sends an HTML listing of dir. requestPath is the decoded
// request path that named it.
func (h *handler) listDirectory(root, dir, requestPath string) {
	entries, err := readListing(h.cfg, dir)
	if err != nil {
		h.logf("E listing %s: %v", dir, err)
		h.sendStatError(err)
		return
	}
	sortListing(entries, h.cfg.DirectoryListingSortOrder())
	page := renderListing(requestPath, dir != root, entries)
	if err := h.sendEntity("text/html", page, true); err != nil {
		h.logf("E sending listing of %s: %v", dir, err)
	}
}

func readListing(cfg config.Config, dir string) ([]listingEntry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ignoreHidden := cfg.IgnoreHiddenFilesInDirectoryListings()
	entries := make([]listingEntry, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if ignoreHidden && strings.HasPrefix(name, ".") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue // removed since ReadDir
		}
		e := listingEntry{name: name, size: info.Size(), modTime: info.ModTime()}
		target := info
		if info.Mode()&fs.ModeSymlink != 0 {
			target = followLink(filepath.Join(dir, name))
		}
		switch {
		case target == nil:
			e.icon = iconBrokenLink
		case target.IsDir():
			e.isDir = true
			e.icon = iconDirectory
		default:
			e.icon = fileIcon(cfg, name)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// followLink resolves a chain of symbolic links and returns the info of the
// final target, or nil if the chain is broken or longer than maxSymlinkHops.
func followLink(link string) fs.FileInfo {
	current := link
	for hop := 0; hop < maxSymlinkHops; hop++ {
		dest, err := os.Readlink(current)
		if err != nil {
			return nil
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(current), dest)
		}
		info, err := os.Lstat(dest)
		if err != nil {
			return nil
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			return info
		}
		current = dest
	}
	return nil
}

// fileIcon picks an icon from the file suffix, else from the category of its
// media type.
func fileIcon(cfg config.Config, name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if icon, ok := suffixIcons[ext]; ok {
		return icon
	}
	types := mediaTypes(cfg, name)
	if len(types) == 0 {
		return iconUnknown
	}
	category, _, _ := strings.Cut(types[0], "/")
	switch category {
	case "text", "image", "audio", "video", "application", "font":
		return category
	}
	return iconUnknown
}

func sortListing(entries []listingEntry, order config.SortOrder) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.isDir != b.isDir {
			if order.DirectoriesFirst() {
				return a.isDir
			}
			if order.FilesFirst() {
				return b.isDir
			}
		}
		if order.Descending() {
			return nameLess(b.name, a.name)
		}
		return nameLess(a.name, b.name)
	})
}

// nameLess compares case-insensitively, falling back to bytes for names
// equal but for case.
func nameLess(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// escapeURLPath percent-encodes p for use in an href.
func escapeURLPath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

func renderListing(requestPath string, withParent bool, entries []listingEntry) []byte {
	base := requestPath
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	title := html.EscapeString(base)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>Index of %s</title>\n", title)
	b.WriteString("<style>li{list-style:none}li:before{display:inline-block;width:7em;content:\"[\" attr(class) \"]\"}" +
		".size,.date{color:#666;margin-left:1em}</style>\n")
	fmt.Fprintf(&b, "</head><body>\n<h1>Index of %s</h1>\n<ul>\n", title)

	if withParent {
		parent := path.Dir(strings.TrimSuffix(base, "/"))
		if !strings.HasSuffix(parent, "/") {
			parent += "/"
		}
		fmt.Fprintf(&b, "<li class=\"%s\"><a href=\"%s\">Parent Directory</a></li>\n",
			iconParent, html.EscapeString(escapeURLPath(parent)))
	}
	for _, e := range entries {
		href := base + e.name
		label := e.name
		if e.isDir {
			href += "/"
			label += "/"
		}
		fmt.Fprintf(&b, "<li class=\"%s\"><a href=\"%s\">%s</a>", e.icon,
			html.EscapeString(escapeURLPath(href)), html.EscapeString(label))
		if !e.isDir {
			fmt.Fprintf(&b, "<span class=\"size\">%s</span>", strconv.FormatInt(e.size, 10))
		}
		fmt.Fprintf(&b, "<span class=\"date\">%s</span></li>\n", e.modTime.UTC().Format("2006-01-02 15:04"))
	}

	fmt.Fprintf(&b, "</ul>\n<hr><address>%s</address>\n</body></html>\n", ServerSoftware)
	return []byte(b.String())
}
