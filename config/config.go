// Package config holds the server configuration: document root, connection
// policies, media types and the actions bound to them.
package config

import (
	"fmt"
	"strings"
	"time"
)

// ConnectionPolicy decides whether a client address may talk to the server.
type ConnectionPolicy int

const (
	PolicyNone ConnectionPolicy = iota
	PolicyAccept
	PolicyReject
)

var policyNames = []string{"none", "accept", "reject"}

func (p ConnectionPolicy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("policy(%d)", int(p))
	}
	return policyNames[p]
}

func ParseConnectionPolicy(s string) (ConnectionPolicy, error) {
	for i, name := range policyNames {
		if strings.EqualFold(s, name) {
			return ConnectionPolicy(i), nil
		}
	}
	return PolicyNone, fmt.Errorf("unknown connection policy %q", s)
}

// Action is what the server does with a resource of a given media type.
type Action int

const (
	ActionIgnore Action = iota
	ActionServe
	ActionCGI
	ActionForbid
)

var actionNames = []string{"ignore", "serve", "cgi", "forbid"}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if strings.EqualFold(s, name) {
			return Action(i), nil
		}
	}
	return ActionIgnore, fmt.Errorf("unknown media type action %q", s)
}

// SortOrder orders the entries of a directory listing.
type SortOrder int

const (
	SortAscending SortOrder = iota
	SortDescending
	SortAscendingDirectoriesFirst
	SortDescendingDirectoriesFirst
	SortAscendingFilesFirst
	SortDescendingFilesFirst
)

var sortOrderNames = []string{
	"ascending",
	"descending",
	"ascending-directories-first",
	"descending-directories-first",
	"ascending-files-first",
	"descending-files-first",
}

func (o SortOrder) String() string {
	if o < 0 || int(o) >= len(sortOrderNames) {
		return fmt.Sprintf("sortorder(%d)", int(o))
	}
	return sortOrderNames[o]
}

func ParseSortOrder(s string) (SortOrder, error) {
	for i, name := range sortOrderNames {
		if strings.EqualFold(s, name) {
			return SortOrder(i), nil
		}
	}
	return SortAscending, fmt.Errorf("unknown sort order %q", s)
}

// Descending reports whether names sort from Z to A.
func (o SortOrder) Descending() bool {
	return o == SortDescending || o == SortDescendingDirectoriesFirst || o == SortDescendingFilesFirst
}

// DirectoriesFirst reports whether directories are grouped before files.
func (o SortOrder) DirectoriesFirst() bool {
	return o == SortAscendingDirectoriesFirst || o == SortDescendingDirectoriesFirst
}

// FilesFirst reports whether files are grouped before directories.
func (o SortOrder) FilesFirst() bool {
	return o == SortAscendingFilesFirst || o == SortDescendingFilesFirst
}

// Config is the read-only view of the configuration used while serving.
// Implementations must be safe to read from many connections at once.
type Config interface {
	ListenAddress() string
	Port() int
	DocumentRoot() string
	AdministratorEmail() string

	// IPAddressConnectionPolicy returns PolicyNone when ip has no entry.
	IPAddressConnectionPolicy(ip string) ConnectionPolicy
	DefaultConnectionPolicy() ConnectionPolicy

	// MimeTypesForFileExtension returns the media types registered for ext
	// (without the leading dot) in preference order.
	MimeTypesForFileExtension(ext string) []string
	DefaultMimeType() string
	// MimeTypeAction falls back to the default action for unknown types.
	MimeTypeAction(mimeType string) Action
	// MimeTypeCGI returns the executable bound to mimeType, or "" when the
	// resource itself is to be executed.
	MimeTypeCGI(mimeType string) string

	CGIBin() string
	CGITimeout() time.Duration

	DirectoryListingsAllowed() bool
	IgnoreHiddenFilesInDirectoryListings() bool
	DirectoryListingSortOrder() SortOrder
}
