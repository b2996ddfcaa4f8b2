package config

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultListenAddress = "0.0.0.0"
	DefaultPort          = 8080
	DefaultCGITimeout    = 30 * time.Second
	DefaultMimeType      = "application/octet-stream"
)

// Store is an in-memory Config. The setters are for whoever administers the
// server; the engine only uses the Config methods.
type Store struct {
	mu sync.RWMutex

	listenAddress string
	port          int
	documentRoot  string
	adminEmail    string

	defaultPolicy ConnectionPolicy
	ipPolicies    map[string]ConnectionPolicy

	defaultMimeType string
	defaultAction   Action
	extensions      map[string][]string // ext -> media types
	actions         map[string]Action   // media type -> action
	cgis            map[string]string   // media type -> executable

	cgiBin     string
	cgiTimeout time.Duration

	listingsAllowed bool
	ignoreHidden    bool
	sortOrder       SortOrder
}

var _ Config = (*Store)(nil)

// NewStore returns a Store holding the default configuration.
func NewStore() *Store {
	s := &Store{
		listenAddress:   DefaultListenAddress,
		port:            DefaultPort,
		documentRoot:    ".",
		defaultPolicy:   PolicyAccept,
		ipPolicies:      make(map[string]ConnectionPolicy),
		defaultMimeType: DefaultMimeType,
		defaultAction:   ActionServe,
		extensions:      make(map[string][]string, len(defaultMimeTypes)),
		actions:         make(map[string]Action),
		cgis:            make(map[string]string),
		cgiTimeout:      DefaultCGITimeout,
		listingsAllowed: true,
		ignoreHidden:    true,
		sortOrder:       SortAscending,
	}
	for ext, mimeType := range defaultMimeTypes {
		s.extensions[ext] = []string{mimeType}
	}
	return s
}

func (s *Store) ListenAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddress
}

func (s *Store) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

func (s *Store) DocumentRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documentRoot
}

func (s *Store) AdministratorEmail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adminEmail
}

func (s *Store) IPAddressConnectionPolicy(ip string) ConnectionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ipPolicies[ip]
}

func (s *Store) DefaultConnectionPolicy() ConnectionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultPolicy
}

func (s *Store) MimeTypesForFileExtension(ext string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := s.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if len(types) == 0 {
		return nil
	}
	return append([]string(nil), types...)
}

func (s *Store) DefaultMimeType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultMimeType
}

func (s *Store) MimeTypeAction(mimeType string) Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if action, ok := s.actions[mimeType]; ok {
		return action
	}
	return s.defaultAction
}

func (s *Store) MimeTypeCGI(mimeType string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cgis[mimeType]
}

func (s *Store) CGIBin() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cgiBin
}

func (s *Store) CGITimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cgiTimeout
}

func (s *Store) DirectoryListingsAllowed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listingsAllowed
}

func (s *Store) IgnoreHiddenFilesInDirectoryListings() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ignoreHidden
}

func (s *Store) DirectoryListingSortOrder() SortOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortOrder
}

// DefaultAction is the action applied to media types without one of their own.
func (s *Store) DefaultAction() Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultAction
}

func (s *Store) SetListenAddress(addr string) {
	s.mu.Lock()
	s.listenAddress = addr
	s.mu.Unlock()
}

func (s *Store) SetPort(port int) {
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
}

func (s *Store) SetDocumentRoot(root string) {
	s.mu.Lock()
	s.documentRoot = root
	s.mu.Unlock()
}

func (s *Store) SetAdministratorEmail(email string) {
	s.mu.Lock()
	s.adminEmail = email
	s.mu.Unlock()
}

// SetIPAddressConnectionPolicy binds policy to ip. PolicyNone removes the entry.
func (s *Store) SetIPAddressConnectionPolicy(ip string, policy ConnectionPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if policy == PolicyNone {
		delete(s.ipPolicies, ip)
		return
	}
	s.ipPolicies[ip] = policy
}

func (s *Store) SetDefaultConnectionPolicy(policy ConnectionPolicy) {
	s.mu.Lock()
	s.defaultPolicy = policy
	s.mu.Unlock()
}

// AddFileExtensionMimeType appends mimeType to the list registered for ext.
// A type already in the list is not added twice.
func (s *Store) AddFileExtensionMimeType(ext, mimeType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, t := range s.extensions[ext] {
		if t == mimeType {
			return
		}
	}
	s.extensions[ext] = append(s.extensions[ext], mimeType)
}

// SetFileExtensionMimeTypes replaces the list registered for ext. An empty
// list removes the extension.
func (s *Store) SetFileExtensionMimeTypes(ext string, mimeTypes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if len(mimeTypes) == 0 {
		delete(s.extensions, ext)
		return
	}
	s.extensions[ext] = append([]string(nil), mimeTypes...)
}

func (s *Store) SetDefaultMimeType(mimeType string) {
	s.mu.Lock()
	s.defaultMimeType = mimeType
	s.mu.Unlock()
}

func (s *Store) SetMimeTypeAction(mimeType string, action Action) {
	s.mu.Lock()
	s.actions[mimeType] = action
	s.mu.Unlock()
}

func (s *Store) SetDefaultAction(action Action) {
	s.mu.Lock()
	s.defaultAction = action
	s.mu.Unlock()
}

// SetMimeTypeCGI binds an executable to mimeType. An empty exe means the
// resource is run directly.
func (s *Store) SetMimeTypeCGI(mimeType, exe string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exe == "" {
		delete(s.cgis, mimeType)
		return
	}
	s.cgis[mimeType] = exe
}

func (s *Store) SetCGIBin(dir string) {
	s.mu.Lock()
	s.cgiBin = dir
	s.mu.Unlock()
}

func (s *Store) SetCGITimeout(d time.Duration) {
	s.mu.Lock()
	s.cgiTimeout = d
	s.mu.Unlock()
}

func (s *Store) SetDirectoryListingsAllowed(allowed bool) {
	s.mu.Lock()
	s.listingsAllowed = allowed
	s.mu.Unlock()
}

func (s *Store) SetIgnoreHiddenFilesInDirectoryListings(ignore bool) {
	s.mu.Lock()
	s.ignoreHidden = ignore
	s.mu.Unlock()
}

func (s *Store) SetDirectoryListingSortOrder(order SortOrder) {
	s.mu.Lock()
	s.sortOrder = order
	s.mu.Unlock()
}
