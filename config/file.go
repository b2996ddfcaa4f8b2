package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk layout of a Store.
type fileConfig struct {
	ListenAddress      string `yaml:"listenAddress,omitempty"`
	Port               int    `yaml:"port,omitempty"`
	DocumentRoot       string `yaml:"documentRoot,omitempty"`
	AdministratorEmail string `yaml:"administratorEmail,omitempty"`

	Connections struct {
		Default   string            `yaml:"default,omitempty"`
		Addresses map[string]string `yaml:"addresses,omitempty"`
	} `yaml:"connections"`

	MimeTypes struct {
		Default       string              `yaml:"default,omitempty"`
		DefaultAction string              `yaml:"defaultAction,omitempty"`
		Extensions    map[string][]string `yaml:"extensions,omitempty"`
		Actions       map[string]string   `yaml:"actions,omitempty"`
		CGI           map[string]string   `yaml:"cgi,omitempty"`
	} `yaml:"mimeTypes"`

	CGI struct {
		Bin     string `yaml:"bin,omitempty"`
		Timeout string `yaml:"timeout,omitempty"`
	} `yaml:"cgi"`

	Listings struct {
		Allowed      *bool  `yaml:"allowed,omitempty"`
		IgnoreHidden *bool  `yaml:"ignoreHidden,omitempty"`
		SortOrder    string `yaml:"sortOrder,omitempty"`
	} `yaml:"listings"`
}

// Load reads a Store from the YAML file at path. Settings missing from the
// file keep their defaults.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Read decodes a Store from YAML.
func Read(r io.Reader) (*Store, error) {
	var fc fileConfig
	if err := yaml.NewDecoder(r).Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	s := NewStore()
	if err := s.apply(&fc); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) apply(fc *fileConfig) error {
	if fc.ListenAddress != "" {
		s.listenAddress = fc.ListenAddress
	}
	if fc.Port != 0 {
		if fc.Port < 0 || fc.Port > 65535 {
			return fmt.Errorf("port %d out of range", fc.Port)
		}
		s.port = fc.Port
	}
	if fc.DocumentRoot != "" {
		s.documentRoot = fc.DocumentRoot
	}
	s.adminEmail = fc.AdministratorEmail

	if fc.Connections.Default != "" {
		policy, err := ParseConnectionPolicy(fc.Connections.Default)
		if err != nil {
			return err
		}
		s.defaultPolicy = policy
	}
	for ip, name := range fc.Connections.Addresses {
		policy, err := ParseConnectionPolicy(name)
		if err != nil {
			return fmt.Errorf("address %s: %w", ip, err)
		}
		if policy != PolicyNone {
			s.ipPolicies[ip] = policy
		}
	}

	if fc.MimeTypes.Default != "" {
		s.defaultMimeType = fc.MimeTypes.Default
	}
	if fc.MimeTypes.DefaultAction != "" {
		action, err := ParseAction(fc.MimeTypes.DefaultAction)
		if err != nil {
			return err
		}
		s.defaultAction = action
	}
	for ext, types := range fc.MimeTypes.Extensions {
		s.SetFileExtensionMimeTypes(ext, types)
	}
	for mimeType, name := range fc.MimeTypes.Actions {
		action, err := ParseAction(name)
		if err != nil {
			return fmt.Errorf("media type %s: %w", mimeType, err)
		}
		s.actions[mimeType] = action
	}
	for mimeType, exe := range fc.MimeTypes.CGI {
		if exe != "" {
			s.cgis[mimeType] = exe
		}
	}

	s.cgiBin = fc.CGI.Bin
	if fc.CGI.Timeout != "" {
		d, err := time.ParseDuration(fc.CGI.Timeout)
		if err != nil {
			return fmt.Errorf("cgi timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("cgi timeout must be positive, got %s", d)
		}
		s.cgiTimeout = d
	}

	if fc.Listings.Allowed != nil {
		s.listingsAllowed = *fc.Listings.Allowed
	}
	if fc.Listings.IgnoreHidden != nil {
		s.ignoreHidden = *fc.Listings.IgnoreHidden
	}
	if fc.Listings.SortOrder != "" {
		order, err := ParseSortOrder(fc.Listings.SortOrder)
		if err != nil {
			return err
		}
		s.sortOrder = order
	}
	return nil
}

// Save writes the Store to path as YAML, replacing any existing file.
func (s *Store) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write encodes the Store as YAML.
func (s *Store) Write(w io.Writer) error {
	fc := s.snapshot()
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(fc); err != nil {
		return err
	}
	return enc.Close()
}

func (s *Store) snapshot() *fileConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fc := new(fileConfig)
	fc.ListenAddress = s.listenAddress
	fc.Port = s.port
	fc.DocumentRoot = s.documentRoot
	fc.AdministratorEmail = s.adminEmail

	fc.Connections.Default = s.defaultPolicy.String()
	if len(s.ipPolicies) > 0 {
		fc.Connections.Addresses = make(map[string]string, len(s.ipPolicies))
		for ip, policy := range s.ipPolicies {
			fc.Connections.Addresses[ip] = policy.String()
		}
	}

	fc.MimeTypes.Default = s.defaultMimeType
	fc.MimeTypes.DefaultAction = s.defaultAction.String()
	fc.MimeTypes.Extensions = make(map[string][]string, len(s.extensions))
	for ext, types := range s.extensions {
		fc.MimeTypes.Extensions[ext] = append([]string(nil), types...)
	}
	if len(s.actions) > 0 {
		fc.MimeTypes.Actions = make(map[string]string, len(s.actions))
		for mimeType, action := range s.actions {
			fc.MimeTypes.Actions[mimeType] = action.String()
		}
	}
	if len(s.cgis) > 0 {
		fc.MimeTypes.CGI = make(map[string]string, len(s.cgis))
		for mimeType, exe := range s.cgis {
			fc.MimeTypes.CGI[mimeType] = exe
		}
	}

	fc.CGI.Bin = s.cgiBin
	fc.CGI.Timeout = s.cgiTimeout.String()

	allowed, ignoreHidden := s.listingsAllowed, s.ignoreHidden
	fc.Listings.Allowed = &allowed
	fc.Listings.IgnoreHidden = &ignoreHidden
	fc.Listings.SortOrder = s.sortOrder.String()
	return fc
}
