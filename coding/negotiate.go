package coding

import (
	"errors"
	"sort"
	"strings"
)

// ErrNotAcceptable is returned when no supported coding satisfies the client.
var ErrNotAcceptable = errors.New("coding: no acceptable content-coding")

// Candidate is one entry of an Accept-Encoding header. Q is the q-value in
// thousandths, 0 to 1000.
type Candidate struct {
	Name string
	Q    int
}

// starPreference is the order in which "*" is satisfied.
var starPreference = []string{Gzip, Deflate, Identity}

// ParseAcceptEncoding splits an Accept-Encoding value into candidates, in
// header order. Entries with a malformed q-value are dropped.
func ParseAcceptEncoding(value string) []Candidate {
	var candidates []Candidate
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, params, _ := strings.Cut(item, ";")
		c := Candidate{Name: strings.ToLower(strings.TrimSpace(name)), Q: 1000}
		if c.Name == "" {
			continue
		}
		ok := true
		for _, param := range strings.Split(params, ";") {
			key, val, found := strings.Cut(strings.TrimSpace(param), "=")
			if !found || !strings.EqualFold(strings.TrimSpace(key), "q") {
				continue
			}
			if c.Q, ok = parseQValue(strings.TrimSpace(val)); !ok {
				break
			}
		}
		if ok {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// parseQValue parses "0", "0.5", "1.000" and friends into thousandths.
func parseQValue(s string) (int, bool) {
	if s == "" || len(s) > 5 {
		return 0, false
	}
	whole := s[0]
	if whole != '0' && whole != '1' {
		return 0, false
	}
	q := int(whole-'0') * 1000
	if len(s) == 1 {
		return q, true
	}
	if s[1] != '.' {
		return 0, false
	}
	scale := 100
	for i := 2; i < len(s); i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return 0, false
		}
		q += int(d-'0') * scale
		scale /= 10
	}
	if q > 1000 {
		return 0, false
	}
	return q, true
}

// Negotiate picks the coding for an Accept-Encoding header value. An empty
// result with ErrNotAcceptable means the client refused every coding we have,
// identity included.
func Negotiate(acceptEncoding string) (string, error) {
	return Select(ParseAcceptEncoding(acceptEncoding))
}

// Select runs the selection over already parsed candidates. candidates is
// sorted in place, stable, by descending q.
func Select(candidates []Candidate) (string, error) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Q > candidates[j].Q
	})

	identityForbidden := false
	for _, c := range candidates {
		if c.Q == 0 {
			// sorted: everything from here on is q=0 too
			if c.Name == "*" || c.Name == Identity {
				identityForbidden = true
				break
			}
			continue
		}
		if Supported(c.Name) {
			return c.Name, nil
		}
		if c.Name == "*" {
			for _, name := range starPreference {
				if !forbidden(candidates, name) {
					return name, nil
				}
			}
		}
	}

	if !identityForbidden {
		return Identity, nil
	}
	return "", ErrNotAcceptable
}

func forbidden(candidates []Candidate, name string) bool {
	for _, c := range candidates {
		if c.Q == 0 && c.Name == name {
			return true
		}
	}
	return false
}
