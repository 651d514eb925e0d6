package protocol

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeAddress turns a URL or $address into canonical $address form:
// "https://Example.com/$blog/" becomes "$example.com/$blog".
// Only the host is case-folded; path segments keep their case.
func NormalizeAddress(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
		s = s[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		s = s[len("http://"):]
	}
	s = strings.TrimPrefix(s, "$")
	s = norm.NFC.String(s)
	s = strings.TrimRight(s, "/")

	host, rest := s, ""
	if i := strings.IndexByte(s, '/'); i >= 0 {
		host, rest = s[:i], s[i:]
	}
	return "$" + cases.Fold().String(host) + rest
}

// URLFor maps a $address back to a fetchable URL under scheme.
func URLFor(scheme, address string) string {
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimPrefix(NormalizeAddress(address), "$")
}

// Parent returns the enclosing $address, or "" for a root domain.
func Parent(address string) string {
	a := NormalizeAddress(address)
	i := strings.LastIndexByte(a, '/')
	if i < 0 {
		return ""
	}
	return a[:i]
}
