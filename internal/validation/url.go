package validation

import (
	stderrors "errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// Remote source failures.
var (
	ErrInvalidURL     = stderrors.New("invalid URL")
	ErrHostNotAllowed = stderrors.New("host is not allowed")
)

// ValidateURL parses rawURL and requires an http or https URL with a host
// and without credentials.
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q (only http/https allowed)", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: credentials are not allowed", ErrInvalidURL)
	}
	return u, nil
}

// ValidateRemoteURL is ValidateURL plus an allow list of hosts. An entry
// with a port must match host:port exactly; an entry without one matches
// the hostname on any port. Comparison is case-insensitive.
func ValidateRemoteURL(rawURL string, allowedHosts []string) (*url.URL, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	host := strings.ToLower(u.Hostname())
	hostPort := strings.ToLower(u.Host)
	for _, entry := range allowedHosts {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(entry); err == nil {
			if entry == hostPort {
				return u, nil
			}
			continue
		}
		if entry == host {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Host)
}

// IsHostName reports whether s names a host, optionally with a port, and
// nothing else: no scheme, path, query or credentials.
func IsHostName(s string) bool {
	if s == "" || strings.ContainsAny(s, "/?#@ \t") || strings.Contains(s, "://") {
		return false
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	return s != ""
}

// ValidateOrigin checks a browser Origin header. It is allowed when it is
// listed verbatim or when its host is one of loopbackHosts on port.
func ValidateOrigin(origin string, allowedOrigins, loopbackHosts []string, port string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}
	if slices.Contains(allowedOrigins, origin) {
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme %q: only http and https are allowed", u.Scheme)
	}
	for _, host := range loopbackHosts {
		if host != "" && u.Host == net.JoinHostPort(host, port) {
			return nil
		}
	}
	return fmt.Errorf("origin %q is not in allowed origins list", origin)
}
