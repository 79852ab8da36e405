// Package urlvalidate implements webhook destination URL validation:
// absolute http(s) URLs with a non-empty host, loopback rejected unless
// explicitly allowed, optional allow-list regular expression.
package urlvalidate

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
)

// Config tunes validation behavior.
type Config struct {
	AllowPrivateDestinations bool
	Allowlist                *regexp.Regexp
}

// Validate checks raw against the configured rules, returning a
// descriptive error if it is rejected.
func Validate(raw string, cfg Config) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a non-empty host")
	}
	if !cfg.AllowPrivateDestinations && isLoopback(u.Hostname()) {
		return fmt.Errorf("loopback/private destinations are not allowed")
	}
	if cfg.Allowlist != nil && !cfg.Allowlist.MatchString(raw) {
		return fmt.Errorf("URL does not match the configured allow-list")
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
