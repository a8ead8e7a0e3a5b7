// Package envdetect classifies a request host as development or production.
package envdetect

import (
	"net"
	"strings"
)

var DefaultSuffixes = []string{
	".lovable.app",
	".lovableproject.com",
	".vercel.app",
	".netlify.app",
	".pages.dev",
}

type Detector struct {
	suffixes []string
}

// New returns a Detector matching the default preview suffixes plus extra.
func New(extra ...string) Detector {
	d := Detector{suffixes: append([]string(nil), DefaultSuffixes...)}
	for _, s := range extra {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		d.suffixes = append(d.suffixes, s)
	}
	return d
}

func (d Detector) IsDevelopment(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return false
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	for _, s := range d.suffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

// IsDevelopment uses the default suffixes.
func IsDevelopment(host string) bool {
	return New().IsDevelopment(host)
}
