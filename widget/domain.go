package widget

import (
	"net/url"
	"strings"
)

// NormalizeDomain reduces a configured base domain (bare host, full URL or
// host:port) to a canonical lowercase host without scheme, www prefix, path
// or port. Malformed input falls back to best-effort string stripping.
func NormalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	parse := s
	if !strings.Contains(parse, "://") {
		parse = "http://" + parse
	}
	if u, err := url.Parse(parse); err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		if port := s[i+1:]; port != "" && strings.Trim(port, "0123456789") == "" {
			s = s[:i]
		}
	}
	return strings.TrimPrefix(s, "www.")
}

// DomainAllowed reports whether the hosting page's hostname is authorized
// for the configured base domain. The check is symmetric on subdomains to
// tolerate preview and staging host relationships.
func DomainAllowed(hostname, baseDomain string) bool {
	host := NormalizeDomain(hostname)
	base := NormalizeDomain(baseDomain)
	if host == "" || base == "" {
		return false
	}

	return host == base ||
		strings.HasSuffix(host, "."+base) ||
		strings.HasSuffix(base, "."+host)
}
