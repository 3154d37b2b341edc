// Package ipfilter is the IP Access Filter: an optional allow-list gate at
// the very front of the request pipeline, ahead of auth, accepting both
// single addresses and CIDR ranges.
package ipfilter

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// Filter allows or denies requests by client IP. A Filter with no entries
// and Enabled() false passes every request through unexamined.
type Filter struct {
	enabled bool
	exact   map[string]struct{}
	nets    []*net.IPNet
}

// New builds a Filter from a list of allow-list entries, each either a bare
// IP address or a CIDR range (e.g. "10.0.0.0/8"). An empty entries list
// disables filtering entirely.
func New(entries []string) (*Filter, error) {
	f := &Filter{exact: make(map[string]struct{})}
	if len(entries) == 0 {
		return f, nil
	}
	f.enabled = true

	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			_, ipNet, err := net.ParseCIDR(e)
			if err != nil {
				return nil, err
			}
			f.nets = append(f.nets, ipNet)
			continue
		}
		if ip := net.ParseIP(e); ip != nil {
			f.exact[ip.String()] = struct{}{}
			continue
		}
		f.exact[e] = struct{}{}
	}
	return f, nil
}

// Enabled reports whether the filter is actively restricting access.
func (f *Filter) Enabled() bool {
	return f.enabled
}

// Allow reports whether clientIP may proceed.
func (f *Filter) Allow(clientIP string) bool {
	if !f.enabled {
		return true
	}
	if _, ok := f.exact[clientIP]; ok {
		return true
	}
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	for _, n := range f.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware wraps next, rejecting disallowed client IPs with 403 before
// next is ever invoked. The client IP is taken from the request's RemoteAddr
// (stripped of port), which in production sits behind a reverse proxy that
// has already normalized X-Forwarded-For into RemoteAddr.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.Enabled() && !f.Allow(clientIPFrom(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "access_denied",
				"message": "IP not in allow-list",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIPFrom(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
