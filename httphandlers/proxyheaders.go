package httphandlers

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ErrInvalidProxy is returned when a TrustedProxies entry is neither an
// address nor a prefix.
var ErrInvalidProxy = errors.New("proxy headers: invalid proxy entry")

// DefaultTrustedProxies are the loopback, private and CGNAT ranges used
// when ProxyHeadersConfig.TrustedProxies is empty.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
}

// ProxyHeadersConfig configures the ProxyHeaders middleware behaviour.
type ProxyHeadersConfig struct {
	// TrustedProxies lists addresses and CIDR prefixes whose forwarding
	// headers are believed. Empty means DefaultTrustedProxies.
	TrustedProxies []string

	// EnableForwarded also reads the RFC 7239 Forwarded header, after the
	// X-Forwarded-* family.
	EnableForwarded bool
}

// forwarded is what one hop reported about the client.
type forwarded struct {
	chain []string
	proto string
	host  string
}

// ProxyHeadersMiddleware returns a wrapper that rewrites r.RemoteAddr,
// r.URL.Scheme and r.Host from forwarding headers when the peer is a
// trusted proxy.
//
// The client address is the rightmost X-Forwarded-For entry that is not a
// trusted proxy itself, so a client cannot spoof it by prepending
// addresses. X-Real-IP is used when X-Forwarded-For is absent. The scheme
// comes from X-Forwarded-Proto or X-Forwarded-Scheme and must be http or
// https. The host comes from X-Forwarded-Host.
func ProxyHeadersMiddleware(cfg ProxyHeadersConfig) (func(http.Handler) http.Handler, error) {
	entries := cfg.TrustedProxies
	if len(entries) == 0 {
		entries = DefaultTrustedProxies
	}

	trusted := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		p, err := parseTrusted(entry)
		if err != nil {
			return nil, err
		}
		trusted = append(trusted, p)
	}

	isTrusted := func(addr netip.Addr) bool {
		addr = addr.Unmap()
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}

		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer, ok := peerAddr(r.RemoteAddr)
			if !ok || !isTrusted(peer) {
				next.ServeHTTP(w, r)
				return
			}

			info := forwardedFromX(r.Header)
			if cfg.EnableForwarded && (len(info.chain) == 0 || info.proto == "" || info.host == "") {
				std := parseForwarded(r.Header.Values("Forwarded"))
				if len(info.chain) == 0 {
					info.chain = std.chain
				}
				if info.proto == "" {
					info.proto = std.proto
				}
				if info.host == "" {
					info.host = std.host
				}
			}

			if client, ok := clientAddr(info.chain, isTrusted); ok {
				r.RemoteAddr = client.String()
			}

			if info.proto != "" {
				u := *r.URL
				u.Scheme = info.proto
				r.URL = &u
			}

			if info.host != "" {
				r.Host = info.host
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func parseTrusted(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
		}

		return p.Masked(), nil
	}

	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
	}

	addr = addr.Unmap()

	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// peerAddr accepts "host:port" or a bare address.
func peerAddr(remote string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr(), true
	}

	addr, err := netip.ParseAddr(strings.Trim(remote, "[]"))

	return addr, err == nil
}

// clientAddr walks chain from the nearest hop and returns the first
// address that is not a trusted proxy. When every hop is trusted the
// farthest one is the client.
func clientAddr(chain []string, isTrusted func(netip.Addr) bool) (netip.Addr, bool) {
	var last netip.Addr

	for i := len(chain) - 1; i >= 0; i-- {
		addr, ok := peerAddr(chain[i])
		if !ok {
			// Obfuscated or garbage entries end the walk.
			break
		}

		last = addr.Unmap()
		if !isTrusted(last) {
			return last, true
		}
	}

	return last, last.IsValid()
}

func forwardedFromX(h http.Header) forwarded {
	var info forwarded

	for _, value := range h.Values("X-Forwarded-For") {
		for part := range strings.SplitSeq(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				info.chain = append(info.chain, part)
			}
		}
	}

	if len(info.chain) == 0 {
		if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
			info.chain = []string{ip}
		}
	}

	for _, name := range []string{"X-Forwarded-Proto", "X-Forwarded-Scheme"} {
		if v := h.Get(name); v != "" {
			info.proto = normalizeProto(v)
			break
		}
	}

	if v := h.Get("X-Forwarded-Host"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		info.host = strings.TrimSpace(first)
	}

	return info
}

// parseForwarded reads RFC 7239 elements. The for= values of every
// element form the chain; proto and host come from the first element,
// which the client-facing proxy wrote.
func parseForwarded(values []string) forwarded {
	var info forwarded

	first := true
	for _, value := range values {
		for _, element := range splitQuoted(value, ',') {
			for _, pair := range splitQuoted(element, ';') {
				key, val, ok := strings.Cut(pair, "=")
				if !ok {
					continue
				}

				key = strings.ToLower(strings.TrimSpace(key))
				val = unquote(strings.TrimSpace(val))

				switch {
				case key == "for":
					info.chain = append(info.chain, forwardedNode(val))
				case key == "proto" && first:
					info.proto = normalizeProto(val)
				case key == "host" && first:
					info.host = val
				}
			}

			first = false
		}
	}

	return info
}

// forwardedNode strips the port from "[v6]:port" and "v4:port" nodes.
func forwardedNode(val string) string {
	if host, _, err := net.SplitHostPort(val); err == nil {
		return host
	}

	return strings.Trim(val, "[]")
}

func normalizeProto(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "http" || v == "https" {
		return v
	}

	return ""
}

// splitQuoted splits s on sep outside double-quoted strings.
func splitQuoted(s string, sep byte) []string {
	var (
		out     []string
		start   int
		quoted  bool
		escaped bool
	)

	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case escaped:
			escaped = false
		case c == '\\' && quoted:
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == sep && !quoted:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}

	return append(out, strings.TrimSpace(s[start:]))
}

func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}

	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}

	return b.String()
}
