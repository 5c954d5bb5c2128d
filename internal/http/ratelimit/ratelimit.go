// Package ratelimit provides per-client-IP request throttling for the
// CalDAV surface. Clients like macOS Calendar issue bursts of PROPFIND
// and REPORT requests on refresh, so the limiter allows bursts but
// bounds the sustained rate.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

// Limiter hands out a token bucket per client IP. Entries idle past the
// sweep window are discarded so the map stays bounded.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client

	rate    rate.Limit
	burst   int
	sweep   time.Duration
	proxies []*net.IPNet
}

type client struct {
	bucket *rate.Limiter
	seen   time.Time
}

// New builds a Limiter allowing r requests per second with the given
// burst. trustedProxies lists CIDRs (or bare IPs) of reverse proxies
// whose X-Forwarded-For headers may be believed; when empty, forwarding
// headers are trusted from any peer.
func New(r rate.Limit, burst int, sweep time.Duration, trustedProxies []string) *Limiter {
	l := &Limiter{
		clients: make(map[string]*client),
		rate:    r,
		burst:   burst,
		sweep:   sweep,
		proxies: parseProxyList(trustedProxies),
	}
	go l.sweepIdle()
	return l
}

func parseProxyList(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipnet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 128
		if ip.To4() != nil {
			bits = 32
		}
		mask := net.CIDRMask(bits, bits)
		nets = append(nets, &net.IPNet{IP: ip.Mask(mask), Mask: mask})
	}
	return nets
}

// Middleware rejects over-limit requests with 429 and a DAV:error body.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(l.clientIP(r)) {
				w.Header().Set("Content-Type", "application/xml; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?><error xmlns="DAV:">rate limit exceeded</error>`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) allow(ip string) bool {
	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.evictOldestLocked()
		}
		c = &client{bucket: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = c
	}
	c.seen = time.Now()
	l.mu.Unlock()
	return c.bucket.Allow()
}

func (l *Limiter) evictOldestLocked() {
	var oldest string
	var oldestSeen time.Time
	for ip, c := range l.clients {
		if oldest == "" || c.seen.Before(oldestSeen) {
			oldest, oldestSeen = ip, c.seen
		}
	}
	if oldest != "" {
		delete(l.clients, oldest)
	}
}

func (l *Limiter) sweepIdle() {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-2 * l.sweep)
		l.mu.Lock()
		for ip, c := range l.clients {
			if c.seen.Before(cutoff) {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

// clientIP resolves the originating address, honoring X-Forwarded-For
// and X-Real-IP only when the direct peer is a trusted proxy.
func (l *Limiter) clientIP(r *http.Request) string {
	peer := hostIP(r.RemoteAddr)
	if len(l.proxies) > 0 && !l.trusted(peer) {
		return peer.String()
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
	}
	return peer.String()
}

func (l *Limiter) trusted(ip net.IP) bool {
	for _, ipnet := range l.proxies {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

func hostIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
