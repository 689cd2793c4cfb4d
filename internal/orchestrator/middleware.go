package orchestrator

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/minitools/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Wrap adds request logging and per-client rate limiting of /api/ calls.
func (o *Orchestrator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if o.deps.Limiter != nil && strings.HasPrefix(r.URL.Path, "/api/") {
			client := clientIP(r, o.proxies)
			ok, retry, err := o.deps.Limiter.Allow(r.Context(), client)
			if err != nil {
				log.Warn().Err(err).Msg("rate limiter unavailable; allowing request")
			}
			if !ok {
				metrics.IncRateLimited()
				secs := int(math.Ceil(retry.Seconds()))
				if secs < 1 {
					secs = 1
				}
				rec.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(rec, http.StatusTooManyRequests, errorResp{Error: "rate limit exceeded"})
				log.Warn().Str("client", client).Str("path", r.URL.Path).Msg("rate limited")
				return
			}
		}

		next.ServeHTTP(rec, r)

		ev := log.Debug()
		if rec.status >= 500 {
			ev = log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

// clientIP returns the peer address. X-Forwarded-For is only consulted when
// the peer is a trusted proxy; hops are then read right to left and the first
// address that is not itself a trusted proxy wins.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isTrusted(host, trusted) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	return host
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parseTrustedProxies accepts IPs and CIDRs; invalid entries are skipped.
func parseTrustedProxies(list []string) []netip.Prefix {
	var out []netip.Prefix
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			a = a.Unmap()
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		log.Warn().Str("entry", s).Msg("ignoring invalid trusted proxy")
	}
	return out
}
