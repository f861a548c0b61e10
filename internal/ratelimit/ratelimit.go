package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mukkaz/mukkaz/internal/httputil"
)

const (
	sweepInterval = 5 * time.Minute
	idleEviction  = 10 * time.Minute
)

// Limiter is a per-client token bucket. The upload route runs well below one
// request per second, so buckets refill fractionally and the burst is what
// lets a user retry a failed submission right away.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func New(requestsPerSecond float64, burst int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    requestsPerSecond,
		burst:   float64(burst),
	}
	go l.sweep()
	return l
}

func (l *Limiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[client]
	if !exists {
		l.buckets[client] = &bucket{tokens: l.burst - 1, lastSeen: time.Now()}
		return true
	}

	elapsed := time.Since(b.lastSeen).Seconds()
	b.lastSeen = time.Now()
	b.tokens += elapsed * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}

	if b.tokens < 1 {
		return false
	}

	b.tokens--
	return true
}

func (l *Limiter) sweep() {
	for {
		time.Sleep(sweepInterval)
		l.mu.Lock()
		for client, b := range l.buckets {
			if time.Since(b.lastSeen) > idleEviction {
				delete(l.buckets, client)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware rejects over-limit requests with 429 before any multipart body
// is read. Clients are keyed by the nearest proxied address when one is set,
// otherwise the peer address.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "10")
			httputil.WriteError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return fwd
	}
	return r.RemoteAddr
}
