package www

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginLimiter throttles login attempts per client address.
type loginLimiter struct {
	mu      sync.Mutex
	every   time.Duration
	burst   int
	clients map[string]*limiterEntry
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(every time.Duration, burst int) *loginLimiter {
	return &loginLimiter{every: every, burst: burst, clients: make(map[string]*limiterEntry)}
}

func (l *loginLimiter) allow(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.clients[host]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.clients[host] = e
	}
	e.lastSeen = now
	// drop idle clients
	for h, c := range l.clients {
		if now.Sub(c.lastSeen) > 10*time.Minute {
			delete(l.clients, h)
		}
	}
	return e.lim.AllowN(now, 1)
}

func (h *Handlers) limitLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.logins.allow(r.RemoteAddr) {
			h.jsonError(w, "too many login attempts, try again later", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
