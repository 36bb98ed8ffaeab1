package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// clientLimiters keeps one token bucket per client address to bound the
// rate of optimization requests, which are the expensive endpoint.
type clientLimiters struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &clientLimiters{m: map[string]*rate.Limiter{}, rps: rate.Limit(rps), burst: burst}
}

func (c *clientLimiters) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	c.mu.Lock()
	lim, ok := c.m[host]
	if !ok {
		lim = rate.NewLimiter(c.rps, c.burst)
		c.m[host] = lim
	}
	c.mu.Unlock()
	return lim.Allow()
}
