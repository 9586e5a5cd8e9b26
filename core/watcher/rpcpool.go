package watcher

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RPCPool rotates across a bounded set of RPC URLs for a single chain,
// merging config-supplied URLs with a hard-coded fallback set, and applying
// exponential backoff to URLs that recently failed. Grounded on the
// teacher's core/connection_pool.go Acquire/reaper pattern, adapted from
// pooling live connections to rotating stateless RPC endpoints.
type RPCPool struct {
	mu      sync.Mutex
	urls    []string
	backoff map[string]time.Time // url -> not-before time
	log     *logrus.Entry
}

// NewRPCPool merges configured and fallback URLs, de-duplicating and
// bounding the result to maxURLs.
func NewRPCPool(chain string, configured, fallback []string, maxURLs int) *RPCPool {
	seen := make(map[string]bool)
	var merged []string
	for _, u := range append(append([]string(nil), configured...), fallback...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		merged = append(merged, u)
		if len(merged) >= maxURLs {
			break
		}
	}
	return &RPCPool{
		urls:    merged,
		backoff: make(map[string]time.Time),
		log:     logrus.WithField("component", "rpc_pool").WithField("chain", chain),
	}
}

// Next returns the first URL, in pool order, not currently in backoff.
// Returns false if every URL is in backoff.
func (p *RPCPool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for _, u := range p.urls {
		if nb, ok := p.backoff[u]; !ok || now.After(nb) {
			return u, true
		}
	}
	return "", false
}

// MarkFailed puts url into exponential backoff for duration d (doubled by
// the caller across consecutive failures).
func (p *RPCPool) MarkFailed(url string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backoff[url] = time.Now().Add(d)
	p.log.WithField("url", url).WithField("backoff", d).Warn("rpc url marked failed")
}

// Len returns the number of URLs in the pool.
func (p *RPCPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.urls)
}
