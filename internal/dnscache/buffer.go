// Package dnscache resolves domains off the crawl critical path. Link
// extraction submits every newly seen domain; by the time a job for that
// domain is dequeued, resolution has usually already finished.
package dnscache

import (
	"context"
	"net"
	"sync"
	"time"
)

// State of one domain in the buffer.
type State int

const (
	StateUnknown State = iota // never submitted
	StatePending              // resolution in flight
	StateResolved
	StateFailed
)

// Resolver is the lookup capability the buffer needs; *net.Resolver
// satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type entry struct {
	state State
	addr  string
}

// Buffer memoizes asynchronous domain resolution. Submit never blocks
// and spawns at most one lookup per domain; Lookup is a non-blocking
// poll. Terminal states are never retried by the buffer itself.
type Buffer struct {
	mu       sync.Mutex
	entries  map[string]*entry
	resolver Resolver
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewBuffer builds a Buffer. A nil resolver uses net.DefaultResolver.
func NewBuffer(resolver Resolver, timeout time.Duration) *Buffer {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Buffer{
		entries:  make(map[string]*entry),
		resolver: resolver,
		timeout:  timeout,
	}
}

// Submit schedules resolution for a domain. Repeated submissions of a
// pending or terminal domain are no-ops.
func (b *Buffer) Submit(domain string) {
	if domain == "" {
		return
	}
	b.mu.Lock()
	if _, ok := b.entries[domain]; ok {
		b.mu.Unlock()
		return
	}
	b.entries[domain] = &entry{state: StatePending}
	b.wg.Add(1)
	b.mu.Unlock()

	go b.resolve(domain)
}

func (b *Buffer) resolve(domain string) {
	defer b.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	addrs, err := b.resolver.LookupHost(ctx, domain)

	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entries[domain]
	if err != nil || len(addrs) == 0 {
		e.state = StateFailed
		return
	}
	e.state = StateResolved
	e.addr = addrs[0]
}

// Lookup polls the resolution state for a domain.
func (b *Buffer) Lookup(domain string) (string, State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[domain]
	if !ok {
		return "", StateUnknown
	}
	return e.addr, e.state
}

// Wait blocks until all in-flight lookups finish. Shutdown and tests
// only; the crawl path never calls it.
func (b *Buffer) Wait() {
	b.wg.Wait()
}
