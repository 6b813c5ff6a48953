// Package cache provides a small generic LRU with per-entry TTL, used to
// memoize dashboard rollups between writes.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU evicts by recency when full and lazily drops expired entries on read.
type LRU[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

func NewLRU[T any](maxSize int, ttl time.Duration) *LRU[T] {
	return &LRU[T]{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached value and whether it was present and fresh.
func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[T])
	if time.Now().After(e.expiresAt) {
		c.remove(elem)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return e.value, true
}

// Set stores a value, refreshing its TTL and evicting the oldest entry when
// the cache is over capacity.
func (c *LRU[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	if elem, ok := c.entries[key]; ok {
		elem.Value = e
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(e)
	if c.order.Len() > c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
}

// Delete removes a single key if present.
func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.remove(elem)
	}
}

// Clear drops every entry. Write handlers call this so the next read
// recomputes from the updated files.
func (c *LRU[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Size returns the current number of entries, expired ones included.
func (c *LRU[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CleanExpired sweeps out expired entries and reports how many were removed.
func (c *LRU[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var stale []*list.Element
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*entry[T]).expiresAt) {
			stale = append(stale, elem)
		}
	}
	for _, elem := range stale {
		c.remove(elem)
	}
	return len(stale)
}

func (c *LRU[T]) remove(elem *list.Element) {
	e := elem.Value.(*entry[T])
	delete(c.entries, e.key)
	c.order.Remove(elem)
}

// Sweeper interface for caches that support periodic cleanup.
type Sweeper interface {
	CleanExpired() int
}

// Janitor periodically sweeps a set of caches until stopped.
type Janitor struct {
	caches []Sweeper
	stop   chan struct{}
	done   chan struct{}
}

func NewJanitor() *Janitor {
	return &Janitor{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Register adds a cache to the sweep set. Not safe after Start.
func (j *Janitor) Register(c Sweeper) {
	j.caches = append(j.caches, c)
}

// Start launches the sweep loop in its own goroutine.
func (j *Janitor) Start(interval time.Duration) {
	go j.run(interval)
}

func (j *Janitor) run(interval time.Duration) {
	defer close(j.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, c := range j.caches {
				c.CleanExpired()
			}
		case <-j.stop:
			return
		}
	}
}

// Stop halts the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}
