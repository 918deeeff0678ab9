// ABOUTME: Thread-safe TTL cache holding conversation sessions by phone number
// ABOUTME: Uses a doubly-linked list to maintain activity order for O(1) eviction

package session

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a session survives without activity before the
	// conversation restarts from idle.
	DefaultTTL = 15 * time.Minute
	// DefaultMaxSize caps the number of concurrent sessions.
	DefaultMaxSize = 1024
)

// cacheEntry stores the session and list element for a cached phone number.
type cacheEntry struct {
	session *Session
	element *list.Element
}

// Cache provides a thread-safe, TTL-based, size-limited session store. When
// the cache is at capacity the least recently active session is evicted.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // phone numbers in activity order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewCache creates a session cache with the specified TTL and maximum size.
// A background goroutine periodically removes expired sessions.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the live session for a phone number, or nil if none exists or
// it has expired. A hit refreshes the session's activity time.
func (c *Cache) Get(phone string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[phone]
	if !ok {
		return nil
	}
	if time.Since(entry.session.LastActivity) >= c.ttl {
		c.order.Remove(entry.element)
		delete(c.entries, phone)
		return nil
	}
	entry.session.LastActivity = time.Now()
	c.order.MoveToBack(entry.element)
	return entry.session
}

// GetOrCreate returns the live session for a phone number, creating an idle
// one bound to clientID if none exists. An expired session is replaced, not
// resumed. The lookup and the create happen under one lock acquisition, so
// two concurrent calls for the same phone get the same session.
func (c *Cache) GetOrCreate(phone, clientID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[phone]; ok {
		if time.Since(entry.session.LastActivity) < c.ttl {
			entry.session.LastActivity = time.Now()
			c.order.MoveToBack(entry.element)
			return entry.session
		}
		c.order.Remove(entry.element)
		delete(c.entries, phone)
	}

	// Evict oldest if at capacity
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	s := &Session{
		ClientID:     clientID,
		State:        StateIdle,
		LastActivity: time.Now(),
	}
	elem := c.order.PushBack(phone)
	c.entries[phone] = &cacheEntry{session: s, element: elem}
	return s
}

// Delete removes a session, ending the conversation immediately.
func (c *Cache) Delete(phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[phone]
	if !ok {
		return
	}
	c.order.Remove(entry.element)
	delete(c.entries, phone)
}

// Len returns the number of sessions currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the least recently active session.
// Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	phone, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, phone)
}

// cleanup runs in a background goroutine, periodically removing expired
// sessions.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for phone, entry := range c.entries {
		if now.Sub(entry.session.LastActivity) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, phone)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple
// times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
