// ABOUTME: Tests for the session cache
// ABOUTME: Covers TTL expiry, capacity eviction, and state reset

package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetOrCreate(t *testing.T) {
	c := NewCache(time.Minute, 10)
	defer c.Close()

	s := c.GetOrCreate("+15551230001", "client-1")
	require.NotNil(t, s)
	assert.Equal(t, "client-1", s.ClientID)
	assert.Equal(t, StateIdle, s.State)

	// Same phone returns the same session, mutations included.
	s.State = StateAwaitingSelection
	s.LastShownList = []string{"post-1", "post-2"}

	again := c.GetOrCreate("+15551230001", "client-1")
	assert.Same(t, s, again)
	assert.Equal(t, StateAwaitingSelection, again.State)
}

func TestCacheGetMissing(t *testing.T) {
	c := NewCache(time.Minute, 10)
	defer c.Close()

	assert.Nil(t, c.Get("+15550000000"))
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(50*time.Millisecond, 10)
	defer c.Close()

	s := c.GetOrCreate("+15551230001", "client-1")
	s.State = StateAwaitingConfirmation

	time.Sleep(60 * time.Millisecond)

	assert.Nil(t, c.Get("+15551230001"))

	// A fresh session replaces the expired one.
	fresh := c.GetOrCreate("+15551230001", "client-1")
	assert.Equal(t, StateIdle, fresh.State)
}

func TestCacheActivityRefresh(t *testing.T) {
	c := NewCache(80*time.Millisecond, 10)
	defer c.Close()

	c.GetOrCreate("+15551230001", "client-1")

	// Keep touching the session; it must outlive the TTL measured from
	// creation.
	for i := 0; i < 3; i++ {
		time.Sleep(50 * time.Millisecond)
		require.NotNil(t, c.Get("+15551230001"))
	}
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	c := NewCache(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.GetOrCreate(fmt.Sprintf("+1555000000%d", i), "client-1")
	}

	// Touch the oldest so it becomes the most recently active.
	require.NotNil(t, c.Get("+15550000000"))

	c.GetOrCreate("+15550000009", "client-2")

	assert.Equal(t, 3, c.Len())
	assert.NotNil(t, c.Get("+15550000000"))
	assert.Nil(t, c.Get("+15550000001"))
}

func TestCacheDelete(t *testing.T) {
	c := NewCache(time.Minute, 10)
	defer c.Close()

	c.GetOrCreate("+15551230001", "client-1")
	c.Delete("+15551230001")
	assert.Nil(t, c.Get("+15551230001"))
	assert.Equal(t, 0, c.Len())
}

func TestSessionReset(t *testing.T) {
	s := &Session{
		ClientID:        "client-1",
		State:           StateAwaitingImage,
		LastShownList:   []string{"post-1"},
		SelectedPostID:  "post-1",
		PendingIdeaText: "weekend special",
		PendingImageURL: "https://images.example.com/a.jpg",
	}
	s.Reset()

	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.LastShownList)
	assert.Empty(t, s.SelectedPostID)
	assert.Empty(t, s.PendingIdeaText)
	assert.Empty(t, s.PendingImageURL)
	assert.Equal(t, "client-1", s.ClientID)
}

func TestCacheCloseIdempotent(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Close()
	c.Close()
}

func TestCacheGetOrCreateConcurrentSamePhone(t *testing.T) {
	c := NewCache(time.Minute, 10)
	defer c.Close()

	const workers = 16
	sessions := make([]*Session, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i] = c.GetOrCreate("+15551230001", "client-1")
		}(i)
	}
	wg.Wait()

	// Everyone shares a single session; nothing was double-created.
	assert.Equal(t, 1, c.Len())
	for i := 1; i < workers; i++ {
		assert.Same(t, sessions[0], sessions[i])
	}
}
