// Package cache provides a bounded in-memory cache for fully fetched
// messages, keyed by folder and UID. Eviction is least-recently-used so
// that messages the user keeps returning to stay warm.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kup/belegmail/internal/model"
)

// DefaultSize is the number of messages kept when no size is configured.
const DefaultSize = 20

// Key identifies a cached message. UIDs are only unique per folder, so
// the folder is part of the key.
type Key struct {
	Folder string
	UID    uint32
}

// MessageCache holds fully fetched messages up to a fixed capacity.
// All methods are safe for concurrent use.
type MessageCache struct {
	lru *lru.Cache[Key, *model.Message]
}

// New creates a cache holding at most size messages. A size of zero or
// less falls back to DefaultSize.
func New(size int) *MessageCache {
	if size <= 0 {
		size = DefaultSize
	}
	// lru.New only errors on non-positive size, which is ruled out.
	c, _ := lru.New[Key, *model.Message](size)
	return &MessageCache{lru: c}
}

// Get returns the cached message for folder/uid and marks it as
// recently used. ok is false on a miss.
func (c *MessageCache) Get(folder string, uid uint32) (*model.Message, bool) {
	return c.lru.Get(Key{Folder: folder, UID: uid})
}

// Contains reports whether folder/uid is cached without affecting
// its recency.
func (c *MessageCache) Contains(folder string, uid uint32) bool {
	return c.lru.Contains(Key{Folder: folder, UID: uid})
}

// Put stores a message, evicting the least recently used entry when
// the cache is full.
func (c *MessageCache) Put(folder string, uid uint32, msg *model.Message) {
	c.lru.Add(Key{Folder: folder, UID: uid}, msg)
}

// Remove drops a single entry, typically after the message was moved
// out of its folder.
func (c *MessageCache) Remove(folder string, uid uint32) {
	c.lru.Remove(Key{Folder: folder, UID: uid})
}

// Clear drops all entries, e.g. on disconnect.
func (c *MessageCache) Clear() {
	c.lru.Purge()
}

// Len returns the number of cached messages.
func (c *MessageCache) Len() int {
	return c.lru.Len()
}
