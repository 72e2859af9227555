// Package upload implements the image side-channel: executors POST rendered
// exports to the relay and hand the agent a URL instead of inline bytes.
package upload

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/patrickmn/go-cache"
)

// Image is one stored export.
type Image struct {
	ID        string
	Data      []byte
	MimeType  string
	NodeID    string
	Format    string
	Scale     float64
	CreatedAt time.Time
}

// Store keeps uploaded images in memory and purges them after a TTL.
type Store struct {
	cache *cache.Cache
}

// NewStore creates a store whose entries expire after ttl. Expired entries
// are swept every sweep interval.
func NewStore(ttl, sweep time.Duration) *Store {
	return &Store{
		cache: cache.New(ttl, sweep),
	}
}

// Put stores img under a fresh ID and returns it.
func (s *Store) Put(img Image) Image {
	img.ID = ulid.Make().String()
	img.CreatedAt = time.Now()
	s.cache.Set(img.ID, img, cache.DefaultExpiration)
	return img
}

// Get returns the image stored under id.
func (s *Store) Get(id string) (Image, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return Image{}, false
	}
	return v.(Image), true
}

// Len returns the number of stored images, including expired ones not yet swept.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
