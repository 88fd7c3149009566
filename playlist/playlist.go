package playlist

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEmptyPlaylist is returned when an id is registered without clips.
	ErrEmptyPlaylist = errors.New("empty playlist")

	// ErrUnknownID is returned when an id has never been registered.
	ErrUnknownID = errors.New("unknown id")
)

type entry struct {
	clips  []string
	cursor int
}

// Registry maps trigger ids to ordered playlists and a cursor into each one.
// It is safe for concurrent use.
type Registry[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// NewRegistry creates an empty registry
func NewRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{
		entries: make(map[K]*entry),
	}
}

// Register inserts or replaces the playlist for id and resets its cursor.
// A single clip is a one-element playlist.
func (r *Registry[K]) Register(id K, clips ...string) error {
	if len(clips) == 0 {
		return fmt.Errorf("register %v: %w", id, ErrEmptyPlaylist)
	}

	owned := make([]string, len(clips))
	copy(owned, clips)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[id] = &entry{clips: owned}
	return nil
}

// Unregister removes the playlist for id and reports whether it existed.
func (r *Registry[K]) Unregister(id K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Next returns the clip at the cursor for id and advances the cursor,
// wrapping to the start after the last clip.
func (r *Registry[K]) Next(id K) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return "", fmt.Errorf("next %v: %w", id, ErrUnknownID)
	}

	clip := e.clips[e.cursor]
	e.cursor = (e.cursor + 1) % len(e.clips)
	return clip, nil
}

// Cursor returns the index of the clip Next will return for id.
func (r *Registry[K]) Cursor(id K) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return 0, false
	}
	return e.cursor, true
}

// Clips returns a copy of the playlist registered for id.
func (r *Registry[K]) Clips(id K) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	clips := make([]string, len(e.clips))
	copy(clips, e.clips)
	return clips, true
}

// Len returns the number of registered ids.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
