// Package set provides a concurrency-safe set of string-keyed items, used
// for registries, admin sets and ban lists. Keys are case-sensitive.
package set

import (
	"errors"
	"sort"
	"sync"
)

// Returned when an added key already exists in the set.
var ErrCollision = errors.New("key already exists")

// Returned when a requested item does not exist in the set.
var ErrMissing = errors.New("item does not exist")

type IterFunc func(key string, item Item) error

type Set struct {
	sync.RWMutex
	lookup map[string]Item
}

// New creates an empty set.
func New() *Set {
	return &Set{
		lookup: map[string]Item{},
	}
}

// Clear removes all items and returns the number removed.
func (s *Set) Clear() int {
	s.Lock()
	n := len(s.lookup)
	s.lookup = map[string]Item{}
	s.Unlock()
	return n
}

// Len returns the size of the set right now.
func (s *Set) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.lookup)
}

// In checks if a key exists in this set. Expired items read as absent.
func (s *Set) In(key string) bool {
	s.RLock()
	item, ok := s.lookup[key]
	s.RUnlock()
	if ok && item.Value() == nil {
		s.cleanup(key)
		ok = false
	}
	return ok
}

// Get returns the item stored under key.
func (s *Set) Get(key string) (Item, error) {
	s.RLock()
	item, ok := s.lookup[key]
	s.RUnlock()

	if ok && item.Value() == nil {
		s.cleanup(key)
		ok = false
	}
	if !ok {
		return nil, ErrMissing
	}
	return item, nil
}

// Remove a potentially expired key.
func (s *Set) cleanup(key string) {
	s.Lock()
	item, ok := s.lookup[key]
	if ok && item.Value() == nil {
		delete(s.lookup, key)
	}
	s.Unlock()
}

// AddNew adds an item only if its key does not exist yet.
func (s *Set) AddNew(item Item) error {
	s.Lock()
	defer s.Unlock()

	old, found := s.lookup[item.Key()]
	if found && old.Value() != nil {
		return ErrCollision
	}
	s.lookup[item.Key()] = item
	return nil
}

// Add to set, replacing if the key already exists.
func (s *Set) Add(item Item) {
	s.Lock()
	s.lookup[item.Key()] = item
	s.Unlock()
}

// Remove item from this set.
func (s *Set) Remove(key string) error {
	s.Lock()
	defer s.Unlock()

	if _, found := s.lookup[key]; !found {
		return ErrMissing
	}
	delete(s.lookup, key)
	return nil
}

// Each applies fn to every live item while holding a read lock. Expired
// items are skipped and swept once the lock is released.
func (s *Set) Each(fn IterFunc) error {
	var expired []string
	defer func() {
		for _, key := range expired {
			s.cleanup(key)
		}
	}()

	s.RLock()
	defer s.RUnlock()
	for key, item := range s.lookup {
		if item.Value() == nil {
			expired = append(expired, key)
			continue
		}
		if err := fn(key, item); err != nil {
			// Abort early
			return err
		}
	}
	return nil
}

// Keys returns the live keys in sorted order, for deterministic listings.
func (s *Set) Keys() []string {
	keys := []string{}
	s.Each(func(key string, _ Item) error {
		keys = append(keys, key)
		return nil
	})
	sort.Strings(keys)
	return keys
}
