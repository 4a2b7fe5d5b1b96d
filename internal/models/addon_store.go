package models

import (
	"errors"
	"sort"
	"strings"
	"sync/atomic"
)

// ErrNotFound is returned when an add-on is not present in the store.
var ErrNotFound = errors.New("addon not found")

// AddonStore provides thread-safe access to the add-on catalog without
// global variables. Reads always see one consistent snapshot; every write
// swaps the whole snapshot atomically, so the serving path never observes a
// half-applied reload.
type AddonStore interface {
	// Read operations (hot path)
	GetBySlug(slug string) *Addon
	GetByGUID(guid string) *Addon
	GetAll() []Addon
	Count() int

	// Bulk replace (reload path)
	SetAddons(addons []Addon) error

	// CRUD operations for real-time catalog updates
	InsertAddon(addon *Addon) error
	UpdateAddon(addon Addon) error
	DeleteAddon(slug string) error
}

// catalogSnapshot is one immutable view of the catalog.
type catalogSnapshot struct {
	addons    []Addon
	slugIndex map[string]*Addon
	guidIndex map[string]*Addon
}

// InMemoryAddonStore implements AddonStore with atomic snapshot swaps.
type InMemoryAddonStore struct {
	data atomic.Pointer[catalogSnapshot]
}

// NewInMemoryAddonStore creates an empty catalog store.
func NewInMemoryAddonStore() *InMemoryAddonStore {
	s := &InMemoryAddonStore{}
	s.data.Store(buildSnapshot(nil))
	return s
}

// buildSnapshot copies addons into a fresh snapshot, sorted by slug, with
// slug and GUID lookup indexes over the copied slice.
func buildSnapshot(addons []Addon) *catalogSnapshot {
	snap := &catalogSnapshot{
		addons:    make([]Addon, len(addons)),
		slugIndex: make(map[string]*Addon, len(addons)),
		guidIndex: make(map[string]*Addon, len(addons)),
	}
	copy(snap.addons, addons)
	sort.Slice(snap.addons, func(i, j int) bool {
		return snap.addons[i].Slug < snap.addons[j].Slug
	})
	for i := range snap.addons {
		a := &snap.addons[i]
		snap.slugIndex[strings.ToLower(a.Slug)] = a
		if a.GUID != "" {
			snap.guidIndex[a.GUID] = a
		}
	}
	return snap
}

// GetBySlug retrieves an add-on by its slug, case-insensitively.
func (s *InMemoryAddonStore) GetBySlug(slug string) *Addon {
	if a, ok := s.data.Load().slugIndex[strings.ToLower(slug)]; ok {
		return a
	}
	return nil
}

// GetByGUID retrieves an add-on by its GUID.
func (s *InMemoryAddonStore) GetByGUID(guid string) *Addon {
	if a, ok := s.data.Load().guidIndex[guid]; ok {
		return a
	}
	return nil
}

// GetAll returns a copy of every add-on, ordered by slug.
func (s *InMemoryAddonStore) GetAll() []Addon {
	snap := s.data.Load()
	out := make([]Addon, len(snap.addons))
	copy(out, snap.addons)
	return out
}

// Count returns the number of add-ons in the current snapshot.
func (s *InMemoryAddonStore) Count() int {
	return len(s.data.Load().addons)
}

// SetAddons atomically replaces the whole catalog.
func (s *InMemoryAddonStore) SetAddons(addons []Addon) error {
	s.data.Store(buildSnapshot(addons))
	return nil
}

// InsertAddon adds one add-on to the catalog.
func (s *InMemoryAddonStore) InsertAddon(addon *Addon) error {
	cur := s.data.Load()
	next := make([]Addon, len(cur.addons), len(cur.addons)+1)
	copy(next, cur.addons)
	next = append(next, *addon)
	s.data.Store(buildSnapshot(next))
	return nil
}

// UpdateAddon replaces the add-on with the same ID. The slug may change.
func (s *InMemoryAddonStore) UpdateAddon(addon Addon) error {
	cur := s.data.Load()
	next := make([]Addon, len(cur.addons))
	copy(next, cur.addons)
	found := false
	for i := range next {
		if next[i].ID == addon.ID {
			next[i] = addon
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}
	s.data.Store(buildSnapshot(next))
	return nil
}

// DeleteAddon removes the add-on with the given slug.
func (s *InMemoryAddonStore) DeleteAddon(slug string) error {
	cur := s.data.Load()
	next := make([]Addon, 0, len(cur.addons))
	found := false
	for _, a := range cur.addons {
		if strings.EqualFold(a.Slug, slug) {
			found = true
			continue
		}
		next = append(next, a)
	}
	if !found {
		return ErrNotFound
	}
	s.data.Store(buildSnapshot(next))
	return nil
}
