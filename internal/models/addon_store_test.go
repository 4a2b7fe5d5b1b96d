package models

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestAddonStoreLookups(t *testing.T) {
	store := NewInMemoryAddonStore()
	if err := store.SetAddons([]Addon{
		*NewTestAddon(1, "tab-tidy", "48.0", "*"),
		*NewTestAddon(2, "dark-shade", "57.0", "115.0"),
	}); err != nil {
		t.Fatalf("set addons: %v", err)
	}

	if a := store.GetBySlug("tab-tidy"); a == nil || a.ID != 1 {
		t.Fatalf("GetBySlug(tab-tidy) = %+v", a)
	}
	if a := store.GetBySlug("TAB-TIDY"); a == nil || a.ID != 1 {
		t.Error("slug lookup should be case-insensitive")
	}
	if a := store.GetByGUID("dark-shade@example.com"); a == nil || a.ID != 2 {
		t.Error("GUID lookup failed")
	}
	if a := store.GetBySlug("missing"); a != nil {
		t.Errorf("expected nil for unknown slug, got %+v", a)
	}
	if got := store.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}

	all := store.GetAll()
	if len(all) != 2 || all[0].Slug != "dark-shade" || all[1].Slug != "tab-tidy" {
		t.Errorf("GetAll() not sorted by slug: %+v", all)
	}
}

func TestAddonStoreCRUD(t *testing.T) {
	store := NewInMemoryAddonStore()

	if err := store.InsertAddon(NewTestAddon(1, "tab-tidy", "48.0", "*")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if store.Count() != 1 {
		t.Fatal("insert did not land")
	}

	updated := *NewTestAddon(1, "tab-tidy-pro", "52.0", "*")
	if err := store.UpdateAddon(updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.GetBySlug("tab-tidy") != nil {
		t.Error("old slug still resolves after update")
	}
	if a := store.GetBySlug("tab-tidy-pro"); a == nil || a.CurrentVersion.Compatibility[ClientAppFirefox].Min != "52.0" {
		t.Errorf("updated addon wrong: %+v", a)
	}

	if err := store.UpdateAddon(*NewTestAddon(99, "ghost", "1", "2")); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of unknown ID: err = %v, want ErrNotFound", err)
	}

	if err := store.DeleteAddon("tab-tidy-pro"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteAddon("tab-tidy-pro"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
	if store.Count() != 0 {
		t.Error("store not empty after delete")
	}
}

// Readers racing a reload must only ever observe complete snapshots.
func TestAddonStoreConcurrentReload(t *testing.T) {
	store := NewInMemoryAddonStore()
	seed := make([]Addon, 0, 10)
	for i := 1; i <= 10; i++ {
		seed = append(seed, *NewTestAddon(i, fmt.Sprintf("addon-%02d", i), "48.0", "*"))
	}
	if err := store.SetAddons(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if n := store.Count(); n != 10 {
					t.Errorf("observed partial snapshot of %d addons", n)
					return
				}
				if a := store.GetBySlug("addon-05"); a == nil {
					t.Error("addon-05 vanished mid-reload")
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if err := store.SetAddons(seed); err != nil {
			t.Fatalf("reload: %v", err)
		}
	}
	wg.Wait()
}
