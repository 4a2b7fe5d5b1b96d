package db

import (
	"fmt"
	"strings"

	"github.com/openaddons/addonserve/internal/models"
)

// RefreshCatalog loads the active catalog from Postgres, validates it, and
// atomically swaps it into the store. Readers keep the previous snapshot
// until the swap completes, so a failed load never serves partial data.
// The loaded addons are returned so callers can report catalog sizes.
func RefreshCatalog(pg *Postgres, store models.AddonStore) ([]models.Addon, error) {
	addons, err := pg.LoadAddons()
	if err != nil {
		return nil, fmt.Errorf("load addons: %w", err)
	}
	if err := ValidateCatalog(addons); err != nil {
		return nil, err
	}
	if err := store.SetAddons(addons); err != nil {
		return nil, fmt.Errorf("swap catalog: %w", err)
	}
	return addons, nil
}

// ValidateCatalog rejects catalogs that would serve broken data: duplicate
// slugs or GUIDs, and declared ranges with empty bounds.
func ValidateCatalog(addons []models.Addon) error {
	slugs := make(map[string]struct{}, len(addons))
	guids := make(map[string]struct{}, len(addons))
	for i := range addons {
		a := &addons[i]
		if a.Slug == "" {
			return fmt.Errorf("addon %d has no slug", a.ID)
		}
		key := strings.ToLower(a.Slug)
		if _, dup := slugs[key]; dup {
			return fmt.Errorf("addon %d duplicates slug %s", a.ID, a.Slug)
		}
		slugs[key] = struct{}{}
		if _, dup := guids[a.GUID]; dup {
			return fmt.Errorf("addon %d duplicates guid %s", a.ID, a.GUID)
		}
		guids[a.GUID] = struct{}{}
		if a.CurrentVersion == nil {
			continue
		}
		for app, r := range a.CurrentVersion.Compatibility {
			if r.Min == "" || r.Max == "" {
				return fmt.Errorf("addon %s declares an empty range for %s", a.Slug, app)
			}
		}
	}
	return nil
}

// CountByType returns the number of addons per type, for catalog metrics.
func CountByType(addons []models.Addon) map[models.AddonType]int {
	counts := make(map[models.AddonType]int)
	for i := range addons {
		counts[addons[i].Type]++
	}
	return counts
}
