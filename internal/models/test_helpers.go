package models

// NewTestAddonStore creates a new in-memory catalog store for testing.
func NewTestAddonStore() AddonStore {
	return NewInMemoryAddonStore()
}

// NewTestAddon builds an extension with a current version declaring the
// given firefox range. Tests mutate the result to cover other shapes.
func NewTestAddon(id int, slug, min, max string) *Addon {
	return &Addon{
		ID:     id,
		Slug:   slug,
		GUID:   slug + "@example.com",
		Name:   slug,
		Type:   AddonTypeExtension,
		Active: true,
		CurrentVersion: &AddonVersion{
			ID:      id * 100,
			Version: "1.0",
			FileURL: "https://files.example.com/" + slug + "-1.0.xpi",
			Compatibility: Compatibility{
				ClientAppFirefox: {Min: min, Max: max},
			},
		},
	}
}
