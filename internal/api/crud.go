package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openaddons/addonserve/internal/models"
)

// ===== Add-ons =====

func (s *Server) ListAddonsAdmin(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.Catalog.GetAll())
}

func (s *Server) CreateAddon(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}
	var a models.Addon
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if a.Slug == "" || a.GUID == "" || a.Name == "" {
		http.Error(w, "slug, guid and name required", http.StatusBadRequest)
		return
	}
	t, ok := models.ParseAddonType(string(a.Type))
	if !ok {
		http.Error(w, "unknown addon type", http.StatusBadRequest)
		return
	}
	a.Type = t
	if s.Catalog.GetBySlug(a.Slug) != nil {
		http.Error(w, "slug already exists", http.StatusConflict)
		return
	}
	// New listings go live immediately; deactivation goes through update.
	a.Active = true

	// First persist to PostgreSQL to get the ID
	if s.PG != nil {
		if err := s.PG.InsertAddon(&a); err != nil {
			s.Logger.Error("insert addon to postgres", zap.Error(err))
			http.Error(w, "failed to persist addon", http.StatusInternalServerError)
			return
		}
	}

	// Then insert into the catalog snapshot with the ID from PostgreSQL
	if err := s.Catalog.InsertAddon(&a); err != nil {
		s.Logger.Error("insert addon to catalog", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.notifyUpdate("addon", "create", a.ID)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, a)
}

func (s *Server) UpdateAddon(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}
	slug := mux.Vars(r)["slug"]
	existing := s.Catalog.GetBySlug(slug)
	if existing == nil {
		http.Error(w, "addon not found", http.StatusNotFound)
		return
	}
	var a models.Addon
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	a.ID = existing.ID
	if a.Type != "" {
		t, ok := models.ParseAddonType(string(a.Type))
		if !ok {
			http.Error(w, "unknown addon type", http.StatusBadRequest)
			return
		}
		a.Type = t
	} else {
		a.Type = existing.Type
	}
	// Listing updates never touch the version history.
	if a.CurrentVersion == nil {
		a.CurrentVersion = existing.CurrentVersion
	}

	// Update in the catalog snapshot
	if err := s.Catalog.UpdateAddon(a); err != nil {
		if err == models.ErrNotFound {
			http.Error(w, "addon not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("update addon in catalog", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Also update in PostgreSQL for persistence
	if s.PG != nil {
		if err := s.PG.UpdateAddon(a); err != nil {
			s.Logger.Error("update addon in postgres", zap.Error(err))
			// Don't fail the request, the snapshot is the serving source
		}
	}

	s.notifyUpdate("addon", "update", a.ID)
	writeJSON(w, a)
}

func (s *Server) DeleteAddon(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}
	slug := mux.Vars(r)["slug"]
	existing := s.Catalog.GetBySlug(slug)

	// Delete from the catalog snapshot
	if err := s.Catalog.DeleteAddon(slug); err != nil {
		if err == models.ErrNotFound {
			http.Error(w, "addon not found", http.StatusNotFound)
			return
		}
		s.Logger.Error("delete addon from catalog", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Also delete from PostgreSQL
	if s.PG != nil && existing != nil {
		if err := s.PG.DeleteAddon(existing.ID); err != nil {
			s.Logger.Error("delete addon from postgres", zap.Error(err))
		}
	}

	s.notifyUpdate("addon", "delete", slug)
	w.WriteHeader(http.StatusNoContent)
}

// ===== Versions =====

// CreateVersion publishes a new version for an add-on. The version is
// persisted to PostgreSQL and becomes the serving current version right away.
func (s *Server) CreateVersion(w http.ResponseWriter, r *http.Request) {
	if s.PG == nil {
		http.Error(w, "postgres unavailable", http.StatusInternalServerError)
		return
	}
	if s.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}
	slug := mux.Vars(r)["slug"]
	addon := s.Catalog.GetBySlug(slug)
	if addon == nil {
		http.Error(w, "addon not found", http.StatusNotFound)
		return
	}
	var v models.AddonVersion
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if v.Version == "" {
		http.Error(w, "version required", http.StatusBadRequest)
		return
	}
	for app, rng := range v.Compatibility {
		if _, ok := models.ParseClientApp(string(app)); !ok {
			http.Error(w, "unknown app in compatibility", http.StatusBadRequest)
			return
		}
		if rng.Min == "" || rng.Max == "" {
			http.Error(w, "compatibility range requires min and max", http.StatusBadRequest)
			return
		}
	}

	if err := s.PG.InsertVersion(addon.ID, &v); err != nil {
		s.Logger.Error("insert addon version", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Swap the new version into the serving snapshot
	updated := *addon
	updated.CurrentVersion = &v
	if err := s.Catalog.UpdateAddon(updated); err != nil {
		s.Logger.Error("update catalog with new version", zap.Error(err))
	}

	s.notifyUpdate("addon", "version", addon.ID)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, v)
}
