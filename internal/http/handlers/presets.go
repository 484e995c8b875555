package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"photostudio/internal/studio"
)

type savePresetRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (a *App) SavePreset(w http.ResponseWriter, r *http.Request) {
	var req savePresetRequest
	if !a.decode(w, r, &req) {
		return
	}
	kind, err := studio.ParsePresetKind(req.Kind)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.Store.SavePreset(chi.URLParam(r, "id"), req.Name, kind)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, p)
}

func (a *App) ListPresets(w http.ResponseWriter, r *http.Request) {
	var kind studio.PresetKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := studio.ParsePresetKind(raw)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		kind = k
	}
	a.json(w, http.StatusOK, map[string]any{"items": a.Store.Presets(kind)})
}

func (a *App) ApplyPreset(w http.ResponseWriter, r *http.Request) {
	s, err := a.Store.ApplyPreset(chi.URLParam(r, "id"), chi.URLParam(r, "preset_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, s.View())
}

func (a *App) DeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.DeletePreset(chi.URLParam(r, "preset_id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
