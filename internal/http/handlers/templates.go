package handlers

import "net/http"

func (a *App) ListTemplates(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"categories": a.Templates.Categories()})
}
