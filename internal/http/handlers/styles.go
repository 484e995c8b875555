package handlers

import (
	"net/http"
)

type suggestStyleRequest struct {
	Theme string `json:"theme"`
}

// SuggestStyle turns a short theme into a one-sentence style instruction.
func (a *App) SuggestStyle(w http.ResponseWriter, r *http.Request) {
	var req suggestStyleRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Suggester.Suggest(r.Context(), req.Theme)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
