package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (a *App) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.Store.Create()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, s.View())
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, s.View())
}

func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.session(w, r); !ok {
		return
	}
	a.Store.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type instructionRequest struct {
	Text       *string `json:"text"`
	TemplateID string  `json:"template_id"`
}

func (a *App) SetInstruction(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req instructionRequest
	if !a.decode(w, r, &req) {
		return
	}
	switch {
	case strings.TrimSpace(req.TemplateID) != "":
		if _, err := s.ApplyTemplate(req.TemplateID); err != nil {
			a.fail(w, r, err)
			return
		}
	case req.Text != nil:
		s.SetInstruction(*req.Text)
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "text or template_id required")
		return
	}
	a.json(w, http.StatusOK, s.View())
}

func (a *App) DismissNotification(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	s.DismissNotification()
	a.json(w, http.StatusOK, s.View())
}
