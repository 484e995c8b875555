package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"photostudio/internal/studio"
)

const multipartMemory = 8 << 20

func (a *App) UploadImages(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	module, err := studio.ParseModule(chi.URLParam(r, "module"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	index, ok := a.intParam(w, r, "index")
	if !ok {
		return
	}

	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.fail(w, r, err)
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	files := make([]io.Reader, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unreadable upload")
			return
		}
		opened = append(opened, f)
		files = append(files, f)
	}

	if err := s.Upload(r.Context(), module, index, files); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, s.View())
}

func (a *App) RemoveImage(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	module, err := studio.ParseModule(chi.URLParam(r, "module"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	index, ok := a.intParam(w, r, "index")
	if !ok {
		return
	}
	if err := s.RemoveImage(module, index); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, s.View())
}

func (a *App) AddSlot(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if !s.AddSlot() {
		a.error(w, http.StatusConflict, "module_full", "the reference module is full")
		return
	}
	a.json(w, http.StatusOK, s.View())
}
