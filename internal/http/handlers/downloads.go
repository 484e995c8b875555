package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

func (a *App) DownloadResult(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	index, ok := a.intParam(w, r, "index")
	if !ok {
		return
	}
	d, err := s.Download(r.Context(), index)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.attachment(w, d.Filename, d.MIME, d.Data)
}

func (a *App) DownloadAll(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	data, err := s.DownloadAll(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	name := fmt.Sprintf("photostudio-%s.zip", time.Now().UTC().Format("20060102-150405"))
	a.attachment(w, name, "application/zip", data)
}

func (a *App) attachment(w http.ResponseWriter, filename, mime string, data []byte) {
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
