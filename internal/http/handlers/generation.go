package handlers

import (
	"context"
	"net/http"
	"strconv"

	"photostudio/internal/generation"
	"photostudio/internal/studio"
)

// Generate submits a new batch. The response is 202 with the pending batch,
// or 200 with the resolved batch when ?wait=true.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	run, err := s.Generate(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondRun(w, r, s, run)
}

// RetryResult regenerates one result of the current batch.
func (a *App) RetryResult(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	index, ok := a.intParam(w, r, "index")
	if !ok {
		return
	}
	run, err := s.Regenerate(r.Context(), index)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondRun(w, r, s, run)
}

func (a *App) respondRun(w http.ResponseWriter, r *http.Request, s *studio.Session, run *generation.Run) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		a.json(w, http.StatusAccepted, s.View())
		return
	}

	timeout := a.WaitTimeout
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := run.Wait(ctx); err != nil {
		a.json(w, http.StatusAccepted, s.View())
		return
	}
	a.json(w, http.StatusOK, s.View())
}
