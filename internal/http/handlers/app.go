package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"photostudio/internal/domain"
	"photostudio/internal/generation"
	"photostudio/internal/imagecodec"
	"photostudio/internal/providers/prompt"
	"photostudio/internal/studio"
	"photostudio/internal/templates"
)

const (
	defaultMaxUploadBytes = 20 << 20
	defaultWaitTimeout    = 3 * time.Minute
)

// App carries the dependencies of the HTTP handlers.
type App struct {
	Store          *studio.Store
	Templates      *templates.Catalog
	Suggester      prompt.Suggester
	Logger         zerolog.Logger
	MaxUploadBytes int64
	// WaitTimeout bounds how long ?wait=true blocks on a batch.
	WaitTimeout time.Duration
	// Mode is reported by the health check ("remote" or "synthetic").
	Mode string
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// fail maps a domain error onto an HTTP status and error code.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *generation.ValidationError
		decodeErr     *imagecodec.DecodeError
		cropErr       *imagecodec.CropError
		maxBytesErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &validationErr):
		a.error(w, http.StatusUnprocessableEntity, "validation_failed", validationErr.Message)
	case errors.As(err, &decodeErr):
		a.error(w, http.StatusUnprocessableEntity, "decode_failed", "An image couldn't be processed. Please try another file.")
	case errors.As(err, &cropErr):
		a.error(w, http.StatusUnprocessableEntity, "crop_failed", "An image couldn't be processed. Please try another file.")
	case errors.As(err, &maxBytesErr):
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit")
	case errors.Is(err, domain.ErrSessionNotFound):
		a.error(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, domain.ErrPresetNotFound):
		a.error(w, http.StatusNotFound, "not_found", "preset not found")
	case errors.Is(err, domain.ErrTemplateNotFound):
		a.error(w, http.StatusNotFound, "not_found", "template not found")
	case errors.Is(err, domain.ErrResultNotFound):
		a.error(w, http.StatusNotFound, "not_found", "result not found")
	case errors.Is(err, generation.ErrStaleInputs):
		a.error(w, http.StatusConflict, "inputs_changed", "images changed while submitting, please try again")
	case errors.Is(err, domain.ErrResultNotReady):
		a.error(w, http.StatusConflict, "result_not_ready", "result is not ready")
	case errors.Is(err, domain.ErrInvalidModule), errors.Is(err, domain.ErrSlotOutOfRange),
		errors.Is(err, domain.ErrNoImages), errors.Is(err, domain.ErrInvalidPreset):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, prompt.ErrSuggestionFailed):
		a.error(w, http.StatusBadGateway, "suggestion_failed", "Failed to generate a creative style. Please try again.")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) session(w http.ResponseWriter, r *http.Request) (*studio.Session, bool) {
	s, err := a.Store.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return s, true
}

func (a *App) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
