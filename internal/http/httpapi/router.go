package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"photostudio/internal/http/handlers"
	"photostudio/internal/middleware"
)

// Options configures the router middleware.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Get("/v1/templates", app.ListTemplates)
		r.Post("/v1/styles/suggest", app.SuggestStyle)

		r.Get("/v1/presets", app.ListPresets)
		r.Delete("/v1/presets/{preset_id}", app.DeletePreset)

		r.Route("/v1/sessions", func(r chi.Router) {
			r.Post("/", app.CreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetSession)
				r.Delete("/", app.DeleteSession)

				r.Post("/modules/reference/slots", app.AddSlot)
				r.Post("/modules/{module}/slots/{index}", app.UploadImages)
				r.Delete("/modules/{module}/slots/{index}", app.RemoveImage)

				r.Put("/instruction", app.SetInstruction)
				r.Delete("/notification", app.DismissNotification)

				r.Post("/generate", app.Generate)
				r.Post("/results/{index}/retry", app.RetryResult)
				r.Get("/results/{index}/download", app.DownloadResult)
				r.Get("/results.zip", app.DownloadAll)

				r.Post("/presets", app.SavePreset)
				r.Post("/presets/{preset_id}/apply", app.ApplyPreset)
			})
		})
	})

	return r
}
