package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"media-quiz-service/internal/app"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Service *app.QuizService
	Assets  http.Handler // static pages; nil disables them
	Logger  zerolog.Logger

	// UploadsPerMinute caps file selections per client IP; <= 0 disables it.
	UploadsPerMinute int
	MaxUploadBytes   int64

	// AllowedOrigins enables CORS for pages hosted elsewhere.
	AllowedOrigins []string
}

// NewRouter builds the chi router for the REST API, the event socket, the
// operational endpoints and the static pages.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Range"},
			ExposedHeaders: []string{"Content-Length", "Content-Range"},
			MaxAge:         300,
		}))
	}

	h := &Handler{service: cfg.Service, logger: cfg.Logger, maxUploadBytes: cfg.MaxUploadBytes}
	ws := NewWSHandler(cfg.Service, cfg.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", ws.ServeWS)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.createDraft)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", h.restart)
			r.Get("/setup", h.draft)

			r.With(uploadLimit(cfg.UploadsPerMinute)).Put("/slots/{label}", h.selectFile)
			r.Delete("/slots/{label}", h.clearSlot)
			r.Get("/slots/{label}/thumbnail", h.thumbnail)
			r.Post("/start", h.start)

			r.Get("/quiz", h.enterQuiz)
			r.Post("/playback/ended", h.playbackEnded)
			r.Post("/playback/next", h.playbackNext)
			r.Post("/playback/error", h.playbackError)
			r.Post("/playback/retry", h.playbackRetry)
			r.Post("/replay/{label}", h.replay)
			r.Post("/replay/{label}/ended", h.replayEnded)
			r.Post("/proceed", h.proceed)

			r.Get("/answer", h.enterAnswer)
			r.Post("/answer", h.choose)
			r.Post("/back", h.back)

			r.Get("/media/{label}", h.media)
		})
	})

	if cfg.Assets != nil {
		r.Get("/*", cfg.Assets.ServeHTTP)
	}
	return r
}

func uploadLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Minute.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many uploads, try again in a minute"})
		}),
	)
}
