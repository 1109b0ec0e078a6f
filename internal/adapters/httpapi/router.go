package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// RouterOptions carries the collaborators mounted next to the API
type RouterOptions struct {
	CORSOrigins []string
	Live        http.Handler // websocket upgrade endpoint, optional
	Metrics     http.Handler // Prometheus exposition, optional
	Middleware  []func(http.Handler) http.Handler
}

// NewRouter builds the HTTP read surface
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	for _, mw := range opts.Middleware {
		r.Use(mw)
	}

	r.Get("/healthz", h.HandleHealth)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	if opts.Live != nil {
		r.Get("/ws", opts.Live.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(handlers.CompressHandler)

		r.Get("/", h.page("index", "Tank level"))
		r.Get("/security", h.page("security", "Night security"))
		r.Get("/report", h.page("report", "Pumping report"))
		r.Get("/alerts", h.page("alerts", "Alert detail"))
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(staticFS())))

		r.Route("/api", func(r chi.Router) {
			r.Use(cors(opts.CORSOrigins))
			r.Get("/data", h.HandleData)
			r.Get("/report", h.HandleReport)
		})
	})

	return r
}

func cors(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-Id"}),
	)
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	var event *zerolog.Event
	switch {
	case status >= 500:
		event = hlog.FromRequest(r).Error()
	case status >= 400:
		event = hlog.FromRequest(r).Warn()
	default:
		event = hlog.FromRequest(r).Debug()
	}
	event.
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("http request")
}
