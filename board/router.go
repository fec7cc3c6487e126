package board

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter monta as rotas. extra roda depois dos middlewares do chi e antes
// dos handlers (ex.: ratelimit.ConcurrencyMiddleware).
func NewRouter(h *Handler, extra ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(api chi.Router) {
		api.Use(extra...)

		api.Post("/users", h.CreateUser)
		api.Route("/users/{userID}", func(ur chi.Router) {
			ur.Get("/", h.GetUser)
			ur.Get("/messages", h.ListMessages)
			ur.Post("/messages", h.PostMessage)
			ur.Get("/rate-limit", h.RateLimitStatus)
			ur.Delete("/rate-limit", h.ResetRateLimit)
		})
		api.Delete("/messages/{messageID}", h.DeleteMessage)
	})

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("elapsed", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
