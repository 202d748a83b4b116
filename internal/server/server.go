package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
)

// NewRouter mounts the streaming routes and the JSON API on a chi router.
func NewRouter(server *Server, corsOrigin string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(corsOrigin))
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/health", server.HandleHealth)

	// Streaming routes: never compressed, never buffered
	r.Get("/events", server.HandleSSE)
	r.Get(codePathPrefix+"{code}", server.HandleSSEByCode)
	r.Get("/events/tenant/{tenant}", server.HandleSSEByTenant)
	r.Get("/ws", server.HandleWS)

	// JSON API
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(gzipMiddleware)

		apiRouter.Post("/events", server.HandlePublish)
		apiRouter.Post("/tenants/reload", server.HandleReload)
		apiRouter.Get("/tenants/{tenant}/state", server.HandleState)
		apiRouter.Get("/tenants/{tenant}/logs", server.HandleLogs)
		apiRouter.Delete("/tenants/{tenant}", server.HandleDeleteTenant)
	})

	return r
}

func gzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", maskCodePath(r.URL.Path)),
				zap.String("requestID", middleware.GetReqID(r.Context())),
			)
			next.ServeHTTP(w, r)
		})
	}
}

const codePathPrefix = "/events/code/"

// maskCodePath masks the live code segment of a join-by-code path.
func maskCodePath(path string) string {
	code, ok := strings.CutPrefix(path, codePathPrefix)
	if !ok || code == "" {
		return path
	}
	return codePathPrefix + maskCode(code)
}

// maskCode hides all but the first 2 characters of a live code.
func maskCode(code string) string {
	if len(code) <= 2 {
		return "****"
	}
	return code[:2] + "****"
}
