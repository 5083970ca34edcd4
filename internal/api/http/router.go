package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	auth "github.com/nehasri1207/RankSarthi/internal/auth/middleware"
	"github.com/nehasri1207/RankSarthi/internal/config"
	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/rbac"
	"github.com/nehasri1207/RankSarthi/internal/standing"
	"github.com/nehasri1207/RankSarthi/internal/submission"
)

// Deps is everything the router mounts.
type Deps struct {
	Config     config.ServerConfig
	Store      exam.Store
	Auth       *auth.AuthService
	Submission *submission.Service
	Standings  *standing.Engine
	Runner     NormalizationRunner
	Log        *slog.Logger

	// Optional.
	Ready   Pinger
	Metrics http.Handler
}

func NewRouter(d Deps) chi.Router {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	v := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Log), middleware.Recoverer)
	if len(d.Config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.Config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", HealthzHandler)
	r.Get("/readyz", ReadyzHandler(d.Ready))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Post("/auth/login", auth.LoginHandler(d.Auth))

	// Public candidate surface
	r.Get("/exams", ListExamsHandler(d.Store))
	r.Get("/exams/{examID}", GetExamHandler(d.Store))
	r.Get("/exams/{examID}/standing", StandingHandler(d.Store, d.Standings))

	submit := SubmitHandler(d.Submission, v)
	if d.Config.SubmitRPS > 0 {
		limiter := NewRateLimiter(d.Config.SubmitRPS, d.Config.SubmitBurst, d.Log)
		r.With(limiter.Handler).Post("/results", submit)
	} else {
		r.Post("/results", submit)
	}

	// Admin (JWT → role in context → RBAC)
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(auth.JWTMiddleware(d.Auth))

		ar.With(rbac.Require(rbac.PermExamCreate)).
			Post("/exams", CreateExamHandler(d.Store, v))
		ar.With(rbac.Require(rbac.PermExamManage)).
			Put("/exams/{examID}/visibility", SetVisibilityHandler(d.Store))
		ar.With(rbac.Require(rbac.PermExamManage)).
			Post("/exams/{examID}/rank-bands", AddRankBandHandler(d.Store, v))
		ar.With(rbac.Require(rbac.PermNormalizationRun)).
			Post("/exams/{examID}/normalize", NormalizeHandler(d.Runner))
		ar.With(rbac.RequireAny(rbac.PermExamExport, rbac.PermExamManage)).
			Get("/exams/{examID}/export.xlsx", ExportHandler(d.Store))
	})
	return r
}

// requestLogger logs one line per request through log.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
