package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/apprentice-tracker/internal/metrics"
	"github.com/hitoshi/apprentice-tracker/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	UserResolver      middleware.UserResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              *middleware.CSRFConfig // nilの場合はCSRF検証を行わない
	CookieSecure      bool
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler // nilの場合は/metricsを公開しない
	HealthChecker     HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// 見習い
	ApprenticeService ApprenticeServiceInterface

	// レビュー
	ReviewService ReviewServiceInterface
	ReviewConfig  ReviewHandlerConfig
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS → CSRF
//	  公開ルート: / /login /register /logout /health /metrics /csrf-token
//	  認証ルート: Session → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.CSRF != nil {
		r.Use(middleware.NewCSRFMiddleware(*deps.CSRF))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, notFoundError())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, methodNotAllowedError())
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	apprenticeHandler := NewApprenticeHandler(deps.ApprenticeService)
	reviewHandler := NewReviewHandler(deps.ReviewService, deps.ReviewConfig)

	// --- 認証不要のルート ---

	r.Get("/", authHandler.Index)
	r.Head("/", authHandler.Index)
	r.Get("/logout", authHandler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.LoginMiddleware())
		r.Post("/login", authHandler.Login)
		r.Post("/register", authHandler.Register)
	})

	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker).Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	if deps.CSRF != nil {
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(*deps.CSRF))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.UserResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/dashboard", authHandler.Dashboard)

		// ユーザー管理（参照以外は管理者のみ）
		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Put("/", userHandler.Update)
				r.Delete("/", userHandler.Delete)
			})
		})

		// 見習い管理
		r.Route("/apprentices", func(r chi.Router) {
			r.Get("/", apprenticeHandler.List)
			r.Post("/", apprenticeHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", apprenticeHandler.Get)
				r.Put("/", apprenticeHandler.Update)
				r.Delete("/", apprenticeHandler.Delete)

				// GET /apprentices/{id}/reviews - 見習いごとのレビュー一覧
				r.Get("/reviews", reviewHandler.ListByApprentice)
			})
		})

		// レビュー管理
		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", reviewHandler.List)
			r.Post("/", reviewHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", reviewHandler.Get)
				r.Put("/", reviewHandler.Update)
				r.Delete("/", reviewHandler.Delete)
				r.Get("/document", reviewHandler.Document)
			})
		})
	})

	return r
}
