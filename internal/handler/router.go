package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/questmap/internal/metrics"
	"github.com/hitoshi/questmap/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionResolver   middleware.SessionResolver
	SessionConfig     middleware.SessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	HSTS              bool
	RateLimiter       *middleware.RateLimiter

	// メトリクス（nilの場合は/metricsを公開しない）
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// ヘルスチェック（nil可）
	HealthChecker HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// API
	LeaderboardService LeaderboardServiceInterface
	UserService        UserServiceInterface

	// 静的ファイル
	Static StaticConfig
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → Metrics → SecurityHeaders → CORS
//	→ Session → RateLimit(/auth: Auth, /api: General)
//
// /health と /metrics、およびSPAのフォールバックはセッション解決の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Metrics != nil {
		r.Use(metrics.Middleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	leaderboardHandler := NewLeaderboardHandler(deps.LeaderboardService)
	userHandler := NewUserHandler(deps.UserService)
	staticHandler := NewStaticHandler(deps.Static)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- セッション解決後のルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver, deps.SessionConfig))

		// 認証ルート（IP単位のレート制限）
		r.Route("/auth", func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())

			r.Get("/facebook", authHandler.Login)
			r.Get("/facebook/callback", authHandler.Callback)
			r.Get("/me", authHandler.Me)
			r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
			r.With(middleware.NewCSRFMiddleware(deps.CSRFConfig)).Post("/logout", authHandler.Logout)
		})

		// 読み取りAPI（ユーザーまたはIP単位のレート制限）
		r.Route("/api", func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/leaderboard", leaderboardHandler.List)
			r.Get("/getUserInfo", userHandler.GetUserInfo)
			r.Get("/getAllUsers", userHandler.ListUsers)
			r.Get("/users/{id}", userHandler.GetUser)
		})

		// スタイルシート
		r.Get("/src/styles/styles.css", staticHandler.Stylesheet("styles.css"))
		r.Get("/src/styles/leaflet.css", staticHandler.Stylesheet("leaflet.css"))
	})

	// DIST_DIRの静的ファイルとSPAのフォールバック
	r.NotFound(staticHandler.Fallback)

	return r
}
