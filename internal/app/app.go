// Package app は設定の読み込み、依存関係のワイヤリング、各サブコマンドの起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/questmap/internal/auth"
	"github.com/hitoshi/questmap/internal/config"
	"github.com/hitoshi/questmap/internal/database"
	"github.com/hitoshi/questmap/internal/handler"
	"github.com/hitoshi/questmap/internal/leaderboard"
	"github.com/hitoshi/questmap/internal/logger"
	"github.com/hitoshi/questmap/internal/metrics"
	"github.com/hitoshi/questmap/internal/middleware"
	"github.com/hitoshi/questmap/internal/repository"
	"github.com/hitoshi/questmap/internal/security"
	"github.com/hitoshi/questmap/internal/user"
	"github.com/hitoshi/questmap/internal/worker/cleanup"
)

const (
	// dbConnectTimeout は起動時にDBの応答を待つ上限時間。
	dbConnectTimeout = 10 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの猶予時間。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 設定を読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// wが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("directory_driver", cfg.DirectoryDriver),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		action, err := ParseMigrateAction(args)
		if err != nil {
			return err
		}
		return runMigrate(cfg, action)
	default:
		return runServe(cfg)
	}
}

// Server はワイヤリング済みのHTTPハンドラーとバックグラウンド処理を保持する。
type Server struct {
	Handler http.Handler

	rateLimiter *middleware.RateLimiter
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewServer は設定に従ってリポジトリ、サービス、ルーターを構築する。
// DIRECTORY_DRIVERまたはSESSION_STOREがpostgresの場合はdbが必須。
// SESSION_STOREがmemoryの場合は期限切れセッションの削除をプロセス内で定期実行する。
// 終了時はCloseを呼ぶこと。
func NewServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*Server, error) {
	if cfg.UsesPostgres() && db == nil {
		return nil, errors.New("database connection is required for postgres drivers")
	}

	// 1. リポジトリの初期化
	var userRepo repository.UserRepository
	if cfg.DirectoryDriver == config.DriverPostgres {
		userRepo = repository.NewPostgresUserRepo(db)
	} else {
		userRepo = repository.NewMemoryUserRepo()
	}

	var sessionRepo repository.SessionRepository
	if cfg.SessionStore == config.DriverPostgres {
		sessionRepo = repository.NewPostgresSessionRepo(db)
	} else {
		sessionRepo = repository.NewMemorySessionRepo(0)
	}

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewProfileSanitizer()

	// 4. ドメインサービスの初期化
	oauthProvider := auth.NewFacebookOAuthProvider(auth.FacebookOAuthConfig{
		ClientID:     cfg.FacebookClientID,
		ClientSecret: cfg.FacebookClientSecret,
		RedirectURL:  cfg.FacebookRedirectURL(),
		GraphVersion: cfg.FacebookGraphVersion,
		HTTPClient:   ssrfGuard.NewSafeClient(cfg.ProviderTimeout),
	})
	authService := auth.NewService(
		oauthProvider, userRepo, sessionRepo, sanitizer, ssrfGuard,
		auth.ServiceConfig{
			SessionMaxAge:    time.Duration(cfg.SessionMaxAge) * time.Second,
			DirectoryTimeout: cfg.DirectoryTimeout,
		},
	)
	userService := user.NewService(userRepo, cfg.DirectoryTimeout)
	leaderboardService := leaderboard.NewService()

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)

	var healthChecker handler.HealthChecker
	if db != nil {
		healthChecker = db
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:          slog.Default(),
		SessionResolver: authService,
		SessionConfig: middleware.SessionConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			Observe:      collector.RecordSessionResolution,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		RateLimiter:       rateLimiter,

		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),

		HealthChecker: healthChecker,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
			OnLogin:       collector.RecordLogin,
		},

		LeaderboardService: leaderboardService,
		UserService:        userService,

		Static: handler.StaticConfig{
			DistDir:   cfg.DistDir,
			ClientDir: cfg.ClientDir,
		},
	})

	// 6. メモリセッションストアの期限切れ削除
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	if cfg.SessionStore == config.DriverMemory {
		job := cleanup.NewCleanupJob(sessionRepo, slog.Default(), collector)
		go func() {
			defer close(done)
			job.Start(ctx, cfg.SessionCleanupInterval)
		}()
	} else {
		close(done)
	}

	return &Server{
		Handler:     router,
		rateLimiter: rateLimiter,
		cancel:      cancel,
		done:        done,
	}, nil
}

// Close はバックグラウンド処理を停止する。
func (s *Server) Close() {
	s.cancel()
	<-s.done
	s.rateLimiter.Stop()
}

// NewRegistry はGoランタイムとプロセスのメトリクスを登録済みのレジストリを返す。
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// openDatabase はDB接続を開き、応答するまで待つ。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer cancel()

	if err := database.WaitForDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(databaseURL)),
	)
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// 必要に応じてDB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続（postgresドライバー使用時のみ）
	var db *sql.DB
	if cfg.UsesPostgres() {
		var err error
		db, err = openDatabase(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	// 2. ワイヤリング
	srv, err := NewServer(cfg, db, NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer srv.Close()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}

	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// PostgreSQLのセッションテーブルから期限切れセッションを定期削除する。
// メモリセッションストアはサーバープロセス内で削除されるため、ワーカーは不要。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.SessionStore != config.DriverPostgres {
		return fmt.Errorf("worker requires SESSION_STORE=%s, got %q", config.DriverPostgres, cfg.SessionStore)
	}

	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. クリーンアップジョブの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default(), collector)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			slog.Info("shutting down worker...")
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// クリーンアップをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行し、結果のスキーマバージョンを記録する。
func runMigrate(cfg *config.Config, action database.MigrateAction) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.Migrate(cfg.DatabaseURL, action)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed",
		slog.String("action", string(action)),
		slog.Uint64("version", uint64(status.Version)),
		slog.Bool("dirty", status.Dirty),
	)
	if status.Dirty {
		return fmt.Errorf("schema version %d is dirty; fix it manually before retrying", status.Version)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(healthURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(healthURL)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
