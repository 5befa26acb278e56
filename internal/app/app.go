package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/apprentice-tracker/internal/apprentice"
	"github.com/hitoshi/apprentice-tracker/internal/auth"
	"github.com/hitoshi/apprentice-tracker/internal/config"
	"github.com/hitoshi/apprentice-tracker/internal/database"
	"github.com/hitoshi/apprentice-tracker/internal/handler"
	"github.com/hitoshi/apprentice-tracker/internal/logger"
	"github.com/hitoshi/apprentice-tracker/internal/metrics"
	"github.com/hitoshi/apprentice-tracker/internal/middleware"
	"github.com/hitoshi/apprentice-tracker/internal/repository"
	"github.com/hitoshi/apprentice-tracker/internal/review"
	"github.com/hitoshi/apprentice-tracker/internal/security"
	"github.com/hitoshi/apprentice-tracker/internal/storage"
	"github.com/hitoshi/apprentice-tracker/internal/user"
	"github.com/hitoshi/apprentice-tracker/internal/worker/cleanup"
)

// defaultHealthcheckPort はSERVER_PORT未設定時にhealthcheckが接続するポート。
const defaultHealthcheckPort = "8000"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルを反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info", slog.String("error", err.Error()))
	}

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
			port = defaultHealthcheckPort
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
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, commandArgs(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newDocumentStore は設定されたバックエンドのDocumentStoreを生成する。
func newDocumentStore(ctx context.Context, cfg *config.Config) (storage.DocumentStore, error) {
	if cfg.StorageBackend == config.StorageS3 {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	}

	fsStore, err := storage.NewFilesystemStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	return fsStore, nil
}

// newMetrics はアプリケーション用のPrometheusレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、マイグレーションと管理者アカウントの投入を行った上で
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続とマイグレーション
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	apprenticeRepo := repository.NewPostgresApprenticeRepo(db)
	reviewRepo := repository.NewPostgresReviewRepo(db)

	// 3. 共通コンポーネントの初期化
	registry, mc := newMetrics()
	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)
	credPolicy, err := auth.NewCredentialPolicy(cfg.PasswordMinLength, cfg.UsernamePattern)
	if err != nil {
		return fmt.Errorf("invalid credential policy: %w", err)
	}
	sanitizer := security.NewTextSanitizer()
	txManager := database.NewTxManager(db)

	store, err := newDocumentStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize document storage: %w", err)
	}
	slog.Info("document storage ready", slog.String("backend", cfg.StorageBackend))

	// 4. ドメインサービスの初期化
	authService := auth.NewService(
		userRepo, sessionRepo, hasher, credPolicy, mc,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	if _, err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("failed to ensure admin account: %w", err)
	}

	userService := user.NewService(userRepo, sessionRepo, txManager, hasher, credPolicy)
	apprenticeService := apprentice.NewService(apprenticeRepo, reviewRepo, store, txManager, sanitizer, mc)
	reviewService := review.NewService(reviewRepo, apprenticeRepo, store, txManager, sanitizer, mc)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	var csrfConfig *middleware.CSRFConfig
	if cfg.CSRFEnabled {
		csrfConfig = &middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		}
	}

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		UserResolver:      authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF:              csrfConfig,
		CookieSecure:      cfg.CookieSecure,
		Metrics:           mc,
		MetricsHandler:    metrics.Handler(registry),
		HealthChecker:     db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:       userService,
		ApprenticeService: apprenticeService,

		ReviewService: reviewService,
		ReviewConfig:  handler.ReviewHandlerConfig{UploadMaxBytes: cfg.UploadMaxBytes},
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	_, mc := newMetrics()

	cleanupJob := cleanup.NewCleanupJob(sessionRepo, slog.Default(), mc)
	cleanupJob.Interval = cfg.SessionCleanupInterval

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cleanupJob.Interval),
	)

	// ブロッキング。ctxのキャンセルで戻る
	cleanupJob.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数に"down"を指定した場合はすべてのマイグレーションを巻き戻す。
func runMigrate(cfg *config.Config, args []string) error {
	direction, err := database.ParseMigrationDirection(args)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("direction", string(direction)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.Migrate(cfg.DatabaseURL, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
