package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/showcase/internal/application"
	"github.com/hitoshi/showcase/internal/auth"
	"github.com/hitoshi/showcase/internal/catalog"
	"github.com/hitoshi/showcase/internal/config"
	"github.com/hitoshi/showcase/internal/database"
	"github.com/hitoshi/showcase/internal/handler"
	"github.com/hitoshi/showcase/internal/logger"
	"github.com/hitoshi/showcase/internal/metrics"
	"github.com/hitoshi/showcase/internal/middleware"
	"github.com/hitoshi/showcase/internal/model"
	"github.com/hitoshi/showcase/internal/notify"
	"github.com/hitoshi/showcase/internal/product"
	"github.com/hitoshi/showcase/internal/repository"
	"github.com/hitoshi/showcase/internal/scholarship"
	"github.com/hitoshi/showcase/internal/security"
	"github.com/hitoshi/showcase/internal/worker/catalogsync"
	"github.com/hitoshi/showcase/internal/worker/cleanup"
	"github.com/hitoshi/showcase/internal/worker/schedule"
)

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
			port = "8080"
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
		slog.String("store_driver", cfg.StoreDriver),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, CommandArgs(args))
	case CommandImport:
		return runImport(cfg, CommandArgs(args))
	default:
		return runServe(cfg)
	}
}

// backends はプロセスが保持する外部接続。
type backends struct {
	db     *sql.DB
	stores repository.ListingStores
	checks map[string]handler.HealthChecker
	closer []func()
}

func (b *backends) Close() {
	for i := len(b.closer) - 1; i >= 0; i-- {
		b.closer[i]()
	}
}

// openBackends はPostgreSQLに接続し、STORE_DRIVERに応じた掲載ストアを組み立てる。
// セッション・ユーザーは常にPostgreSQLに保存する。
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	slog.Info("database connection established")

	b := &backends{
		db:     db,
		checks: map[string]handler.HealthChecker{"database": db},
		closer: []func(){func() { db.Close() }},
	}

	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closer = append(b.closer, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		})
		mdb := client.Database(cfg.MongoDatabase)
		if err := database.EnsureMongoIndexes(ctx, mdb); err != nil {
			b.Close()
			return nil, err
		}
		b.stores = repository.NewMongoListingStores(mdb)
		b.checks["mongo"] = handler.HealthCheckFunc(func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		})
		slog.Info("mongo connection established", slog.String("database", cfg.MongoDatabase))
	default:
		b.stores = repository.NewPostgresListingStores(db)
	}
	return b, nil
}

// newLimiters はレート制限の実装を選ぶ。REDIS_URLがあればインスタンス間で共有する。
func newLimiters(ctx context.Context, cfg *config.Config, b *backends) (general, applications middleware.Limiter, err error) {
	generalPolicy := middleware.RatePolicy{Name: "general", PerMinute: cfg.RateLimitGeneral}
	applicationsPolicy := middleware.RatePolicy{Name: "applications", PerMinute: cfg.RateLimitApplications}

	if cfg.RedisURL == "" {
		g := middleware.NewMemoryLimiter(generalPolicy, 0)
		a := middleware.NewMemoryLimiter(applicationsPolicy, 0)
		b.closer = append(b.closer, g.Stop, a.Stop)
		return g, a, nil
	}

	rdb, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	b.closer = append(b.closer, func() { rdb.Close() })
	b.checks["redis"] = handler.HealthCheckFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	slog.Info("redis connection established")
	return middleware.NewRedisLimiter(rdb, generalPolicy), middleware.NewRedisLimiter(rdb, applicationsPolicy), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. 外部接続
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	generalLimiter, applicationLimiter, err := newLimiters(ctx, cfg, b)
	if err != nil {
		return err
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. ドメインサービス
	sanitizer := security.NewListingSanitizer()
	productSvc := product.NewService(b.stores.Products, sanitizer, cfg.UploadMaxBytes)
	scholarshipSvc := scholarship.NewService(b.stores.Scholarships, sanitizer, cfg.UploadMaxBytes)
	importer, err := scholarship.NewImporter(b.stores.Scholarships, sanitizer)
	if err != nil {
		return err
	}

	notifier, err := notify.New(ctx, notify.Config{
		AWSRegion:     cfg.AWSRegion,
		FromAddress:   cfg.SESFromAddress,
		AdminTopicARN: cfg.SNSAdminTopicARN,
		SiteName:      cfg.SiteName,
	})
	if err != nil {
		return fmt.Errorf("failed to set up notifications: %w", err)
	}
	applicationSvc := application.NewService(
		b.stores.Applications, productSvc, scholarshipSvc, notifier, collector, cfg.UploadMaxBytes,
	)

	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider,
		repository.NewPostgresUserRepo(b.db),
		repository.NewPostgresIdentityRepo(b.db),
		repository.NewPostgresSessionRepo(b.db),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	adminPolicy := auth.NewAdminPolicy(cfg.AdminEmail)

	// 4. 共有スナップショット
	productLoader := catalog.NewLoader[*model.Product]("products", productSvc.ListAll, cfg.SnapshotTTL, collector)
	scholarshipLoader := catalog.NewLoader[*model.Scholarship]("scholarships", scholarshipSvc.ListAll, cfg.SnapshotTTL, collector)

	// 5. ハンドラー
	listCfg := handler.ListConfig{
		PageSize:       cfg.PageSize,
		UploadMaxBytes: cfg.UploadMaxBytes,
	}
	deps := &handler.RouterDeps{
		Logger:         slog.Default(),
		StatusRecorder: collector,

		SessionResolver: authService,
		AdminPolicy:     adminPolicy,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		GeneralLimiter:     generalLimiter,
		ApplicationLimiter: applicationLimiter,

		Auth: handler.NewAuthHandler(authService, handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
			AdminPolicy:   adminPolicy,
		}),
		Products:     handler.NewProductHandler(productSvc, productLoader, collector, listCfg),
		Scholarships: handler.NewScholarshipHandler(scholarshipSvc, importer, scholarshipLoader, collector, listCfg),
		Applications: handler.NewApplicationHandler(applicationSvc, listCfg),
		Admin: handler.NewAdminHandler(
			handler.NewSnapshotRefresher[*model.Product]("products", productLoader),
			handler.NewSnapshotRefresher[*model.Scholarship]("scholarships", scholarshipLoader),
		),

		Health:  handler.NewHealthHandler(b.checks),
		Metrics: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
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
// 奨学金カタログの同期と期限切れセッションの削除をcronスケジュールで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	sanitizer := security.NewListingSanitizer()
	importer, err := scholarship.NewImporter(b.stores.Scholarships, sanitizer)
	if err != nil {
		return err
	}
	syncer := catalogsync.NewSyncer(
		security.NewSourceGuard(cfg.SyncMaxSize),
		importer,
		b.stores.Scholarships,
		sanitizer,
		collector,
		slog.Default(),
		catalogsync.Config{
			Timeout:       cfg.SyncTimeout,
			MaxConcurrent: cfg.SyncMaxConcurrent,
		},
	)
	cleanupJob := cleanup.NewSessionCleanupJob(b.db, slog.Default())

	scheduler := schedule.New(slog.Default())
	syncJob := schedule.JobFunc(func(ctx context.Context) error {
		syncer.RunOnce(ctx, cfg.SyncSources)
		return nil
	})
	if len(cfg.SyncSources) > 0 {
		if err := scheduler.Add("catalog-sync", cfg.SyncSchedule, syncJob); err != nil {
			return err
		}
	} else {
		slog.Warn("SYNC_SOURCES is empty; catalog sync is disabled")
	}
	if err := scheduler.Add("session-cleanup", cfg.CleanupSchedule, cleanupJob); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.Handler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()
	defer metricsServer.Close()

	slog.Info("worker starting",
		slog.String("sync_schedule", cfg.SyncSchedule),
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
		slog.Int("source_count", len(cfg.SyncSources)),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	// 起動直後に1回実行
	go func() {
		if len(cfg.SyncSources) > 0 {
			syncJob.Run(ctx)
		}
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}
	}()

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
//
//	migrate [up]          未適用のマイグレーションを全て適用する
//	migrate rollback [n]  直近n件（既定1件）を取り消す
//	migrate version       現在のバージョンを表示する
func runMigrate(cfg *config.Config, args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	slog.Info("running database migrations",
		slog.String("action", action),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case "up":
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "rollback":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid rollback steps: %q", args[1])
			}
			steps = n
		}
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		return fmt.Errorf("unknown migrate action: %q", action)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runImport はJSONカタログファイルを奨学金として一括登録する。
func runImport(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: showcase import <file>")
	}
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	ctx := context.Background()
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	importer, err := scholarship.NewImporter(b.stores.Scholarships, security.NewListingSanitizer())
	if err != nil {
		return err
	}
	items, err := importer.Import(ctx, data, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	slog.Info("import completed",
		slog.String("file", path),
		slog.Int("count", len(items)),
	)
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
