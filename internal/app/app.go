package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hitoshi/foodbridge/internal/auth"
	"github.com/hitoshi/foodbridge/internal/config"
	"github.com/hitoshi/foodbridge/internal/database"
	"github.com/hitoshi/foodbridge/internal/handler"
	"github.com/hitoshi/foodbridge/internal/health"
	"github.com/hitoshi/foodbridge/internal/logger"
	"github.com/hitoshi/foodbridge/internal/metrics"
	"github.com/hitoshi/foodbridge/internal/middleware"
	"github.com/hitoshi/foodbridge/internal/repository"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
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
		port := os.Getenv("PORT")
		if port == "" {
			port = "5000"
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
		slog.String("store_driver", cfg.StoreDriver),
		slog.Bool("production", cfg.Production),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストアに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// server はserveモードで組み立てたハンドラーと、終了時に解放するリソース。
type server struct {
	handler http.Handler
	closers []func()
}

// Close は確保した順と逆順にリソースを解放する。
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// newServer は設定に従ってストア・トークン・計測・ルーターを組み立てる。
func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*server, error) {
	srv := &server{}

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. ストア
	store, err := openStore(ctx, cfg, reg, log, srv)
	if err != nil {
		srv.Close()
		return nil, err
	}
	instrumented := repository.NewInstrumentedFoodRepo(store.repo, collector)

	// 3. トークン
	var denylist *auth.DenyList
	if cfg.TokenDenyListSize > 0 {
		denylist = auth.NewDenyList(cfg.TokenDenyListSize, cfg.TokenTTL)
	}
	tokens := auth.NewTokenService(cfg.TokenSecret, cfg.TokenTTL, denylist)

	// 4. レート制限（configはreq/min単位）
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:  middleware.PerMinute(cfg.RateLimitGeneral),
		GeneralBurst: max(cfg.RateLimitGeneral, 1),
		LoginRate:    middleware.PerMinute(cfg.RateLimitLogin),
		LoginBurst:   max(cfg.RateLimitLogin, 1),
	}, collector)
	srv.closers = append(srv.closers, rl.Stop)

	// 5. ルーター
	deps := &handler.RouterDeps{
		Store:         instrumented,
		HealthChecker: instrumented,
		Tokens:        tokens,
		Cookie:        handler.CookieConfig{Production: cfg.Production},
		RateLimiter:   rl,
		AllowedOrigin: cfg.CORSAllowedOrigins,

		Metrics:         collector,
		MetricsGatherer: reg,
		Logger:          log,

		Production: cfg.Production,
	}
	if store.monitor != nil {
		deps.DependencyHealth = store.monitor
	}
	srv.handler = handler.NewRouter(deps)

	return srv, nil
}

// openedStore はドライバーごとに開いたストアと、Postgresの場合の依存先監視。
type openedStore struct {
	repo    repository.FoodRepository
	monitor *health.Monitor
}

// openStore はSTORE_DRIVERに応じてストアを開く。解放処理はsrv.closersに積む。
func openStore(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log *slog.Logger, srv *server) (*openedStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store; records are lost on restart")
		return &openedStore{repo: repository.NewMemoryFoodRepo()}, nil

	case config.DriverMongo:
		var client *mongo.Client
		err := database.Retry(ctx, retryPolicy(cfg), "mongodb connect", func(ctx context.Context) error {
			c, err := database.ConnectMongo(ctx, cfg.StoreURL())
			if err != nil {
				return err
			}
			client = c
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		srv.closers = append(srv.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				log.Error("failed to disconnect mongodb", slog.String("error", err.Error()))
			}
		})
		log.Info("mongodb connection established",
			slog.String("database", cfg.DBName),
			slog.String("collection", cfg.FoodsCollection),
		)
		coll := client.Database(cfg.DBName).Collection(cfg.FoodsCollection)
		return &openedStore{repo: repository.NewMongoFoodRepo(coll)}, nil

	default:
		db, err := database.Open(cfg.StoreURL())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		srv.closers = append(srv.closers, func() { db.Close() })

		if err := database.Retry(ctx, retryPolicy(cfg), "database ping", db.PingContext); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("database connection established")

		monitor, err := health.NewPostgresMonitor(db, health.PostgresOptions{
			Group:         environmentName(cfg),
			DSN:           cfg.StoreURL(),
			CheckInterval: cfg.DepHealthCheckInterval,
			Registerer:    reg,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := monitor.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start dependency monitor: %w", err)
		}
		srv.closers = append(srv.closers, monitor.Stop)

		return &openedStore{repo: repository.NewPostgresFoodRepo(db), monitor: monitor}, nil
	}
}

func retryPolicy(cfg *config.Config) database.RetryPolicy {
	p := database.DefaultRetryPolicy()
	p.Attempts = cfg.StoreConnectAttempts
	return p
}

func environmentName(cfg *config.Config) string {
	if cfg.Production {
		return "production"
	}
	return "development"
}

// runMigrate はデータベースマイグレーションを実行する。
//
//	migrate          未適用のマイグレーションをすべて適用する
//	migrate up       同上
//	migrate down [N] 直近N件（省略時1件）をロールバックする
//	migrate version  現在のバージョンを表示する
func runMigrate(cfg *config.Config, args []string) error {
	if cfg.StoreDriver != config.DriverPostgres {
		slog.Info("no migrations for store driver", slog.String("store_driver", cfg.StoreDriver))
		return nil
	}

	dsn := cfg.StoreURL()
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	slog.Info("running database migrations",
		slog.String("action", action),
		slog.String("database_url", maskDatabaseURL(dsn)),
	)

	switch action {
	case "up":
		if err := database.RunMigrations(dsn); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid rollback steps %q: %w", args[1], err)
			}
			steps = n
		}
		if err := database.RollbackMigrations(dsn, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	case "version":
		status, err := database.CurrentMigration(dsn)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current migration",
			slog.Uint64("version", uint64(status.Version)),
			slog.Bool("dirty", status.Dirty),
		)
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down or version)", action)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
