package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/foodbridge/internal/metrics"
	"github.com/hitoshi/foodbridge/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ストア
	Store            FoodStore
	HealthChecker    HealthChecker
	DependencyHealth DependencyHealth

	// 認証
	Tokens        TokenService
	Cookie        CookieConfig
	RateLimiter   *middleware.RateLimiter // nilの場合はレート制限なし
	AllowedOrigin []string

	// 観測
	Metrics         metrics.Recorder
	MetricsGatherer prometheus.Gatherer
	Logger          *slog.Logger

	Production bool
}

// TokenService はトークンの発行・検証・失効を行う。auth.TokenServiceが実装する。
type TokenService interface {
	TokenIssuer
	middleware.TokenVerifier
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// トークンが必要なルートはさらに Token → RateLimit(General) を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(recorder))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Production))
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigin))

	foodHandler := NewFoodHandler(deps.Store)
	authHandler := NewAuthHandler(deps.Tokens, deps.Cookie, recorder)
	healthHandler := NewHealthHandler(deps.HealthChecker, deps.DependencyHealth)

	// --- 認証不要のルート ---
	r.Get("/", foodHandler.Root)
	r.Get("/foods", foodHandler.ListFoods)
	r.Get("/availableFoods", foodHandler.AvailableFoods)
	r.Get("/featured", foodHandler.Featured)
	r.Post("/addFood", foodHandler.AddFood)
	r.Put("/update/{id}", foodHandler.UpdateFood)
	r.Delete("/food/{id}", foodHandler.DeleteFood)

	// トークン発行（ログイン専用レート制限を追加）
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/jwt", authHandler.Login)
	r.Post("/logout", authHandler.Logout)
	r.Get("/logout", authHandler.Logout)

	r.Get("/health", healthHandler.Check)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.SetupMetricsRoute(deps.MetricsGatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Token → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTokenMiddleware(deps.Tokens, recorder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/food/{id}", foodHandler.GetFood)
		r.Put("/reqFood/{id}", foodHandler.RequestFood)

		// パスのメールアドレスがトークンの本人と一致する場合のみ許可
		r.With(middleware.NewOwnerGuard("email")).Get("/manageMyFoods/{email}", foodHandler.ManageMyFoods)
		r.With(middleware.NewOwnerGuard("email")).Get("/myFoodReq/{email}", foodHandler.MyFoodRequests)
	})

	return r
}
