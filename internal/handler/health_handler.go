package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/foodbridge/internal/middleware"
	"github.com/hitoshi/foodbridge/internal/model"
)

// healthCheckTimeout はストア疎通確認の上限時間。
const healthCheckTimeout = 3 * time.Second

// HealthChecker はストアへの疎通確認インターフェース。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// DependencyHealth は依存先の定期チェック結果を提供する。health.Monitorが実装する。
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	store HealthChecker
	deps  DependencyHealth
}

// NewHealthHandler はHealthHandlerを生成する。depsはnilでもよい。
func NewHealthHandler(store HealthChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{store: store, deps: deps}
}

type healthResponse struct {
	Status       string          `json:"status"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
}

// Check はストアに疎通できれば200を返す。
// 依存先監視が有効で、いずれかが異常と報告されている場合も503を返す。
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		slog.Warn("health check failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, model.NewUnavailableError())
		return
	}

	var states map[string]bool
	if h.deps != nil {
		states = h.deps.Health()
		for name, ok := range states {
			if !ok {
				slog.Warn("dependency unhealthy", slog.String("dependency", name))
				middleware.WriteErrorResponse(w, model.NewUnavailableError())
				return
			}
		}
	}

	writeJSON(w, healthResponse{Status: "ok", Dependencies: states})
}
