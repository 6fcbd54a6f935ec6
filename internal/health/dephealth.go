// Package health はストア依存先の定期ヘルスチェックを提供する。
//
// PostgreSQLストアでは既存の*sql.DBを使うコネクションプールモードで監視し、
// 結果は/metricsに app_dependency_health などとして公開される。
package health

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// ServiceID はメトリクス上の自サービス名。
const ServiceID = "foodbridge"

// dependencyPostgres はPostgreSQL依存の名前。
const dependencyPostgres = "postgresql"

// Monitor は依存先を定期的にチェックし、最新の状態を保持する。
type Monitor struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// PostgresOptions はPostgreSQL監視の設定。
type PostgresOptions struct {
	Group         string        // メトリクスのグループ名
	DSN           string        // ラベル生成用の接続URL（接続には使わない）
	CheckInterval time.Duration // チェック間隔
	Registerer    prometheus.Registerer
}

// NewPostgresMonitor はdbを使ってPostgreSQLを監視するMonitorを生成する。
func NewPostgresMonitor(db *sql.DB, opts PostgresOptions, logger *slog.Logger) (*Monitor, error) {
	dh, err := dephealth.New(ServiceID, opts.Group,
		dephealth.WithLogger(logger),
		dephealth.AddDependency(dependencyPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)),
			dephealth.FromURL(opts.DSN),
			dephealth.CheckInterval(opts.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.WithRegisterer(opts.Registerer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency monitor: %w", err)
	}

	return &Monitor{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start は定期チェックを開始する。
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.dh.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dependency monitor: %w", err)
	}
	m.logger.Info("dependency monitoring started")
	return nil
}

// Stop は定期チェックを停止する。
func (m *Monitor) Stop() {
	m.dh.Stop()
	m.logger.Info("dependency monitoring stopped")
}

// Health は依存先ごとの最新状態を返す。キーは依存先名、値はtrueで正常。
// 初回チェック完了前は空のマップを返す。
func (m *Monitor) Health() map[string]bool {
	return m.dh.Health()
}
