package repository

import (
	"context"
	"time"

	"github.com/hitoshi/foodbridge/internal/model"
)

// StoreMetrics はストア操作の計測先。metrics.Collectorが実装する。
type StoreMetrics interface {
	RecordStoreOperation(operation string, err error, duration time.Duration)
}

// InstrumentedFoodRepo は任意のFoodRepositoryの各操作の結果とレイテンシを記録する。
type InstrumentedFoodRepo struct {
	next    FoodRepository
	metrics StoreMetrics
}

// NewInstrumentedFoodRepo はnextをラップしたInstrumentedFoodRepoを生成する。
func NewInstrumentedFoodRepo(next FoodRepository, m StoreMetrics) *InstrumentedFoodRepo {
	return &InstrumentedFoodRepo{next: next, metrics: m}
}

func (r *InstrumentedFoodRepo) observe(op string, start time.Time, err error) {
	r.metrics.RecordStoreOperation(op, err, time.Since(start))
}

// FindAll は次のリポジトリのFindAllを計測して呼び出す。
func (r *InstrumentedFoodRepo) FindAll(ctx context.Context) ([]*model.Food, error) {
	start := time.Now()
	foods, err := r.next.FindAll(ctx)
	r.observe("find_all", start, err)
	return foods, err
}

// FindByField は次のリポジトリのFindByFieldを計測して呼び出す。
func (r *InstrumentedFoodRepo) FindByField(ctx context.Context, field, value string) ([]*model.Food, error) {
	start := time.Now()
	foods, err := r.next.FindByField(ctx, field, value)
	r.observe("find_by_field", start, err)
	return foods, err
}

// FindTopByQuantity は次のリポジトリのFindTopByQuantityを計測して呼び出す。
func (r *InstrumentedFoodRepo) FindTopByQuantity(ctx context.Context, limit int) ([]*model.Food, error) {
	start := time.Now()
	foods, err := r.next.FindTopByQuantity(ctx, limit)
	r.observe("find_top_by_quantity", start, err)
	return foods, err
}

// FindByID は次のリポジトリのFindByIDを計測して呼び出す。
func (r *InstrumentedFoodRepo) FindByID(ctx context.Context, id string) (*model.Food, error) {
	start := time.Now()
	food, err := r.next.FindByID(ctx, id)
	r.observe("find_by_id", start, err)
	return food, err
}

// Insert は次のリポジトリのInsertを計測して呼び出す。
func (r *InstrumentedFoodRepo) Insert(ctx context.Context, doc map[string]any) (*model.InsertResult, error) {
	start := time.Now()
	res, err := r.next.Insert(ctx, doc)
	r.observe("insert", start, err)
	return res, err
}

// Upsert は次のリポジトリのUpsertを計測して呼び出す。
func (r *InstrumentedFoodRepo) Upsert(ctx context.Context, id string, doc map[string]any) (*model.UpdateResult, error) {
	start := time.Now()
	res, err := r.next.Upsert(ctx, id, doc)
	r.observe("upsert", start, err)
	return res, err
}

// DeleteByID は次のリポジトリのDeleteByIDを計測して呼び出す。
func (r *InstrumentedFoodRepo) DeleteByID(ctx context.Context, id string) (*model.DeleteResult, error) {
	start := time.Now()
	res, err := r.next.DeleteByID(ctx, id)
	r.observe("delete_by_id", start, err)
	return res, err
}

// Ping は次のリポジトリのPingを計測して呼び出す。
func (r *InstrumentedFoodRepo) Ping(ctx context.Context) error {
	start := time.Now()
	err := r.next.Ping(ctx)
	r.observe("ping", start, err)
	return err
}

// compile-time interface check
var _ FoodRepository = (*InstrumentedFoodRepo)(nil)
