package repository

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/foodbridge/internal/model"
)

// MemoryFoodRepo はプロセス内メモリに保持する食品リポジトリ。
// 開発用（STORE_DRIVER=memory）とエンドツーエンドテストで使用する。
// 保持するドキュメントのネストした値はインプレースで変更しない。
type MemoryFoodRepo struct {
	mu    sync.RWMutex
	docs  map[string]map[string]any
	order []string
}

// NewMemoryFoodRepo は空のMemoryFoodRepoを生成する。
func NewMemoryFoodRepo() *MemoryFoodRepo {
	return &MemoryFoodRepo{docs: make(map[string]map[string]any)}
}

// FindAll は全件を挿入順で返す。
func (r *MemoryFoodRepo) FindAll(ctx context.Context) ([]*model.Food, error) {
	return r.filter(func(map[string]any) bool { return true }), nil
}

// FindByField は指定フィールドが文字列valueと完全一致するレコードを返す。
func (r *MemoryFoodRepo) FindByField(ctx context.Context, field, value string) ([]*model.Food, error) {
	return r.filter(func(doc map[string]any) bool {
		s, ok := doc[field].(string)
		return ok && s == value
	}), nil
}

// FindTopByQuantity はfoodQuantityの降順で最大limit件を返す。
func (r *MemoryFoodRepo) FindTopByQuantity(ctx context.Context, limit int) ([]*model.Food, error) {
	foods := r.filter(func(map[string]any) bool { return true })
	sortByQuantityDesc(foods)
	if limit >= 0 && len(foods) > limit {
		foods = foods[:limit]
	}
	return foods, nil
}

// FindByID は指定IDのレコードを返す。見つからない場合はnilを返す。
func (r *MemoryFoodRepo) FindByID(ctx context.Context, id string) (*model.Food, error) {
	key, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[key]
	if !ok {
		return nil, nil
	}
	return model.NewFoodFromDocument(key, doc), nil
}

// Insert は新規レコードを作成する。
func (r *MemoryFoodRepo) Insert(ctx context.Context, doc map[string]any) (*model.InsertResult, error) {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[id] = withoutID(doc)
	r.order = append(r.order, id)

	return &model.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

// Upsert は指定IDのレコードにdocを上書きマージする。存在しなければ作成する。
func (r *MemoryFoodRepo) Upsert(ctx context.Context, id string, doc map[string]any) (*model.UpdateResult, error) {
	key, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	doc = withoutID(doc)

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.docs[key]
	if !ok {
		r.docs[key] = doc
		r.order = append(r.order, key)
		return &model.UpdateResult{
			Acknowledged:  true,
			UpsertedID:    &key,
			UpsertedCount: 1,
		}, nil
	}

	merged := make(map[string]any, len(existing)+len(doc))
	for k, v := range existing {
		merged[k] = v
	}
	modified := false
	for k, v := range doc {
		if old, present := existing[k]; !present || !reflect.DeepEqual(old, v) {
			modified = true
		}
		merged[k] = v
	}
	r.docs[key] = merged

	result := &model.UpdateResult{Acknowledged: true, MatchedCount: 1}
	if modified {
		result.ModifiedCount = 1
	}
	return result, nil
}

// DeleteByID は指定IDのレコードを削除する。
func (r *MemoryFoodRepo) DeleteByID(ctx context.Context, id string) (*model.DeleteResult, error) {
	key, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[key]; !ok {
		return &model.DeleteResult{Acknowledged: true}, nil
	}
	delete(r.docs, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return &model.DeleteResult{Acknowledged: true, DeletedCount: 1}, nil
}

// Ping は常に成功する。
func (r *MemoryFoodRepo) Ping(ctx context.Context) error {
	return nil
}

func (r *MemoryFoodRepo) filter(match func(map[string]any) bool) []*model.Food {
	r.mu.RLock()
	defer r.mu.RUnlock()

	foods := make([]*model.Food, 0, len(r.order))
	for _, id := range r.order {
		doc := r.docs[id]
		if match(doc) {
			foods = append(foods, model.NewFoodFromDocument(id, doc))
		}
	}
	return foods
}

// parseUUID はIDを正規化されたUUID文字列に変換する。
func parseUUID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidID, id)
	}
	return u.String(), nil
}

// compile-time interface check
var _ FoodRepository = (*MemoryFoodRepo)(nil)
