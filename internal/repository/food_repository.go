// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"
	"sort"

	"github.com/hitoshi/foodbridge/internal/model"
)

// FoodRepository は食品ドキュメントコレクションの永続化インターフェース。
// すべての操作は単一ドキュメントに対する1回のストア呼び出しで完結する。
type FoodRepository interface {
	// FindAll は全件を挿入順で返す。
	FindAll(ctx context.Context) ([]*model.Food, error)

	// FindByField は指定フィールドが文字列valueと完全一致するレコードを返す。
	FindByField(ctx context.Context, field, value string) ([]*model.Food, error)

	// FindTopByQuantity はfoodQuantityの降順で最大limit件を返す。
	// 数値でないfoodQuantityを持つレコードは数値のレコードの後に並ぶ。
	FindTopByQuantity(ctx context.Context, limit int) ([]*model.Food, error)

	// FindByID は指定IDのレコードを返す。見つからない場合はnilを返す。
	// IDがストアの形式でない場合はmodel.ErrInvalidIDをラップしたエラーを返す。
	FindByID(ctx context.Context, id string) (*model.Food, error)

	// Insert は新規レコードを作成する。IDはストアが採番する。
	Insert(ctx context.Context, doc map[string]any) (*model.InsertResult, error)

	// Upsert は指定IDのレコードにdocのトップレベルフィールドを上書きマージする。
	// レコードが存在しない場合はdocのフィールドのみを持つレコードを作成する。
	Upsert(ctx context.Context, id string, doc map[string]any) (*model.UpdateResult, error)

	// DeleteByID は指定IDのレコードを削除する。
	DeleteByID(ctx context.Context, id string) (*model.DeleteResult, error)

	// Ping はストアへの疎通を確認する。
	Ping(ctx context.Context) error
}

// sortByQuantityDesc はfoodQuantity降順に安定ソートする。
// 数値を持たないレコードは末尾に寄せ、同順位は元の順序を保つ。
func sortByQuantityDesc(foods []*model.Food) {
	sort.SliceStable(foods, func(i, j int) bool {
		qi, okI := foods[i].Quantity()
		qj, okJ := foods[j].Quantity()
		switch {
		case okI && okJ:
			return qi > qj
		case okI:
			return true
		default:
			return false
		}
	})
}

// withoutID はマージ・挿入用にdocから_idを除いたコピーを返す。
func withoutID(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == model.FieldID {
			continue
		}
		out[k] = v
	}
	return out
}
