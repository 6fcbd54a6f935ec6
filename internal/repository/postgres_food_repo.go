package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/foodbridge/internal/model"
)

// PostgresFoodRepo はPostgreSQLのJSONB列をドキュメントストアとして使う食品リポジトリ。
// foodsテーブルのスキーマはdatabase/migrationsで管理する。
type PostgresFoodRepo struct {
	db *sql.DB
}

// NewPostgresFoodRepo はPostgresFoodRepoを生成する。
func NewPostgresFoodRepo(db *sql.DB) *PostgresFoodRepo {
	return &PostgresFoodRepo{db: db}
}

// FindAll は全件を挿入順で返す。
func (r *PostgresFoodRepo) FindAll(ctx context.Context) ([]*model.Food, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, doc FROM foods ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}
	return scanFoods(rows)
}

// FindByField は指定フィールドが文字列valueと完全一致するレコードを返す。
// JSON値として比較するため、数値の5と文字列の"5"は一致しない。
func (r *PostgresFoodRepo) FindByField(ctx context.Context, field, value string) ([]*model.Food, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, doc FROM foods
		 WHERE doc -> $1::text = to_jsonb($2::text)
		 ORDER BY seq`,
		field, value,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find foods by %s: %w", field, err)
	}
	return scanFoods(rows)
}

// FindTopByQuantity はfoodQuantityの降順で最大limit件を返す。
func (r *PostgresFoodRepo) FindTopByQuantity(ctx context.Context, limit int) ([]*model.Food, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, doc FROM foods
		 ORDER BY CASE WHEN jsonb_typeof(doc -> 'foodQuantity') = 'number'
		               THEN (doc ->> 'foodQuantity')::numeric END DESC NULLS LAST,
		          seq
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured foods: %w", err)
	}
	return scanFoods(rows)
}

// FindByID は指定IDのレコードを返す。見つからない場合はnilを返す。
func (r *PostgresFoodRepo) FindByID(ctx context.Context, id string) (*model.Food, error) {
	key, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = r.db.QueryRowContext(ctx,
		`SELECT doc FROM foods WHERE id = $1`,
		key,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find food by ID: %w", err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return model.NewFoodFromDocument(key, doc), nil
}

// Insert は新規レコードを作成する。
func (r *PostgresFoodRepo) Insert(ctx context.Context, doc map[string]any) (*model.InsertResult, error) {
	raw, err := json.Marshal(withoutID(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode food: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO foods (id, doc) VALUES ($1, $2::jsonb)`,
		id, string(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert food: %w", err)
	}

	return &model.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

// Upsert は指定IDのレコードにdocを上書きマージする。存在しなければ作成する。
// マージはjsonbの||演算子（トップレベルの浅いマージ）で行う。
func (r *PostgresFoodRepo) Upsert(ctx context.Context, id string, doc map[string]any) (*model.UpdateResult, error) {
	key, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(withoutID(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode food: %w", err)
	}

	var inserted, changed bool
	err = r.db.QueryRowContext(ctx,
		`WITH prev AS (
		     SELECT doc FROM foods WHERE id = $1
		 ), up AS (
		     INSERT INTO foods (id, doc) VALUES ($1, $2::jsonb)
		     ON CONFLICT (id) DO UPDATE
		         SET doc = foods.doc || EXCLUDED.doc, updated_at = now()
		     RETURNING doc, (xmax = 0) AS inserted
		 )
		 SELECT up.inserted, (SELECT doc FROM prev) IS DISTINCT FROM up.doc
		 FROM up`,
		key, string(raw),
	).Scan(&inserted, &changed)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert food: %w", err)
	}

	if inserted {
		return &model.UpdateResult{
			Acknowledged:  true,
			UpsertedID:    &key,
			UpsertedCount: 1,
		}, nil
	}

	result := &model.UpdateResult{Acknowledged: true, MatchedCount: 1}
	if changed {
		result.ModifiedCount = 1
	}
	return result, nil
}

// DeleteByID は指定IDのレコードを削除する。
func (r *PostgresFoodRepo) DeleteByID(ctx context.Context, id string) (*model.DeleteResult, error) {
	key, err := parseUUID(id)
	if err != nil {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM foods WHERE id = $1`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete food: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return &model.DeleteResult{Acknowledged: true, DeletedCount: rowsAffected}, nil
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresFoodRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanFoods(rows *sql.Rows) ([]*model.Food, error) {
	defer rows.Close()

	foods := []*model.Food{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		foods = append(foods, model.NewFoodFromDocument(id, doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate foods: %w", err)
	}
	return foods, nil
}

func decodeDocument(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode food document: %w", err)
	}
	return doc, nil
}

// compile-time interface check
var _ FoodRepository = (*PostgresFoodRepo)(nil)
