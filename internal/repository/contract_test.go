package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/foodbridge/internal/model"
)

// runFoodRepositoryContract はFoodRepository実装が満たすべき振る舞いを検証する。
// missingID はストア形式として正しいが存在しないIDを返す。
func runFoodRepositoryContract(t *testing.T, newRepo func(t *testing.T) FoodRepository, missingID func() string) {
	t.Helper()
	ctx := context.Background()

	t.Run("InsertThenFindAll", func(t *testing.T) {
		repo := newRepo(t)

		res, err := repo.Insert(ctx, map[string]any{
			"donatorEmail": "a@x.com",
			"foodQuantity": 5.0,
			"foodStatus":   "available",
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if !res.Acknowledged || res.InsertedID == "" {
			t.Fatalf("unexpected insert result: %+v", res)
		}

		foods, err := repo.FindAll(ctx)
		if err != nil {
			t.Fatalf("FindAll: %v", err)
		}
		if len(foods) != 1 || foods[0].ID != res.InsertedID {
			t.Fatalf("FindAll = %+v, want the inserted record", foods)
		}
		if q, ok := foods[0].Quantity(); !ok || q != 5 {
			t.Errorf("quantity = %v, %v; want 5", q, ok)
		}
	})

	t.Run("FindByID_Missing_ReturnsNil", func(t *testing.T) {
		repo := newRepo(t)

		food, err := repo.FindByID(ctx, missingID())
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if food != nil {
			t.Errorf("FindByID = %+v, want nil", food)
		}
	})

	t.Run("InvalidID_ReturnsErrInvalidID", func(t *testing.T) {
		repo := newRepo(t)

		if _, err := repo.FindByID(ctx, "not-an-id"); !errors.Is(err, model.ErrInvalidID) {
			t.Errorf("FindByID error = %v, want ErrInvalidID", err)
		}
		if _, err := repo.Upsert(ctx, "not-an-id", map[string]any{"a": 1.0}); !errors.Is(err, model.ErrInvalidID) {
			t.Errorf("Upsert error = %v, want ErrInvalidID", err)
		}
		if _, err := repo.DeleteByID(ctx, "not-an-id"); !errors.Is(err, model.ErrInvalidID) {
			t.Errorf("DeleteByID error = %v, want ErrInvalidID", err)
		}
	})

	t.Run("Upsert_MissingID_CreatesRecordWithSuppliedFields", func(t *testing.T) {
		repo := newRepo(t)
		id := missingID()

		res, err := repo.Upsert(ctx, id, map[string]any{"foodStatus": "requested", "requesterEmail": "b@x.com"})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if res.UpsertedCount != 1 || res.MatchedCount != 0 || res.UpsertedID == nil || *res.UpsertedID != id {
			t.Fatalf("unexpected upsert result: %+v", res)
		}

		food, err := repo.FindByID(ctx, id)
		if err != nil || food == nil {
			t.Fatalf("FindByID = %v, %v", food, err)
		}
		doc := food.Document()
		if len(doc) != 2 || doc["foodStatus"] != "requested" || doc["requesterEmail"] != "b@x.com" {
			t.Errorf("document = %v, want exactly the supplied fields", doc)
		}
	})

	t.Run("Upsert_ExistingID_MergesSuppliedFieldsOnly", func(t *testing.T) {
		repo := newRepo(t)

		ins, err := repo.Insert(ctx, map[string]any{"foodName": "rice", "foodStatus": "available", "foodQuantity": 2.0})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}

		body := map[string]any{"foodStatus": "requested", "requesterEmail": "b@x.com"}
		res, err := repo.Upsert(ctx, ins.InsertedID, body)
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if res.MatchedCount != 1 || res.ModifiedCount != 1 || res.UpsertedID != nil {
			t.Errorf("unexpected first upsert result: %+v", res)
		}

		// 同じボディでの2回目は状態を変えない
		res, err = repo.Upsert(ctx, ins.InsertedID, body)
		if err != nil {
			t.Fatalf("second Upsert: %v", err)
		}
		if res.MatchedCount != 1 || res.ModifiedCount != 0 {
			t.Errorf("unexpected second upsert result: %+v", res)
		}

		food, err := repo.FindByID(ctx, ins.InsertedID)
		if err != nil || food == nil {
			t.Fatalf("FindByID = %v, %v", food, err)
		}
		doc := food.Document()
		if doc["foodName"] != "rice" || doc["foodStatus"] != "requested" || doc["requesterEmail"] != "b@x.com" {
			t.Errorf("document = %v", doc)
		}
		if q, ok := food.Quantity(); !ok || q != 2 {
			t.Errorf("quantity = %v, %v; want retained 2", q, ok)
		}
	})

	t.Run("FindByField_ExactStringMatch", func(t *testing.T) {
		repo := newRepo(t)

		for _, doc := range []map[string]any{
			{"foodStatus": "available", "n": 1.0},
			{"foodStatus": "Available", "n": 2.0},
			{"foodStatus": "requested", "n": 3.0},
			{"n": 4.0},
			{"foodStatus": "available", "n": 5.0},
		} {
			if _, err := repo.Insert(ctx, doc); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}

		foods, err := repo.FindByField(ctx, model.FieldFoodStatus, model.StatusAvailable)
		if err != nil {
			t.Fatalf("FindByField: %v", err)
		}
		if len(foods) != 2 {
			t.Fatalf("len = %d, want 2", len(foods))
		}
		for _, f := range foods {
			if s, ok := f.StringField(model.FieldFoodStatus); !ok || s != model.StatusAvailable {
				t.Errorf("unexpected status on %+v", f)
			}
		}
	})

	t.Run("FindTopByQuantity_OrderedAndCapped", func(t *testing.T) {
		repo := newRepo(t)

		for _, q := range []any{3.0, 10.0, "lots", 1.0, 7.0, 8.0, nil, 2.0, 9.0} {
			doc := map[string]any{}
			if q != nil {
				doc["foodQuantity"] = q
			}
			if _, err := repo.Insert(ctx, doc); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}

		foods, err := repo.FindTopByQuantity(ctx, 6)
		if err != nil {
			t.Fatalf("FindTopByQuantity: %v", err)
		}
		if len(foods) != 6 {
			t.Fatalf("len = %d, want 6", len(foods))
		}
		want := []float64{10, 9, 8, 7, 3, 2}
		for i, f := range foods {
			q, ok := f.Quantity()
			if !ok || q != want[i] {
				t.Errorf("foods[%d] quantity = %v, %v; want %v", i, q, ok, want[i])
			}
		}
	})

	t.Run("DeleteByID", func(t *testing.T) {
		repo := newRepo(t)

		ins, err := repo.Insert(ctx, map[string]any{"foodName": "bread"})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}

		res, err := repo.DeleteByID(ctx, ins.InsertedID)
		if err != nil {
			t.Fatalf("DeleteByID: %v", err)
		}
		if !res.Acknowledged || res.DeletedCount != 1 {
			t.Errorf("unexpected delete result: %+v", res)
		}

		res, err = repo.DeleteByID(ctx, ins.InsertedID)
		if err != nil {
			t.Fatalf("second DeleteByID: %v", err)
		}
		if res.DeletedCount != 0 {
			t.Errorf("DeletedCount = %d, want 0", res.DeletedCount)
		}
	})
}
