package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hitoshi/foodbridge/internal/model"
)

// MongoFoodRepo はMongoDBコレクションを使う食品リポジトリ。
// IDはObjectIDの16進文字列表現。
type MongoFoodRepo struct {
	coll *mongo.Collection
}

// NewMongoFoodRepo はMongoFoodRepoを生成する。
func NewMongoFoodRepo(coll *mongo.Collection) *MongoFoodRepo {
	return &MongoFoodRepo{coll: coll}
}

// FindAll は全件を自然順で返す。
func (r *MongoFoodRepo) FindAll(ctx context.Context) ([]*model.Food, error) {
	cursor, err := r.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}
	return decodeFoods(ctx, cursor)
}

// FindByField は指定フィールドが文字列valueと一致するレコードを返す。
func (r *MongoFoodRepo) FindByField(ctx context.Context, field, value string) ([]*model.Food, error) {
	cursor, err := r.coll.Find(ctx, bson.D{{Key: field, Value: value}})
	if err != nil {
		return nil, fmt.Errorf("failed to find foods by %s: %w", field, err)
	}
	return decodeFoods(ctx, cursor)
}

// FindTopByQuantity はfoodQuantityの降順で最大limit件を返す。
// Mongoの型順序では文字列が数値より大きくなるため、数値以外をnullに寄せてから並べる。
func (r *MongoFoodRepo) FindTopByQuantity(ctx context.Context, limit int) ([]*model.Food, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$addFields", Value: bson.D{{Key: "_sortQuantity", Value: bson.D{
			{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$isNumber", Value: "$" + model.FieldFoodQuantity}},
				"$" + model.FieldFoodQuantity,
				nil,
			}},
		}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_sortQuantity", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: int64(limit)}},
		{{Key: "$project", Value: bson.D{{Key: "_sortQuantity", Value: 0}}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured foods: %w", err)
	}
	return decodeFoods(ctx, cursor)
}

// FindByID は指定IDのレコードを返す。見つからない場合はnilを返す。
func (r *MongoFoodRepo) FindByID(ctx context.Context, id string) (*model.Food, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find food by ID: %w", err)
	}

	return toFood(doc), nil
}

// Insert は新規レコードを作成する。
func (r *MongoFoodRepo) Insert(ctx context.Context, doc map[string]any) (*model.InsertResult, error) {
	res, err := r.coll.InsertOne(ctx, bson.M(withoutID(doc)))
	if err != nil {
		return nil, fmt.Errorf("failed to insert food: %w", err)
	}

	return &model.InsertResult{Acknowledged: true, InsertedID: idString(res.InsertedID)}, nil
}

// Upsert は指定IDのレコードに$setでdocをマージする。存在しなければ作成する。
func (r *MongoFoodRepo) Upsert(ctx context.Context, id string, doc map[string]any) (*model.UpdateResult, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M(withoutID(doc))
	if len(set) == 0 {
		// 空の$setはサーバーに拒否されるため、_idを同値で設定して照合のみ行う
		set = bson.M{"_id": oid}
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert food: %w", err)
	}

	result := &model.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
	}
	if res.UpsertedID != nil {
		upserted := idString(res.UpsertedID)
		result.UpsertedID = &upserted
	}
	return result, nil
}

// DeleteByID は指定IDのレコードを削除する。
func (r *MongoFoodRepo) DeleteByID(ctx context.Context, id string) (*model.DeleteResult, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return nil, fmt.Errorf("failed to delete food: %w", err)
	}

	return &model.DeleteResult{Acknowledged: true, DeletedCount: res.DeletedCount}, nil
}

// Ping はプライマリへの疎通を確認する。
func (r *MongoFoodRepo) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func decodeFoods(ctx context.Context, cursor *mongo.Cursor) ([]*model.Food, error) {
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode foods: %w", err)
	}

	foods := make([]*model.Food, 0, len(docs))
	for _, doc := range docs {
		foods = append(foods, toFood(doc))
	}
	return foods, nil
}

func toFood(doc bson.M) *model.Food {
	return model.NewFoodFromDocument(idString(doc["_id"]), doc)
}

func idString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", model.ErrInvalidID, id)
	}
	return oid, nil
}

// compile-time interface check
var _ FoodRepository = (*MongoFoodRepo)(nil)
