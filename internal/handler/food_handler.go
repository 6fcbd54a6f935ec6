package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/foodbridge/internal/middleware"
	"github.com/hitoshi/foodbridge/internal/model"
)

// FeaturedLimit は/featuredが返す最大件数。
const FeaturedLimit = 6

// RootMessage はGET /の応答本文。
const RootMessage = "Food Bridge is connected"

// FoodStore は食品ハンドラーが必要とするストアインターフェース。
// repository.FoodRepositoryの部分集合として定義する。
type FoodStore interface {
	FindAll(ctx context.Context) ([]*model.Food, error)
	FindByField(ctx context.Context, field, value string) ([]*model.Food, error)
	FindTopByQuantity(ctx context.Context, limit int) ([]*model.Food, error)
	FindByID(ctx context.Context, id string) (*model.Food, error)
	Insert(ctx context.Context, doc map[string]any) (*model.InsertResult, error)
	Upsert(ctx context.Context, id string, doc map[string]any) (*model.UpdateResult, error)
	DeleteByID(ctx context.Context, id string) (*model.DeleteResult, error)
}

// FoodHandler は食品コレクションのHTTPハンドラー。
// 各ハンドラーはストアを1回だけ呼び出し、結果をそのまま返す。
type FoodHandler struct {
	store FoodStore
}

// NewFoodHandler はFoodHandlerを生成する。
func NewFoodHandler(store FoodStore) *FoodHandler {
	return &FoodHandler{store: store}
}

// Root は疎通確認用の固定文字列を返す。
// GET /
func (h *FoodHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(RootMessage))
}

// ListFoods は全件を返す。
// GET /foods
func (h *FoodHandler) ListFoods(w http.ResponseWriter, r *http.Request) {
	foods, err := h.store.FindAll(r.Context())
	if err != nil {
		handleStoreError(w, r, "find_all", err)
		return
	}
	writeJSON(w, foods)
}

// AvailableFoods はfoodStatusが"available"のレコードを返す。
// GET /availableFoods
func (h *FoodHandler) AvailableFoods(w http.ResponseWriter, r *http.Request) {
	h.findByField(w, r, model.FieldFoodStatus, model.StatusAvailable)
}

// Featured はfoodQuantityの多い順に最大6件を返す。
// GET /featured
func (h *FoodHandler) Featured(w http.ResponseWriter, r *http.Request) {
	foods, err := h.store.FindTopByQuantity(r.Context(), FeaturedLimit)
	if err != nil {
		handleStoreError(w, r, "find_top_by_quantity", err)
		return
	}
	writeJSON(w, foods)
}

// GetFood は1件を返す。見つからない場合はnullを200で返す。
// GET /food/{id}
func (h *FoodHandler) GetFood(w http.ResponseWriter, r *http.Request) {
	food, err := h.store.FindByID(r.Context(), middleware.PathParam(r, "id"))
	if err != nil {
		handleStoreError(w, r, "find_by_id", err)
		return
	}
	writeJSON(w, food)
}

// AddFood はリクエストボディをそのまま新規レコードとして保存する。
// POST /addFood
func (h *FoodHandler) AddFood(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(r)
	if err != nil {
		writeInvalidBody(w)
		return
	}

	res, err := h.store.Insert(r.Context(), doc)
	if err != nil {
		handleStoreError(w, r, "insert", err)
		return
	}
	writeJSON(w, res)
}

// UpdateFood はボディのフィールドを指定IDのレコードにマージする。存在しなければ作成する。
// PUT /update/{id}
func (h *FoodHandler) UpdateFood(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r)
}

// RequestFood は受け取り希望者の情報を指定IDのレコードにマージする。
// 別の申請エンティティは作らず、同じレコードを更新する。
// PUT /reqFood/{id}
func (h *FoodHandler) RequestFood(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r)
}

// DeleteFood は指定IDのレコードを削除する。
// DELETE /food/{id}
func (h *FoodHandler) DeleteFood(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.DeleteByID(r.Context(), middleware.PathParam(r, "id"))
	if err != nil {
		handleStoreError(w, r, "delete_by_id", err)
		return
	}
	writeJSON(w, res)
}

// ManageMyFoods は寄付者として登録したレコードを返す。
// GET /manageMyFoods/{email}
func (h *FoodHandler) ManageMyFoods(w http.ResponseWriter, r *http.Request) {
	h.findByField(w, r, model.FieldDonatorEmail, middleware.PathParam(r, "email"))
}

// MyFoodRequests は受け取りを申請したレコードを返す。
// GET /myFoodReq/{email}
func (h *FoodHandler) MyFoodRequests(w http.ResponseWriter, r *http.Request) {
	h.findByField(w, r, model.FieldRequesterEmail, middleware.PathParam(r, "email"))
}

func (h *FoodHandler) findByField(w http.ResponseWriter, r *http.Request, field, value string) {
	foods, err := h.store.FindByField(r.Context(), field, value)
	if err != nil {
		handleStoreError(w, r, "find_by_field", err)
		return
	}
	writeJSON(w, foods)
}

func (h *FoodHandler) upsert(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(r)
	if err != nil {
		writeInvalidBody(w)
		return
	}

	res, err := h.store.Upsert(r.Context(), middleware.PathParam(r, "id"), doc)
	if err != nil {
		handleStoreError(w, r, "upsert", err)
		return
	}
	writeJSON(w, res)
}
