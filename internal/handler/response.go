// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/foodbridge/internal/middleware"
	"github.com/hitoshi/foodbridge/internal/model"
)

// writeJSON は値をJSONとして200で書き込む。
// ストアの結果は整形せずにそのまま返す（nilのレコードはnullになる）。
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleStoreError はストアエラーをログに記録し、詳細を隠した500を返す。
func handleStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error("store operation failed",
		slog.String("operation", op),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// decodeDocument はリクエストボディのJSONオブジェクトをマージ用ドキュメントに変換する。
// 既知フィールドの型付けはmodel.Foodに任せ、_idは取り除く。
func decodeDocument(r *http.Request) (map[string]any, error) {
	var food model.Food
	if err := json.NewDecoder(r.Body).Decode(&food); err != nil {
		return nil, err
	}
	return food.Document(), nil
}

func writeInvalidBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, model.NewInvalidRequestError("invalid request body"))
}
