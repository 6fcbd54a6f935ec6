// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"fmt"
)

// 既知フィールド名。ストア上のドキュメントキーとJSONキーは同一。
const (
	FieldID             = "_id"
	FieldDonatorEmail   = "donatorEmail"
	FieldRequesterEmail = "requesterEmail"
	FieldFoodStatus     = "foodStatus"
	FieldFoodQuantity   = "foodQuantity"
)

// StatusAvailable は受け取り可能な食品を表すfoodStatusの値。
const StatusAvailable = "available"

// Food は寄付された食品レコードを表す。
// 既知フィールドは型付きで保持し、それ以外（および期待する型でない既知フィールド）は
// Extraにそのまま保持する。スキーマ検証は行わない。
type Food struct {
	ID             string
	DonatorEmail   *string
	RequesterEmail *string
	FoodStatus     *string
	FoodQuantity   *float64

	// Extra は既知フィールド以外の任意の属性。
	Extra map[string]any
}

// NewFoodFromDocument はストアのドキュメントからFoodを構築する。
// docに_idが含まれていても無視し、idを採用する。
func NewFoodFromDocument(id string, doc map[string]any) *Food {
	f := &Food{ID: id}
	for k, v := range doc {
		f.set(k, v)
	}
	return f
}

func (f *Food) set(key string, value any) {
	switch key {
	case FieldID:
		return
	case FieldDonatorEmail:
		if s, ok := value.(string); ok {
			f.DonatorEmail = &s
			return
		}
	case FieldRequesterEmail:
		if s, ok := value.(string); ok {
			f.RequesterEmail = &s
			return
		}
	case FieldFoodStatus:
		if s, ok := value.(string); ok {
			f.FoodStatus = &s
			return
		}
	case FieldFoodQuantity:
		if q, ok := toFloat(value); ok {
			f.FoodQuantity = &q
			return
		}
	}
	if f.Extra == nil {
		f.Extra = make(map[string]any)
	}
	f.Extra[key] = value
}

// Document は挿入・マージに使うドキュメントを返す。_idは含めない。
func (f *Food) Document() map[string]any {
	doc := make(map[string]any, len(f.Extra)+4)
	for k, v := range f.Extra {
		if k == FieldID {
			continue
		}
		doc[k] = v
	}
	if f.DonatorEmail != nil {
		doc[FieldDonatorEmail] = *f.DonatorEmail
	}
	if f.RequesterEmail != nil {
		doc[FieldRequesterEmail] = *f.RequesterEmail
	}
	if f.FoodStatus != nil {
		doc[FieldFoodStatus] = *f.FoodStatus
	}
	if f.FoodQuantity != nil {
		doc[FieldFoodQuantity] = *f.FoodQuantity
	}
	return doc
}

// MarshalJSON は既知フィールドとExtraを1つのオブジェクトに平坦化する。
func (f *Food) MarshalJSON() ([]byte, error) {
	doc := f.Document()
	if f.ID != "" {
		doc[FieldID] = f.ID
	}
	return json.Marshal(doc)
}

// UnmarshalJSON は任意のJSONオブジェクトをFoodとして読み込む。
func (f *Food) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode food: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("food must be a JSON object")
	}
	*f = Food{}
	if id, ok := doc[FieldID].(string); ok {
		f.ID = id
	}
	for k, v := range doc {
		f.set(k, v)
	}
	return nil
}

// Quantity はfoodQuantityが数値の場合にその値を返す。
func (f *Food) Quantity() (float64, bool) {
	if f.FoodQuantity == nil {
		return 0, false
	}
	return *f.FoodQuantity, true
}

// StringField は指定フィールドが文字列の場合にその値を返す。
func (f *Food) StringField(field string) (string, bool) {
	var p *string
	switch field {
	case FieldDonatorEmail:
		p = f.DonatorEmail
	case FieldRequesterEmail:
		p = f.RequesterEmail
	case FieldFoodStatus:
		p = f.FoodStatus
	default:
		s, ok := f.Extra[field].(string)
		return s, ok
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
