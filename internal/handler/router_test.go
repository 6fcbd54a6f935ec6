package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/foodbridge/internal/auth"
	"github.com/hitoshi/foodbridge/internal/metrics"
	"github.com/hitoshi/foodbridge/internal/middleware"
	"github.com/hitoshi/foodbridge/internal/model"
	"github.com/hitoshi/foodbridge/internal/repository"
)

const testSecret = "router-test-secret"

type testServer struct {
	handler http.Handler
	store   *repository.MemoryFoodRepo
	tokens  *auth.TokenService
}

// newTestServer はインメモリストアと実トークンサービスでルーター全体を構成する。
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := repository.NewMemoryFoodRepo()
	tokens := auth.NewTokenService(testSecret, time.Hour, auth.NewDenyList(100, time.Hour))
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), collector)
	t.Cleanup(rl.Stop)

	h := NewRouter(&RouterDeps{
		Store:           store,
		HealthChecker:   store,
		Tokens:          tokens,
		RateLimiter:     rl,
		AllowedOrigin:   []string{"http://localhost:5173"},
		Metrics:         collector,
		MetricsGatherer: reg,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return &testServer{handler: h, store: store, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "192.0.2.1:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

// login は/jwtでトークンCookieを取得する。
func (s *testServer) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	w := s.do(t, http.MethodPost, "/jwt", `{"email":"`+email+`"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /jwt status = %d, want 200", w.Code)
	}
	c := tokenCookieFrom(t, w)
	return &http.Cookie{Name: c.Name, Value: c.Value}
}

func decodeFoods(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var foods []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &foods); err != nil {
		t.Fatalf("failed to decode foods: %v (body %q)", err, w.Body.String())
	}
	return foods
}

func TestRouter_LoginThenOwnerRoutes(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t, "a@x.com")

	s.do(t, http.MethodPost, "/addFood", `{"foodName":"rice","donatorEmail":"a@x.com"}`, nil)
	s.do(t, http.MethodPost, "/addFood", `{"foodName":"bread","donatorEmail":"b@x.com"}`, nil)

	w := s.do(t, http.MethodGet, "/manageMyFoods/a@x.com", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("own manageMyFoods status = %d, want 200", w.Code)
	}
	foods := decodeFoods(t, w)
	if len(foods) != 1 || foods[0]["foodName"] != "rice" {
		t.Errorf("manageMyFoods = %v", foods)
	}

	w = s.do(t, http.MethodGet, "/manageMyFoods/b@x.com", "", cookie)
	if w.Code != http.StatusForbidden {
		t.Errorf("other manageMyFoods status = %d, want 403", w.Code)
	}
	if msg := errorMessage(t, w); msg != "forbidden access" {
		t.Errorf("message = %q", msg)
	}

	w = s.do(t, http.MethodGet, "/myFoodReq/b@x.com", "", cookie)
	if w.Code != http.StatusForbidden {
		t.Errorf("other myFoodReq status = %d, want 403", w.Code)
	}
}

func TestRouter_ProtectedRoutes_RequireValidToken(t *testing.T) {
	s := newTestServer(t)
	id := uuid.NewString()

	foreign := auth.NewTokenService("another-secret", time.Hour, nil)
	foreignToken, err := foreign.Issue(auth.Claims{"email": "a@x.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	routes := []struct{ method, path, body string }{
		{http.MethodGet, "/food/" + id, ""},
		{http.MethodPut, "/reqFood/" + id, `{"foodStatus":"requested"}`},
		{http.MethodGet, "/manageMyFoods/a@x.com", ""},
		{http.MethodGet, "/myFoodReq/a@x.com", ""},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := s.do(t, rt.method, rt.path, rt.body, nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("without cookie: status = %d, want 401", w.Code)
			} else if msg := errorMessage(t, w); msg != "unauthorized access" {
				t.Errorf("message = %q", msg)
			}

			w = s.do(t, rt.method, rt.path, rt.body, &http.Cookie{Name: middleware.TokenCookieName, Value: foreignToken})
			if w.Code != http.StatusUnauthorized {
				t.Errorf("foreign secret: status = %d, want 401", w.Code)
			}
		})
	}

	// 拒否されたリクエストはストアを変更しない
	foods, _ := s.store.FindAll(t.Context())
	if len(foods) != 0 {
		t.Errorf("store modified by unauthorized requests: %v", foods)
	}
}

func TestRouter_AddFoodThenListAndGet(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/addFood", `{"foodName":"rice","foodQuantity":3,"foodStatus":"available"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("addFood status = %d, want 200", w.Code)
	}
	var ins model.InsertResult
	if err := json.Unmarshal(w.Body.Bytes(), &ins); err != nil {
		t.Fatalf("failed to decode insert result: %v", err)
	}
	if !ins.Acknowledged || ins.InsertedID == "" {
		t.Fatalf("insert result = %+v", ins)
	}

	foods := decodeFoods(t, s.do(t, http.MethodGet, "/foods", "", nil))
	if len(foods) != 1 || foods[0]["_id"] != ins.InsertedID || foods[0]["foodName"] != "rice" {
		t.Errorf("foods = %v", foods)
	}

	cookie := s.login(t, "a@x.com")
	w = s.do(t, http.MethodGet, "/food/"+ins.InsertedID, "", cookie)
	var food map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &food); err != nil {
		t.Fatalf("failed to decode food: %v", err)
	}
	if food["_id"] != ins.InsertedID || food["foodQuantity"] != 3.0 {
		t.Errorf("food = %v", food)
	}

	w = s.do(t, http.MethodGet, "/food/"+uuid.NewString(), "", cookie)
	if strings.TrimSpace(w.Body.String()) != "null" {
		t.Errorf("missing food body = %q, want null", w.Body.String())
	}
}

func TestRouter_FeaturedAndAvailable(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{
		`{"foodQuantity":3,"foodStatus":"available"}`,
		`{"foodQuantity":10,"foodStatus":"requested"}`,
		`{"foodQuantity":1,"foodStatus":"available"}`,
		`{"foodQuantity":7}`,
		`{"foodQuantity":8,"foodStatus":"Available"}`,
		`{"foodQuantity":2,"foodStatus":"available"}`,
		`{"foodQuantity":9}`,
		`{"foodQuantity":"many"}`,
	} {
		if w := s.do(t, http.MethodPost, "/addFood", body, nil); w.Code != http.StatusOK {
			t.Fatalf("addFood status = %d", w.Code)
		}
	}

	featured := decodeFoods(t, s.do(t, http.MethodGet, "/featured", "", nil))
	if len(featured) != 6 {
		t.Fatalf("featured len = %d, want 6", len(featured))
	}
	want := []float64{10, 9, 8, 7, 3, 2}
	for i, f := range featured {
		if f["foodQuantity"] != want[i] {
			t.Errorf("featured[%d].foodQuantity = %v, want %v", i, f["foodQuantity"], want[i])
		}
	}

	available := decodeFoods(t, s.do(t, http.MethodGet, "/availableFoods", "", nil))
	if len(available) != 3 {
		t.Fatalf("available len = %d, want 3", len(available))
	}
	for _, f := range available {
		if f["foodStatus"] != "available" {
			t.Errorf("unexpected status %v", f["foodStatus"])
		}
	}
}

func TestRouter_UpdateIsUpsertAndIdempotent(t *testing.T) {
	s := newTestServer(t)
	id := uuid.NewString()
	body := `{"foodStatus":"requested","requesterEmail":"b@x.com"}`

	w := s.do(t, http.MethodPut, "/update/"+id, body, nil)
	var res model.UpdateResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode update result: %v", err)
	}
	if res.UpsertedCount != 1 || res.UpsertedID == nil || *res.UpsertedID != id {
		t.Fatalf("first update result = %+v", res)
	}

	w = s.do(t, http.MethodPut, "/update/"+id, body, nil)
	res = model.UpdateResult{}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode update result: %v", err)
	}
	if res.MatchedCount != 1 || res.ModifiedCount != 0 || res.UpsertedID != nil {
		t.Errorf("second update result = %+v", res)
	}

	cookie := s.login(t, "b@x.com")
	requests := decodeFoods(t, s.do(t, http.MethodGet, "/myFoodReq/b@x.com", "", cookie))
	if len(requests) != 1 || requests[0]["_id"] != id {
		t.Errorf("myFoodReq = %v", requests)
	}
}

func TestRouter_RequestFoodMergesIntoRecord(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/addFood", `{"foodName":"rice","foodStatus":"available","donatorEmail":"a@x.com"}`, nil)
	var ins model.InsertResult
	if err := json.Unmarshal(w.Body.Bytes(), &ins); err != nil {
		t.Fatalf("failed to decode insert result: %v", err)
	}

	cookie := s.login(t, "b@x.com")
	w = s.do(t, http.MethodPut, "/reqFood/"+ins.InsertedID, `{"foodStatus":"requested","requesterEmail":"b@x.com"}`, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("reqFood status = %d, want 200", w.Code)
	}

	food, err := s.store.FindByID(t.Context(), ins.InsertedID)
	if err != nil || food == nil {
		t.Fatalf("FindByID = %v, %v", food, err)
	}
	doc := food.Document()
	if doc["foodName"] != "rice" || doc["donatorEmail"] != "a@x.com" || doc["foodStatus"] != "requested" || doc["requesterEmail"] != "b@x.com" {
		t.Errorf("document = %v", doc)
	}
}

func TestRouter_DeleteIsPublic(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/addFood", `{"foodName":"rice"}`, nil)
	var ins model.InsertResult
	if err := json.Unmarshal(w.Body.Bytes(), &ins); err != nil {
		t.Fatalf("failed to decode insert result: %v", err)
	}

	w = s.do(t, http.MethodDelete, "/food/"+ins.InsertedID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", w.Code)
	}
	var del model.DeleteResult
	if err := json.Unmarshal(w.Body.Bytes(), &del); err != nil {
		t.Fatalf("failed to decode delete result: %v", err)
	}
	if del.DeletedCount != 1 {
		t.Errorf("DeletedCount = %d, want 1", del.DeletedCount)
	}
}

func TestRouter_LogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t, "a@x.com")

	if w := s.do(t, http.MethodGet, "/manageMyFoods/a@x.com", "", cookie); w.Code != http.StatusOK {
		t.Fatalf("before logout status = %d, want 200", w.Code)
	}

	w := s.do(t, http.MethodPost, "/logout", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", w.Code)
	}
	assertSuccessBody(t, w)

	// Cookieを保持し続けるクライアントでも失効済みトークンは使えない
	if w := s.do(t, http.MethodGet, "/manageMyFoods/a@x.com", "", cookie); w.Code != http.StatusUnauthorized {
		t.Errorf("after logout status = %d, want 401", w.Code)
	}
}

func TestRouter_InvalidIDOnPublicRoute_Returns500(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/update/not-an-id", `{"a":1}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRouter_RootHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != RootMessage {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be applied")
	}

	if w := s.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want 200", w.Code)
	}

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `foodbridge_http_requests_total{method="GET",route="/",status="200"}`) {
		t.Errorf("metrics should include the root request:\n%s", w.Body.String())
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/addFood", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}
}

func TestRouter_LoginRateLimited(t *testing.T) {
	store := repository.NewMemoryFoodRepo()
	tokens := auth.NewTokenService(testSecret, time.Hour, nil)
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:  middleware.PerMinute(120),
		GeneralBurst: 120,
		LoginRate:    middleware.PerMinute(1),
		LoginBurst:   1,
	}, metrics.Nop{})
	t.Cleanup(rl.Stop)

	s := &testServer{
		handler: NewRouter(&RouterDeps{Store: store, HealthChecker: store, Tokens: tokens, RateLimiter: rl}),
		store:   store,
		tokens:  tokens,
	}

	s.login(t, "a@x.com")
	w := s.do(t, http.MethodPost, "/jwt", `{"email":"a@x.com"}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second login status = %d, want 429", w.Code)
	}
}

// ブラウザがencodeURIComponentで送るメールアドレスも本人として扱い、デコード済みの値で検索する
func TestRouter_OwnerRoutes_AcceptPercentEncodedEmail(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t, "a@x.com")

	s.do(t, http.MethodPost, "/addFood", `{"foodQuantity":5,"donatorEmail":"a@x.com"}`, nil)
	s.do(t, http.MethodPut, "/update/"+uuid.NewString(), `{"requesterEmail":"a@x.com"}`, nil)

	for _, path := range []string{"/manageMyFoods/a%40x.com", "/myFoodReq/a%40x.com"} {
		w := s.do(t, http.MethodGet, path, "", cookie)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200 (body %s)", path, w.Code, w.Body.String())
		}
		if foods := decodeFoods(t, w); len(foods) != 1 {
			t.Errorf("GET %s = %v, want one record", path, foods)
		}
	}

	if w := s.do(t, http.MethodGet, "/manageMyFoods/b%40x.com", "", cookie); w.Code != http.StatusForbidden {
		t.Errorf("other encoded email status = %d, want 403", w.Code)
	}
}

func TestRouter_WithoutRateLimiter(t *testing.T) {
	store := repository.NewMemoryFoodRepo()
	tokens := auth.NewTokenService(testSecret, time.Hour, nil)
	s := &testServer{
		handler: NewRouter(&RouterDeps{Store: store, HealthChecker: store, Tokens: tokens}),
		store:   store,
		tokens:  tokens,
	}

	cookie := s.login(t, "a@x.com")
	if w := s.do(t, http.MethodGet, "/manageMyFoods/a@x.com", "", cookie); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
