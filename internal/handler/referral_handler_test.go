package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/referral-tree-backend/internal/repository"
	"github.com/shinyyama/referral-tree-backend/internal/service"
	"github.com/shinyyama/referral-tree-backend/internal/testutil"
)

func newTestEcho(t *testing.T, opts service.Options) *echo.Echo {
	t.Helper()
	svc := service.NewReferralService(repository.NewStore(testutil.NewDB(t)), opts)
	h := NewReferralHandler(svc)
	e := echo.New()
	e.Validator = NewRequestValidator()
	e.GET("/healthz", NewHealthHandler(svc, "sha", "now").Get)
	e.GET("/api/users", h.List)
	e.POST("/api/users", h.Register)
	e.PUT("/api/users/:id/points", h.UpdatePoints)
	e.GET("/api/users/:id/scoreboard", h.Scoreboard)
	e.GET("/api/users/:id/tree", h.Tree)
	e.GET("/api/users/:id/referrals", h.Referrals)
	e.GET("/api/users/:id/history", h.History)
	e.GET("/api/stats", h.Stats)
	e.POST("/api/reset", h.Reset)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

func TestRegisterAndScoreboardFlow(t *testing.T) {
	e := newTestEcho(t, service.Options{})

	for _, body := range []string{
		`{"name":"R","initialPoints":100}`,
		`{"name":"L","initialPoints":10,"referrerId":1}`,
		`{"name":"LL","initialPoints":5,"referrerId":2}`,
	} {
		rec := do(t, e, http.MethodPost, "/api/users", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("register %s: code=%d body=%s", body, rec.Code, rec.Body.String())
		}
	}

	rec := do(t, e, http.MethodGet, "/api/users/1/scoreboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("scoreboard code=%d", rec.Code)
	}
	var sb service.Scoreboard
	if err := json.Unmarshal(rec.Body.Bytes(), &sb); err != nil {
		t.Fatal(err)
	}
	if sb != (service.Scoreboard{UserName: "R", LeftPoints: 15}) {
		t.Fatalf("scoreboard=%+v", sb)
	}

	rec = do(t, e, http.MethodGet, "/api/users/1/tree", "")
	var tree map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &tree); err != nil {
		t.Fatal(err)
	}
	if tree["points"].(float64) != 115 || tree["right"] != nil {
		t.Fatalf("tree=%v", tree)
	}

	rec = do(t, e, http.MethodPut, "/api/users/3/points", `{"points":50}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update code=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(t, e, http.MethodGet, "/api/users/3/history?limit=1", "")
	var hist struct {
		History []struct {
			Points      int64  `json:"points"`
			Description string `json:"description"`
		} `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatal(err)
	}
	if len(hist.History) != 1 || hist.History[0].Points != 50 {
		t.Fatalf("history=%+v", hist)
	}

	rec = do(t, e, http.MethodGet, "/api/stats", "")
	var st service.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Users != 3 || st.TotalPoints != 160 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestErrorStatuses(t *testing.T) {
	e := newTestEcho(t, service.Options{})
	do(t, e, http.MethodPost, "/api/users", `{"name":"R"}`)
	do(t, e, http.MethodPost, "/api/users", `{"name":"A","referrerId":1}`)
	do(t, e, http.MethodPost, "/api/users", `{"name":"B","referrerId":1}`)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed json", http.MethodPost, "/api/users", `{"name":`, http.StatusBadRequest, "bad_request"},
		{"missing name", http.MethodPost, "/api/users", `{"initialPoints":3}`, http.StatusBadRequest, "validation_error"},
		{"no free position", http.MethodPost, "/api/users", `{"name":"C","referrerId":1}`, http.StatusBadRequest, "validation_error"},
		{"unknown referrer", http.MethodPost, "/api/users", `{"name":"C","referrerId":42}`, http.StatusNotFound, "not_found"},
		{"bad id", http.MethodGet, "/api/users/abc/scoreboard", "", http.StatusBadRequest, "bad_request"},
		{"unknown user", http.MethodGet, "/api/users/42/tree", "", http.StatusNotFound, "not_found"},
		{"missing points", http.MethodPut, "/api/users/1/points", `{}`, http.StatusBadRequest, "validation_error"},
		{"bad limit", http.MethodGet, "/api/users/1/history?limit=x", "", http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code=%d want %d body=%s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.wantErr {
				t.Fatalf("error code=%q want %q", got, tt.wantErr)
			}
		})
	}
}

func TestResetAndHealth(t *testing.T) {
	e := newTestEcho(t, service.Options{})
	do(t, e, http.MethodPost, "/api/users", `{"name":"R"}`)

	if rec := do(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz code=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := do(t, e, http.MethodPost, "/api/reset", ""); rec.Code != http.StatusOK {
		t.Fatalf("reset code=%d body=%s", rec.Code, rec.Body.String())
	}
	rec := do(t, e, http.MethodGet, "/api/users", "")
	var list struct {
		Users []json.RawMessage `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Users) != 0 {
		t.Fatalf("users after reset=%d", len(list.Users))
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	svc := service.NewReferralService(repository.NewStore(nil), service.Options{})
	e := echo.New()
	e.GET("/healthz", NewHealthHandler(svc, "", "").Get)
	if rec := do(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d want 503", rec.Code)
	}
}
