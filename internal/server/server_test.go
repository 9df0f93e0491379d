package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	appmw "github.com/shinyyama/referral-tree-backend/internal/middleware"
	"github.com/shinyyama/referral-tree-backend/internal/testutil"
)

type staticVerifier struct{ token string }

func (v staticVerifier) VerifyIDToken(_ context.Context, token string) (*auth.Token, error) {
	if token != v.token {
		return nil, errors.New("invalid")
	}
	return &auth.Token{UID: "admin"}, nil
}

func serve(s *Server, method, path, body, bearer string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestLateDatabaseInjection(t *testing.T) {
	s := New(nil, Options{})
	if rec := serve(s, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz before db: %d", rec.Code)
	}
	if rec := serve(s, http.MethodGet, "/api/users", "", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("users before db: %d", rec.Code)
	}

	s.SetDB(testutil.NewDB(t))
	if rec := serve(s, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz after db: %d body=%s", rec.Code, rec.Body.String())
	}
	rec := serve(s, http.MethodPost, "/api/users", `{"name":"R","initialPoints":1}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register after db: %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("missing request id header")
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	s := New(testutil.NewDB(t), Options{Auth: appmw.NewAuthMiddlewareWithVerifier(staticVerifier{token: "t0k"})})
	serve(s, http.MethodPost, "/api/users", `{"name":"R"}`, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		bearer string
		want   int
	}{
		{"points without token", http.MethodPut, "/api/users/1/points", `{"points":5}`, "", http.StatusUnauthorized},
		{"points with token", http.MethodPut, "/api/users/1/points", `{"points":5}`, "t0k", http.StatusOK},
		{"reset with wrong token", http.MethodPost, "/api/reset", "", "nope", http.StatusUnauthorized},
		{"reset with token", http.MethodPost, "/api/reset", "", "t0k", http.StatusOK},
		{"reads stay public", http.MethodGet, "/api/stats", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(s, tt.method, tt.path, tt.body, tt.bearer); rec.Code != tt.want {
				t.Fatalf("code=%d want %d body=%s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
