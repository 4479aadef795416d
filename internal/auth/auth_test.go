package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewServiceValidatesConfig(t *testing.T) {
	if _, err := NewService(Config{Mode: "jwt"}); err == nil {
		t.Fatalf("expected unsupported mode error")
	}
	if _, err := NewService(Config{Mode: ModeToken}); err == nil {
		t.Fatalf("expected error without tokens")
	}
	svc, err := NewService(Config{})
	if err != nil || svc.Enabled() {
		t.Fatalf("expected disabled service, got %v", err)
	}
}

func TestAuthenticateRequest(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeToken, Tokens: []string{"writer", "ro:reader"}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.AuthenticateRequest(ctx, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, "Basic abc"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid scheme, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, "Bearer nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	writer, err := svc.AuthenticateRequest(ctx, "Bearer writer")
	if err != nil || !writer.HasPermission(PermissionWrite) {
		t.Fatalf("expected writer subject, got %+v %v", writer, err)
	}
	reader, err := svc.AuthenticateRequest(ctx, "bearer reader")
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	if reader.HasPermission(PermissionWrite) || !reader.HasPermission(PermissionRead) {
		t.Fatalf("unexpected reader permissions %v", reader.Permissions)
	}
	if err := reader.Authorize(PermissionWrite); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeToken, Tokens: []string{"writer", "ro:reader"}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	var seen *Subject
	handler := svc.Middleware(MiddlewareConfig{RequiredPermissions: map[string][]string{
		http.MethodGet: {PermissionRead},
		"*":            {PermissionWrite},
	}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		method, token string
		status        int
	}{
		{http.MethodGet, "", http.StatusUnauthorized},
		{http.MethodGet, "reader", http.StatusNoContent},
		{http.MethodPost, "reader", http.StatusForbidden},
		{http.MethodPost, "writer", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/api/v1/chat", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s with %q: expected %d, got %d", tc.method, tc.token, tc.status, rec.Code)
		}
	}
	if seen == nil || !seen.HasPermission(PermissionWrite) {
		t.Fatalf("expected subject in request context")
	}

	disabled, _ := NewService(Config{Mode: ModeDisabled})
	rec := httptest.NewRecorder()
	disabled.Middleware(MiddlewareConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("disabled auth should pass through, got %d", rec.Code)
	}
}
