package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/umarmf343/veaauth"
	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/password"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := veaauth.DefaultConfig()
	cfg.Password.BcryptCost = password.MinCost

	users := directory.NewMemory()
	engine, err := veaauth.New().WithConfig(cfg).WithUserDirectory(users).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	for _, u := range []struct{ id, email, role string }{
		{"u-admin", "admin@vea.school", string(veaauth.RoleSuperAdmin)},
		{"u-teacher", "teacher@vea.school", string(veaauth.RoleTeacher)},
	} {
		hash, err := engine.HashPassword(context.Background(), "school-pass-1")
		if err != nil {
			t.Fatal(err)
		}
		users.Add(directory.User{
			ID:           u.id,
			Email:        u.email,
			Name:         u.id,
			PasswordHash: hash,
			Role:         u.role,
			Status:       directory.StatusActive,
		})
	}

	srv := &server{engine: engine, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func login(t *testing.T, ts *httptest.Server, email string) veaauth.Session {
	t.Helper()

	resp := do(t, ts, http.MethodPost, "/api/auth/login", "", loginRequest{Email: email, Password: "school-pass-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var s veaauth.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoginMeRefresh(t *testing.T) {
	ts := newTestServer(t)
	s := login(t, ts, "teacher@vea.school")

	resp := do(t, ts, http.MethodGet, "/api/auth/me", s.Tokens.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	var me meResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatal(err)
	}
	if me.ID != "u-teacher" || me.Role != string(veaauth.RoleTeacher) {
		t.Fatalf("me = %+v", me)
	}

	resp = do(t, ts, http.MethodPost, "/api/auth/refresh", "", refreshRequest{RefreshToken: s.Tokens.RefreshToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}

	resp = do(t, ts, http.MethodPost, "/api/auth/refresh", "", refreshRequest{RefreshToken: s.Tokens.RefreshToken})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reuse status = %d", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Code != string(veaauth.ReasonRefreshTokenReused) {
		t.Fatalf("reuse code = %q", body.Code)
	}
}

func TestLoginLockoutResponse(t *testing.T) {
	ts := newTestServer(t)

	bad := loginRequest{Email: "teacher@vea.school", Password: "wrong-pass"}
	for i := 1; i <= 4; i++ {
		resp := do(t, ts, http.MethodPost, "/api/auth/login", "", bad)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i, resp.StatusCode)
		}
		var body errorBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.RemainingAttempts == nil || *body.RemainingAttempts != 5-i {
			t.Fatalf("attempt %d remaining = %v", i, body.RemainingAttempts)
		}
	}

	resp := do(t, ts, http.MethodPost, "/api/auth/login", "", bad)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("threshold status = %d", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Code != string(veaauth.ReasonInvalidCredentials) || body.RemainingAttempts == nil || *body.RemainingAttempts != 0 {
		t.Fatalf("threshold body = %+v", body)
	}
	if got := resp.Header.Get("Retry-After"); got != "300" {
		t.Fatalf("threshold Retry-After = %q", got)
	}

	good := loginRequest{Email: "teacher@vea.school", Password: "school-pass-1"}
	resp = do(t, ts, http.MethodPost, "/api/auth/login", "", good)
	if resp.StatusCode != http.StatusLocked {
		t.Fatalf("locked status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "300" {
		t.Fatalf("Retry-After = %q", got)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	teacher := login(t, ts, "teacher@vea.school")
	admin := login(t, ts, "admin@vea.school")

	newUser := registerRequest{Email: "kid@vea.school", Name: "Kid", Password: "kid-pass-123", Role: string(veaauth.RoleStudent)}

	if resp := do(t, ts, http.MethodPost, "/api/admin/users", "", newUser); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", resp.StatusCode)
	}
	if resp := do(t, ts, http.MethodPost, "/api/admin/users", teacher.Tokens.AccessToken, newUser); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("teacher status = %d", resp.StatusCode)
	}
	if resp := do(t, ts, http.MethodPost, "/api/admin/users", admin.Tokens.AccessToken, newUser); resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin status = %d", resp.StatusCode)
	}
	if resp := do(t, ts, http.MethodPost, "/api/admin/users", admin.Tokens.AccessToken, newUser); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d", resp.StatusCode)
	}

	resp := do(t, ts, http.MethodPost, "/api/admin/users/u-teacher/revoke-sessions", admin.Tokens.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status = %d", resp.StatusCode)
	}
	resp = do(t, ts, http.MethodPost, "/api/auth/refresh", "", refreshRequest{RefreshToken: teacher.Tokens.RefreshToken})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after revoke status = %d", resp.StatusCode)
	}
}

func TestBadBodyAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/auth/login", "", map[string]string{"user": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", resp.StatusCode)
	}

	login(t, ts, "teacher@vea.school")
	resp = do(t, ts, http.MethodGet, "/metrics", "", nil)
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "vea_auth_login_success_total 1") {
		t.Fatalf("metrics missing login success:\n%s", raw)
	}
}
