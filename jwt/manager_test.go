package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testAccessSecret  = []byte("test-access-secret-0123456789abcdef")
	testRefreshSecret = []byte("test-refresh-secret-0123456789abcdef")
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()

	cfg := Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "vea-portal",
	}
	if clock != nil {
		cfg.Now = clock.Now
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func teacherSubject() AccessSubject {
	return AccessSubject{UserID: "u-1", Role: "teacher", RoleLabel: "Teacher", Name: "Ada Obi"}
}

func signAccessMap(t *testing.T, claims gjwt.MapClaims) string {
	t.Helper()
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func completeAccessMap() gjwt.MapClaims {
	now := time.Now()
	return gjwt.MapClaims{
		"sub":       "u-1",
		"type":      "access",
		"role":      "teacher",
		"roleLabel": "Teacher",
		"name":      "Ada Obi",
		"jti":       "jti-1",
		"iss":       "vea-portal",
		"iat":       now.Unix(),
		"exp":       now.Add(time.Minute).Unix(),
	}
}

func TestIssueAndParseAccess(t *testing.T) {
	m := newTestManager(t, nil)

	issued, err := m.IssueAccess(teacherSubject())
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if issued.Token == "" || issued.JTI == "" {
		t.Fatal("expected token and jti")
	}
	if got := issued.ExpiresAt.Sub(issued.IssuedAt); got != 15*time.Minute {
		t.Fatalf("expected 15m lifetime, got %s", got)
	}

	claims, err := m.ParseAccess(issued.Token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "u-1" || claims.Type != TypeAccess || claims.Role != "teacher" ||
		claims.RoleLabel != "Teacher" || claims.Name != "Ada Obi" || claims.ID != issued.JTI {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestIssueAccessUsesUniqueJTI(t *testing.T) {
	m := newTestManager(t, nil)

	a, _ := m.IssueAccess(teacherSubject())
	b, _ := m.IssueAccess(teacherSubject())
	if a.JTI == b.JTI {
		t.Fatal("expected unique jti per token")
	}
}

func TestParseAccessMissingClaims(t *testing.T) {
	m := newTestManager(t, nil)

	for _, claim := range []string{"sub", "type", "role", "roleLabel", "name", "jti"} {
		claims := completeAccessMap()
		delete(claims, claim)
		token := signAccessMap(t, claims)

		if _, err := m.ParseAccess(token); !errors.Is(err, ErrMissingClaims) {
			t.Fatalf("missing %s: expected ErrMissingClaims, got %v", claim, err)
		}
	}
}

func TestParseAccessMissingExpiry(t *testing.T) {
	m := newTestManager(t, nil)

	claims := completeAccessMap()
	delete(claims, "exp")
	if _, err := m.ParseAccess(signAccessMap(t, claims)); !errors.Is(err, ErrMissingClaims) {
		t.Fatalf("expected ErrMissingClaims without exp, got %v", err)
	}
}

func TestParseAccessRejectsBadSignature(t *testing.T) {
	m := newTestManager(t, nil)

	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, completeAccessMap()).SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := m.ParseAccess("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t, nil)

	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, completeAccessMap()).SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, completeAccessMap()).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := m.ParseAccess(none); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}
}

func TestParseAccessExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)}
	m := newTestManager(t, clock)

	issued, err := m.IssueAccess(teacherSubject())
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	clock.Advance(16 * time.Minute)

	_, err = m.ParseAccess(issued.Token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestParseAccessRejectsWrongIssuer(t *testing.T) {
	m := newTestManager(t, nil)

	claims := completeAccessMap()
	claims["iss"] = "someone-else"
	if _, err := m.ParseAccess(signAccessMap(t, claims)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong issuer to fail, got %v", err)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	m := newTestManager(t, nil)

	access, _ := m.IssueAccess(teacherSubject())
	refresh, err := m.IssueRefresh("u-1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if _, err := m.ParseRefresh(access.Token); err == nil {
		t.Fatal("expected access token to be rejected as refresh")
	}
	if _, err := m.ParseAccess(refresh.Token); err == nil {
		t.Fatal("expected refresh token to be rejected as access")
	}
}

func TestWrongTypeWithSharedSecret(t *testing.T) {
	m, err := NewManager(Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testAccessSecret,
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	refresh, _ := m.IssueRefresh("u-1")
	if _, err := m.ParseAccess(refresh.Token); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestIssueAndParseRefresh(t *testing.T) {
	m := newTestManager(t, nil)

	issued, err := m.IssueRefresh("u-9")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if got := issued.ExpiresAt.Sub(issued.IssuedAt); got != 7*24*time.Hour {
		t.Fatalf("expected 7d lifetime, got %s", got)
	}

	claims, err := m.ParseRefresh(issued.Token)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if claims.Subject != "u-9" || claims.ID != issued.JTI || claims.Type != TypeRefresh {
		t.Fatalf("unexpected refresh claims: %+v", claims)
	}
}

func TestIssueAccessRequiresCompleteSubject(t *testing.T) {
	m := newTestManager(t, nil)

	if _, err := m.IssueAccess(AccessSubject{UserID: "u-1", Role: "teacher"}); !errors.Is(err, ErrMissingClaims) {
		t.Fatalf("expected ErrMissingClaims for incomplete subject, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{RefreshSecret: testRefreshSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour},
		{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, RefreshTTL: time.Hour},
		{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour, Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func FuzzParseAccess(f *testing.F) {
	m, err := NewManager(Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "fuzz-test",
	})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := m.IssueAccess(teacherSubject())
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid.Token)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.e30.")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := m.ParseAccess(token)
		if err == nil && (claims == nil || claims.Name == "") {
			t.Fatal("parsed token must carry complete claims")
		}
	})
}
