package veaauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/umarmf343/veaauth/lockout"
)

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u, err := env.engine.RegisterUser(ctx, RegisterRequest{
		Email:    " Chidi@Vea.School ",
		Name:     "Chidi Okafor",
		Password: "long-enough-1",
		Role:     RoleLibrarian,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "chidi@vea.school" || u.Status != StatusActive || u.PasswordHash != "" {
		t.Fatalf("unexpected user %+v", u)
	}

	stored, err := env.users.FindUserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stored.PasswordHash, "$2a$") {
		t.Fatalf("expected bcrypt hash, got %q", stored.PasswordHash)
	}
	if stored.PasswordHash == "long-enough-1" {
		t.Fatal("plaintext stored")
	}

	s, err := env.engine.Login(ctx, "chidi@vea.school", "long-enough-1")
	if err != nil {
		t.Fatalf("login new user: %v", err)
	}
	if s.User.Role != string(RoleLibrarian) {
		t.Fatalf("unexpected role %s", s.User.Role)
	}
}

func TestRegisterUserRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"duplicate", RegisterRequest{Email: testAliceEmail, Password: "long-enough-1", Role: RoleTeacher}, ErrAccountExists},
		{"bad email", RegisterRequest{Email: "no-at-sign", Password: "long-enough-1", Role: RoleTeacher}, ErrInvalidRegistration},
		{"unknown role", RegisterRequest{Email: "x@vea.school", Password: "long-enough-1", Role: "janitor"}, ErrUnknownRole},
		{"short password", RegisterRequest{Email: "x@vea.school", Password: "short", Role: RoleTeacher}, ErrPasswordPolicy},
		{"long password", RegisterRequest{Email: "x@vea.school", Password: strings.Repeat("p", 73), Role: RoleTeacher}, ErrPasswordPolicy},
		{"bad status", RegisterRequest{Email: "x@vea.school", Password: "long-enough-1", Role: RoleTeacher, Status: "gone"}, ErrInvalidRegistration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.RegisterUser(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricAccountDuplicate]; got != 1 {
		t.Fatalf("expected one duplicate, got %d", got)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	hash, err := env.engine.HashPassword(ctx, "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	if !env.engine.VerifyPassword(ctx, "s3cret-pass", hash) {
		t.Fatal("expected match")
	}
	if env.engine.VerifyPassword(ctx, "other", hash) {
		t.Fatal("expected mismatch")
	}
	if env.engine.VerifyPassword(ctx, "s3cret-pass", "") {
		t.Fatal("empty hash must not verify")
	}
	if env.engine.VerifyPassword(ctx, "s3cret-pass", "not-a-hash") {
		t.Fatal("malformed hash must not verify")
	}

	second, _ := env.engine.HashPassword(ctx, "s3cret-pass")
	if second == hash {
		t.Fatal("hashes must be salted")
	}
}

func TestHashPasswordHonorsContext(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Password.MaxConcurrentHashes = 1 })

	if err := env.engine.slots.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer env.engine.slots.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := env.engine.HashPassword(ctx, "s3cret-pass"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSetUserPasswordBackfill(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	s := env.login(t, testAliceEmail)

	// Legacy passwords may be shorter than the registration minimum.
	if err := env.engine.SetUserPassword(ctx, testAliceID, "abc"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if _, err := env.engine.Login(ctx, testAliceEmail, "abc"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	_, err := env.engine.RefreshSession(ctx, s.Tokens.RefreshToken)
	assertReason(t, err, ReasonRefreshTokenReused)

	if err := env.engine.SetUserPassword(ctx, "u-missing", "abc"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	s := env.login(t, testAliceEmail)

	err := env.engine.ChangePassword(ctx, testAliceID, "wrong-old", "brand-new-pass")
	assertReason(t, err, ReasonInvalidCredentials)

	if err := env.engine.ChangePassword(ctx, testAliceID, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, testAliceID, testPassword, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, testAliceID, testPassword, "brand-new-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	_, err = env.engine.RefreshSession(ctx, s.Tokens.RefreshToken)
	assertReason(t, err, ReasonRefreshTokenReused)

	_, err = env.engine.Login(ctx, testAliceEmail, testPassword)
	assertReason(t, err, ReasonInvalidCredentials)
	if _, err := env.engine.Login(ctx, testAliceEmail, "brand-new-pass"); err != nil {
		t.Fatalf("login with changed password: %v", err)
	}
}

func TestLockoutStatusAndUnlock(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < lockout.DefaultMaxAttempts; i++ {
		_, _ = env.engine.Login(ctx, testAliceEmail, "wrong-password")
	}

	st, err := env.engine.LockoutStatus(ctx, "ALICE@vea.school")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Locked || st.RetryAfter != 5*time.Minute || st.Identifier != testAliceEmail {
		t.Fatalf("unexpected status %+v", st)
	}

	if err := env.engine.UnlockAccount(ctx, testAliceEmail); err != nil {
		t.Fatal(err)
	}
	st, _ = env.engine.LockoutStatus(ctx, testAliceEmail)
	if st.Locked || st.RemainingAttempts != lockout.DefaultMaxAttempts {
		t.Fatalf("expected cleared status, got %+v", st)
	}
	env.login(t, testAliceEmail)
}
