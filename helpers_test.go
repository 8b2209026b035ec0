package veaauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/password"
)

const (
	testPassword    = "correct-horse-9"
	testAliceID     = "u-alice"
	testAliceEmail  = "alice@vea.school"
	testParentID    = "u-bola"
	testParentEmail = "bola@vea.school"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *Engine
	users  *directory.Memory
	clock  *fakeClock
	sink   *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.BcryptCost = password.MinCost
	cfg.Password.MaxConcurrentHashes = 4
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 256
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		users: directory.NewMemory(),
		clock: newFakeClock(),
		sink:  NewChannelSink(256),
	}

	engine, err := New().
		WithConfig(cfg).
		WithUserDirectory(env.users).
		WithAuditSink(env.sink).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	env.engine = engine
	t.Cleanup(engine.Close)

	env.seed(t, testAliceID, testAliceEmail, testPassword, RoleTeacher, StatusActive, password.MinCost)
	env.seed(t, testParentID, testParentEmail, testPassword, RoleParent, StatusActive, password.MinCost)
	return env
}

func (env *testEnv) seed(t *testing.T, id, email, plain string, role Role, status UserStatus, cost int) {
	t.Helper()

	h, err := password.New(password.Config{Cost: cost})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := h.Hash(plain)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	env.users.Add(User{
		ID:           id,
		Email:        email,
		Name:         "Test " + id,
		PasswordHash: hash,
		Role:         string(role),
		Status:       status,
		CreatedAt:    env.clock.Now(),
		UpdatedAt:    env.clock.Now(),
	})
}

func (env *testEnv) login(t *testing.T, email string) *Session {
	t.Helper()

	s, err := env.engine.Login(context.Background(), email, testPassword)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return s
}

// drainAudit closes the engine so every queued event reaches the sink.
func (env *testEnv) drainAudit() []AuditEvent {
	env.engine.Close()

	var out []AuditEvent
	for {
		select {
		case e := <-env.sink.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func assertReason(t *testing.T, err error, want Reason) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	got, ok := ReasonOf(err)
	if !ok {
		t.Fatalf("expected AuthError %s, got %v", want, err)
	}
	if got != want {
		t.Fatalf("expected reason %s, got %s (%v)", want, got, err)
	}
}
