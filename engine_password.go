package veaauth

import (
	"context"
	"fmt"

	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/password"
)

const dummyPassword = "vea-timing-equaliser"

// withHashSlot runs fn while holding one of the bounded bcrypt slots.
func (e *Engine) withHashSlot(ctx context.Context, fn func()) error {
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.slots.Release(1)
	fn()
	return nil
}

// HashPassword returns a bcrypt hash of plain at the configured cost.
func (e *Engine) HashPassword(ctx context.Context, plain string) (string, error) {
	if e == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}

	var (
		hash string
		err  error
	)
	if slotErr := e.withHashSlot(ctx, func() { hash, err = e.hasher.Hash(plain) }); slotErr != nil {
		return "", slotErr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	return hash, nil
}

// VerifyPassword reports whether plain matches hash. It is false for an
// empty or malformed hash and when ctx ends before a hash slot frees up.
func (e *Engine) VerifyPassword(ctx context.Context, plain, hash string) bool {
	ok, err := e.verifyPassword(ctx, plain, hash)
	return err == nil && ok
}

func (e *Engine) verifyPassword(ctx context.Context, plain, hash string) (bool, error) {
	if e == nil || e.hasher == nil {
		return false, ErrEngineNotReady
	}
	var ok bool
	err := e.withHashSlot(ctx, func() { ok = e.hasher.Verify(plain, hash) })
	return ok, err
}

// dummyVerify spends about as long as a real comparison so unknown emails
// cannot be told apart by response time.
func (e *Engine) dummyVerify(ctx context.Context, plain string) {
	e.dummyOnce.Do(func() {
		h, err := e.hasher.Hash(dummyPassword)
		if err != nil {
			e.logger.Error("dummy hash generation failed", "error", err)
			return
		}
		e.dummyHash = h
	})
	if e.dummyHash == "" {
		return
	}
	_, _ = e.verifyPassword(ctx, plain, e.dummyHash)
}

// upgradeHash replaces an outdated hash after a successful login.
func (e *Engine) upgradeHash(ctx context.Context, user directory.User, plain string) (bool, error) {
	if !e.hasher.NeedsRehash(user.PasswordHash) {
		return false, nil
	}
	hash, err := e.HashPassword(ctx, plain)
	if err != nil {
		return false, err
	}
	if err := e.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return false, err
	}
	e.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID)
	return true, nil
}

func (e *Engine) checkPasswordPolicy(plain string) error {
	if len(plain) < e.config.Password.MinLength {
		return fmt.Errorf("%w: at least %d characters required", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if len(plain) > password.MaxPasswordBytes {
		return fmt.Errorf("%w: at most %d bytes allowed", ErrPasswordPolicy, password.MaxPasswordBytes)
	}
	return nil
}
