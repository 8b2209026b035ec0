package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/umarmf343/veaauth/internal/fsutil"
)

// fileUser is the on-disk shape. LegacyPassword is the plaintext field of
// accounts created before passwords were hashed.
type fileUser struct {
	User
	LegacyPassword string `json:"password,omitempty"`
}

type usersFile struct {
	Users []fileUser `json:"users"`
}

// LegacyAccount is an account that still has a plaintext password on disk.
type LegacyAccount struct {
	ID       string
	Email    string
	Password string
}

// JSONFile is a Directory over a users.json file. Each change rewrites the
// file atomically.
type JSONFile struct {
	mu    sync.RWMutex
	path  string
	users []fileUser
	now   func() time.Time
}

// OpenJSONFile loads path. A missing file is an empty directory.
func OpenJSONFile(path string) (*JSONFile, error) {
	d := &JSONFile{path: path, now: time.Now}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return nil, err
	}

	var f usersFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("directory: decode %s: %w", path, err)
	}
	for i := range f.Users {
		if f.Users[i].Status == "" {
			f.Users[i].Status = StatusActive
		}
	}
	d.users = f.Users
	return d, nil
}

// FindUserByEmail implements Directory.
func (d *JSONFile) FindUserByEmail(_ context.Context, normalizedEmail string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if i := d.indexByEmail(normalizedEmail); i >= 0 {
		return d.users[i].User, nil
	}
	return User{}, ErrNotFound
}

// FindUserByID implements Directory.
func (d *JSONFile) FindUserByID(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if i := d.indexByID(id); i >= 0 {
		return d.users[i].User, nil
	}
	return User{}, ErrNotFound
}

// SetPasswordHash implements Directory. It also drops any legacy plaintext.
func (d *JSONFile) SetPasswordHash(_ context.Context, id, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexByID(id)
	if i < 0 {
		return ErrNotFound
	}

	next := append([]fileUser(nil), d.users...)
	next[i].PasswordHash = hash
	next[i].LegacyPassword = ""
	next[i].UpdatedAt = d.now()
	return d.commit(next)
}

// CreateUser implements Directory.
func (d *JSONFile) CreateUser(_ context.Context, in NewUser) (User, error) {
	if err := in.validate(); err != nil {
		return User{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexByEmail(in.Email) >= 0 {
		return User{}, ErrDuplicateEmail
	}
	u := newUserRecord(in, d.now())
	next := append(append([]fileUser(nil), d.users...), fileUser{User: u})
	if err := d.commit(next); err != nil {
		return User{}, err
	}
	return u, nil
}

// LegacyAccounts lists accounts with a plaintext password and no hash,
// ordered by email.
func (d *JSONFile) LegacyAccounts() []LegacyAccount {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []LegacyAccount
	for _, u := range d.users {
		if u.LegacyPassword != "" && u.PasswordHash == "" {
			out = append(out, LegacyAccount{ID: u.ID, Email: u.Email, Password: u.LegacyPassword})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (d *JSONFile) indexByEmail(normalizedEmail string) int {
	for i, u := range d.users {
		if NormalizeEmail(u.Email) == normalizedEmail {
			return i
		}
	}
	return -1
}

func (d *JSONFile) indexByID(id string) int {
	for i, u := range d.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (d *JSONFile) commit(next []fileUser) error {
	raw, err := json.MarshalIndent(usersFile{Users: next}, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(d.path, raw, 0o600); err != nil {
		return fmt.Errorf("directory: write %s: %w", d.path, err)
	}
	d.users = next
	return nil
}
