package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/umarmf343/veaauth/internal/fsutil"
)

const fileFormatVersion = 1

type fileLedger struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// FileStore persists the ledger as one JSON file. Every change rewrites the
// file through a temp file and rename, so a crash leaves either the old or
// the new ledger on disk. Only one process may own a path.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
}

// OpenFileStore loads path, creating an empty ledger if it does not exist.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, records: make(map[string]Record)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs, nil
	case err != nil:
		return nil, fmt.Errorf("%w: read ledger: %v", ErrUnavailable, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return fs, nil
	}

	var ledger fileLedger
	if err := json.Unmarshal(raw, &ledger); err != nil {
		return nil, fmt.Errorf("%w: decode ledger %s: %v", ErrUnavailable, path, err)
	}
	if ledger.Version != fileFormatVersion {
		return nil, fmt.Errorf("%w: unsupported ledger version %d", ErrUnavailable, ledger.Version)
	}
	for _, rec := range ledger.Records {
		fs.records[rec.JTI] = rec
	}
	return fs, nil
}

// Path returns the ledger location.
func (f *FileStore) Path() string {
	return f.path
}

// Put implements Store.
func (f *FileStore) Put(_ context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	_, err := f.mutate(func(records map[string]Record) (int, error) {
		return 1, putLocked(records, rec)
	})
	return err
}

// Get implements Store.
func (f *FileStore) Get(_ context.Context, jti string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[jti]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// MarkConsumed implements Store.
func (f *FileStore) MarkConsumed(_ context.Context, jti, successor string, at time.Time) error {
	_, err := f.mutate(func(records map[string]Record) (int, error) {
		return 1, consumeLocked(records, jti, successor, at)
	})
	return err
}

// Rotate implements Store.
func (f *FileStore) Rotate(_ context.Context, jti string, next Record, at time.Time) error {
	if err := next.validate(); err != nil {
		return err
	}
	_, err := f.mutate(func(records map[string]Record) (int, error) {
		return 2, rotateLocked(records, jti, next, at)
	})
	return err
}

// RevokeAllForUser implements Store.
func (f *FileStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int, error) {
	return f.mutate(func(records map[string]Record) (int, error) {
		return len(revokeLocked(records, userID, at)), nil
	})
}

// DeleteExpired implements Store.
func (f *FileStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	return f.mutate(func(records map[string]Record) (int, error) {
		return len(deleteExpiredLocked(records, before)), nil
	})
}

// mutate applies fn to a copy of the ledger, persists the copy when fn
// changed something, and only then swaps it in.
func (f *FileStore) mutate(fn func(records map[string]Record) (int, error)) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := maps.Clone(f.records)
	n, err := fn(next)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := f.persist(next); err != nil {
		return 0, err
	}
	f.records = next
	return n, nil
}

func (f *FileStore) persist(records map[string]Record) error {
	ledger := fileLedger{Version: fileFormatVersion, Records: make([]Record, 0, len(records))}
	for _, jti := range slices.Sorted(maps.Keys(records)) {
		ledger.Records = append(ledger.Records, records[jti])
	}

	raw, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode ledger: %v", ErrUnavailable, err)
	}

	if err := fsutil.WriteFileAtomic(f.path, raw, 0o600); err != nil {
		return fmt.Errorf("%w: write ledger: %v", ErrUnavailable, err)
	}
	return nil
}
