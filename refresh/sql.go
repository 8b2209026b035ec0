package refresh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect selects placeholder style and goose dialect.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) validate() error {
	switch d {
	case DialectSQLite, DialectPostgres:
		return nil
	default:
		return fmt.Errorf("refresh: unsupported dialect %q", string(d))
	}
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	insertRecordSQL = `INSERT INTO refresh_tokens (jti, user_id, issued_at, expires_at, consumed_at, superseded_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (jti) DO NOTHING`
	selectRecordSQL = `SELECT jti, user_id, issued_at, expires_at, consumed_at, superseded_by
		FROM refresh_tokens WHERE jti = ?`
	consumeRecordSQL = `UPDATE refresh_tokens SET consumed_at = ?, superseded_by = ?
		WHERE jti = ? AND consumed_at IS NULL`
	recordExistsSQL = `SELECT COUNT(1) FROM refresh_tokens WHERE jti = ?`
	revokeUserSQL   = `UPDATE refresh_tokens SET consumed_at = ?
		WHERE user_id = ? AND consumed_at IS NULL`
	deleteExpiredSQL = `DELETE FROM refresh_tokens WHERE expires_at < ?`
)

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore keeps the ledger in a refresh_tokens table. Run Migrate first.
// For SQLite use a single open connection; writers serialise anyway.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore returns a SQLStore over db.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("refresh: nil db")
	}
	if err := dialect.validate(); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	return s.insert(ctx, s.db, rec)
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, jti string) (Record, error) {
	var (
		rec                 Record
		issuedAt, expiresAt int64
		consumedAt          sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(selectRecordSQL), jti).
		Scan(&rec.JTI, &rec.UserID, &issuedAt, &expiresAt, &consumedAt, &rec.SupersededBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: get refresh record: %v", ErrUnavailable, err)
	}

	rec.IssuedAt = time.Unix(0, issuedAt)
	rec.ExpiresAt = time.Unix(0, expiresAt)
	if consumedAt.Valid {
		at := time.Unix(0, consumedAt.Int64)
		rec.ConsumedAt = &at
	}
	return rec, nil
}

// MarkConsumed implements Store.
func (s *SQLStore) MarkConsumed(ctx context.Context, jti, successor string, at time.Time) error {
	return s.consume(ctx, s.db, jti, successor, at)
}

// Rotate implements Store.
func (s *SQLStore) Rotate(ctx context.Context, jti string, next Record, at time.Time) (err error) {
	if err := next.validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin rotation: %v", ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.consume(ctx, tx, jti, next.JTI, at); err != nil {
		return err
	}
	if err = s.insert(ctx, tx, next); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit rotation: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAllForUser implements Store.
func (s *SQLStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(revokeUserSQL), at.UnixNano(), userID)
	if err != nil {
		return 0, fmt.Errorf("%w: revoke user tokens: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// DeleteExpired implements Store.
func (s *SQLStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(deleteExpiredSQL), before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired tokens: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func (s *SQLStore) insert(ctx context.Context, q execQuerier, rec Record) error {
	var consumedAt sql.NullInt64
	if rec.ConsumedAt != nil {
		consumedAt = sql.NullInt64{Int64: rec.ConsumedAt.UnixNano(), Valid: true}
	}

	res, err := q.ExecContext(ctx, s.dialect.rebind(insertRecordSQL),
		rec.JTI, rec.UserID, rec.IssuedAt.UnixNano(), rec.ExpiresAt.UnixNano(), consumedAt, rec.SupersededBy,
	)
	if err != nil {
		return fmt.Errorf("%w: insert refresh record: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// consume is the compare-and-set: the UPDATE only matches a live row, so of
// two racing callers exactly one sees RowsAffected == 1.
func (s *SQLStore) consume(ctx context.Context, q execQuerier, jti, successor string, at time.Time) error {
	res, err := q.ExecContext(ctx, s.dialect.rebind(consumeRecordSQL), at.UnixNano(), successor, jti)
	if err != nil {
		return fmt.Errorf("%w: consume refresh record: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 1 {
		return nil
	}

	var count int
	if err := q.QueryRowContext(ctx, s.dialect.rebind(recordExistsSQL), jti).Scan(&count); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrAlreadyConsumed
}
