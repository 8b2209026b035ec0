package main

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/umarmf343/veaauth"
	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/fieldcrypt"
	"github.com/umarmf343/veaauth/refresh"
)

var (
	errUsage   = errors.New("usage: vea-authctl <backfill|set-password|hash|verify|encrypt|decrypt|obfuscate|deobfuscate|purge-refresh|report> [flags]")
	errNoMatch = errors.New("password does not match")
)

type app struct {
	out    io.Writer
	errOut io.Writer
	in     *bufio.Reader
	// readPassword reads without echo. Tests replace it.
	readPassword func(fd int) ([]byte, error)
	stdinFd      int
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "backfill":
		return a.backfill(ctx, rest)
	case "set-password":
		return a.setPassword(ctx, rest)
	case "hash":
		return a.hash(ctx, rest)
	case "verify":
		return a.verify(ctx, rest)
	case "encrypt":
		return a.encrypt(rest)
	case "decrypt":
		return a.decrypt(rest)
	case "obfuscate":
		return a.obfuscate(rest)
	case "deobfuscate":
		return a.deobfuscate(rest)
	case "purge-refresh":
		return a.purgeRefresh(ctx, rest)
	case "report":
		return a.report(rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// storeFlags selects a persistent refresh token store. With none set the
// engine uses a throwaway in-memory store.
type storeFlags struct {
	file        string
	sqlitePath  string
	databaseURL string
}

func (s *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.file, "refresh-file", "", "refresh token JSON file")
	fs.StringVar(&s.sqlitePath, "sqlite", "", "sqlite database holding refresh tokens")
	fs.StringVar(&s.databaseURL, "database-url", "", "postgres URL holding refresh tokens")
}

func (s *storeFlags) open(ctx context.Context) (veaauth.RefreshStore, func(), error) {
	switch {
	case s.file != "":
		store, err := refresh.OpenFileStore(s.file)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case s.sqlitePath != "":
		return openSQL(ctx, "sqlite3", s.sqlitePath, refresh.DialectSQLite)
	case s.databaseURL != "":
		return openSQL(ctx, "pgx", s.databaseURL, refresh.DialectPostgres)
	}
	return nil, func() {}, nil
}

func openSQL(ctx context.Context, driver, dsn string, dialect refresh.Dialect) (veaauth.RefreshStore, func(), error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := refresh.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	store, err := refresh.NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}

func (a *app) newEngine(users veaauth.UserDirectory, store veaauth.RefreshStore) (*veaauth.Engine, error) {
	cfg, err := veaauth.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = directory.NewMemory()
	}

	b := veaauth.New().
		WithConfig(cfg).
		WithUserDirectory(users).
		WithLogger(slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if store != nil {
		b = b.WithRefreshStore(store)
	}
	return b.Build()
}

func (a *app) promptPassword(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	pw, err := a.readPassword(a.stdinFd)
	fmt.Fprintln(a.errOut)
	if err != nil {
		return "", err
	}
	defer clear(pw)
	return string(pw), nil
}

func (a *app) backfill(ctx context.Context, args []string) error {
	fs := a.flagSet("backfill")
	usersPath := fs.String("users", "users.json", "users file")
	dryRun := fs.Bool("dry-run", false, "list accounts without changing them")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	users, err := directory.OpenJSONFile(*usersPath)
	if err != nil {
		return err
	}
	legacy := users.LegacyAccounts()
	if len(legacy) == 0 {
		fmt.Fprintln(a.out, "no plaintext passwords found")
		return nil
	}
	if *dryRun {
		for _, acct := range legacy {
			fmt.Fprintf(a.out, "would hash %s (%s)\n", acct.Email, acct.ID)
		}
		return nil
	}

	engine, err := a.newEngine(users, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, acct := range legacy {
		if err := engine.SetUserPassword(ctx, acct.ID, acct.Password); err != nil {
			return fmt.Errorf("hash %s: %w", acct.Email, err)
		}
		fmt.Fprintf(a.out, "hashed %s\n", acct.Email)
	}
	fmt.Fprintf(a.out, "backfilled %d accounts\n", len(legacy))
	return nil
}

func (a *app) setPassword(ctx context.Context, args []string) error {
	fs := a.flagSet("set-password")
	usersPath := fs.String("users", "users.json", "users file")
	id := fs.String("id", "", "user id")
	var sf storeFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	users, err := directory.OpenJSONFile(*usersPath)
	if err != nil {
		return err
	}
	store, closeStore, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	pw, err := a.promptPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := a.promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if pw != confirm {
		return errors.New("passwords do not match")
	}

	engine, err := a.newEngine(users, store)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.SetUserPassword(ctx, *id, pw); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "password set for %s\n", *id)
	return nil
}

func (a *app) hash(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	pw, err := a.promptPassword("Password: ")
	if err != nil {
		return err
	}
	engine, err := a.newEngine(nil, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	hash, err := engine.HashPassword(ctx, pw)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, hash)
	return nil
}

func (a *app) verify(ctx context.Context, args []string) error {
	fs := a.flagSet("verify")
	hash := fs.String("hash", "", "stored password hash")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *hash == "" {
		return fmt.Errorf("%w: -hash is required", errUsage)
	}
	pw, err := a.promptPassword("Password: ")
	if err != nil {
		return err
	}
	engine, err := a.newEngine(nil, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	if !engine.VerifyPassword(ctx, pw, *hash) {
		return errNoMatch
	}
	fmt.Fprintln(a.out, "match")
	return nil
}

// argOrLine returns the single positional argument, or one line of stdin.
func (a *app) argOrLine(args []string) (string, error) {
	switch len(args) {
	case 1:
		return args[0], nil
	case 0:
		line, err := a.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	return "", errUsage
}

func (a *app) encrypt(args []string) error {
	value, err := a.argOrLine(args)
	if err != nil {
		return err
	}
	engine, err := a.newEngine(nil, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	payload, err := engine.EncryptSensitiveData(value)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, payload)
	return nil
}

func (a *app) decrypt(args []string) error {
	payload, err := a.argOrLine(args)
	if err != nil {
		return err
	}
	payload = strings.TrimSpace(payload)

	// Fields stored before encryption was enabled carry the "obf:" encoding.
	if fieldcrypt.IsObfuscated(payload) {
		value, err := fieldcrypt.Deobfuscate(payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.errOut, "warning: payload is obfuscated, not encrypted; re-encrypt it")
		fmt.Fprintln(a.out, value)
		return nil
	}

	engine, err := a.newEngine(nil, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	value, err := engine.DecryptSensitiveData(payload)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, value)
	return nil
}

// obfuscate encodes a value the way development fixtures store it. It is
// not encryption.
func (a *app) obfuscate(args []string) error {
	value, err := a.argOrLine(args)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, fieldcrypt.Obfuscate(value))
	return nil
}

func (a *app) deobfuscate(args []string) error {
	payload, err := a.argOrLine(args)
	if err != nil {
		return err
	}
	value, err := fieldcrypt.Deobfuscate(strings.TrimSpace(payload))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, value)
	return nil
}

func (a *app) purgeRefresh(ctx context.Context, args []string) error {
	fs := a.flagSet("purge-refresh")
	var sf storeFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	store, closeStore, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	if store == nil {
		return fmt.Errorf("%w: one of -refresh-file, -sqlite or -database-url is required", errUsage)
	}

	engine, err := a.newEngine(nil, store)
	if err != nil {
		return err
	}
	defer engine.Close()

	n, err := engine.PurgeExpiredRefreshTokens(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "purged %d refresh tokens\n", n)
	return nil
}

func (a *app) report(args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	engine, err := a.newEngine(nil, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(engine.SecurityReport()); err != nil {
		return err
	}
	_, err = a.out.Write(buf.Bytes())
	return err
}
