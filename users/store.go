package users

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrUsernameTaken is returned by Create when the username exists.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrNotFound is returned by Save for an unknown user id.
	ErrNotFound = errors.New("user not found")
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// gooseMu serializes goose's package-level dialect and FS settings.
var gooseMu sync.Mutex

// DBTX is the subset of database/sql used by the store. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQL user directory.
type Store struct {
	db       DBTX
	closer   func() error
	postgres bool
}

// Open connects to the database, runs pending migrations and returns a Store.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var sqlDriver, dialect string
	switch driver {
	case DriverSQLite, "":
		sqlDriver, dialect = "sqlite", "sqlite3"
	case DriverPostgres:
		sqlDriver, dialect = "pgx", "postgres"
	default:
		return nil, fmt.Errorf("unsupported user store driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if sqlDriver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := NewStore(db, dialect == "postgres")
	s.closer = db.Close
	return s, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

// NewStore wraps an already-migrated database handle.
func NewStore(db DBTX, postgres bool) *Store {
	return &Store{db: db, postgres: postgres}
}

// Close releases the database handle when the Store owns it.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Resolve returns the user named username, or nil when there is none.
func (s *Store) Resolve(ctx context.Context, username string) (*User, error) {
	query := s.rebind(`SELECT id, username, user_data, auth_data FROM users WHERE username = ?`)

	var (
		u                  User
		userData, authData string
	)
	err := s.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &userData, &authData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if u.UserData, err = decodeBlob(userData); err != nil {
		return nil, fmt.Errorf("user %s: user_data: %w", u.ID, err)
	}
	if u.AuthData, err = decodeBlob(authData); err != nil {
		return nil, fmt.Errorf("user %s: auth_data: %w", u.ID, err)
	}
	return &u, nil
}

// Create inserts a user with the given public profile and empty auth data.
// userData.username is always set to username.
func (s *Store) Create(ctx context.Context, username string, userData map[string]any) (*User, error) {
	u := &User{
		ID:       uuid.NewString(),
		Username: username,
		UserData: map[string]any{},
		AuthData: map[string]any{},
	}
	for k, v := range userData {
		u.UserData[k] = v
	}
	u.UserData["username"] = username

	ud, err := json.Marshal(u.UserData)
	if err != nil {
		return nil, err
	}

	query := s.rebind(`INSERT INTO users (id, username, user_data, auth_data)
		VALUES (?, ?, ?, '{}')
		ON CONFLICT (username) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query, u.ID, username, string(ud))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}
	return u, nil
}

// Save writes both data blobs of u in a single statement.
func (s *Store) Save(ctx context.Context, u *User) error {
	ud, err := json.Marshal(nonNil(u.UserData))
	if err != nil {
		return err
	}
	ad, err := json.Marshal(nonNil(u.AuthData))
	if err != nil {
		return err
	}

	query := s.rebind(`UPDATE users SET user_data = ?, auth_data = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, string(ud), string(ad), u.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every username in ascending order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return names, nil
}

func decodeBlob(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
