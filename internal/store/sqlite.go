package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/incident-intake/internal/domain"
	"github.com/ashureev/incident-intake/internal/shared"
	_ "modernc.org/sqlite"
)

const registerDateLayout = "2006-01-02"

// SQLiteStore implements Repository using SQLite.
//
// The store holds a single connection and serializes writes through writeMu,
// so it must be opened once and shared.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	slog.Info("Database opened", "path", dbPath)
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		firstname TEXT,
		username TEXT,
		register_date TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS incident (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		theme TEXT NOT NULL,
		description TEXT NOT NULL,
		contact TEXT,
		file TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_incident_user ON incident(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RegisterUser inserts a user row if none exists for user.ID.
func (s *SQLiteStore) RegisterUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, firstname, username, register_date)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

	registered := user.RegisteredOn
	if registered.IsZero() {
		registered = time.Now()
	}

	var username interface{}
	if user.Username != "" {
		username = user.Username
	}

	return s.write(ctx, "register user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.ID, user.FirstName, username, registered.Format(registerDateLayout))
		return err
	})
}

// IsRegistered reports whether a user row exists.
func (s *SQLiteStore) IsRegistered(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return true, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT id, firstname, username, register_date FROM users WHERE id = ?`

	var user domain.User
	var firstName, username sql.NullString
	var registered string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &firstName, &username, &registered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.FirstName = firstName.String
	user.Username = username.String
	if user.RegisteredOn, err = time.Parse(registerDateLayout, registered); err != nil {
		return nil, fmt.Errorf("parse register date %q: %w", registered, err)
	}
	return &user, nil
}

// AddIncident appends an incident row.
func (s *SQLiteStore) AddIncident(ctx context.Context, incident *domain.Incident) (int64, error) {
	query := `
	INSERT INTO incident (user_id, theme, description, contact, file)
	VALUES (?, ?, ?, ?, ?)`

	var id int64
	err := s.write(ctx, "add incident", func() error {
		result, err := s.db.ExecContext(ctx, query,
			incident.UserID, incident.Theme, incident.Description,
			nullable(incident.Contact), nullable(incident.FilePath))
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	incident.ID = id
	return id, nil
}

// GetIncident retrieves an incident by ID.
func (s *SQLiteStore) GetIncident(ctx context.Context, id int64) (*domain.Incident, error) {
	query := `SELECT id, user_id, theme, description, contact, file FROM incident WHERE id = ?`

	var inc domain.Incident
	var contact, file sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inc.ID, &inc.UserID, &inc.Theme, &inc.Description, &contact, &file)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan incident row: %w", err)
	}
	if contact.Valid {
		inc.Contact = &contact.String
	}
	if file.Valid {
		inc.FilePath = &file.String
	}
	return &inc, nil
}

// ListIncidentIDs returns incident IDs, all of them when userID is nil.
func (s *SQLiteStore) ListIncidentIDs(ctx context.Context, userID *int64) ([]int64, error) {
	query := `SELECT id FROM incident ORDER BY id`
	var args []interface{}
	if userID != nil {
		query = `SELECT id FROM incident WHERE user_id = ? ORDER BY id`
		args = append(args, *userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incident ids: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close incident id rows", "error", closeErr)
		}
	}()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan incident id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident ids: %w", err)
	}
	return ids, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// write runs fn under the write lock, retrying with exponential backoff
// while another process holds the database.
func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if shared.IsSQLiteForeignKeyError(err) {
			return fmt.Errorf("%s: %w", op, ErrIntegrity)
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullable(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

var _ Repository = (*SQLiteStore)(nil)
