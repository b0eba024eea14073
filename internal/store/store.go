// Package store keeps source recordings as blobs in sqlite, keyed by a logical name.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("recording not found")

// Recording describes a stored blob.
type Recording struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store struct {
	conn   *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, errors.Wrapf(err, "failed to execute %s", pragma)
		}
	}

	s := &Store{conn: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "failed to read migrations")
	}

	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.isMigrationApplied(name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration %s", name)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", name)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return errors.Wrapf(err, "failed to record migration %s", name)
		}
		s.logger.Info("applied migration", slog.String("name", name))
	}
	return nil
}

func (s *Store) isMigrationApplied(name string) bool {
	var exists int
	err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists)
	if err != nil {
		return false
	}
	var applied int
	err = s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

// Put stores the contents of r under key, replacing any previous recording.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (*Recording, error) {
	if key == "" {
		return nil, errors.New("recording key is empty")
	}
	if contentType == "" {
		contentType = "video/webm"
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read recording")
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO recordings (key, id, content_type, size, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			content_type = excluded.content_type,
			size = excluded.size,
			data = excluded.data,
			updated_at = datetime('now')`,
		key, uuid.NewString(), contentType, len(data), data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to store recording %s", key)
	}

	s.logger.Info("stored recording", slog.String("key", key), slog.Int("bytes", len(data)))
	return s.Stat(ctx, key)
}

// Stat returns the recording metadata without loading the blob.
func (s *Store) Stat(ctx context.Context, key string) (*Recording, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, key, content_type, size, created_at, updated_at FROM recordings WHERE key = ?`, key)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load recording %s", key)
	}
	return rec, nil
}

// Get returns a reader over the stored blob.
func (s *Store) Get(ctx context.Context, key string) (io.Reader, *Recording, error) {
	rec, err := s.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	var data []byte
	err = s.conn.QueryRowContext(ctx, `SELECT data FROM recordings WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to load recording %s", key)
	}
	return bytes.NewReader(data), rec, nil
}

// Materialize writes the blob to a file in dir so ffmpeg can open it, and returns its path.
func (s *Store) Materialize(ctx context.Context, key, dir string) (string, error) {
	r, rec, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create directory")
	}

	path := filepath.Join(dir, rec.ID+extensionFor(rec.ContentType))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to create recording file")
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", errors.Wrap(err, "failed to write recording file")
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "failed to write recording file")
	}
	return path, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM recordings WHERE key = ?`, key)
	if err != nil {
		return errors.Wrapf(err, "failed to delete recording %s", key)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]Recording, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, key, content_type, size, created_at, updated_at FROM recordings ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recordings")
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan recording")
		}
		out = append(out, *rec)
	}
	return out, errors.WithStack(rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (*Recording, error) {
	var rec Recording
	var created, updated string
	if err := row.Scan(&rec.ID, &rec.Key, &rec.ContentType, &rec.Size, &created, &updated); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// ContentTypeFor guesses the content type of a recording from its file name.
func ContentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "video/webm"
}

func extensionFor(contentType string) string {
	switch contentType {
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/x-matroska":
		return ".mkv"
	default:
		return ".webm"
	}
}
