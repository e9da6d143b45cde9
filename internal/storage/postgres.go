package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"

	"luminatext/pkg/logger"
	"luminatext/pkg/model"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// New PostgreSQL store instance. Pending migrations from migrationsPath are
// applied before returning.
func NewPostgresStore(ctx context.Context, databaseURL, migrationsPath string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")

	if err := runMigrations(config.ConnConfig, migrationsPath); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func migrationsURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get migrations path: %w", err)
	}

	if runtime.GOOS == "windows" {
		u := &url.URL{
			Scheme: "file",
			Path:   filepath.ToSlash(abs),
		}
		return u.String(), nil
	}
	return "file://" + abs, nil
}

// withMigrator opens a database/sql handle for golang-migrate and runs fn.
func withMigrator(connConfig *pgx.ConnConfig, migrationsPath string, fn func(m *migrate.Migrate) error) error {
	sourceURL, err := migrationsURL(migrationsPath)
	if err != nil {
		return err
	}

	logger.Info("Running migrations", zap.String("path", sourceURL))

	db := stdlib.OpenDB(*connConfig)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	return fn(m)
}

// ResetMigrations drops every table and re-applies all migrations.
func ResetMigrations(databaseURL, migrationsPath string) error {
	logger.Warn("Resetting database - this will drop all data!")

	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	return withMigrator(connConfig, migrationsPath, func(m *migrate.Migrate) error {
		if err := m.Drop(); err != nil {
			return fmt.Errorf("failed to drop database: %w", err)
		}
		logger.Info("Database dropped successfully")

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrations after reset: %w", err)
		}

		logger.Info("Database reset and migrations applied successfully")
		return nil
	})
}

func runMigrations(connConfig *pgx.ConnConfig, migrationsPath string) error {
	return withMigrator(connConfig, migrationsPath, applyMigrations)
}

func applyMigrations(m *migrate.Migrate) error {
	err := m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("Migrations applied successfully")
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Insert(ctx context.Context, t *model.Transcription) (string, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO transcriptions (
			id, text, file_name, duration_seconds, file_size_bytes, created_at, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)`

	_, err := s.pool.Exec(ctx, query,
		id,
		t.Text,
		t.FileName,
		t.DurationSeconds,
		t.FileSizeBytes,
		t.CreatedAt,
		t.Metadata,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert transcription: %w", err)
	}

	return id, nil
}

// List orders by created_at and breaks ties with the insertion sequence.
func (s *PostgresStore) List(ctx context.Context, skip, limit int64) ([]*model.Transcription, error) {
	query := `
		SELECT id, text, file_name, duration_seconds, file_size_bytes, created_at, metadata
		FROM transcriptions
		ORDER BY created_at DESC, seq DESC
		OFFSET $1
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcriptions: %w", err)
	}
	defer rows.Close()

	records := make([]*model.Transcription, 0, pageCapacity(limit))
	for rows.Next() {
		var t model.Transcription
		err := rows.Scan(
			&t.ID,
			&t.Text,
			&t.FileName,
			&t.DurationSeconds,
			&t.FileSizeBytes,
			&t.CreatedAt,
			&t.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcription: %w", err)
		}
		records = append(records, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcriptions: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transcriptions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transcriptions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) (int64, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		logger.Debug("Rejected malformed transcription id", zap.String("id", id), zap.Error(err))
		return 0, nil
	}

	result, err := s.pool.Exec(ctx, `DELETE FROM transcriptions WHERE id = $1`, parsed.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete transcription: %w", err)
	}

	return result.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
