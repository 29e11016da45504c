package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/restream-tools/restreamctl/internal/auth"
)

const (
	defaultTokenTable = "token_store"
	defaultTokenKey   = "default"
)

// PostgresTokenStoreConfig captures the settings needed to reach the
// backing database.
type PostgresTokenStoreConfig struct {
	DSN    string
	Schema string
	Table  string
	// Key distinguishes sessions sharing one table; it defaults to
	// "default" for single-account use.
	Key string
}

// PostgresTokenStore keeps the token record in a single JSONB row so
// headless deployments can hold a session without a writable filesystem.
type PostgresTokenStore struct {
	db  *sql.DB
	cfg PostgresTokenStoreConfig
}

// NewPostgresTokenStore connects to PostgreSQL, verifies the connection,
// and creates the token table when it does not exist yet.
func NewPostgresTokenStore(ctx context.Context, cfg PostgresTokenStoreConfig) (*PostgresTokenStore, error) {
	trimmedDSN := strings.TrimSpace(cfg.DSN)
	if trimmedDSN == "" {
		return nil, errors.New("postgres token store: DSN is required")
	}
	cfg.DSN = trimmedDSN
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = defaultTokenTable
	}
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = defaultTokenKey
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres token store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres token store: ping database: %w", err)
	}

	store := &PostgresTokenStore{db: db, cfg: cfg}
	if err = store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database connection.
func (s *PostgresTokenStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresTokenStore) ensureSchema(ctx context.Context) error {
	if schema := strings.TrimSpace(s.cfg.Schema); schema != "" {
		query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(schema))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres token store: create schema: %w", err)
		}
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			session_key TEXT PRIMARY KEY,
			record      JSONB NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, s.fullTableName())
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("postgres token store: create token table: %w", err)
	}
	return nil
}

// Save upserts the record under the configured key.
func (s *PostgresTokenStore) Save(ctx context.Context, record *auth.TokenRecord) error {
	if record == nil || record.AccessToken == "" {
		return errors.New("token store: record must carry an access token")
	}
	content, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("postgres token store: marshal record: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (session_key, record, updated_at) VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (session_key) DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()
	`, s.fullTableName())
	if _, err = s.db.ExecContext(ctx, query, s.cfg.Key, string(content)); err != nil {
		return fmt.Errorf("postgres token store: upsert token row: %w", err)
	}
	return nil
}

// Load fetches the record. A missing row or corrupt content is an absent
// session.
func (s *PostgresTokenStore) Load(ctx context.Context) (*auth.TokenRecord, error) {
	query := fmt.Sprintf("SELECT record FROM %s WHERE session_key = $1", s.fullTableName())
	var content []byte
	err := s.db.QueryRowContext(ctx, query, s.cfg.Key).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres token store: query token row: %w", err)
	}

	var record auth.TokenRecord
	if err = json.Unmarshal(content, &record); err != nil {
		log.Debugf("token row %q unparsable, treating as no session: %v", s.cfg.Key, err)
		return nil, nil
	}
	if record.AccessToken == "" {
		return nil, nil
	}
	return &record, nil
}

// Clear deletes the token row. A missing row is not an error.
func (s *PostgresTokenStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE session_key = $1", s.fullTableName())
	if _, err := s.db.ExecContext(ctx, query, s.cfg.Key); err != nil {
		return fmt.Errorf("postgres token store: delete token row: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) fullTableName() string {
	if strings.TrimSpace(s.cfg.Schema) == "" {
		return quoteIdentifier(s.cfg.Table)
	}
	return quoteIdentifier(s.cfg.Schema) + "." + quoteIdentifier(s.cfg.Table)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, `"`, `""`)
	return `"` + replaced + `"`
}
