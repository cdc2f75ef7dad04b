package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/securechat/internal/common"
	"github.com/dmitrijs2005/securechat/internal/dbx"
	"github.com/dmitrijs2005/securechat/internal/server/credentials/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore reads verifiers from the users table.
type PostgresStore struct {
	db *sql.DB
	q  dbx.DBTX
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// OpenPostgres connects through the pgx stdlib driver and applies the
// embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewPostgresStore(db), nil
}

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema with goose.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func (s *PostgresStore) Verifier(ctx context.Context, identity string) ([]byte, error) {
	query :=
		`SELECT verifier FROM users
		 WHERE username = $1
		 `

	var verifier string
	err := s.q.QueryRowContext(ctx, query, identity).Scan(&verifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return []byte(verifier), nil
}

func (s *PostgresStore) AddUser(ctx context.Context, identity string, verifier []byte) error {
	return s.upsert(ctx, s.q, identity, verifier)
}

// Seed provisions several users in one transaction.
func (s *PostgresStore) Seed(ctx context.Context, users map[string]string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for id, v := range users {
			if err := s.upsert(ctx, tx, id, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) upsert(ctx context.Context, q dbx.DBTX, identity string, verifier []byte) error {
	query :=
		`INSERT INTO users (username, verifier)
		 VALUES ($1, $2)
		 ON CONFLICT (username) DO UPDATE SET verifier = EXCLUDED.verifier
		 `

	if _, err := q.ExecContext(ctx, query, identity, string(verifier)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
