package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"anwesha-auth/internal/domain"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDuplicateKey     = errors.New("duplicate key")
)

const pgUniqueViolation = "23505"

// DocumentCheck valida un documento antes de guardarlo; un error cancela la escritura.
type DocumentCheck func(doc map[string]any) error

// DocumentStore guarda documentos JSON por (coleccion, clave).
// Update hace merge parcial y falla con ErrDocumentNotFound si el documento no existe.
// Si check no es nil se aplica al documento resultante antes de confirmar.
type DocumentStore interface {
	Get(ctx context.Context, collection, key string) (map[string]any, error)
	Set(ctx context.Context, collection, key string, doc map[string]any) error
	Update(ctx context.Context, collection, key string, fields domain.Fields, check DocumentCheck) (map[string]any, error)
	FieldExists(ctx context.Context, collection, field, value string) (bool, error)
	Delete(ctx context.Context, collection, key string) error
}

// PgDocumentStore implementa DocumentStore sobre una tabla jsonb.
type PgDocumentStore struct {
	pool *pgxpool.Pool
}

func NewPgDocumentStore(pool *pgxpool.Pool) *PgDocumentStore {
	return &PgDocumentStore{pool: pool}
}

func (s *PgDocumentStore) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	const query = `
		SELECT data
		FROM documents
		WHERE collection = $1 AND key = $2
	`
	var doc map[string]any
	err := s.pool.QueryRow(ctx, query, collection, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *PgDocumentStore) Set(ctx context.Context, collection, key string, doc map[string]any) error {
	const query = `
		INSERT INTO documents (collection, key, data, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (collection, key)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`
	_, err := s.pool.Exec(ctx, query, collection, key, doc)
	return translatePgError(err)
}

func (s *PgDocumentStore) Update(ctx context.Context, collection, key string, fields domain.Fields, check DocumentCheck) (map[string]any, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const selectQuery = `
		SELECT data
		FROM documents
		WHERE collection = $1 AND key = $2
		FOR UPDATE
	`
	var current map[string]any
	if err := tx.QueryRow(ctx, selectQuery, collection, key).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}

	merged, err := domain.ApplyFields(current, fields)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(merged); err != nil {
			return nil, err
		}
	}

	const updateQuery = `
		UPDATE documents
		SET data = $3, updated_at = now()
		WHERE collection = $1 AND key = $2
	`
	if _, err := tx.Exec(ctx, updateQuery, collection, key, merged); err != nil {
		return nil, translatePgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translatePgError(err)
	}
	return merged, nil
}

func (s *PgDocumentStore) FieldExists(ctx context.Context, collection, field, value string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM documents
			WHERE collection = $1 AND data->>$2 = $3
		)
	`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, collection, field, value).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PgDocumentStore) Delete(ctx context.Context, collection, key string) error {
	const query = `DELETE FROM documents WHERE collection = $1 AND key = $2`
	_, err := s.pool.Exec(ctx, query, collection, key)
	return err
}

func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}
