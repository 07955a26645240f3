package relay_db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps each collection in its own table:
//
//	id text PRIMARY KEY, body jsonb NOT NULL, created_at timestamptz, updated_at timestamptz
//
// Unique fields become unique expression indexes on the body, so conflicting
// writes fail in the database with code 23505 and surface as ErrConflict.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ConnectPostgres opens a pool for connString and checks it with a ping.
func ConnectPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) EnsureCollection(ctx context.Context, collection string, unique ...string) error {
	if !validName(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidName, collection)
	}
	statements := []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	body jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
)`, collection)}
	for _, index := range unique {
		fields, err := parseUnique(index)
		if err != nil {
			return fmt.Errorf("%w: unique %q", err, index)
		}
		exprs := make([]string, len(fields))
		for i, f := range fields {
			exprs[i] = "(body->>'" + f + "')"
		}
		statements = append(statements, fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s_%s_key ON %s (%s)",
			collection, strings.Join(fields, "_"), collection, strings.Join(exprs, ", "),
		))
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PostgresError(collection, err)
	}
	defer tx.Rollback(ctx)
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return PostgresError(collection, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return PostgresError(collection, err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, doc Document) (Document, error) {
	if !validName(collection) {
		return Document{}, fmt.Errorf("%w: collection %q", ErrInvalidName, collection)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now
	query := numberPlaceholders("INSERT INTO "+collection+" (id, body, created_at, updated_at) VALUES ($, $, $, $)", 0)
	if _, err := s.pool.Exec(ctx, query, doc.ID, doc.Body, doc.CreatedAt, doc.UpdatedAt); err != nil {
		return Document{}, PostgresError(collection, err)
	}
	return doc, nil
}

func (s *PostgresStore) Replace(ctx context.Context, collection string, doc Document) (Document, error) {
	if !validName(collection) {
		return Document{}, fmt.Errorf("%w: collection %q", ErrInvalidName, collection)
	}
	doc.UpdatedAt = time.Now().UTC()
	query := numberPlaceholders("UPDATE "+collection+" SET body = $, updated_at = $ WHERE id = $ RETURNING created_at", 0)
	err := s.pool.QueryRow(ctx, query, doc.Body, doc.UpdatedAt, doc.ID).Scan(&doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, NotFoundError(collection)
	}
	if err != nil {
		return Document{}, PostgresError(collection, err)
	}
	return doc, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection string, id string) (Document, error) {
	if !validName(collection) {
		return Document{}, fmt.Errorf("%w: collection %q", ErrInvalidName, collection)
	}
	var doc Document
	query := numberPlaceholders("SELECT id, body, created_at, updated_at FROM "+collection+" WHERE id = $", 0)
	err := s.pool.QueryRow(ctx, query, id).Scan(&doc.ID, &doc.Body, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, NotFoundError(collection)
	}
	if err != nil {
		return Document{}, PostgresError(collection, err)
	}
	return doc, nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection string, id string) error {
	if !validName(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidName, collection)
	}
	query := numberPlaceholders("DELETE FROM "+collection+" WHERE id = $", 0)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return PostgresError(collection, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError(collection)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, q *Query) ([]Document, error) {
	query, args, err := q.Build()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, PostgresError(q.collection, err)
	}
	defer rows.Close()
	results := []Document{}
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return results, PostgresError(q.collection, err)
		}
		results = append(results, doc)
	}
	if rows.Err() != nil {
		return results, PostgresError(q.collection, rows.Err())
	}
	return results, nil
}
