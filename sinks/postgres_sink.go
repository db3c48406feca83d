package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjlanasa/aspace-sync/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresSink(ctx context.Context, cfg config.PostgresSinkConfig) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect entity sink: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "entities"
	}
	s := &PostgresSink{pool: pool, table: pgx.Identifier{table}.Sanitize()}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		type TEXT NOT NULL,
		id TEXT NOT NULL,
		bundle TEXT NOT NULL DEFAULT '',
		source_uri TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		identifier TEXT NOT NULL DEFAULT '',
		published BOOLEAN NOT NULL DEFAULT false,
		body TEXT NOT NULL DEFAULT '',
		parent TEXT NOT NULL DEFAULT '',
		resource TEXT NOT NULL DEFAULT '',
		refs JSONB,
		links JSONB,
		payload JSONB,
		modified_time TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (type, id)
	)`, s.table))
	if err != nil {
		return fmt.Errorf("create entity table: %w", err)
	}
	return nil
}

func (s *PostgresSink) Put(ctx context.Context, e Entity) error {
	refs, err := json.Marshal(e.Refs)
	if err != nil {
		return err
	}
	links, err := json.Marshal(e.Links)
	if err != nil {
		return err
	}
	var payload []byte
	if len(e.Payload) > 0 {
		payload = e.Payload
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
		(type, id, bundle, source_uri, title, identifier, published, body, parent, resource, refs, links, payload, modified_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT (type, id) DO UPDATE SET
			bundle = EXCLUDED.bundle, source_uri = EXCLUDED.source_uri, title = EXCLUDED.title,
			identifier = EXCLUDED.identifier, published = EXCLUDED.published, body = EXCLUDED.body,
			parent = EXCLUDED.parent, resource = EXCLUDED.resource, refs = EXCLUDED.refs,
			links = EXCLUDED.links, payload = EXCLUDED.payload, modified_time = EXCLUDED.modified_time,
			updated_at = now()`, s.table),
		e.Type, e.ID, e.Bundle, e.SourceURI, e.Title, e.Identifier, e.Published, e.Body,
		e.Parent, e.Resource, refs, links, payload, e.ModifiedTime,
	)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", e.Type, e.ID, err)
	}
	return nil
}

func (s *PostgresSink) Get(ctx context.Context, entityType, id string) (Entity, bool, error) {
	var (
		e           Entity
		refs, links []byte
		payload     []byte
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT type, id, bundle, source_uri, title, identifier, published,
		body, parent, resource, refs, links, payload, modified_time
		FROM %s WHERE type = $1 AND id = $2`, s.table), entityType, id,
	).Scan(&e.Type, &e.ID, &e.Bundle, &e.SourceURI, &e.Title, &e.Identifier, &e.Published,
		&e.Body, &e.Parent, &e.Resource, &refs, &links, &payload, &e.ModifiedTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entity{}, false, nil
	}
	if err != nil {
		return Entity{}, false, err
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &e.Refs); err != nil {
			return Entity{}, false, err
		}
	}
	if len(links) > 0 {
		if err := json.Unmarshal(links, &e.Links); err != nil {
			return Entity{}, false, err
		}
	}
	if len(payload) > 0 {
		e.Payload = payload
	}
	return e, true, nil
}

func (s *PostgresSink) Delete(ctx context.Context, entityType, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE type = $1 AND id = $2`, s.table), entityType, id)
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", entityType, id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
