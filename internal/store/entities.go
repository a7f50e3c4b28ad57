package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/starford/linkorder/internal/apperr"
	"github.com/starford/linkorder/internal/models"
)

const entityColumns = `id, COALESCE(key, ''), entity_type_id, owned_by_id, properties, created_at, updated_at`

// SearchResult represents one entity search hit.
type SearchResult struct {
	EntityID string `json:"entityId"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// InsertEntity stores a new entity and its search entry in one transaction.
func (s *Store) InsertEntity(ctx context.Context, e *models.Entity) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	props, body, err := encodeProperties(e.Properties)
	if err != nil {
		return fmt.Errorf("store: entity %s: %w", e.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (id, key, entity_type_id, owned_by_id, title, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, nullString(e.Key), e.EntityTypeID, e.OwnedByID, e.Title(), props, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("store: entity %s: %w", e.ID, apperr.ErrAlreadyExists)
		case isForeignKeyViolation(err):
			return fmt.Errorf("store: entity type %s: %w", e.EntityTypeID, apperr.ErrNotFound)
		}
		return fmt.Errorf("store: insert entity: %w", err)
	}
	if err := ftsUpsert(ctx, tx, e.ID, e.Title(), body); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateEntityProperties replaces an entity's properties.
func (s *Store) UpdateEntityProperties(ctx context.Context, e *models.Entity) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	props, body, err := encodeProperties(e.Properties)
	if err != nil {
		return fmt.Errorf("store: entity %s: %w", e.ID, err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE entities SET title = ?, properties = ?, updated_at = ? WHERE id = ?
	`, e.Title(), props, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("store: update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: entity %s: %w", e.ID, apperr.ErrNotFound)
	}
	if err := ftsUpsert(ctx, tx, e.ID, e.Title(), body); err != nil {
		return err
	}
	return tx.Commit()
}

// GetEntity returns an entity or apperr.ErrNotFound.
func (s *Store) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	return getEntity(ctx, s.conn, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
}

// GetEntityByKey returns the entity with the given seed key or apperr.ErrNotFound.
func (s *Store) GetEntityByKey(ctx context.Context, key string) (*models.Entity, error) {
	return getEntity(ctx, s.conn, `SELECT `+entityColumns+` FROM entities WHERE key = ?`, key)
}

// GetEntity returns an entity as seen by the transaction.
func (t *Tx) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	return getEntity(ctx, t.tx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
}

func getEntity(ctx context.Context, q querier, query, arg string) (*models.Entity, error) {
	e, err := scanEntity(q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: entity %s: %w", arg, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get entity: %w", err)
	}
	return e, nil
}

// ListEntities returns a page of entities, optionally filtered by type,
// together with the total count for the filter.
func (s *Store) ListEntities(ctx context.Context, limit, offset int, entityTypeID string) ([]models.Entity, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if entityTypeID != "" {
		where = "WHERE entity_type_id = ?"
		args = append(args, entityTypeID)
	}

	var total int
	if err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM entities `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count entities: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities `+where+` ORDER BY created_at, id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list entities: %w", err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var (
		e     models.Entity
		props string
	)
	if err := row.Scan(&e.ID, &e.Key, &e.EntityTypeID, &e.OwnedByID, &props, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
		return nil, fmt.Errorf("store: decode properties of %s: %w", e.ID, err)
	}
	if e.Properties == nil {
		e.Properties = map[string]any{}
	}
	return &e, nil
}

// encodeProperties returns the JSON column value and the text indexed for
// search: every string property, in key order.
func encodeProperties(p map[string]any) (string, string, error) {
	if p == nil {
		p = map[string]any{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("encode properties: %w", err)
	}

	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if s, ok := p[k].(string); ok {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(s)
		}
	}
	return string(data), b.String(), nil
}
