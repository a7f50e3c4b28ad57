package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/linkorder/internal/apperr"
	"github.com/starford/linkorder/internal/models"
)

// InsertLinkType creates a link type. Returns apperr.ErrAlreadyExists if the ID is taken.
func (s *Store) InsertLinkType(ctx context.Context, lt *models.LinkType) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO link_types (id, title, plural_title, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, lt.ID, lt.Title, lt.PluralTitle, lt.Description, lt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("store: link type %s: %w", lt.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("store: insert link type: %w", err)
	}
	return nil
}

// UpsertLinkType creates or replaces a link type's descriptive fields.
func (s *Store) UpsertLinkType(ctx context.Context, lt *models.LinkType) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO link_types (id, title, plural_title, description, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title        = excluded.title,
			plural_title = excluded.plural_title,
			description  = excluded.description
	`, lt.ID, lt.Title, lt.PluralTitle, lt.Description, lt.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert link type: %w", err)
	}
	return nil
}

// GetLinkType returns a link type or apperr.ErrNotFound.
func (s *Store) GetLinkType(ctx context.Context, id string) (*models.LinkType, error) {
	var lt models.LinkType
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, title, plural_title, description, created_at FROM link_types WHERE id = ?
	`, id).Scan(&lt.ID, &lt.Title, &lt.PluralTitle, &lt.Description, &lt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: link type %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get link type: %w", err)
	}
	return &lt, nil
}

// ListLinkTypes returns all link types ordered by ID.
func (s *Store) ListLinkTypes(ctx context.Context) ([]models.LinkType, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, plural_title, description, created_at FROM link_types ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list link types: %w", err)
	}
	defer rows.Close()

	var out []models.LinkType
	for rows.Next() {
		var lt models.LinkType
		if err := rows.Scan(&lt.ID, &lt.Title, &lt.PluralTitle, &lt.Description, &lt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

// InsertEntityType creates an entity type. Returns apperr.ErrAlreadyExists if the ID is taken.
func (s *Store) InsertEntityType(ctx context.Context, et *models.EntityType) error {
	rules, err := json.Marshal(nonNilRules(et.OutgoingLinks))
	if err != nil {
		return fmt.Errorf("store: encode rules of entity type %s: %w", et.ID, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO entity_types (id, title, outgoing_links, created_at) VALUES (?, ?, ?, ?)
	`, et.ID, et.Title, string(rules), et.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("store: entity type %s: %w", et.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("store: insert entity type: %w", err)
	}
	return nil
}

// UpsertEntityType creates or replaces an entity type.
func (s *Store) UpsertEntityType(ctx context.Context, et *models.EntityType) error {
	rules, err := json.Marshal(nonNilRules(et.OutgoingLinks))
	if err != nil {
		return fmt.Errorf("store: encode rules of entity type %s: %w", et.ID, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO entity_types (id, title, outgoing_links, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title          = excluded.title,
			outgoing_links = excluded.outgoing_links
	`, et.ID, et.Title, string(rules), et.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert entity type: %w", err)
	}
	return nil
}

// GetEntityType returns an entity type or apperr.ErrNotFound.
func (s *Store) GetEntityType(ctx context.Context, id string) (*models.EntityType, error) {
	et, err := scanEntityType(s.conn.QueryRowContext(ctx, `
		SELECT id, title, outgoing_links, created_at FROM entity_types WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: entity type %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get entity type: %w", err)
	}
	return et, nil
}

// ListEntityTypes returns all entity types ordered by ID.
func (s *Store) ListEntityTypes(ctx context.Context) ([]models.EntityType, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, outgoing_links, created_at FROM entity_types ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list entity types: %w", err)
	}
	defer rows.Close()

	var out []models.EntityType
	for rows.Next() {
		et, err := scanEntityType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *et)
	}
	return out, rows.Err()
}

func scanEntityType(row rowScanner) (*models.EntityType, error) {
	var (
		et    models.EntityType
		rules string
	)
	if err := row.Scan(&et.ID, &et.Title, &rules, &et.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rules), &et.OutgoingLinks); err != nil {
		return nil, fmt.Errorf("store: decode outgoing links of %s: %w", et.ID, err)
	}
	return &et, nil
}

func nonNilRules(r []models.OutgoingLinkRule) []models.OutgoingLinkRule {
	if r == nil {
		return []models.OutgoingLinkRule{}
	}
	return r
}
