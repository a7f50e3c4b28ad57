package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/linkorder/internal/apperr"
	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/ordering"
)

const linkColumns = `id, source_entity_id, link_type_id, target_entity_id, link_index,
	owned_by_id, created_by_id, properties, created_at, updated_at, archived_at, archived_by_id`

// ListSiblings returns the live indexed links of a group, sorted by index.
func (t *Tx) ListSiblings(ctx context.Context, key models.GroupKey) ([]ordering.Sibling, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, link_index FROM links
		WHERE source_entity_id = ? AND link_type_id = ?
		  AND archived_at IS NULL AND link_index IS NOT NULL
		ORDER BY link_index
	`, key.SourceEntityID, key.LinkTypeID)
	if err != nil {
		return nil, fmt.Errorf("store: list siblings: %w", err)
	}
	defer rows.Close()

	var out []ordering.Sibling
	for rows.Next() {
		var s ordering.Sibling
		if err := rows.Scan(&s.LinkID, &s.Index); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ApplyIndexDelta writes every index in changes as one batch. Indexes are
// first parked on distinct negative values so the group's unique index never
// sees a transient duplicate, then set to their final values. A duplicate in
// the final state is reported as apperr.ErrInvariantViolation.
func (t *Tx) ApplyIndexDelta(ctx context.Context, key models.GroupKey, changes ordering.Changes) error {
	if len(changes) == 0 {
		return nil
	}
	ids := make([]string, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	const update = `
		UPDATE links SET link_index = ?, updated_at = ?
		WHERE id = ? AND source_entity_id = ? AND link_type_id = ? AND archived_at IS NULL
	`
	now := time.Now().UTC()

	for i, id := range ids {
		res, err := t.tx.ExecContext(ctx, update, -(i + 1), now, id, key.SourceEntityID, key.LinkTypeID)
		if err != nil {
			return fmt.Errorf("store: park index of %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: link %s not live in %s: %w", id, key, apperr.ErrNotFound)
		}
	}
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, update, changes[id], now, id, key.SourceEntityID, key.LinkTypeID); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("store: index %d in %s: %w", changes[id], key, apperr.ErrInvariantViolation)
			}
			return fmt.Errorf("store: set index of %s: %w", id, err)
		}
	}
	return nil
}

// InsertLink stores a new link.
func (t *Tx) InsertLink(ctx context.Context, l *models.Link) error {
	props, err := json.Marshal(nonNilProps(l.Properties))
	if err != nil {
		return fmt.Errorf("store: encode properties of link %s: %w", l.ID, err)
	}
	var idx sql.NullInt64
	if l.Index != nil {
		idx = sql.NullInt64{Int64: int64(*l.Index), Valid: true}
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO links (id, source_entity_id, link_type_id, target_entity_id, link_index,
			owned_by_id, created_by_id, properties, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.SourceEntityID, l.LinkTypeID, l.TargetEntityID, idx,
		l.OwnedByID, l.CreatedByID, string(props), l.CreatedAt, l.UpdatedAt)
	if err != nil {
		switch {
		case isConstraint(err, sqlite3.ErrConstraintUnique) && l.Index != nil:
			return fmt.Errorf("store: index %d in %s: %w", *l.Index, l.Group(), apperr.ErrInvariantViolation)
		case isUniqueViolation(err):
			return fmt.Errorf("store: link %s: %w", l.ID, apperr.ErrAlreadyExists)
		case isForeignKeyViolation(err):
			return fmt.Errorf("store: link endpoints: %w", apperr.ErrNotFound)
		}
		return fmt.Errorf("store: insert link: %w", err)
	}
	return nil
}

// ArchiveLink marks a live link removed and clears its index.
func (t *Tx) ArchiveLink(ctx context.Context, id, actorID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE links SET archived_at = ?, archived_by_id = ?, link_index = NULL, updated_at = ?
		WHERE id = ? AND archived_at IS NULL
	`, at, actorID, at, id)
	if err != nil {
		return fmt.Errorf("store: archive link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: live link %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// SetLinkProperties replaces a live link's properties.
func (t *Tx) SetLinkProperties(ctx context.Context, id string, props map[string]any, at time.Time) error {
	data, err := json.Marshal(nonNilProps(props))
	if err != nil {
		return fmt.Errorf("store: encode properties of link %s: %w", id, err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE links SET properties = ?, updated_at = ? WHERE id = ? AND archived_at IS NULL
	`, string(data), at, id)
	if err != nil {
		return fmt.Errorf("store: set link properties: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: live link %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// GetLink returns a link, live or archived, as seen by the transaction.
func (t *Tx) GetLink(ctx context.Context, id string) (*models.Link, error) {
	return getLink(ctx, t.tx, id)
}

// GetLink returns a link, live or archived.
func (s *Store) GetLink(ctx context.Context, id string) (*models.Link, error) {
	return getLink(ctx, s.conn, id)
}

// ListGroup returns the live links of a group. Indexed links come sorted by
// index; unindexed links by creation time.
func (t *Tx) ListGroup(ctx context.Context, key models.GroupKey) ([]models.Link, error) {
	return listLinks(ctx, t.tx, `
		WHERE source_entity_id = ? AND link_type_id = ? AND archived_at IS NULL
		ORDER BY link_index, created_at, id
	`, key.SourceEntityID, key.LinkTypeID)
}

// ListGroup is the non-transactional variant of Tx.ListGroup.
func (s *Store) ListGroup(ctx context.Context, key models.GroupKey) ([]models.Link, error) {
	return listLinks(ctx, s.conn, `
		WHERE source_entity_id = ? AND link_type_id = ? AND archived_at IS NULL
		ORDER BY link_index, created_at, id
	`, key.SourceEntityID, key.LinkTypeID)
}

// CountLive returns the number of live links in a group.
func (t *Tx) CountLive(ctx context.Context, key models.GroupKey) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT count(*) FROM links WHERE source_entity_id = ? AND link_type_id = ? AND archived_at IS NULL
	`, key.SourceEntityID, key.LinkTypeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count links: %w", err)
	}
	return n, nil
}

// FindLiveLink returns the first live link of the group pointing at target,
// or nil when there is none.
func (t *Tx) FindLiveLink(ctx context.Context, key models.GroupKey, targetEntityID string) (*models.Link, error) {
	links, err := listLinks(ctx, t.tx, `
		WHERE source_entity_id = ? AND link_type_id = ? AND target_entity_id = ? AND archived_at IS NULL
		ORDER BY link_index, created_at, id LIMIT 1
	`, key.SourceEntityID, key.LinkTypeID, targetEntityID)
	if err != nil || len(links) == 0 {
		return nil, err
	}
	return &links[0], nil
}

// ListOutgoingLinks returns the live links leaving source, optionally
// restricted to one link type. Links are grouped by type and ordered by
// index within each group.
func (s *Store) ListOutgoingLinks(ctx context.Context, sourceEntityID, linkTypeID string) ([]models.Link, error) {
	if linkTypeID != "" {
		return s.ListGroup(ctx, models.GroupKey{SourceEntityID: sourceEntityID, LinkTypeID: linkTypeID})
	}
	return listLinks(ctx, s.conn, `
		WHERE source_entity_id = ? AND archived_at IS NULL
		ORDER BY link_type_id, link_index, created_at, id
	`, sourceEntityID)
}

// ListIncomingLinks returns the live links pointing at target.
func (s *Store) ListIncomingLinks(ctx context.Context, targetEntityID string) ([]models.Link, error) {
	return listLinks(ctx, s.conn, `
		WHERE target_entity_id = ? AND archived_at IS NULL
		ORDER BY source_entity_id, link_type_id, link_index, created_at, id
	`, targetEntityID)
}

// CountLiveLinksByRule returns the number of live links of linkTypeID whose
// source is an entity of entityTypeID.
func (s *Store) CountLiveLinksByRule(ctx context.Context, entityTypeID, linkTypeID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `
		SELECT count(*) FROM links l
		JOIN entities e ON e.id = l.source_entity_id
		WHERE e.entity_type_id = ? AND l.link_type_id = ? AND l.archived_at IS NULL
	`, entityTypeID, linkTypeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count links of rule: %w", err)
	}
	return n, nil
}

// IndexedGroups returns every group holding at least one live indexed link.
func (s *Store) IndexedGroups(ctx context.Context) ([]models.GroupKey, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT DISTINCT source_entity_id, link_type_id FROM links
		WHERE archived_at IS NULL AND link_index IS NOT NULL
		ORDER BY source_entity_id, link_type_id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: indexed groups: %w", err)
	}
	defer rows.Close()

	var out []models.GroupKey
	for rows.Next() {
		var k models.GroupKey
		if err := rows.Scan(&k.SourceEntityID, &k.LinkTypeID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func getLink(ctx context.Context, q querier, id string) (*models.Link, error) {
	l, err := scanLink(q.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: link %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get link: %w", err)
	}
	return l, nil
}

func listLinks(ctx context.Context, q querier, tail string, args ...any) ([]models.Link, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+linkColumns+` FROM links `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list links: %w", err)
	}
	defer rows.Close()

	out := []models.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanLink(row rowScanner) (*models.Link, error) {
	var (
		l        models.Link
		idx      sql.NullInt64
		props    string
		archived sql.NullTime
	)
	err := row.Scan(&l.ID, &l.SourceEntityID, &l.LinkTypeID, &l.TargetEntityID, &idx,
		&l.OwnedByID, &l.CreatedByID, &props, &l.CreatedAt, &l.UpdatedAt, &archived, &l.ArchivedByID)
	if err != nil {
		return nil, err
	}
	if idx.Valid {
		i := int(idx.Int64)
		l.Index = &i
	}
	if archived.Valid {
		at := archived.Time
		l.ArchivedAt = &at
	}
	if err := json.Unmarshal([]byte(props), &l.Properties); err != nil {
		return nil, fmt.Errorf("store: decode link properties of %s: %w", l.ID, err)
	}
	return &l, nil
}

func nonNilProps(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
