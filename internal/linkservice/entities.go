package linkservice

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/linkorder/internal/apperr"
	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/store"
)

// CreateLinkType registers a new link type.
func (s *Service) CreateLinkType(ctx context.Context, lt models.LinkType) (*models.LinkType, error) {
	if err := validation.ValidateStruct(&lt,
		validation.Field(&lt.ID, validation.Required, validation.Length(1, 128)),
	); err != nil {
		return nil, fmt.Errorf("linkservice: %w: %v", apperr.ErrInvalid, err)
	}
	lt.CreatedAt = s.now()
	if err := s.repo.InsertLinkType(ctx, &lt); err != nil {
		return nil, err
	}
	return &lt, nil
}

// GetLinkType returns a link type.
func (s *Service) GetLinkType(ctx context.Context, id string) (*models.LinkType, error) {
	return s.repo.GetLinkType(ctx, id)
}

// ListLinkTypes returns every link type.
func (s *Service) ListLinkTypes(ctx context.Context) ([]models.LinkType, error) {
	out, err := s.repo.ListLinkTypes(ctx)
	if out == nil {
		out = []models.LinkType{}
	}
	return out, err
}

// CreateEntityType registers a new entity type. Every outgoing link rule
// must name an existing link type, and ordered rules must allow arrays.
func (s *Service) CreateEntityType(ctx context.Context, et models.EntityType) (*models.EntityType, error) {
	if err := s.validateEntityType(ctx, &et); err != nil {
		return nil, err
	}
	et.CreatedAt = s.now()
	if err := s.repo.InsertEntityType(ctx, &et); err != nil {
		return nil, err
	}
	return &et, nil
}

// UpsertEntityType creates or replaces an entity type. A rule whose Array or
// Ordered flag changes, or which is dropped, while live links exist under it
// is rejected with apperr.ErrConflict.
func (s *Service) UpsertEntityType(ctx context.Context, et models.EntityType) (*models.EntityType, error) {
	if err := s.validateEntityType(ctx, &et); err != nil {
		return nil, err
	}

	s.rules.Lock()
	defer s.rules.Unlock()

	if err := s.checkRuleChanges(ctx, &et); err != nil {
		return nil, err
	}
	et.CreatedAt = s.now()
	if err := s.repo.UpsertEntityType(ctx, &et); err != nil {
		return nil, err
	}
	return &et, nil
}

func (s *Service) checkRuleChanges(ctx context.Context, et *models.EntityType) error {
	prev, err := s.repo.GetEntityType(ctx, et.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, old := range prev.OutgoingLinks {
		r, ok := et.Rule(old.LinkTypeID)
		if ok && r.Array == old.Array && r.Ordered == old.Ordered {
			continue
		}
		n, err := s.repo.CountLiveLinksByRule(ctx, et.ID, old.LinkTypeID)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if !ok {
			return fmt.Errorf("linkservice: entity type %s: cannot drop %s rule with %d live links: %w",
				et.ID, old.LinkTypeID, n, apperr.ErrConflict)
		}
		return fmt.Errorf("linkservice: entity type %s: cannot change %s rule (array %t->%t, ordered %t->%t) with %d live links: %w",
			et.ID, old.LinkTypeID, old.Array, r.Array, old.Ordered, r.Ordered, n, apperr.ErrConflict)
	}
	return nil
}

// UpsertLinkType creates or replaces a link type.
func (s *Service) UpsertLinkType(ctx context.Context, lt models.LinkType) (*models.LinkType, error) {
	if err := validation.Validate(lt.ID, validation.Required); err != nil {
		return nil, fmt.Errorf("linkservice: %w: link type id: %v", apperr.ErrInvalid, err)
	}
	lt.CreatedAt = s.now()
	if err := s.repo.UpsertLinkType(ctx, &lt); err != nil {
		return nil, err
	}
	return &lt, nil
}

func (s *Service) validateEntityType(ctx context.Context, et *models.EntityType) error {
	if err := validation.ValidateStruct(et,
		validation.Field(&et.ID, validation.Required, validation.Length(1, 128)),
	); err != nil {
		return fmt.Errorf("linkservice: %w: %v", apperr.ErrInvalid, err)
	}
	seen := make(map[string]bool, len(et.OutgoingLinks))
	for _, r := range et.OutgoingLinks {
		if r.LinkTypeID == "" {
			return fmt.Errorf("linkservice: entity type %s: rule without link type: %w", et.ID, apperr.ErrInvalid)
		}
		if seen[r.LinkTypeID] {
			return fmt.Errorf("linkservice: entity type %s: duplicate rule for %s: %w", et.ID, r.LinkTypeID, apperr.ErrInvalid)
		}
		seen[r.LinkTypeID] = true
		if r.Ordered && !r.Array {
			return fmt.Errorf("linkservice: entity type %s: ordered %s links must be an array: %w", et.ID, r.LinkTypeID, apperr.ErrInvalid)
		}
		if _, err := s.repo.GetLinkType(ctx, r.LinkTypeID); err != nil {
			return err
		}
	}
	return nil
}

// GetEntityType returns an entity type.
func (s *Service) GetEntityType(ctx context.Context, id string) (*models.EntityType, error) {
	return s.repo.GetEntityType(ctx, id)
}

// ListEntityTypes returns every entity type.
func (s *Service) ListEntityTypes(ctx context.Context) ([]models.EntityType, error) {
	out, err := s.repo.ListEntityTypes(ctx)
	if out == nil {
		out = []models.EntityType{}
	}
	return out, err
}

// CreateEntity stores a new entity of an existing type.
func (s *Service) CreateEntity(ctx context.Context, entityTypeID, ownedByID string, props map[string]any) (*models.Entity, error) {
	return s.createEntity(ctx, "", entityTypeID, ownedByID, props)
}

func (s *Service) createEntity(ctx context.Context, key, entityTypeID, ownedByID string, props map[string]any) (*models.Entity, error) {
	if err := validation.Validate(entityTypeID, validation.Required); err != nil {
		return nil, fmt.Errorf("linkservice: %w: entity type: %v", apperr.ErrInvalid, err)
	}
	if _, err := s.repo.GetEntityType(ctx, entityTypeID); err != nil {
		return nil, err
	}
	if props == nil {
		props = map[string]any{}
	}
	now := s.now()
	e := &models.Entity{
		ID:           uuid.NewString(),
		Key:          key,
		EntityTypeID: entityTypeID,
		OwnedByID:    ownedByID,
		Properties:   props,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertEntity(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetEntity returns an entity.
func (s *Service) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	return s.repo.GetEntity(ctx, id)
}

// ListEntities returns a page of entities, optionally of one type.
func (s *Service) ListEntities(ctx context.Context, limit, offset int, entityTypeID string) ([]models.Entity, int, error) {
	out, total, err := s.repo.ListEntities(ctx, limit, offset, entityTypeID)
	if out == nil {
		out = []models.Entity{}
	}
	return out, total, err
}

// UpdateEntity replaces an entity's properties. Links are not affected.
func (s *Service) UpdateEntity(ctx context.Context, id string, props map[string]any) (*models.Entity, error) {
	e, err := s.repo.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if props == nil {
		props = map[string]any{}
	}
	e.Properties = props
	e.UpdatedAt = s.now()
	if err := s.repo.UpdateEntityProperties(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpsertEntityByKey finds the entity with the given seed key, creating it
// when missing and replacing its properties otherwise. created reports
// which of the two happened.
func (s *Service) UpsertEntityByKey(ctx context.Context, key, entityTypeID string, props map[string]any) (e *models.Entity, created bool, err error) {
	if err := validation.Validate(key, validation.Required); err != nil {
		return nil, false, fmt.Errorf("linkservice: %w: entity key: %v", apperr.ErrInvalid, err)
	}
	existing, err := s.repo.GetEntityByKey(ctx, key)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		e, err := s.createEntity(ctx, key, entityTypeID, "", props)
		return e, err == nil, err
	case err != nil:
		return nil, false, err
	}
	if existing.EntityTypeID != entityTypeID {
		return nil, false, fmt.Errorf("linkservice: entity %s is a %s, not a %s: %w",
			key, existing.EntityTypeID, entityTypeID, apperr.ErrConflict)
	}
	e, err = s.UpdateEntity(ctx, existing.ID, props)
	return e, false, err
}

// EntityByKey returns the entity with the given seed key.
func (s *Service) EntityByKey(ctx context.Context, key string) (*models.Entity, error) {
	return s.repo.GetEntityByKey(ctx, key)
}

// SearchEntities runs a text search over entity titles and properties.
func (s *Service) SearchEntities(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if query == "" {
		return []store.SearchResult{}, nil
	}
	out, err := s.repo.SearchEntities(ctx, query, limit)
	if out == nil {
		out = []store.SearchResult{}
	}
	return out, err
}

// Ping checks the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
