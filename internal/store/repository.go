package store

import (
	"context"
	"time"

	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/ordering"
)

// GroupTx is the transactional view of the store used for structural link
// changes. Everything done through one GroupTx commits or rolls back as a unit.
type GroupTx interface {
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	GetLink(ctx context.Context, id string) (*models.Link, error)
	ListSiblings(ctx context.Context, key models.GroupKey) ([]ordering.Sibling, error)
	ApplyIndexDelta(ctx context.Context, key models.GroupKey, changes ordering.Changes) error
	InsertLink(ctx context.Context, l *models.Link) error
	ArchiveLink(ctx context.Context, id, actorID string, at time.Time) error
	SetLinkProperties(ctx context.Context, id string, props map[string]any, at time.Time) error
	ListGroup(ctx context.Context, key models.GroupKey) ([]models.Link, error)
	CountLive(ctx context.Context, key models.GroupKey) (int, error)
	FindLiveLink(ctx context.Context, key models.GroupKey, targetEntityID string) (*models.Link, error)
}

// Repository defines the persistence operations the service layer depends on.
type Repository interface {
	InTx(ctx context.Context, fn func(tx GroupTx) error) error

	InsertLinkType(ctx context.Context, lt *models.LinkType) error
	UpsertLinkType(ctx context.Context, lt *models.LinkType) error
	GetLinkType(ctx context.Context, id string) (*models.LinkType, error)
	ListLinkTypes(ctx context.Context) ([]models.LinkType, error)

	InsertEntityType(ctx context.Context, et *models.EntityType) error
	UpsertEntityType(ctx context.Context, et *models.EntityType) error
	GetEntityType(ctx context.Context, id string) (*models.EntityType, error)
	ListEntityTypes(ctx context.Context) ([]models.EntityType, error)

	InsertEntity(ctx context.Context, e *models.Entity) error
	UpdateEntityProperties(ctx context.Context, e *models.Entity) error
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	GetEntityByKey(ctx context.Context, key string) (*models.Entity, error)
	ListEntities(ctx context.Context, limit, offset int, entityTypeID string) ([]models.Entity, int, error)
	SearchEntities(ctx context.Context, query string, limit int) ([]SearchResult, error)

	GetLink(ctx context.Context, id string) (*models.Link, error)
	ListGroup(ctx context.Context, key models.GroupKey) ([]models.Link, error)
	ListOutgoingLinks(ctx context.Context, sourceEntityID, linkTypeID string) ([]models.Link, error)
	ListIncomingLinks(ctx context.Context, targetEntityID string) ([]models.Link, error)
	IndexedGroups(ctx context.Context) ([]models.GroupKey, error)
	CountLiveLinksByRule(ctx context.Context, entityTypeID, linkTypeID string) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Verify the concrete types satisfy the interfaces at compile time.
var (
	_ Repository = (*Store)(nil)
	_ GroupTx    = (*Tx)(nil)
)
