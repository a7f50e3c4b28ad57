package api

import (
	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/seed"
	"github.com/starford/linkorder/internal/store"
)

// CreateLinkTypeRequest is the request body for creating a link type.
type CreateLinkTypeRequest struct {
	ID          string `json:"id" example:"has-song" validate:"required"`
	Title       string `json:"title" example:"Has song"`
	PluralTitle string `json:"pluralTitle" example:"Has songs"`
	Description string `json:"description"`
}

// CreateEntityTypeRequest is the request body for creating an entity type.
type CreateEntityTypeRequest struct {
	ID            string                    `json:"id" example:"playlist" validate:"required"`
	Title         string                    `json:"title" example:"Playlist"`
	OutgoingLinks []models.OutgoingLinkRule `json:"outgoingLinks"`
}

// CreateEntityRequest is the request body for creating an entity.
type CreateEntityRequest struct {
	EntityTypeID string         `json:"entityTypeId" example:"playlist" validate:"required"`
	OwnedByID    string         `json:"ownedById"`
	Properties   map[string]any `json:"properties"`
}

// UpdateEntityRequest replaces an entity's properties.
type UpdateEntityRequest struct {
	Properties map[string]any `json:"properties" validate:"required"`
}

// CreateLinkRequest is the request body for creating a link. Index is only
// accepted for ordered groups; omit it to append.
type CreateLinkRequest struct {
	SourceEntityID string         `json:"sourceEntityId" validate:"required"`
	LinkTypeID     string         `json:"linkTypeId" example:"has-song" validate:"required"`
	TargetEntityID string         `json:"targetEntityId" validate:"required"`
	Index          *int           `json:"index,omitempty" example:"0"`
	OwnedByID      string         `json:"ownedById"`
	Properties     map[string]any `json:"properties"`
}

// UpdateLinkRequest moves a link and/or replaces its properties.
type UpdateLinkRequest struct {
	UpdatedIndex *int           `json:"updatedIndex,omitempty" example:"2"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// LinkResponse carries a link and the fresh snapshot of its group.
type LinkResponse struct {
	Link  *models.Link  `json:"link" validate:"required"`
	Group *models.Group `json:"group" validate:"required"`
}

// RemoveLinkResponse carries the group left after a removal.
type RemoveLinkResponse struct {
	Group *models.Group `json:"group" validate:"required"`
}

// LinkListResponse wraps a list of links.
type LinkListResponse struct {
	Links []models.Link `json:"links" validate:"required"`
}

// EntityListResponse wraps paginated entity listings.
type EntityListResponse struct {
	Entities []models.Entity `json:"entities" validate:"required"`
	Total    int             `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []store.SearchResult `json:"results" validate:"required"`
}

// SeedFile describes one file in the seed directory.
type SeedFile struct {
	Path     string `json:"path" example:"music.yaml" validate:"required"`
	Checksum string `json:"checksum" validate:"required"`
}

// SeedUploadResponse is returned after a seed file was stored and imported.
type SeedUploadResponse struct {
	Filename string      `json:"filename" example:"music.yaml" validate:"required"`
	Size     int64       `json:"size" example:"512" validate:"required"`
	Result   seed.Result `json:"result" validate:"required"`
}
