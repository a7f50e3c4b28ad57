// Package models defines the domain types for linkorder.
package models

import "time"

// LinkType names a kind of directed relationship, e.g. "has-song".
type LinkType struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	PluralTitle string    `json:"pluralTitle,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// OutgoingLinkRule declares that entities of a type may carry links of
// LinkTypeID. Array allows more than one live link in the group; Ordered
// gives the group dense indexes.
type OutgoingLinkRule struct {
	LinkTypeID string `json:"linkTypeId" yaml:"linkType"`
	Array      bool   `json:"array" yaml:"array"`
	Ordered    bool   `json:"ordered" yaml:"ordered"`
}

// EntityType describes a class of entities and the links they may own.
type EntityType struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	OutgoingLinks []OutgoingLinkRule `json:"outgoingLinks"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Rule returns the outgoing link rule for linkTypeID.
func (t *EntityType) Rule(linkTypeID string) (OutgoingLinkRule, bool) {
	for _, r := range t.OutgoingLinks {
		if r.LinkTypeID == linkTypeID {
			return r, true
		}
	}
	return OutgoingLinkRule{}, false
}

// Entity is a node in the knowledge graph.
type Entity struct {
	ID           string         `json:"id"`
	Key          string         `json:"key,omitempty"`
	EntityTypeID string         `json:"entityTypeId"`
	OwnedByID    string         `json:"ownedById,omitempty"`
	Properties   map[string]any `json:"properties"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Title returns the "title" property, if any.
func (e *Entity) Title() string {
	if s, ok := e.Properties["title"].(string); ok {
		return s
	}
	return ""
}
