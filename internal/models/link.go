package models

import "time"

// Link is a directed, typed edge from a source entity to a target entity.
// Index is set only for live links in an ordered group.
type Link struct {
	ID             string         `json:"id"`
	SourceEntityID string         `json:"sourceEntityId"`
	LinkTypeID     string         `json:"linkTypeId"`
	TargetEntityID string         `json:"targetEntityId"`
	Index          *int           `json:"index,omitempty"`
	OwnedByID      string         `json:"ownedById,omitempty"`
	CreatedByID    string         `json:"createdById,omitempty"`
	Properties     map[string]any `json:"properties,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ArchivedAt     *time.Time     `json:"archivedAt,omitempty"`
	ArchivedByID   string         `json:"archivedById,omitempty"`
}

// Removed reports whether the link has been archived.
func (l *Link) Removed() bool { return l.ArchivedAt != nil }

// Group returns the key of the sibling group the link belongs to.
func (l *Link) Group() GroupKey {
	return GroupKey{SourceEntityID: l.SourceEntityID, LinkTypeID: l.LinkTypeID}
}

// GroupKey identifies a sibling group: every link sharing a source entity
// and a link type.
type GroupKey struct {
	SourceEntityID string `json:"sourceEntityId"`
	LinkTypeID     string `json:"linkTypeId"`
}

// String returns the lock key for the group.
func (k GroupKey) String() string {
	return "group|" + k.SourceEntityID + "|" + k.LinkTypeID
}

// Group is a snapshot of a sibling group. Links of an ordered group are
// sorted by index.
type Group struct {
	SourceEntityID string `json:"sourceEntityId"`
	LinkTypeID     string `json:"linkTypeId"`
	Ordered        bool   `json:"ordered"`
	Links          []Link `json:"links"`
}

// Key returns the group's key.
func (g *Group) Key() GroupKey {
	return GroupKey{SourceEntityID: g.SourceEntityID, LinkTypeID: g.LinkTypeID}
}

// Targets returns the target entity IDs in group order.
func (g *Group) Targets() []string {
	out := make([]string, len(g.Links))
	for i, l := range g.Links {
		out[i] = l.TargetEntityID
	}
	return out
}
