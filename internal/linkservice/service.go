// Package linkservice maintains sibling groups of links: it creates, moves
// and removes links while keeping the indexes of every ordered group dense.
//
// Each structural change runs as one read-modify-write under the group's
// lock and inside one store transaction, and returns a fresh snapshot of the
// affected group.
package linkservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/linkorder/internal/apperr"
	"github.com/starford/linkorder/internal/grouplock"
	"github.com/starford/linkorder/internal/metrics"
	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/ordering"
	"github.com/starford/linkorder/internal/store"
)

// Link event kinds passed to a Notifier.
const (
	EventLinkCreated = "link.created"
	EventLinkUpdated = "link.updated"
	EventLinkRemoved = "link.removed"
)

// Notifier is told about every committed link change.
type Notifier interface {
	LinkEvent(kind string, link *models.Link, group *models.Group)
}

// CreateLinkParams describes a new link. Index is only allowed for ordered
// groups; nil appends.
type CreateLinkParams struct {
	SourceEntityID string
	LinkTypeID     string
	TargetEntityID string
	Index          *int
	OwnedByID      string
	ActorID        string
	Properties     map[string]any
}

// Validate checks the required fields.
func (p CreateLinkParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.SourceEntityID, validation.Required),
		validation.Field(&p.LinkTypeID, validation.Required),
		validation.Field(&p.TargetEntityID, validation.Required),
	)
}

// Service coordinates the ordering rules with the link store.
type Service struct {
	repo     store.Repository
	locks    *grouplock.Locker
	rules    sync.RWMutex
	notifier Notifier
	now      func() time.Time
}

// NewService creates a link service. notifier may be nil.
func NewService(repo store.Repository, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		locks:    grouplock.New(),
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrderedLink adds a link from the source to the target entity. In an
// ordered group the link lands at p.Index (or at the end) and every sibling
// at or above that index moves up by one.
func (s *Service) CreateOrderedLink(ctx context.Context, p CreateLinkParams) (*models.Link, *models.Group, error) {
	link, group, _, err := s.createLink(ctx, p, false)
	return link, group, err
}

// EnsureOrderedLink is CreateOrderedLink unless the group already holds a
// live link to p.TargetEntityID. In that case the existing link is returned
// with created false and nothing is written. The lookup runs under the
// group's lock inside the same transaction as the insert.
func (s *Service) EnsureOrderedLink(ctx context.Context, p CreateLinkParams) (*models.Link, *models.Group, bool, error) {
	return s.createLink(ctx, p, true)
}

func (s *Service) createLink(ctx context.Context, p CreateLinkParams, skipExisting bool) (link *models.Link, group *models.Group, created bool, err error) {
	start := time.Now()
	shifted := 0
	defer func() { s.observe("create", start, shifted, err) }()

	if err := p.Validate(); err != nil {
		return nil, nil, false, fmt.Errorf("linkservice: %w: %v", apperr.ErrInvalid, err)
	}
	if _, err := s.repo.GetLinkType(ctx, p.LinkTypeID); err != nil {
		return nil, nil, false, err
	}

	// Held until commit so an entity type cannot flip this rule between
	// reading it and inserting the link.
	s.rules.RLock()
	defer s.rules.RUnlock()

	key := models.GroupKey{SourceEntityID: p.SourceEntityID, LinkTypeID: p.LinkTypeID}
	rule, err := s.rule(ctx, key)
	if err != nil {
		return nil, nil, false, err
	}
	if !rule.Ordered && p.Index != nil {
		return nil, nil, false, fmt.Errorf("linkservice: %s links are unordered, index not allowed: %w", p.LinkTypeID, apperr.ErrInvalid)
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	err = s.repo.InTx(ctx, func(tx store.GroupTx) error {
		if _, err := tx.GetEntity(ctx, p.TargetEntityID); err != nil {
			return err
		}
		if skipExisting {
			existing, err := tx.FindLiveLink(ctx, key, p.TargetEntityID)
			if err != nil {
				return err
			}
			if existing != nil {
				link = existing
				group, err = s.snapshot(ctx, tx, key, rule.Ordered, nil)
				return err
			}
		}
		if !rule.Array {
			n, err := tx.CountLive(ctx, key)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("linkservice: %s already has a %s link: %w", p.SourceEntityID, p.LinkTypeID, apperr.ErrConflict)
			}
		}

		now := s.now()
		l := &models.Link{
			ID:             uuid.NewString(),
			SourceEntityID: p.SourceEntityID,
			LinkTypeID:     p.LinkTypeID,
			TargetEntityID: p.TargetEntityID,
			OwnedByID:      p.OwnedByID,
			CreatedByID:    p.ActorID,
			Properties:     p.Properties,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		var want []ordering.Sibling
		if rule.Ordered {
			siblings, err := tx.ListSiblings(ctx, key)
			if err != nil {
				return err
			}
			idx, changes, err := ordering.Allocate(siblings, p.Index)
			if err != nil {
				return err
			}
			want, err = ordering.Apply(append(siblings, ordering.Sibling{LinkID: l.ID, Index: idx}), changes)
			if err != nil {
				return err
			}
			if err := tx.ApplyIndexDelta(ctx, key, changes); err != nil {
				return err
			}
			shifted = len(changes)
			l.Index = &idx
		}
		if err := tx.InsertLink(ctx, l); err != nil {
			return err
		}
		created = true

		group, err = s.snapshot(ctx, tx, key, rule.Ordered, want)
		if err != nil {
			return err
		}
		link, err = tx.GetLink(ctx, l.ID)
		return err
	})
	if err != nil {
		return nil, nil, false, err
	}
	if !created {
		slog.Debug("link exists", slog.String("link", link.ID), slog.String("group", key.String()))
		return link, group, false, nil
	}

	slog.Debug("link created",
		slog.String("link", link.ID),
		slog.String("group", key.String()),
		slog.Int("shifted", shifted),
	)
	s.notify(EventLinkCreated, link, group)
	return link, group, true, nil
}

// RemoveOrderedLink archives a live link. In an ordered group every sibling
// above it moves down by one. Removing an already removed link returns
// apperr.ErrNotFound.
func (s *Service) RemoveOrderedLink(ctx context.Context, linkID, actorID string) (group *models.Group, err error) {
	start := time.Now()
	shifted := 0
	defer func() { s.observe("remove", start, shifted, err) }()

	key, ordered, err := s.liveLinkGroup(ctx, linkID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	var removed *models.Link
	err = s.repo.InTx(ctx, func(tx store.GroupTx) error {
		l, err := tx.GetLink(ctx, linkID)
		if err != nil {
			return err
		}
		if l.Removed() {
			return fmt.Errorf("linkservice: link %s already removed: %w", linkID, apperr.ErrNotFound)
		}

		var (
			changes ordering.Changes
			want    []ordering.Sibling
		)
		if l.Index != nil {
			siblings, err := tx.ListSiblings(ctx, key)
			if err != nil {
				return err
			}
			if _, changes, err = ordering.Remove(siblings, linkID); err != nil {
				return err
			}
			if want, err = ordering.Apply(withoutSibling(siblings, linkID), changes); err != nil {
				return err
			}
		}
		if err := tx.ArchiveLink(ctx, linkID, actorID, s.now()); err != nil {
			return err
		}
		if err := tx.ApplyIndexDelta(ctx, key, changes); err != nil {
			return err
		}
		shifted = len(changes)

		if group, err = s.snapshot(ctx, tx, key, ordered, want); err != nil {
			return err
		}
		removed, err = tx.GetLink(ctx, linkID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("link removed",
		slog.String("link", linkID),
		slog.String("group", key.String()),
		slog.Int("shifted", shifted),
	)
	s.notify(EventLinkRemoved, removed, group)
	return group, nil
}

// UpdateOrderedLinkIndex moves a link to updatedIndex within its group,
// shifting the siblings in between by one. updatedIndex must lie in
// [0, n-1]. Moving a link onto its own index changes nothing.
func (s *Service) UpdateOrderedLinkIndex(ctx context.Context, linkID string, updatedIndex int, actorID string) (*models.Link, *models.Group, error) {
	return s.UpdateLink(ctx, linkID, LinkUpdate{Index: &updatedIndex, ActorID: actorID})
}

// UpdateLinkProperties replaces the properties of a live link. Indexes are
// not touched.
func (s *Service) UpdateLinkProperties(ctx context.Context, linkID string, props map[string]any, actorID string) (*models.Link, *models.Group, error) {
	if props == nil {
		props = map[string]any{}
	}
	return s.UpdateLink(ctx, linkID, LinkUpdate{Properties: props, ActorID: actorID})
}

// LinkUpdate lists the changes UpdateLink applies. A nil field is left
// alone.
type LinkUpdate struct {
	Index      *int
	Properties map[string]any
	ActorID    string
}

// UpdateLink moves a link and replaces its properties in one transaction:
// either both changes commit or neither does.
func (s *Service) UpdateLink(ctx context.Context, linkID string, u LinkUpdate) (link *models.Link, group *models.Group, err error) {
	start := time.Now()
	shifted := 0
	if u.Index != nil {
		defer func() { s.observe("move", start, shifted, err) }()
	}

	key, ordered, err := s.liveLinkGroup(ctx, linkID)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	err = s.repo.InTx(ctx, func(tx store.GroupTx) error {
		l, err := tx.GetLink(ctx, linkID)
		if err != nil {
			return err
		}
		if l.Removed() {
			return fmt.Errorf("linkservice: link %s is removed: %w", linkID, apperr.ErrNotFound)
		}

		var want []ordering.Sibling
		if u.Index != nil {
			if l.Index == nil {
				return fmt.Errorf("linkservice: link %s is not in an ordered group: %w", linkID, apperr.ErrInvalid)
			}
			siblings, err := tx.ListSiblings(ctx, key)
			if err != nil {
				return err
			}
			_, changes, err := ordering.Move(siblings, linkID, *u.Index)
			if err != nil {
				return err
			}
			if want, err = ordering.Apply(siblings, changes); err != nil {
				return err
			}
			if err := tx.ApplyIndexDelta(ctx, key, changes); err != nil {
				return err
			}
			shifted = len(changes)
		}
		if u.Properties != nil {
			if err := tx.SetLinkProperties(ctx, linkID, u.Properties, s.now()); err != nil {
				return err
			}
		}

		if group, err = s.snapshot(ctx, tx, key, ordered, want); err != nil {
			return err
		}
		link, err = tx.GetLink(ctx, linkID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	attrs := []any{slog.String("link", linkID), slog.String("actor", u.ActorID)}
	if u.Index != nil {
		attrs = append(attrs, slog.Int("index", *u.Index), slog.Int("shifted", shifted))
	}
	slog.Debug("link updated", attrs...)
	if shifted > 0 || u.Properties != nil {
		s.notify(EventLinkUpdated, link, group)
	}
	return link, group, nil
}

// GetLink returns a link, live or removed.
func (s *Service) GetLink(ctx context.Context, linkID string) (*models.Link, error) {
	return s.repo.GetLink(ctx, linkID)
}

// GetGroup returns the current snapshot of a sibling group.
func (s *Service) GetGroup(ctx context.Context, key models.GroupKey) (*models.Group, error) {
	if _, err := s.repo.GetLinkType(ctx, key.LinkTypeID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetEntity(ctx, key.SourceEntityID); err != nil {
		return nil, err
	}
	links, err := s.repo.ListGroup(ctx, key)
	if err != nil {
		return nil, err
	}
	return &models.Group{
		SourceEntityID: key.SourceEntityID,
		LinkTypeID:     key.LinkTypeID,
		Ordered:        s.ordered(ctx, key, links),
		Links:          links,
	}, nil
}

// ListOutgoingLinks returns the live links leaving an entity, optionally
// restricted to one link type.
func (s *Service) ListOutgoingLinks(ctx context.Context, entityID, linkTypeID string) ([]models.Link, error) {
	if _, err := s.repo.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	return s.repo.ListOutgoingLinks(ctx, entityID, linkTypeID)
}

// ListIncomingLinks returns the live links pointing at an entity.
func (s *Service) ListIncomingLinks(ctx context.Context, entityID string) ([]models.Link, error) {
	if _, err := s.repo.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	return s.repo.ListIncomingLinks(ctx, entityID)
}

// rule returns the outgoing link rule the source entity's type declares for
// the group's link type.
func (s *Service) rule(ctx context.Context, key models.GroupKey) (models.OutgoingLinkRule, error) {
	src, err := s.repo.GetEntity(ctx, key.SourceEntityID)
	if err != nil {
		return models.OutgoingLinkRule{}, err
	}
	et, err := s.repo.GetEntityType(ctx, src.EntityTypeID)
	if err != nil {
		return models.OutgoingLinkRule{}, err
	}
	r, ok := et.Rule(key.LinkTypeID)
	if !ok {
		return models.OutgoingLinkRule{}, fmt.Errorf("linkservice: entity type %s declares no %s links: %w",
			et.ID, key.LinkTypeID, apperr.ErrInvalid)
	}
	return r, nil
}

// ordered reports whether the group is ordered. When the source type no
// longer declares the link type, a group still holding indexes counts as
// ordered.
func (s *Service) ordered(ctx context.Context, key models.GroupKey, links []models.Link) bool {
	if r, err := s.rule(ctx, key); err == nil {
		return r.Ordered
	}
	for _, l := range links {
		if l.Index != nil {
			return true
		}
	}
	return false
}

// liveLinkGroup resolves the group of a live link before its lock is taken.
func (s *Service) liveLinkGroup(ctx context.Context, linkID string) (models.GroupKey, bool, error) {
	l, err := s.repo.GetLink(ctx, linkID)
	if err != nil {
		return models.GroupKey{}, false, err
	}
	if l.Removed() {
		return models.GroupKey{}, false, fmt.Errorf("linkservice: link %s is removed: %w", linkID, apperr.ErrNotFound)
	}
	ordered := l.Index != nil
	if r, err := s.rule(ctx, l.Group()); err == nil {
		ordered = r.Ordered
	}
	return l.Group(), ordered, nil
}

// snapshot re-reads the group inside tx. An ordered group must hold only
// indexed links numbered exactly 0..n-1 and, when want is not nil, in the
// order want gives. Anything else fails the transaction.
func (s *Service) snapshot(ctx context.Context, tx store.GroupTx, key models.GroupKey, ordered bool, want []ordering.Sibling) (*models.Group, error) {
	links, err := tx.ListGroup(ctx, key)
	if err != nil {
		return nil, err
	}
	if ordered {
		if err := verifyOrdered(links, want); err != nil {
			return nil, fmt.Errorf("linkservice: group %s: %w", key, err)
		}
	}
	return &models.Group{
		SourceEntityID: key.SourceEntityID,
		LinkTypeID:     key.LinkTypeID,
		Ordered:        ordered,
		Links:          links,
	}, nil
}

func verifyOrdered(links []models.Link, want []ordering.Sibling) error {
	got := siblingsOf(links)
	if len(got) != len(links) {
		return fmt.Errorf("%d live links without an index: %w", len(links)-len(got), apperr.ErrInvariantViolation)
	}
	if err := ordering.CheckContiguous(got); err != nil {
		return err
	}
	if want == nil {
		return nil
	}
	if len(want) != len(got) {
		return fmt.Errorf("stored %d links, expected %d: %w", len(got), len(want), apperr.ErrInvariantViolation)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("link %s stored at index %d, expected %s: %w",
				got[i].LinkID, got[i].Index, want[i].LinkID, apperr.ErrInvariantViolation)
		}
	}
	return nil
}

func (s *Service) observe(op string, start time.Time, shifted int, err error) {
	metrics.ObserveOperation(op, start, shifted, err)
	if errors.Is(err, apperr.ErrInvariantViolation) {
		metrics.InvariantViolations.Inc()
		slog.Error("ordered group invariant violated", slog.String("op", op), slog.String("error", err.Error()))
	}
}

func (s *Service) notify(kind string, link *models.Link, group *models.Group) {
	if s.notifier != nil {
		s.notifier.LinkEvent(kind, link, group)
	}
}

func withoutSibling(siblings []ordering.Sibling, linkID string) []ordering.Sibling {
	out := make([]ordering.Sibling, 0, len(siblings))
	for _, sb := range siblings {
		if sb.LinkID != linkID {
			out = append(out, sb)
		}
	}
	return out
}

// siblingsOf returns the indexed links of a group as siblings.
func siblingsOf(links []models.Link) []ordering.Sibling {
	out := make([]ordering.Sibling, 0, len(links))
	for _, l := range links {
		if l.Index != nil {
			out = append(out, ordering.Sibling{LinkID: l.ID, Index: *l.Index})
		}
	}
	return out
}
