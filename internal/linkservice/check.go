package linkservice

import (
	"context"

	"github.com/starford/linkorder/internal/metrics"
	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/ordering"
)

// GroupReport is the audit result for one ordered group.
type GroupReport struct {
	SourceEntityID string `json:"sourceEntityId"`
	LinkTypeID     string `json:"linkTypeId"`
	Size           int    `json:"size"`
	Problem        string `json:"problem,omitempty"`
}

// OK reports whether the group passed the audit.
func (r GroupReport) OK() bool { return r.Problem == "" }

// CheckGroups audits every group holding indexed links and reports the ones
// whose indexes are not exactly 0..n-1, together with the healthy ones. It
// never repairs anything.
func (s *Service) CheckGroups(ctx context.Context) ([]GroupReport, error) {
	keys, err := s.repo.IndexedGroups(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]GroupReport, 0, len(keys))
	for _, key := range keys {
		links, err := s.repo.ListGroup(ctx, key)
		if err != nil {
			return nil, err
		}
		reports = append(reports, checkGroup(key, links))
	}
	for _, r := range reports {
		if !r.OK() {
			metrics.InvariantViolations.Inc()
		}
	}
	return reports, nil
}

func checkGroup(key models.GroupKey, links []models.Link) GroupReport {
	r := GroupReport{SourceEntityID: key.SourceEntityID, LinkTypeID: key.LinkTypeID}
	siblings := siblingsOf(links)
	r.Size = len(siblings)
	switch {
	case len(siblings) != len(links):
		r.Problem = "group mixes indexed and unindexed live links"
	default:
		if err := ordering.CheckContiguous(siblings); err != nil {
			r.Problem = err.Error()
		}
	}
	return r
}
