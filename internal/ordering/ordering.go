// Package ordering maintains dense, zero-based indexes inside a sibling group:
// the links that share one source entity and one link type.
//
// Everything here is a pure function over an explicit []Sibling value. The
// caller reads the group, asks for the Changes a structural edit implies,
// and hands them to the store as one atomic batch. Nothing in this package
// holds state between calls, so a stale snapshot can only come from the
// caller skipping the re-read.
//
// Invariant kept by every operation: the indexes of a group are exactly
// {0, 1, ..., n-1}.
package ordering

import (
	"fmt"
	"math"
	"sort"

	"github.com/starford/linkorder/internal/apperr"
)

// Sibling is one member of a sibling group.
type Sibling struct {
	LinkID string `json:"linkId"`
	Index  int    `json:"index"`
}

// Changes maps a link ID to the index it must be moved to.
type Changes map[string]int

// Allocate computes the index for a new link. A nil requested index appends
// at the end of the group. Otherwise every sibling at or above requested is
// pushed up by one, and those moves are returned in changes.
func Allocate(siblings []Sibling, requested *int) (int, Changes, error) {
	n := len(siblings)
	if requested == nil {
		return n, Changes{}, nil
	}
	k := *requested
	if k < 0 || k > n {
		return 0, nil, &OutOfRangeError{Index: k, Min: 0, Max: n}
	}
	shifted, err := Shift(siblings, k, 1)
	if err != nil {
		return 0, nil, err
	}
	return k, diff(siblings, shifted), nil
}

// Shift applies delta (+1 or -1) to every sibling whose index is >= from.
// The result is sorted by index.
func Shift(siblings []Sibling, from, delta int) ([]Sibling, error) {
	return ShiftRange(siblings, from, math.MaxInt, delta)
}

// ShiftRange is Shift restricted to siblings with from <= index <= through.
func ShiftRange(siblings []Sibling, from, through, delta int) ([]Sibling, error) {
	if delta != 1 && delta != -1 {
		return nil, fmt.Errorf("ordering: shift delta must be +1 or -1, got %d", delta)
	}
	out := make([]Sibling, len(siblings))
	for i, s := range siblings {
		if s.Index >= from && s.Index <= through {
			s.Index += delta
		}
		out[i] = s
	}
	sortByIndex(out)
	if err := checkUnique(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Remove computes the renumbering that follows removing linkID: every
// sibling above the removed index moves down by one. The removed link does
// not appear in changes.
func Remove(siblings []Sibling, linkID string) (int, Changes, error) {
	i, ok := indexOf(siblings, linkID)
	if !ok {
		return 0, nil, fmt.Errorf("ordering: link %s not in group: %w", linkID, apperr.ErrNotFound)
	}
	remaining := without(siblings, linkID)
	shifted, err := Shift(remaining, i+1, -1)
	if err != nil {
		return 0, nil, err
	}
	return i, diff(remaining, shifted), nil
}

// Move computes the renumbering for moving linkID to index to. The moved
// link is included in changes unless the move is a no-op.
func Move(siblings []Sibling, linkID string, to int) (int, Changes, error) {
	i, ok := indexOf(siblings, linkID)
	if !ok {
		return 0, nil, fmt.Errorf("ordering: link %s not in group: %w", linkID, apperr.ErrNotFound)
	}
	n := len(siblings)
	if to < 0 || to > n-1 {
		return i, nil, &OutOfRangeError{Index: to, Min: 0, Max: n - 1}
	}
	if to == i {
		return i, Changes{}, nil
	}

	others := without(siblings, linkID)
	var (
		shifted []Sibling
		err     error
	)
	if to > i {
		shifted, err = ShiftRange(others, i+1, to, -1)
	} else {
		shifted, err = ShiftRange(others, to, i-1, 1)
	}
	if err != nil {
		return i, nil, err
	}

	final := append(shifted, Sibling{LinkID: linkID, Index: to})
	sortByIndex(final)
	if err := checkUnique(final); err != nil {
		return i, nil, err
	}

	changes := diff(others, shifted)
	changes[linkID] = to
	return i, changes, nil
}

// Apply returns siblings with changes applied, sorted by index.
func Apply(siblings []Sibling, changes Changes) ([]Sibling, error) {
	seen := 0
	out := make([]Sibling, len(siblings))
	for i, s := range siblings {
		if idx, ok := changes[s.LinkID]; ok {
			s.Index = idx
			seen++
		}
		out[i] = s
	}
	if seen != len(changes) {
		return nil, fmt.Errorf("ordering: changes reference links outside the group: %w", apperr.ErrNotFound)
	}
	sortByIndex(out)
	if err := checkUnique(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckContiguous verifies the group's indexes are exactly 0..n-1.
func CheckContiguous(siblings []Sibling) error {
	sorted := make([]Sibling, len(siblings))
	copy(sorted, siblings)
	sortByIndex(sorted)
	if err := checkUnique(sorted); err != nil {
		return err
	}
	for i, s := range sorted {
		if s.Index != i {
			return &InvariantViolationError{Index: i, Reason: "gap in group"}
		}
	}
	return nil
}

func checkUnique(sorted []Sibling) error {
	for i, s := range sorted {
		if s.Index < 0 {
			return &InvariantViolationError{Index: s.Index, LinkIDs: []string{s.LinkID}, Reason: "negative index"}
		}
		if i > 0 && sorted[i-1].Index == s.Index {
			return &InvariantViolationError{
				Index:   s.Index,
				LinkIDs: []string{sorted[i-1].LinkID, s.LinkID},
				Reason:  "index collision",
			}
		}
	}
	return nil
}

func sortByIndex(s []Sibling) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Index < s[j].Index })
}

func indexOf(siblings []Sibling, linkID string) (int, bool) {
	for _, s := range siblings {
		if s.LinkID == linkID {
			return s.Index, true
		}
	}
	return 0, false
}

func without(siblings []Sibling, linkID string) []Sibling {
	out := make([]Sibling, 0, len(siblings))
	for _, s := range siblings {
		if s.LinkID != linkID {
			out = append(out, s)
		}
	}
	return out
}

// diff returns the siblings whose index differs between before and after.
func diff(before, after []Sibling) Changes {
	prev := make(map[string]int, len(before))
	for _, s := range before {
		prev[s.LinkID] = s.Index
	}
	out := Changes{}
	for _, s := range after {
		if old, ok := prev[s.LinkID]; ok && old != s.Index {
			out[s.LinkID] = s.Index
		}
	}
	return out
}
