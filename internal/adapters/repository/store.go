// Package repository holds the in-memory candidate catalog and its ranked
// views.
package repository

import (
	"fmt"
	"strings"

	"github.com/okian/arena/internal/domain/model"
)

// SortKey selects a ranked view of the catalog.
type SortKey uint8

const (
	SortOverall SortKey = iota
	SortAgentic
	SortPlanning
	SortDebugging
	SortRefactoring
	SortExplaining
	SortCostCredits
	SortContextWindow
	SortSpeed

	sortKeyCount
)

var sortKeyNames = [sortKeyCount]string{
	"overall", "agentic", "planning", "debugging", "refactoring", "explaining",
	"costCredits", "contextWindow", "speed",
}

func (k SortKey) String() string {
	if k < sortKeyCount {
		return sortKeyNames[k]
	}
	return fmt.Sprintf("sortkey(%d)", uint8(k))
}

// ParseSortKey maps a category name or metadata field to a SortKey.
// Matching is case-insensitive.
func ParseSortKey(s string) (SortKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SortOverall, nil
	}
	for i, name := range sortKeyNames {
		if strings.EqualFold(name, s) {
			return SortKey(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSortKey, s)
}

// ForCategory returns the rating view for a category.
func ForCategory(c model.Category) SortKey {
	return SortKey(c)
}

// value extracts the ranking value of c under key.
func (k SortKey) value(c model.Candidate) float64 {
	switch k {
	case SortCostCredits:
		return c.CostCredits
	case SortContextWindow:
		return float64(c.ContextWindow)
	case SortSpeed:
		return c.Speed
	default:
		return float64(c.Ratings.Get(model.Category(k)))
	}
}

// Entry is a ranked catalog row.
type Entry struct {
	Rank      int             `json:"rank"`
	Value     float64         `json:"value"`
	Candidate model.Candidate `json:"candidate"`
}
