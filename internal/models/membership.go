package models

import "fmt"

// ListType names one of the personal lists a media item can belong to.
type ListType string

const (
	ListPlanned   ListType = "planned"
	ListCompleted ListType = "completed"
	ListFavorite  ListType = "favorite"
)

// ParseListType validates a list name.
func ParseListType(value string) (ListType, error) {
	switch ListType(value) {
	case ListPlanned, ListCompleted, ListFavorite:
		return ListType(value), nil
	}
	return "", fmt.Errorf("unknown list type %q", value)
}

// Membership holds the viewer's list flags for a single media item.
// Planned and Completed are never both true.
type Membership struct {
	Planned   bool
	Completed bool
	Favorite  bool
}

// Has reports whether the item is in the given list.
func (m Membership) Has(list ListType) bool {
	switch list {
	case ListPlanned:
		return m.Planned
	case ListCompleted:
		return m.Completed
	case ListFavorite:
		return m.Favorite
	}
	return false
}

// With returns the membership with the list set to value. Setting planned or
// completed to true clears the other one; favorite never touches them.
func (m Membership) With(list ListType, value bool) Membership {
	switch list {
	case ListPlanned:
		m.Planned = value
		if value {
			m.Completed = false
		}
	case ListCompleted:
		m.Completed = value
		if value {
			m.Planned = false
		}
	case ListFavorite:
		m.Favorite = value
	}
	return m
}

// Toggle flips the given list flag.
func (m Membership) Toggle(list ListType) Membership {
	return m.With(list, !m.Has(list))
}

// Normalize repairs a membership that violates the planned/completed
// exclusion, preferring completed.
func (m Membership) Normalize() Membership {
	if m.Planned && m.Completed {
		m.Planned = false
	}
	return m
}
