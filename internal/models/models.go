package models

import "time"

// MediaType enumerates the catalog sections.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaAnime MediaType = "anime"
	MediaBook  MediaType = "book"
)

// Valid reports whether the media type is one the service knows about.
func (t MediaType) Valid() bool {
	switch t {
	case MediaMovie, MediaAnime, MediaBook:
		return true
	}
	return false
}

// User is the cached, read-mostly copy of another account.
type User struct {
	ID          int64
	Username    string
	DisplayName string
	Avatar      string
	About       string
	Age         *int
	Gender      string
}

// SessionUser is the identity of the account that owns the current session.
type SessionUser struct {
	ID       int64  `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar_url,omitempty"`
}

// Session groups the bearer credential with the identity it was issued to.
type Session struct {
	Token     string      `json:"token"`
	User      SessionUser `json:"user"`
	ExpiresAt time.Time   `json:"-"`
}

// MediaItem is a catalog entry. It is read-only from the client's perspective.
type MediaItem struct {
	ID          int64
	Title       string
	Type        MediaType
	Rating      float64
	ReleaseYear int
	CoverURL    string
	Author      string
	Description string
	Genres      []string
	RatingCount int
}

// CatalogEntry is a media item together with the viewer's list membership.
type CatalogEntry struct {
	Media      MediaItem
	Membership Membership
}

// CatalogPage is one page of catalog results.
type CatalogPage struct {
	Entries     []CatalogEntry
	TotalPages  int
	CurrentPage int
}

// CatalogQuery filters and pages the media catalog.
type CatalogQuery struct {
	Type   MediaType
	Query  string
	SortBy string
	Page   int
}

// FriendRequest is a pending invitation as listed in the request inbox.
type FriendRequest struct {
	User      User
	CreatedAt time.Time
}

// FriendRequests splits pending invitations by direction.
type FriendRequests struct {
	Incoming []FriendRequest
	Outgoing []FriendRequest
}

// UserSearchResult is a user search row along with the raw relationship status.
type UserSearchResult struct {
	User
	Status        string
	IsCurrentUser bool
}

// ListCounts counts a user's completed and planned items of one media type.
type ListCounts struct {
	Completed int
	Planned   int
}

// Stats aggregates list counts per media type.
type Stats struct {
	Anime  ListCounts
	Movies ListCounts
	Books  ListCounts
}

// Total returns the number of tracked items across all types.
func (s Stats) Total() int {
	return s.Anime.Completed + s.Anime.Planned +
		s.Movies.Completed + s.Movies.Planned +
		s.Books.Completed + s.Books.Planned
}

// Durations sums the runtime of completed items per media type.
type Durations struct {
	Anime  int
	Movies int
	Books  int
}

// Profile is a user page with aggregated statistics.
type Profile struct {
	User
	RegisteredAt  time.Time
	Stats         Stats
	Durations     Durations
	IsCurrentUser bool
	Status        string
}

// ProfileUpdate carries editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	About       *string
	Age         *int
	Gender      *string
}
