package api

import (
	"strings"
	"time"

	"github.com/f1v3nt5/poketroid/internal/models"
)

// The service is not consistent about field names across endpoints, so the
// wire types accept every spelling it emits and normalize on conversion.

type userWire struct {
	ID            int64   `json:"id"`
	Username      string  `json:"username"`
	DisplayName   string  `json:"display_name"`
	DisplayNameJS string  `json:"displayName"`
	Avatar        *string `json:"avatar"`
	AvatarURL     *string `json:"avatar_url"`
	About         *string `json:"about"`
	Age           *int    `json:"age"`
	Gender        *string `json:"gender"`
}

func (w userWire) model() models.User {
	display := w.DisplayName
	if display == "" {
		display = w.DisplayNameJS
	}
	return models.User{
		ID:          w.ID,
		Username:    w.Username,
		DisplayName: display,
		Avatar:      firstString(w.AvatarURL, w.Avatar),
		About:       deref(w.About),
		Age:         w.Age,
		Gender:      deref(w.Gender),
	}
}

type loginWire struct {
	Token     string  `json:"token"`
	UserID    int64   `json:"user_id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

type registerWire struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

type mediaWire struct {
	ID                  int64           `json:"id"`
	Title               string          `json:"title"`
	Type                string          `json:"type"`
	CoverURL            *string         `json:"cover_url"`
	Rating              *float64        `json:"rating"`
	ReleaseYear         *int            `json:"release_year"`
	Year                *int            `json:"year"`
	Author              *string         `json:"author"`
	Description         *string         `json:"description"`
	Genres              []string        `json:"genres"`
	RatingCount         *int            `json:"rating_count"`
	ExternalRatingCount *int            `json:"external_rating_count"`
	UserList            *string         `json:"user_list"`
	IsPlanned           *bool           `json:"is_planned"`
	IsCompleted         *bool           `json:"is_completed"`
	IsFavorite          *bool           `json:"is_favorite"`
	Status              *membershipWire `json:"status"`
}

func (w mediaWire) model() models.MediaItem {
	year := w.ReleaseYear
	if year == nil {
		year = w.Year
	}
	count := w.RatingCount
	if count == nil {
		count = w.ExternalRatingCount
	}

	item := models.MediaItem{
		ID:          w.ID,
		Title:       w.Title,
		Type:        models.MediaType(strings.ToLower(w.Type)),
		CoverURL:    deref(w.CoverURL),
		Author:      deref(w.Author),
		Description: deref(w.Description),
		Genres:      w.Genres,
	}
	if w.Rating != nil {
		item.Rating = *w.Rating
	}
	if year != nil {
		item.ReleaseYear = *year
	}
	if count != nil {
		item.RatingCount = *count
	}
	return item
}

// membership prefers explicit flags and falls back to the single list name
// the catalog endpoint reports.
func (w mediaWire) membership() models.Membership {
	if w.Status != nil {
		return w.Status.model()
	}
	if w.IsPlanned != nil || w.IsCompleted != nil || w.IsFavorite != nil {
		return models.Membership{
			Planned:   derefBool(w.IsPlanned),
			Completed: derefBool(w.IsCompleted),
			Favorite:  derefBool(w.IsFavorite),
		}.Normalize()
	}
	if w.UserList != nil {
		if list, err := models.ParseListType(*w.UserList); err == nil {
			return models.Membership{}.With(list, true)
		}
	}
	return models.Membership{}
}

func (w mediaWire) entry() models.CatalogEntry {
	return models.CatalogEntry{Media: w.model(), Membership: w.membership()}
}

type catalogWire struct {
	Items       []mediaWire `json:"items"`
	TotalPages  int         `json:"total_pages"`
	CurrentPage int         `json:"current_page"`
}

type membershipWire struct {
	Planned   bool `json:"planned"`
	Completed bool `json:"completed"`
	Favorite  bool `json:"favorite"`
}

func (w membershipWire) model() models.Membership {
	return models.Membership{Planned: w.Planned, Completed: w.Completed, Favorite: w.Favorite}.Normalize()
}

type listUpdateWire struct {
	MediaID   int64  `json:"media_id"`
	ListType  string `json:"list_type"`
	Operation string `json:"operation"`
}

type listResultWire struct {
	Message     string `json:"message"`
	IsPlanned   *bool  `json:"is_planned"`
	IsCompleted *bool  `json:"is_completed"`
	IsFavorite  *bool  `json:"is_favorite"`
}

func (w listResultWire) snapshot() (models.Membership, bool) {
	if w.IsPlanned == nil && w.IsCompleted == nil && w.IsFavorite == nil {
		return models.Membership{}, false
	}
	return models.Membership{
		Planned:   derefBool(w.IsPlanned),
		Completed: derefBool(w.IsCompleted),
		Favorite:  derefBool(w.IsFavorite),
	}.Normalize(), true
}

type favoritesWire struct {
	Items []struct {
		Media   mediaWire `json:"media"`
		AddedAt string    `json:"added_at"`
	} `json:"items"`
}

type requestWire struct {
	User      userWire `json:"user"`
	CreatedAt string   `json:"created_at"`
}

func (w requestWire) model() models.FriendRequest {
	return models.FriendRequest{User: w.User.model(), CreatedAt: parseTime(w.CreatedAt)}
}

type requestsWire struct {
	Incoming []requestWire `json:"incoming"`
	Outgoing []requestWire `json:"outgoing"`
}

type searchWire struct {
	userWire
	Status        string `json:"status"`
	IsCurrentUser bool   `json:"isCurrentUser"`
}

type countsWire struct {
	Completed int `json:"completed"`
	Planned   int `json:"planned"`
}

type statsWire struct {
	Anime  countsWire `json:"anime"`
	Movies countsWire `json:"movies"`
	Books  countsWire `json:"books"`
}

type durationsWire struct {
	Anime  countsWire `json:"anime"`
	Movies countsWire `json:"movies"`
	Books  countsWire `json:"books"`
}

type profileWire struct {
	userWire
	RegisteredAt  string        `json:"registered_at"`
	Stats         statsWire     `json:"stats"`
	Durations     durationsWire `json:"durations"`
	IsCurrentUser bool          `json:"is_current_user"`
	Status        string        `json:"status"`
}

func (w profileWire) model() models.Profile {
	return models.Profile{
		User:         w.userWire.model(),
		RegisteredAt: parseTime(w.RegisteredAt),
		Stats: models.Stats{
			Anime:  models.ListCounts(w.Stats.Anime),
			Movies: models.ListCounts(w.Stats.Movies),
			Books:  models.ListCounts(w.Stats.Books),
		},
		Durations: models.Durations{
			Anime:  w.Durations.Anime.Completed,
			Movies: w.Durations.Movies.Completed,
			Books:  w.Durations.Books.Completed,
		},
		IsCurrentUser: w.IsCurrentUser,
		Status:        w.Status,
	}
}

type friendsWire struct {
	Friends []userWire `json:"friends"`
}

type statusWire struct {
	Status string `json:"status"`
}

type profileUpdateWire struct {
	DisplayName *string `json:"display_name,omitempty"`
	About       *string `json:"about,omitempty"`
	Age         *int    `json:"age,omitempty"`
	Gender      *string `json:"gender,omitempty"`
}

// parseTime accepts RFC 3339 and the naive ISO timestamps the service emits.
func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	return b != nil && *b
}

func firstString(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func usersFromWire(in []userWire) []models.User {
	out := make([]models.User, 0, len(in))
	for _, u := range in {
		out = append(out, u.model())
	}
	return out
}
