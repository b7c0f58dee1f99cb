package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/f1v3nt5/poketroid/internal/models"
)

// Profile fetches a user page with statistics and, for a signed-in viewer,
// the raw relationship status.
func (c *Client) Profile(ctx context.Context, username string) (models.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.Profile{}, errors.New("username must be provided")
	}

	var out profileWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/users/" + url.PathEscape(username),
		auth:   authOptional,
	}, &out)
	if err != nil {
		return models.Profile{}, err
	}
	return out.model(), nil
}

// UserMedia lists a user's media of one type in one list, with the viewer's
// own membership for each item.
func (c *Client) UserMedia(ctx context.Context, username string, mediaType models.MediaType, list models.ListType) ([]models.CatalogEntry, error) {
	if !mediaType.Valid() {
		return nil, fmt.Errorf("unknown media type %q", mediaType)
	}
	if _, err := models.ParseListType(string(list)); err != nil {
		return nil, err
	}

	var out []mediaWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/users/" + url.PathEscape(username),
		query:  url.Values{"media_type": {string(mediaType)}, "list_type": {string(list)}},
		auth:   authOptional,
	}, &out)
	if err != nil {
		return nil, err
	}

	entries := make([]models.CatalogEntry, 0, len(out))
	for _, item := range out {
		entries = append(entries, item.entry())
	}
	return entries, nil
}

// UserFriends lists a few of a user's friends.
func (c *Client) UserFriends(ctx context.Context, username string) ([]models.User, error) {
	var out friendsWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/users/" + url.PathEscape(username) + "/friends",
	}, &out)
	if err != nil {
		return nil, err
	}
	return usersFromWire(out.Friends), nil
}

// SearchUsers finds users by handle or display name.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.UserSearchResult, error) {
	var out []searchWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/users/search",
		query:  url.Values{"q": {strings.TrimSpace(query)}},
		auth:   authRequired,
	}, &out)
	if err != nil {
		return nil, err
	}

	results := make([]models.UserSearchResult, 0, len(out))
	for _, row := range out {
		results = append(results, models.UserSearchResult{
			User:          row.userWire.model(),
			Status:        row.Status,
			IsCurrentUser: row.IsCurrentUser,
		})
	}
	return results, nil
}

// UpdateProfile edits the signed-in user's profile.
func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/api/users/me",
		body: profileUpdateWire{
			DisplayName: update.DisplayName,
			About:       update.About,
			Age:         update.Age,
			Gender:      update.Gender,
		},
		auth: authRequired,
	}, nil)
}
