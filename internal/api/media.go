package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/f1v3nt5/poketroid/internal/models"
)

// Sort orders accepted by the catalog endpoint.
const (
	SortPopularity = "popularity"
	SortNewest     = "newest"
)

// Catalog fetches one page of the media catalog. The viewer's list membership
// is included when a session exists.
func (c *Client) Catalog(ctx context.Context, q models.CatalogQuery) (models.CatalogPage, error) {
	params := url.Values{}
	if q.Type != "" {
		if !q.Type.Valid() {
			return models.CatalogPage{}, fmt.Errorf("unknown media type %q", q.Type)
		}
		params.Set("type", string(q.Type))
	}
	if query := strings.TrimSpace(q.Query); query != "" {
		params.Set("query", query)
	}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = SortPopularity
	}
	params.Set("sort_by", sortBy)
	page := q.Page
	if page < 1 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))

	var out catalogWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/media",
		query:  params,
		auth:   authOptional,
	}, &out)
	if err != nil {
		return models.CatalogPage{}, err
	}

	result := models.CatalogPage{
		Entries:     make([]models.CatalogEntry, 0, len(out.Items)),
		TotalPages:  out.TotalPages,
		CurrentPage: out.CurrentPage,
	}
	if result.CurrentPage == 0 {
		result.CurrentPage = page
	}
	for _, item := range out.Items {
		result.Entries = append(result.Entries, item.entry())
	}
	return result, nil
}

// Media fetches the details of one media item.
func (c *Client) Media(ctx context.Context, mediaID int64) (models.MediaItem, error) {
	var out mediaWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/media/" + strconv.FormatInt(mediaID, 10),
	}, &out)
	if err != nil {
		return models.MediaItem{}, err
	}
	return out.model(), nil
}

// MediaStatus fetches the viewer's list membership for one media item.
func (c *Client) MediaStatus(ctx context.Context, mediaID int64) (models.Membership, error) {
	var out membershipWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/media/" + strconv.FormatInt(mediaID, 10) + "/status",
		auth:   authRequired,
	}, &out)
	if err != nil {
		return models.Membership{}, err
	}
	return out.model(), nil
}

// UpdateList adds the media item to or removes it from a list and returns the
// server's resulting membership. When the service does not echo the snapshot
// it is read back from the status endpoint.
func (c *Client) UpdateList(ctx context.Context, mediaID int64, list models.ListType, add bool) (models.Membership, error) {
	if _, err := models.ParseListType(string(list)); err != nil {
		return models.Membership{}, err
	}

	operation := "remove"
	if add {
		operation = "add"
	}

	var out listResultWire
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/media/list",
		body:   listUpdateWire{MediaID: mediaID, ListType: string(list), Operation: operation},
		auth:   authRequired,
	}, &out)
	if err != nil {
		return models.Membership{}, err
	}

	if snapshot, ok := out.snapshot(); ok {
		return snapshot, nil
	}
	return c.MediaStatus(ctx, mediaID)
}

// Favorites lists the viewer's favorite media.
func (c *Client) Favorites(ctx context.Context) ([]models.CatalogEntry, error) {
	var out favoritesWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/media/favorites",
		auth:   authRequired,
	}, &out)
	if err != nil {
		return nil, err
	}

	entries := make([]models.CatalogEntry, 0, len(out.Items))
	for _, item := range out.Items {
		entry := item.Media.entry()
		entry.Membership = entry.Membership.With(models.ListFavorite, true)
		entries = append(entries, entry)
	}
	return entries, nil
}
