package apitest

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/f1v3nt5/poketroid/internal/models"
)

// PageSize is the number of catalog items per page.
const PageSize = 20

func mediaJSON(item models.MediaItem) map[string]any {
	return map[string]any{
		"id":           item.ID,
		"title":        item.Title,
		"type":         item.Type,
		"cover_url":    nullable(item.CoverURL),
		"rating":       item.Rating,
		"release_year": item.ReleaseYear,
	}
}

func withMembership(out map[string]any, m models.Membership) map[string]any {
	out["is_planned"] = m.Planned
	out["is_completed"] = m.Completed
	out["is_favorite"] = m.Favorite
	return out
}

func primaryList(m models.Membership) any {
	switch {
	case m.Completed:
		return string(models.ListCompleted)
	case m.Planned:
		return string(models.ListPlanned)
	case m.Favorite:
		return string(models.ListFavorite)
	default:
		return nil
	}
}

func (b *Backend) catalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, signedIn := viewerFrom(r)

	q := r.URL.Query()
	mediaType := models.MediaType(q.Get("type"))
	search := strings.ToLower(q.Get("query"))
	sortBy := q.Get("sort_by")
	if sortBy == "" {
		sortBy = "popularity"
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	b.mu.Lock()
	var items []models.MediaItem
	for _, rec := range b.media {
		if mediaType.Valid() && rec.item.Type != mediaType {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(rec.item.Title), search) {
			continue
		}
		items = append(items, rec.item)
	}
	sort.Slice(items, func(i, j int) bool {
		if sortBy == "newest" && items[i].ReleaseYear != items[j].ReleaseYear {
			return items[i].ReleaseYear > items[j].ReleaseYear
		}
		if sortBy == "popularity" && items[i].RatingCount != items[j].RatingCount {
			return items[i].RatingCount > items[j].RatingCount
		}
		return items[i].ID < items[j].ID
	})

	totalPages := (len(items) + PageSize - 1) / PageSize
	start := (page - 1) * PageSize
	if start > len(items) {
		start = len(items)
	}
	end := start + PageSize
	if end > len(items) {
		end = len(items)
	}

	out := make([]map[string]any, 0, end-start)
	for _, item := range items[start:end] {
		entry := mediaJSON(item)
		entry["user_list"] = nil
		if signedIn {
			m := b.membershipLocked(viewer, item.ID)
			entry["user_list"] = primaryList(m)
			withMembership(entry, m)
		}
		out = append(out, entry)
	}
	b.mu.Unlock()

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"items":        out,
		"total_pages":  totalPages,
		"current_page": page,
	})
}

func (b *Backend) mediaDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	rec, found := b.media[id]
	b.mu.Unlock()
	if !found {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "Media not found"})
		return
	}

	out := mediaJSON(rec.item)
	out["author"] = nullable(rec.item.Author)
	out["description"] = nullable(rec.item.Description)
	out["genres"] = rec.item.Genres
	out["rating_count"] = rec.item.RatingCount
	respondJSON(ctx, w, http.StatusOK, out)
}

func (b *Backend) mediaStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, _ := viewerFrom(r)
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	_, found := b.media[id]
	m := b.membershipLocked(viewer, id)
	b.mu.Unlock()
	if !found {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "Media not found"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{
		"planned":   m.Planned,
		"completed": m.Completed,
		"favorite":  m.Favorite,
	})
}

type listRequest struct {
	MediaID   *int64 `json:"media_id"`
	ListType  string `json:"list_type"`
	Operation string `json:"operation"`
}

func (b *Backend) updateList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, _ := viewerFrom(r)

	var req listRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MediaID == nil || req.ListType == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
		return
	}
	list, err := models.ParseListType(req.ListType)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Invalid list type"})
		return
	}

	b.mu.Lock()
	if _, found := b.media[*req.MediaID]; !found {
		b.mu.Unlock()
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "Media not found"})
		return
	}

	current := b.membershipLocked(viewer, *req.MediaID)
	var next models.Membership
	switch req.Operation {
	case "add", "":
		if current.Has(list) {
			b.mu.Unlock()
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "Already in this list"})
			return
		}
		next = current.With(list, true)
	case "remove":
		next = current.With(list, false)
	case "toggle":
		next = current.Toggle(list)
	default:
		b.mu.Unlock()
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Invalid operation"})
		return
	}
	b.setMembershipLocked(viewer, *req.MediaID, next)
	echo := b.echo
	b.mu.Unlock()

	if !echo {
		respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "List updated"})
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"message":      "List updated",
		"is_planned":   next.Planned,
		"is_completed": next.Completed,
		"is_favorite":  next.Favorite,
	})
}

func (b *Backend) favorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, _ := viewerFrom(r)

	type favorite struct {
		item    models.MediaItem
		addedAt string
		order   int64
	}

	b.mu.Lock()
	var favs []favorite
	for mediaID, entry := range b.lists[viewer] {
		if !entry.membership.Favorite {
			continue
		}
		rec, ok := b.media[mediaID]
		if !ok {
			continue
		}
		favs = append(favs, favorite{item: rec.item, addedAt: entry.addedAt.Format(isoLayout), order: entry.addedAt.UnixNano()})
	}
	b.mu.Unlock()

	sort.Slice(favs, func(i, j int) bool {
		if favs[i].order != favs[j].order {
			return favs[i].order > favs[j].order
		}
		return favs[i].item.ID < favs[j].item.ID
	})

	items := make([]map[string]any, 0, len(favs))
	for _, f := range favs {
		items = append(items, map[string]any{"media": mediaJSON(f.item), "added_at": f.addedAt})
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"items": items})
}
