package apitest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/f1v3nt5/poketroid/internal/models"
)

const isoLayout = "2006-01-02T15:04:05.999999"

func userSummary(u models.User) map[string]any {
	return map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"avatar":   nullable(u.Avatar),
	}
}

// profileStatusLocked encodes the relationship the way the profile endpoint
// does: "none", "accepted", "pending incoming" or "pending outcoming".
func (b *Backend) profileStatusLocked(viewer, other int64) string {
	f := b.friendshipLocked(viewer, other)
	switch {
	case f == nil:
		return "none"
	case f.status != friendshipPending:
		return f.status
	case f.to == viewer:
		return "pending incoming"
	default:
		return "pending outcoming"
	}
}

func (b *Backend) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, signedIn := viewerFrom(r)

	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.byUsername[r.PathValue("username")]
	if !ok {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	acc := b.accounts[id]

	q := r.URL.Query()
	if mediaType, list := q.Get("media_type"), q.Get("list_type"); mediaType != "" && list != "" {
		b.userListLocked(w, r, id, viewer, signedIn, models.MediaType(mediaType), models.ListType(list))
		return
	}

	var stats models.Stats
	var durations models.Durations
	for mediaID, entry := range b.lists[id] {
		rec, ok := b.media[mediaID]
		if !ok {
			continue
		}
		counts, minutes := &stats.Movies, &durations.Movies
		switch rec.item.Type {
		case models.MediaAnime:
			counts, minutes = &stats.Anime, &durations.Anime
		case models.MediaBook:
			counts, minutes = &stats.Books, &durations.Books
		}
		if entry.membership.Completed {
			counts.Completed++
			*minutes += rec.duration
		}
		if entry.membership.Planned {
			counts.Planned++
		}
	}

	status := "none"
	if signedIn {
		status = b.profileStatusLocked(viewer, id)
	}

	displayName := acc.user.DisplayName
	if displayName == "" {
		displayName = acc.user.Username
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"id":            acc.user.ID,
		"username":      acc.user.Username,
		"display_name":  displayName,
		"avatar_url":    nullable(acc.user.Avatar),
		"gender":        nullable(acc.user.Gender),
		"age":           acc.user.Age,
		"about":         nullable(acc.user.About),
		"registered_at": acc.createdAt.Format(isoLayout),
		"stats": map[string]any{
			"anime":  map[string]int{"completed": stats.Anime.Completed, "planned": stats.Anime.Planned},
			"movies": map[string]int{"completed": stats.Movies.Completed, "planned": stats.Movies.Planned},
			"books":  map[string]int{"completed": stats.Books.Completed, "planned": stats.Books.Planned},
		},
		"durations": map[string]any{
			"anime":  map[string]int{"completed": durations.Anime},
			"movies": map[string]int{"completed": durations.Movies},
			"books":  map[string]int{"completed": durations.Books},
		},
		"is_current_user": signedIn && viewer == id,
		"status":          status,
	})
}

func (b *Backend) userListLocked(w http.ResponseWriter, r *http.Request, owner, viewer int64, signedIn bool, mediaType models.MediaType, list models.ListType) {
	type row struct {
		item    models.MediaItem
		addedAt int64
	}

	var rows []row
	for mediaID, entry := range b.lists[owner] {
		rec, ok := b.media[mediaID]
		if !ok || rec.item.Type != mediaType || !entry.membership.Has(list) {
			continue
		}
		rows = append(rows, row{item: rec.item, addedAt: entry.addedAt.UnixNano()})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].addedAt != rows[j].addedAt {
			return rows[i].addedAt > rows[j].addedAt
		}
		return rows[i].item.ID < rows[j].item.ID
	})

	out := make([]map[string]any, 0, len(rows))
	for _, rw := range rows {
		var m models.Membership
		if signedIn {
			m = b.membershipLocked(viewer, rw.item.ID)
		}
		out = append(out, withMembership(map[string]any{
			"id":        rw.item.ID,
			"title":     rw.item.Title,
			"type":      rw.item.Type,
			"cover_url": nullable(rw.item.CoverURL),
			"rating":    rw.item.Rating,
			"year":      rw.item.ReleaseYear,
		}, m))
	}
	respondJSON(r.Context(), w, http.StatusOK, out)
}

func (b *Backend) userFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.byUsername[r.PathValue("username")]
	if !ok {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}

	ids := b.friendIDsLocked(id)
	if len(ids) > 5 {
		ids = ids[:5]
	}
	friends := make([]map[string]any, 0, len(ids))
	for _, fid := range ids {
		friends = append(friends, userSummary(b.accounts[fid].user))
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"friends": friends})
}

func (b *Backend) searchUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, _ := viewerFrom(r)
	query := strings.ToLower(r.URL.Query().Get("q"))

	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]int64, 0, len(b.accounts))
	for id, acc := range b.accounts {
		if strings.Contains(strings.ToLower(acc.user.Username), query) ||
			strings.Contains(strings.ToLower(acc.user.DisplayName), query) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > 10 {
		ids = ids[:10]
	}

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		u := b.accounts[id].user
		row := userSummary(u)
		row["displayName"] = nullable(u.DisplayName)
		row["status"] = b.profileStatusLocked(viewer, id)
		row["isCurrentUser"] = id == viewer
		out = append(out, row)
	}
	respondJSON(ctx, w, http.StatusOK, out)
}

func (b *Backend) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, _ := viewerFrom(r)

	var req map[string]json.RawMessage
	if !decodeBody(w, r, &req) {
		return
	}

	errs := map[string][]string{}
	var update models.ProfileUpdate
	if raw, ok := req["display_name"]; ok {
		var v string
		if json.Unmarshal(raw, &v) != nil || len(strings.TrimSpace(v)) == 0 || len(v) > 50 {
			errs["display_name"] = []string{"Length must be between 1 and 50."}
		} else {
			v = strings.TrimSpace(v)
			update.DisplayName = &v
		}
	}
	if raw, ok := req["gender"]; ok {
		var v string
		if json.Unmarshal(raw, &v) != nil || (v != "male" && v != "female" && v != "") {
			errs["gender"] = []string{"Must be one of: male, female."}
		} else {
			update.Gender = &v
		}
	}
	if raw, ok := req["age"]; ok {
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			var s string
			if json.Unmarshal(raw, &s) != nil {
				errs["age"] = []string{"Not a valid integer."}
			} else if parsed, err := strconv.Atoi(s); err == nil {
				v = parsed
			} else {
				errs["age"] = []string{"Not a valid integer."}
			}
		}
		if _, bad := errs["age"]; !bad {
			if v < 5 || v > 120 {
				errs["age"] = []string{"Age must be between 5 and 120"}
			} else {
				update.Age = &v
			}
		}
	}
	if raw, ok := req["about"]; ok {
		var v string
		if json.Unmarshal(raw, &v) != nil || len(v) > 500 {
			errs["about"] = []string{"Longer than maximum length 500."}
		} else {
			v = strings.TrimSpace(v)
			update.About = &v
		}
	}
	if len(errs) > 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}

	b.mu.Lock()
	acc := b.accounts[viewer]
	if update.DisplayName != nil {
		acc.user.DisplayName = *update.DisplayName
	}
	if update.Gender != nil {
		acc.user.Gender = *update.Gender
	}
	if update.Age != nil {
		age := *update.Age
		acc.user.Age = &age
	}
	if update.About != nil {
		acc.user.About = *update.About
	}
	b.mu.Unlock()

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}
