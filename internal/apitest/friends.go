package apitest

import (
	"net/http"
)

func (b *Backend) friends(w http.ResponseWriter, r *http.Request) {
	viewer, _ := viewerFrom(r)

	b.mu.Lock()
	defer b.mu.Unlock()

	ids := b.friendIDsLocked(viewer)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, userSummary(b.accounts[id].user))
	}
	respondJSON(r.Context(), w, http.StatusOK, out)
}

func (b *Backend) requests(w http.ResponseWriter, r *http.Request) {
	viewer, _ := viewerFrom(r)

	b.mu.Lock()
	defer b.mu.Unlock()

	incoming := make([]map[string]any, 0)
	outgoing := make([]map[string]any, 0)
	for _, f := range b.friendships {
		if f.status != friendshipPending {
			continue
		}
		switch viewer {
		case f.to:
			incoming = append(incoming, b.requestJSONLocked(f.from, f))
		case f.from:
			outgoing = append(outgoing, b.requestJSONLocked(f.to, f))
		}
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]any{"incoming": incoming, "outgoing": outgoing})
}

func (b *Backend) requestJSONLocked(otherID int64, f *friendship) map[string]any {
	other := b.accounts[otherID].user
	return map[string]any{
		"user": map[string]any{
			"id":          other.ID,
			"username":    other.Username,
			"avatar":      nullable(other.Avatar),
			"displayName": nullable(other.DisplayName),
		},
		"created_at": f.createdAt.Format(isoLayout),
	}
}

func (b *Backend) sendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, _ := viewerFrom(r)
	target, ok := pathID(w, r)
	if !ok {
		return
	}
	if target == viewer {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Cannot add yourself"})
		return
	}

	b.mu.Lock()
	if _, exists := b.accounts[target]; !exists {
		b.mu.Unlock()
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	if b.friendshipLocked(viewer, target) != nil {
		b.mu.Unlock()
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "Request already exists"})
		return
	}
	b.friendships = append(b.friendships, &friendship{from: viewer, to: target, status: friendshipPending, createdAt: b.now()})
	b.mu.Unlock()

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"message": "Friend request sent"})
}

func (b *Backend) acceptRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, _ := viewerFrom(r)
	from, ok := pathID(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	var pending *friendship
	for _, f := range b.friendships {
		if f.from == from && f.to == viewer && f.status == friendshipPending {
			pending = f
			break
		}
	}
	if pending == nil {
		b.mu.Unlock()
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	pending.status = friendshipAccepted
	b.mu.Unlock()

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Request accepted"})
}

func (b *Backend) rejectRequest(w http.ResponseWriter, r *http.Request) {
	viewer, _ := viewerFrom(r)
	from, ok := pathID(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	b.deleteFriendshipsLocked(func(f *friendship) bool {
		return f.from == from && f.to == viewer && f.status == friendshipPending
	})
	b.mu.Unlock()

	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "Request rejected"})
}

func (b *Backend) cancelRequest(w http.ResponseWriter, r *http.Request) {
	viewer, _ := viewerFrom(r)
	to, ok := pathID(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	b.deleteFriendshipsLocked(func(f *friendship) bool {
		return f.from == viewer && f.to == to && f.status == friendshipPending
	})
	b.mu.Unlock()

	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "Request canceled"})
}

func (b *Backend) removeFriend(w http.ResponseWriter, r *http.Request) {
	viewer, _ := viewerFrom(r)
	other, ok := pathID(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	b.deleteFriendshipsLocked(func(f *friendship) bool {
		return (f.from == viewer && f.to == other) || (f.from == other && f.to == viewer)
	})
	b.mu.Unlock()

	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "Friendship removed"})
}

func (b *Backend) friendStatus(w http.ResponseWriter, r *http.Request) {
	viewer, _ := viewerFrom(r)
	other, ok := pathID(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	f := b.friendshipLocked(viewer, other)
	b.mu.Unlock()

	status := "not_friends"
	switch {
	case f == nil:
	case f.status == friendshipAccepted:
		status = "friends"
	case f.from == viewer:
		status = "request_sent"
	default:
		status = "request_received"
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": status})
}
