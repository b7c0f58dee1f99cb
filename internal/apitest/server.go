package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/f1v3nt5/poketroid/internal/logging"
)

type userKey struct{}

// Start serves the backend on a loopback listener for the duration of the test.
func Start(t testing.TB) (*Backend, *httptest.Server) {
	t.Helper()
	backend := NewBackend()
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return backend, srv
}

// Handler returns the HTTP routes of the service.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()

	b.handle(mux, "POST /api/auth/register", false, b.register)
	b.handle(mux, "POST /api/auth/login", false, b.login)

	b.handle(mux, "GET /api/media", false, b.catalog)
	b.handle(mux, "GET /api/media/favorites", true, b.favorites)
	b.handle(mux, "GET /api/media/{id}", false, b.mediaDetail)
	b.handle(mux, "GET /api/media/{id}/status", true, b.mediaStatus)
	b.handle(mux, "POST /api/media/list", true, b.updateList)

	b.handle(mux, "GET /api/users/search", true, b.searchUsers)
	b.handle(mux, "PUT /api/users/me", true, b.updateProfile)
	b.handle(mux, "GET /api/users/{username}", false, b.profile)
	b.handle(mux, "GET /api/users/{username}/friends", false, b.userFriends)

	b.handle(mux, "GET /api/friends", true, b.friends)
	b.handle(mux, "GET /api/friends/requests", true, b.requests)
	b.handle(mux, "GET /api/friends/status/{id}", true, b.friendStatus)
	b.handle(mux, "POST /api/friends/{id}/request", true, b.sendRequest)
	b.handle(mux, "POST /api/friends/requests/{id}/accept", true, b.acceptRequest)
	b.handle(mux, "POST /api/friends/requests/{id}/reject", true, b.rejectRequest)
	b.handle(mux, "DELETE /api/friends/requests/{id}", true, b.cancelRequest)
	b.handle(mux, "DELETE /api/friends/{id}", true, b.removeFriend)

	return mux
}

// handle registers route with bookkeeping, failure injection and
// authentication. Optional-auth routes see the viewer when a valid token is
// presented and proceed anonymously otherwise.
func (b *Backend) handle(mux *http.ServeMux, route string, authRequired bool, fn http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		b.mu.Lock()
		b.calls[route]++
		b.headers[route] = r.Header.Clone()
		hook := b.hooks[route]
		fail, failing := b.failures[route]
		b.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		if failing {
			respondJSON(ctx, w, fail.status, map[string]string{"error": fail.message})
			return
		}

		userID, ok := b.authenticate(r)
		if !ok && authRequired {
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "Authorization header is missing or invalid"})
			return
		}
		if ok {
			ctx = context.WithValue(ctx, userKey{}, userID)
		}
		fn(w, r.WithContext(ctx))
	})
}

func viewerFrom(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(userKey{}).(int64)
	return id, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondJSON(r.Context(), w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
		return false
	}
	return true
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	if status >= http.StatusBadRequest {
		logging.FromContext(ctx).Debug("request returned error", "status", status, "response", payload)
	}
}
