package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/f1v3nt5/poketroid/internal/apitest"
	"github.com/f1v3nt5/poketroid/internal/models"
	"github.com/f1v3nt5/poketroid/internal/outcome"
	"github.com/f1v3nt5/poketroid/internal/session"
)

type fixture struct {
	backend *apitest.Backend
	client  *Client
	guard   *session.Guard
	store   *session.MemoryStore
	viewer  models.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	backend, srv := apitest.Start(t)
	store := session.NewMemoryStore()
	guard := session.NewGuard(store)

	client, err := New(srv.URL, guard, Options{Timeout: 5 * time.Second})
	require.NoError(t, err)

	viewer := backend.AddUser("ash", "pikachu123")
	return fixture{backend: backend, client: client, guard: guard, store: store, viewer: viewer}
}

func (f fixture) signIn(t *testing.T) {
	t.Helper()
	result, err := f.client.Login(context.Background(), "ash", "pikachu123")
	require.NoError(t, err)
	_, err = f.guard.Begin(context.Background(), result.Token, result.User)
	require.NoError(t, err)
}

func TestNewRejectsInvalidURL(t *testing.T) {
	_, err := New("ftp://example.com", nil, Options{})
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	result, err := f.client.Login(context.Background(), " ash ", "pikachu123")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.Equal(t, models.SessionUser{ID: f.viewer.ID, Username: "ash"}, result.User)

	expiry, err := session.ExpiryOf(result.Token)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(apitest.TokenTTL), expiry, time.Minute)

	_, err = f.client.Login(context.Background(), "ash", "wrong-password")
	require.Equal(t, outcome.AuthRequired, outcome.Classify(err))
	require.Equal(t, "Invalid credentials", apiMessage(err))

	_, err = f.client.Login(context.Background(), "", "")
	require.Error(t, err)
	require.Equal(t, 2, f.backend.Calls("POST /api/auth/login"), "empty credentials are rejected locally")
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	id, err := f.client.Register(context.Background(), "misty", "starmie99")
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = f.client.Register(context.Background(), "misty", "starmie99")
	require.Equal(t, outcome.Conflict, outcome.Classify(err))
	require.Equal(t, "Username already exists", outcome.Message(err))

	_, err = f.client.Register(context.Background(), "brock", "short")
	require.Equal(t, outcome.Validation, outcome.Classify(err))
}

func TestAuthenticatedCallWithoutSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Favorites(context.Background())
	require.ErrorIs(t, err, outcome.ErrAuthRequired)
	require.Zero(t, f.backend.Calls("GET /api/media/favorites"))
}

func TestExpiredSessionNeverReachesNetwork(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.Save(context.Background(), models.Session{
		Token: f.backend.Token(f.viewer.ID, -time.Minute),
		User:  models.SessionUser{ID: f.viewer.ID, Username: "ash"},
	}))

	_, err := f.client.UpdateList(context.Background(), 1, models.ListFavorite, true)
	require.ErrorIs(t, err, outcome.ErrAuthRequired)
	require.ErrorIs(t, err, outcome.ErrSessionExpired)
	require.Zero(t, f.backend.Calls("POST /api/media/list"))
	require.False(t, f.store.Has(), "expired session must be cleared")
}

func TestCatalog(t *testing.T) {
	f := newFixture(t)
	movie := f.backend.AddMedia(models.MediaItem{Title: "Mewtwo Strikes Back", Type: models.MediaMovie, ReleaseYear: 1998, RatingCount: 10}, 75)
	f.backend.AddMedia(models.MediaItem{Title: "Pokemon Origins", Type: models.MediaAnime, ReleaseYear: 2013}, 90)
	f.backend.SetMembership(f.viewer.ID, movie.ID, models.Membership{Completed: true, Favorite: true})

	page, err := f.client.Catalog(context.Background(), models.CatalogQuery{Type: models.MediaMovie})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, models.Membership{}, page.Entries[0].Membership, "anonymous catalog carries no membership")

	f.signIn(t)
	page, err = f.client.Catalog(context.Background(), models.CatalogQuery{Type: models.MediaMovie, Query: "mewtwo"})
	require.NoError(t, err)
	require.Equal(t, 1, page.CurrentPage)
	require.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Entries, 1)
	require.Equal(t, "Mewtwo Strikes Back", page.Entries[0].Media.Title)
	require.Equal(t, 1998, page.Entries[0].Media.ReleaseYear)
	require.Equal(t, models.Membership{Completed: true, Favorite: true}, page.Entries[0].Membership)

	_, err = f.client.Catalog(context.Background(), models.CatalogQuery{Type: "game"})
	require.Error(t, err)
}

func TestCatalogPaging(t *testing.T) {
	f := newFixture(t)
	f.backend.AddFakeMedia(apitest.PageSize+5, models.MediaBook)

	page, err := f.client.Catalog(context.Background(), models.CatalogQuery{Type: models.MediaBook, Page: 2, SortBy: SortNewest})
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, 2, page.CurrentPage)
	require.Len(t, page.Entries, 5)
}

func TestMediaDetailAndStatus(t *testing.T) {
	f := newFixture(t)
	book := f.backend.AddMedia(models.MediaItem{
		Title:       "Pokemon Adventures",
		Type:        models.MediaBook,
		Author:      "Hidenori Kusaka",
		Description: "Manga",
		Genres:      []string{"adventure"},
		RatingCount: 12,
	}, 0)

	item, err := f.client.Media(context.Background(), book.ID)
	require.NoError(t, err)
	require.Equal(t, "Hidenori Kusaka", item.Author)
	require.Equal(t, []string{"adventure"}, item.Genres)
	require.Equal(t, 12, item.RatingCount)

	_, err = f.client.Media(context.Background(), 999)
	require.ErrorIs(t, err, outcome.ErrNotFound)

	f.signIn(t)
	f.backend.SetMembership(f.viewer.ID, book.ID, models.Membership{Planned: true})
	status, err := f.client.MediaStatus(context.Background(), book.ID)
	require.NoError(t, err)
	require.Equal(t, models.Membership{Planned: true}, status)
}

func TestUpdateList(t *testing.T) {
	f := newFixture(t)
	anime := f.backend.AddMedia(models.MediaItem{Title: "Indigo League", Type: models.MediaAnime}, 0)
	f.signIn(t)

	snapshot, err := f.client.UpdateList(context.Background(), anime.ID, models.ListPlanned, true)
	require.NoError(t, err)
	require.Equal(t, models.Membership{Planned: true}, snapshot)

	snapshot, err = f.client.UpdateList(context.Background(), anime.ID, models.ListCompleted, true)
	require.NoError(t, err)
	require.Equal(t, models.Membership{Completed: true}, snapshot)

	_, err = f.client.UpdateList(context.Background(), anime.ID, models.ListCompleted, true)
	require.Equal(t, outcome.Conflict, outcome.Classify(err))
	require.Equal(t, "Already in this list", outcome.Message(err))

	_, err = f.client.UpdateList(context.Background(), 404, models.ListFavorite, true)
	require.ErrorIs(t, err, outcome.ErrNotFound)
}

func TestUpdateListReadsBackSnapshot(t *testing.T) {
	f := newFixture(t)
	f.backend.EchoSnapshot(false)
	movie := f.backend.AddMedia(models.MediaItem{Title: "Detective Pikachu", Type: models.MediaMovie}, 104)
	f.signIn(t)

	snapshot, err := f.client.UpdateList(context.Background(), movie.ID, models.ListFavorite, true)
	require.NoError(t, err)
	require.Equal(t, models.Membership{Favorite: true}, snapshot)
	require.Equal(t, 1, f.backend.Calls("GET /api/media/{id}/status"))
}

func TestFavorites(t *testing.T) {
	f := newFixture(t)
	items := f.backend.AddFakeMedia(3, models.MediaAnime)
	f.signIn(t)
	f.backend.SetMembership(f.viewer.ID, items[1].ID, models.Membership{Favorite: true, Planned: true})

	favorites, err := f.client.Favorites(context.Background())
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	require.Equal(t, items[1].ID, favorites[0].Media.ID)
	require.True(t, favorites[0].Membership.Favorite)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	gary := f.backend.AddUser("gary", "eevee1234")
	movie := f.backend.AddMedia(models.MediaItem{Title: "The First Movie", Type: models.MediaMovie}, 75)
	anime := f.backend.AddMedia(models.MediaItem{Title: "Johto", Type: models.MediaAnime}, 300)
	f.backend.SetMembership(gary.ID, movie.ID, models.Membership{Completed: true})
	f.backend.SetMembership(gary.ID, anime.ID, models.Membership{Planned: true})
	f.backend.SendRequest(gary.ID, f.viewer.ID)

	profile, err := f.client.Profile(context.Background(), "gary")
	require.NoError(t, err)
	require.Equal(t, "none", profile.Status, "anonymous viewers see no relationship")
	require.Equal(t, "gary", profile.DisplayName)
	require.Equal(t, 1, profile.Stats.Movies.Completed)
	require.Equal(t, 1, profile.Stats.Anime.Planned)
	require.Equal(t, 75, profile.Durations.Movies)
	require.Equal(t, 2, profile.Stats.Total())
	require.False(t, profile.RegisteredAt.IsZero())

	f.signIn(t)
	profile, err = f.client.Profile(context.Background(), "gary")
	require.NoError(t, err)
	require.Equal(t, "pending incoming", profile.Status)

	entries, err := f.client.UserMedia(context.Background(), "gary", models.MediaMovie, models.ListCompleted)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, movie.ID, entries[0].Media.ID)
	require.Equal(t, models.Membership{}, entries[0].Membership, "viewer's own membership is reported")

	_, err = f.client.Profile(context.Background(), "nobody")
	require.ErrorIs(t, err, outcome.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	name, age := "Ash Ketchum", 10
	require.NoError(t, f.client.UpdateProfile(context.Background(), models.ProfileUpdate{DisplayName: &name, Age: &age}))

	user, ok := f.backend.User(f.viewer.ID)
	require.True(t, ok)
	require.Equal(t, "Ash Ketchum", user.DisplayName)
	require.Equal(t, 10, *user.Age)

	tooOld := 200
	err := f.client.UpdateProfile(context.Background(), models.ProfileUpdate{Age: &tooOld})
	require.Equal(t, outcome.Validation, outcome.Classify(err))
	require.Equal(t, "age: Age must be between 5 and 120", outcome.Message(err))
}

func TestFriendLifecycle(t *testing.T) {
	f := newFixture(t)
	brock := f.backend.AddUser("brock", "onix12345")
	f.signIn(t)
	ctx := context.Background()

	require.NoError(t, f.client.SendFriendRequest(ctx, brock.ID))
	status, err := f.client.FriendStatus(ctx, brock.ID)
	require.NoError(t, err)
	require.Equal(t, "request_sent", status)

	err = f.client.SendFriendRequest(ctx, brock.ID)
	require.Equal(t, outcome.Conflict, outcome.Classify(err))

	requests, err := f.client.FriendRequests(ctx)
	require.NoError(t, err)
	require.Empty(t, requests.Incoming)
	require.Len(t, requests.Outgoing, 1)
	require.Equal(t, "brock", requests.Outgoing[0].User.Username)
	require.False(t, requests.Outgoing[0].CreatedAt.IsZero())

	require.NoError(t, f.client.CancelFriendRequest(ctx, brock.ID))
	require.Equal(t, "none", f.backend.Relationship(f.viewer.ID, brock.ID))

	f.backend.SendRequest(brock.ID, f.viewer.ID)
	err = f.client.AcceptFriendRequest(ctx, brock.ID+100)
	require.ErrorIs(t, err, outcome.ErrNotFound)
	require.NoError(t, f.client.AcceptFriendRequest(ctx, brock.ID))

	friends, err := f.client.Friends(ctx)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	require.Equal(t, brock.ID, friends[0].ID)

	userFriends, err := f.client.UserFriends(ctx, "brock")
	require.NoError(t, err)
	require.Len(t, userFriends, 1)
	require.Equal(t, "ash", userFriends[0].Username)

	results, err := f.client.SearchUsers(ctx, "bro")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "accepted", results[0].Status)
	require.False(t, results[0].IsCurrentUser)

	require.NoError(t, f.client.RemoveFriend(ctx, brock.ID))
	require.Equal(t, "none", f.backend.Relationship(f.viewer.ID, brock.ID))

	f.backend.SendRequest(brock.ID, f.viewer.ID)
	require.NoError(t, f.client.RejectFriendRequest(ctx, brock.ID))
	require.Equal(t, "none", f.backend.Relationship(f.viewer.ID, brock.ID))

	err = f.client.SendFriendRequest(ctx, f.viewer.ID)
	require.Equal(t, outcome.Validation, outcome.Classify(err))
	require.Equal(t, "Cannot add yourself", outcome.Message(err))
}

func TestStatusMapping(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	cases := []struct {
		status int
		kind   outcome.Kind
	}{
		{http.StatusUnauthorized, outcome.AuthRequired},
		{http.StatusBadRequest, outcome.Validation},
		{http.StatusUnprocessableEntity, outcome.Validation},
		{http.StatusNotFound, outcome.NotFound},
		{http.StatusConflict, outcome.Conflict},
		{http.StatusInternalServerError, outcome.Network},
		{http.StatusBadGateway, outcome.Network},
	}
	for _, tc := range cases {
		f.backend.Fail("GET /api/friends", tc.status, "boom")
		_, err := f.client.Friends(context.Background())
		require.Equal(t, tc.kind, outcome.Classify(err), "status %d", tc.status)

		var apiErr *outcome.APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, tc.status, apiErr.Status)
	}
	f.backend.Recover("GET /api/friends")

	require.True(t, f.store.Has(), "server rejections never clear the session")
}

func TestTransportFailures(t *testing.T) {
	backend, srv := apitest.Start(t)
	backend.AddMedia(models.MediaItem{Title: "Sun and Moon", Type: models.MediaAnime}, 0)
	client, err := New(srv.URL, nil, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Media(ctx, 1)
	require.Equal(t, outcome.Cancelled, outcome.Classify(err))

	srv.Close()
	_, err = client.Media(context.Background(), 1)
	require.Equal(t, outcome.Network, outcome.Classify(err))
}

func TestTransportHeaders(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	_, err := f.client.Friends(ctx)
	require.NoError(t, err)

	header := f.backend.LastHeader("GET /api/friends")
	require.NotEmpty(t, header.Get(RequestIDHeader))
	require.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header.Get("traceparent"))
	require.Contains(t, header.Get("Authorization"), "Bearer ")
}

func apiMessage(err error) string {
	var apiErr *outcome.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
