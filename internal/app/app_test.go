package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/f1v3nt5/poketroid/internal/apitest"
	"github.com/f1v3nt5/poketroid/internal/models"
	"github.com/f1v3nt5/poketroid/internal/outcome"
)

type harness struct {
	t       *testing.T
	backend *apitest.Backend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend, srv := apitest.Start(t)
	t.Setenv("POKETROID_API_URL", srv.URL)
	t.Setenv("POKETROID_SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("POKETROID_DEBOUNCE_WINDOW", "20ms")
	t.Setenv("POKETROID_LOG_LEVEL", "warn")
	return &harness{t: t, backend: backend}
}

func (h *harness) run(stdin string, args ...string) (string, string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, errOut, err := h.run("", args...)
	if err != nil {
		h.t.Fatalf("%s: %v\nstderr: %s", strings.Join(args, " "), err, errOut)
	}
	return out
}

func (h *harness) login(username, password string) models.User {
	h.t.Helper()
	user := h.backend.AddUser(username, password)
	h.mustRun("login", username, "--password", password)
	return user
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("ash", "pikachu123")

	out, _, err := h.run("pikachu123\n", "login", "ash")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Logged in as ash (id 1)") {
		t.Fatalf("unexpected login output %q", out)
	}

	if out := h.mustRun("whoami"); out != "ash (id 1)\n" {
		t.Fatalf("unexpected whoami output %q", out)
	}

	h.mustRun("logout")

	_, _, err = h.run("", "whoami")
	if !errors.Is(err, outcome.ErrAuthRequired) {
		t.Fatalf("expected auth required, got %v", err)
	}
	if err.Error() != "please log in to continue" {
		t.Fatalf("expected user-facing message, got %q", err.Error())
	}
}

func TestLoginWithWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("ash", "pikachu123")

	if _, _, err := h.run("", "login", "ash", "-p", "bulbasaur"); err == nil {
		t.Fatal("expected login to fail")
	}
	if _, _, err := h.run("", "whoami"); !errors.Is(err, outcome.ErrAuthRequired) {
		t.Fatalf("expected no session to be stored, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("register", "misty", "--password", "togepi123")
	if !strings.Contains(out, "Registered misty") {
		t.Fatalf("unexpected output %q", out)
	}
	h.mustRun("login", "misty", "--password", "togepi123")
}

func TestMediaToggle(t *testing.T) {
	h := newHarness(t)
	ash := h.login("ash", "pikachu123")
	item := h.backend.AddMedia(models.MediaItem{Title: "Mewtwo Strikes Back", Type: models.MediaMovie}, 75)
	h.backend.SetMembership(ash.ID, item.ID, models.Membership{Planned: true})

	out := h.mustRun("media", "toggle", "1", "completed")
	if !strings.Contains(out, "completed:  yes") || !strings.Contains(out, "planned:    no") {
		t.Fatalf("unexpected output %q", out)
	}
	if got := h.backend.Membership(ash.ID, item.ID); got != (models.Membership{Completed: true}) {
		t.Fatalf("unexpected server membership %+v", got)
	}

	h.mustRun("media", "toggle", "1", "favorite")
	if got := h.backend.Membership(ash.ID, item.ID); got != (models.Membership{Completed: true, Favorite: true}) {
		t.Fatalf("unexpected server membership %+v", got)
	}

	out = h.mustRun("favorites")
	if !strings.Contains(out, "Mewtwo Strikes Back") || !strings.Contains(out, "favorite") {
		t.Fatalf("unexpected favorites output %q", out)
	}
}

func TestMediaToggleRollsBackOnRejection(t *testing.T) {
	h := newHarness(t)
	ash := h.login("ash", "pikachu123")
	item := h.backend.AddMedia(models.MediaItem{Title: "Charizard", Type: models.MediaAnime}, 24)
	h.backend.Fail("POST /api/media/list", http.StatusConflict, "list changed elsewhere")

	out, errOut, err := h.run("", "media", "toggle", "1", "favorite")
	if !errors.Is(err, outcome.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "list changed elsewhere" {
		t.Fatalf("expected server message, got %q", err.Error())
	}
	if !strings.Contains(errOut, "warning: list changed elsewhere, list change undone") {
		t.Fatalf("expected rollback warning, got %q", errOut)
	}
	if !strings.Contains(out, "favorite:   no") {
		t.Fatalf("expected rolled back membership, got %q", out)
	}
	if got := h.backend.Membership(ash.ID, item.ID); got != (models.Membership{}) {
		t.Fatalf("server membership should be untouched, got %+v", got)
	}
}

func TestMediaToggleRequiresSession(t *testing.T) {
	h := newHarness(t)
	h.backend.AddMedia(models.MediaItem{Title: "Charizard", Type: models.MediaAnime}, 24)

	_, _, err := h.run("", "media", "toggle", "1", "planned")
	if !errors.Is(err, outcome.ErrAuthRequired) {
		t.Fatalf("expected auth required, got %v", err)
	}
	if calls := h.backend.Calls("POST /api/media/list"); calls != 0 {
		t.Fatalf("expected no list update without a session, got %d", calls)
	}
}

func TestMediaShowUsesRedisCache(t *testing.T) {
	h := newHarness(t)
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	t.Setenv("POKETROID_REDIS_URL", "redis://"+mr.Addr())

	h.backend.AddMedia(models.MediaItem{Title: "Pikachu Adventures", Type: models.MediaAnime, Genres: []string{"comedy"}}, 24)

	for i := 0; i < 2; i++ {
		out := h.mustRun("media", "show", "1")
		if !strings.Contains(out, "Pikachu Adventures") || !strings.Contains(out, "comedy") {
			t.Fatalf("unexpected output %q", out)
		}
		if strings.Contains(out, "Lists:") {
			t.Fatalf("anonymous viewer should not see lists, got %q", out)
		}
	}
	if calls := h.backend.Calls("GET /api/media/{id}"); calls != 1 {
		t.Fatalf("expected second lookup to be served from redis, got %d calls", calls)
	}
}

func TestCatalog(t *testing.T) {
	h := newHarness(t)
	h.backend.AddFakeMedia(apitest.PageSize+3, models.MediaBook)

	out := h.mustRun("catalog", "--type", "book", "--page", "2")
	if !strings.Contains(out, "Page 2 of 2") {
		t.Fatalf("unexpected output %q", out)
	}
	if lines := strings.Count(out, "\n"); lines != 3+2 {
		t.Fatalf("expected header, three rows and footer, got %d lines:\n%s", lines, out)
	}

	if _, _, err := h.run("", "catalog", "--type", "podcast"); err == nil {
		t.Fatal("expected unknown media type to fail")
	}
}

func TestCatalogWatchSendsLastQuery(t *testing.T) {
	h := newHarness(t)
	h.backend.AddMedia(models.MediaItem{Title: "Pikachu Adventures", Type: models.MediaAnime}, 24)
	h.backend.AddMedia(models.MediaItem{Title: "Charizard", Type: models.MediaAnime}, 24)

	out, _, err := h.run("c\nch\ncha\n", "catalog", "watch", "--type", "anime")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(out, "Charizard") || strings.Contains(out, "Pikachu") {
		t.Fatalf("unexpected output %q", out)
	}
	if calls := h.backend.Calls("GET /api/media"); calls != 1 {
		t.Fatalf("expected a single debounced request, got %d", calls)
	}
}

func TestFriendsLifecycle(t *testing.T) {
	h := newHarness(t)
	alice := h.backend.AddUser("alice", "wonderland1")
	ash := h.login("ash", "pikachu123")

	out := h.mustRun("friends", "send", "alice")
	if out != "alice: pending_outgoing\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if got := h.backend.Relationship(ash.ID, alice.ID); got != "pending_outgoing" {
		t.Fatalf("expected request to be stored, got %q", got)
	}

	_, _, err := h.run("", "friends", "accept", "alice")
	if err == nil || !strings.Contains(err.Error(), "cannot accept while the relationship is pending_outgoing") {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	h.mustRun("logout")
	h.mustRun("login", "alice", "--password", "wonderland1")

	out = h.mustRun("friends", "requests")
	if !strings.Contains(out, "incoming") || !strings.Contains(out, "ash") {
		t.Fatalf("unexpected requests output %q", out)
	}

	if out := h.mustRun("friends", "accept", "ash"); out != "ash: accepted\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if out := h.mustRun("friends", "status", "ash"); !strings.HasPrefix(out, "accepted (actions: remove)") {
		t.Fatalf("unexpected status %q", out)
	}
	if out := h.mustRun("friends", "list"); !strings.Contains(out, "ash") {
		t.Fatalf("unexpected friends output %q", out)
	}

	h.mustRun("friends", "remove", "ash")
	if got := h.backend.Relationship(alice.ID, ash.ID); got != "none" {
		t.Fatalf("expected friendship removed, got %q", got)
	}
}

func TestFriendsActionFailureKeepsOptimisticState(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("alice", "wonderland1")
	h.login("ash", "pikachu123")
	h.backend.Fail("POST /api/friends/{id}/request", http.StatusConflict, "Request already sent")

	out, errOut, err := h.run("", "friends", "send", "alice")
	if !errors.Is(err, outcome.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if out != "alice: pending_outgoing\n" {
		t.Fatalf("relaxed policy should keep the optimistic state, got %q", out)
	}
	if !strings.Contains(errOut, "warning: the service did not accept send: Request already sent") {
		t.Fatalf("expected warning, got %q", errOut)
	}
	if !strings.Contains(errOut, `"msg":"relationship action failed"`) {
		t.Fatalf("expected failure to be logged, got %q", errOut)
	}
}

func TestFriendsActionFailureStrictPolicy(t *testing.T) {
	h := newHarness(t)
	t.Setenv("POKETROID_RELATIONSHIP_POLICY", "strict")
	h.backend.AddUser("alice", "wonderland1")
	h.login("ash", "pikachu123")
	h.backend.Fail("POST /api/friends/{id}/request", http.StatusConflict, "Request already sent")

	out, _, err := h.run("", "friends", "send", "alice")
	if err == nil {
		t.Fatal("expected failure")
	}
	if out != "alice: none\n" {
		t.Fatalf("strict policy should restore the previous state, got %q", out)
	}
}

func TestFriendsSearch(t *testing.T) {
	h := newHarness(t)
	alice := h.backend.AddUser("alice", "wonderland1")
	ash := h.login("ash", "pikachu123")
	h.backend.SendRequest(alice.ID, ash.ID)

	out := h.mustRun("friends", "search", "ali")
	if !strings.Contains(out, "pending_incoming") || !strings.Contains(out, "accept,reject") {
		t.Fatalf("unexpected search output %q", out)
	}
}

func TestProfile(t *testing.T) {
	h := newHarness(t)
	ash := h.login("ash", "pikachu123")
	item := h.backend.AddMedia(models.MediaItem{Title: "Mewtwo Strikes Back", Type: models.MediaMovie}, 75)
	h.backend.SetMembership(ash.ID, item.ID, models.Membership{Completed: true})

	h.mustRun("account", "update", "--display-name", "Ash Ketchum", "--age", "10")

	out := h.mustRun("profile", "ash")
	if !strings.Contains(out, "Ash Ketchum") || !strings.Contains(out, "Age:") {
		t.Fatalf("unexpected profile output %q", out)
	}
	if !strings.Contains(out, "movie") || !strings.Contains(out, "75") {
		t.Fatalf("expected movie stats, got %q", out)
	}

	out = h.mustRun("profile", "ash", "--type", "movie", "--list", "completed")
	if !strings.Contains(out, "Mewtwo Strikes Back") {
		t.Fatalf("unexpected list output %q", out)
	}

	if _, _, err := h.run("", "account", "update"); err == nil {
		t.Fatal("expected empty update to fail")
	}
}

func TestMetricsFlag(t *testing.T) {
	h := newHarness(t)
	h.login("ash", "pikachu123")
	h.backend.AddMedia(models.MediaItem{Title: "Charizard", Type: models.MediaAnime}, 24)

	_, errOut, err := h.run("", "--metrics", "media", "toggle", "1", "planned")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !strings.Contains(errOut, `poketroid_membership_toggles_total{list="planned",result="confirmed"} 1`) {
		t.Fatalf("expected membership metrics, got %q", errOut)
	}
}

func TestFriendsAnswersComeFromRequestsSurface(t *testing.T) {
	h := newHarness(t)
	alice := h.backend.AddUser("alice", "wonderland1")
	ash := h.login("ash", "pikachu123")
	h.backend.SendRequest(alice.ID, ash.ID)

	out, errOut, err := h.run("", "--metrics", "friends", "accept", "alice")
	if err != nil {
		t.Fatalf("accept: %v\nstderr: %s", err, errOut)
	}
	if out != "alice: accepted\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(errOut, `poketroid_relationship_actions_total{action="accept",result="ok",surface="requests"} 1`) {
		t.Fatalf("expected accept to be counted on the requests surface, got %q", errOut)
	}

	_, errOut, err = h.run("", "--metrics", "friends", "remove", "alice")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(errOut, `poketroid_relationship_actions_total{action="remove",result="ok",surface="profile"} 1`) {
		t.Fatalf("expected remove to be counted on the profile surface, got %q", errOut)
	}
}
