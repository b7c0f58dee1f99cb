// Package catalog drives the media catalog surface: tab, free-text search and
// paging, with results seeded into the membership engine.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/f1v3nt5/poketroid/internal/coordinator"
	"github.com/f1v3nt5/poketroid/internal/models"
	"github.com/f1v3nt5/poketroid/internal/outcome"
)

// Fetcher loads one catalog page.
type Fetcher interface {
	Catalog(ctx context.Context, q models.CatalogQuery) (models.CatalogPage, error)
}

// Seeder receives the membership snapshots carried by catalog results.
type Seeder interface {
	Seed(mediaID int64, m models.Membership)
}

// View is what the catalog surface currently shows.
type View struct {
	Query   models.CatalogQuery
	Page    models.CatalogPage
	Loaded  bool
	Version uint64
}

// Options configures a Browser.
type Options struct {
	Tab    models.MediaType
	Query  string
	SortBy string
	// OnUpdate is called with every applied result. It runs while the
	// coordinator holds the catalog key and must not issue on it.
	OnUpdate func(View)
	// OnError receives failures of debounced searches.
	OnError func(error)
	Logger  *slog.Logger
}

// Browser keeps the catalog surface in sync with its inputs. Each tab has its
// own coordinator key, so a slow response for an old query or page is never
// shown after a newer one.
type Browser struct {
	coord    *coordinator.Coordinator
	fetcher  Fetcher
	seeder   Seeder
	onUpdate func(View)
	onError  func(error)
	logger   *slog.Logger

	mu    sync.Mutex
	query models.CatalogQuery
	view  View
}

// NewBrowser returns a Browser on the first page of opts.Tab (movies by default).
func NewBrowser(coord *coordinator.Coordinator, fetcher Fetcher, seeder Seeder, opts Options) *Browser {
	tab := opts.Tab
	if !tab.Valid() {
		tab = models.MediaMovie
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{
		coord:    coord,
		fetcher:  fetcher,
		seeder:   seeder,
		onUpdate: opts.OnUpdate,
		onError:  opts.OnError,
		logger:   logger,
		query:    models.CatalogQuery{Type: tab, Query: strings.TrimSpace(opts.Query), SortBy: opts.SortBy, Page: 1},
	}
}

// Key returns the coordinator key used for a tab.
func Key(tab models.MediaType) string {
	return "catalog:" + string(tab)
}

// View returns the last applied result.
func (b *Browser) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// Query returns the inputs the next request will use.
func (b *Browser) Query() models.CatalogQuery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// SetQuery changes the free-text search and returns to the first page. The
// request is debounced; only the last query typed within the window is sent.
func (b *Browser) SetQuery(ctx context.Context, text string) coordinator.Token {
	b.mu.Lock()
	b.query.Query = strings.TrimSpace(text)
	b.query.Page = 1
	q := b.query
	b.mu.Unlock()

	return coordinator.Debounce(ctx, b.coord, Key(q.Type), b.fetch(q), b.apply(q), b.reportError)
}

// Submit runs a search immediately, as pressing enter does, superseding any
// debounced query still waiting.
func (b *Browser) Submit(ctx context.Context, text string) (View, error) {
	b.mu.Lock()
	b.query.Query = strings.TrimSpace(text)
	b.query.Page = 1
	q := b.query
	b.mu.Unlock()

	return b.load(ctx, q)
}

// SetTab switches the media type, abandoning whatever the old tab had in
// flight, and loads the first page immediately.
func (b *Browser) SetTab(ctx context.Context, tab models.MediaType) (View, error) {
	if !tab.Valid() {
		return b.View(), fmt.Errorf("%w: unknown media type %q", outcome.ErrValidation, tab)
	}

	b.mu.Lock()
	previous := b.query.Type
	b.query.Type = tab
	b.query.Page = 1
	q := b.query
	b.mu.Unlock()

	if previous != tab {
		b.coord.Cancel(Key(previous))
	}
	return b.load(ctx, q)
}

// SetPage loads another page of the current tab and query immediately.
func (b *Browser) SetPage(ctx context.Context, page int) (View, error) {
	if page < 1 {
		return b.View(), fmt.Errorf("%w: page must be positive", outcome.ErrValidation)
	}

	b.mu.Lock()
	b.query.Page = page
	q := b.query
	b.mu.Unlock()

	return b.load(ctx, q)
}

// SetSort changes the ordering and reloads from the first page.
func (b *Browser) SetSort(ctx context.Context, sortBy string) (View, error) {
	b.mu.Lock()
	b.query.SortBy = sortBy
	b.query.Page = 1
	q := b.query
	b.mu.Unlock()

	return b.load(ctx, q)
}

// Refresh reloads the current inputs, as a surface does when it is shown again.
func (b *Browser) Refresh(ctx context.Context) (View, error) {
	return b.load(ctx, b.Query())
}

func (b *Browser) load(ctx context.Context, q models.CatalogQuery) (View, error) {
	if _, err := coordinator.Issue(ctx, b.coord, Key(q.Type), b.fetch(q), b.apply(q)); err != nil {
		return b.View(), err
	}
	return b.View(), nil
}

func (b *Browser) fetch(q models.CatalogQuery) func(context.Context) (models.CatalogPage, error) {
	return func(ctx context.Context) (models.CatalogPage, error) {
		return b.fetcher.Catalog(ctx, q)
	}
}

func (b *Browser) apply(q models.CatalogQuery) func(models.CatalogPage) {
	return func(page models.CatalogPage) {
		if b.seeder != nil {
			for _, entry := range page.Entries {
				b.seeder.Seed(entry.Media.ID, entry.Membership)
			}
		}

		b.mu.Lock()
		b.view = View{Query: q, Page: page, Loaded: true, Version: b.view.Version + 1}
		view := b.view
		b.mu.Unlock()

		b.logger.Debug("catalog updated",
			slog.String("type", string(q.Type)),
			slog.String("query", q.Query),
			slog.Int("page", page.CurrentPage),
			slog.Int("items", len(page.Entries)),
		)
		if b.onUpdate != nil {
			b.onUpdate(view)
		}
	}
}

func (b *Browser) reportError(err error) {
	if b.onError != nil {
		b.onError(err)
		return
	}
	b.logger.Warn("catalog search failed", slog.String("kind", outcome.Classify(err).String()), slog.Any("error", err))
}
