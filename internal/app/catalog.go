package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/f1v3nt5/poketroid/internal/catalog"
	"github.com/f1v3nt5/poketroid/internal/models"
)

type catalogFlags struct {
	mediaType string
	query     string
	sortBy    string
	page      int
}

func (f *catalogFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.mediaType, "type", "t", string(models.MediaMovie), "media type: movie, anime or book")
	cmd.Flags().StringVar(&f.sortBy, "sort", "", "ordering: popularity or newest")
}

func (f *catalogFlags) options() (catalog.Options, error) {
	tab := models.MediaType(strings.ToLower(f.mediaType))
	if !tab.Valid() {
		return catalog.Options{}, fmt.Errorf("unknown media type %q", f.mediaType)
	}
	return catalog.Options{Tab: tab, Query: f.query, SortBy: f.sortBy}, nil
}

func (c *cli) catalogCommand() *cobra.Command {
	var flags catalogFlags
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse the media catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			view, err := c.deps.browser(opts).SetPage(cmd.Context(), flags.page)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			return c.writeView(view)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&flags.query, "query", "q", "", "free-text search")
	cmd.Flags().IntVar(&flags.page, "page", 1, "page number")

	cmd.AddCommand(c.catalogWatchCommand())
	return cmd
}

// catalogWatchCommand treats every stdin line as the search box being edited
// and shows the result once typing stops.
func (c *cli) catalogWatchCommand() *cobra.Command {
	var flags catalogFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Search as you type, one query per stdin line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts, err := flags.options()
			if err != nil {
				return err
			}

			updates := make(chan catalog.View, 1)
			failures := make(chan error, 1)
			opts.OnUpdate = func(v catalog.View) { replace(updates, v) }
			opts.OnError = func(err error) { replace(failures, err) }
			browser := c.deps.browser(opts)

			last, typed := "", false
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				last, typed = strings.TrimSpace(scanner.Text()), true
				browser.SetQuery(ctx, last)
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read queries: %w", err)
			}
			if !typed {
				return errors.New("no query given on stdin")
			}

			wait, cancel := context.WithTimeout(ctx, c.deps.coord.Window()+c.deps.cfg.RequestTimeout)
			defer cancel()
			for {
				select {
				case view := <-updates:
					if view.Query.Query != last {
						continue
					}
					return c.writeView(view)
				case err := <-failures:
					return fmt.Errorf("search %q: %w", last, err)
				case <-wait.Done():
					return fmt.Errorf("search %q: %w", last, wait.Err())
				}
			}
		},
	}
	flags.register(cmd)
	return cmd
}

// replace stores v in a one-slot channel, dropping an unread older value.
func replace[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (c *cli) writeView(view catalog.View) error {
	if len(view.Page.Entries) == 0 {
		fmt.Fprintln(c.out, "No results")
		return nil
	}
	if err := writeEntries(c.out, view.Page.Entries); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Page %d of %d\n", view.Page.CurrentPage, max(view.Page.TotalPages, 1))
	return nil
}
