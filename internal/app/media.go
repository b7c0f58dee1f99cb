package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/f1v3nt5/poketroid/internal/membership"
	"github.com/f1v3nt5/poketroid/internal/models"
	"github.com/f1v3nt5/poketroid/internal/outcome"
)

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}

func (c *cli) mediaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect media items and manage your lists",
	}
	cmd.AddCommand(c.mediaShowCommand(), c.mediaStatusCommand(), c.mediaToggleCommand())
	return cmd
}

func (c *cli) mediaShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the details of a media item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			item, err := c.deps.media.Media(ctx, id)
			if err != nil {
				return fmt.Errorf("load media %d: %w", id, err)
			}

			tw := newTable(c.out)
			row(tw, "Title:", item.Title)
			row(tw, "Type:", item.Type)
			row(tw, "Year:", year(item.ReleaseYear))
			row(tw, "Rating:", fmt.Sprintf("%.1f (%d votes)", item.Rating, item.RatingCount))
			if item.Author != "" {
				row(tw, "Author:", item.Author)
			}
			if len(item.Genres) > 0 {
				row(tw, "Genres:", strings.Join(item.Genres, ", "))
			}
			if item.Description != "" {
				row(tw, "Description:", item.Description)
			}

			if _, err := c.deps.guard.Current(ctx); err == nil {
				m, err := c.deps.client.MediaStatus(ctx, id)
				if err != nil {
					return fmt.Errorf("load list status: %w", err)
				}
				row(tw, "Lists:", lists(m))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) mediaStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show which of your lists contain a media item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			m, err := c.deps.client.MediaStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			c.writeMembership(m)
			return nil
		},
	}
}

func (c *cli) mediaToggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id> <planned|completed|favorite>",
		Short: "Add a media item to a list, or remove it when already there",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			list, err := models.ParseListType(strings.ToLower(args[1]))
			if err != nil {
				return fmt.Errorf("%w: %w", outcome.ErrValidation, err)
			}

			current, err := c.deps.client.MediaStatus(ctx, id)
			if err != nil {
				return err
			}
			c.deps.lists.Seed(id, current)

			unsubscribe := c.deps.lists.Subscribe(func(change membership.Change) {
				if change.Phase == membership.PhaseRolledBack {
					fmt.Fprintf(c.errOut, "warning: %s, list change undone\n", outcome.Message(change.Err))
				}
			})
			defer unsubscribe()

			m, err := c.deps.lists.Toggle(ctx, id, list)
			if err != nil {
				if errors.Is(err, outcome.ErrAuthRequired) {
					return err
				}
				c.writeMembership(c.deps.lists.Snapshot(id))
				return err
			}
			c.writeMembership(m)
			return nil
		},
	}
}

func (c *cli) favoritesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "List your favorite media",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := c.deps.client.Favorites(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.out, "No favorites yet")
				return nil
			}
			return writeEntries(c.out, entries)
		},
	}
}

func (c *cli) writeMembership(m models.Membership) {
	tw := newTable(c.out)
	row(tw, "planned:", yesNo(m.Planned))
	row(tw, "completed:", yesNo(m.Completed))
	row(tw, "favorite:", yesNo(m.Favorite))
	_ = tw.Flush()
}
