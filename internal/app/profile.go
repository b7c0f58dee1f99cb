package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/f1v3nt5/poketroid/internal/models"
	"github.com/f1v3nt5/poketroid/internal/relationship"
)

func (c *cli) profileCommand() *cobra.Command {
	var mediaType, list string
	cmd := &cobra.Command{
		Use:   "profile <username>",
		Short: "Show a user's profile, or one of their lists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			username := args[0]

			if list != "" {
				lt, err := models.ParseListType(strings.ToLower(list))
				if err != nil {
					return err
				}
				entries, err := c.deps.client.UserMedia(ctx, username, models.MediaType(strings.ToLower(mediaType)), lt)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(c.out, "Nothing here yet")
					return nil
				}
				return writeEntries(c.out, entries)
			}

			profile, err := c.deps.client.Profile(ctx, username)
			if err != nil {
				return err
			}

			tw := newTable(c.out)
			row(tw, "Username:", profile.Username)
			row(tw, "Name:", orDash(profile.DisplayName))
			row(tw, "About:", orDash(profile.About))
			if profile.Age != nil {
				row(tw, "Age:", *profile.Age)
			}
			row(tw, "Gender:", orDash(profile.Gender))
			if !profile.RegisteredAt.IsZero() {
				row(tw, "Joined:", profile.RegisteredAt.Format("2006-01-02"))
			}
			if !profile.IsCurrentUser && profile.Status != "" {
				if state, err := relationship.ParseState(profile.Status); err == nil {
					row(tw, "Relationship:", state)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(c.out)
			stats := newTable(c.out, "TYPE", "COMPLETED", "PLANNED", "MINUTES")
			row(stats, models.MediaMovie, profile.Stats.Movies.Completed, profile.Stats.Movies.Planned, profile.Durations.Movies)
			row(stats, models.MediaAnime, profile.Stats.Anime.Completed, profile.Stats.Anime.Planned, profile.Durations.Anime)
			row(stats, models.MediaBook, profile.Stats.Books.Completed, profile.Stats.Books.Planned, profile.Durations.Books)
			if err := stats.Flush(); err != nil {
				return err
			}

			friends, err := c.deps.client.UserFriends(ctx, profile.Username)
			if err != nil {
				return err
			}
			if len(friends) > 0 {
				fmt.Fprintln(c.out)
				return writeUsers(c.out, friends)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mediaType, "type", "t", string(models.MediaMovie), "media type of the list")
	cmd.Flags().StringVarP(&list, "list", "l", "", "show this list instead of the profile: planned, completed or favorite")
	return cmd
}

func (c *cli) accountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage your own account",
	}

	var displayName, about, gender string
	var age int
	update := &cobra.Command{
		Use:   "update",
		Short: "Edit your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var change models.ProfileUpdate
			flags := cmd.Flags()
			if flags.Changed("display-name") {
				change.DisplayName = &displayName
			}
			if flags.Changed("about") {
				change.About = &about
			}
			if flags.Changed("gender") {
				change.Gender = &gender
			}
			if flags.Changed("age") {
				if age < 0 {
					return errors.New("age must not be negative")
				}
				change.Age = &age
			}
			if change == (models.ProfileUpdate{}) {
				return errors.New("nothing to update")
			}

			if err := c.deps.client.UpdateProfile(cmd.Context(), change); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Profile updated")
			return nil
		},
	}
	update.Flags().StringVar(&displayName, "display-name", "", "name shown to other users")
	update.Flags().StringVar(&about, "about", "", "short description")
	update.Flags().StringVar(&gender, "gender", "", "gender")
	update.Flags().IntVar(&age, "age", 0, "age in years")

	cmd.AddCommand(update)
	return cmd
}
