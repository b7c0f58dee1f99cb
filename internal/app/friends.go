package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/f1v3nt5/poketroid/internal/outcome"
	"github.com/f1v3nt5/poketroid/internal/relationship"
)

func (c *cli) friendsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "Manage friends and friend requests",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your friends",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				friends, err := c.deps.client.Friends(cmd.Context())
				if err != nil {
					return err
				}
				if len(friends) == 0 {
					fmt.Fprintln(c.out, "No friends yet")
					return nil
				}
				return writeUsers(c.out, friends)
			},
		},
		&cobra.Command{
			Use:   "requests",
			Short: "Show pending friend requests",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				requests, err := c.deps.client.FriendRequests(cmd.Context())
				if err != nil {
					return err
				}
				tw := newTable(c.out, "DIRECTION", "ID", "USERNAME", "SENT")
				for _, r := range requests.Incoming {
					row(tw, "incoming", r.User.ID, r.User.Username, r.CreatedAt.Format("2006-01-02"))
				}
				for _, r := range requests.Outgoing {
					row(tw, "outgoing", r.User.ID, r.User.Username, r.CreatedAt.Format("2006-01-02"))
				}
				return tw.Flush()
			},
		},
		c.friendsSearchCommand(),
		c.friendsStatusCommand(),
	)

	for _, action := range []relationship.Action{
		relationship.ActionSend,
		relationship.ActionAccept,
		relationship.ActionReject,
		relationship.ActionCancel,
		relationship.ActionRemove,
	} {
		cmd.AddCommand(c.friendsActionCommand(action))
	}
	return cmd
}

func (c *cli) friendsSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find users by handle or name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := c.deps.client.SearchUsers(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(c.out, "No users found")
				return nil
			}

			surface := c.deps.surface("search", nil)
			tw := newTable(c.out, "ID", "USERNAME", "NAME", "RELATIONSHIP", "ACTIONS")
			for _, result := range results {
				if result.IsCurrentUser {
					row(tw, result.ID, result.Username, orDash(result.DisplayName), "you", "-")
					continue
				}
				state, err := relationship.ParseState(result.Status)
				if err != nil {
					c.deps.logger.Warn("unrecognised relationship status", slog.Int64("user_id", result.ID), slog.String("status", result.Status))
				}
				surface.Seed(result.ID, state)
				row(tw, result.ID, result.Username, orDash(result.DisplayName), surface.State(result.ID), actionList(surface.State(result.ID)))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) friendsStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <user>",
		Short: "Show your relationship with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := c.resolveUser(ctx, args[0])
			if err != nil {
				return err
			}
			state, err := c.deps.surface("profile", nil).Refresh(ctx, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s (actions: %s)\n", state, actionList(state))
			return nil
		},
	}
}

func (c *cli) friendsActionCommand(action relationship.Action) *cobra.Command {
	short := map[relationship.Action]string{
		relationship.ActionSend:   "Send a friend request",
		relationship.ActionAccept: "Accept a friend request",
		relationship.ActionReject: "Decline a friend request",
		relationship.ActionCancel: "Withdraw a friend request you sent",
		relationship.ActionRemove: "Remove a friend",
	}[action]

	return &cobra.Command{
		Use:   string(action) + " <user>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := c.resolveUser(ctx, args[0])
			if err != nil {
				return err
			}

			var (
				mu       sync.Mutex
				failures []relationship.Failure
			)
			surface := c.deps.surface(surfaceFor(action), func(f relationship.Failure) {
				mu.Lock()
				failures = append(failures, f)
				mu.Unlock()
			})

			if _, err := surface.Refresh(ctx, target); err != nil {
				return err
			}
			state, err := surface.Apply(ctx, target, action)
			if err != nil {
				if errors.Is(err, relationship.ErrInvalidTransition) {
					return fmt.Errorf("cannot %s while the relationship is %s", action, state)
				}
				return err
			}
			if err := surface.Wait(ctx); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			state = surface.State(target)
			fmt.Fprintf(c.out, "%s: %s\n", args[0], state)
			if len(failures) > 0 {
				failure := failures[len(failures)-1]
				fmt.Fprintf(c.errOut, "warning: the service did not accept %s: %s\n", action, outcome.Message(failure.Err))
				return fmt.Errorf("%s %s: %w", action, args[0], failure.Err)
			}
			return nil
		},
	}
}

// surfaceFor names the view an action is taken from: answering a request
// happens in the inbox, everything else on the user's profile.
func surfaceFor(action relationship.Action) string {
	switch action {
	case relationship.ActionAccept, relationship.ActionReject:
		return "requests"
	}
	return "profile"
}

// resolveUser accepts a numeric id or a username.
func (c *cli) resolveUser(ctx context.Context, value string) (int64, error) {
	if id, err := strconv.ParseInt(value, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	profile, err := c.deps.client.Profile(ctx, value)
	if err != nil {
		return 0, fmt.Errorf("find user %s: %w", value, err)
	}
	if profile.IsCurrentUser {
		return 0, errors.New("that is your own account")
	}
	return profile.ID, nil
}

func actionList(state relationship.State) string {
	actions := relationship.Actions(state)
	if len(actions) == 0 {
		return "-"
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ",")
}
