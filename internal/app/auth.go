package app

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (c *cli) loginCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			secret, err := c.password(password)
			if err != nil {
				return err
			}

			result, err := c.deps.client.Login(ctx, args[0], secret)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			sess, err := c.deps.guard.Begin(ctx, result.Token, result.User)
			if err != nil {
				return err
			}
			c.deps.lists.Reset()

			fmt.Fprintf(c.out, "Logged in as %s (id %d)", sess.User.Username, sess.User.ID)
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintf(c.out, ", session valid until %s", sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(c.out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password, read from stdin when omitted")
	return cmd
}

func (c *cli) registerCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := c.password(password)
			if err != nil {
				return err
			}
			id, err := c.deps.client.Register(cmd.Context(), args[0], secret)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(c.out, "Registered %s (id %d), log in to continue\n", strings.TrimSpace(args[0]), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password, read from stdin when omitted")
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.deps.guard.End(cmd.Context()); err != nil {
				return err
			}
			c.deps.lists.Reset()
			fmt.Fprintln(c.out, "Logged out")
			return nil
		},
	}
}

func (c *cli) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account of the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := c.deps.guard.Current(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s (id %d)\n", sess.User.Username, sess.User.ID)
			return nil
		},
	}
}

// password returns flag when set, otherwise the first line of stdin.
func (c *cli) password(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	scanner := bufio.NewScanner(c.in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("password is required")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}
