package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/f1v3nt5/poketroid/internal/config"
	"github.com/f1v3nt5/poketroid/internal/logging"
	"github.com/f1v3nt5/poketroid/internal/outcome"
)

// Run executes the Poketroid command line client.
func Run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// cli carries the state shared by the commands of one invocation.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath  string
	dumpMetrics bool

	deps    *dependencies
	cleanup func(context.Context) error
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	c := &cli{in: in, out: out, errOut: errOut}

	root := c.rootCommand()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)

	if c.cleanup != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		cleanupErr := c.cleanup(shutdownCtx)
		cancel()
		if err == nil {
			err = cleanupErr
		}
	}

	if err != nil {
		return describe(err)
	}
	return nil
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "poketroid",
		Short:         "Track movies, anime and books with friends",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if !c.dumpMetrics || c.deps == nil {
				return nil
			}
			return c.writeMetrics(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVar(&c.dumpMetrics, "metrics", false, "print client metrics to stderr after the command")

	root.AddCommand(
		c.loginCommand(),
		c.registerCommand(),
		c.logoutCommand(),
		c.whoamiCommand(),
		c.catalogCommand(),
		c.mediaCommand(),
		c.favoritesCommand(),
		c.profileCommand(),
		c.accountCommand(),
		c.friendsCommand(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	if c.deps != nil {
		return nil
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	deps, cleanup, err := buildDependencies(cmd.Context(), cfg, c.errOut)
	if err != nil {
		return fmt.Errorf("initialise client: %w", err)
	}
	c.deps = deps
	c.cleanup = cleanup

	cmd.SetContext(logging.WithLogger(cmd.Context(), deps.logger))
	return nil
}

func (c *cli) writeMetrics(w io.Writer) error {
	families, err := c.deps.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// commandError pairs the message shown to the user with the underlying cause.
type commandError struct {
	message string
	err     error
}

func (e *commandError) Error() string { return e.message }

func (e *commandError) Unwrap() error { return e.err }

// describe replaces classified failures with their user-facing message.
func describe(err error) error {
	var cmdErr *commandError
	if errors.As(err, &cmdErr) {
		return err
	}
	if outcome.Classify(err) == outcome.Unknown {
		return err
	}
	message := outcome.Message(err)
	if message == "" {
		message = "cancelled"
	}
	return &commandError{message: message, err: err}
}
