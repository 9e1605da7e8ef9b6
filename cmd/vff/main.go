// cmd/vff/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vff/client"
	"vff/internal/backend"
	"vff/internal/config"
	"vff/internal/logging"
	"vff/internal/revision"
)

// store is what commands run against: a local repository or a server.
type store interface {
	backend.Backend
	GetRevisionInfo(ctx context.Context, path, id string) (*revision.Revision, error)
	Stats() (backend.Stats, error)
}

// globals holds the persistent flags shared by every command.
type globals struct {
	repo       string
	logBackend string
	author     string
	configPath string
	logLevel   string
	server     string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "vff",
		Short: "vff stores the revision history of text documents",
		Long: `vff keeps every revision of a document, attributed to an author and a
message, and can show any earlier revision or the diff between two of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				g.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.repo, "repo", "", "repository root (default from config, then vf_repo)")
	flags.StringVar(&g.logBackend, "log-backend", "", "revision log: badger or sqlite")
	flags.StringVar(&g.author, "author", "", `commit author, e.g. "Jane Doe <jane@example.com>"`)
	flags.StringVar(&g.configPath, "config", "", "config file (json or yaml)")
	flags.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&g.server, "server", "", "talk to a vff server at this URL instead of a local repository")

	rootCmd.AddCommand(
		newInitCmd(g),
		newAddCmd(g),
		newRmCmd(g),
		newLogCmd(g),
		newShowCmd(g),
		newDiffCmd(g),
		newStatsCmd(g),
		newWatchCmd(g),
		newServeCmd(g),
	)
	return rootCmd
}

// load reads the config file and applies flag overrides.
func (g *globals) load(cmd *cobra.Command) error {
	path := g.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if g.repo != "" {
		cfg.Repository.Root = g.repo
	}
	if g.logBackend != "" {
		cfg.Repository.Log = g.logBackend
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	} else if cmd.Name() != "serve" && cmd.Name() != "watch" {
		// One-shot commands only report problems.
		cfg.LogLevel = "warn"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	g.cfg = cfg
	g.logger = logger
	return nil
}

func (g *globals) open(ctx context.Context) (store, error) {
	if g.server != "" {
		return client.New(g.server), nil
	}
	return g.openLocal(ctx)
}

func (g *globals) openLocal(ctx context.Context) (*backend.Repository, error) {
	repo, err := backend.Open(ctx, backend.OptionsFromConfig(g.cfg.Repository), g.logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", g.cfg.Repository.Root, err)
	}
	return repo, nil
}

// requireAuthor returns the --author flag, which every write needs.
func (g *globals) requireAuthor() (string, error) {
	if g.author == "" {
		return "", fmt.Errorf("--author is required")
	}
	return g.author, nil
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "vff:", err)
		os.Exit(1)
	}
}
