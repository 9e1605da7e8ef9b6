package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vff/internal/api"
	"vff/internal/watch"
)

func newInitCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := g.openLocal(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s repository in %s\n",
				g.cfg.Repository.Log, g.cfg.Repository.Root)
			return nil
		},
	}
}

func newAddCmd(g *globals) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "add <path> <file|->",
		Short: "Record the content of file as a new revision of path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			author, err := g.requireAuthor()
			if err != nil {
				return err
			}
			content, err := readInput(cmd, args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}

			repo, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			rev, err := repo.AddRevision(cmd.Context(), content, args[0], message, author)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rev.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "revision message")
	return cmd
}

func newRmCmd(g *globals) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Mark a document as deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			author, err := g.requireAuthor()
			if err != nil {
				return err
			}

			repo, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			rev, err := repo.DelDocument(cmd.Context(), args[0], message, author)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rev.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "revision message")
	return cmd
}

func newLogCmd(g *globals) *cobra.Command {
	var count, offset int

	cmd := &cobra.Command{
		Use:   "log <path>",
		Short: "List revisions of a document, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			revs, err := repo.ListRevisions(cmd.Context(), args[0], count, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			for _, rev := range revs {
				fmt.Fprintf(out, "revision %s", yellow(rev.ID))
				if rev.Tombstone {
					fmt.Fprintf(out, " %s", red("(deleted)"))
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Author: %s\n", rev.Author)
				fmt.Fprintf(out, "Date:   %s\n", rev.Timestamp.Local().Format(time.RFC1123Z))
				if rev.Message != "" {
					fmt.Fprintf(out, "\n    %s\n", strings.ReplaceAll(rev.Message, "\n", "\n    "))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of revisions to show (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of recent revisions to skip")
	return cmd
}

func newShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <path> [revision]",
		Short: "Print a revision of a document (latest by default)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 2 {
				id = args[1]
			}

			repo, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			text, err := repo.GetRevision(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newDiffCmd(g *globals) *cobra.Command {
	var stat bool

	cmd := &cobra.Command{
		Use:   "diff <path> <revision1> <revision2>",
		Short: "Show the unified diff between two revisions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			text, err := repo.GetDiff(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}

			if stat {
				added, removed := diffStat(text)
				fmt.Fprintf(cmd.OutOrStdout(), "%d insertions(+), %d deletions(-)\n", added, removed)
				return nil
			}
			printColoredDiff(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stat, "stat", false, "only print the number of changed lines")
	return cmd
}

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show content store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			st, err := repo.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "log:      %s\n", st.Log)
			fmt.Fprintf(out, "encoding: %s\n", st.Encoding)
			fmt.Fprintf(out, "blobs:    %d\n", st.Content.Blobs)
			fmt.Fprintf(out, "bytes:    %d\n", st.Content.Bytes)
			return nil
		},
	}
}

func newWatchCmd(g *globals) *cobra.Command {
	var (
		sync   bool
		ignore []string
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Commit every change to files under dir until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			author, err := g.requireAuthor()
			if err != nil {
				return err
			}

			repo, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			w, err := watch.New(args[0], repo, watch.Options{
				Author:     author,
				IgnoreDirs: ignore,
				Logger:     g.logger.Logger,
			})
			if err != nil {
				return err
			}

			if sync {
				if err := w.Sync(cmd.Context()); err != nil {
					w.Close()
					return fmt.Errorf("initial sync: %w", err)
				}
			}
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", true, "commit files that changed since the last run before watching")
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "additional directory names to skip")
	return cmd
}

func newServeCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := g.openLocal(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			if addr == "" {
				addr = fmt.Sprintf("%s:%d", g.cfg.Server.Host, g.cfg.Server.Port)
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(repo, g.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-cmd.Context().Done()
				srv.Close()
			}()

			g.logger.Info("starting server", zap.String("address", addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func printColoredDiff(out io.Writer, text string) {
	// Create color objects
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)
	bold := color.New(color.Bold)

	inHunk := false
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}

		switch {
		case !inHunk && !strings.HasPrefix(line, "@@"):
			bold.Fprint(out, line)
		case strings.HasPrefix(line, "@@"):
			inHunk = true
			header.Fprint(out, line)
		case strings.HasPrefix(line, "+"):
			added.Fprint(out, line)
		case strings.HasPrefix(line, "-"):
			removed.Fprint(out, line)
		default:
			fmt.Fprint(out, line)
		}
	}
}

// diffStat counts changed lines of a unified diff. Only the lines before
// the first hunk header are file labels; inside a hunk "---" is a removed
// "--" line.
func diffStat(text string) (added, removed int) {
	inHunk := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
		case !inHunk:
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}
