package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/tasksync/internal/config"
	"github.com/randalmurphal/tasksync/internal/db"
	"github.com/randalmurphal/tasksync/internal/lock"
	"github.com/randalmurphal/tasksync/internal/logging"
	"github.com/randalmurphal/tasksync/internal/model"
	"github.com/randalmurphal/tasksync/internal/remote"
	"github.com/randalmurphal/tasksync/internal/synchronizer"
)

func newSyncCmd() *cobra.Command {
	var (
		workspaces   []string
		projects     []string
		kinds        []string
		excludeKinds []string
		archive      bool
		dryRun       bool
		yes          bool
		token        string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync workspaces and projects into the local database",
		Long: `Sync workspaces and projects from the remote work tracker.

Workspaces and projects are selected by remote id or by name. Without
selectors every workspace and every project in it is synced; the
configured sync.workspace is always added to the selection.

Kinds: workspace, user, tag, team, project, task, story, attachment.

Authentication reads the API token from $TASKSYNC_TOKEN (or the variable
named by remote.token_env_var), or from --token.

Examples:
  tasksync sync --dry-run
  tasksync sync -w Marketing -p "Q3 Launch" -y
  tasksync sync -m project -m task
  tasksync sync -x story -x attachment --archive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := config.LoadWithSources(cfgFile)
			if err != nil {
				return err
			}
			cfg := tc.Config
			if lvl := logLevelOverride(); lvl != "" {
				cfg.Log.Level = lvl
			}

			kindSet, err := model.SelectKinds(kinds, excludeKinds)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !dryRun && !yes && isInteractive(cmd.InOrStdin()) {
				_, _ = fmt.Fprintf(out, "Syncing %s into %s.\n", strings.Join(kindSet.Names(), ", "), describeDatabase(cfg.Database))
				ok, err := confirm(cmd.InOrStdin(), out, "Are you sure you wish to continue? [y/N] ")
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			logger, closer := logging.New(cfg.Log)
			defer func() { _ = closer.Close() }()

			apiToken, err := remote.ResolveToken(cfg.Remote, token)
			if err != nil {
				return err
			}
			client, err := remote.NewClient(remote.ConfigFrom(cfg.Remote, apiToken, logger))
			if err != nil {
				return fmt.Errorf("create remote client: %w", err)
			}

			ctx, cancel := SetupSignalHandler()
			defer cancel()

			if !dryRun && !isPostgres(cfg.Database) {
				guard := lock.NewRunGuard(cfg.Database.Path)
				if err := guard.Acquire(); err != nil {
					return err
				}
				defer guard.Release()
			}

			openMirror := db.OpenMirror
			if dryRun {
				openMirror = db.OpenMirrorForRead
			}
			mirror, err := openMirror(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = mirror.Close() }()

			var progress io.Writer
			if !quiet {
				progress = out
			}
			s := synchronizer.New(client, mirror, synchronizer.Options{
				Workspaces:       workspaces,
				Projects:         projects,
				DefaultWorkspace: cfg.Sync.Workspace,
				Kinds:            kindSet,
				Commit:           !dryRun,
				ProcessArchived:  archive || cfg.Sync.ProcessArchived,
				WebhookURL:       cfg.Sync.WebhookURL,
				Delay:            cfg.Sync.RateLimitDelay,
				Out:              progress,
				Logger:           logger,
			})

			res, runErr := s.Run(ctx)
			if res != nil {
				printSummary(out, res)
			}
			return runErr
		},
	}

	cmd.Flags().StringArrayVarP(&workspaces, "workspace", "w", nil, "workspace id or name to sync (repeatable)")
	cmd.Flags().StringArrayVarP(&projects, "project", "p", nil, "project id or name to sync (repeatable)")
	cmd.Flags().StringArrayVarP(&kinds, "kind", "m", nil, "only sync this kind (repeatable)")
	cmd.Flags().StringArrayVarP(&excludeKinds, "exclude-kind", "x", nil, "do not sync this kind (repeatable)")
	cmd.Flags().BoolVarP(&archive, "archive", "a", false, "also sync tasks of archived projects")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "read from the remote without writing to the database")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().StringVar(&token, "token", "", "remote API token (overrides the environment)")

	return cmd
}

func isInteractive(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// confirm prints prompt and reads one answer line. Only y or yes confirms.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	_, _ = fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func isPostgres(cfg config.DatabaseConfig) bool {
	switch cfg.Driver {
	case "postgres", "postgresql", "pg":
		return true
	}
	return false
}

func describeDatabase(cfg config.DatabaseConfig) string {
	if isPostgres(cfg) {
		return fmt.Sprintf("postgres database %s on %s", cfg.Postgres.Database, cfg.Postgres.Host)
	}
	return cfg.Path
}

// printSummary writes the end-of-run counts.
func printSummary(w io.Writer, res *synchronizer.Result) {
	prefix := ""
	if res.DryRun {
		prefix = "[dry-run] "
	}
	verb := "Synced"
	if res.DryRun {
		verb = "Would sync"
	}

	_, _ = fmt.Fprintf(w, "%s%s %d workspaces, %d projects\n", prefix, verb, res.Workspaces, res.Projects)
	for _, k := range model.AllKinds {
		if n := res.Synced[k]; n > 0 {
			_, _ = fmt.Fprintf(w, "%s  %-11s %d\n", prefix, k, n)
		}
	}
	for _, k := range model.AllKinds {
		if n := res.Deleted[k]; n > 0 {
			_, _ = fmt.Fprintf(w, "%sDeleted %d %s rows\n", prefix, n, k)
		}
	}
	if res.EventsProcessed+res.EventsIgnored > 0 {
		_, _ = fmt.Fprintf(w, "%sEvents: %d processed, %d ignored\n", prefix, res.EventsProcessed, res.EventsIgnored)
	}
	if len(res.Errors) > 0 {
		_, _ = fmt.Fprintf(w, "%s%d errors:\n", prefix, len(res.Errors))
		for _, e := range res.Errors {
			_, _ = fmt.Fprintf(w, "%s  %s\n", prefix, e.Error())
		}
	}
}
