// Command tempo-migrate rewrites session files from the legacy schema where
// the project field held a task name. It is a one-shot offline tool; stop the
// server before running it against a live data directory.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tempo/internal/catalog"
	"tempo/internal/period"
	"tempo/internal/storage"
)

var (
	dataDir  string
	timezone string
	dryRun   bool
)

var rootCmd = &cobra.Command{
	Use:   "tempo-migrate",
	Short: "Migrate legacy session files to the project/task schema",
	Long: `Resolves sessions whose project field holds a task name against the
project catalog: a task claimed by exactly one project moves under that
project, an ambiguous task maps to "Unknown", and an unmatched one falls back
to "General". Sessions already carrying both fields pass through untouched.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory holding data.json and projects.json")
	rootCmd.Flags().StringVar(&timezone, "timezone", period.DefaultZone, "dashboard timezone for timestamp resolution")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	loc, err := period.LoadZone(timezone)
	if err != nil {
		return err
	}

	store, err := storage.New(dataDir, loc)
	if err != nil {
		return err
	}

	sessions, err := store.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	projects, err := store.LoadProjects(ctx)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}

	migrated, stats := catalog.New(projects).MigrateLegacy(sessions)

	fmt.Fprintf(cmd.OutOrStdout(), "sessions:  %d\n", len(sessions))
	fmt.Fprintf(cmd.OutOrStdout(), "untouched: %d\n", stats.Untouched)
	fmt.Fprintf(cmd.OutOrStdout(), "resolved:  %d\n", stats.Resolved)
	fmt.Fprintf(cmd.OutOrStdout(), "ambiguous: %d\n", stats.Ambiguous)
	fmt.Fprintf(cmd.OutOrStdout(), "unmatched: %d\n", stats.Unmatched)

	if dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "dry run, no files written")
		return nil
	}

	if err := store.SaveSessions(ctx, migrated); err != nil {
		return fmt.Errorf("write migrated sessions: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migration written")
	return nil
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
