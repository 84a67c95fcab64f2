package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/branding"
	"github.com/quickmod/quickmod/internal/catalog"
	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/logging"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	verbose bool
	logger  = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` keeps a local registry of mod definitions in sync with their
sources, resolves which versions fit a game instance, and downloads and
installs them into the instance's mods, coremods, resourcepacks or config
directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// persistentPreRun is assigned in init to avoid an initialization cycle
// between rootCmd and topLevel.
func persistentPreRun(cmd *cobra.Command, args []string) {
	config.Load()

	level := config.Get(config.KeyLogLevel)
	if verbose {
		level = "debug"
	}
	logger = logging.New(cmd.ErrOrStderr(), level)
	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))

	// Skip the hint for commands that manage their own state.
	switch topLevel(cmd).Name() {
	case "sync", "version", "config", "env":
		return
	}
	printStaleHint(cmd)
}

func init() {
	rootCmd.PersistentPreRun = persistentPreRun
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// topLevel returns the child of the root command that cmd belongs to.
func topLevel(cmd *cobra.Command) *cobra.Command {
	for cmd.HasParent() && cmd.Parent() != rootCmd {
		cmd = cmd.Parent()
	}
	return cmd
}

// printStaleHint warns when definitions exist but were not synced recently.
// It never touches the network.
func printStaleHint(cmd *cobra.Command) {
	dir := config.Get(config.KeyMetadataDir)
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		return
	}
	if catalog.IsStale(dir, catalog.DefaultMaxAge) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Mod metadata is more than 7 days old. Run '%s sync'.\n", branding.CLIName())
	}
}

// Execute runs the root command with build info injected via ldflags.
// An interrupt cancels the running command's context.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.NewWithOptions(os.Stderr, log.Options{Prefix: branding.CLIName()}).Error(err)
		return err
	}
	return nil
}
