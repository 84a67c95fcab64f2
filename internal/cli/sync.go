package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/branding"
	"github.com/quickmod/quickmod/internal/catalog"
	"github.com/quickmod/quickmod/internal/config"
)

var syncCmd = &cobra.Command{
	Use:   "sync [source...]",
	Short: "Register and sync mod definition sources",
	Long: `Fetch mod definitions from local paths, file:// URLs or http(s) URLs,
validate them and merge them into the local registry.

Sources given as arguments are registered so later runs without
arguments re-sync them. A failing source does not stop the others.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	settings, err := config.Current()
	if err != nil {
		return err
	}
	reg, err := openRegistry(settings)
	if err != nil {
		return err
	}
	defer reg.Close()

	syn, err := newSynchronizer(reg, settings)
	if err != nil {
		return err
	}

	var report catalog.Report
	if len(args) > 0 {
		report = syn.Register(cmd.Context(), args...)
	} else {
		if len(syn.Sources()) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No sources registered. Run '%s sync <path-or-url>'.\n", branding.CLIName())
			return nil
		}
		report = syn.SyncAll(cmd.Context())
	}

	printSyncReport(cmd, report)

	if failed := len(report.Failures()); failed > 0 {
		return fmt.Errorf("%d of %d sources failed to sync", failed, len(report.Outcomes))
	}
	return nil
}

func printSyncReport(cmd *cobra.Command, report catalog.Report) {
	out := cmd.OutOrStdout()
	for _, o := range report.Outcomes {
		if o.Status == catalog.StatusFailed {
			fmt.Fprintf(out, "  %s  %s\n      %v\n", statusStyle(false).Render("failed   "), o.Source, o.Err)
			continue
		}
		fmt.Fprintf(out, "  %s  %s (%s)\n", statusStyle(true).Render(fmt.Sprintf("%-9s", o.Status)), o.UID, o.Source)
	}
	fmt.Fprintf(out, "\n%d synced, %d failed\n", report.Succeeded(), len(report.Failures()))
}
