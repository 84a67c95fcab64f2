package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/branding"
	"github.com/quickmod/quickmod/internal/config"
)

var (
	versionShort bool
	versionJSON  bool
)

// buildInfo is what `version --json` reports: the binary and where it keeps
// its state.
type buildInfo struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	Date        string `json:"date"`
	Module      string `json:"module"`
	ConfigFile  string `json:"configFile"`
	MetadataDir string `json:"metadataDir"`
	StagingDir  string `json:"stagingDir"`
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print version number only")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version and state locations as JSON")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if versionShort {
			fmt.Fprintln(out, buildVersion)
			return nil
		}
		if !versionJSON {
			fmt.Fprintf(out, "%s %s (commit %s, built %s)\n", branding.CLIName(), buildVersion, buildCommit, buildDate)
			return nil
		}

		settings, err := config.Current()
		if err != nil {
			return err
		}
		return printJSON(cmd, buildInfo{
			Version:     buildVersion,
			Commit:      buildCommit,
			Date:        buildDate,
			Module:      branding.GoModule(),
			ConfigFile:  config.FilePath(),
			MetadataDir: settings.MetadataDir,
			StagingDir:  settings.StagingDir,
		})
	},
}

