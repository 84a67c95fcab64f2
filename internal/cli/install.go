package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/branding"
	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/download"
	"github.com/quickmod/quickmod/internal/installer"
	"github.com/quickmod/quickmod/internal/logging"
	"github.com/quickmod/quickmod/internal/pipeline"
)

var (
	installEnv string
	installYes bool
)

var installCmd = &cobra.Command{
	Use:   "install <uid...>",
	Short: "Resolve, download and install mods into an environment",
	Long: `Resolve a compatible version of every requested mod for the target
environment, obtain and download its files, and install them into the
directory its type maps to.

Without --yes, versions with more than one compatible candidate and the
environment (when several are configured) are chosen interactively.
Press Ctrl-C to cancel; nothing is installed after cancellation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&installEnv, "env", "e", "", "Target environment name")
	installCmd.Flags().BoolVarP(&installYes, "yes", "y", false, "Choose the first compatible version without prompting")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	settings, err := config.Current()
	if err != nil {
		return err
	}
	envs := settings.Environments
	if len(envs) == 0 {
		return fmt.Errorf("no environments configured; run '%s env add <name> <root> <version>'", branding.CLIName())
	}
	if installEnv != "" {
		env, ok := config.FindEnvironment(envs, installEnv)
		if !ok {
			return fmt.Errorf("environment %q not found", installEnv)
		}
		envs = []config.Environment{env}
	}

	reg, err := openRegistry(settings)
	if err != nil {
		return err
	}
	defer reg.Close()

	var chooser pipeline.Chooser = pipeline.DefaultChooser{}
	if !installYes {
		chooser = newPromptChooser(cmd.InOrStdin(), cmd.OutOrStdout())
	}

	lg := logging.FromContext(cmd.Context())
	client := newClient(settings)
	p := pipeline.New(reg,
		pipeline.WithClient(client),
		pipeline.WithSession(download.NewBrowserSession(client, settings.SessionMaxPages)),
		pipeline.WithInstaller(installer.New(installer.WithLogger(lg))),
		pipeline.WithChooser(chooser),
		pipeline.WithConcurrency(settings.Concurrency),
		pipeline.WithLogger(lg),
		pipeline.WithObserver(func(from, to pipeline.State) {
			lg.Debug("stage", "from", from, "to", to)
		}),
	)

	report, err := p.Run(cmd.Context(), envs, args)
	if report != nil {
		renderReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return err
	}

	if n := report.Count(pipeline.Installed); n != len(report.Results) {
		return fmt.Errorf("%d of %d mods were not installed", len(report.Results)-n, len(report.Results))
	}
	return nil
}
