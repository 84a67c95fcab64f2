package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/branding"
	"github.com/quickmod/quickmod/internal/config"
)

func init() {
	envCmd.AddCommand(envListCmd)
	envCmd.AddCommand(envAddCmd)
	envCmd.AddCommand(envRemoveCmd)
	rootCmd.AddCommand(envCmd)
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage target game instances",
	Long: `Manage the game instances mods are installed into. Each environment has
a name, a root directory and the game version it runs.`,
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show configured environments",
	RunE: func(cmd *cobra.Command, args []string) error {
		envs, err := config.Environments()
		if err != nil {
			return err
		}
		if len(envs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No environments configured. Run '%s env add <name> <root> <version>'.\n", branding.CLIName())
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tROOT")
		for _, e := range envs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.Version, e.Root)
		}
		return w.Flush()
	},
}

var envAddCmd = &cobra.Command{
	Use:   "add <name> <root> <version>",
	Short: "Add or replace an environment",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[1], err)
		}
		env := config.Environment{Name: args[0], Root: root, Version: args[2]}
		if err := config.AddEnvironment(env); err != nil {
			return fmt.Errorf("adding environment: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s at %s)\n", env.Name, env.Version, env.Root)
		return nil
	},
}

var envRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.RemoveEnvironment(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}
