package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/config"
)

var unregisterCmd = &cobra.Command{
	Use:   "unregister <uid>",
	Short: "Remove a mod definition and forget its sources",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnregister,
}

func init() {
	rootCmd.AddCommand(unregisterCmd)
}

func runUnregister(cmd *cobra.Command, args []string) error {
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
	if err := syn.Unregister(args[0]); err != nil {
		return fmt.Errorf("unregistering %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}
