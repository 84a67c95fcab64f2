package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/manifest"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Show a mod definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the stored definition record")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	settings, err := config.Current()
	if err != nil {
		return err
	}
	reg, err := openRegistry(settings)
	if err != nil {
		return err
	}
	defer reg.Close()

	def, ok := reg.Get(args[0])
	if !ok {
		return fmt.Errorf("mod %q is not registered", args[0])
	}

	if showJSON {
		data, err := manifest.Marshal(def)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	printDefinition(cmd, def)
	return nil
}

func printDefinition(cmd *cobra.Command, def *manifest.Definition) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", headerStyle.Render(def.Name), def.UID)
	if def.Description != "" {
		fmt.Fprintf(out, "  %s\n", def.Description)
	}
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(out, "  %-11s %s\n", label+":", value)
		}
	}
	field("Website", def.Website)
	field("Categories", strings.Join(def.Categories, ", "))
	field("Tags", strings.Join(def.Tags, ", "))
	field("Source", def.Source)
	field("Logo", def.Logo)

	if len(def.Versions) == 0 {
		fmt.Fprintln(out, "\n  No versions.")
		return
	}
	fmt.Fprintln(out, "\nVersions:")
	for _, v := range def.Versions {
		fmt.Fprintf(out, "  %s  [%s] for %s\n", v.Name, v.Type.Label(), strings.Join(v.Compatible, ", "))
		for _, l := range v.Links {
			mark := ""
			if l.Interactive {
				mark = " (interactive)"
			}
			fmt.Fprintf(out, "      %s%s\n", l.URL, mark)
		}
	}
}
