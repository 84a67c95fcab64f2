package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/manifest"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered mod definitions",
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

// listEntry represents a definition for display.
type listEntry struct {
	UID        string   `json:"uid"`
	Name       string   `json:"name"`
	Versions   int      `json:"versions"`
	Categories []string `json:"categories,omitempty"`
	Source     string   `json:"source,omitempty"`
}

func toListEntries(defs []*manifest.Definition) []listEntry {
	entries := make([]listEntry, len(defs))
	for i, d := range defs {
		entries[i] = listEntry{
			UID:        d.UID,
			Name:       d.Name,
			Versions:   len(d.Versions),
			Categories: d.Categories,
			Source:     d.Source,
		}
	}
	return entries
}

func runList(cmd *cobra.Command, args []string) error {
	settings, err := config.Current()
	if err != nil {
		return err
	}
	reg, err := openRegistry(settings)
	if err != nil {
		return err
	}
	defer reg.Close()

	entries := toListEntries(reg.All())
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No mod definitions registered yet.")
		return nil
	}

	if listJSON {
		return printJSON(cmd, entries)
	}
	return printListTable(cmd, entries)
}

func printListTable(cmd *cobra.Command, entries []listEntry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "UID\tNAME\tVERSIONS\tCATEGORIES")
	for _, e := range entries {
		cats := strings.Join(e.Categories, ", ")
		if cats == "" {
			cats = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.UID, e.Name, e.Versions, cats)
	}
	return w.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
