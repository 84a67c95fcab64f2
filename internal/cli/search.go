package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/registry"
)

var (
	searchTagFilter      string
	searchCategoryFilter string
	searchJSON           bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search registered mod definitions",
	Long: `Search registered mod definitions by name and description.

The query matches names and descriptions (case-insensitive substring).
Use --tag to require tags (comma-separated, all must match) and
--category to filter by category (substring). Use --categories to list
the known categories.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var searchListCategories bool

func init() {
	searchCmd.Flags().StringVar(&searchTagFilter, "tag", "", "Filter by tags (comma-separated, matches all)")
	searchCmd.Flags().StringVar(&searchCategoryFilter, "category", "", "Filter by category")
	searchCmd.Flags().BoolVar(&searchListCategories, "categories", false, "List known categories and exit")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(searchCmd)
}

// parseTags splits a comma-separated tag filter, dropping blanks.
func parseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(t); tag != "" {
			tags = append(tags, strings.ToLower(tag))
		}
	}
	return tags
}

func runSearch(cmd *cobra.Command, args []string) error {
	settings, err := config.Current()
	if err != nil {
		return err
	}
	reg, err := openRegistry(settings)
	if err != nil {
		return err
	}
	defer reg.Close()

	if searchListCategories {
		for _, c := range reg.Categories() {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	}

	filter := registry.Filter{
		Tags:     parseTags(searchTagFilter),
		Category: searchCategoryFilter,
	}
	if len(args) > 0 {
		filter.Text = args[0]
	}

	entries := toListEntries(reg.Search(filter))
	if len(entries) == 0 {
		msg := "No mods found"
		if filter.Text != "" {
			msg += fmt.Sprintf(" matching %q", filter.Text)
		}
		if searchTagFilter != "" {
			msg += fmt.Sprintf(" with --tag=%s", searchTagFilter)
		}
		if searchCategoryFilter != "" {
			msg += fmt.Sprintf(" with --category=%s", searchCategoryFilter)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg+".")
		return nil
	}

	if searchJSON {
		return printJSON(cmd, entries)
	}
	return printListTable(cmd, entries)
}
