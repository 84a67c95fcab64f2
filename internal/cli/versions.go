package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/manifest"
	"github.com/quickmod/quickmod/internal/resolver"
)

var versionsFor string

var versionsCmd = &cobra.Command{
	Use:   "versions <uid>",
	Short: "List a mod's versions",
	Long: `List a mod's versions, newest first when version names are semantic versions.

Use --for to show only versions compatible with a game version.`,
	Args: cobra.ExactArgs(1),
	RunE: runVersions,
}

func init() {
	versionsCmd.Flags().StringVar(&versionsFor, "for", "", "Only versions compatible with this game version")
	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
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

	versions := def.Versions
	if versionsFor != "" {
		versions = resolver.Resolve(def, versionsFor)
		if len(versions) == 0 {
			return resolver.Unresolvable(def, versionsFor)
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VERSION\tTYPE\tCOMPATIBLE\tLINKS")
	for _, v := range sortVersions(versions) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", v.Name, v.Type, strings.Join(v.Compatible, ", "), len(v.Links))
	}
	return w.Flush()
}

// sortVersions orders versions newest first when every name parses as a
// semantic version; otherwise declaration order is kept.
func sortVersions(versions []manifest.Version) []manifest.Version {
	parsed := make([]*semver.Version, len(versions))
	for i, v := range versions {
		sv, err := semver.NewVersion(v.Name)
		if err != nil {
			return versions
		}
		parsed[i] = sv
	}

	idx := make([]int, len(versions))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return parsed[idx[a]].GreaterThan(parsed[idx[b]]) })

	out := make([]manifest.Version, len(versions))
	for i, j := range idx {
		out[i] = versions[j]
	}
	return out
}
