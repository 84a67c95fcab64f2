package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/manifest"
)

// promptChooser answers pipeline choices with numbered menus. A single
// candidate is taken without asking.
type promptChooser struct {
	reader *bufio.Reader
	w      io.Writer
}

func newPromptChooser(r io.Reader, w io.Writer) *promptChooser {
	return &promptChooser{reader: bufio.NewReader(r), w: w}
}

func (c *promptChooser) ChooseEnvironment(ctx context.Context, envs []config.Environment) (config.Environment, error) {
	items := make([]string, len(envs))
	for i, e := range envs {
		items[i] = fmt.Sprintf("%s (%s) %s", e.Name, e.Version, e.Root)
	}
	idx, err := c.selectFromList(ctx, "Select environment:", items)
	if err != nil {
		return config.Environment{}, err
	}
	return envs[idx], nil
}

func (c *promptChooser) ChooseVersion(ctx context.Context, def *manifest.Definition, candidates []manifest.Version) (manifest.Version, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	items := make([]string, len(candidates))
	for i, v := range candidates {
		items[i] = fmt.Sprintf("%s [%s]", v.Name, v.Type)
	}
	idx, err := c.selectFromList(ctx, fmt.Sprintf("Select version of %s:", def.Name), items)
	if err != nil {
		return manifest.Version{}, err
	}
	return candidates[idx], nil
}

// selectFromList presents a numbered list and returns the selected index.
// An empty answer picks the first item.
func (c *promptChooser) selectFromList(ctx context.Context, prompt string, items []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fmt.Fprintf(c.w, "\n%s\n", prompt)
	for i, item := range items {
		fmt.Fprintf(c.w, "  %d) %s\n", i+1, item)
	}
	fmt.Fprintf(c.w, "Enter number [1-%d]: ", len(items))

	line, err := c.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return 0, fmt.Errorf("reading selection: %w", err)
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return 0, nil
	}
	num, err := strconv.Atoi(answer)
	if err != nil || num < 1 || num > len(items) {
		return 0, fmt.Errorf("invalid selection %q: choose 1-%d", answer, len(items))
	}
	return num - 1, nil
}
