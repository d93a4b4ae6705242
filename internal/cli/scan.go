package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkgscan/pkgscan/pkg/fetch"
	"github.com/pkgscan/pkgscan/pkg/license"
	"github.com/pkgscan/pkgscan/pkg/pyproject"
	"github.com/pkgscan/pkgscan/pkg/registry"
	"github.com/pkgscan/pkgscan/pkg/scan"
)

// scanOpts holds the command-line flags for the scan command.
type scanOpts struct {
	output  string // root directory for generated package directories
	noCache bool   // disable the metadata cache entirely
	refresh bool   // bypass cached metadata, refreshing entries
	corpus  string // directory of reference license texts
	python  string // interpreter used for build-backend hooks
	yes     bool   // overwrite existing package directories without asking
}

// scanCommand creates the scan command that generates package descriptors.
func (c *CLI) scanCommand() *cobra.Command {
	opts := scanOpts{output: defaultOutputDir}

	cmd := &cobra.Command{
		Use:   "scan <package>...",
		Short: "Generate package descriptors for PyPI packages",
		Long: `Generate Buildroot package descriptors for the given PyPI packages and
everything they transitively require at runtime.

Each generated package directory holds a .mk recipe, a .hash digest
manifest, and a Config.in stanza. Packages whose directory already exists
are skipped unless confirmed interactively or forced with --yes.

Examples:
  pkgscan scan requests                       # One package and its closure
  pkgscan scan flask click -o ./output        # Several seeds, custom output
  pkgscan scan requests --license-corpus ./licenses`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runScan(cmd.Context(), &opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, "output directory for package descriptors")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the registry metadata cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached metadata")
	cmd.Flags().StringVar(&opts.corpus, "license-corpus", "", "directory of reference license texts for full-text matching")
	cmd.Flags().StringVar(&opts.python, "python", "", "python interpreter for build-backend hooks (default python3)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "overwrite existing package directories without asking")

	return cmd
}

// runScan wires the pipeline together and executes it.
func (c *CLI) runScan(ctx context.Context, opts *scanOpts, names []string) error {
	corpus := opts.corpus
	if corpus == "" {
		corpus = os.Getenv("PKGSCAN_LICENSE_CORPUS")
	}

	backend := newCache(opts.noCache)
	defer backend.Close()

	client := registry.NewClient(backend)

	confirm := confirmOverwrite
	if opts.yes {
		confirm = func(string) bool { return true }
	}

	scanner := &scan.Scanner{
		Registry:   client,
		Fetcher:    fetch.New(client, c.Logger),
		Invoker:    &pyproject.Invoker{Python: opts.python},
		Classifier: license.New(corpus, c.Logger),
		Confirm:    confirm,
		Logger:     c.Logger,
		OutputRoot: opts.output,
		Refresh:    opts.refresh,
	}

	printInfo("Scanning %s", StyleHighlight.Render(strings.Join(names, ", ")))

	prog := newProgress(c.Logger)
	stats, err := scanner.Run(ctx, names)
	if err != nil {
		printError("Scan aborted: %v", err)
		return err
	}
	prog.done(fmt.Sprintf("Generated %d packages", stats.Emitted))

	printSuccess("Wrote %d package directories", stats.Emitted)
	printStats(stats.Scanned, stats.Emitted, stats.Skipped)
	printFile(opts.output)

	if stats.Skipped > 0 {
		printWarning("%d packages were skipped, see the log above", stats.Skipped)
	}
	return nil
}
