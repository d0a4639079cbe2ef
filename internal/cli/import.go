package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/zermelo/internal/harness"
)

// ImportResult summarizes an import.
type ImportResult struct {
	Backend  string `json:"backend"`
	Database string `json:"database"`
	Records  int    `json:"records"`
	Links    int    `json:"links"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <fixtures.yaml>",
		Short: "Save fixture records and links into a store",
		Long: `Save the records and links of a fixture file into a store.

The fixture file uses the records/links layout of test scenarios. Records are
saved in order, then every link adds records to a collection association.
Records without an id get a generated one.

Example:
  zermelo import --backend series --db ./zoo.db --schema ./schema zoo.yaml
  zermelo import --backend sets --db ./zoo.sets --schema ./schema zoo.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	addStoreFlags(cmd, opts, "series")

	return cmd
}

func runImport(opts *StoreOptions, path string, cmd *cobra.Command) (err error) {
	f := newFormatter(opts.RootOptions, cmd)

	fixtures, err := harness.LoadFixtures(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeFixtures, "failed to load fixtures", err)
	}

	h, err := openStore(opts, f)
	if err != nil {
		return err
	}
	defer func() { err = closeStore(h, f, err) }()

	if err := harness.Seed(cmd.Context(), h, fixtures); err != nil {
		return f.Fail(ExitFailure, ErrCodeFixtures, "failed to import fixtures", err)
	}

	result := ImportResult{
		Backend:  string(h.Kind),
		Database: opts.Database,
		Records:  len(fixtures.Records),
		Links:    len(fixtures.Links),
	}
	if f.JSON() {
		return f.Success(result)
	}
	return f.Success(fmt.Sprintf("Imported %d record(s) and %d link(s) into %s store %s",
		result.Records, result.Links, result.Backend, result.Database))
}
