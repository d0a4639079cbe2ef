package cli

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/zermelo/internal/backends"
	"github.com/roach88/zermelo/internal/schema"
)

// StoreOptions holds the flags naming a schema and a store.
type StoreOptions struct {
	*RootOptions
	Backend  string
	Database string
	Schema   string
}

func addStoreFlags(cmd *cobra.Command, opts *StoreOptions, backend string) {
	cmd.Flags().StringVar(&opts.Backend, "backend", backend, "backend family (sets|series)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the store file (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "directory of CUE class declarations (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("schema")
}

// openStore loads the schema and opens the store the flags name. Failures
// are reported through f.
func openStore(opts *StoreOptions, f *OutputFormatter) (*backends.Handle, error) {
	kind, err := backends.ParseKind(opts.Backend)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --backend", err)
	}

	if _, err := os.Stat(opts.Schema); errors.Is(err, os.ErrNotExist) {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, "schema directory not found", err)
	}
	reg, err := schema.Load(opts.Schema)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeSchema, "failed to load schema", err)
	}
	f.VerboseLog("Loaded %d class(es) from %s", len(reg.Classes()), opts.Schema)

	h, err := backends.Open(kind, opts.Database, reg, backends.Options{Logger: slog.Default()})
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	return h, nil
}

// closeStore closes h, keeping the first error.
func closeStore(h *backends.Handle, f *OutputFormatter, err error) error {
	closeErr := h.Close()
	if closeErr == nil || err != nil {
		if closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
		return err
	}
	return f.Fail(ExitCommandError, ErrCodeStore, "failed to close store", closeErr)
}
