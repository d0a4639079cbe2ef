package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/zermelo/internal/backends"
	"github.com/roach88/zermelo/internal/filter"
	"github.com/roach88/zermelo/internal/harness"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// QueryOptions holds flags for the query and explain commands.
type QueryOptions struct {
	StoreOptions
	Class   string
	Scope   string
	Steps   []string
	Count   bool
	Records bool
}

// QueryResult is the output of the query command.
type QueryResult struct {
	Backend string          `json:"backend"`
	Class   string          `json:"class"`
	IDs     []string        `json:"ids,omitempty"`
	Count   int             `json:"count"`
	Records []RecordPayload `json:"records,omitempty"`
}

// RecordPayload is one loaded record in encoded form.
type RecordPayload struct {
	ID    string            `json:"id"`
	Attrs map[string]string `json:"attrs"`
}

// ExplainResult is the output of the explain command.
type ExplainResult struct {
	Class string `json:"class"`
	SQL   string `json:"sql"`
}

const stepHelp = `Steps are applied in order:
  intersect:a=b,c=d          keep records matching every predicate
  union:a=b                  add records matching the predicates
  diff:a=b                   drop records matching the predicates
  intersect:@rank=0..9       keep records ranked 0 to 9 by score (open: @rank=3..)
  union:@score=1.5..4        add records scored between 1.5 and 4
  diff:@rank=0..2:desc       rank in descending score order
  sort:name[:desc]           order the result`

func addQueryFlags(cmd *cobra.Command, opts *QueryOptions) {
	cmd.Flags().StringVar(&opts.Class, "class", "", "record class to query (required)")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "restrict to an association, as Class/id/association")
	cmd.Flags().StringArrayVar(&opts.Steps, "step", nil, "chain step (repeatable)")
	_ = cmd.MarkFlagRequired("class")
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Resolve a chain against a store",
		Long: `Build a chain from --step flags and resolve it against a store.

Prints the matching ids, their count with --count, or the loaded records
with --records.

` + stepHelp + `

Example:
  zermelo query --db ./zoo.db --schema ./schema --class Example --step intersect:active=true
  zermelo query --db ./zoo.db --schema ./schema --class Child --scope Example/1/children --step sort:name`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	addStoreFlags(cmd, &opts.StoreOptions, "series")
	addQueryFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print only the number of matches")
	cmd.Flags().BoolVar(&opts.Records, "records", false, "load and print the matching records")
	cmd.MarkFlagsMutuallyExclusive("count", "records")

	return cmd
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the SQL a chain synthesizes",
		Long: `Print the SQL query the series backend synthesizes for a chain.

A scoped chain reads its owner's id list first, so explain needs the store.

` + stepHelp + `

Example:
  zermelo explain --db ./zoo.db --schema ./schema --class Example --step intersect:active=true --step sort:name`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, cmd)
		},
	}

	addStoreFlags(cmd, &opts.StoreOptions, "series")
	addQueryFlags(cmd, opts)

	return cmd
}

// query converts the flags to a harness query.
func (o *QueryOptions) query() (harness.Query, error) {
	q := harness.Query{Name: "cli", Class: o.Class, Scope: o.Scope}
	for _, text := range o.Steps {
		s, err := harness.ParseStep(text)
		if err != nil {
			return harness.Query{}, err
		}
		q.Steps = append(q.Steps, s)
	}
	return q, nil
}

// chain opens the store and builds the chain the flags describe. The
// caller closes the returned handle.
func (o *QueryOptions) chain(f *OutputFormatter) (*backends.Handle, *filter.Chain, error) {
	q, err := o.query()
	if err != nil {
		return nil, nil, f.Fail(ExitCommandError, ErrCodeQuery, "invalid --step", err)
	}

	h, err := openStore(&o.StoreOptions, f)
	if err != nil {
		return nil, nil, err
	}

	chain, err := harness.Chain(h, q)
	if err == nil {
		err = chain.Err()
	}
	if err != nil {
		_ = h.Close()
		return nil, nil, f.Fail(ExitCommandError, ErrCodeQuery, "invalid query", err)
	}
	f.VerboseLog("Resolving %s over %d step(s) on %s", o.Class, len(q.Steps), h.Kind)
	return h, chain, nil
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) (err error) {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	h, chain, err := opts.chain(f)
	if err != nil {
		return err
	}
	defer func() { err = closeStore(h, f, err) }()

	result := QueryResult{Backend: string(h.Kind), Class: opts.Class}
	switch {
	case opts.Count:
		result.Count, err = chain.Count(ctx)
	case opts.Records:
		var recs []*record.Record
		if recs, err = chain.All(ctx); err == nil {
			for _, rec := range recs {
				result.Records = append(result.Records, payload(rec))
			}
			result.Count = len(recs)
		}
	default:
		if result.IDs, err = chain.IDs(ctx); err == nil {
			result.Count = len(result.IDs)
		}
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeQuery, "query failed", err)
	}

	if f.JSON() {
		return f.Success(result)
	}
	return outputQueryText(f, opts, result)
}

func outputQueryText(f *OutputFormatter, opts *QueryOptions, result QueryResult) error {
	w := f.Writer
	switch {
	case opts.Count:
		fmt.Fprintln(w, result.Count)
	case opts.Records:
		for _, rec := range result.Records {
			fmt.Fprintln(w, formatRecord(opts.Class, rec))
		}
	default:
		for _, id := range result.IDs {
			fmt.Fprintln(w, id)
		}
	}
	f.VerboseLog("%d match(es)", result.Count)
	return nil
}

// payload encodes the declared attributes of rec. Null attributes are
// left out.
func payload(rec *record.Record) RecordPayload {
	p := RecordPayload{ID: rec.ID(), Attrs: map[string]string{}}
	for _, attr := range rec.Class().Attributes {
		v := rec.Get(attr.Name)
		if value.IsNull(v) {
			continue
		}
		p.Attrs[attr.Name] = value.Encode(v)
	}
	return p
}

// formatRecord renders a record as "Class/id name=value ..." in attribute
// name order.
func formatRecord(class string, p RecordPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s", class, p.ID)
	for _, name := range slices.Sorted(maps.Keys(p.Attrs)) {
		fmt.Fprintf(&b, " %s=%q", name, p.Attrs[name])
	}
	return b.String()
}

func runExplain(opts *QueryOptions, cmd *cobra.Command) (err error) {
	f := newFormatter(opts.RootOptions, cmd)

	h, chain, err := opts.chain(f)
	if err != nil {
		return err
	}
	defer func() { err = closeStore(h, f, err) }()

	sql, err := h.Explain(cmd.Context(), chain.Query())
	if errors.Is(err, backends.ErrExplainUnsupported) {
		return f.Fail(ExitCommandError, ErrCodeUnsupported, fmt.Sprintf("explain needs the series backend, not %s", h.Kind), nil)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeQuery, "explain failed", err)
	}

	if f.JSON() {
		return f.Success(ExplainResult{Class: opts.Class, SQL: sql})
	}
	return f.Success(sql)
}
