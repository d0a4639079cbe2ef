package harness

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/zermelo/internal/backends"
	"github.com/roach88/zermelo/internal/filter"
	"github.com/roach88/zermelo/internal/logging"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/schema"
	"github.com/roach88/zermelo/internal/testutil"
)

// Options configures Run.
type Options struct {
	Logger *slog.Logger

	// Backends defaults to every backend family.
	Backends []backends.Kind
}

// Run executes a scenario against every backend and returns the result.
//
// Each backend gets a fresh in-memory store with sequential ids and a
// deterministic clock, so ids assigned to fixtures without one agree across
// backends. An error is returned only when the scenario cannot run at all;
// failed expectations are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	logger := logging.Component(opts.Logger, "harness")
	kinds := opts.Backends
	if len(kinds) == 0 {
		kinds = backends.Kinds
	}

	reg, err := schema.Load(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	outcomes := make([][]Outcome, len(scenario.Queries))
	for _, kind := range kinds {
		if err := runBackend(ctx, kind, reg, scenario, outcomes, opts.Logger); err != nil {
			return nil, fmt.Errorf("scenario %s on %s: %w", scenario.Name, kind, err)
		}
	}

	result := NewResult(scenario.Name)
	for i, q := range scenario.Queries {
		result.Queries = append(result.Queries, QueryResult{Name: q.Name, Outcomes: outcomes[i]})
		for _, msg := range checkQuery(q, outcomes[i]) {
			result.AddError(fmt.Sprintf("%s: %s", q.Name, msg))
		}
	}

	logger.DebugContext(ctx, "scenario finished", "scenario", scenario.Name, "pass", result.Pass, "errors", len(result.Errors))
	return result, nil
}

func runBackend(ctx context.Context, kind backends.Kind, reg *record.Registry, scenario *Scenario, outcomes [][]Outcome, logger *slog.Logger) error {
	h, err := backends.Open(kind, "", reg, backends.Options{
		Logger: logger,
		IDs:    testutil.NewSequentialIDs(),
		Clock:  testutil.NewDeterministicClock(),
	})
	if err != nil {
		return err
	}
	defer h.Close()

	if err := Seed(ctx, h, &scenario.Fixtures); err != nil {
		return err
	}
	for i, q := range scenario.Queries {
		outcomes[i] = append(outcomes[i], Resolve(ctx, h, q))
	}
	return nil
}

// Seed saves the fixture records and then applies the links.
func Seed(ctx context.Context, h *backends.Handle, f *Fixtures) error {
	reg := h.Registry()
	for i, rf := range f.Records {
		class, err := reg.Lookup(rf.Class)
		if err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
		rec := record.New(class, rf.ID)
		if err := rec.SetAll(rf.Attrs); err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
		if err := h.Save(ctx, rec); err != nil {
			return fmt.Errorf("records[%d]: save %s: %w", i, rf.Class, err)
		}
	}

	for i, lf := range f.Links {
		if err := link(ctx, h, lf); err != nil {
			return fmt.Errorf("links[%d]: %w", i, err)
		}
	}
	return nil
}

func link(ctx context.Context, h *backends.Handle, lf LinkFixture) error {
	className, id, err := ParseOwner(lf.Owner)
	if err != nil {
		return err
	}
	reg := h.Registry()
	ownerClass, err := reg.Lookup(className)
	if err != nil {
		return err
	}
	owner, err := h.Load(ctx, ownerClass, id)
	if err != nil {
		return err
	}
	if owner == nil {
		return &record.RecordNotFoundError{Class: className, ID: id}
	}

	target, _, err := reg.Target(ownerClass, lf.Association)
	if err != nil {
		return err
	}
	coll, err := h.HasMany(owner, lf.Association)
	if err != nil {
		return err
	}

	children := make([]*record.Record, 0, len(lf.IDs))
	for _, cid := range lf.IDs {
		child, err := h.Load(ctx, target, cid)
		if err != nil {
			return err
		}
		if child == nil {
			return &record.RecordNotFoundError{Class: target.Name, ID: cid}
		}
		children = append(children, child)
	}
	return coll.Add(ctx, children...)
}

// Chain builds the chain a query describes on h.
func Chain(h *backends.Handle, q Query) (*filter.Chain, error) {
	reg := h.Registry()
	class, err := reg.Lookup(q.Class)
	if err != nil {
		return nil, err
	}
	if q.Scope == "" {
		return Apply(h.Filter(class), q.Steps), nil
	}

	ownerName, id, assoc, err := ParseScope(q.Scope)
	if err != nil {
		return nil, err
	}
	ownerClass, err := reg.Lookup(ownerName)
	if err != nil {
		return nil, err
	}
	target, _, err := reg.Target(ownerClass, assoc)
	if err != nil {
		return nil, err
	}
	if target != class {
		return nil, fmt.Errorf("scope %s holds %s records, not %s", q.Scope, target.Name, class.Name)
	}

	// an owner that was never saved scopes to nothing
	coll, err := h.HasMany(record.New(ownerClass, id), assoc)
	if err != nil {
		return nil, err
	}
	return Apply(coll.Filter(), q.Steps), nil
}

// Resolve builds and resolves q on h.
func Resolve(ctx context.Context, h *backends.Handle, q Query) Outcome {
	out := Outcome{Backend: string(h.Kind)}
	fail := func(err error) Outcome {
		out.Err = err.Error()
		out.IDs, out.Count, out.SQL = nil, 0, ""
		return out
	}

	chain, err := Chain(h, q)
	if err != nil {
		return fail(err)
	}
	if err := chain.Err(); err != nil {
		return fail(err)
	}

	if out.IDs, err = chain.IDs(ctx); err != nil {
		return fail(err)
	}
	if out.Count, err = chain.Count(ctx); err != nil {
		return fail(err)
	}
	if h.Kind == backends.Series {
		if out.SQL, err = h.Explain(ctx, chain.Query()); err != nil {
			return fail(err)
		}
	}
	return out
}

// checkQuery compares each outcome with the expectation and with the
// first backend's outcome.
func checkQuery(q Query, outcomes []Outcome) []string {
	ordered := q.Sorts()
	if q.Expect.Ordered != nil {
		ordered = *q.Expect.Ordered
	}

	var msgs []string
	for _, o := range outcomes {
		if q.Expect.Error != "" {
			if !strings.Contains(o.Err, q.Expect.Error) {
				msgs = append(msgs, fmt.Sprintf("%s: expected error containing %q, got %q", o.Backend, q.Expect.Error, o.Err))
			}
			continue
		}
		if o.Err != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", o.Backend, o.Err))
			continue
		}
		if q.Expect.IDs != nil && !sameIDs(q.Expect.IDs, o.IDs, ordered) {
			msgs = append(msgs, fmt.Sprintf("%s: expected ids %v, got %v", o.Backend, q.Expect.IDs, o.IDs))
		}
		if q.Expect.Count != nil && *q.Expect.Count != o.Count {
			msgs = append(msgs, fmt.Sprintf("%s: expected count %d, got %d", o.Backend, *q.Expect.Count, o.Count))
		}
		if len(o.IDs) != o.Count {
			msgs = append(msgs, fmt.Sprintf("%s: count %d disagrees with %d ids", o.Backend, o.Count, len(o.IDs)))
		}
	}

	if len(outcomes) < 2 || q.Expect.Error != "" {
		return msgs
	}
	first := outcomes[0]
	for _, o := range outcomes[1:] {
		if (first.Err == "") != (o.Err == "") {
			msgs = append(msgs, fmt.Sprintf("backends disagree: %s error %q, %s error %q", first.Backend, first.Err, o.Backend, o.Err))
			continue
		}
		if !sameIDs(first.IDs, o.IDs, ordered) {
			msgs = append(msgs, fmt.Sprintf("backends disagree: %s ids %v, %s ids %v", first.Backend, first.IDs, o.Backend, o.IDs))
		}
	}
	return msgs
}

func sameIDs(want, got []string, ordered bool) bool {
	if len(want) != len(got) {
		return false
	}
	if !ordered {
		want, got = slices.Clone(want), slices.Clone(got)
		slices.Sort(want)
		slices.Sort(got)
	}
	return slices.Equal(want, got)
}
