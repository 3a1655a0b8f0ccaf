package harness

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/event"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/logger"
	"github.com/objectledge/coral/internal/querysql"
	"github.com/objectledge/coral/internal/results"
	"github.com/objectledge/coral/internal/schema"
	"github.com/objectledge/coral/internal/schemaspec"
	"github.com/objectledge/coral/internal/store"
	"github.com/objectledge/coral/internal/testutil"
)

// Harness is the test execution engine. It holds the per-scenario
// database, schema graph and resources.
type Harness struct {
	store *store.Store
	graph *schema.Graph
	res   *store.Resources
	log   *zap.SugaredLogger

	// ids maps scenario resource names to identifiers, names the reverse.
	ids   map[string]ir.ResourceID
	names map[ir.ResourceID]string
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	log *zap.SugaredLogger
}

// WithLogger sets the logger of the run and of the store, graph and
// compiler it creates.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *runConfig) { c.log = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
// 1. Apply schema files, then the inline schema
// 2. Create resources, checking expected failures
// 3. Apply changes, checking expected failures
// 4. Run queries and check their expectations
//
// The error return is reserved for scenarios that cannot be set up; failed
// expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &runConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	log := logger.Or(cfg.log).With("scenario", scenario.Name)

	st, err := store.Open(":memory:", store.WithLogger(log), store.WithClock(testutil.NewDeterministicClock()))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	hub := event.NewHub(log)
	g, err := schema.Open(ctx, attrtype.NewRegistry(), st, schema.WithHub(hub), schema.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	res := store.NewResources(st, g, querysql.WithSubclassMatching(scenario.MatchSubclasses))
	defer res.Close()

	h := &Harness{
		store: st,
		graph: g,
		res:   res,
		log:   log,
		ids:   make(map[string]ir.ResourceID),
		names: make(map[ir.ResourceID]string),
	}

	if err := h.applySchema(ctx, scenario); err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.createResources(ctx, scenario.Resources, result); err != nil {
		return nil, err
	}
	h.applyChanges(ctx, scenario.Changes, result)
	h.runQueries(ctx, scenario.Queries, result)
	return result, nil
}

func (h *Harness) applySchema(ctx context.Context, scenario *Scenario) error {
	for _, path := range scenario.SchemaFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		if err := h.apply(ctx, string(data), path); err != nil {
			return fmt.Errorf("schema file %s: %w", path, err)
		}
	}
	if scenario.Schema != "" {
		if err := h.apply(ctx, scenario.Schema, scenario.Name+".cue"); err != nil {
			return fmt.Errorf("inline schema: %w", err)
		}
	}
	return nil
}

func (h *Harness) apply(ctx context.Context, src, filename string) error {
	spec, errs := schemaspec.LoadString(src, filename)
	if len(errs) > 0 {
		return errs[0]
	}
	r, err := schemaspec.Apply(ctx, h.graph, spec, h.log)
	if err != nil {
		return err
	}
	h.log.Debugw("schema applied", "source", filename, "classes", r.Classes, "attributes", r.Attributes)
	return nil
}

// createResources creates every resource step. Steps with an Error must
// fail with it; other failures are recorded too, and the step's name stays
// unbound.
func (h *Harness) createResources(ctx context.Context, steps []ResourceStep, result *Result) error {
	for i, step := range steps {
		class, err := h.graph.ResourceClass(step.Class)
		if err != nil {
			if step.Error != "" {
				checkError(result, fmt.Sprintf("resources[%d] %s", i, step.Name), err, step.Error)
				continue
			}
			return fmt.Errorf("resources[%d]: %w", i, err)
		}

		var parent ir.ResourceID
		if step.Parent != "" {
			parent = h.ids[step.Parent]
		}
		values, err := h.convertValues(class, step.Values)
		if err != nil {
			if step.Error != "" {
				checkError(result, fmt.Sprintf("resources[%d] %s", i, step.Name), err, step.Error)
				continue
			}
			return fmt.Errorf("resources[%d]: %w", i, err)
		}

		r, err := h.res.CreateResource(ctx, class, step.Name, parent, values)
		checkError(result, fmt.Sprintf("resources[%d] %s", i, step.Name), err, step.Error)
		if err != nil {
			continue
		}
		h.ids[step.Name] = r.ID()
		h.names[r.ID()] = step.Name
		h.log.Debugw("resource created", "name", step.Name, "class", step.Class, "id", r.ID())
	}
	return nil
}

func (h *Harness) applyChanges(ctx context.Context, steps []ChangeStep, result *Result) {
	for i, step := range steps {
		err := h.apply(ctx, step.Schema, fmt.Sprintf("changes_%d.cue", i))
		checkError(result, fmt.Sprintf("changes[%d]", i), err, step.Error)
	}
}

func (h *Harness) runQueries(ctx context.Context, steps []QueryStep, result *Result) {
	for _, step := range steps {
		trace := h.runQuery(ctx, step)
		result.AddTrace(trace)
		for _, msg := range EvaluateExpect(trace, step.Expect) {
			result.AddError(msg)
		}
		h.log.Debugw("query executed", "query", step.Name, "rows", len(trace.Rows), "error", trace.Error)
	}
}

func (h *Harness) runQuery(ctx context.Context, step QueryStep) QueryTrace {
	trace := QueryTrace{Name: step.Name, Query: step.Query}

	cq, err := h.res.Compile(step.Query)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}
	trace.SQL = cq.SQL

	qr, err := results.Execute(ctx, h.store.DB(), cq, h.res)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}
	trace.Rows = [][]string{}
	for _, row := range qr.Rows() {
		names := make([]string, qr.Width())
		for c := 1; c <= qr.Width(); c++ {
			r, err := row.Get(ctx, c)
			if err != nil {
				trace.Error = err.Error()
				return trace
			}
			names[c-1] = r.Name()
		}
		trace.Rows = append(trace.Rows, names)
	}

	if len(cq.Select) == 0 {
		return trace
	}
	fr, err := results.NewFiltered(qr, cq.Select, h.graph)
	if err != nil {
		trace.Error = err.Error()
		return trace
	}
	trace.Values = [][]string{}
	for _, row := range fr.Rows() {
		vs, err := row.Values(ctx)
		if err != nil {
			trace.Error = err.Error()
			return trace
		}
		formatted := make([]string, len(vs))
		for i, v := range vs {
			formatted[i] = h.format(v)
		}
		trace.Values = append(trace.Values, formatted)
	}
	return trace
}

// checkError compares the outcome of a step with its expected error
// substring, recording a mismatch in result.
func checkError(result *Result, step string, err error, want string) {
	switch {
	case want == "" && err != nil:
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", step, err))
	case want != "" && err == nil:
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got success", step, want))
	case want != "" && !strings.Contains(err.Error(), want):
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got: %v", step, want, err))
	}
}

// convertValues converts YAML-decoded values to the kinds of the attributes
// they are assigned to. Names the class does not know are passed through
// so creation reports them.
func (h *Harness) convertValues(class *schema.ResourceClass, raw map[string]interface{}) (map[string]ir.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]ir.Value, len(raw))
	for name, v := range raw {
		kind := guessKind(v)
		if a, err := class.Attribute(name); err == nil {
			kind = a.Type().Kind()
		}
		val, err := h.convertValue(kind, v)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", name, err)
		}
		out[name] = val
	}
	return out, nil
}

func (h *Harness) convertValue(kind ir.Kind, v interface{}) (ir.Value, error) {
	switch kind {
	case ir.KindRef:
		if name, ok := v.(string); ok {
			id, known := h.ids[name]
			if !known {
				return nil, fmt.Errorf("unknown resource %q", name)
			}
			return ir.Ref(id), nil
		}
	case ir.KindTime:
		switch t := v.(type) {
		case time.Time:
			return ir.NewTime(t), nil
		case string:
			for _, layout := range []string{time.RFC3339, time.DateOnly} {
				if parsed, err := time.Parse(layout, t); err == nil {
					return ir.NewTime(parsed), nil
				}
			}
			return nil, fmt.Errorf("cannot parse time %q", t)
		}
	}
	if f, ok := v.(float64); ok {
		return nil, fmt.Errorf("floats are not supported: %v", f)
	}
	return ir.FromGo(kind, v)
}

func guessKind(v interface{}) ir.Kind {
	switch v.(type) {
	case int, int64:
		return ir.KindInt
	case bool:
		return ir.KindBool
	case time.Time:
		return ir.KindTime
	}
	return ir.KindString
}

// format renders a value for comparison with scenario expectations.
// References render as the scenario name of their target.
func (h *Harness) format(v ir.Value) string {
	switch val := v.(type) {
	case nil, ir.Null:
		return ""
	case ir.String:
		return string(val)
	case ir.Int:
		return strconv.FormatInt(int64(val), 10)
	case ir.Bool:
		return strconv.FormatBool(bool(val))
	case ir.Ref:
		if name, ok := h.names[ir.ResourceID(val)]; ok {
			return name
		}
		return "#" + strconv.FormatInt(int64(val), 10)
	case ir.Time:
		return val.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
