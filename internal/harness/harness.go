package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/livequery"
	"github.com/roach88/livefetch/internal/queryir"
	"github.com/roach88/livefetch/internal/store"
)

// DefaultContext is the context every scenario starts on.
const DefaultContext = "main"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	// Trace holds one line per step.
	Trace []string `json:"trace"`

	// Errors holds expectation failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []string{}, Errors: []string{}}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// TraceText renders the trace as newline-terminated lines.
func (r *Result) TraceText() []byte {
	if len(r.Trace) == 0 {
		return nil
	}
	return []byte(strings.Join(r.Trace, "\n") + "\n")
}

// scenarioContext is a store context whose fetches can be made to fail.
type scenarioContext struct {
	*store.Context
	failWith error
}

func (c *scenarioContext) Fetch(ctx context.Context, spec queryir.QuerySpec) ([]ir.Record, error) {
	if c.failWith != nil {
		return nil, c.failWith
	}
	return c.Context.Fetch(ctx, spec)
}

// Harness is the scenario execution engine. One Harness runs one scenario.
type Harness struct {
	store    *store.Store
	holder   *livequery.Holder[string]
	monitor  *livequery.Monitor[string]
	declare  func() queryir.QuerySpec
	contexts map[string]*scenarioContext
	current  *scenarioContext
	token    string
	logger   *slog.Logger
}

// Run executes a scenario and returns its result.
//
// Each scenario runs in a fresh in-memory database. An error is returned
// for problems running a step (a rejected write, an unknown context);
// unmet expectations are reported in the result instead.
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios

	st, err := store.Open(":memory:",
		store.WithIDGenerator(store.NewSequenceGenerator("h")),
		store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := registerEntities(ctx, st, scenario.Entities); err != nil {
		return nil, err
	}

	declared, err := scenario.Declare.Spec()
	if err != nil {
		return nil, fmt.Errorf("declare: %w", err)
	}
	discipline := livequery.DisciplineEager
	if scenario.Discipline != "" {
		discipline, _ = livequery.ParseDiscipline(scenario.Discipline)
	}

	h := &Harness{
		store: st,
		holder: livequery.NewHolder[string](
			livequery.WithDiscipline(discipline),
			livequery.WithLogger(logger),
			livequery.WithBaseContext(ctx)),
		declare:  func() queryir.QuerySpec { return declared.Clone() },
		contexts: make(map[string]*scenarioContext),
		logger:   logger,
	}
	defer h.holder.Dispose()
	h.monitor = livequery.NewMonitor(h.holder, h.declare)

	if h.current, err = h.context(DefaultContext); err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		line, err := h.execute(ctx, i, step, result)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
		result.Trace = append(result.Trace, line)
	}
	return result, nil
}

func registerEntities(ctx context.Context, st *store.Store, entities map[string]map[string]string) error {
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := st.RegisterEntity(ctx, ir.EntitySchema{Name: name, Fields: entities[name]}); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// context returns the named context, creating it on first use.
func (h *Harness) context(name string) (*scenarioContext, error) {
	if name == "" {
		return h.current, nil
	}
	if sc, ok := h.contexts[name]; ok {
		return sc, nil
	}
	c, err := h.store.NewContext(name)
	if err != nil {
		return nil, err
	}
	sc := &scenarioContext{Context: c}
	h.contexts[name] = sc
	return sc, nil
}

// execute runs one step and returns its trace line.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) (string, error) {
	var (
		line      string
		phase     *livequery.Phase
		delivered *int
	)
	observe := func(p livequery.Phase) { phase = &p }

	switch step.Op {
	case OpPut:
		fields, err := ir.ObjectFromNative(step.Fields)
		if err != nil {
			return "", err
		}
		if _, err := h.store.Put(ctx, ir.Record{ID: step.ID, Entity: step.Entity, Fields: fields}); err != nil {
			return "", err
		}
		line = fmt.Sprintf("put %s/%s", step.Entity, step.ID)

	case OpUpdate:
		patch, err := ir.ObjectFromNative(step.Fields)
		if err != nil {
			return "", err
		}
		if _, err := h.store.Update(ctx, step.ID, patch); err != nil {
			return "", err
		}
		line = "update " + step.ID

	case OpDelete:
		if err := h.store.Delete(ctx, step.ID); err != nil {
			return "", err
		}
		line = "delete " + step.ID

	case OpRender:
		if step.Context != "" {
			sc, err := h.context(step.Context)
			if err != nil {
				return "", err
			}
			h.current = sc
		}
		if step.Token != "" {
			h.token = step.Token
		}
		p := h.monitor.Render(ctx, h.current, h.token)
		observe(p)
		line = fmt.Sprintf("render ctx=%s token=%q query=%q -> %s",
			h.current.Name(), h.token, h.query(), formatPhase(p))

	case OpRead:
		p := h.holder.Read(ctx)
		observe(p)
		line = "read -> " + formatPhase(p)

	case OpState:
		p := h.holder.Phase()
		observe(p)
		line = fmt.Sprintf("state dirty=%t -> %s", h.holder.Dirty(), formatPhase(p))

	case OpRefetch:
		p, err := h.holder.Refetch(ctx)
		observe(p)
		line = withError("refetch", err) + " -> " + formatPhase(p)

	case OpSort:
		keys, err := queryir.ParseSortKeys(step.Sort)
		if err != nil {
			return "", err
		}
		line = h.customize("sort", h.holder.SetSortKeys(ctx, keys...), observe)

	case OpFilter:
		filter, err := queryir.ParseFilter(step.Where)
		if err != nil {
			return "", err
		}
		line = h.customize("filter", h.holder.SetFilter(ctx, filter), observe)

	case OpRebuild:
		h.monitor = livequery.NewMonitor(h.holder, h.declare)
		line = "rebuild"

	case OpSwitch:
		sc, err := h.context(step.Context)
		if err != nil {
			return "", err
		}
		h.current = sc
		line = "switch ctx=" + sc.Name()

	case OpFail:
		sc, err := h.context(step.Context)
		if err != nil {
			return "", err
		}
		sc.failWith = errors.New(step.Error)
		line = "fail ctx=" + sc.Name()

	case OpRecover:
		sc, err := h.context(step.Context)
		if err != nil {
			return "", err
		}
		sc.failWith = nil
		line = "recover ctx=" + sc.Name()

	case OpProcess:
		sc, err := h.context(step.Context)
		if err != nil {
			return "", err
		}
		n := sc.ProcessPendingChanges()
		delivered = &n
		p := h.holder.Phase()
		observe(p)
		line = fmt.Sprintf("process ctx=%s delivered=%d -> %s", sc.Name(), n, formatPhase(p))

	default:
		return "", fmt.Errorf("unknown op %q", step.Op)
	}

	if step.Expect != nil {
		h.check(index, step, phase, delivered, result)
	}
	return line, nil
}

func (h *Harness) customize(op string, err error, observe func(livequery.Phase)) string {
	p := h.holder.Phase()
	observe(p)
	if err != nil {
		return withError(op, err) + " -> " + formatPhase(p)
	}
	return fmt.Sprintf("%s query=%q -> %s", op, h.query(), formatPhase(p))
}

func (h *Harness) query() string {
	spec, ok := h.holder.Spec()
	if !ok {
		return ""
	}
	return spec.String()
}

// check compares the step outcome against its expectations.
func (h *Harness) check(index int, step Step, phase *livequery.Phase, delivered *int, result *Result) {
	exp := step.Expect
	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("steps[%d] %s: ", index, step.Op) + fmt.Sprintf(format, args...))
	}

	if exp.Dirty != nil {
		if got := h.holder.Dirty(); got != *exp.Dirty {
			fail("expected dirty=%t, got %t", *exp.Dirty, got)
		}
	}
	if exp.Delivered != nil {
		if delivered == nil {
			fail("delivered is only checked on process steps")
		} else if *delivered != *exp.Delivered {
			fail("expected delivered=%d, got %d", *exp.Delivered, *delivered)
		}
	}

	if exp.Phase == "" && exp.IDs == nil && exp.Generation == nil && exp.Error == "" {
		return
	}
	if phase == nil {
		fail("op %s has no phase to check", step.Op)
		return
	}
	if exp.Phase != "" && phase.Kind.String() != exp.Phase {
		fail("expected phase %s, got %s", exp.Phase, phase.Kind)
	}
	if exp.IDs != nil {
		if got := recordIDs(phase.Records); !slices.Equal(got, *exp.IDs) {
			fail("expected ids %v, got %v", *exp.IDs, got)
		}
	}
	if exp.Generation != nil && phase.Generation != *exp.Generation {
		fail("expected generation %d, got %d", *exp.Generation, phase.Generation)
	}
	if exp.Error != "" {
		if got := errorCode(phase.Err); got != exp.Error {
			fail("expected error %s, got %q", exp.Error, got)
		}
	}
}

// formatPhase renders a phase as "<kind> gen=<n> ids=[...]". A phase with
// no snapshot prints ids=-.
func formatPhase(p livequery.Phase) string {
	ids := "-"
	if p.HasSnapshot() {
		ids = "[" + strings.Join(recordIDs(p.Records), " ") + "]"
	}
	s := fmt.Sprintf("%s gen=%d ids=%s", p.Kind, p.Generation, ids)
	if p.Err != nil {
		s += " err=" + errorCode(p.Err)
	}
	return s
}

func withError(op string, err error) string {
	if err == nil {
		return op
	}
	return fmt.Sprintf("%s error=%q", op, err.Error())
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var qe *livequery.QueryExecutionError
	if errors.As(err, &qe) {
		return string(qe.Code)
	}
	return "ERROR"
}

func recordIDs(records []ir.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
