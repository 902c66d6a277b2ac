package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"converge/internal/dependency"
	"converge/internal/resource"
	"converge/pkg/apis/converge/v1alpha1"
	"converge/pkg/logging"
)

// DefaultConcurrency bounds the nodes of one level reconciled at once.
const DefaultConcurrency = 4

// Config tunes a Workflow.
type Config struct {
	// Name labels log lines and execution records, usually the controller name.
	Name string
	// Concurrency bounds parallel nodes within one level.
	Concurrency int
	// HistorySize is the number of execution records kept per primary.
	HistorySize int
}

// Workflow is a validated DAG of dependent definitions. It is immutable and
// safe for concurrent passes over different primaries.
type Workflow struct {
	cfg     Config
	defs    map[string]*Definition
	graph   *dependency.Graph
	levels  [][]string
	reverse [][]string
	history *History
}

// New validates defs and builds a workflow with default configuration.
func New(defs ...*Definition) (*Workflow, error) {
	return NewWithConfig(Config{}, defs...)
}

// NewWithConfig validates defs and builds a workflow. Duplicate names,
// unknown dependencies, cycles and unsupported modes are reported as errors.
func NewWithConfig(cfg Config, defs ...*Definition) (*Workflow, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}

	w := &Workflow{
		cfg:     cfg,
		defs:    make(map[string]*Definition, len(defs)),
		graph:   dependency.New(),
		history: NewHistory(cfg.HistorySize),
	}

	var errs []error
	for _, def := range defs {
		if def == nil {
			errs = append(errs, fmt.Errorf("nil definition"))
			continue
		}
		if def.err != nil {
			errs = append(errs, def.err)
			continue
		}
		if _, dup := w.defs[def.name]; dup {
			errs = append(errs, &DuplicateNodeError{Name: def.name})
			continue
		}
		w.defs[def.name] = def
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, def := range defs {
		deps := make([]dependency.NodeID, 0, len(def.settings.dependsOn))
		for _, dep := range def.settings.dependsOn {
			if _, ok := w.defs[dep]; !ok {
				errs = append(errs, &UnknownDependencyError{Node: def.name, Dependency: dep})
			}
			deps = append(deps, dependency.NodeID(dep))
		}
		w.graph.AddNode(dependency.Node{ID: dependency.NodeID(def.name), FriendlyName: def.name, DependsOn: deps})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	levels, err := w.graph.Levels()
	if err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}
	w.levels = toNames(levels)
	for i := len(w.levels) - 1; i >= 0; i-- {
		w.reverse = append(w.reverse, w.levels[i])
	}

	logging.Debug("Workflow", "Built workflow %s with %d dependents in %d levels", cfg.Name, len(w.defs), len(w.levels))
	return w, nil
}

func toNames(levels [][]dependency.NodeID) [][]string {
	out := make([][]string, len(levels))
	for i, level := range levels {
		out[i] = make([]string, len(level))
		for j, id := range level {
			out[i][j] = string(id)
		}
	}
	return out
}

// Len returns the number of dependents.
func (w *Workflow) Len() int { return len(w.defs) }

// Definition returns the named definition.
func (w *Workflow) Definition(name string) (*Definition, bool) {
	d, ok := w.defs[name]
	return d, ok
}

// Order returns the reconcile order.
func (w *Workflow) Order() []string {
	var order []string
	for _, level := range w.levels {
		order = append(order, level...)
	}
	return order
}

// CleanupOrder returns the deletion order.
func (w *Workflow) CleanupOrder() []string {
	var order []string
	for _, level := range w.reverse {
		order = append(order, level...)
	}
	return order
}

// Levels returns the reconcile levels; nodes of one level may run concurrently.
func (w *Workflow) Levels() [][]string {
	out := make([][]string, len(w.levels))
	for i, l := range w.levels {
		out[i] = append([]string(nil), l...)
	}
	return out
}

// Graph returns the dependency graph.
func (w *Workflow) Graph() *dependency.Graph { return w.graph }

// RequiresCleanup reports whether deleting a primary needs explicit cleanup,
// i.e. whether any dependent is deleted by the engine rather than by the
// cluster's garbage collector.
func (w *Workflow) RequiresCleanup() bool {
	for _, d := range w.defs {
		if d.deletes() {
			return true
		}
	}
	return false
}

// History returns the execution records kept for the primary.
func (w *Workflow) History() *History { return w.history }

// Forget drops per-primary state: execution history and any polling of
// external state done by dependents.
func (w *Workflow) Forget(id resource.ID) {
	w.history.Forget(id)
	for _, d := range w.defs {
		d.node.forget(id)
	}
}

// Reconcile runs one forward pass over the dependents of rc's primary.
func (w *Workflow) Reconcile(ctx context.Context, rc *Context) *Result {
	return w.run(ctx, rc, false)
}

// Cleanup runs one deletion pass in reverse order. The pass is complete when
// Result.Complete reports true; otherwise it must be retried.
func (w *Workflow) Cleanup(ctx context.Context, rc *Context) *Result {
	res := w.run(ctx, rc, true)
	if res.Complete() && res.Err() == nil {
		for _, d := range w.defs {
			d.node.forget(rc.ID())
		}
	}
	return res
}

func (w *Workflow) run(ctx context.Context, rc *Context, cleanup bool) *Result {
	res := &Result{ExecutionID: uuid.NewString(), Cleanup: cleanup, Started: time.Now()}
	log := logging.With("Workflow",
		"workflow", w.cfg.Name,
		"resource", rc.ID().String(),
		"reconcileID", rc.ReconcileID(),
		"execution", res.ExecutionID)

	levels := w.levels
	if cleanup {
		levels = w.reverse
	}

	for _, level := range levels {
		results := make([]NodeResult, len(level))
		g := errgroup.Group{}
		g.SetLimit(w.cfg.Concurrency)
		for i, name := range level {
			g.Go(func() error {
				results[i] = w.runNode(ctx, rc, name, cleanup)
				rc.setResult(results[i])
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			if r.Err != nil {
				log.Warn("Dependent %s failed: %v", r.Name, r.Err)
			} else {
				log.Debug("Dependent %s: %s (ready=%t deleted=%t) %s", r.Name, r.State, r.Ready, r.Deleted, r.Message)
			}
		}
		res.Nodes = append(res.Nodes, results...)
	}

	res.Duration = time.Since(res.Started)
	w.history.Record(rc.ID(), w.cfg.Name, res)
	if err := res.Err(); err != nil {
		log.Info("Pass finished with %d failed dependents in %s", len(res.Failed()), res.Duration)
	} else {
		log.Debug("Pass finished in %s (%d writes)", res.Duration, res.Writes())
	}
	return res
}

// runNode gates a node on its neighbours and runs it with panic isolation.
func (w *Workflow) runNode(ctx context.Context, rc *Context, name string, cleanup bool) (res NodeResult) {
	def := w.defs[name]
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Workflow", fmt.Errorf("%v", r), "panic in dependent %s\n%s", name, debug.Stack())
			res = NodeResult{
				Name:  name,
				State: v1alpha1.DependentFailed,
				Err:   &NodeError{Node: name, Op: "panic", Err: fmt.Errorf("%v", r)},
			}
		}
		res.Duration = time.Since(start)
	}()

	if cleanup {
		if !def.deletes() {
			return NodeResult{Name: name, State: v1alpha1.DependentUnchanged, Deleted: true}
		}
		if waiting := w.blocking(rc, w.graph.Dependents(dependency.NodeID(name)), func(r NodeResult) bool { return r.Deleted }); len(waiting) > 0 {
			return NodeResult{
				Name:    name,
				State:   v1alpha1.DependentSkipped,
				Message: "waiting for dependents to be deleted: " + strings.Join(waiting, ", "),
			}
		}
		if err := ctx.Err(); err != nil {
			return NodeResult{Name: name, State: v1alpha1.DependentFailed, Err: &NodeError{Node: name, Op: "delete", Err: err}}
		}
		return def.node.cleanup(ctx, rc)
	}

	if waiting := w.blocking(rc, w.graph.Dependencies(dependency.NodeID(name)), func(r NodeResult) bool { return r.Ready }); len(waiting) > 0 {
		rc.dropSecondary(name)
		return NodeResult{
			Name:    name,
			State:   v1alpha1.DependentSkipped,
			Message: "waiting for " + strings.Join(waiting, ", "),
		}
	}
	if err := ctx.Err(); err != nil {
		return NodeResult{Name: name, State: v1alpha1.DependentFailed, Err: &NodeError{Node: name, Op: "reconcile", Err: err}}
	}
	return def.node.reconcile(ctx, rc)
}

// blocking returns the neighbours whose result in this pass does not satisfy ok.
func (w *Workflow) blocking(rc *Context, neighbours []dependency.NodeID, ok func(NodeResult) bool) []string {
	var waiting []string
	for _, id := range neighbours {
		r, found := rc.Result(string(id))
		if !found || !ok(r) {
			waiting = append(waiting, string(id))
		}
	}
	return waiting
}
