package controller

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/cluster"
	"converge/internal/dispatch"
	"converge/internal/event"
	"converge/internal/events"
	"converge/internal/finalizer"
	"converge/internal/metrics"
	"converge/internal/resource"
	"converge/internal/workflow"
	"converge/pkg/apis/converge/v1alpha1"
	"converge/pkg/logging"
)

// Registration is a controller that can be added to a Manager.
type Registration interface {
	Name() string
	Statuses() []dispatch.Status
	Check(*http.Request) error

	bind(env environment) error
	start(ctx context.Context) error
	stop()
	sourceHealth() map[string]event.Health
}

// environment carries what a Manager shares with its controllers.
type environment struct {
	limiter  *dispatch.RateLimiter
	recorder events.Recorder
	observer *metrics.Observer
	defaults Config
}

// Controller reconciles primaries of type P: it keeps their dependents in
// line through a workflow, then runs the Reconciler.
type Controller[P client.Object] struct {
	cfg        Config
	cluster    cluster.Cluster
	newPrimary func() P
	gk         schema.GroupKind
	reconciler Reconciler[P]
	workflow   *workflow.Workflow
	finalizer  *finalizer.Coordinator

	sources *event.Manager

	mu         sync.Mutex
	dispatcher *dispatch.Dispatcher
	recorder   events.Recorder
	observer   *metrics.Observer
}

var _ Registration = (*Controller[client.Object])(nil)

// New builds a controller for the primaries created by newPrimary. The
// controller adds a finalizer when the workflow deletes dependents, when the
// reconciler implements Cleaner, or when Config.FinalizerName is set.
func New[P client.Object](c cluster.Cluster, newPrimary func() P, opts Options[P]) (*Controller[P], error) {
	if c == nil {
		return nil, fmt.Errorf("controller requires a cluster")
	}
	if newPrimary == nil {
		return nil, fmt.Errorf("controller requires a primary constructor")
	}
	cfg := opts.Config
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	proto := newPrimary()
	gvk, err := cluster.KindOf(c, proto)
	if err != nil {
		return nil, fmt.Errorf("controller %s: resolving primary kind: %w", cfg.Name, err)
	}
	if cfg.Kind == "" {
		cfg.Kind = gvk.Kind
	}
	if cfg.CleanupPollInterval <= 0 {
		cfg.CleanupPollInterval = DefaultCleanupPollInterval
	}

	rec := opts.Reconciler
	if rec == nil {
		rec = NoopReconciler[P]{}
	}
	wf := opts.Workflow
	if wf == nil {
		if wf, err = workflow.NewWithConfig(workflow.Config{Name: cfg.Name}); err != nil {
			return nil, err
		}
	}

	ctl := &Controller[P]{
		cfg:        cfg,
		cluster:    c,
		newPrimary: newPrimary,
		gk:         gvk.GroupKind(),
		reconciler: rec,
		workflow:   wf,
		sources:    event.NewManager(cfg.Name),
		recorder:   events.NopRecorder{},
		observer:   metrics.NewObserver(nil),
	}

	_, cleans := rec.(Cleaner[P])
	if cfg.FinalizerName != "" || cleans || wf.RequiresCleanup() {
		name := cfg.FinalizerName
		if name == "" {
			name = finalizer.DefaultName(cfg.Name)
		}
		ctl.finalizer = finalizer.New(name, c)
	}

	primary, err := event.NewInformerSource(c, event.InformerOptions{
		Name:                  "primary/" + gvk.Kind,
		Object:                proto,
		Mapper:                event.PrimaryMapper(cfg.Kind),
		GenerationChangedOnly: !cfg.AllPrimaryEvents,
	})
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", cfg.Name, err)
	}
	if err := ctl.sources.Register(primary); err != nil {
		return nil, err
	}

	for _, w := range opts.Watches {
		if w.Object == nil {
			return nil, fmt.Errorf("controller %s: watch without object", cfg.Name)
		}
		mapper := w.Mapper
		if mapper == nil {
			mapper = event.OwnerReferenceMapper(ctl.gk, cfg.Kind, true)
		}
		src, err := event.NewInformerSource(c, event.InformerOptions{Object: w.Object, Mapper: mapper})
		if err != nil {
			return nil, fmt.Errorf("controller %s: %w", cfg.Name, err)
		}
		if err := ctl.sources.Register(src); err != nil {
			return nil, err
		}
	}
	for _, src := range opts.Sources {
		if err := ctl.sources.Register(src); err != nil {
			return nil, err
		}
	}

	return ctl, nil
}

// Name returns the controller name.
func (c *Controller[P]) Name() string { return c.cfg.Name }

// Kind returns the kind used in resource IDs.
func (c *Controller[P]) Kind() string { return c.cfg.Kind }

// Workflow returns the controller's workflow.
func (c *Controller[P]) Workflow() *workflow.Workflow { return c.workflow }

// Finalizer returns the finalizer name, or "" when the controller adds none.
func (c *Controller[P]) Finalizer() string {
	if c.finalizer == nil {
		return ""
	}
	return c.finalizer.Name()
}

// Sources returns the controller's event source manager.
func (c *Controller[P]) Sources() *event.Manager { return c.sources }

// Statuses returns the dispatch status of every known primary.
func (c *Controller[P]) Statuses() []dispatch.Status {
	d := c.getDispatcher()
	if d == nil {
		return nil
	}
	return d.Statuses()
}

// Status returns the dispatch status of one primary.
func (c *Controller[P]) Status(id resource.ID) (dispatch.Status, bool) {
	d := c.getDispatcher()
	if d == nil {
		return dispatch.Status{}, false
	}
	return d.Status(id)
}

// Trigger requests a reconciliation of id.
func (c *Controller[P]) Trigger(id resource.ID) {
	if d := c.getDispatcher(); d != nil {
		d.Trigger(id)
	}
}

// History returns the recent workflow executions for id.
func (c *Controller[P]) History(id resource.ID) []workflow.ExecutionRecord {
	return c.workflow.History().List(id)
}

// Check reports the health of the controller's event sources.
func (c *Controller[P]) Check(req *http.Request) error {
	return c.sources.Check(req)
}

func (c *Controller[P]) sourceHealth() map[string]event.Health {
	return c.sources.Health()
}

func (c *Controller[P]) getDispatcher() *dispatch.Dispatcher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatcher
}

func (c *Controller[P]) bind(env environment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dispatcher != nil {
		return fmt.Errorf("controller %s is already registered", c.cfg.Name)
	}

	if env.recorder != nil {
		c.recorder = env.recorder
	}
	if env.observer != nil {
		c.observer = env.observer
	}
	if c.cfg.Workers == 0 {
		c.cfg.Workers = env.defaults.Workers
	}
	if c.cfg.Retry == (dispatch.RetryPolicy{}) {
		c.cfg.Retry = env.defaults.Retry
	}
	if c.cfg.ResyncPeriod == 0 {
		c.cfg.ResyncPeriod = env.defaults.ResyncPeriod
	}

	d, err := dispatch.New(dispatch.Options{
		Name:         c.cfg.Name,
		Workers:      c.cfg.Workers,
		Retry:        c.cfg.Retry,
		ResyncPeriod: c.cfg.ResyncPeriod,
		Limiter:      env.limiter,
		OnTerminal:   c.onTerminal,
		Observer:     c.observer,
	}, c.reconcile)
	if err != nil {
		return err
	}
	c.dispatcher = d
	return nil
}

func (c *Controller[P]) start(ctx context.Context) error {
	d := c.getDispatcher()
	if d == nil {
		return fmt.Errorf("controller %s is not registered with a manager", c.cfg.Name)
	}
	if err := d.Start(ctx); err != nil {
		return err
	}
	if err := c.sources.Start(ctx, d); err != nil {
		d.Stop()
		return fmt.Errorf("controller %s: starting event sources: %w", c.cfg.Name, err)
	}
	logging.Info("Controller", "Started controller %s for %s (finalizer %q, %d dependents)",
		c.cfg.Name, c.cfg.Kind, c.Finalizer(), c.workflow.Len())
	return nil
}

func (c *Controller[P]) stop() {
	if err := c.sources.Stop(); err != nil {
		logging.Warn("Controller", "Stopping event sources of %s: %v", c.cfg.Name, err)
	}
	if d := c.getDispatcher(); d != nil {
		d.Stop()
	}
}

// reconcile is the dispatch.ReconcileFunc of the controller. It never runs
// concurrently for one primary.
func (c *Controller[P]) reconcile(ctx context.Context, req dispatch.Request) dispatch.Result {
	log := logging.With("Controller",
		"controller", c.cfg.Name,
		"resource", req.ID.String(),
		"reconcileID", req.ReconcileID,
		"attempt", req.Attempt)

	primary := c.newPrimary()
	if err := c.cluster.Reader().Get(ctx, req.ID.Key(), primary); err != nil {
		if cluster.IsNotFound(err) {
			log.Debug("Primary is gone, forgetting it")
			c.workflow.Forget(req.ID)
			return dispatch.Result{Forget: true}
		}
		return dispatch.Result{Err: fmt.Errorf("failed to get %s: %w", req.ID, err)}
	}

	rc := workflow.NewContext(primary, req.ID, req.Attempt, req.ReconcileID)
	if finalizer.IsDeleting(primary) {
		return c.cleanup(ctx, primary, rc, log)
	}
	return c.converge(ctx, primary, rc, log)
}

func (c *Controller[P]) converge(ctx context.Context, primary P, rc *workflow.Context, log logging.Logger) dispatch.Result {
	if c.finalizer != nil && !c.finalizer.Has(primary) {
		if _, err := c.finalizer.Ensure(ctx, primary); err != nil {
			return dispatch.Result{Err: fmt.Errorf("failed to add finalizer: %w", err)}
		}
		log.Debug("Added finalizer %s", c.finalizer.Name())
		c.record(ctx, primary, events.ReasonFinalizerAdded, events.EventData{Finalizer: c.finalizer.Name()})
	}
	original := c.copyOf(primary)

	res := c.workflow.Reconcile(ctx, rc)
	c.observer.ObserveDependents(c.cfg.Name, res.Statuses())
	c.recordDependents(ctx, primary, res)
	if err := res.Err(); err != nil {
		err = fmt.Errorf("dependents %s failed: %w", strings.Join(res.Failed(), ", "), err)
		c.failed(ctx, original, primary, rc, res, err, log)
		return dispatch.Result{Err: err}
	}

	control, err := c.reconciler.Reconcile(ctx, primary, rc)
	if err != nil {
		c.failed(ctx, original, primary, rc, res, err, log)
		return dispatch.Result{Err: err}
	}

	wasReady := isReady(original)
	setSucceeded(primary, res)
	desired := c.copyOf(primary)

	if control.UpdatesResource() {
		if err := c.cluster.Writer().Update(ctx, primary); err != nil {
			return dispatch.Result{Err: fmt.Errorf("failed to update %s: %w", rc.ID(), err)}
		}
		log.Debug("Updated primary")
	}
	if err := c.patchStatus(ctx, original, desired, control.UpdatesStatus()); err != nil {
		return dispatch.Result{Err: err}
	}

	if !wasReady && isReady(desired) {
		c.record(ctx, desired, events.ReasonReady, events.EventData{})
	}
	return dispatch.Result{RequeueAfter: control.RequeueAfter()}
}

func (c *Controller[P]) cleanup(ctx context.Context, primary P, rc *workflow.Context, log logging.Logger) dispatch.Result {
	if c.finalizer == nil || !c.finalizer.Has(primary) {
		log.Debug("Primary is being deleted without our finalizer, nothing to clean up")
		return dispatch.Result{}
	}

	res := c.workflow.Cleanup(ctx, rc)
	c.observer.ObserveDependents(c.cfg.Name, res.Statuses())
	c.recordDependents(ctx, primary, res)
	if err := res.Err(); err != nil {
		return dispatch.Result{Err: fmt.Errorf("cleanup of dependents %s failed: %w", strings.Join(res.Failed(), ", "), err)}
	}
	if !res.Complete() {
		pending := pendingDeletion(res)
		log.Debug("Waiting for %s to be deleted", strings.Join(pending, ", "))
		if res.Writes() > 0 {
			c.record(ctx, primary, events.ReasonCleanupPending, events.EventData{Error: strings.Join(pending, ", ")})
		}
		return dispatch.Result{RequeueAfter: c.cfg.CleanupPollInterval}
	}

	control := RemoveFinalizer()
	if cleaner, ok := c.reconciler.(Cleaner[P]); ok {
		var err error
		control, err = cleaner.Cleanup(ctx, primary, rc)
		if err != nil {
			return dispatch.Result{Err: fmt.Errorf("cleanup of %s failed: %w", rc.ID(), err)}
		}
	}
	if !control.RemovesFinalizer() {
		log.Debug("Reconciler keeps finalizer")
		return dispatch.Result{RequeueAfter: control.RequeueAfter()}
	}

	if _, err := c.finalizer.Remove(ctx, primary); err != nil {
		return dispatch.Result{Err: fmt.Errorf("failed to remove finalizer: %w", err)}
	}
	log.Info("Cleanup finished, removed finalizer %s", c.finalizer.Name())
	c.record(ctx, primary, events.ReasonFinalizerRemoved, events.EventData{Finalizer: c.finalizer.Name()})
	c.workflow.Forget(rc.ID())
	return dispatch.Result{}
}

// failed writes the failure into the primary's status.
func (c *Controller[P]) failed(ctx context.Context, original, primary P, rc *workflow.Context, res *workflow.Result, err error, log logging.Logger) {
	setFailed(primary, rc.Attempt(), res, err)

	force := false
	if h, ok := c.reconciler.(ErrorStatusHandler[P]); ok {
		force = h.UpdateErrorStatus(primary, rc, err)
	}
	if perr := c.patchStatus(ctx, original, primary, force); perr != nil {
		log.Warn("Recording failure in status: %v", perr)
	}
	c.record(ctx, primary, events.ReasonReconcileFailed, events.EventData{Error: err.Error(), Attempts: rc.Attempt()})
}

// onTerminal is called by the dispatcher when id exhausted its retries.
func (c *Controller[P]) onTerminal(ctx context.Context, id resource.ID, terr *dispatch.TerminalError) {
	primary := c.newPrimary()
	if err := c.cluster.Reader().Get(ctx, id.Key(), primary); err != nil {
		if !cluster.IsNotFound(err) {
			logging.Warn("Controller", "%s: reading %s to record exhausted retries: %v", c.cfg.Name, id, err)
		}
		return
	}
	original := c.copyOf(primary)
	setExhausted(primary, terr)
	if err := c.patchStatus(ctx, original, primary, false); err != nil {
		logging.Warn("Controller", "%s: recording exhausted retries of %s: %v", c.cfg.Name, id, err)
	}
	c.record(ctx, primary, events.ReasonRetriesExhausted, events.EventData{Error: terr.Err.Error(), Attempts: terr.Attempts})
}

// patchStatus merge-patches the status of updated against original. Without
// force it only writes when the engine-managed status changed.
func (c *Controller[P]) patchStatus(ctx context.Context, original, updated P, force bool) error {
	if !force && !statusChanged(original, updated) {
		return nil
	}
	patch := client.MergeFrom(original)
	if data, err := patch.Data(updated); err == nil && string(data) == "{}" {
		return nil
	}
	err := c.cluster.Writer().Status().Patch(ctx, updated, patch)
	c.observer.ObserveStatusSync(c.cfg.Name, updated.GetName(), err)
	if err != nil {
		if cluster.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to patch status of %s/%s: %w", updated.GetNamespace(), updated.GetName(), err)
	}
	return nil
}

func (c *Controller[P]) copyOf(obj P) P {
	return obj.DeepCopyObject().(P)
}

func (c *Controller[P]) record(ctx context.Context, obj P, reason events.EventReason, data events.EventData) {
	if data.Kind == "" {
		data.Kind = c.cfg.Kind
	}
	if err := c.recorder.Record(ctx, obj, reason, data); err != nil {
		logging.Debug("Controller", "%s: recording %s event for %s: %v", c.cfg.Name, reason, obj.GetName(), err)
	}
}

func (c *Controller[P]) recordDependents(ctx context.Context, primary P, res *workflow.Result) {
	for _, n := range res.Nodes {
		var reason events.EventReason
		switch {
		case n.Err != nil:
			reason = events.ReasonDependentFailed
		case n.State == v1alpha1.DependentCreated:
			reason = events.ReasonDependentCreated
		case n.State == v1alpha1.DependentUpdated:
			reason = events.ReasonDependentUpdated
		case n.State == v1alpha1.DependentDeleted:
			reason = events.ReasonDependentDeleted
		default:
			continue
		}
		data := events.EventData{Dependent: n.Name}
		if n.Err != nil {
			data.Error = n.Err.Error()
		}
		c.record(ctx, primary, reason, data)
	}
}

func pendingDeletion(res *workflow.Result) []string {
	var names []string
	for _, n := range res.Nodes {
		if !n.Deleted {
			names = append(names, n.Name)
		}
	}
	return names
}
