package workflow

import (
	"context"

	"k8s.io/apimachinery/pkg/api/equality"

	"converge/internal/cluster"
	"converge/internal/resource"
	"converge/pkg/apis/converge/v1alpha1"
)

// runner is the type-erased view of a node.
type runner interface {
	reconcile(ctx context.Context, rc *Context) NodeResult
	cleanup(ctx context.Context, rc *Context) NodeResult
	forget(id resource.ID)
}

type node[T any] struct {
	name          string
	dep           Dependent[T]
	mode          Mode
	readyWhen     func(context.Context, *Context, T) (bool, error)
	deletedWhen   func(context.Context, *Context, T, bool) (bool, error)
	reconcileWhen Condition
}

func (n *node[T]) fail(res NodeResult, op string, err error) NodeResult {
	res.State = v1alpha1.DependentFailed
	res.Ready = false
	res.Err = &NodeError{Node: n.name, Op: op, Err: err}
	return res
}

func (n *node[T]) reconcile(ctx context.Context, rc *Context) NodeResult {
	res := NodeResult{Name: n.name, State: v1alpha1.DependentUnchanged}

	if n.reconcileWhen != nil {
		ok, err := n.reconcileWhen(ctx, rc)
		if err != nil {
			return n.fail(res, "reconcile condition", err)
		}
		if !ok {
			return n.deactivate(ctx, rc, res)
		}
	}

	desired, wanted, err := n.dep.Desired(ctx, rc)
	if err != nil {
		return n.fail(res, "desired state", err)
	}
	observed, exists, err := n.dep.Observe(ctx, rc, desired)
	if err != nil {
		return n.fail(res, "observe", err)
	}

	switch {
	case n.mode == ReadOnly:
	case !wanted:
		if exists && n.mode.CanDelete() {
			if err := n.dep.(Deleter[T]).Delete(ctx, rc, observed); err != nil && !cluster.IsNotFound(err) {
				return n.fail(res, "delete", err)
			}
			res.State = v1alpha1.DependentDeleted
			exists = false
		}
	case !exists:
		if n.mode.CanCreate() {
			created, err := n.dep.(Creator[T]).Create(ctx, rc, desired)
			if err != nil {
				return n.fail(res, "create", err)
			}
			observed, exists = created, true
			res.State = v1alpha1.DependentCreated
		}
	case !n.matches(observed, desired):
		if n.mode.CanUpdate() {
			updated, err := n.dep.(Updater[T]).Update(ctx, rc, observed, desired)
			if err != nil {
				return n.fail(res, "update", err)
			}
			observed = updated
			res.State = v1alpha1.DependentUpdated
		}
	}

	if exists {
		rc.setSecondary(n.name, observed)
	} else {
		rc.dropSecondary(n.name)
	}

	ready, err := n.ready(ctx, rc, observed, exists, desired, wanted)
	if err != nil {
		return n.fail(res, "readiness", err)
	}
	res.Ready = ready
	if !ready {
		res.Message = "not ready"
	}
	return res
}

// deactivate handles a node whose reconcile condition is false.
func (n *node[T]) deactivate(ctx context.Context, rc *Context, res NodeResult) NodeResult {
	res.Message = "reconcile condition not met"
	rc.dropSecondary(n.name)
	if !n.mode.CanDelete() {
		return res
	}
	desired, _, err := n.dep.Desired(ctx, rc)
	if err != nil {
		return n.fail(res, "desired state", err)
	}
	observed, exists, err := n.dep.Observe(ctx, rc, desired)
	if err != nil {
		return n.fail(res, "observe", err)
	}
	if !exists {
		return res
	}
	if err := n.dep.(Deleter[T]).Delete(ctx, rc, observed); err != nil && !cluster.IsNotFound(err) {
		return n.fail(res, "delete", err)
	}
	res.State = v1alpha1.DependentDeleted
	return res
}

func (n *node[T]) matches(observed, desired T) bool {
	if m, ok := n.dep.(Matcher[T]); ok {
		return m.Match(observed, desired)
	}
	return defaultMatch(observed, desired)
}

func defaultMatch[T any](observed, desired T) bool {
	return equality.Semantic.DeepDerivative(desired, observed)
}

func (n *node[T]) ready(ctx context.Context, rc *Context, observed T, exists bool, desired T, wanted bool) (bool, error) {
	if !exists {
		// An unwanted resource that is gone is exactly what was asked for.
		return !wanted && n.mode != ReadOnly, nil
	}
	if n.readyWhen != nil {
		return n.readyWhen(ctx, rc, observed)
	}
	if c, ok := n.dep.(ReadyChecker[T]); ok {
		return c.Ready(ctx, rc, observed)
	}
	switch {
	case n.mode == ReadOnly, n.mode == CreateOnly:
		return true, nil
	case !wanted:
		return false, nil
	default:
		return n.matches(observed, desired), nil
	}
}

func (n *node[T]) cleanup(ctx context.Context, rc *Context) NodeResult {
	res := NodeResult{Name: n.name, State: v1alpha1.DependentUnchanged}

	desired, _, err := n.dep.Desired(ctx, rc)
	if err != nil {
		return n.fail(res, "desired state", err)
	}
	observed, exists, err := n.dep.Observe(ctx, rc, desired)
	if err != nil {
		return n.fail(res, "observe", err)
	}
	if !exists {
		res.Deleted = true
		return res
	}

	if err := n.dep.(Deleter[T]).Delete(ctx, rc, observed); err != nil && !cluster.IsNotFound(err) {
		return n.fail(res, "delete", err)
	}
	res.State = v1alpha1.DependentDeleted

	if n.deletedWhen == nil {
		res.Deleted = true
		return res
	}
	observed, exists, err = n.dep.Observe(ctx, rc, desired)
	if err != nil {
		return n.fail(res, "observe", err)
	}
	done, err := n.deletedWhen(ctx, rc, observed, exists)
	if err != nil {
		return n.fail(res, "deletion check", err)
	}
	res.Deleted = done
	if !done {
		res.Message = "waiting for deletion to complete"
	}
	return res
}

func (n *node[T]) forget(id resource.ID) {
	if f, ok := n.dep.(interface{ Forget(resource.ID) }); ok {
		f.Forget(id)
	}
}
