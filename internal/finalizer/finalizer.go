package finalizer

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// Domain is the suffix of default finalizer names.
const Domain = "converge.io"

// DefaultName derives the finalizer of a controller: <controller>.converge.io/finalizer.
func DefaultName(controller string) string {
	name := strings.ToLower(strings.TrimSpace(controller))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
	return fmt.Sprintf("%s.%s/finalizer", strings.Trim(name, "-."), Domain)
}

// Coordinator adds and removes one finalizer.
type Coordinator struct {
	name   string
	writer client.Writer
	reader client.Reader
}

// New creates a coordinator writing through c and re-reading from its
// uncached API reader on conflict.
func New(name string, c cluster.Cluster) *Coordinator {
	return &Coordinator{name: name, writer: c.Writer(), reader: c.APIReader()}
}

// Name returns the finalizer name.
func (c *Coordinator) Name() string { return c.name }

// Has reports whether obj carries the finalizer.
func (c *Coordinator) Has(obj client.Object) bool {
	return controllerutil.ContainsFinalizer(obj, c.name)
}

// IsDeleting reports whether deletion of obj has been requested.
func IsDeleting(obj client.Object) bool {
	return !obj.GetDeletionTimestamp().IsZero()
}

// Ensure adds the finalizer to obj. A primary that is already being deleted
// is left alone. obj is updated in place with the stored state.
func (c *Coordinator) Ensure(ctx context.Context, obj client.Object) (bool, error) {
	changed, err := c.update(ctx, obj, func(o client.Object) bool {
		if IsDeleting(o) {
			return false
		}
		return controllerutil.AddFinalizer(o, c.name)
	})
	if err != nil {
		return false, fmt.Errorf("adding finalizer %s to %s: %w", c.name, client.ObjectKeyFromObject(obj), err)
	}
	if changed {
		logging.Debug("Finalizer", "Added %s to %s", c.name, client.ObjectKeyFromObject(obj))
	}
	return changed, nil
}

// Remove drops the finalizer, allowing the cluster to delete obj. A primary
// that is already gone counts as done.
func (c *Coordinator) Remove(ctx context.Context, obj client.Object) (bool, error) {
	changed, err := c.update(ctx, obj, func(o client.Object) bool {
		return controllerutil.RemoveFinalizer(o, c.name)
	})
	if cluster.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing finalizer %s from %s: %w", c.name, client.ObjectKeyFromObject(obj), err)
	}
	if changed {
		logging.Debug("Finalizer", "Removed %s from %s", c.name, client.ObjectKeyFromObject(obj))
	}
	return changed, nil
}

// update applies change and writes obj. The first attempt uses obj as given;
// each retry after a conflict starts from a fresh read.
func (c *Coordinator) update(ctx context.Context, obj client.Object, change func(client.Object) bool) (bool, error) {
	var (
		changed bool
		attempt int
	)
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		attempt++
		if attempt > 1 {
			logging.Debug("Finalizer", "Conflict updating %s, re-reading (attempt %d)", client.ObjectKeyFromObject(obj), attempt)
			if err := c.reader.Get(ctx, client.ObjectKeyFromObject(obj), obj); err != nil {
				return err
			}
		}
		changed = change(obj)
		if !changed {
			return nil
		}
		return c.writer.Update(ctx, obj)
	})
	return changed, err
}
