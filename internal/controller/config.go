package controller

import (
	"fmt"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"converge/internal/dispatch"
	"converge/internal/event"
	"converge/internal/workflow"
)

// DefaultCleanupPollInterval is how often a deleting primary is revisited
// while its dependents are still going away.
const DefaultCleanupPollInterval = 2 * time.Second

// Config configures one controller. Zero values fall back to the manager's defaults.
type Config struct {
	// Name identifies the controller in logs, metrics and events. Required.
	Name string

	// Kind is the kind used in resource IDs. Defaults to the primary's kind.
	Kind string

	// FinalizerName overrides the default <name>.converge.io/finalizer.
	// Setting it also makes the controller add a finalizer when nothing else needs one.
	FinalizerName string

	// ResyncPeriod re-reconciles every primary after each successful attempt.
	ResyncPeriod time.Duration

	// Workers is the number of primaries reconciled concurrently.
	Workers int

	// Retry bounds retries of failed attempts.
	Retry dispatch.RetryPolicy

	// CleanupPollInterval overrides DefaultCleanupPollInterval.
	CleanupPollInterval time.Duration

	// AllPrimaryEvents disables the generation filter on the primary watch, so
	// status-only and metadata-only changes also trigger reconciliation.
	AllPrimaryEvents bool
}

// Watch registers a secondary kind whose changes retrigger the owning primaries.
type Watch struct {
	// Object is a prototype of the watched kind.
	Object client.Object

	// Mapper maps a watched object to primaries. Defaults to the controller
	// owner reference of the primary's kind.
	Mapper event.Mapper
}

// Options are the parts of a controller.
type Options[P client.Object] struct {
	Config Config

	// Reconciler runs after the workflow. Defaults to NoopReconciler.
	Reconciler Reconciler[P]

	// Workflow manages the dependents. Defaults to an empty workflow.
	Workflow *workflow.Workflow

	// Watches are secondary kinds to watch.
	Watches []Watch

	// Sources are additional event sources, e.g. polling sources backing
	// polled dependents.
	Sources []event.Source
}

func (c Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("controller name is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("controller %s: workers must not be negative", c.Name)
	}
	if c.ResyncPeriod < 0 {
		return fmt.Errorf("controller %s: resync period must not be negative", c.Name)
	}
	if c.Retry != (dispatch.RetryPolicy{}) {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("controller %s: %w", c.Name, err)
		}
	}
	return nil
}
