package app

import (
	"errors"
	"fmt"

	"converge/internal/cluster"
	"converge/internal/config"
	"converge/internal/controller"
	"converge/internal/declarative"
	"converge/internal/dispatch"
	"converge/internal/events"
	"converge/internal/metrics"
	"converge/pkg/logging"
)

// eventComponent is the source component of recorded Kubernetes Events.
const eventComponent = "converge"

// Services holds everything the operator runs: the cluster connection, the
// controller manager and the controllers built from declarative definitions.
type Services struct {
	Cluster  cluster.Cluster
	Manager  *controller.Manager
	Observer *metrics.Observer

	// Definitions are the controller definitions that were built and registered.
	Definitions []*declarative.ControllerDefinition
}

// InitializeServices connects to the cluster selected by cfg.Kubeconfig and
// builds the services on top of it.
func InitializeServices(cfg *Config) (*Services, error) {
	restConfig, err := cluster.GetRestConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	c, err := cluster.NewKubernetes(restConfig, cluster.Options{
		Namespace: cfg.ConvergeConfig.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}
	return newServices(cfg, c)
}

// newServices creates the manager and registers one controller per
// definition found in the controllers directory. Invalid definitions are
// reported and skipped; the remaining controllers still run.
func newServices(cfg *Config, c cluster.Cluster) (*Services, error) {
	cc := cfg.ConvergeConfig
	observer := metrics.NewObserver(nil)

	mgr := controller.NewManager(c, controller.ManagerOptions{
		RateLimit:    dispatch.RateLimit{QPS: cc.RateLimit.QPS, Burst: cc.RateLimit.Burst},
		Workers:      cc.Workers,
		Retry:        retryPolicy(cc.Retry),
		ResyncPeriod: cc.ResyncPeriod,
		Recorder:     events.NewKubernetesRecorder(c, eventComponent),
		Observer:     observer,
	})

	defs, err := declarative.LoadDir(cc.ControllersDir)
	if err != nil {
		var coll config.ConfigurationErrorCollection
		if errors.As(err, &coll) {
			logging.Warn("Services", "Skipping %d invalid controller definitions:\n%s", coll.Count(), coll.GetDetailedReport())
		} else {
			return nil, fmt.Errorf("failed to load controller definitions: %w", err)
		}
	}

	services := &Services{
		Cluster:  c,
		Manager:  mgr,
		Observer: observer,
	}
	for _, def := range defs {
		ctrl, err := declarative.Build(c, def)
		if err != nil {
			return nil, fmt.Errorf("failed to build controller %s from %s: %w", def.Name, def.Path(), err)
		}
		if err := mgr.Register(ctrl); err != nil {
			return nil, fmt.Errorf("failed to register controller %s: %w", def.Name, err)
		}
		services.Definitions = append(services.Definitions, def)
	}

	if len(services.Definitions) == 0 {
		logging.Warn("Services", "No controller definitions found in %s", cc.ControllersDir)
	}
	return services, nil
}

func retryPolicy(rc config.RetryConfig) dispatch.RetryPolicy {
	return dispatch.RetryPolicy{
		MaxAttempts: rc.MaxAttempts,
		Backoff: dispatch.Backoff{
			Initial: rc.InitialBackoff,
			Max:     rc.MaxBackoff,
			Jitter:  rc.Jitter,
		},
	}
}
