package declarative

import (
	"fmt"
	"time"

	"converge/internal/config"
	"converge/internal/dispatch"
	"converge/internal/template"
	"converge/internal/workflow"
)

// Validate checks a definition without a cluster: names, kinds, modes,
// templates, and the dependency graph.
func Validate(def *ControllerDefinition) error {
	var errs config.ValidationErrors
	addErr := func(err error) {
		if err == nil {
			return
		}
		if ve, ok := err.(config.ValidationError); ok {
			errs = append(errs, ve)
			return
		}
		errs.Add("", err.Error())
	}

	addErr(config.ValidateEntityName(def.Name, "controller"))
	addErr(config.ValidateRequired("primary.apiVersion", def.Primary.APIVersion, "controller"))
	addErr(config.ValidateRequired("primary.kind", def.Primary.Kind, "controller"))
	if def.Workers < 0 {
		errs.Add("workers", "must not be negative", def.Workers)
	}
	if def.ResyncPeriod != nil && def.ResyncPeriod.Duration < 0 {
		errs.Add("resyncPeriod", "must not be negative", def.ResyncPeriod.Duration)
	}
	if def.Retry != nil {
		if err := def.Retry.policy().Validate(); err != nil {
			errs.Add("retry", err.Error())
		}
	}
	if def.FileTrigger != nil && def.FileTrigger.Dir == "" {
		errs.Add("fileTrigger.dir", "is required when fileTrigger is set")
	}

	engine := template.New()
	seen := make(map[string]bool)
	for i, dep := range def.Dependents {
		field := fmt.Sprintf("dependents[%d]", i)
		if err := config.ValidateEntityName(dep.Name, "dependent"); err != nil {
			errs.Add(field+".name", err.(config.ValidationError).Message, dep.Name)
		} else {
			field = fmt.Sprintf("dependents[%s]", dep.Name)
		}
		if seen[dep.Name] {
			errs.Add(field+".name", "is used by more than one dependent", dep.Name)
		}
		seen[dep.Name] = true

		if dep.APIVersion == "" || dep.Kind == "" {
			errs.Add(field, "apiVersion and kind are required")
		}
		if _, err := workflow.ParseMode(dep.Mode); err != nil {
			errs.Add(field+".mode", err.Error(), dep.Mode)
		}
		if dep.Template == "" {
			errs.Add(field+".template", "is required")
		} else if err := engine.Parse(dep.Name, dep.Template); err != nil {
			errs.Add(field+".template", err.Error())
		}
		if dep.ReconcileWhen != "" {
			if err := engine.Parse(dep.Name+"/reconcileWhen", dep.ReconcileWhen); err != nil {
				errs.Add(field+".reconcileWhen", err.Error())
			}
		}
		if dep.ReadyWhen != nil && dep.ReadyWhen.Exists && len(dep.ReadyWhen.Matches) > 0 {
			errs.Add(field+".readyWhen", "exists and matches are mutually exclusive")
		}
		if dep.ClusterScoped && dep.GarbageCollected {
			errs.Add(field+".garbageCollected", "cluster-scoped dependents have no owner reference to be collected through")
		}
	}
	for key, value := range def.Status {
		if s, ok := value.(string); ok {
			if err := engine.Parse("status."+key, s); err != nil {
				errs.Add("status."+key, err.Error())
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}

	// The graph is checked last; it needs valid modes.
	if _, err := newBuilder(nil, def).workflow(); err != nil {
		return err
	}
	return nil
}

func (r *RetryDefinition) policy() dispatch.RetryPolicy {
	return dispatch.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		Backoff: dispatch.Backoff{
			Initial: r.InitialBackoff.Duration,
			Max:     r.MaxBackoff.Duration,
			Jitter:  r.Jitter,
		},
	}
}

func (d *ControllerDefinition) resyncPeriod() time.Duration {
	if d.ResyncPeriod == nil {
		return 0
	}
	return d.ResyncPeriod.Duration
}
