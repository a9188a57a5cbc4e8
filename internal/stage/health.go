package stage

import "context"

// Health summarizes the readiness of a workflow stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// CheckAll reports readiness for every registered stage in order. Stages whose
// handler does not implement HealthChecker are reported as ready.
func (r *Registry) CheckAll(ctx context.Context) []Health {
	out := make([]Health, 0, r.Len())
	for _, desc := range r.stages {
		checker, ok := desc.Handler.(HealthChecker)
		if !ok {
			out = append(out, Healthy(desc.Name))
			continue
		}
		health := checker.HealthCheck(ctx)
		if health.Name == "" {
			health.Name = desc.Name
		}
		out = append(out, health)
	}
	return out
}
