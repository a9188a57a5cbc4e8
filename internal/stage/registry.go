package stage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"covercat/internal/records"
)

// Descriptor binds a stage name to its handler and dependency declaration.
type Descriptor struct {
	Name    string
	Handler Handler
	// InputsRequired lists attributes that must be non-null before the
	// handler may run.
	InputsRequired []string
	// Produces lists the attributes the handler writes on success. They are
	// cleared when a record is retried from this stage or an earlier one.
	Produces []string
	// Timeout bounds a single handler invocation. Zero defers to the engine.
	Timeout time.Duration
	// MaxAttempts is the escalation threshold. Zero defers to the engine.
	MaxAttempts int
	// RateLimited stages call throttled remotes; batches pause Delay after
	// each invocation except the last.
	RateLimited bool
	Delay       time.Duration
}

// Registry is the immutable ordered list of stages.
type Registry struct {
	stages []Descriptor
	index  map[string]int
}

// NewRegistry validates and freezes the supplied stage order.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, errors.New("stage registry: at least one stage is required")
	}
	reg := &Registry{
		stages: make([]Descriptor, 0, len(descs)),
		index:  make(map[string]int, len(descs)),
	}
	for _, desc := range descs {
		name := strings.TrimSpace(desc.Name)
		switch {
		case name == "":
			return nil, errors.New("stage registry: stage name is required")
		case name == records.StageDone:
			return nil, fmt.Errorf("stage registry: %q is reserved", name)
		case desc.Handler == nil:
			return nil, fmt.Errorf("stage registry: stage %q has no handler", name)
		}
		if _, dup := reg.index[name]; dup {
			return nil, fmt.Errorf("stage registry: duplicate stage %q", name)
		}
		desc.Name = name
		desc.InputsRequired = append([]string(nil), desc.InputsRequired...)
		desc.Produces = append([]string(nil), desc.Produces...)
		reg.index[name] = len(reg.stages)
		reg.stages = append(reg.stages, desc)
	}
	return reg, nil
}

// Len returns the number of registered stages.
func (r *Registry) Len() int { return len(r.stages) }

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.stages[i], true
}

// Index returns the position of name in the stage order. The terminal marker
// sorts after every registered stage.
func (r *Registry) Index(name string) (int, bool) {
	if name == records.StageDone {
		return len(r.stages), true
	}
	i, ok := r.index[name]
	return i, ok
}

// At returns the descriptor at position i.
func (r *Registry) At(i int) (Descriptor, bool) {
	if i < 0 || i >= len(r.stages) {
		return Descriptor{}, false
	}
	return r.stages[i], true
}

// First returns the name of the first stage.
func (r *Registry) First() string {
	return r.stages[0].Name
}

// Next returns the stage after name, or records.StageDone after the last.
func (r *Registry) Next(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok {
		return "", false
	}
	if i+1 >= len(r.stages) {
		return records.StageDone, true
	}
	return r.stages[i+1].Name, true
}

// Names returns stage names in order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.stages))
	for i, desc := range r.stages {
		out[i] = desc.Name
	}
	return out
}

// Descriptors returns a copy of the ordered descriptors.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.stages))
	copy(out, r.stages)
	return out
}

// MissingInputs lists required attributes of name that attrs lacks.
func (r *Registry) MissingInputs(name string, attrs records.Attributes) []string {
	desc, ok := r.Lookup(name)
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range desc.InputsRequired {
		if !attrs.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// ProducedFrom returns the attributes written by name and every later stage.
func (r *Registry) ProducedFrom(name string) []string {
	i, ok := r.index[name]
	if !ok {
		return nil
	}
	var keys []string
	for _, desc := range r.stages[i:] {
		keys = append(keys, desc.Produces...)
	}
	return keys
}
