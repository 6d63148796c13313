// Package registry maps model type names to their constructors and
// documentation. A Registry is immutable after construction.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"mlserve/internal/estimator"
)

// Constructor builds an untrained model from caller-supplied hyperparameters.
type Constructor func(estimator.Params) (estimator.Model, error)

// Descriptor documents one model type.
type Descriptor struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Hyperparameters map[string]string `json:"hyperparameters"`
}

// Entry is a registered type: its documentation plus how to build it.
type Entry struct {
	Descriptor
	New Constructor
}

// Registry is an ordered, read-only set of model types.
type Registry struct {
	order   []string
	entries map[string]Entry
}

// New builds a registry preserving the argument order. It panics on a
// duplicate or empty name, which is a programming error.
func New(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.Name == "" || e.New == nil {
			panic("registry: entry needs a name and a constructor")
		}
		if _, dup := r.entries[e.Name]; dup {
			panic("registry: duplicate model type " + e.Name)
		}
		r.order = append(r.order, e.Name)
		r.entries[e.Name] = e
	}
	return r
}

// Default returns the registry of built-in estimator families.
func Default() *Registry {
	return New(
		Entry{
			Descriptor: Descriptor{
				Name:            estimator.KindLinearRegression,
				Description:     estimator.LinearRegressionDescription,
				Hyperparameters: estimator.LinearRegressionHyperparameters(),
			},
			New: func(p estimator.Params) (estimator.Model, error) { return estimator.NewLinearRegression(p) },
		},
		Entry{
			Descriptor: Descriptor{
				Name:            estimator.KindLogisticRegression,
				Description:     estimator.LogisticRegressionDescription,
				Hyperparameters: estimator.LogisticRegressionHyperparameters(),
			},
			New: func(p estimator.Params) (estimator.Model, error) { return estimator.NewLogisticRegression(p) },
		},
		Entry{
			Descriptor: Descriptor{
				Name:            estimator.KindRandomForest,
				Description:     estimator.RandomForestDescription,
				Hyperparameters: estimator.RandomForestHyperparameters(),
			},
			New: func(p estimator.Params) (estimator.Model, error) { return estimator.NewRandomForest(p) },
		},
	)
}

// Resolve returns the constructor for typeName.
func (r *Registry) Resolve(typeName string) (Constructor, error) {
	e, ok := r.entries[typeName]
	if !ok {
		return nil, r.unknown(typeName)
	}
	return e.New, nil
}

// ListTypes returns the registered names in registration order.
func (r *Registry) ListTypes() []string {
	return append([]string(nil), r.order...)
}

// Describe returns the documentation of typeName.
func (r *Registry) Describe(typeName string) (Descriptor, error) {
	e, ok := r.entries[typeName]
	if !ok {
		return Descriptor{}, r.unknown(typeName)
	}
	return copyDescriptor(e.Descriptor), nil
}

// DescribeAll returns one descriptor per type in registration order.
func (r *Registry) DescribeAll() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, copyDescriptor(r.entries[name].Descriptor))
	}
	return out
}

func (r *Registry) unknown(name string) error {
	return unknownModelTypeError{name: name, available: r.ListTypes()}
}

func copyDescriptor(d Descriptor) Descriptor {
	hp := make(map[string]string, len(d.Hyperparameters))
	for k, v := range d.Hyperparameters {
		hp[k] = v
	}
	d.Hyperparameters = hp
	return d
}

// unknownModelTypeError is returned for names that were never registered.
type unknownModelTypeError struct {
	name      string
	available []string
}

func (e unknownModelTypeError) Error() string {
	return fmt.Sprintf("unknown model type: %s. Available types: %s", e.name, strings.Join(e.available, ", "))
}

// IsUnknownModelType reports whether err is an unknown-type lookup failure.
func IsUnknownModelType(err error) bool {
	var e unknownModelTypeError
	return errors.As(err, &e)
}
