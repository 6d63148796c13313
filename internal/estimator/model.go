// Package estimator holds the trainable model families served by mlserve and
// the artifact codec used to persist them.
//
// Every family implements Model. Hyperparameters arrive as a loose Params
// mapping (decoded request JSON) and are parsed into a family-specific config
// struct at construction time; the original mapping is kept verbatim so it can
// be reported back and persisted as metadata.
package estimator

// Params is a hyperparameter mapping as supplied by the caller. Values are
// JSON scalars (bool, float64, string) or nil.
type Params map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty, non-nil map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Model is the capability contract shared by every estimator family.
type Model interface {
	// Kind is the registry type name of the family, e.g. "linear_regression".
	Kind() string
	// Train fits the estimator from scratch. X is row-major
	// (samples x features) and y holds one target per row.
	Train(X [][]float64, y []float64) error
	// Predict returns one value per row of X. It fails with ErrNotTrained
	// before the first successful Train.
	Predict(X [][]float64) ([]float64, error)
	// Trained reports whether Train has succeeded at least once.
	Trained() bool
	// Hyperparameters returns a copy of the mapping the model was built with.
	Hyperparameters() Params
}

// Family names. They double as registry type names and artifact kinds.
const (
	KindLinearRegression   = "linear_regression"
	KindLogisticRegression = "logistic_regression"
	KindRandomForest       = "random_forest"
)
