package estimator

import (
	"fmt"
	"math"

	json "github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegressionDescription is the registry description of the family.
const LogisticRegressionDescription = "Logistic Regression model for binary classification"

// LogisticRegressionHyperparameters documents the accepted hyperparameters.
func LogisticRegressionHyperparameters() map[string]string {
	return map[string]string{
		"C":        "float: inverse of regularization strength (default: 1.0)",
		"max_iter": "int: maximum iterations (default: 100)",
	}
}

// gradTol is the sup-norm gradient threshold that ends L-BFGS early.
const gradTol = 1e-4

// LogisticConfig is the parsed hyperparameter set of LogisticRegression.
type LogisticConfig struct {
	C       float64
	MaxIter int
}

// LogisticRegression is an L2-penalised multinomial (softmax) classifier.
// The objective is ||W||^2/2 + C * sum(log-loss); intercepts are not
// penalised. It is minimised with L-BFGS.
type LogisticRegression struct {
	params  Params
	cfg     LogisticConfig
	trained bool

	classes   []float64
	coef      [][]float64 // classes x features
	intercept []float64
}

type logisticState struct {
	Classes   []float64   `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

// NewLogisticRegression builds an untrained model. Recognised keys: C, max_iter.
func NewLogisticRegression(p Params) (*LogisticRegression, error) {
	c, err := floatParam(KindLogisticRegression, p, "C", 1.0)
	if err != nil {
		return nil, err
	}
	if c <= 0 {
		return nil, invalidInputf("%s: C must be positive, got %v", KindLogisticRegression, c)
	}
	maxIter, err := intParam(KindLogisticRegression, p, "max_iter", 100)
	if err != nil {
		return nil, err
	}
	if maxIter <= 0 {
		return nil, invalidInputf("%s: max_iter must be positive, got %d", KindLogisticRegression, maxIter)
	}
	return &LogisticRegression{params: p.Clone(), cfg: LogisticConfig{C: c, MaxIter: maxIter}}, nil
}

func (m *LogisticRegression) Kind() string            { return KindLogisticRegression }
func (m *LogisticRegression) Trained() bool           { return m.trained }
func (m *LogisticRegression) Hyperparameters() Params { return m.params.Clone() }

// Config returns the parsed hyperparameters.
func (m *LogisticRegression) Config() LogisticConfig { return m.cfg }

// Classes returns the sorted class labels seen during training.
func (m *LogisticRegression) Classes() []float64 { return append([]float64(nil), m.classes...) }

func (m *LogisticRegression) Train(X [][]float64, y []float64) error {
	rows, cols, err := checkTrainingSet(KindLogisticRegression, X, y)
	if err != nil {
		return err
	}
	labels, index := classLabels(y)
	if len(labels) < 2 {
		return invalidInputf("%s: needs samples of at least 2 classes in the data, got %d", KindLogisticRegression, len(labels))
	}
	k := len(labels)
	targets := make([]int, rows)
	for i, v := range y {
		targets[i] = index[v]
	}

	c := m.cfg.C
	nW := k * cols
	z := make([]float64, k)
	// Parameter layout: k rows of cols weights, then k intercepts.
	objective := func(theta, grad []float64) float64 {
		if grad != nil {
			for i := range grad {
				grad[i] = 0
			}
		}
		var loss float64
		for i, row := range X {
			for cls := 0; cls < k; cls++ {
				z[cls] = floats.Dot(theta[cls*cols:(cls+1)*cols], row) + theta[nW+cls]
			}
			lse := floats.LogSumExp(z)
			loss += lse - z[targets[i]]
			if grad == nil {
				continue
			}
			for cls := 0; cls < k; cls++ {
				p := math.Exp(z[cls] - lse)
				if cls == targets[i] {
					p--
				}
				p *= c
				floats.AddScaled(grad[cls*cols:(cls+1)*cols], p, row)
				grad[nW+cls] += p
			}
		}
		var reg float64
		for j := 0; j < nW; j++ {
			reg += theta[j] * theta[j]
			if grad != nil {
				grad[j] += theta[j]
			}
		}
		return c*loss + 0.5*reg
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return objective(x, nil) },
		Grad: func(grad, x []float64) { objective(x, grad) },
	}
	settings := &optimize.Settings{
		MajorIterations:   m.cfg.MaxIter,
		GradientThreshold: gradTol,
	}
	res, err := optimize.Minimize(problem, make([]float64, nW+k), settings, &optimize.LBFGS{})
	// A line search that stalls near the optimum still leaves a usable
	// location; only give up when there is nothing finite to keep.
	if res == nil || !allFinite(res.X) {
		if err == nil {
			err = fmt.Errorf("no finite solution")
		}
		return fmt.Errorf("%s: optimisation failed: %w", KindLogisticRegression, err)
	}

	theta := res.X
	m.classes = labels
	m.coef = make([][]float64, k)
	m.intercept = make([]float64, k)
	for cls := 0; cls < k; cls++ {
		m.coef[cls] = append([]float64(nil), theta[cls*cols:(cls+1)*cols]...)
		m.intercept[cls] = theta[nW+cls]
	}
	m.trained = true
	return nil
}

func (m *LogisticRegression) Predict(X [][]float64) ([]float64, error) {
	if !m.trained {
		return nil, ErrNotTrained(KindLogisticRegression)
	}
	if err := checkPredictInput(KindLogisticRegression, X, len(m.coef[0])); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		best, bestScore := 0, math.Inf(-1)
		for cls, w := range m.coef {
			if s := floats.Dot(w, row) + m.intercept[cls]; s > bestScore {
				best, bestScore = cls, s
			}
		}
		out[i] = m.classes[best]
	}
	return out, nil
}

func (m *LogisticRegression) marshalState() ([]byte, error) {
	return json.Marshal(logisticState{Classes: m.classes, Coef: m.coef, Intercept: m.intercept})
}

func (m *LogisticRegression) unmarshalState(b []byte) error {
	var s logisticState
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if len(s.Classes) < 2 || len(s.Coef) != len(s.Classes) || len(s.Intercept) != len(s.Classes) {
		return fmt.Errorf("%s: inconsistent artifact state", KindLogisticRegression)
	}
	m.classes, m.coef, m.intercept = s.Classes, s.Coef, s.Intercept
	m.trained = true
	return nil
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
