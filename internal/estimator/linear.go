package estimator

import (
	"fmt"

	json "github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LinearRegressionDescription is the registry description of the family.
const LinearRegressionDescription = "Linear Regression model for regression tasks"

// LinearRegressionHyperparameters documents the accepted hyperparameters.
func LinearRegressionHyperparameters() map[string]string {
	return map[string]string{
		"fit_intercept": "bool: whether to calculate intercept (default: true)",
	}
}

// LinearConfig is the parsed hyperparameter set of LinearRegression.
type LinearConfig struct {
	FitIntercept bool
}

// LinearRegression is ordinary least squares. The minimum-norm solution is
// taken from a thin SVD so rank-deficient designs still fit.
type LinearRegression struct {
	params  Params
	cfg     LinearConfig
	trained bool

	coef      []float64
	intercept float64
}

type linearState struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// NewLinearRegression builds an untrained model. Recognised key: fit_intercept.
func NewLinearRegression(p Params) (*LinearRegression, error) {
	fit, err := boolParam(KindLinearRegression, p, "fit_intercept", true)
	if err != nil {
		return nil, err
	}
	return &LinearRegression{params: p.Clone(), cfg: LinearConfig{FitIntercept: fit}}, nil
}

func (m *LinearRegression) Kind() string            { return KindLinearRegression }
func (m *LinearRegression) Trained() bool           { return m.trained }
func (m *LinearRegression) Hyperparameters() Params { return m.params.Clone() }

// Config returns the parsed hyperparameters.
func (m *LinearRegression) Config() LinearConfig { return m.cfg }

func (m *LinearRegression) Train(X [][]float64, y []float64) error {
	rows, cols, err := checkTrainingSet(KindLinearRegression, X, y)
	if err != nil {
		return err
	}
	a := mat.NewDense(rows, cols, nil)
	for i, row := range X {
		a.SetRow(i, row)
	}
	b := mat.NewVecDense(rows, append([]float64(nil), y...))

	xMean := make([]float64, cols)
	var yMean float64
	if m.cfg.FitIntercept {
		for j := 0; j < cols; j++ {
			xMean[j] = stat.Mean(mat.Col(nil, j, a), nil)
		}
		yMean = stat.Mean(y, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				a.Set(i, j, a.At(i, j)-xMean[j])
			}
			b.SetVec(i, b.AtVec(i)-yMean)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return fmt.Errorf("%s: singular value decomposition did not converge", KindLinearRegression)
	}
	coef := make([]float64, cols)
	// Singular values below eps*max(rows, cols) of the largest are treated as zero.
	rcond := 2.220446049250313e-16 * float64(max(rows, cols))
	if rank := svd.Rank(rcond); rank > 0 {
		var w mat.VecDense
		svd.SolveVecTo(&w, b, rank)
		for j := range coef {
			coef[j] = w.AtVec(j)
		}
	}

	m.coef = coef
	m.intercept = 0
	if m.cfg.FitIntercept {
		m.intercept = yMean - floats.Dot(xMean, coef)
	}
	m.trained = true
	return nil
}

func (m *LinearRegression) Predict(X [][]float64) ([]float64, error) {
	if !m.trained {
		return nil, ErrNotTrained(KindLinearRegression)
	}
	if err := checkPredictInput(KindLinearRegression, X, len(m.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = floats.Dot(row, m.coef) + m.intercept
	}
	return out, nil
}

// Coefficients returns the fitted weights and intercept.
func (m *LinearRegression) Coefficients() ([]float64, float64) {
	return append([]float64(nil), m.coef...), m.intercept
}

func (m *LinearRegression) marshalState() ([]byte, error) {
	return json.Marshal(linearState{Coef: m.coef, Intercept: m.intercept})
}

func (m *LinearRegression) unmarshalState(b []byte) error {
	var s linearState
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	m.coef, m.intercept = s.Coef, s.Intercept
	m.trained = true
	return nil
}
