package estimator

import (
	"math"
	"sort"
)

// checkFeatures validates a row-major feature matrix and returns its shape.
func checkFeatures(kind string, X [][]float64) (rows, cols int, err error) {
	if len(X) == 0 {
		return 0, 0, invalidInputf("%s: feature matrix is empty", kind)
	}
	cols = len(X[0])
	if cols == 0 {
		return 0, 0, invalidInputf("%s: feature rows must not be empty", kind)
	}
	for i, row := range X {
		if len(row) != cols {
			return 0, 0, invalidInputf("%s: row %d has %d features, expected %d", kind, i, len(row), cols)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, invalidInputf("%s: row %d contains a non-finite value", kind, i)
			}
		}
	}
	return len(X), cols, nil
}

// checkTrainingSet validates X and y together.
func checkTrainingSet(kind string, X [][]float64, y []float64) (rows, cols int, err error) {
	rows, cols, err = checkFeatures(kind, X)
	if err != nil {
		return 0, 0, err
	}
	if len(y) != rows {
		return 0, 0, invalidInputf("%s: got %d targets for %d samples", kind, len(y), rows)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, invalidInputf("%s: target %d is not finite", kind, i)
		}
	}
	return rows, cols, nil
}

// checkPredictInput validates X against the feature count seen at training.
func checkPredictInput(kind string, X [][]float64, nFeatures int) error {
	_, cols, err := checkFeatures(kind, X)
	if err != nil {
		return err
	}
	if cols != nFeatures {
		return invalidInputf("%s: X has %d features, model was trained with %d", kind, cols, nFeatures)
	}
	return nil
}

// classLabels returns the sorted distinct values of y and an index lookup.
func classLabels(y []float64) ([]float64, map[float64]int) {
	seen := make(map[float64]struct{}, 4)
	var labels []float64
	for _, v := range y {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		labels = append(labels, v)
	}
	sort.Float64s(labels)
	index := make(map[float64]int, len(labels))
	for i, v := range labels {
		index[v] = i
	}
	return labels, index
}
