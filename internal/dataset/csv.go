package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// encodeFeatures writes a header of column indices, then one row per sample.
func encodeFeatures(X [][]float64, cols int) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, cols)
	for j := range header {
		header[j] = strconv.Itoa(j)
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	rec := make([]string, cols)
	for i, row := range X {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), cols)
		}
		for j, v := range row {
			rec[j] = formatFloat(v)
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func encodeTarget(y []float64) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"target"}); err != nil {
		return nil, err
	}
	for _, v := range y {
		if err := w.Write([]string{formatFloat(v)}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func readRecords(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("read %s: missing header", path)
	}
	return recs[1:], nil
}

func readFeatures(path string) ([][]float64, error) {
	recs, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	X := make([][]float64, len(recs))
	for i, rec := range recs {
		row := make([]float64, len(rec))
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d col %d: %w", path, i+1, j, err)
			}
			row[j] = v
		}
		X[i] = row
	}
	return X, nil
}

func readTarget(path string) ([]float64, error) {
	recs, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	y := make([]float64, len(recs))
	for i, rec := range recs {
		v, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		y[i] = v
	}
	return y, nil
}
