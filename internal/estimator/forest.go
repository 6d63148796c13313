package estimator

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	json "github.com/goccy/go-json"
)

// RandomForestDescription is the registry description of the family.
const RandomForestDescription = "Random Forest model for classification tasks"

// RandomForestHyperparameters documents the accepted hyperparameters.
func RandomForestHyperparameters() map[string]string {
	return map[string]string{
		"n_estimators": "int: number of trees in the forest (default: 100)",
		"max_depth":    "int: maximum depth of trees (default: None)",
		"random_state": "int: random seed (default: 42)",
	}
}

// ForestConfig is the parsed hyperparameter set of RandomForest.
// MaxDepth <= 0 means trees grow until leaves are pure.
type ForestConfig struct {
	NEstimators int
	MaxDepth    int
	RandomState int64
}

// RandomForest is a bagged ensemble of CART classification trees split on
// Gini impurity, considering sqrt(features) candidates per split. Prediction
// is a majority vote; ties go to the smallest label.
type RandomForest struct {
	params  Params
	cfg     ForestConfig
	trained bool

	classes   []float64
	nFeatures int
	trees     []tree
}

// tree is stored flat so it serialises without recursion.
type tree struct {
	Nodes []treeNode `json:"nodes"`
}

// treeNode is a split when Left >= 0, otherwise a leaf voting for Class.
type treeNode struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Class     int     `json:"c,omitempty"`
}

type forestState struct {
	Classes   []float64 `json:"classes"`
	NFeatures int       `json:"n_features"`
	Trees     []tree    `json:"trees"`
}

// NewRandomForest builds an untrained model. Recognised keys: n_estimators,
// max_depth, random_state.
func NewRandomForest(p Params) (*RandomForest, error) {
	n, err := intParam(KindRandomForest, p, "n_estimators", 100)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, invalidInputf("%s: n_estimators must be positive, got %d", KindRandomForest, n)
	}
	depth, set, err := optionalIntParam(KindRandomForest, p, "max_depth")
	if err != nil {
		return nil, err
	}
	if set && depth <= 0 {
		return nil, invalidInputf("%s: max_depth must be positive or null, got %d", KindRandomForest, depth)
	}
	seed, err := intParam(KindRandomForest, p, "random_state", 42)
	if err != nil {
		return nil, err
	}
	cfg := ForestConfig{NEstimators: n, MaxDepth: depth, RandomState: int64(seed)}
	return &RandomForest{params: p.Clone(), cfg: cfg}, nil
}

func (m *RandomForest) Kind() string            { return KindRandomForest }
func (m *RandomForest) Trained() bool           { return m.trained }
func (m *RandomForest) Hyperparameters() Params { return m.params.Clone() }

// Config returns the parsed hyperparameters.
func (m *RandomForest) Config() ForestConfig { return m.cfg }

func (m *RandomForest) Train(X [][]float64, y []float64) error {
	rows, cols, err := checkTrainingSet(KindRandomForest, X, y)
	if err != nil {
		return err
	}
	labels, index := classLabels(y)
	targets := make([]int, rows)
	for i, v := range y {
		targets[i] = index[v]
	}

	rng := rand.New(rand.NewSource(m.cfg.RandomState))
	b := &treeBuilder{
		X:        X,
		y:        targets,
		nClasses: len(labels),
		maxDepth: m.cfg.MaxDepth,
		mtry:     max(1, int(math.Sqrt(float64(cols)))),
		rng:      rng,
	}
	trees := make([]tree, m.cfg.NEstimators)
	sample := make([]int, rows)
	for t := range trees {
		for i := range sample {
			sample[i] = rng.Intn(rows)
		}
		trees[t] = b.build(append([]int(nil), sample...))
	}

	m.classes = labels
	m.nFeatures = cols
	m.trees = trees
	m.trained = true
	return nil
}

func (m *RandomForest) Predict(X [][]float64) ([]float64, error) {
	if !m.trained {
		return nil, ErrNotTrained(KindRandomForest)
	}
	if err := checkPredictInput(KindRandomForest, X, m.nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	votes := make([]int, len(m.classes))
	for i, row := range X {
		for c := range votes {
			votes[c] = 0
		}
		for _, t := range m.trees {
			votes[t.classify(row)]++
		}
		best := 0
		for c := 1; c < len(votes); c++ {
			if votes[c] > votes[best] {
				best = c
			}
		}
		out[i] = m.classes[best]
	}
	return out, nil
}

func (t tree) classify(row []float64) int {
	n := t.Nodes[0]
	for n.Left >= 0 {
		if row[n.Feature] <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n.Class
}

type treeBuilder struct {
	X        [][]float64
	y        []int
	nClasses int
	maxDepth int
	mtry     int
	rng      *rand.Rand

	nodes []treeNode
}

func (b *treeBuilder) build(sample []int) tree {
	b.nodes = nil
	b.grow(sample, 0)
	return tree{Nodes: b.nodes}
}

// grow appends the subtree for sample and returns its root index.
func (b *treeBuilder) grow(sample []int, depth int) int {
	idx := len(b.nodes)
	counts := b.classCounts(sample)
	b.nodes = append(b.nodes, treeNode{Left: -1, Right: -1, Class: majority(counts)})

	if len(sample) < 2 || isPure(counts) || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return idx
	}
	feature, threshold, ok := b.bestSplit(sample, counts)
	if !ok {
		return idx
	}
	var left, right []int
	for _, s := range sample {
		if b.X[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx] = treeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return idx
}

// bestSplit evaluates at least mtry random features, drawing more only while
// none of the drawn ones admits a split (all constant on this sample).
func (b *treeBuilder) bestSplit(sample []int, parent []int) (feature int, threshold float64, ok bool) {
	cols := len(b.X[0])
	n := float64(len(sample))
	parentGini := gini(parent, n)
	bestGain := 0.0

	order := append([]int(nil), sample...)
	left := make([]int, b.nClasses)
	right := make([]int, b.nClasses)
	for tried, f := range b.rng.Perm(cols) {
		if tried >= b.mtry && ok {
			break
		}
		sort.Slice(order, func(i, j int) bool { return b.X[order[i]][f] < b.X[order[j]][f] })
		for c := range left {
			left[c] = 0
		}
		copy(right, parent)
		for i := 0; i < len(order)-1; i++ {
			cls := b.y[order[i]]
			left[cls]++
			right[cls]--
			lo, hi := b.X[order[i]][f], b.X[order[i+1]][f]
			if lo == hi {
				continue
			}
			nl := float64(i + 1)
			nr := n - nl
			gain := parentGini - (nl/n)*gini(left, nl) - (nr/n)*gini(right, nr)
			if !ok || gain > bestGain {
				feature, threshold, bestGain, ok = f, splitPoint(lo, hi), gain, true
			}
		}
	}
	return feature, threshold, ok
}

// splitPoint is the midpoint of lo < hi, or lo when the midpoint rounds up
// to hi (adjacent floats), so that lo always goes left and hi right.
func splitPoint(lo, hi float64) float64 {
	if mid := lo + (hi-lo)/2; mid < hi {
		return mid
	}
	return lo
}

func (b *treeBuilder) classCounts(sample []int) []int {
	counts := make([]int, b.nClasses)
	for _, s := range sample {
		counts[b.y[s]]++
	}
	return counts
}

func gini(counts []int, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / n
		g -= p * p
	}
	return g
}

func isPure(counts []int) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func majority(counts []int) int {
	best := 0
	for c := 1; c < len(counts); c++ {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

func (m *RandomForest) marshalState() ([]byte, error) {
	return json.Marshal(forestState{Classes: m.classes, NFeatures: m.nFeatures, Trees: m.trees})
}

func (m *RandomForest) unmarshalState(b []byte) error {
	var s forestState
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if len(s.Classes) == 0 || len(s.Trees) == 0 {
		return fmt.Errorf("%s: inconsistent artifact state", KindRandomForest)
	}
	if s.NFeatures <= 0 {
		return fmt.Errorf("%s: inconsistent artifact state", KindRandomForest)
	}
	for ti, t := range s.Trees {
		if err := t.validate(len(s.Classes), s.NFeatures); err != nil {
			return fmt.Errorf("%s: tree %d: %w", KindRandomForest, ti, err)
		}
	}
	m.classes, m.nFeatures, m.trees = s.Classes, s.NFeatures, s.Trees
	m.trained = true
	return nil
}

// validate checks node references so classify cannot index out of range or
// loop. Children always follow their parent in the flat layout.
func (t tree) validate(nClasses, nFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Left < 0 {
			if n.Class < 0 || n.Class >= nClasses {
				return fmt.Errorf("node %d: class %d out of range", i, n.Class)
			}
			continue
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: child reference out of range", i)
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
	}
	return nil
}
