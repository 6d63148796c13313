package estimator

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// ArtifactExt is the file extension of serialized models.
const ArtifactExt = ".model"

// artifactFormat is bumped whenever the envelope layout changes.
const artifactFormat = 1

type envelope struct {
	Format          int             `json:"format"`
	Kind            string          `json:"kind"`
	Hyperparameters Params          `json:"hyperparameters"`
	Trained         bool            `json:"trained"`
	State           json.RawMessage `json:"state,omitempty"`
}

// stateful is implemented by every family in this package.
type stateful interface {
	Model
	marshalState() ([]byte, error)
	unmarshalState([]byte) error
}

// New constructs an untrained model of the given kind.
func New(kind string, p Params) (Model, error) {
	switch kind {
	case KindLinearRegression:
		return NewLinearRegression(p)
	case KindLogisticRegression:
		return NewLogisticRegression(p)
	case KindRandomForest:
		return NewRandomForest(p)
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
}

// Encode serializes a model, fitted state included.
func Encode(m Model) ([]byte, error) {
	s, ok := m.(stateful)
	if !ok {
		return nil, fmt.Errorf("model kind %q does not support serialization", m.Kind())
	}
	env := envelope{
		Format:          artifactFormat,
		Kind:            m.Kind(),
		Hyperparameters: m.Hyperparameters(),
		Trained:         m.Trained(),
	}
	if m.Trained() {
		state, err := s.marshalState()
		if err != nil {
			return nil, fmt.Errorf("encode %s state: %w", m.Kind(), err)
		}
		env.State = state
	}
	return json.Marshal(env)
}

// Decode restores a model written by Encode.
func Decode(b []byte) (Model, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if env.Format != artifactFormat {
		return nil, fmt.Errorf("decode artifact: unsupported format %d", env.Format)
	}
	m, err := New(env.Kind, env.Hyperparameters)
	if err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if !env.Trained {
		return m, nil
	}
	s := m.(stateful)
	if err := s.unmarshalState(env.State); err != nil {
		return nil, fmt.Errorf("decode %s state: %w", env.Kind, err)
	}
	return m, nil
}
