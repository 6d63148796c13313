package manager

import "mlserve/internal/estimator"

// Record is the persisted metadata entry for one model.
type Record struct {
	Type            string           `json:"type"`
	Hyperparameters estimator.Params `json:"hyperparameters"`
}
