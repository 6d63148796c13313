package types

// ModelInfo describes a stored model.
type ModelInfo struct {
	// Unique model name.
	// example: housing-v1
	Name string `json:"name" example:"housing-v1"`
	// Registered model type.
	// example: linear_regression
	Type string `json:"type" example:"linear_regression"`
	// Hyperparameters the model was constructed with.
	Hyperparameters map[string]any `json:"hyperparameters"`
}

// ModelType documents a trainable model type.
type ModelType struct {
	// example: random_forest
	Name string `json:"name" example:"random_forest"`
	// example: Random Forest Classifier
	Description string `json:"description" example:"Random Forest Classifier"`
	// Hyperparameter name to human-readable documentation.
	Hyperparameters map[string]string `json:"hyperparameters"`
}
