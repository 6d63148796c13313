package main

// General API documentation for swaggo. Run `swag init -g cmd/mlserve/docs.go` to generate docs.
//
// @title           mlserve API
// @version         1.0
// @description     Train scikit-style regressors and classifiers, store them, and serve predictions.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
