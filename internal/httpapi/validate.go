package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
)

var validate = func() *validator.Validate {
	v := validator.New()
	// Report JSON field names, e.g. X_train instead of XTrain.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// decodeJSON reads a size-limited JSON body into dst and validates it.
// Errors carry the HTTP status to return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return requestError{msg: "Content-Type must be application/json", code: http.StatusUnsupportedMediaType}
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return requestError{msg: "request body too large", code: http.StatusRequestEntityTooLarge}
		}
		return requestError{msg: "failed to read request body", code: http.StatusBadRequest}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return requestError{msg: "invalid JSON body", code: http.StatusBadRequest}
	}
	if err := validate.Struct(dst); err != nil {
		return requestError{msg: validationMessage(err), code: http.StatusBadRequest}
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "min":
			parts = append(parts, fmt.Sprintf("%s must have at least %s element(s)", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
