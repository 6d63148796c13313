package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"mlserve/internal/estimator"
	"mlserve/internal/manager"
	"mlserve/internal/registry"
	"mlserve/pkg/types"
)

type fakeService struct {
	trainErr   error
	predictErr error
	getErr     error
	deleteErr  error
	ready      bool

	gotTrain   types.TrainRequest
	gotPredict types.PredictRequest
	deleted    []string
}

func (f *fakeService) Train(_ context.Context, req types.TrainRequest) (types.TrainResponse, error) {
	f.gotTrain = req
	if f.trainErr != nil {
		return types.TrainResponse{}, f.trainErr
	}
	return types.TrainResponse{ModelName: req.ModelName, ModelType: req.ModelType, Message: "Model trained successfully"}, nil
}

func (f *fakeService) Predict(_ context.Context, req types.PredictRequest) (types.PredictResponse, error) {
	f.gotPredict = req
	if f.predictErr != nil {
		return types.PredictResponse{}, f.predictErr
	}
	out := make([]float64, len(req.X))
	for i, row := range req.X {
		out[i] = row[0] * 2
	}
	return types.PredictResponse{ModelName: req.ModelName, Predictions: out}, nil
}

func (f *fakeService) ListModels() []types.ModelInfo {
	return []types.ModelInfo{{Name: "a", Type: "linear_regression", Hyperparameters: map[string]any{}}}
}

func (f *fakeService) GetModel(name string) (types.ModelInfo, error) {
	if f.getErr != nil {
		return types.ModelInfo{}, f.getErr
	}
	return types.ModelInfo{Name: name, Type: "random_forest", Hyperparameters: map[string]any{"n_estimators": float64(10)}}, nil
}

func (f *fakeService) DeleteModel(_ context.Context, name string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeService) ModelTypes() []types.ModelType {
	return []types.ModelType{{Name: "linear_regression", Description: "Linear Regression", Hyperparameters: map[string]string{}}}
}

func (f *fakeService) Status() types.StatusResponse { return types.StatusResponse{Models: 1, StoreDir: "/tmp/x"} }
func (f *fakeService) Ready() bool                  { return f.ready }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestBannerAndHealth(t *testing.T) {
	h := NewMux(&fakeService{ready: true})

	rr := do(t, h, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("/ status=%d", rr.Code)
	}
	got := decodeBody[types.MessageResponse](t, rr)
	if diff := cmp.Diff(types.MessageResponse{Status: "ok", Message: "MLOps API is running"}, got); diff != "" {
		t.Fatalf("/ body (-want +got):\n%s", diff)
	}

	rr = do(t, h, http.MethodGet, "/health", "")
	got = decodeBody[types.MessageResponse](t, rr)
	if got.Status != "healthy" || got.Message != "Service is operational" {
		t.Fatalf("/health body=%+v", got)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}

	rr = do(t, h, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("/healthz %d %q", rr.Code, rr.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)
	rr := do(t, h, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable || rr.Body.String() != "loading" {
		t.Fatalf("not ready: %d %q", rr.Code, rr.Body.String())
	}
	svc.ready = true
	rr = do(t, h, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ready" {
		t.Fatalf("ready: %d %q", rr.Code, rr.Body.String())
	}
}

func TestTrainAndPredict(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	body := `{"model_type":"linear_regression","model_name":"m1","hyperparameters":{"fit_intercept":true},"X_train":[[1],[2],[3]],"y_train":[2,4,6]}`
	rr := do(t, h, http.MethodPost, "/models/train", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("train status=%d body=%s", rr.Code, rr.Body.String())
	}
	tr := decodeBody[types.TrainResponse](t, rr)
	if tr.ModelName != "m1" || tr.Message != "Model trained successfully" {
		t.Fatalf("train resp=%+v", tr)
	}
	if diff := cmp.Diff([][]float64{{1}, {2}, {3}}, svc.gotTrain.XTrain); diff != "" {
		t.Fatalf("X_train (-want +got):\n%s", diff)
	}
	if svc.gotTrain.Hyperparameters["fit_intercept"] != true {
		t.Fatalf("hyperparameters not forwarded: %+v", svc.gotTrain.Hyperparameters)
	}

	rr = do(t, h, http.MethodPost, "/models/predict", `{"model_name":"m1","X":[[6],[7]]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("predict status=%d body=%s", rr.Code, rr.Body.String())
	}
	pr := decodeBody[types.PredictResponse](t, rr)
	if diff := cmp.Diff(types.PredictResponse{ModelName: "m1", Predictions: []float64{12, 14}}, pr); diff != "" {
		t.Fatalf("predict (-want +got):\n%s", diff)
	}
}

func TestListGetDeleteTypes(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)

	rr := do(t, h, http.MethodGet, "/models", "")
	list := decodeBody[[]types.ModelInfo](t, rr)
	if len(list) != 1 || list[0].Name != "a" {
		t.Fatalf("list=%+v", list)
	}

	rr = do(t, h, http.MethodGet, "/models/types", "")
	mt := decodeBody[[]types.ModelType](t, rr)
	if len(mt) != 1 || mt[0].Name != "linear_regression" {
		t.Fatalf("types=%+v", mt)
	}

	rr = do(t, h, http.MethodGet, "/models/rf1", "")
	info := decodeBody[types.ModelInfo](t, rr)
	if info.Name != "rf1" || info.Type != "random_forest" {
		t.Fatalf("info=%+v", info)
	}

	rr = do(t, h, http.MethodDelete, "/models/rf1", "")
	msg := decodeBody[types.MessageResponse](t, rr)
	if msg.Status != "success" || msg.Message != "Model 'rf1' deleted successfully" {
		t.Fatalf("delete=%+v", msg)
	}
	if diff := cmp.Diff([]string{"rf1"}, svc.deleted); diff != "" {
		t.Fatalf("deleted (-want +got):\n%s", diff)
	}

	rr = do(t, h, http.MethodGet, "/status", "")
	st := decodeBody[types.StatusResponse](t, rr)
	if st.Models != 1 || st.StoreDir != "/tmp/x" {
		t.Fatalf("status=%+v", st)
	}
}

func TestErrorMapping(t *testing.T) {
	_, unknownType := registry.Default().Resolve("no_such_type")
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown type", unknownType, http.StatusBadRequest},
		{"invalid name", manager.ErrInvalidName("../x"), http.StatusBadRequest},
		{"not found", manager.ErrModelNotFound("m"), http.StatusNotFound},
		{"duplicate", manager.ErrDuplicateModel("m"), http.StatusConflict},
		{"not trained", estimator.ErrNotTrained("linear_regression"), http.StatusConflict},
		{"wrapped not found", errors.Join(errors.New("ctx"), manager.ErrModelNotFound("m")), http.StatusNotFound},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMux(&fakeService{trainErr: tc.err, predictErr: tc.err, getErr: tc.err, deleteErr: tc.err})
			rr := do(t, h, http.MethodPost, "/models/predict", `{"model_name":"m","X":[[1]]}`)
			if rr.Code != tc.want {
				t.Fatalf("predict status=%d want %d", rr.Code, tc.want)
			}
			er := decodeBody[types.ErrorResponse](t, rr)
			if er.Code != tc.want || er.Error != tc.err.Error() {
				t.Fatalf("error body=%+v", er)
			}
			if rr = do(t, h, http.MethodDelete, "/models/m", ""); rr.Code != tc.want {
				t.Fatalf("delete status=%d want %d", rr.Code, tc.want)
			}
			if rr = do(t, h, http.MethodGet, "/models/m", ""); rr.Code != tc.want {
				t.Fatalf("get status=%d want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	h := NewMux(&fakeService{predictErr: manager.ErrModelNotFound("ghost")})
	rr := do(t, h, http.MethodPost, "/models/predict", `{"model_name":"ghost","X":[[1]]}`)
	er := decodeBody[types.ErrorResponse](t, rr)
	if er.Error != "Model 'ghost' not found" {
		t.Fatalf("message=%q", er.Error)
	}
}

func TestRequestValidation(t *testing.T) {
	h := NewMux(&fakeService{})
	cases := []struct {
		name string
		path string
		body string
		want string
	}{
		{"missing model_type", "/models/train", `{"model_name":"m","X_train":[[1]],"y_train":[1]}`, "model_type is required"},
		{"empty X_train", "/models/train", `{"model_type":"linear_regression","model_name":"m","X_train":[],"y_train":[1]}`, "X_train"},
		{"empty row", "/models/predict", `{"model_name":"m","X":[[]]}`, "X"},
		{"missing model_name", "/models/predict", `{"X":[[1]]}`, "model_name is required"},
		{"bad json", "/models/predict", `{"model_name":`, "invalid JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tc.path, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			er := decodeBody[types.ErrorResponse](t, rr)
			if !strings.Contains(er.Error, tc.want) {
				t.Fatalf("error %q does not mention %q", er.Error, tc.want)
			}
		})
	}
}

func TestContentTypeAndBodyLimit(t *testing.T) {
	h := NewMux(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/models/predict", strings.NewReader(`{"model_name":"m","X":[[1]]}`))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("content-type status=%d", rr.Code)
	}

	SetMaxBodyBytes(32)
	defer SetMaxBodyBytes(0)
	rr = do(t, h, http.MethodPost, "/models/predict", `{"model_name":"m","X":[[1,2,3,4,5,6,7,8,9,10,11,12]]}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("body limit status=%d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	SetCORSOptions(true, []string{"https://ui.example"}, []string{"GET", "POST", "DELETE"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)
	h := NewMux(&fakeService{})

	req := httptest.NewRequest(http.MethodOptions, "/models/train", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example" {
		t.Fatalf("allow-origin=%q", got)
	}
}
