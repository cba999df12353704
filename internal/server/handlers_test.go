package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/framesampler/internal/extract"
	"github.com/maauso/framesampler/internal/pipeline"
	"github.com/maauso/framesampler/internal/run"
)

// mockRunService implements RunService for testing.
type mockRunService struct {
	mock.Mock
}

func (m *mockRunService) Submit(ctx context.Context, req run.Request) (*run.Run, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*run.Run), args.Error(1)
}

func (m *mockRunService) Execute(ctx context.Context, runID string) (*run.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*run.Run), args.Error(1)
}

func (m *mockRunService) Get(ctx context.Context, runID string) (*run.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*run.Run), args.Error(1)
}

func (m *mockRunService) List(ctx context.Context) ([]*run.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*run.Run), args.Error(1)
}

var testDefaults = Defaults{
	Interval:    30,
	Backend:     extract.BackendLibrary,
	Mode:        pipeline.ModeTempFrames,
	Concurrency: pipeline.Parallel,
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T, opts ...HandlerOption) (*Handlers, *mockRunService) {
	t.Helper()
	svc := &mockRunService{}
	// Disable async processing so tests only see Submit
	opts = append([]HandlerOption{WithAsyncProcessing(false)}, opts...)
	return NewHandlers(svc, testDefaults, testLogger(), opts...), svc
}

func postRun(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	bodyJSON, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(bodyJSON))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateRun_Defaults(t *testing.T) {
	h, svc := newTestHandlers(t)

	expected := run.Request{
		Inputs:      []string{"/videos"},
		Interval:    30,
		Backend:     extract.BackendLibrary,
		Mode:        pipeline.ModeTempFrames,
		Concurrency: pipeline.Parallel,
	}
	svc.On("Submit", mock.Anything, expected).Return(run.NewWithID("run-1", expected), nil)

	rec := postRun(t, h.CreateRun, CreateRunRequest{Inputs: []string{"/videos"}})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp CreateRunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "run-1", resp.ID)
	assert.Equal(t, "IN_QUEUE", resp.Status)
	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestCreateRun_Overrides(t *testing.T) {
	h, svc := newTestHandlers(t, WithS3(true))

	expected := run.Request{
		Inputs:      []string{"/videos/a.mp4", "/videos/b"},
		Interval:    5,
		Backend:     extract.BackendProcess,
		Mode:        pipeline.ModeSkip,
		Concurrency: pipeline.Sequential,
		Publish:     true,
	}
	svc.On("Submit", mock.Anything, expected).Return(run.NewWithID("run-2", expected), nil)

	rec := postRun(t, h.CreateRun, CreateRunRequest{
		Inputs:         []string{"/videos/a.mp4", "/videos/b"},
		FrameInterval:  5,
		Backend:        "ffmpeg",
		CreationMode:   "skip",
		ProcessingMode: "sequential",
		PushToS3:       true,
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertExpectations(t)
}

func TestCreateRun_InvalidJSON(t *testing.T) {
	h, svc := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.CreateRun(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INVALID_JSON", resp.Code)
	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestCreateRun_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body CreateRunRequest
	}{
		{"missing inputs", CreateRunRequest{}},
		{"empty input", CreateRunRequest{Inputs: []string{""}}},
		{"negative interval", CreateRunRequest{Inputs: []string{"/v"}, FrameInterval: -1}},
		{"unknown backend", CreateRunRequest{Inputs: []string{"/v"}, Backend: "vlc"}},
		{"unknown creation mode", CreateRunRequest{Inputs: []string{"/v"}, CreationMode: "gif"}},
		{"unknown processing mode", CreateRunRequest{Inputs: []string{"/v"}, ProcessingMode: "cluster"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := newTestHandlers(t)

			rec := postRun(t, h.CreateRun, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateRun_S3NotConfigured(t *testing.T) {
	h, svc := newTestHandlers(t)

	rec := postRun(t, h.CreateRun, CreateRunRequest{Inputs: []string{"/v"}, PushToS3: true})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "S3_NOT_CONFIGURED", resp.Code)
	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestCreateRun_ServiceErrors(t *testing.T) {
	t.Run("invalid request", func(t *testing.T) {
		h, svc := newTestHandlers(t)
		svc.On("Submit", mock.Anything, mock.Anything).Return(nil, run.ErrInvalidRequest)

		rec := postRun(t, h.CreateRun, CreateRunRequest{Inputs: []string{"/v"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("storage failure", func(t *testing.T) {
		h, svc := newTestHandlers(t)
		svc.On("Submit", mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

		rec := postRun(t, h.CreateRun, CreateRunRequest{Inputs: []string{"/v"}})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "RUN_CREATION_FAILED", resp.Code)
	})
}

func TestCreateRun_AsyncExecutes(t *testing.T) {
	svc := &mockRunService{}
	h := NewHandlers(svc, testDefaults, testLogger())

	queued := run.NewWithID("run-async", run.Request{Inputs: []string{"/v"}, Interval: 30})
	svc.On("Submit", mock.Anything, mock.Anything).Return(queued, nil)

	executed := make(chan string, 1)
	svc.On("Execute", mock.Anything, "run-async").
		Run(func(args mock.Arguments) { executed <- args.String(1) }).
		Return(queued, nil)

	rec := postRun(t, h.CreateRun, CreateRunRequest{Inputs: []string{"/v"}})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case id := <-executed:
		assert.Equal(t, "run-async", id)
	case <-time.After(2 * time.Second):
		t.Fatal("run was not executed")
	}
}

func TestGetRun_Queued(t *testing.T) {
	h, svc := newTestHandlers(t)
	queued := run.NewWithID("run-1", run.Request{Inputs: []string{"/v"}, Interval: 10})
	svc.On("Get", mock.Anything, "run-1").Return(queued, nil)

	req := httptest.NewRequest(http.MethodGet, "/runs/run-1", nil)
	req.SetPathValue("id", "run-1")
	rec := httptest.NewRecorder()
	h.GetRun(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp RunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "run-1", resp.ID)
	assert.Equal(t, "IN_QUEUE", resp.Status)
	assert.Equal(t, 10, resp.FrameInterval)
	assert.Equal(t, "opencv", resp.Backend)
	assert.Equal(t, "temp_frames", resp.CreationMode)
	assert.Nil(t, resp.Stats)
	assert.NotEmpty(t, resp.CreatedAt)
	assert.Empty(t, resp.CompletedAt)
}

func TestGetRun_Completed(t *testing.T) {
	h, svc := newTestHandlers(t)
	done := run.NewWithID("run-1", run.Request{Inputs: []string{"/v"}, Interval: 10, Publish: true})
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete(pipeline.Stats{
		FilesProcessed: 3,
		FilesFailed:    1,
		TotalBytes:     4096,
		Elapsed:        1500 * time.Millisecond,
		Outputs:        []string{"/out/output_v.mp4"},
		Errors:         []string{"/v/broken.mp4: open failed"},
	}, []string{"https://bucket.s3.us-east-1.amazonaws.com/run-1/output_v.mp4"}))
	svc.On("Get", mock.Anything, "run-1").Return(done, nil)

	req := httptest.NewRequest(http.MethodGet, "/runs/run-1", nil)
	req.SetPathValue("id", "run-1")
	rec := httptest.NewRecorder()
	h.GetRun(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp RunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "COMPLETED", resp.Status)
	require.NotNil(t, resp.Stats)
	assert.Equal(t, 3, resp.Stats.FilesProcessed)
	assert.Equal(t, 1, resp.Stats.FilesFailed)
	assert.Equal(t, int64(4096), resp.Stats.TotalBytes)
	assert.InDelta(t, 75.0, resp.Stats.SuccessRate, 0.001)
	assert.Equal(t, int64(1500), resp.Stats.ElapsedMs)
	assert.Equal(t, []string{"/out/output_v.mp4"}, resp.Stats.Outputs)
	assert.Len(t, resp.Stats.Errors, 1)
	assert.Equal(t, []string{"https://bucket.s3.us-east-1.amazonaws.com/run-1/output_v.mp4"}, resp.URLs)
	assert.NotEmpty(t, resp.StartedAt)
	assert.NotEmpty(t, resp.CompletedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("Get", mock.Anything, "missing").Return(nil, run.ErrRunNotFound)

	req := httptest.NewRequest(http.MethodGet, "/runs/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.GetRun(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "RUN_NOT_FOUND", resp.Code)
}

func TestGetRun_MissingID(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/runs/", nil)
	rec := httptest.NewRecorder()
	h.GetRun(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "MISSING_RUN_ID", resp.Code)
}

func TestListRuns(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("List", mock.Anything).Return([]*run.Run{
		run.NewWithID("run-a", run.Request{Inputs: []string{"/a"}, Interval: 1}),
		run.NewWithID("run-b", run.Request{Inputs: []string{"/b"}, Interval: 2}),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	h.ListRuns(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ListRunsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, "run-a", resp.Runs[0].ID)
	assert.Equal(t, "run-b", resp.Runs[1].ID)
}

func TestListRuns_Empty(t *testing.T) {
	h, svc := newTestHandlers(t)
	svc.On("List", mock.Anything).Return([]*run.Run{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	h.ListRuns(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestRouter_Integration(t *testing.T) {
	h, svc := newTestHandlers(t)
	router := NewRouter(h, testLogger())

	queued := run.NewWithID("run-1", run.Request{Inputs: []string{"/v"}, Interval: 30})
	svc.On("Submit", mock.Anything, mock.Anything).Return(queued, nil)
	svc.On("Get", mock.Anything, "run-1").Return(queued, nil)
	svc.On("List", mock.Anything).Return([]*run.Run{queued}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	bodyJSON, _ := json.Marshal(CreateRunRequest{Inputs: []string{"/v"}})
	req = httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(bodyJSON))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var createResp CreateRunResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&createResp))

	req = httptest.NewRequest(http.MethodGet, "/runs/"+createResp.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/runs/run-1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Contains(t, buf.String(), `"path":"/runs"`)
	assert.Contains(t, buf.String(), `"status":418`)
}

func TestLoggingMiddleware_ImplicitStatusAndBytes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs", nil))

	assert.Contains(t, buf.String(), `"status":200`)
	assert.Contains(t, buf.String(), `"bytes":5`)
}

func TestRecoveryMiddleware_ResponseAlreadyStarted(t *testing.T) {
	handler := RecoveryMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late panic")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestChainMiddleware_Order(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	final := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") })
	ChainMiddleware(tag("outer"), tag("inner"))(final).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
