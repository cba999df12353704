package run

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/framesampler/internal/extract"
	"github.com/maauso/framesampler/internal/pipeline"
)

// MockScanner is a mock implementation of Scanner.
type MockScanner struct {
	mock.Mock
}

func (m *MockScanner) Scan(inputs []string) map[string][]string {
	args := m.Called(inputs)
	return args.Get(0).(map[string][]string)
}

// MockCoordinator is a mock implementation of Coordinator.
type MockCoordinator struct {
	mock.Mock
}

func (m *MockCoordinator) RunAll(ctx context.Context, jobs []pipeline.ExtractionJob, mode pipeline.ConcurrencyMode) pipeline.Stats {
	args := m.Called(ctx, jobs, mode)
	return args.Get(0).(pipeline.Stats)
}

// MockPublisher is a mock implementation of Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key, path string) (string, error) {
	args := m.Called(ctx, key, path)
	return args.String(0), args.Error(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequest_Validate(t *testing.T) {
	assert.NoError(t, Request{Inputs: []string{"a"}, Interval: 1}.Validate())

	err := Request{Interval: 1}.Validate()
	assert.ErrorIs(t, err, ErrInvalidRequest)

	err = Request{Inputs: []string{"a"}, Interval: 0}.Validate()
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, extract.ErrInvalidInterval)
}

func TestService_Submit(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, new(MockScanner), new(MockCoordinator), nil, quietLogger())
	ctx := context.Background()

	run, err := svc.Submit(ctx, Request{Inputs: []string{"/videos"}, Interval: 30, Publish: true})
	require.NoError(t, err)
	assert.Equal(t, StatusInQueue, run.Status)

	saved, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/videos"}, saved.Request.Inputs)
	assert.True(t, saved.Request.Publish)
}

func TestService_Submit_Invalid(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, new(MockScanner), new(MockCoordinator), nil, quietLogger())

	_, err := svc.Submit(context.Background(), Request{Inputs: []string{"/videos"}})
	require.ErrorIs(t, err, ErrInvalidRequest)

	runs, _ := repo.List(context.Background())
	assert.Empty(t, runs)
}

func TestService_Process(t *testing.T) {
	scanner := new(MockScanner)
	scanner.On("Scan", []string{"/videos/a", "/videos/b"}).Return(map[string][]string{
		"/videos/b": {"/videos/b/2.mp4"},
		"/videos/a": {"/videos/a/1.mp4"},
	})

	stats := pipeline.Stats{FilesProcessed: 2, Outputs: []string{"/out/output_a.mp4", "/out/output_b.mp4"}}
	coordinator := new(MockCoordinator)
	coordinator.On("RunAll", mock.Anything, mock.MatchedBy(func(jobs []pipeline.ExtractionJob) bool {
		return len(jobs) == 2 &&
			jobs[0].Tag == "a" && jobs[1].Tag == "b" &&
			jobs[0].Plan.Interval == 15 &&
			jobs[0].Plan.Backend == extract.BackendProcess &&
			jobs[0].Mode == pipeline.ModeSkip
	}), pipeline.Sequential).Return(stats)

	repo := NewMemoryRepository()
	svc := NewService(repo, scanner, coordinator, nil, quietLogger())

	run, err := svc.Process(context.Background(), Request{
		Inputs:      []string{"/videos/a", "/videos/b"},
		Interval:    15,
		Backend:     extract.BackendProcess,
		Mode:        pipeline.ModeSkip,
		Concurrency: pipeline.Sequential,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 2, run.Stats.FilesProcessed)
	assert.False(t, run.StartedAt.IsZero())

	saved, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, saved.Status)
	assert.Equal(t, stats.Outputs, saved.Stats.Outputs)

	scanner.AssertExpectations(t)
	coordinator.AssertExpectations(t)
}

func TestService_Execute_NoVideos(t *testing.T) {
	scanner := new(MockScanner)
	scanner.On("Scan", mock.Anything).Return(map[string][]string{})
	coordinator := new(MockCoordinator)

	svc := NewService(NewMemoryRepository(), scanner, coordinator, nil, quietLogger())
	run, err := svc.Process(context.Background(), Request{Inputs: []string{"/empty"}, Interval: 1})

	require.ErrorIs(t, err, ErrNoVideosFound)
	require.NotNil(t, run)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, ErrNoVideosFound.Error(), run.Error)
	coordinator.AssertNotCalled(t, "RunAll", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Execute_NotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository(), new(MockScanner), new(MockCoordinator), nil, quietLogger())

	_, err := svc.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestService_Execute_Twice(t *testing.T) {
	scanner := new(MockScanner)
	scanner.On("Scan", mock.Anything).Return(map[string][]string{"/v": {"/v/a.mp4"}})
	coordinator := new(MockCoordinator)
	coordinator.On("RunAll", mock.Anything, mock.Anything, mock.Anything).Return(pipeline.Stats{})

	svc := NewService(NewMemoryRepository(), scanner, coordinator, nil, quietLogger())
	run, err := svc.Process(context.Background(), Request{Inputs: []string{"/v"}, Interval: 1})
	require.NoError(t, err)

	_, err = svc.Execute(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_Execute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	scanner := new(MockScanner)
	scanner.On("Scan", mock.Anything).Return(map[string][]string{"/v": {"/v/a.mp4"}})
	coordinator := new(MockCoordinator)
	coordinator.On("RunAll", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(pipeline.Stats{FilesProcessed: 1})

	repo := NewMemoryRepository()
	svc := NewService(repo, scanner, coordinator, nil, quietLogger())
	run, err := svc.Process(ctx, Request{Inputs: []string{"/v"}, Interval: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, run.Status)

	saved, err := repo.FindByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, saved.Status)
	assert.Equal(t, 1, saved.Stats.FilesProcessed)
}

func TestService_Publish(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "output_a.mp4")
	broken := filepath.Join(dir, "output_b.mp4")
	frames := filepath.Join(dir, "output_c_frames")
	require.NoError(t, os.WriteFile(video, []byte("mp4"), 0o600))
	require.NoError(t, os.WriteFile(broken, []byte("mp4"), 0o600))
	require.NoError(t, os.Mkdir(frames, 0o750))

	scanner := new(MockScanner)
	scanner.On("Scan", mock.Anything).Return(map[string][]string{"/v": {"/v/a.mp4"}})
	coordinator := new(MockCoordinator)
	coordinator.On("RunAll", mock.Anything, mock.Anything, mock.Anything).
		Return(pipeline.Stats{FilesProcessed: 3, Outputs: []string{video, broken, frames}})

	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(key string) bool {
		return filepath.Base(key) == "output_a.mp4"
	}), video).Return("https://bucket.s3.us-east-1.amazonaws.com/output_a.mp4", nil)
	publisher.On("Publish", mock.Anything, mock.Anything, broken).Return("", errors.New("access denied"))

	svc := NewService(NewMemoryRepository(), scanner, coordinator, publisher, quietLogger())
	run, err := svc.Process(context.Background(), Request{Inputs: []string{"/v"}, Interval: 1, Publish: true})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, []string{"https://bucket.s3.us-east-1.amazonaws.com/output_a.mp4"}, run.URLs)
	require.Len(t, run.Stats.Errors, 1)
	assert.Contains(t, run.Stats.Errors[0], "access denied")
	// Local outputs are kept even when publishing fails.
	assert.FileExists(t, broken)
	publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestService_List(t *testing.T) {
	svc := NewService(NewMemoryRepository(), new(MockScanner), new(MockCoordinator), nil, quietLogger())
	ctx := context.Background()

	_, err := svc.Submit(ctx, Request{Inputs: []string{"/a"}, Interval: 1})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, Request{Inputs: []string{"/b"}, Interval: 1})
	require.NoError(t, err)

	runs, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
