package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storyscroll/api/internal/logger"
	"github.com/storyscroll/api/internal/model"
	"github.com/storyscroll/api/internal/pipeline"
	"github.com/storyscroll/api/internal/registry"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrShuttingDown   = errors.New("service is shutting down")
)

// JobRunner executes one job to completion. pipeline.Executor implements it.
type JobRunner interface {
	Run(ctx context.Context, req pipeline.Request) error
	OutputPath(jobID string) string
}

// RemoteStore removes published artifacts. client.R2Client implements it.
type RemoteStore interface {
	KeyFromURL(u string) (string, bool)
	Delete(ctx context.Context, key string) error
}

// GenerateService owns job submission, status and cancellation
type GenerateService struct {
	registry *registry.Registry
	runner   JobRunner
	videos   *VideoService
	remote   RemoteStore
	log      *logger.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc

	// mu orders wg.Add in Submit against closed in Shutdown.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewGenerateService creates a generate service. remote may be nil.
func NewGenerateService(reg *registry.Registry, runner JobRunner, videos *VideoService, remote RemoteStore, log *logger.Logger) *GenerateService {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GenerateService{
		registry:  reg,
		runner:    runner,
		videos:    videos,
		remote:    remote,
		log:       log,
		baseCtx:   ctx,
		cancelAll: cancel,
	}
}

// Submit validates req, records a queued job and starts its pipeline in the
// background. It never waits on the pipeline.
func (s *GenerateService) Submit(req *model.GenerateRequest) (*model.GenerateResponse, error) {
	if req == nil || req.Narrative == nil || strings.TrimSpace(req.Narrative.Text) == "" {
		return nil, fmt.Errorf("%w: story text is required", ErrInvalidRequest)
	}
	ref, err := s.videoRef(req.VideoSelection)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShuttingDown
	}

	jobID := uuid.New().String()
	ctx, cancel := context.WithCancel(s.baseCtx)
	task := registry.NewTask(cancel)

	job := model.Job{
		ID:        jobID,
		Status:    model.JobStatusQueued,
		Progress:  0,
		Step:      pipeline.StepQueued,
		CreatedAt: time.Now(),
	}
	if err := s.registry.Create(job, task); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	run := pipeline.Request{
		JobID:    jobID,
		Text:     strings.TrimSpace(req.Narrative.Text),
		VideoRef: ref,
		Voice:    req.Voice,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer task.Close()
		defer cancel()
		_ = s.runner.Run(ctx, run)
	}()

	s.log.Info("job queued", "job_id", jobID, "words", len(strings.Fields(run.Text)))

	return &model.GenerateResponse{
		JobID:   jobID,
		Status:  model.JobStatusQueued,
		Message: fmt.Sprintf("Generation job started. Poll /api/generate/%s/status for updates.", jobID),
	}, nil
}

// videoRef picks the background reference: URL, then file path, then
// library ID.
func (s *GenerateService) videoRef(sel *model.VideoSelection) (string, error) {
	if sel == nil {
		return "", fmt.Errorf("%w: a video selection is required", ErrInvalidRequest)
	}

	if raw := strings.TrimSpace(sel.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return "", fmt.Errorf("%w: video url must be http or https", ErrInvalidRequest)
		}
		return raw, nil
	}

	if p := strings.TrimSpace(sel.FilePath); p != "" {
		resolved, err := s.videos.LocalPath(p)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return resolved, nil
	}

	if id := strings.TrimSpace(sel.ID); id != "" {
		video, err := s.videos.Get(id)
		if err != nil {
			return "", fmt.Errorf("%w: unknown video %q", ErrInvalidRequest, id)
		}
		return s.videos.LocalPath(video.FilePath)
	}

	return "", fmt.Errorf("%w: a video selection is required", ErrInvalidRequest)
}

// Status returns a snapshot of the job record.
func (s *GenerateService) Status(jobID string) (model.Job, error) {
	return s.registry.Get(jobID)
}

// Cancel removes the job and stops its pipeline. The executor still removes
// the job's temporaries; a finished job's artifact is deleted here.
func (s *GenerateService) Cancel(ctx context.Context, jobID string) (*model.CancelResponse, error) {
	job, task, err := s.registry.Delete(jobID)
	if err != nil {
		return nil, err
	}
	if task != nil {
		task.Cancel()
	}

	if job.Status == model.JobStatusDone {
		s.removeArtifact(ctx, job)
	}

	s.log.Info("job cancelled", "job_id", jobID, "status", job.Status)
	return &model.CancelResponse{JobID: jobID, Message: "Job cancelled."}, nil
}

func (s *GenerateService) removeArtifact(ctx context.Context, job model.Job) {
	if err := os.Remove(s.runner.OutputPath(job.ID)); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove output", "job_id", job.ID, "error", err)
	}
	if s.remote == nil || job.Output == nil {
		return
	}
	if key, ok := s.remote.KeyFromURL(*job.Output); ok {
		if err := s.remote.Delete(ctx, key); err != nil {
			s.log.Warn("failed to remove published output", "job_id", job.ID, "error", err)
		}
	}
}

// Shutdown cancels every running job and waits for the executors to finish
// their cleanup, or for ctx to expire.
func (s *GenerateService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
