// Package pipeline runs one generation job from background video to
// finished artifact and keeps its registry record current.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/storyscroll/api/internal/logger"
	"github.com/storyscroll/api/internal/media"
	"github.com/storyscroll/api/internal/model"
	"github.com/storyscroll/api/internal/progress"
	"github.com/storyscroll/api/internal/registry"
	"github.com/storyscroll/api/internal/source"
)

// Stage names.
const (
	StageResolve    = "resolve"
	StageSynthesize = "synthesize"
	StageProbe      = "probe"
	StageComposite  = "composite"
	StagePublish    = "publish"
)

const (
	StepQueued   = "Queued"
	StepComplete = "Complete"
)

// Stages are the weighted pipeline stages in execution order.
var Stages = []progress.Stage{
	{Name: StageResolve, Label: "Fetching background video", Weight: 1.5},
	{Name: StageSynthesize, Label: "Generating audio narration", Weight: 2.0},
	{Name: StageProbe, Label: "Measuring narration length", Weight: 0.5},
	{Name: StageComposite, Label: "Compositing video + audio", Weight: 6.0},
}

const publishLabel = "Uploading video"

type Resolver interface {
	Resolve(ctx context.Context, jobID, ref string) (source.Source, error)
}

// Synthesizer writes narration audio to outBase plus a provider specific
// extension and returns the written path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, outBase string) (string, error)
}

type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

type Compositor interface {
	Composite(ctx context.Context, video, audio, outPath string, opts media.CompositeOptions) (string, error)
}

// Publisher copies a finished artifact to object storage and returns its
// public URL. Delete removes an object the job no longer owns.
type Publisher interface {
	UploadFile(ctx context.Context, key, path, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Notifier receives best-effort push updates. Implementations must not block.
type Notifier interface {
	Progress(job model.Job)
	Complete(jobID, output string)
	Failed(jobID, code, message string)
}

// Store is the part of the registry the executor writes to.
type Store interface {
	Update(id string, fn func(job *model.Job)) (model.Job, error)
}

type Timeouts struct {
	Download  time.Duration
	Synthesis time.Duration
	Probe     time.Duration
	Composite time.Duration
	Publish   time.Duration
}

type Options struct {
	WorkDir   string
	OutputDir string
	// OutputURLPrefix is prepended to "<jobID>.mp4" for locally served output.
	OutputURLPrefix         string
	Timeouts                Timeouts
	MaxConcurrentComposites int
	Encoder                 media.CompositeOptions
}

// Request is everything the executor needs to run one job.
type Request struct {
	JobID    string
	Text     string
	VideoRef string
	Voice    string
}

type Executor struct {
	store       Store
	resolver    Resolver
	synthesizer Synthesizer
	prober      Prober
	compositor  Compositor
	publisher   Publisher
	notifier    Notifier
	opts        Options
	composites  *semaphore.Weighted
	log         *logger.Logger
}

type Deps struct {
	Store       Store
	Resolver    Resolver
	Synthesizer Synthesizer
	Prober      Prober
	Compositor  Compositor
	Publisher   Publisher
	Notifier    Notifier
	Logger      *logger.Logger
}

func NewExecutor(deps Deps, opts Options) *Executor {
	if opts.MaxConcurrentComposites <= 0 {
		opts.MaxConcurrentComposites = 1
	}
	if opts.OutputURLPrefix == "" {
		opts.OutputURLPrefix = "/api/video"
	}
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Executor{
		store:       deps.Store,
		resolver:    deps.Resolver,
		synthesizer: deps.Synthesizer,
		prober:      deps.Prober,
		compositor:  deps.Compositor,
		publisher:   deps.Publisher,
		notifier:    deps.Notifier,
		opts:        opts,
		composites:  semaphore.NewWeighted(int64(opts.MaxConcurrentComposites)),
		log:         log,
	}
}

// OutputPath is the final artifact location for a job.
func (e *Executor) OutputPath(jobID string) string {
	return filepath.Join(e.opts.OutputDir, jobID+".mp4")
}

// Run executes the pipeline for req. The job's temporaries are removed
// before the terminal status is written. The returned error is the same
// failure stored on the record.
func (e *Executor) Run(ctx context.Context, req Request) error {
	log := e.log.With("job_id", req.JobID)
	acc := progress.New(Stages...)

	started := time.Now()
	e.write(req.JobID, log, func(j *model.Job) {
		j.Status = model.JobStatusProcessing
		j.StartedAt = &started
	})

	output, key, err := e.execute(ctx, req, acc, log)
	e.cleanup(req.JobID, log)

	if err != nil {
		e.unpublish(key, log)
		return e.fail(req.JobID, err, log)
	}
	e.succeed(req.JobID, output, key, acc, log)
	return nil
}

// execute runs the stages and returns the output reference plus the object
// key when the artifact was published.
func (e *Executor) execute(ctx context.Context, req Request, acc *progress.Accumulator, log *logger.Logger) (string, string, error) {
	var src source.Source
	err := e.stage(ctx, req.JobID, acc, log, StageResolve, ErrSourceUnavailable, e.opts.Timeouts.Download, func(sctx context.Context) error {
		var err error
		src, err = e.resolver.Resolve(sctx, req.JobID, req.VideoRef)
		return err
	})
	if err != nil {
		return "", "", err
	}

	var audio string
	err = e.stage(ctx, req.JobID, acc, log, StageSynthesize, ErrSynthesisFailed, e.opts.Timeouts.Synthesis, func(sctx context.Context) error {
		var err error
		audio, err = e.synthesizer.Synthesize(sctx, req.Text, req.Voice, filepath.Join(source.JobDir(e.opts.WorkDir, req.JobID), "narration"))
		return err
	})
	if err != nil {
		return "", "", err
	}

	var duration float64
	err = e.stage(ctx, req.JobID, acc, log, StageProbe, ErrProbeFailed, e.opts.Timeouts.Probe, func(sctx context.Context) error {
		var err error
		duration, err = e.prober.Probe(sctx, audio)
		return err
	})
	if err != nil {
		return "", "", err
	}

	// Waiting for an encoder slot does not count against the composite timeout.
	if err := e.composites.Acquire(ctx, 1); err != nil {
		return "", "", &StageError{Stage: StageComposite, Kind: ErrCancelled, Err: err}
	}
	outPath := e.OutputPath(req.JobID)
	err = e.stage(ctx, req.JobID, acc, log, StageComposite, ErrCompositeFailed, e.opts.Timeouts.Composite, func(sctx context.Context) error {
		opts := e.opts.Encoder
		opts.DurationHint = duration
		_, err := e.compositor.Composite(sctx, src.Path, audio, outPath, opts)
		return err
	})
	e.composites.Release(1)
	if err != nil {
		return "", "", err
	}

	output := e.opts.OutputURLPrefix + "/" + req.JobID + ".mp4"
	var key string
	if e.publisher != nil && ctx.Err() == nil {
		e.write(req.JobID, log, func(j *model.Job) { j.Step = publishLabel })
		pctx, cancel := withTimeout(ctx, e.opts.Timeouts.Publish)
		url, err := e.publisher.UploadFile(pctx, "outputs/"+req.JobID+".mp4", outPath, "video/mp4")
		cancel()
		if err != nil {
			log.Warn("publish failed, keeping local output", "stage", StagePublish, "error", err)
		} else {
			output = url
			key = "outputs/" + req.JobID + ".mp4"
		}
	}

	if err := ctx.Err(); err != nil {
		return "", key, &StageError{Stage: StageComposite, Kind: ErrCancelled, Err: err}
	}
	return output, key, nil
}

// stage runs fn under its own timeout with the step label set before and
// the progress advanced after.
func (e *Executor) stage(ctx context.Context, jobID string, acc *progress.Accumulator, log *logger.Logger, name string, kind error, timeout time.Duration, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Kind: ErrCancelled, Err: err}
	}

	label := labelFor(name)
	e.write(jobID, log, func(j *model.Job) { j.Step = label })

	sctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	t0 := time.Now()
	err := fn(sctx)
	if err != nil {
		if ctx.Err() != nil {
			return &StageError{Stage: name, Kind: ErrCancelled, Err: ctx.Err()}
		}
		if errors.Is(sctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return &StageError{Stage: name, Kind: kind, Err: err}
	}

	pct := acc.Complete(name)
	e.write(jobID, log, func(j *model.Job) { j.Progress = pct })
	log.Debug("stage complete", "stage", name, "progress", pct, "elapsed", time.Since(t0).String())
	return nil
}

func (e *Executor) succeed(jobID, output, key string, acc *progress.Accumulator, log *logger.Logger) {
	completed := time.Now()
	pct := acc.Finish()
	job, err := e.store.Update(jobID, func(j *model.Job) {
		j.Status = model.JobStatusDone
		j.Progress = pct
		j.Step = StepComplete
		j.Output = &output
		j.Error = nil
		j.ErrorCode = ""
		j.CompletedAt = &completed
	})
	if err != nil {
		// Cancelled while finishing; the artifact has no owner any more.
		log.Info("job removed before completion, discarding output", "error", err)
		os.Remove(e.OutputPath(jobID))
		e.unpublish(key, log)
		return
	}
	log.Info("job complete", "output", output)
	if e.notifier != nil {
		e.notifier.Progress(job)
		e.notifier.Complete(jobID, output)
	}
}

func (e *Executor) fail(jobID string, cause error, log *logger.Logger) error {
	if err := os.Remove(e.OutputPath(jobID)); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove output of failed job", "error", err)
	}

	msg := cause.Error()
	code := ErrorCode(cause)
	completed := time.Now()
	job, err := e.store.Update(jobID, func(j *model.Job) {
		j.Status = model.JobStatusError
		j.Output = nil
		j.Error = &msg
		j.ErrorCode = code
		j.CompletedAt = &completed
	})
	if errors.Is(err, registry.ErrJobNotFound) {
		log.Info("job removed before failure was recorded", "error", cause)
		return cause
	}
	if code == CodeCancelled {
		log.Info("job cancelled", "error", cause)
	} else {
		log.Error("job failed", "code", code, "error", cause)
	}
	if err == nil && e.notifier != nil {
		e.notifier.Progress(job)
		e.notifier.Failed(jobID, code, msg)
	}
	return cause
}

// unpublish deletes an uploaded artifact. The job context may already be
// cancelled, so the delete runs on its own deadline.
func (e *Executor) unpublish(key string, log *logger.Logger) {
	if key == "" || e.publisher == nil {
		return
	}
	timeout := e.opts.Timeouts.Publish
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.publisher.Delete(ctx, key); err != nil {
		log.Warn("failed to delete published output", "key", key, "error", err)
	}
}

// cleanup removes every temporary of the job. Failures are logged and
// never change the job outcome.
func (e *Executor) cleanup(jobID string, log *logger.Logger) {
	if err := os.RemoveAll(source.JobDir(e.opts.WorkDir, jobID)); err != nil {
		log.Warn("failed to remove work dir", "error", err)
	}
	if err := os.Remove(media.PartialPath(e.OutputPath(jobID))); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove partial output", "error", err)
	}
}

// write applies a non-terminal update and pushes the new snapshot.
func (e *Executor) write(jobID string, log *logger.Logger, fn func(j *model.Job)) {
	job, err := e.store.Update(jobID, fn)
	if err != nil {
		log.Debug("skipping record update", "error", err)
		return
	}
	if e.notifier != nil {
		e.notifier.Progress(job)
	}
}

func labelFor(name string) string {
	for _, s := range Stages {
		if s.Name == name {
			return s.Label
		}
	}
	return name
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
