package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storyscroll/api/internal/logger"
	"github.com/storyscroll/api/internal/model"
)

const (
	TaskTypeSweep = "maintenance:sweep"
	QueueSweep    = "maintenance"
)

// SweepPayload is the body of a sweep task
type SweepPayload struct {
	RetentionHours int `json:"retentionHours"`
}

// NewSweepTask builds the periodic maintenance task.
func NewSweepTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSweep, data, asynq.Queue(QueueSweep), asynq.MaxRetry(0), asynq.Unique(time.Minute)), nil
}

// JobStore is the registry view the sweeper needs.
type JobStore interface {
	Get(id string) (model.Job, error)
	PurgeFinished(cutoff time.Time) []model.Job
}

// RemoteStore removes published artifacts. client.R2Client implements it.
type RemoteStore interface {
	KeyFromURL(u string) (string, bool)
	Delete(ctx context.Context, key string) error
}

// SweepStats reports what one sweep removed
type SweepStats struct {
	PurgedJobs      int
	RemovedOutputs  int
	RemovedRemote   int
	RemovedWorkDirs int
}

// SweepWorker removes expired job records, old output artifacts and
// temporaries left behind by jobs that are no longer running.
type SweepWorker struct {
	store     JobStore
	outputDir string
	workDir   string
	remote    RemoteStore
	log       *logger.Logger
	now       func() time.Time
}

// NewSweepWorker creates a sweeper. remote may be nil.
func NewSweepWorker(store JobStore, outputDir, workDir string, remote RemoteStore, log *logger.Logger) *SweepWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &SweepWorker{
		store:     store,
		outputDir: outputDir,
		workDir:   workDir,
		remote:    remote,
		log:       log,
		now:       time.Now,
	}
}

// ProcessTask handles a maintenance:sweep task
func (w *SweepWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal sweep payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RetentionHours <= 0 {
		return fmt.Errorf("invalid retention %d: %w", payload.RetentionHours, asynq.SkipRetry)
	}

	stats := w.Sweep(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	w.log.Info("sweep complete",
		"purged_jobs", stats.PurgedJobs,
		"removed_outputs", stats.RemovedOutputs,
		"removed_remote", stats.RemovedRemote,
		"removed_work_dirs", stats.RemovedWorkDirs,
	)
	return nil
}

// Sweep runs one maintenance pass.
func (w *SweepWorker) Sweep(ctx context.Context, retention time.Duration) SweepStats {
	var stats SweepStats
	cutoff := w.now().Add(-retention)

	for _, job := range w.store.PurgeFinished(cutoff) {
		stats.PurgedJobs++
		if w.remove(filepath.Join(w.outputDir, job.ID+".mp4")) {
			stats.RemovedOutputs++
		}
		if w.removeRemote(ctx, job) {
			stats.RemovedRemote++
		}
	}

	stats.RemovedOutputs += w.sweepOutputs(ctx, cutoff)
	stats.RemovedWorkDirs += w.sweepWorkDirs(ctx)
	return stats
}

// sweepOutputs removes unowned artifacts older than cutoff and partial
// files of jobs that are not running.
func (w *SweepWorker) sweepOutputs(ctx context.Context, cutoff time.Time) int {
	entries, err := os.ReadDir(w.outputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn("failed to list output dir", "error", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".mp4") {
			continue
		}
		jobID := strings.TrimSuffix(strings.TrimSuffix(name, ".mp4"), ".mp4.partial")

		if strings.HasSuffix(name, ".partial.mp4") {
			if !w.active(jobID) && w.remove(filepath.Join(w.outputDir, name)) {
				removed++
			}
			continue
		}

		if _, err := w.store.Get(jobID); err == nil {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if w.remove(filepath.Join(w.outputDir, name)) {
			removed++
		}
	}
	return removed
}

// sweepWorkDirs removes job work dirs whose job is not running.
func (w *SweepWorker) sweepWorkDirs(ctx context.Context) int {
	entries, err := os.ReadDir(w.workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn("failed to list work dir", "error", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || w.active(entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.workDir, entry.Name())); err != nil {
			w.log.Warn("failed to remove orphaned work dir", "job_id", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed
}

func (w *SweepWorker) active(jobID string) bool {
	job, err := w.store.Get(jobID)
	return err == nil && !job.Status.IsTerminal()
}

// removeRemote deletes the published artifact of a purged job.
func (w *SweepWorker) removeRemote(ctx context.Context, job model.Job) bool {
	if w.remote == nil || job.Output == nil {
		return false
	}
	key, ok := w.remote.KeyFromURL(*job.Output)
	if !ok {
		return false
	}
	if err := w.remote.Delete(ctx, key); err != nil {
		w.log.Warn("failed to delete published output", "job_id", job.ID, "key", key, "error", err)
		return false
	}
	return true
}

func (w *SweepWorker) remove(path string) bool {
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn("failed to remove file", "path", path, "error", err)
		}
		return false
	}
	return true
}
