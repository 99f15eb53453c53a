// Package importer runs spreadsheet import jobs: it resolves entities, writes raw and
// consolidated results and drives the job lifecycle (processando, pausado, cancelado,
// concluido, erro).
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avalia-edu/avalia/internal/i18n"
	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/scoring"
	"github.com/avalia-edu/avalia/internal/sheet"
	"github.com/avalia-edu/avalia/internal/storage"
	"github.com/avalia-edu/avalia/internal/store"
)

var (
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrEmptySheet        = errors.New("spreadsheet has no data rows")
	ErrInvalidYear       = errors.New("invalid academic year")
	ErrNotFound          = store.ErrNotFound
)

// Store is the persistence an import needs.
type Store interface {
	EntityStore
	ResultStore
	ListSeriesConfig(ctx context.Context) ([]model.SeriesDisciplineConfig, error)
	ListLevelBands(ctx context.Context) ([]model.LevelBand, error)
	UpsertConsolidated(ctx context.Context, r model.ConsolidatedResult) error
	CreateJob(ctx context.Context, j model.ImportJob) error
	GetJob(ctx context.Context, id string) (model.ImportJob, error)
	ListJobs(ctx context.Context, limit int, statuses ...model.JobStatus) ([]model.ImportJob, error)
	SaveProgress(ctx context.Context, j model.ImportJob) error
	TransitionJob(ctx context.Context, id string, to model.JobStatus, message string, from ...model.JobStatus) (bool, error)
}

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	BatchSize      int // per-question rows per upsert, default 500
	CheckpointRows int // rows between pause/cancel checks, default 50
	MaxErrors      int // row errors kept per job, default 100
	Policy         scoring.Policy
	Lang           string
	// PollInterval is how often a paused job rechecks its status, default 1s.
	PollInterval time.Duration
	// OnCheckpoint runs in the job goroutine after progress is saved and before the
	// status is checked.
	OnCheckpoint func(job model.ImportJob)
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.CheckpointRows <= 0 {
		o.CheckpointRows = 50
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = 100
	}
	if o.Lang == "" {
		o.Lang = i18n.DefaultLang
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
}

// Manager starts import jobs in the background and applies lifecycle requests to them.
// Job state lives in the store, so any Manager sharing the store can report progress.
type Manager struct {
	store Store
	blobs storage.BlobStore
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]*runner
}

// NewManager returns a Manager. Jobs run until they finish or Shutdown is called.
func NewManager(st Store, blobs storage.BlobStore, opts Options) *Manager {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:   st,
		blobs:   blobs,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]*runner),
	}
}

// Start parses the upload, stores it, records a new job and runs it in the background.
func (m *Manager) Start(ctx context.Context, filename string, data []byte, year int) (model.ImportJob, error) {
	if year < 1900 || year > 2100 {
		return model.ImportJob{}, ErrInvalidYear
	}
	filename = filepath.Base(filepath.Clean("/" + filename))
	if filename == "/" {
		filename = "planilha"
	}
	sh, err := sheet.Parse(filename, data)
	if err != nil {
		return model.ImportJob{}, err
	}
	if len(sh.Rows) == 0 {
		return model.ImportJob{}, ErrEmptySheet
	}

	job := model.ImportJob{
		ID:        uuid.NewString(),
		Filename:  filename,
		Year:      year,
		Status:    model.StatusProcessing,
		TotalRows: len(sh.Rows),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := m.blobs.Put(storage.UploadKey(job.ID, job.Filename), bytes.NewReader(data)); err != nil {
		return job, fmt.Errorf("store upload: %w", err)
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return job, fmt.Errorf("create job: %w", err)
	}
	slog.Info("import started", "job_id", job.ID, "file", job.Filename, "year", year, "rows", job.TotalRows)
	m.launch(job, sh)
	return job, nil
}

func (m *Manager) launch(job model.ImportJob, sh *sheet.Sheet) {
	r := newRunner(m, job, sh)
	m.mu.Lock()
	m.running[job.ID] = r
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.running, job.ID)
			m.mu.Unlock()
			close(r.done)
		}()
		r.run(m.ctx)
	}()
}

// relaunch restarts a persisted job from its next unprocessed row using the stored upload.
func (m *Manager) relaunch(job model.ImportJob) error {
	rc, err := m.blobs.Get(storage.UploadKey(job.ID, job.Filename))
	if err != nil {
		return fmt.Errorf("open upload of job %s: %w", job.ID, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read upload of job %s: %w", job.ID, err)
	}
	sh, err := sheet.Parse(job.Filename, data)
	if err != nil {
		return fmt.Errorf("parse upload of job %s: %w", job.ID, err)
	}
	slog.Info("import relaunched", "job_id", job.ID, "next_row", job.NextRow, "rows", job.TotalRows)
	m.launch(job, sh)
	return nil
}

func (m *Manager) runnerOf(id string) *runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[id]
}

// Get returns the persisted job.
func (m *Manager) Get(ctx context.Context, id string) (model.ImportJob, error) {
	return m.store.GetJob(ctx, id)
}

// List returns recent jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]model.ImportJob, error) {
	return m.store.ListJobs(ctx, limit)
}

// Progress returns the polling view of a job. It reads one persisted row, so it never
// observes a partially applied progress update.
func (m *Manager) Progress(ctx context.Context, id string) (model.Progress, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return model.Progress{}, err
	}
	return model.Progress{
		JobID:             job.ID,
		Status:            job.Status,
		Percentage:        job.Percentage(),
		ProcessedRows:     job.ProcessedRows,
		TotalRows:         job.TotalRows,
		ErrorRows:         job.ErrorRows,
		QuestionsImported: job.QuestionsImported,
		Counters:          job.Counters,
	}, nil
}

// Result returns the summary of a job with its capped error list. When errors were
// dropped the list ends with a localized "+N more" marker.
func (m *Manager) Result(ctx context.Context, id string) (model.ImportResult, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return model.ImportResult{}, err
	}
	errs := append([]string{}, job.Errors...)
	if job.ErrorsOverflow > 0 {
		errs = append(errs, i18n.Tp(ctx, "ErrorsOverflow", job.ErrorsOverflow))
	}
	return model.ImportResult{
		JobID:         job.ID,
		Status:        job.Status,
		TotalRows:     job.TotalRows,
		ProcessedRows: job.ProcessedRows,
		ErrorRows:     job.ErrorRows,
		Consolidated:  job.Consolidated,
		Counters:      job.Counters,
		Errors:        errs,
		Message:       job.Message,
	}, nil
}

// transition applies a status change and returns the job as stored afterwards. It fails
// with ErrInvalidTransition when the job is not in one of the from statuses.
func (m *Manager) transition(ctx context.Context, id string, to model.JobStatus, message string, from ...model.JobStatus) (model.ImportJob, error) {
	ok, err := m.store.TransitionJob(ctx, id, to, message, from...)
	if err != nil {
		return model.ImportJob{}, err
	}
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return job, err
	}
	if !ok {
		return job, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, job.Status)
	}
	return job, nil
}

// Pause stops a running job at its next checkpoint. Only valid while processando.
func (m *Manager) Pause(ctx context.Context, id string) (model.ImportJob, error) {
	job, err := m.transition(ctx, id, model.StatusPaused, "", model.StatusProcessing)
	if err != nil {
		return job, err
	}
	slog.Info("import paused", "job_id", id, "processed", job.ProcessedRows)
	return job, nil
}

// Resume continues a paused job from its next unprocessed row. A job paused before a
// restart has no goroutine left and is relaunched from the stored upload.
func (m *Manager) Resume(ctx context.Context, id string) (model.ImportJob, error) {
	job, err := m.transition(ctx, id, model.StatusProcessing, "", model.StatusPaused)
	if err != nil {
		return job, err
	}
	slog.Info("import resumed", "job_id", id, "next_row", job.NextRow)
	if r := m.runnerOf(id); r != nil {
		r.wakeUp()
		return job, nil
	}
	if err := m.relaunch(job); err != nil {
		m.fail(job, err)
		return job, err
	}
	return job, nil
}

// Cancel stops a running or paused job at its next checkpoint. Batches already written
// stay in place.
func (m *Manager) Cancel(ctx context.Context, id string) (model.ImportJob, error) {
	msg := i18n.T(i18n.WithLang(ctx, m.opts.Lang), "JobCancelled")
	job, err := m.transition(ctx, id, model.StatusCancelled, msg, model.StatusProcessing, model.StatusPaused)
	if err != nil {
		return job, err
	}
	slog.Info("import cancelled", "job_id", id, "processed", job.ProcessedRows)
	if r := m.runnerOf(id); r != nil {
		r.wakeUp()
	}
	m.discardUpload(job)
	return job, nil
}

// fail marks a job as erro after an unrecoverable failure.
func (m *Manager) fail(job model.ImportJob, cause error) {
	ctx := context.WithoutCancel(m.ctx)
	msg := i18n.Td(i18n.WithLang(ctx, m.opts.Lang), "JobStorageFailed", map[string]any{"Error": cause.Error()})
	ok, err := m.store.TransitionJob(ctx, job.ID, model.StatusFailed, msg, model.StatusProcessing, model.StatusPaused)
	if err != nil {
		slog.Error("mark job failed", "job_id", job.ID, "error", err)
		return
	}
	if ok {
		m.discardUpload(job)
	}
}

// discardUpload removes the stored spreadsheet of a job that reached a final status.
// A runner still winding down works from its parsed copy.
func (m *Manager) discardUpload(job model.ImportJob) {
	if err := m.blobs.Delete(storage.UploadKey(job.ID, job.Filename)); err != nil {
		slog.Warn("remove upload", "job_id", job.ID, "error", err)
	}
}

// Recover relaunches jobs left processando by a previous process. Paused jobs stay
// paused until resumed.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	jobs, err := m.store.ListJobs(ctx, 0, model.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list running jobs: %w", err)
	}
	n := 0
	for _, job := range jobs {
		if m.runnerOf(job.ID) != nil {
			continue
		}
		if err := m.relaunch(job); err != nil {
			slog.Error("recover import", "job_id", job.ID, "error", err)
			m.fail(job, err)
			continue
		}
		n++
	}
	return n, nil
}

// Wait blocks until the job's goroutine exits (finished, cancelled, failed or shut
// down) and returns the stored job.
func (m *Manager) Wait(ctx context.Context, id string) (model.ImportJob, error) {
	if r := m.runnerOf(id); r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return model.ImportJob{}, ctx.Err()
		}
	}
	return m.store.GetJob(ctx, id)
}

// Shutdown stops every job goroutine at its next store call or checkpoint and waits
// for them. Interrupted jobs stay processando and are picked up by Recover.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
