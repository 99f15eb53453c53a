package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avalia-edu/avalia/internal/i18n"
	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/normalize"
	"github.com/avalia-edu/avalia/internal/scoring"
	"github.com/avalia-edu/avalia/internal/series"
	"github.com/avalia-edu/avalia/internal/sheet"
)

// errStopped ends a run without touching the job status: the job was paused and then
// cancelled, or the manager is shutting down.
var errStopped = errors.New("import stopped")

// runner processes the rows of one job. Only its own goroutine touches job.
type runner struct {
	m     *Manager
	job   model.ImportJob
	sheet *sheet.Sheet

	wake chan struct{}
	done chan struct{}

	row int // index of the row being processed
}

func newRunner(m *Manager, job model.ImportJob, sh *sheet.Sheet) *runner {
	return &runner{
		m:     m,
		job:   job,
		sheet: sh,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// wakeUp interrupts a paused runner so it rereads the job status.
func (r *runner) wakeUp() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *runner) run(ctx context.Context) {
	ctx = i18n.WithLang(ctx, r.m.opts.Lang)
	log := slog.With("job_id", r.job.ID)
	start := time.Now()

	err := r.process(ctx)
	switch {
	case errors.Is(err, errStopped) || ctx.Err() != nil:
		log.Info("import stopped", "processed", r.job.ProcessedRows, "next_row", r.job.NextRow)
		return
	case err != nil:
		log.Error("import failed", "error", err, "row", r.row)
		r.m.fail(r.job, err)
		return
	}

	to, msg := model.StatusCompleted, ""
	if r.job.ErrorRows >= r.job.TotalRows {
		to, msg = model.StatusFailed, i18n.T(ctx, "JobAllRowsFailed")
	}
	ok, err := r.m.store.TransitionJob(ctx, r.job.ID, to, msg, model.StatusProcessing, model.StatusPaused)
	if err != nil {
		log.Error("finish import", "error", err)
		return
	}
	if !ok {
		log.Info("import finished after status change, final status kept")
		return
	}
	r.m.discardUpload(r.job)
	log.Info("import finished",
		"status", to,
		"rows", r.job.TotalRows,
		"errors", r.job.ErrorRows,
		"questions", r.job.QuestionsImported,
		"consolidated", r.job.Consolidated,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

func (r *runner) process(ctx context.Context) error {
	st := r.m.store
	resolver, err := series.Load(ctx, st)
	if err != nil {
		return err
	}
	bands, err := st.ListLevelBands(ctx)
	if err != nil {
		return fmt.Errorf("list level bands: %w", err)
	}
	calc := scoring.New(r.m.opts.Policy, bands)
	norm := normalize.New(r.sheet.Headers, resolver)
	if !norm.Has(normalize.FieldSchool) || !norm.Has(normalize.FieldStudent) {
		slog.Warn("school or student column not found, every row will be rejected", "job_id", r.job.ID)
	}

	cache, err := loadCache(ctx, st, r.job.Year, &r.job.Counters)
	if err != nil {
		return err
	}
	// A flush inside a row saves the job as of the last finished row, so the questions
	// counter only ever includes rows a relaunch will not process again.
	w := NewWriter(st, r.m.opts.BatchSize, func(ctx context.Context, _ int) error {
		return r.save(ctx)
	})

	sinceCheckpoint := 0
	for r.row = r.job.NextRow; r.row < len(r.sheet.Rows); r.row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.processRow(ctx, norm, cache, calc, w, r.sheet.Rows[r.row]); err != nil {
			return err
		}
		r.job.ProcessedRows++
		r.job.NextRow = r.row + 1

		sinceCheckpoint++
		if sinceCheckpoint >= r.m.opts.CheckpointRows {
			sinceCheckpoint = 0
			if err := r.checkpoint(ctx, w); err != nil {
				return err
			}
		}
	}
	if err := w.Flush(ctx); err != nil {
		return fmt.Errorf("write answers: %w", err)
	}
	return r.save(ctx)
}

// processRow imports one spreadsheet row. Problems confined to the row are recorded
// on the job; only storage failures of the results themselves are returned.
func (r *runner) processRow(ctx context.Context, norm *normalize.Normalizer, cache *entityCache, calc *scoring.Calculator, w *Writer, row sheet.Row) error {
	rec, err := norm.Normalize(row.Line, row.Cells)
	switch {
	case errors.Is(err, normalize.ErrMissingSchool):
		r.rowError(ctx, "RowMissingSchool", map[string]any{"Line": row.Line})
		return nil
	case errors.Is(err, normalize.ErrMissingStudent):
		r.rowError(ctx, "RowMissingStudent", map[string]any{"Line": row.Line})
		return nil
	case err != nil:
		return err
	}

	school, err := cache.school(ctx, rec.School)
	if err != nil {
		return r.entityError(ctx, "RowSchoolFailed", row.Line, rec.School, err)
	}
	class, err := cache.class(ctx, school.ID, rec.Class, rec.Series.Grade)
	if err != nil {
		return r.entityError(ctx, "RowClassFailed", row.Line, rec.Class, err)
	}
	student, err := cache.student(ctx, school.ID, class.ID, rec.Student, rec.StudentCode)
	if err != nil {
		return r.entityError(ctx, "RowStudentFailed", row.Line, rec.Student, err)
	}

	now := time.Now().UTC()
	questions := make(map[string]struct{}, len(rec.Answers))
	for _, a := range rec.Answers {
		questions[a.Code] = struct{}{}
		score := 0.0
		if a.Correct {
			score = a.PointValue
		}
		err := w.Add(ctx, model.RawQuestionResult{
			SchoolID:       school.ID,
			ClassID:        class.ID,
			StudentID:      student.ID,
			StudentCode:    rec.StudentCode,
			Grade:          rec.Series.Grade,
			QuestionNumber: a.Number,
			QuestionCode:   a.Code,
			Answer:         a.Value,
			Correct:        a.Correct,
			Score:          score,
			Discipline:     a.Discipline,
			Presence:       rec.Presence,
			Year:           r.job.Year,
			UpdatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("write answers: %w", err)
		}
	}

	res := calc.Consolidate(scoring.Input{
		StudentID:       student.ID,
		SchoolID:        school.ID,
		ClassID:         class.ID,
		Year:            r.job.Year,
		Line:            row.Line,
		Series:          rec.Series,
		GradeRule:       string(rec.GradeRule),
		Presence:        rec.Presence,
		Correct:         rec.Correct,
		Answered:        rec.Answered(),
		Items:           rec.Items,
		ProductionScore: rec.ProductionScore,
		Provided:        rec.Provided,
	})
	if err := r.m.store.UpsertConsolidated(ctx, res); err != nil {
		return fmt.Errorf("write consolidated result: %w", err)
	}
	r.job.Consolidated++
	r.job.QuestionsImported += len(questions)
	return nil
}

func (r *runner) entityError(ctx context.Context, msgID string, line int, name string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	slog.Warn("row rejected", "job_id", r.job.ID, "line", line, "name", name, "error", err)
	r.rowError(ctx, msgID, map[string]any{"Line": line, "Name": name, "Error": err.Error()})
	return nil
}

// rowError counts a failed row and keeps its message while under the cap.
func (r *runner) rowError(ctx context.Context, msgID string, data map[string]any) {
	r.job.ErrorRows++
	if len(r.job.Errors) >= r.m.opts.MaxErrors {
		r.job.ErrorsOverflow++
		return
	}
	r.job.Errors = append(r.job.Errors, i18n.Td(ctx, msgID, data))
}

func (r *runner) save(ctx context.Context) error {
	if err := r.m.store.SaveProgress(ctx, r.job); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// checkpoint persists everything processed so far and then honours pause and cancel
// requests. It blocks while the job is paused.
func (r *runner) checkpoint(ctx context.Context, w *Writer) error {
	if err := w.Flush(ctx); err != nil {
		return fmt.Errorf("write answers: %w", err)
	}
	if err := r.save(ctx); err != nil {
		return err
	}
	if r.m.opts.OnCheckpoint != nil {
		r.m.opts.OnCheckpoint(r.job)
	}
	slog.Debug("checkpoint", "job_id", r.job.ID, "processed", r.job.ProcessedRows, "total", r.job.TotalRows)

	for {
		cur, err := r.m.store.GetJob(ctx, r.job.ID)
		if err != nil {
			return fmt.Errorf("read job status: %w", err)
		}
		switch cur.Status {
		case model.StatusProcessing:
			return nil
		case model.StatusPaused:
			select {
			case <-r.wake:
			case <-time.After(r.m.opts.PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			return errStopped
		}
	}
}
