package importer

import (
	"context"

	"github.com/avalia-edu/avalia/internal/model"
)

// DefaultBatchSize is the number of per-question rows written per statement.
const DefaultBatchSize = 500

// ResultStore writes per-question results in batches.
type ResultStore interface {
	UpsertRawResults(ctx context.Context, batch []model.RawQuestionResult) error
}

type rawKey struct {
	studentID string
	question  string
	year      int
}

// Writer buffers per-question results and flushes them as one multi-row upsert when the
// buffer is full and whenever Flush is called.
type Writer struct {
	store   ResultStore
	size    int
	buf     []model.RawQuestionResult
	index   map[rawKey]int
	onFlush func(ctx context.Context, n int) error
}

// NewWriter returns a Writer flushing every size rows. onFlush, when set, runs after
// every successful flush with the number of rows written.
func NewWriter(store ResultStore, size int, onFlush func(ctx context.Context, n int) error) *Writer {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Writer{
		store:   store,
		size:    size,
		buf:     make([]model.RawQuestionResult, 0, size),
		index:   make(map[rawKey]int, size),
		onFlush: onFlush,
	}
}

// Add buffers r. A buffered row with the same student, question and year is replaced,
// so one statement never touches a row twice.
func (w *Writer) Add(ctx context.Context, r model.RawQuestionResult) error {
	key := rawKey{r.StudentID, r.QuestionCode, r.Year}
	if i, ok := w.index[key]; ok {
		w.buf[i] = r
		return nil
	}
	w.index[key] = len(w.buf)
	w.buf = append(w.buf, r)
	if len(w.buf) >= w.size {
		return w.Flush(ctx)
	}
	return nil
}

// Pending returns the number of buffered rows.
func (w *Writer) Pending() int { return len(w.buf) }

// Flush writes the buffered rows. On failure the buffer is kept.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.store.UpsertRawResults(ctx, w.buf); err != nil {
		return err
	}
	n := len(w.buf)
	w.buf = w.buf[:0]
	clear(w.index)
	if w.onFlush != nil {
		return w.onFlush(ctx, n)
	}
	return nil
}
