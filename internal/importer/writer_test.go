package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/avalia-edu/avalia/internal/model"
)

type fakeResultStore struct {
	batches  [][]model.RawQuestionResult
	failNext error
}

func (f *fakeResultStore) UpsertRawResults(_ context.Context, batch []model.RawQuestionResult) error {
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	f.batches = append(f.batches, append([]model.RawQuestionResult(nil), batch...))
	return nil
}

func answer(student string, question int, value string) model.RawQuestionResult {
	return model.RawQuestionResult{
		StudentID:      student,
		QuestionNumber: question,
		QuestionCode:   fmt.Sprintf("Q%d", question),
		Answer:         value,
		Year:           2024,
	}
}

func TestWriterFlushesFullBatches(t *testing.T) {
	ctx := context.Background()
	fs := &fakeResultStore{}
	flushed := 0
	w := NewWriter(fs, 3, func(_ context.Context, n int) error {
		flushed += n
		return nil
	})

	for q := 1; q <= 7; q++ {
		if err := w.Add(ctx, answer("aluno-1", q, "1")); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if len(fs.batches) != 2 {
		t.Fatalf("expected 2 batches before flush, got %d", len(fs.batches))
	}
	if w.Pending() != 1 {
		t.Errorf("expected 1 pending row, got %d", w.Pending())
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fs.batches) != 3 || len(fs.batches[2]) != 1 {
		t.Fatalf("expected a final batch of 1, got %d batches", len(fs.batches))
	}
	if flushed != 7 {
		t.Errorf("expected onFlush to report 7 rows, got %d", flushed)
	}
	if err := w.Flush(ctx); err != nil || len(fs.batches) != 3 {
		t.Errorf("expected empty flush to be a no-op, got err=%v batches=%d", err, len(fs.batches))
	}
}

func TestWriterReplacesDuplicateKeys(t *testing.T) {
	ctx := context.Background()
	fs := &fakeResultStore{}
	w := NewWriter(fs, 10, nil)

	w.Add(ctx, answer("aluno-1", 1, "0"))
	w.Add(ctx, answer("aluno-2", 1, "1"))
	w.Add(ctx, answer("aluno-1", 1, "1"))
	if w.Pending() != 2 {
		t.Fatalf("expected 2 pending rows, got %d", w.Pending())
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got := fs.batches[0]
	if got[0].StudentID != "aluno-1" || got[0].Answer != "1" {
		t.Errorf("expected the later answer to replace the earlier one in place, got %+v", got[0])
	}

	// The same key in a later batch is a new row for the writer.
	w.Add(ctx, answer("aluno-1", 1, "0"))
	if w.Pending() != 1 {
		t.Errorf("expected 1 pending row after flush, got %d", w.Pending())
	}
}

func TestWriterKeepsBufferOnFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	fs := &fakeResultStore{failNext: boom}
	calls := 0
	w := NewWriter(fs, 10, func(context.Context, int) error {
		calls++
		return nil
	})
	w.Add(ctx, answer("aluno-1", 1, "1"))
	w.Add(ctx, answer("aluno-1", 2, "0"))

	if err := w.Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if w.Pending() != 2 || calls != 0 {
		t.Fatalf("expected buffer kept and no callback, got pending=%d calls=%d", w.Pending(), calls)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("retry Flush: %v", err)
	}
	if len(fs.batches) != 1 || len(fs.batches[0]) != 2 || calls != 1 {
		t.Errorf("expected one batch of 2 after retry, got %v (calls=%d)", fs.batches, calls)
	}
}

func TestWriterPropagatesCallbackError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("save progress")
	w := NewWriter(&fakeResultStore{}, 1, func(context.Context, int) error { return boom })
	if err := w.Add(ctx, answer("aluno-1", 1, "1")); !errors.Is(err, boom) {
		t.Errorf("expected %v from Add, got %v", boom, err)
	}
}
