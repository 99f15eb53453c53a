package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avalia-edu/avalia/internal/model"
)

const jobColumns = `id, arquivo, ano_letivo, status, total_linhas, linhas_processadas, linhas_erro,
	proxima_linha, questoes_importadas, consolidados,
	escolas_criadas, escolas_existentes, turmas_criadas, turmas_existentes, alunos_criados, alunos_existentes,
	erros, erros_excedentes, mensagem, criado_em, atualizado_em, concluido_em`

// CreateJob inserts a new job record.
func (s *Store) CreateJob(ctx context.Context, j model.ImportJob) error {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	errs, err := encodeErrors(j.Errors)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO importacoes (id, arquivo, ano_letivo, status, total_linhas, erros, criado_em, atualizado_em)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.ID, j.Filename, j.Year, j.Status, j.TotalRows, errs, j.CreatedAt.Unix(), now.Unix(),
	)
	return err
}

func scanJob(row scanner) (model.ImportJob, error) {
	var (
		j                model.ImportJob
		errs             string
		created, updated int64
		finished         sql.NullInt64
	)
	c := &j.Counters
	err := row.Scan(&j.ID, &j.Filename, &j.Year, &j.Status, &j.TotalRows, &j.ProcessedRows, &j.ErrorRows,
		&j.NextRow, &j.QuestionsImported, &j.Consolidated,
		&c.SchoolsCreated, &c.SchoolsFound, &c.ClassesCreated, &c.ClassesFound, &c.StudentsCreated, &c.StudentsFound,
		&errs, &j.ErrorsOverflow, &j.Message, &created, &updated, &finished)
	if err != nil {
		return j, err
	}
	if err := json.Unmarshal([]byte(errs), &j.Errors); err != nil {
		return j, fmt.Errorf("decode errors of job %s: %w", j.ID, err)
	}
	j.CreatedAt = fromUnix(created)
	j.UpdatedAt = fromUnix(updated)
	if finished.Valid {
		t := fromUnix(finished.Int64)
		j.FinishedAt = &t
	}
	return j, nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (model.ImportJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM importacoes WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return j, ErrNotFound
	}
	return j, err
}

// ListJobs returns the most recent jobs first. statuses, when given, filter by status.
func (s *Store) ListJobs(ctx context.Context, limit int, statuses ...model.JobStatus) ([]model.ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM importacoes`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + numbered(1, len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY criado_em DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []model.ImportJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// SaveProgress writes the counters, error list and next row of a job in one statement.
// The status column is left alone so concurrent pause and cancel requests are never lost.
func (s *Store) SaveProgress(ctx context.Context, j model.ImportJob) error {
	errs, err := encodeErrors(j.Errors)
	if err != nil {
		return err
	}
	c := j.Counters
	res, err := s.db.ExecContext(ctx,
		`UPDATE importacoes SET
		   total_linhas = $1, linhas_processadas = $2, linhas_erro = $3, proxima_linha = $4,
		   questoes_importadas = $5, consolidados = $6,
		   escolas_criadas = $7, escolas_existentes = $8, turmas_criadas = $9, turmas_existentes = $10,
		   alunos_criados = $11, alunos_existentes = $12,
		   erros = $13, erros_excedentes = $14, atualizado_em = $15
		 WHERE id = $16`,
		j.TotalRows, j.ProcessedRows, j.ErrorRows, j.NextRow,
		j.QuestionsImported, j.Consolidated,
		c.SchoolsCreated, c.SchoolsFound, c.ClassesCreated, c.ClassesFound,
		c.StudentsCreated, c.StudentsFound,
		errs, j.ErrorsOverflow, time.Now().Unix(), j.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionJob moves a job to status to, but only when its current status is one of
// from. It reports whether the transition happened. Terminal statuses also set the
// finish time; message replaces the stored message when non-empty.
func (s *Store) TransitionJob(ctx context.Context, id string, to model.JobStatus, message string, from ...model.JobStatus) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition without source status")
	}
	now := time.Now().Unix()
	var finished any
	if to.Terminal() {
		finished = now
	}
	args := []any{to, now, finished, message, id}
	for _, st := range from {
		args = append(args, st)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE importacoes SET status = $1, atualizado_em = $2, concluido_em = $3,
		   mensagem = CASE WHEN $4 = '' THEN mensagem ELSE $4 END
		 WHERE id = $5 AND status IN (`+numbered(6, len(from))+`)`,
		args...,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// numbered returns "$start, ..., $start+n-1".
func numbered(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func encodeErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("encode errors: %w", err)
	}
	return string(b), nil
}
