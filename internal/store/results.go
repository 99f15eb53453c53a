package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avalia-edu/avalia/internal/model"
)

const rawColumns = 14

// UpsertRawResults writes a batch of per-question results in one statement. A row with
// the same student, question code and year is overwritten. Callers must not pass two
// rows with the same key in one batch.
func (s *Store) UpsertRawResults(ctx context.Context, batch []model.RawQuestionResult) error {
	if len(batch) == 0 {
		return nil
	}
	args := make([]any, 0, len(batch)*rawColumns)
	for _, r := range batch {
		args = append(args,
			r.StudentID, r.QuestionCode, r.Year, r.SchoolID, r.ClassID, r.StudentCode, r.Grade,
			r.QuestionNumber, r.Answer, r.Correct, r.Score, r.Discipline, r.Presence, unix(r.UpdatedAt),
		)
	}
	query := `INSERT INTO resultados_questoes
	   (aluno_id, questao_codigo, ano_letivo, escola_id, turma_id, aluno_codigo, serie,
	    questao_numero, resposta, acertou, nota, disciplina, presenca, atualizado_em)
	 VALUES ` + placeholders(len(batch), rawColumns) + `
	 ON CONFLICT (aluno_id, questao_codigo, ano_letivo) DO UPDATE SET
	   escola_id = EXCLUDED.escola_id,
	   turma_id = EXCLUDED.turma_id,
	   aluno_codigo = EXCLUDED.aluno_codigo,
	   serie = EXCLUDED.serie,
	   questao_numero = EXCLUDED.questao_numero,
	   resposta = EXCLUDED.resposta,
	   acertou = EXCLUDED.acertou,
	   nota = EXCLUDED.nota,
	   disciplina = EXCLUDED.disciplina,
	   presenca = EXCLUDED.presenca,
	   atualizado_em = EXCLUDED.atualizado_em`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %d raw results: %w", len(batch), err)
	}
	return nil
}

// ListRawResults returns the per-question results of a year ordered by student and question.
func (s *Store) ListRawResults(ctx context.Context, year int) ([]model.RawQuestionResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT aluno_id, questao_codigo, ano_letivo, escola_id, turma_id, aluno_codigo, serie,
		        questao_numero, resposta, acertou, nota, disciplina, presenca, atualizado_em
		 FROM resultados_questoes WHERE ano_letivo = $1
		 ORDER BY aluno_id, questao_numero`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RawQuestionResult
	for rows.Next() {
		var r model.RawQuestionResult
		var updated int64
		if err := rows.Scan(&r.StudentID, &r.QuestionCode, &r.Year, &r.SchoolID, &r.ClassID, &r.StudentCode, &r.Grade,
			&r.QuestionNumber, &r.Answer, &r.Correct, &r.Score, &r.Discipline, &r.Presence, &updated); err != nil {
			return nil, err
		}
		r.UpdatedAt = fromUnix(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

const consolidatedColumns = `aluno_id, ano_letivo, escola_id, turma_id, serie, presenca,
	acertos_lp, acertos_mat, acertos_ch, acertos_cn,
	nota_lp, nota_mat, nota_ch, nota_cn, media_geral, nota_producao,
	item_1, item_2, item_3, item_4, item_5, item_6, item_7, item_8,
	nivel_lp, nivel_mat, nivel_producao, nivel_aluno,
	total_respondidas, total_esperadas, config_fallback, regra_serie, atualizado_em`

// UpsertConsolidated writes the full consolidated row of a student and year, replacing
// every computed field of an existing row.
func (s *Store) UpsertConsolidated(ctx context.Context, r model.ConsolidatedResult) error {
	args := []any{
		r.StudentID, r.Year, r.SchoolID, r.ClassID, r.Grade, r.Presence,
		r.CorrectLP, r.CorrectMAT, r.CorrectCH, r.CorrectCN,
		r.ScoreLP, r.ScoreMAT, r.ScoreCH, r.ScoreCN, r.Average, r.ProductionScore,
	}
	for _, item := range r.ProductionItems {
		args = append(args, item)
	}
	args = append(args,
		r.LevelLP, r.LevelMAT, r.LevelProduction, r.LevelOverall,
		r.TotalAnswered, r.TotalExpected, r.ConfigFallback, r.GradeRule, unix(r.UpdatedAt),
	)
	query := `INSERT INTO resultados_consolidados (` + consolidatedColumns + `)
	 VALUES ` + placeholders(1, len(args)) + `
	 ON CONFLICT (aluno_id, ano_letivo) DO UPDATE SET
	   escola_id = EXCLUDED.escola_id, turma_id = EXCLUDED.turma_id, serie = EXCLUDED.serie,
	   presenca = EXCLUDED.presenca,
	   acertos_lp = EXCLUDED.acertos_lp, acertos_mat = EXCLUDED.acertos_mat,
	   acertos_ch = EXCLUDED.acertos_ch, acertos_cn = EXCLUDED.acertos_cn,
	   nota_lp = EXCLUDED.nota_lp, nota_mat = EXCLUDED.nota_mat,
	   nota_ch = EXCLUDED.nota_ch, nota_cn = EXCLUDED.nota_cn,
	   media_geral = EXCLUDED.media_geral, nota_producao = EXCLUDED.nota_producao,
	   item_1 = EXCLUDED.item_1, item_2 = EXCLUDED.item_2, item_3 = EXCLUDED.item_3, item_4 = EXCLUDED.item_4,
	   item_5 = EXCLUDED.item_5, item_6 = EXCLUDED.item_6, item_7 = EXCLUDED.item_7, item_8 = EXCLUDED.item_8,
	   nivel_lp = EXCLUDED.nivel_lp, nivel_mat = EXCLUDED.nivel_mat,
	   nivel_producao = EXCLUDED.nivel_producao, nivel_aluno = EXCLUDED.nivel_aluno,
	   total_respondidas = EXCLUDED.total_respondidas, total_esperadas = EXCLUDED.total_esperadas,
	   config_fallback = EXCLUDED.config_fallback, regra_serie = EXCLUDED.regra_serie,
	   atualizado_em = EXCLUDED.atualizado_em`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert consolidated result for %s: %w", r.StudentID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConsolidated(row scanner, extra ...any) (model.ConsolidatedResult, error) {
	var r model.ConsolidatedResult
	var updated int64
	dest := []any{
		&r.StudentID, &r.Year, &r.SchoolID, &r.ClassID, &r.Grade, &r.Presence,
		&r.CorrectLP, &r.CorrectMAT, &r.CorrectCH, &r.CorrectCN,
		&r.ScoreLP, &r.ScoreMAT, &r.ScoreCH, &r.ScoreCN, &r.Average, &r.ProductionScore,
	}
	for i := range r.ProductionItems {
		dest = append(dest, &r.ProductionItems[i])
	}
	dest = append(dest,
		&r.LevelLP, &r.LevelMAT, &r.LevelProduction, &r.LevelOverall,
		&r.TotalAnswered, &r.TotalExpected, &r.ConfigFallback, &r.GradeRule, &updated,
	)
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return r, err
	}
	r.UpdatedAt = fromUnix(updated)
	return r, nil
}

// GetConsolidated returns the consolidated row of a student in a year.
func (s *Store) GetConsolidated(ctx context.Context, studentID string, year int) (model.ConsolidatedResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+consolidatedColumns+` FROM resultados_consolidados WHERE aluno_id = $1 AND ano_letivo = $2`,
		studentID, year)
	r, err := scanConsolidated(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// ListConsolidated returns the consolidated rows of a year ordered by student.
func (s *Store) ListConsolidated(ctx context.Context, year int) ([]model.ConsolidatedResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+consolidatedColumns+` FROM resultados_consolidados WHERE ano_letivo = $1 ORDER BY aluno_id`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ConsolidatedResult
	for rows.Next() {
		r, err := scanConsolidated(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PresenceSummary counts present, absent and no-data students of a year. The mean
// overall average covers present students only.
func (s *Store) PresenceSummary(ctx context.Context, year int) (model.PresenceSummary, error) {
	sum := model.PresenceSummary{Year: year}
	rows, err := s.db.QueryContext(ctx,
		`SELECT presenca, COUNT(*), AVG(media_geral) FROM resultados_consolidados
		 WHERE ano_letivo = $1 GROUP BY presenca`, year)
	if err != nil {
		return sum, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			presence model.Presence
			count    int
			mean     sql.NullFloat64
		)
		if err := rows.Scan(&presence, &count, &mean); err != nil {
			return sum, err
		}
		switch presence {
		case model.PresencePresent:
			sum.Present = count
			if mean.Valid {
				v := mean.Float64
				sum.MeanAverage = &v
			}
		case model.PresenceAbsent:
			sum.Absent = count
		default:
			sum.NoData += count
		}
	}
	if err := rows.Err(); err != nil {
		return sum, err
	}
	if total := sum.Present + sum.Absent; total > 0 {
		sum.Attendance = float64(sum.Present) / float64(total) * 100
	}
	return sum, nil
}
