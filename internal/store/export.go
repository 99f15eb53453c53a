package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avalia-edu/avalia/internal/model"
)

// qualify prefixes every column of a comma-separated list with alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// ExportResults builds the export of every consolidated result of a year with school,
// class and student names, plus the presence summary.
func (s *Store) ExportResults(ctx context.Context, year int) (model.ResultsExport, error) {
	out := model.ResultsExport{Year: year, ExportedAt: time.Now().UTC()}

	summary, err := s.PresenceSummary(ctx, year)
	if err != nil {
		return out, fmt.Errorf("presence summary: %w", err)
	}
	out.Summary = summary

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+qualify(consolidatedColumns, "c")+`, e.nome, COALESCE(t.codigo, ''), a.nome, a.codigo
		 FROM resultados_consolidados c
		 JOIN alunos a ON a.id = c.aluno_id
		 JOIN escolas e ON e.id = c.escola_id
		 LEFT JOIN turmas t ON t.id = c.turma_id
		 WHERE c.ano_letivo = $1
		 ORDER BY e.nome, COALESCE(t.codigo, ''), a.nome`, year)
	if err != nil {
		return out, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var se model.StudentExport
		r, err := scanConsolidated(rows, &se.School, &se.Class, &se.Student, &se.Code)
		if err != nil {
			return out, err
		}
		se.Result = r
		out.Results = append(out.Results, se)
	}
	return out, rows.Err()
}
