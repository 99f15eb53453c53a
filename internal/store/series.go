package store

import (
	"context"
	"fmt"

	"github.com/avalia-edu/avalia/internal/model"
)

// ListSeriesConfig returns every grade/discipline configuration row.
func (s *Store) ListSeriesConfig(ctx context.Context) ([]model.SeriesDisciplineConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT serie, disciplina, questao_inicio, questao_fim, qtd_questoes, valor_questao,
		        conta_lp, conta_mat, conta_ch, conta_cn, conta_producao
		 FROM series_disciplina_config ORDER BY serie, questao_inicio`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SeriesDisciplineConfig
	for rows.Next() {
		var c model.SeriesDisciplineConfig
		if err := rows.Scan(&c.Grade, &c.Discipline, &c.QuestionStart, &c.QuestionEnd, &c.QuestionCount, &c.PointValue,
			&c.CountsLP, &c.CountsMAT, &c.CountsCH, &c.CountsCN, &c.CountsProduction); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListLevelBands returns the configured LP/MAT proficiency bands.
func (s *Store) ListLevelBands(ctx context.Context) ([]model.LevelBand, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT serie, disciplina, nivel, acertos_min, acertos_max
		 FROM nivel_config ORDER BY serie, disciplina, acertos_min`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LevelBand
	for rows.Next() {
		var b model.LevelBand
		if err := rows.Scan(&b.Grade, &b.Discipline, &b.Level, &b.MinCorrect, &b.MaxCorrect); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ReplaceSeriesConfig swaps the whole configuration in one transaction.
func (s *Store) ReplaceSeriesConfig(ctx context.Context, cfg model.SeriesConfigFile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM series_disciplina_config`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nivel_config`); err != nil {
		return err
	}
	for _, c := range cfg.Disciplines {
		count := c.QuestionCount
		if count <= 0 {
			count = c.QuestionEnd - c.QuestionStart + 1
		}
		point := c.PointValue
		if point <= 0 {
			point = 1
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO series_disciplina_config
			   (serie, disciplina, questao_inicio, questao_fim, qtd_questoes, valor_questao,
			    conta_lp, conta_mat, conta_ch, conta_cn, conta_producao)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.Grade, c.Discipline, c.QuestionStart, c.QuestionEnd, count, point,
			c.CountsLP, c.CountsMAT, c.CountsCH, c.CountsCN, c.CountsProduction,
		)
		if err != nil {
			return fmt.Errorf("insert config %s/%s: %w", c.Grade, c.Discipline, err)
		}
	}
	for _, b := range cfg.Levels {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO nivel_config (serie, disciplina, nivel, acertos_min, acertos_max)
			 VALUES ($1, $2, $3, $4, $5)`,
			b.Grade, b.Discipline, b.Level, b.MinCorrect, b.MaxCorrect,
		)
		if err != nil {
			return fmt.Errorf("insert level %s/%s/%s: %w", b.Grade, b.Discipline, b.Level, err)
		}
	}
	return tx.Commit()
}
