package store

import (
	"context"
	"time"

	"github.com/avalia-edu/avalia/internal/model"
)

// ListSchools returns every school.
func (s *Store) ListSchools(ctx context.Context) ([]model.School, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nome, nome_normalizado FROM escolas ORDER BY nome_normalizado`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.School
	for rows.Next() {
		var sc model.School
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.NormalizedName); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ListClasses returns the classes of one academic year.
func (s *Store) ListClasses(ctx context.Context, year int) ([]model.Class, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, escola_id, codigo, serie, ano_letivo FROM turmas WHERE ano_letivo = $1 ORDER BY escola_id, codigo`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Class
	for rows.Next() {
		var c model.Class
		if err := rows.Scan(&c.ID, &c.SchoolID, &c.Code, &c.Grade, &c.Year); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListStudents returns the students of one academic year.
func (s *Store) ListStudents(ctx context.Context, year int) ([]model.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, escola_id, turma_id, nome, nome_normalizado, codigo, ano_letivo
		 FROM alunos WHERE ano_letivo = $1 ORDER BY escola_id, nome_normalizado`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.SchoolID, &st.ClassID, &st.Name, &st.NormalizedName, &st.Code, &st.Year); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// EnsureSchool inserts sc unless a school with the same normalized name exists, and
// returns the stored row and whether it was created.
func (s *Store) EnsureSchool(ctx context.Context, sc model.School) (model.School, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO escolas (id, nome, nome_normalizado, criado_em) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (nome_normalizado) DO NOTHING`,
		sc.ID, sc.Name, sc.NormalizedName, time.Now().Unix(),
	)
	if err != nil {
		return sc, false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return sc, true, nil
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT id, nome FROM escolas WHERE nome_normalizado = $1`, sc.NormalizedName,
	).Scan(&sc.ID, &sc.Name)
	return sc, false, err
}

// EnsureClass inserts c unless the school already has a class with that code in the year.
func (s *Store) EnsureClass(ctx context.Context, c model.Class) (model.Class, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO turmas (id, escola_id, codigo, serie, ano_letivo, criado_em) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (escola_id, codigo, ano_letivo) DO NOTHING`,
		c.ID, c.SchoolID, c.Code, c.Grade, c.Year, time.Now().Unix(),
	)
	if err != nil {
		return c, false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return c, true, nil
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT id, serie FROM turmas WHERE escola_id = $1 AND codigo = $2 AND ano_letivo = $3`,
		c.SchoolID, c.Code, c.Year,
	).Scan(&c.ID, &c.Grade)
	return c, false, err
}

// EnsureStudent inserts st unless the school already has a student with the same
// normalized name in the year.
func (s *Store) EnsureStudent(ctx context.Context, st model.Student) (model.Student, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alunos (id, escola_id, turma_id, nome, nome_normalizado, codigo, ano_letivo, criado_em)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (nome_normalizado, escola_id, ano_letivo) DO NOTHING`,
		st.ID, st.SchoolID, st.ClassID, st.Name, st.NormalizedName, st.Code, st.Year, time.Now().Unix(),
	)
	if err != nil {
		return st, false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return st, true, nil
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT id, turma_id, nome, codigo FROM alunos WHERE nome_normalizado = $1 AND escola_id = $2 AND ano_letivo = $3`,
		st.NormalizedName, st.SchoolID, st.Year,
	).Scan(&st.ID, &st.ClassID, &st.Name, &st.Code)
	return st, false, err
}
