// Package store persists configuration, entities, results and import jobs in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DefaultSQLiteDSN is used when no DSN is configured for SQLite.
const DefaultSQLiteDSN = "file:avalia.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type Store struct {
	db     *sql.DB
	driver Driver
}

// Open connects to the database and creates missing tables.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/avalia?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; a single connection serializes jobs and pollers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// SQLiteFileDSN builds a DSN for a SQLite database file with the usual pragmas.
func SQLiteFileDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// placeholders returns "($n,...,$m)" groups for rows×cols parameters starting at $1.
func placeholders(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS series_disciplina_config (
  serie TEXT NOT NULL,
  disciplina TEXT NOT NULL,
  questao_inicio INTEGER NOT NULL,
  questao_fim INTEGER NOT NULL,
  qtd_questoes INTEGER NOT NULL,
  valor_questao REAL NOT NULL DEFAULT 1,
  conta_lp INTEGER NOT NULL DEFAULT 0,
  conta_mat INTEGER NOT NULL DEFAULT 0,
  conta_ch INTEGER NOT NULL DEFAULT 0,
  conta_cn INTEGER NOT NULL DEFAULT 0,
  conta_producao INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (serie, disciplina)
);

CREATE TABLE IF NOT EXISTS nivel_config (
  serie TEXT NOT NULL,
  disciplina TEXT NOT NULL,
  nivel TEXT NOT NULL,
  acertos_min INTEGER NOT NULL,
  acertos_max INTEGER NOT NULL,
  PRIMARY KEY (serie, disciplina, nivel)
);

CREATE TABLE IF NOT EXISTS escolas (
  id TEXT PRIMARY KEY,
  nome TEXT NOT NULL,
  nome_normalizado TEXT NOT NULL UNIQUE,
  criado_em INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS turmas (
  id TEXT PRIMARY KEY,
  escola_id TEXT NOT NULL REFERENCES escolas(id),
  codigo TEXT NOT NULL,
  serie TEXT NOT NULL DEFAULT '',
  ano_letivo INTEGER NOT NULL,
  criado_em INTEGER NOT NULL,
  UNIQUE (escola_id, codigo, ano_letivo)
);

CREATE TABLE IF NOT EXISTS alunos (
  id TEXT PRIMARY KEY,
  escola_id TEXT NOT NULL REFERENCES escolas(id),
  turma_id TEXT NOT NULL DEFAULT '',
  nome TEXT NOT NULL,
  nome_normalizado TEXT NOT NULL,
  codigo TEXT NOT NULL DEFAULT '',
  ano_letivo INTEGER NOT NULL,
  criado_em INTEGER NOT NULL,
  UNIQUE (nome_normalizado, escola_id, ano_letivo)
);

CREATE TABLE IF NOT EXISTS resultados_questoes (
  aluno_id TEXT NOT NULL REFERENCES alunos(id),
  questao_codigo TEXT NOT NULL,
  ano_letivo INTEGER NOT NULL,
  escola_id TEXT NOT NULL,
  turma_id TEXT NOT NULL DEFAULT '',
  aluno_codigo TEXT NOT NULL DEFAULT '',
  serie TEXT NOT NULL DEFAULT '',
  questao_numero INTEGER NOT NULL,
  resposta TEXT NOT NULL,
  acertou INTEGER NOT NULL,
  nota REAL NOT NULL,
  disciplina TEXT NOT NULL,
  presenca TEXT NOT NULL,
  atualizado_em INTEGER NOT NULL,
  PRIMARY KEY (aluno_id, questao_codigo, ano_letivo)
);

CREATE TABLE IF NOT EXISTS resultados_consolidados (
  aluno_id TEXT NOT NULL REFERENCES alunos(id),
  ano_letivo INTEGER NOT NULL,
  escola_id TEXT NOT NULL,
  turma_id TEXT NOT NULL DEFAULT '',
  serie TEXT NOT NULL DEFAULT '',
  presenca TEXT NOT NULL,
  acertos_lp INTEGER NOT NULL DEFAULT 0,
  acertos_mat INTEGER NOT NULL DEFAULT 0,
  acertos_ch INTEGER NOT NULL DEFAULT 0,
  acertos_cn INTEGER NOT NULL DEFAULT 0,
  nota_lp REAL,
  nota_mat REAL,
  nota_ch REAL,
  nota_cn REAL,
  media_geral REAL,
  nota_producao REAL,
  item_1 INTEGER, item_2 INTEGER, item_3 INTEGER, item_4 INTEGER,
  item_5 INTEGER, item_6 INTEGER, item_7 INTEGER, item_8 INTEGER,
  nivel_lp TEXT,
  nivel_mat TEXT,
  nivel_producao TEXT,
  nivel_aluno TEXT,
  total_respondidas INTEGER NOT NULL DEFAULT 0,
  total_esperadas INTEGER NOT NULL DEFAULT 0,
  config_fallback INTEGER NOT NULL DEFAULT 0,
  regra_serie TEXT NOT NULL DEFAULT '',
  atualizado_em INTEGER NOT NULL,
  PRIMARY KEY (aluno_id, ano_letivo)
);

CREATE TABLE IF NOT EXISTS importacoes (
  id TEXT PRIMARY KEY,
  arquivo TEXT NOT NULL,
  ano_letivo INTEGER NOT NULL,
  status TEXT NOT NULL,
  total_linhas INTEGER NOT NULL DEFAULT 0,
  linhas_processadas INTEGER NOT NULL DEFAULT 0,
  linhas_erro INTEGER NOT NULL DEFAULT 0,
  proxima_linha INTEGER NOT NULL DEFAULT 0,
  questoes_importadas INTEGER NOT NULL DEFAULT 0,
  consolidados INTEGER NOT NULL DEFAULT 0,
  escolas_criadas INTEGER NOT NULL DEFAULT 0,
  escolas_existentes INTEGER NOT NULL DEFAULT 0,
  turmas_criadas INTEGER NOT NULL DEFAULT 0,
  turmas_existentes INTEGER NOT NULL DEFAULT 0,
  alunos_criados INTEGER NOT NULL DEFAULT 0,
  alunos_existentes INTEGER NOT NULL DEFAULT 0,
  erros TEXT NOT NULL DEFAULT '[]',
  erros_excedentes INTEGER NOT NULL DEFAULT 0,
  mensagem TEXT NOT NULL DEFAULT '',
  criado_em INTEGER NOT NULL,
  atualizado_em INTEGER NOT NULL,
  concluido_em INTEGER
);

CREATE INDEX IF NOT EXISTS idx_importacoes_status ON importacoes(status);

CREATE TABLE IF NOT EXISTS metadados (
  chave TEXT PRIMARY KEY,
  valor TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS series_disciplina_config (
  serie TEXT NOT NULL,
  disciplina TEXT NOT NULL,
  questao_inicio INTEGER NOT NULL,
  questao_fim INTEGER NOT NULL,
  qtd_questoes INTEGER NOT NULL,
  valor_questao DOUBLE PRECISION NOT NULL DEFAULT 1,
  conta_lp BOOLEAN NOT NULL DEFAULT FALSE,
  conta_mat BOOLEAN NOT NULL DEFAULT FALSE,
  conta_ch BOOLEAN NOT NULL DEFAULT FALSE,
  conta_cn BOOLEAN NOT NULL DEFAULT FALSE,
  conta_producao BOOLEAN NOT NULL DEFAULT FALSE,
  PRIMARY KEY (serie, disciplina)
);

CREATE TABLE IF NOT EXISTS nivel_config (
  serie TEXT NOT NULL,
  disciplina TEXT NOT NULL,
  nivel TEXT NOT NULL,
  acertos_min INTEGER NOT NULL,
  acertos_max INTEGER NOT NULL,
  PRIMARY KEY (serie, disciplina, nivel)
);

CREATE TABLE IF NOT EXISTS escolas (
  id TEXT PRIMARY KEY,
  nome TEXT NOT NULL,
  nome_normalizado TEXT NOT NULL UNIQUE,
  criado_em BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS turmas (
  id TEXT PRIMARY KEY,
  escola_id TEXT NOT NULL REFERENCES escolas(id),
  codigo TEXT NOT NULL,
  serie TEXT NOT NULL DEFAULT '',
  ano_letivo INTEGER NOT NULL,
  criado_em BIGINT NOT NULL,
  UNIQUE (escola_id, codigo, ano_letivo)
);

CREATE TABLE IF NOT EXISTS alunos (
  id TEXT PRIMARY KEY,
  escola_id TEXT NOT NULL REFERENCES escolas(id),
  turma_id TEXT NOT NULL DEFAULT '',
  nome TEXT NOT NULL,
  nome_normalizado TEXT NOT NULL,
  codigo TEXT NOT NULL DEFAULT '',
  ano_letivo INTEGER NOT NULL,
  criado_em BIGINT NOT NULL,
  UNIQUE (nome_normalizado, escola_id, ano_letivo)
);

CREATE TABLE IF NOT EXISTS resultados_questoes (
  aluno_id TEXT NOT NULL REFERENCES alunos(id),
  questao_codigo TEXT NOT NULL,
  ano_letivo INTEGER NOT NULL,
  escola_id TEXT NOT NULL,
  turma_id TEXT NOT NULL DEFAULT '',
  aluno_codigo TEXT NOT NULL DEFAULT '',
  serie TEXT NOT NULL DEFAULT '',
  questao_numero INTEGER NOT NULL,
  resposta TEXT NOT NULL,
  acertou BOOLEAN NOT NULL,
  nota DOUBLE PRECISION NOT NULL,
  disciplina TEXT NOT NULL,
  presenca TEXT NOT NULL,
  atualizado_em BIGINT NOT NULL,
  PRIMARY KEY (aluno_id, questao_codigo, ano_letivo)
);

CREATE TABLE IF NOT EXISTS resultados_consolidados (
  aluno_id TEXT NOT NULL REFERENCES alunos(id),
  ano_letivo INTEGER NOT NULL,
  escola_id TEXT NOT NULL,
  turma_id TEXT NOT NULL DEFAULT '',
  serie TEXT NOT NULL DEFAULT '',
  presenca TEXT NOT NULL,
  acertos_lp INTEGER NOT NULL DEFAULT 0,
  acertos_mat INTEGER NOT NULL DEFAULT 0,
  acertos_ch INTEGER NOT NULL DEFAULT 0,
  acertos_cn INTEGER NOT NULL DEFAULT 0,
  nota_lp DOUBLE PRECISION,
  nota_mat DOUBLE PRECISION,
  nota_ch DOUBLE PRECISION,
  nota_cn DOUBLE PRECISION,
  media_geral DOUBLE PRECISION,
  nota_producao DOUBLE PRECISION,
  item_1 INTEGER, item_2 INTEGER, item_3 INTEGER, item_4 INTEGER,
  item_5 INTEGER, item_6 INTEGER, item_7 INTEGER, item_8 INTEGER,
  nivel_lp TEXT,
  nivel_mat TEXT,
  nivel_producao TEXT,
  nivel_aluno TEXT,
  total_respondidas INTEGER NOT NULL DEFAULT 0,
  total_esperadas INTEGER NOT NULL DEFAULT 0,
  config_fallback BOOLEAN NOT NULL DEFAULT FALSE,
  regra_serie TEXT NOT NULL DEFAULT '',
  atualizado_em BIGINT NOT NULL,
  PRIMARY KEY (aluno_id, ano_letivo)
);

CREATE TABLE IF NOT EXISTS importacoes (
  id TEXT PRIMARY KEY,
  arquivo TEXT NOT NULL,
  ano_letivo INTEGER NOT NULL,
  status TEXT NOT NULL,
  total_linhas INTEGER NOT NULL DEFAULT 0,
  linhas_processadas INTEGER NOT NULL DEFAULT 0,
  linhas_erro INTEGER NOT NULL DEFAULT 0,
  proxima_linha INTEGER NOT NULL DEFAULT 0,
  questoes_importadas INTEGER NOT NULL DEFAULT 0,
  consolidados INTEGER NOT NULL DEFAULT 0,
  escolas_criadas INTEGER NOT NULL DEFAULT 0,
  escolas_existentes INTEGER NOT NULL DEFAULT 0,
  turmas_criadas INTEGER NOT NULL DEFAULT 0,
  turmas_existentes INTEGER NOT NULL DEFAULT 0,
  alunos_criados INTEGER NOT NULL DEFAULT 0,
  alunos_existentes INTEGER NOT NULL DEFAULT 0,
  erros TEXT NOT NULL DEFAULT '[]',
  erros_excedentes INTEGER NOT NULL DEFAULT 0,
  mensagem TEXT NOT NULL DEFAULT '',
  criado_em BIGINT NOT NULL,
  atualizado_em BIGINT NOT NULL,
  concluido_em BIGINT
);

CREATE INDEX IF NOT EXISTS idx_importacoes_status ON importacoes(status);

CREATE TABLE IF NOT EXISTS metadados (
  chave TEXT PRIMARY KEY,
  valor TEXT NOT NULL
);
`
