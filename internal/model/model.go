package model

import (
	"time"
)

// Discipline identifies a subject area of the assessment.
type Discipline string

const (
	// DisciplineLP is Portuguese language.
	DisciplineLP Discipline = "LP"
	// DisciplineMAT is mathematics.
	DisciplineMAT Discipline = "MAT"
	// DisciplineCH is human sciences.
	DisciplineCH Discipline = "CH"
	// DisciplineCN is natural sciences.
	DisciplineCN Discipline = "CN"
	// DisciplineProduction is production writing (redação).
	DisciplineProduction Discipline = "PT"
	// Unmapped is returned for question numbers outside every configured range.
	Unmapped Discipline = "unmapped"
)

// ObjectiveDisciplines lists the disciplines scored from answered questions, in report order.
var ObjectiveDisciplines = []Discipline{DisciplineLP, DisciplineMAT, DisciplineCH, DisciplineCN}

// Presence is the tri-state attendance of a student in the assessment.
type Presence string

const (
	PresencePresent Presence = "P"
	PresenceAbsent  Presence = "F"
	// PresenceNoData means the row carried neither a presence mark nor answers.
	PresenceNoData Presence = "-"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	StatusProcessing JobStatus = "processando"
	StatusPaused     JobStatus = "pausado"
	StatusCancelled  JobStatus = "cancelado"
	StatusCompleted  JobStatus = "concluido"
	StatusFailed     JobStatus = "erro"
)

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusFailed
}

// Level is a proficiency band, N1 (lowest) to N4.
type Level string

const (
	LevelN1 Level = "N1"
	LevelN2 Level = "N2"
	LevelN3 Level = "N3"
	LevelN4 Level = "N4"
)

// SeriesDisciplineConfig is one configuration row: the question range of a discipline for a grade.
type SeriesDisciplineConfig struct {
	Grade            string     `json:"serie"`
	Discipline       Discipline `json:"disciplina"`
	QuestionStart    int        `json:"questao_inicio"`
	QuestionEnd      int        `json:"questao_fim"`
	QuestionCount    int        `json:"qtd_questoes"`
	PointValue       float64    `json:"valor_questao"`
	CountsLP         bool       `json:"conta_lp"`
	CountsMAT        bool       `json:"conta_mat"`
	CountsCH         bool       `json:"conta_ch"`
	CountsCN         bool       `json:"conta_cn"`
	CountsProduction bool       `json:"conta_producao"`
}

// LevelBand maps a correct-answer interval of a discipline to a proficiency level.
type LevelBand struct {
	Grade      string     `json:"serie"`
	Discipline Discipline `json:"disciplina"`
	Level      Level      `json:"nivel"`
	MinCorrect int        `json:"acertos_min"`
	MaxCorrect int        `json:"acertos_max"`
}

// SeriesConfigFile is the JSON layout accepted by --series-config.
type SeriesConfigFile struct {
	Disciplines []SeriesDisciplineConfig `json:"disciplinas"`
	Levels      []LevelBand              `json:"niveis"`
}

// School is a school known to the platform.
type School struct {
	ID             string `json:"id"`
	Name           string `json:"nome"`
	NormalizedName string `json:"nome_normalizado"`
}

// Class is a class (turma) of a school in one academic year.
type Class struct {
	ID       string `json:"id"`
	SchoolID string `json:"escola_id"`
	Code     string `json:"codigo"`
	Grade    string `json:"serie"`
	Year     int    `json:"ano_letivo"`
}

// Student is a student enrolled in a school in one academic year.
type Student struct {
	ID             string `json:"id"`
	SchoolID       string `json:"escola_id"`
	ClassID        string `json:"turma_id"`
	Name           string `json:"nome"`
	NormalizedName string `json:"nome_normalizado"`
	Code           string `json:"codigo"`
	Year           int    `json:"ano_letivo"`
}

// RawQuestionResult is one student's answer to one question in one academic year.
type RawQuestionResult struct {
	SchoolID       string     `json:"escola_id"`
	ClassID        string     `json:"turma_id"`
	StudentID      string     `json:"aluno_id"`
	StudentCode    string     `json:"aluno_codigo"`
	Grade          string     `json:"serie"`
	QuestionNumber int        `json:"questao_numero"`
	QuestionCode   string     `json:"questao_codigo"`
	Answer         string     `json:"resposta"`
	Correct        bool       `json:"acertou"`
	Score          float64    `json:"nota"`
	Discipline     Discipline `json:"disciplina"`
	Presence       Presence   `json:"presenca"`
	Year           int        `json:"ano_letivo"`
	UpdatedAt      time.Time  `json:"atualizado_em"`
}

// ConsolidatedResult is the per-student, per-year summary derived from the raw answers.
// Score and level fields are nil for absent and no-data students.
type ConsolidatedResult struct {
	StudentID       string    `json:"aluno_id"`
	SchoolID        string    `json:"escola_id"`
	ClassID         string    `json:"turma_id"`
	Year            int       `json:"ano_letivo"`
	Grade           string    `json:"serie"`
	Presence        Presence  `json:"presenca"`
	CorrectLP       int       `json:"acertos_lp"`
	CorrectMAT      int       `json:"acertos_mat"`
	CorrectCH       int       `json:"acertos_ch"`
	CorrectCN       int       `json:"acertos_cn"`
	ScoreLP         *float64  `json:"nota_lp"`
	ScoreMAT        *float64  `json:"nota_mat"`
	ScoreCH         *float64  `json:"nota_ch"`
	ScoreCN         *float64  `json:"nota_cn"`
	Average         *float64  `json:"media_geral"`
	ProductionScore *float64  `json:"nota_producao"`
	ProductionItems [8]*int   `json:"itens_producao"`
	LevelLP         *Level    `json:"nivel_lp"`
	LevelMAT        *Level    `json:"nivel_mat"`
	LevelProduction *Level    `json:"nivel_producao"`
	LevelOverall    *Level    `json:"nivel_aluno"`
	TotalAnswered   int       `json:"total_respondidas"`
	TotalExpected   int       `json:"total_esperadas"`
	ConfigFallback  bool      `json:"config_fallback"`
	GradeRule       string    `json:"regra_serie"`
	UpdatedAt       time.Time `json:"atualizado_em"`
}

// EntityCounters counts entities created or found by an import job.
type EntityCounters struct {
	SchoolsCreated  int `json:"escolas_criadas"`
	SchoolsFound    int `json:"escolas_existentes"`
	ClassesCreated  int `json:"turmas_criadas"`
	ClassesFound    int `json:"turmas_existentes"`
	StudentsCreated int `json:"alunos_criados"`
	StudentsFound   int `json:"alunos_existentes"`
}

// ImportJob is the persisted state of one spreadsheet import.
type ImportJob struct {
	ID                string         `json:"id"`
	Filename          string         `json:"arquivo"`
	Year              int            `json:"ano_letivo"`
	Status            JobStatus      `json:"status"`
	TotalRows         int            `json:"total_linhas"`
	ProcessedRows     int            `json:"linhas_processadas"`
	ErrorRows         int            `json:"linhas_erro"`
	NextRow           int            `json:"proxima_linha"`
	QuestionsImported int            `json:"questoes_importadas"`
	Consolidated      int            `json:"resultados_consolidados"`
	Counters          EntityCounters `json:"contadores"`
	Errors            []string       `json:"erros"`
	ErrorsOverflow    int            `json:"erros_excedentes"`
	Message           string         `json:"mensagem,omitempty"`
	CreatedAt         time.Time      `json:"criado_em"`
	UpdatedAt         time.Time      `json:"atualizado_em"`
	FinishedAt        *time.Time     `json:"concluido_em,omitempty"`
}

// Percentage returns processed rows over total rows, 0-100.
func (j ImportJob) Percentage() float64 {
	if j.TotalRows == 0 {
		return 0
	}
	return float64(j.ProcessedRows) / float64(j.TotalRows) * 100
}

// Progress is the polling view of a job.
type Progress struct {
	JobID             string         `json:"id"`
	Status            JobStatus      `json:"status"`
	Percentage        float64        `json:"percentual"`
	ProcessedRows     int            `json:"linhas_processadas"`
	TotalRows         int            `json:"total_linhas"`
	ErrorRows         int            `json:"linhas_erro"`
	QuestionsImported int            `json:"questoes_importadas"`
	Counters          EntityCounters `json:"contadores"`
}

// ImportResult is the final summary of a job.
type ImportResult struct {
	JobID         string         `json:"id"`
	Status        JobStatus      `json:"status"`
	TotalRows     int            `json:"total_linhas"`
	ProcessedRows int            `json:"linhas_processadas"`
	ErrorRows     int            `json:"linhas_erro"`
	Consolidated  int            `json:"resultados_consolidados"`
	Counters      EntityCounters `json:"contadores"`
	Errors        []string       `json:"erros"`
	Message       string         `json:"mensagem,omitempty"`
}

// PresenceSummary aggregates attendance and scores for one academic year.
// No-data rows are counted separately and never enter the attendance rate or the mean.
type PresenceSummary struct {
	Year        int      `json:"ano_letivo"`
	Present     int      `json:"presentes"`
	Absent      int      `json:"faltosos"`
	NoData      int      `json:"sem_dados"`
	Attendance  float64  `json:"percentual_presenca"`
	MeanAverage *float64 `json:"media_geral"`
}
