package model

import "time"

// ResultsExport is the top-level JSON structure for consolidated result export.
type ResultsExport struct {
	Year       int             `json:"ano_letivo"`
	ExportedAt time.Time       `json:"exportado_em"`
	Summary    PresenceSummary `json:"resumo"`
	Results    []StudentExport `json:"resultados"`
}

// StudentExport holds one student's consolidated result for export.
type StudentExport struct {
	School  string             `json:"escola"`
	Class   string             `json:"turma"`
	Student string             `json:"aluno"`
	Code    string             `json:"codigo"`
	Result  ConsolidatedResult `json:"resultado"`
}
