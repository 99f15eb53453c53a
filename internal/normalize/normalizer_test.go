package normalize

import (
	"errors"
	"testing"

	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/series"
)

func newTestNormalizer(t *testing.T, headers []string) *Normalizer {
	t.Helper()
	r, err := series.NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return New(headers, r)
}

// row builds a data row aligned to headers from a header→value map.
func row(headers []string, values map[string]string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = values[h]
	}
	return out
}

func TestFold(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Presença", "PRESENCA"},
		{"  nome_do_aluno ", "NOME DO ALUNO"},
		{"Ano/Série", "ANO/SERIE"},
		{"Questão 01", "QUESTAO 01"},
		{"5º Ano", "5 ANO"},
		{"-", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHeaderVariants(t *testing.T) {
	headers := []string{"Nome da Escola", "Nome do Aluno", "Turma", "Ano/Série", "Ano Letivo", "Presença", "Questão 1", "q02", "ITEM_3", "Nota Produção"}
	n := newTestNormalizer(t, headers)

	for _, f := range []Field{FieldSchool, FieldStudent, FieldClass, FieldGrade, FieldAcademicYear, FieldPresence, FieldScoreProduction} {
		if !n.Has(f) {
			t.Errorf("expected field %s to be recognized", f)
		}
	}
	if n.QuestionColumns() != 2 {
		t.Errorf("expected 2 question columns, got %d", n.QuestionColumns())
	}
	if n.items[2] != 8 {
		t.Errorf("expected item 3 at column 8, got %d", n.items[2])
	}
}

func TestAcademicYearHeaderIsNotGrade(t *testing.T) {
	headers := []string{"Escola", "Aluno", "Turma", "Ano", "Q1"}
	n := newTestNormalizer(t, headers)
	if n.Has(FieldGrade) {
		t.Fatal("the Ano column must not be read as the grade")
	}

	rec, err := n.Normalize(2, row(headers, map[string]string{
		"Escola": "EMEF Centro", "Aluno": "Ana", "Turma": "3A", "Ano": "2024", "Q1": "1",
	}))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.GradeRule != GradeFromClass || rec.Series.Grade != "3" {
		t.Errorf("expected grade 3 from class, got %q via %q", rec.Series.Grade, rec.GradeRule)
	}
}

func TestGradeFallbackChain(t *testing.T) {
	headers := []string{"Escola", "Aluno", "Turma", "Série", "Q1", "Q28", "Q30", "Q40"}

	tests := []struct {
		name      string
		values    map[string]string
		wantGrade string
		wantRule  GradeRule
	}{
		{"explicit column", map[string]string{"Série": "5º Ano", "Turma": "9A", "Q1": "1"}, "5", GradeFromColumn},
		{"year in grade column", map[string]string{"Série": "2024", "Turma": "7B", "Q1": "1"}, "7", GradeFromClass},
		{"class code", map[string]string{"Turma": "5B", "Q1": "1"}, "5", GradeFromClass},
		{"class code with zero", map[string]string{"Turma": "09A", "Q1": "1"}, "9", GradeFromClass},
		{"max question up to 28", map[string]string{"Turma": "B", "Q28": "1"}, "2", GradeFromQuestions},
		{"max question up to 34", map[string]string{"Turma": "B", "Q30": "0"}, "5", GradeFromQuestions},
		{"max question above 34", map[string]string{"Q1": "1", "Q40": "X"}, "8", GradeFromQuestions},
		{"nothing to infer from", map[string]string{}, "", GradeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNormalizer(t, headers)
			tt.values["Escola"] = "E"
			tt.values["Aluno"] = "A"
			rec, err := n.Normalize(2, row(headers, tt.values))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if rec.Series.Grade != tt.wantGrade {
				t.Errorf("expected grade %q, got %q", tt.wantGrade, rec.Series.Grade)
			}
			if rec.GradeRule != tt.wantRule {
				t.Errorf("expected rule %q, got %q", tt.wantRule, rec.GradeRule)
			}
		})
	}
}

func TestPresence(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		values  map[string]string
		want    model.Presence
	}{
		{"P/F present", []string{"P/F", "Q1"}, map[string]string{"P/F": "P", "Q1": "1"}, model.PresencePresent},
		{"P/F absent", []string{"P/F"}, map[string]string{"P/F": "F"}, model.PresenceAbsent},
		{"FALTA X", []string{"FALTA"}, map[string]string{"FALTA": "x"}, model.PresenceAbsent},
		{"FALTA faltou", []string{"FALTA"}, map[string]string{"FALTA": "Faltou"}, model.PresenceAbsent},
		{"FALTA sim", []string{"FALTA"}, map[string]string{"FALTA": "SIM"}, model.PresenceAbsent},
		{"FALTA other", []string{"FALTA", "Q1"}, map[string]string{"FALTA": "N", "Q1": "0"}, model.PresencePresent},
		{"PRESENCA ausente", []string{"PRESENÇA"}, map[string]string{"PRESENÇA": "ausente"}, model.PresenceAbsent},
		{"PRESENCA presente", []string{"PRESENÇA"}, map[string]string{"PRESENÇA": "Presente"}, model.PresencePresent},
		{"no column, answers", []string{"Q1"}, map[string]string{"Q1": "0"}, model.PresencePresent},
		{"no column, no answers", []string{"Q1"}, map[string]string{}, model.PresenceNoData},
		{"empty column, no answers", []string{"FALTA", "Q1"}, map[string]string{"FALTA": " "}, model.PresenceNoData},
		{"dash is no data", []string{"P/F", "Q1"}, map[string]string{"P/F": "-"}, model.PresenceNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := append([]string{"Escola", "Aluno", "Série"}, tt.headers...)
			tt.values["Escola"] = "E"
			tt.values["Aluno"] = "A"
			tt.values["Série"] = "5"
			rec, err := newTestNormalizer(t, headers).Normalize(2, row(headers, tt.values))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if rec.Presence != tt.want {
				t.Errorf("expected presence %q, got %q", tt.want, rec.Presence)
			}
		})
	}
}

func TestAbsentStudentAnswersIgnored(t *testing.T) {
	headers := []string{"Escola", "Aluno", "Série", "FALTA", "Q1", "Q2"}
	rec, err := newTestNormalizer(t, headers).Normalize(3, row(headers, map[string]string{
		"Escola": "E", "Aluno": "A", "Série": "5", "FALTA": "F", "Q1": "1", "Q2": "1",
	}))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Presence != model.PresenceAbsent {
		t.Fatalf("expected absent, got %q", rec.Presence)
	}
	if len(rec.Answers) != 0 || rec.Correct[model.DisciplineLP] != 0 {
		t.Errorf("expected no answers for an absent student, got %d", len(rec.Answers))
	}
}

func TestAnswersAndDisciplines(t *testing.T) {
	headers := []string{"Escola", "Aluno", "Série", "Q1", "Q2", "Q14", "Q15", "Q20", "Q35"}
	rec, err := newTestNormalizer(t, headers).Normalize(2, row(headers, map[string]string{
		"Escola": "E", "Aluno": "A", "Série": "5º Ano",
		"Q1": "1", "Q2": "0", "Q14": "X", "Q15": "x", "Q20": "B", "Q35": "1",
	}))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Correct[model.DisciplineLP] != 2 {
		t.Errorf("expected 2 LP correct, got %d", rec.Correct[model.DisciplineLP])
	}
	if rec.Correct[model.DisciplineMAT] != 1 {
		t.Errorf("expected 1 MAT correct, got %d", rec.Correct[model.DisciplineMAT])
	}
	// Q35 is outside the grade 5 layout (MAT ends at 34).
	if rec.Answered() != 5 {
		t.Errorf("expected 5 mapped answers, got %d", rec.Answered())
	}
	for _, a := range rec.Answers {
		if a.Number == 20 && (a.Correct || a.Value != "B" || a.Code != "Q20") {
			t.Errorf("unexpected answer for Q20: %+v", a)
		}
	}
}

func TestIsCorrect(t *testing.T) {
	tests := map[string]bool{
		"1": true, " 1 ": true, "1.0": true, "1,0": true, "X": true, "x": true,
		"0": false, "A": false, "": false, "2": false, "xx": false,
	}
	for in, want := range tests {
		if got := IsCorrect(in); got != want {
			t.Errorf("IsCorrect(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestProductionItems(t *testing.T) {
	headers := []string{"Escola", "Aluno", "Série", "Q1", "Item1", "Item 2", "ITEM_3", "Item4", "Item5", "Item6", "Item7", "Item8"}
	rec, err := newTestNormalizer(t, headers).Normalize(2, row(headers, map[string]string{
		"Escola": "E", "Aluno": "A", "Série": "3", "Q1": "1",
		"Item1": "1", "Item 2": "0", "ITEM_3": "x", "Item4": "2", "Item5": "sim",
	}))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []*int{intPtr(1), intPtr(0), intPtr(1), intPtr(1), intPtr(1), nil, nil, nil}
	for i, w := range want {
		got := rec.Items[i]
		if (got == nil) != (w == nil) || (got != nil && *got != *w) {
			t.Errorf("item %d: expected %v, got %v", i+1, deref(w), deref(got))
		}
	}
	if rec.ProductionScore == nil || *rec.ProductionScore != 5 {
		t.Errorf("expected production score 5 (4/8*10), got %v", deref(rec.ProductionScore))
	}
}

func TestExplicitProductionScoreWins(t *testing.T) {
	headers := []string{"Escola", "Aluno", "Série", "Item1", "Nota Produção", "Nota LP"}
	rec, err := newTestNormalizer(t, headers).Normalize(2, row(headers, map[string]string{
		"Escola": "E", "Aluno": "A", "Série": "5", "Item1": "1", "Nota Produção": "8,0", "Nota LP": "7.5",
	}))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.ProductionScore == nil || *rec.ProductionScore != 8 {
		t.Errorf("expected production score 8, got %v", deref(rec.ProductionScore))
	}
	if rec.Provided[model.DisciplineLP] != 7.5 {
		t.Errorf("expected provided LP 7.5, got %v", rec.Provided[model.DisciplineLP])
	}
}

func TestRejectsBlankNames(t *testing.T) {
	headers := []string{"Escola", "Aluno", "Q1"}
	n := newTestNormalizer(t, headers)

	_, err := n.Normalize(2, []string{" ", "Ana", "1"})
	if !errors.Is(err, ErrMissingSchool) {
		t.Errorf("expected ErrMissingSchool, got %v", err)
	}
	_, err = n.Normalize(3, []string{"EMEF", "", "1"})
	if !errors.Is(err, ErrMissingStudent) {
		t.Errorf("expected ErrMissingStudent, got %v", err)
	}
	// Short rows are padded with blanks.
	_, err = n.Normalize(4, []string{"EMEF"})
	if !errors.Is(err, ErrMissingStudent) {
		t.Errorf("expected ErrMissingStudent for a short row, got %v", err)
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  maria   da silva "); got != "MARIA DA SILVA" {
		t.Errorf("NormalizeName = %q", got)
	}
}

func intPtr(v int) *int { return &v }

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
