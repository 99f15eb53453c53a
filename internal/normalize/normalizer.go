// Package normalize turns raw spreadsheet rows into canonical student records.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/series"
)

var (
	ErrMissingSchool  = errors.New("school name is blank")
	ErrMissingStudent = errors.New("student name is blank")
)

// GradeRule names the step of the grade fallback chain that produced a record's grade.
type GradeRule string

const (
	GradeFromColumn    GradeRule = "coluna"
	GradeFromClass     GradeRule = "turma"
	GradeFromQuestions GradeRule = "questoes"
	GradeUnknown       GradeRule = ""
)

// Answer is one non-empty question cell.
type Answer struct {
	Number     int
	Code       string
	Value      string
	Correct    bool
	Discipline model.Discipline
	PointValue float64
}

// Record is the canonical form of one spreadsheet row.
type Record struct {
	Line        int
	School      string
	Student     string
	StudentCode string
	Class       string

	GradeText string
	GradeRule GradeRule
	Series    series.Config

	Presence      model.Presence
	PresenceField Field

	// Answers holds mapped answers only; absent students have none.
	Answers []Answer
	Correct map[model.Discipline]int

	Items           [ProductionItems]*int
	ProductionScore *float64
	// Provided holds pre-computed scores found in the row, kept for auditing only.
	Provided map[model.Discipline]float64
}

// Answered returns how many mapped questions carry an answer.
func (r Record) Answered() int { return len(r.Answers) }

type questionColumn struct {
	index  int
	number int
}

// Normalizer reads rows of one spreadsheet, given its header row.
type Normalizer struct {
	columns   map[Field]int
	questions []questionColumn
	items     [ProductionItems]int
	resolver  *series.Resolver
}

// New maps the header row onto canonical fields. When two headers name the same
// field the leftmost wins.
func New(headers []string, resolver *series.Resolver) *Normalizer {
	n := &Normalizer{
		columns:  make(map[Field]int),
		resolver: resolver,
	}
	for i := range n.items {
		n.items[i] = -1
	}
	seenQuestion := make(map[int]bool)
	for i, h := range headers {
		field, question, item := classifyHeader(h)
		switch {
		case field != "":
			if _, dup := n.columns[field]; dup {
				slog.Debug("duplicate header ignored", "header", h, "field", field)
				continue
			}
			n.columns[field] = i
		case question > 0:
			if seenQuestion[question] {
				slog.Debug("duplicate question header ignored", "header", h)
				continue
			}
			seenQuestion[question] = true
			n.questions = append(n.questions, questionColumn{index: i, number: question})
		case item > 0:
			if n.items[item-1] < 0 {
				n.items[item-1] = i
			}
		}
	}
	return n
}

// Has reports whether the spreadsheet has a column for f.
func (n *Normalizer) Has(f Field) bool {
	_, ok := n.columns[f]
	return ok
}

// QuestionColumns returns the number of question columns found.
func (n *Normalizer) QuestionColumns() int { return len(n.questions) }

func (n *Normalizer) cell(row []string, f Field) string {
	i, ok := n.columns[f]
	if !ok {
		return ""
	}
	return cellAt(row, i)
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Normalize converts one data row. line is the 1-based spreadsheet line used in logs.
// Rows without a school or student name are rejected with ErrMissingSchool or ErrMissingStudent.
func (n *Normalizer) Normalize(line int, row []string) (Record, error) {
	rec := Record{
		Line:        line,
		School:      n.cell(row, FieldSchool),
		Student:     n.cell(row, FieldStudent),
		StudentCode: n.cell(row, FieldStudentCode),
		Class:       n.cell(row, FieldClass),
		Correct:     make(map[model.Discipline]int),
	}
	if rec.School == "" {
		return rec, ErrMissingSchool
	}
	if rec.Student == "" {
		return rec, ErrMissingStudent
	}

	type rawAnswer struct {
		number int
		value  string
	}
	var raw []rawAnswer
	maxAnswered := 0
	for _, q := range n.questions {
		v := cellAt(row, q.index)
		if v == "" {
			continue
		}
		raw = append(raw, rawAnswer{number: q.number, value: v})
		if q.number > maxAnswered {
			maxAnswered = q.number
		}
	}

	rec.GradeText, rec.GradeRule = n.resolveGrade(line, row, rec.Class, maxAnswered)
	rec.Series = n.resolver.Resolve(rec.GradeText)

	presence, field, marked := n.resolvePresence(row)
	switch {
	case marked:
		rec.Presence, rec.PresenceField = presence, field
	case len(raw) > 0:
		rec.Presence = model.PresencePresent
	default:
		rec.Presence = model.PresenceNoData
	}

	if rec.Presence == model.PresenceAbsent && len(raw) > 0 {
		slog.Info("absent student has answers, answers ignored", "line", line, "answers", len(raw))
		raw = nil
	}
	for _, a := range raw {
		rg, ok := series.Lookup(rec.Series, a.number)
		if !ok {
			slog.Debug("question outside configured ranges", "line", line, "question", a.number, "grade", rec.Series.Grade)
			continue
		}
		ans := Answer{
			Number:     a.number,
			Code:       QuestionCode(a.number),
			Value:      a.value,
			Correct:    IsCorrect(a.value),
			Discipline: rg.Discipline,
			PointValue: rg.PointValue,
		}
		if ans.Correct {
			rec.Correct[ans.Discipline]++
		}
		rec.Answers = append(rec.Answers, ans)
	}

	hasItem := false
	sum := 0
	for i, idx := range n.items {
		if idx < 0 {
			continue
		}
		if v, ok := itemValue(cellAt(row, idx)); ok {
			rec.Items[i] = &v
			sum += v
			hasItem = true
		}
	}
	if v, ok := parseScore(n.cell(row, FieldScoreProduction)); ok {
		rec.ProductionScore = &v
	} else if hasItem {
		v := float64(sum) / ProductionItems * 10
		rec.ProductionScore = &v
	}

	for f, d := range providedFields {
		if v, ok := parseScore(n.cell(row, f)); ok {
			if rec.Provided == nil {
				rec.Provided = make(map[model.Discipline]float64)
			}
			rec.Provided[d] = v
		}
	}
	return rec, nil
}

var providedFields = map[Field]model.Discipline{
	FieldScoreLP:  model.DisciplineLP,
	FieldScoreMAT: model.DisciplineMAT,
	FieldScoreCH:  model.DisciplineCH,
	FieldScoreCN:  model.DisciplineCN,
}

// resolveGrade applies the fallback chain: grade column, class code, highest answered question.
func (n *Normalizer) resolveGrade(line int, row []string, class string, maxAnswered int) (string, GradeRule) {
	if text := n.cell(row, FieldGrade); text != "" {
		if series.NormalizeGrade(text) != "" {
			return text, GradeFromColumn
		}
		slog.Warn("grade column holds no grade number, ignoring it", "line", line, "value", text)
	}

	if grade := classGrade(class); grade != "" {
		slog.Warn("grade inferred", "line", line, "rule", GradeFromClass, "class", class, "grade", grade)
		return grade, GradeFromClass
	}

	if maxAnswered > 0 {
		grade := "8"
		switch {
		case maxAnswered <= 28:
			grade = "2"
		case maxAnswered <= 34:
			grade = "5"
		}
		slog.Warn("grade inferred", "line", line, "rule", GradeFromQuestions, "max_question", maxAnswered, "grade", grade)
		return grade, GradeFromQuestions
	}
	return "", GradeUnknown
}

// classGrade reads the grade from the leading digits of a class code ("5B" → "5", "09A" → "9").
func classGrade(class string) string {
	end := 0
	for end < len(class) && class[end] >= '0' && class[end] <= '9' {
		end++
	}
	if end == 0 {
		return ""
	}
	g := strings.TrimLeft(class[:end], "0")
	if v, err := strconv.Atoi(g); err != nil || v < 1 || v > 12 {
		return ""
	}
	return g
}

// QuestionCode is the stored code of a question number ("Q7").
func QuestionCode(number int) string {
	return fmt.Sprintf("Q%d", number)
}

// IsCorrect reports whether an answer cell marks a correct answer: 1, "1", "X" or "x".
func IsCorrect(value string) bool {
	v := strings.TrimSpace(value)
	if v == "X" || v == "x" {
		return true
	}
	f, ok := parseScore(v)
	return ok && f == 1
}

// itemValue coerces a production-writing item cell to 0/1; blank cells are unset.
func itemValue(value string) (int, bool) {
	switch Fold(value) {
	case "":
		return 0, false
	case "X", "S", "SIM":
		return 1, true
	}
	if f, ok := parseScore(value); ok && f > 0 {
		return 1, true
	}
	return 0, true
}

// parseScore parses a number written with either decimal separator.
func parseScore(value string) (float64, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// NormalizeName upper-cases and trims a name and collapses inner whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}
