package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is a canonical spreadsheet column.
type Field string

const (
	FieldSchool          Field = "escola"
	FieldStudent         Field = "aluno"
	FieldStudentCode     Field = "codigo_aluno"
	FieldClass           Field = "turma"
	FieldGrade           Field = "serie"
	FieldAcademicYear    Field = "ano_letivo"
	FieldPresencePF      Field = "p_f"
	FieldAbsence         Field = "falta"
	FieldPresence        Field = "presenca"
	FieldScoreLP         Field = "nota_lp"
	FieldScoreMAT        Field = "nota_mat"
	FieldScoreCH         Field = "nota_ch"
	FieldScoreCN         Field = "nota_cn"
	FieldScoreProduction Field = "nota_producao"
)

// headerSpellings maps every accepted header (after Fold) to its canonical field.
// Adding a spreadsheet convention means adding a line here.
var headerSpellings = map[string]Field{
	"ESCOLA":              FieldSchool,
	"NOME DA ESCOLA":      FieldSchool,
	"NOME ESCOLA":         FieldSchool,
	"ESCOLA NOME":         FieldSchool,
	"UNIDADE ESCOLAR":     FieldSchool,
	"INSTITUICAO":         FieldSchool,
	"ALUNO":               FieldStudent,
	"NOME":                FieldStudent,
	"NOME DO ALUNO":       FieldStudent,
	"NOME ALUNO":          FieldStudent,
	"ALUNO NOME":          FieldStudent,
	"ESTUDANTE":           FieldStudent,
	"NOME DO ESTUDANTE":   FieldStudent,
	"CODIGO ALUNO":        FieldStudentCode,
	"CODIGO DO ALUNO":     FieldStudentCode,
	"COD ALUNO":           FieldStudentCode,
	"MATRICULA":           FieldStudentCode,
	"RA":                  FieldStudentCode,
	"TURMA":               FieldClass,
	"COD TURMA":           FieldClass,
	"CODIGO TURMA":        FieldClass,
	"CODIGO DA TURMA":     FieldClass,
	"CLASSE":              FieldClass,
	"SERIE":               FieldGrade,
	"ANO/SERIE":           FieldGrade,
	"ANO SERIE":           FieldGrade,
	"SERIE/ANO":           FieldGrade,
	"SERIE ANO":           FieldGrade,
	"ANO ESCOLAR":         FieldGrade,
	"ANO DE ESCOLARIDADE": FieldGrade,
	"ETAPA":               FieldGrade,
	// These usually hold the calendar year of the assessment, never the grade.
	"ANO":              FieldAcademicYear,
	"ANO LETIVO":       FieldAcademicYear,
	"ANO DA AVALIACAO": FieldAcademicYear,
	"ANO REFERENCIA":   FieldAcademicYear,
	"EXERCICIO":        FieldAcademicYear,
	"P/F":              FieldPresencePF,
	"PF":               FieldPresencePF,
	"FALTA":            FieldAbsence,
	"FALTOU":           FieldAbsence,
	"AUSENTE":          FieldAbsence,
	"PRESENCA":         FieldPresence,
	"PRESENTE":         FieldPresence,
	"FREQUENCIA":       FieldPresence,
	"NOTA LP":          FieldScoreLP,
	"NOTA PORTUGUES":   FieldScoreLP,
	"NOTA MAT":         FieldScoreMAT,
	"NOTA MATEMATICA":  FieldScoreMAT,
	"NOTA CH":          FieldScoreCH,
	"NOTA CN":          FieldScoreCN,
	"NOTA PRODUCAO":    FieldScoreProduction,
	"NOTA PT":          FieldScoreProduction,
	"NOTA REDACAO":     FieldScoreProduction,
	"PRODUCAO TEXTUAL": FieldScoreProduction,
}

var (
	questionHeader = regexp.MustCompile(`^(?:Q|QUESTAO|QUEST|QST)\s*0*([1-9][0-9]?)$`)
	itemHeader     = regexp.MustCompile(`^(?:ITEM|PT ITEM|ITEM PT|PRODUCAO ITEM|ITEM PRODUCAO|PT)\s*0?([1-8])$`)
)

// MaxQuestions is the number of question slots a spreadsheet may carry.
const MaxQuestions = 60

// ProductionItems is the number of production-writing item columns.
const ProductionItems = 8

// Fold upper-cases s, removes accents and collapses separators so header and token
// variants compare equal ("Presença" → "PRESENCA", "nome_do_aluno" → "NOME DO ALUNO").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToUpper(out)
	out = strings.Map(func(r rune) rune {
		switch {
		case r == '_' || r == '-' || r == '.' || r == ':':
			return ' '
		case r == 'º' || r == 'ª' || r == '°':
			return -1
		}
		return r
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// classifyHeader returns the canonical field of a header, or the question/item number it names.
func classifyHeader(header string) (field Field, question, item int) {
	h := Fold(header)
	if f, ok := headerSpellings[h]; ok {
		return f, 0, 0
	}
	if m := questionHeader.FindStringSubmatch(h); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= MaxQuestions {
			return "", n, 0
		}
	}
	if m := itemHeader.FindStringSubmatch(h); m != nil {
		n, _ := strconv.Atoi(m[1])
		return "", 0, n
	}
	return "", 0, 0
}
