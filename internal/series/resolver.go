// Package series resolves the grade→discipline question layout used to score a spreadsheet row.
package series

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/avalia-edu/avalia/internal/model"
)

// Config is the resolved layout of one grade.
type Config struct {
	Grade  string
	Number int // 0 when the grade could not be read as a number
	// Ranges are ordered by QuestionStart and never overlap.
	Ranges []model.SeriesDisciplineConfig
	// Fallback is set when no configuration row existed and a built-in scheme was used.
	Fallback bool
}

// Early reports whether the grade belongs to the early band (up to the 5th grade).
func (c Config) Early() bool {
	return c.Number < 6
}

// Expected returns the expected question count of d, 0 when d is not assessed.
func (c Config) Expected(d model.Discipline) int {
	n := 0
	for _, r := range c.Ranges {
		if r.Discipline == d {
			n += r.QuestionCount
		}
	}
	return n
}

// TotalExpected returns the number of questions the grade is expected to answer.
func (c Config) TotalExpected() int {
	n := 0
	for _, r := range c.Ranges {
		n += r.QuestionCount
	}
	return n
}

// Counts reports whether d enters the grade's overall average.
func (c Config) Counts(d model.Discipline) bool {
	for _, r := range c.Ranges {
		switch d {
		case model.DisciplineLP:
			if r.CountsLP {
				return true
			}
		case model.DisciplineMAT:
			if r.CountsMAT {
				return true
			}
		case model.DisciplineCH:
			if r.CountsCH {
				return true
			}
		case model.DisciplineCN:
			if r.CountsCN {
				return true
			}
		case model.DisciplineProduction:
			if r.CountsProduction {
				return true
			}
		}
	}
	return false
}

// Source lists the persisted configuration rows.
type Source interface {
	ListSeriesConfig(ctx context.Context) ([]model.SeriesDisciplineConfig, error)
}

// Resolver caches the configuration of every grade for the lifetime of one import.
type Resolver struct {
	byGrade map[string][]model.SeriesDisciplineConfig

	mu     sync.Mutex
	warned map[string]bool
}

// Load reads all configuration rows from src once.
func Load(ctx context.Context, src Source) (*Resolver, error) {
	rows, err := src.ListSeriesConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series config: %w", err)
	}
	return NewResolver(rows)
}

// NewResolver builds a resolver from configuration rows, rejecting overlapping ranges.
func NewResolver(rows []model.SeriesDisciplineConfig) (*Resolver, error) {
	r := &Resolver{
		byGrade: make(map[string][]model.SeriesDisciplineConfig),
		warned:  make(map[string]bool),
	}
	for _, row := range rows {
		grade := NormalizeGrade(row.Grade)
		if grade == "" {
			return nil, fmt.Errorf("config row %s/%s: invalid grade", row.Grade, row.Discipline)
		}
		if row.QuestionStart < 1 || row.QuestionEnd < row.QuestionStart {
			return nil, fmt.Errorf("config row %s/%s: invalid range %d-%d",
				row.Grade, row.Discipline, row.QuestionStart, row.QuestionEnd)
		}
		if row.QuestionCount <= 0 {
			row.QuestionCount = row.QuestionEnd - row.QuestionStart + 1
		}
		if row.PointValue <= 0 {
			row.PointValue = 1
		}
		row.Grade = grade
		r.byGrade[grade] = append(r.byGrade[grade], row)
	}
	for grade, ranges := range r.byGrade {
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].QuestionStart < ranges[j].QuestionStart })
		for i := 1; i < len(ranges); i++ {
			if ranges[i].QuestionStart <= ranges[i-1].QuestionEnd {
				return nil, fmt.Errorf("grade %s: %s range %d-%d overlaps %s range %d-%d", grade,
					ranges[i].Discipline, ranges[i].QuestionStart, ranges[i].QuestionEnd,
					ranges[i-1].Discipline, ranges[i-1].QuestionStart, ranges[i-1].QuestionEnd)
			}
		}
	}
	return r, nil
}

// Resolve returns the configuration for a free-text grade label such as "5º Ano", "5" or "05".
func (r *Resolver) Resolve(gradeText string) Config {
	norm := NormalizeGrade(gradeText)
	if ranges, ok := r.byGrade[norm]; ok {
		return Config{Grade: norm, Number: atoi(norm), Ranges: ranges}
	}
	sub := leadingNumber(gradeText)
	if ranges, ok := r.byGrade[sub]; ok {
		return Config{Grade: sub, Number: atoi(sub), Ranges: ranges}
	}

	number := 0
	for _, candidate := range []string{norm, sub} {
		if n := atoi(candidate); n >= 1 && n <= 12 {
			number = n
			break
		}
	}
	cfg := Config{Number: number, Fallback: true, Ranges: fallbackRanges(number)}
	if number > 0 {
		cfg.Grade = strconv.Itoa(number)
	}
	r.warnFallback(gradeText, cfg)
	return cfg
}

func (r *Resolver) warnFallback(gradeText string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.warned[gradeText] {
		return
	}
	r.warned[gradeText] = true
	slog.Warn("no series configuration for grade, using built-in scheme",
		"grade_text", gradeText, "grade", cfg.Grade, "ranges", len(cfg.Ranges))
}

// NormalizeGrade strips every non-digit character and leading zeros.
// Values in the 2000-2100 range are academic years, not grades, and yield "".
func NormalizeGrade(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsDigit(r) && r < 128 {
			b.WriteRune(r)
		}
	}
	return cleanNumber(b.String())
}

// leadingNumber returns the first run of digits in text.
func leadingNumber(text string) string {
	start := -1
	for i, r := range text {
		isDigit := r >= '0' && r <= '9'
		if isDigit && start < 0 {
			start = i
		}
		if !isDigit && start >= 0 {
			return cleanNumber(text[start:i])
		}
	}
	if start >= 0 {
		return cleanNumber(text[start:])
	}
	return ""
}

func cleanNumber(digits string) string {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return ""
	}
	if IsYear(digits) {
		return ""
	}
	return digits
}

// IsYear reports whether a digit string reads as a calendar year (2000-2100).
func IsYear(digits string) bool {
	n, err := strconv.Atoi(digits)
	return err == nil && n >= 2000 && n <= 2100
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
