package scoring

import (
	"fmt"
	"math"

	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/series"
)

// OverallRule selects how the per-discipline levels combine into the student level.
type OverallRule string

const (
	// RuleMean averages the level numbers and rounds half up.
	RuleMean OverallRule = "media"
	// RuleMajority picks the most frequent level; ties go to the lower level.
	RuleMajority OverallRule = "maioria"
)

// ParseOverallRule accepts the configured rule name; empty selects RuleMean.
func ParseOverallRule(s string) (OverallRule, error) {
	switch OverallRule(s) {
	case "", RuleMean:
		return RuleMean, nil
	case RuleMajority:
		return RuleMajority, nil
	}
	return "", fmt.Errorf("unknown overall level rule %q", s)
}

var levels = []model.Level{model.LevelN1, model.LevelN2, model.LevelN3, model.LevelN4}

// ScoreLevel maps a 0-10 score onto a level: <4 N1, <6 N2, <8 N3, else N4.
func ScoreLevel(score float64) model.Level {
	switch {
	case score < 4:
		return model.LevelN1
	case score < 6:
		return model.LevelN2
	case score < 8:
		return model.LevelN3
	}
	return model.LevelN4
}

type bandKey struct {
	grade      string
	discipline model.Discipline
}

// Bands holds the configured correct-count bands of LP and MAT per grade.
type Bands struct {
	byKey map[bandKey][]model.LevelBand
}

// NewBands indexes level configuration rows by normalized grade and discipline.
func NewBands(rows []model.LevelBand) *Bands {
	b := &Bands{byKey: make(map[bandKey][]model.LevelBand)}
	for _, row := range rows {
		k := bandKey{grade: series.NormalizeGrade(row.Grade), discipline: row.Discipline}
		b.byKey[k] = append(b.byKey[k], row)
	}
	return b
}

// Level returns the band containing correct for the grade and discipline. Without a
// matching band the score table of ScoreLevel decides.
func (b *Bands) Level(grade string, d model.Discipline, correct int, score float64) model.Level {
	if b != nil {
		for _, band := range b.byKey[bandKey{grade: grade, discipline: d}] {
			if correct >= band.MinCorrect && correct <= band.MaxCorrect {
				return band.Level
			}
		}
	}
	return ScoreLevel(score)
}

func levelNumber(l model.Level) int {
	for i, v := range levels {
		if v == l {
			return i + 1
		}
	}
	return 0
}

// Combine derives the overall student level from the per-discipline levels.
func Combine(rule OverallRule, in ...model.Level) (model.Level, bool) {
	var nums []int
	for _, l := range in {
		if n := levelNumber(l); n > 0 {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return "", false
	}

	if rule == RuleMajority {
		var freq [5]int
		for _, n := range nums {
			freq[n]++
		}
		best := 0
		for n := 1; n <= 4; n++ {
			if freq[n] > freq[best] {
				best = n
			}
		}
		return levels[best-1], true
	}

	sum := 0
	for _, n := range nums {
		sum += n
	}
	n := int(math.Floor(float64(sum)/float64(len(nums)) + 0.5))
	return levels[n-1], true
}
