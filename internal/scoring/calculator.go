// Package scoring derives the consolidated per-student result from correct-answer counts.
package scoring

import (
	"log/slog"
	"math"
	"time"

	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/series"
)

// Policy holds the configurable parts of consolidation.
type Policy struct {
	// ProductionWeight > 0 blends production writing into the early-grade average as
	// (1-w)·mean(objective) + w·production instead of the fixed divisor.
	ProductionWeight float64
	OverallRule      OverallRule
}

// Input is everything consolidation needs for one student row.
type Input struct {
	StudentID string
	SchoolID  string
	ClassID   string
	Year      int
	Line      int

	Series    series.Config
	GradeRule string
	Presence  model.Presence

	Correct         map[model.Discipline]int
	Answered        int
	Items           [8]*int
	ProductionScore *float64
	Provided        map[model.Discipline]float64
}

// Calculator computes consolidated results. It is stateless apart from its
// configuration and safe for concurrent use.
type Calculator struct {
	policy Policy
	bands  *Bands
	now    func() time.Time
}

// New returns a Calculator using the given policy and LP/MAT level bands.
func New(policy Policy, bands []model.LevelBand) *Calculator {
	if policy.OverallRule == "" {
		policy.OverallRule = RuleMean
	}
	return &Calculator{policy: policy, bands: NewBands(bands), now: time.Now}
}

// orderedComponents is the summation order of the overall average.
var orderedComponents = []model.Discipline{
	model.DisciplineLP, model.DisciplineCH, model.DisciplineMAT, model.DisciplineCN,
}

// Consolidate builds the full consolidated row. Absent and no-data students get
// counts only; every score and level stays nil.
func (c *Calculator) Consolidate(in Input) model.ConsolidatedResult {
	res := model.ConsolidatedResult{
		StudentID:      in.StudentID,
		SchoolID:       in.SchoolID,
		ClassID:        in.ClassID,
		Year:           in.Year,
		Grade:          in.Series.Grade,
		Presence:       in.Presence,
		CorrectLP:      in.Correct[model.DisciplineLP],
		CorrectMAT:     in.Correct[model.DisciplineMAT],
		CorrectCH:      in.Correct[model.DisciplineCH],
		CorrectCN:      in.Correct[model.DisciplineCN],
		TotalAnswered:  in.Answered,
		TotalExpected:  in.Series.TotalExpected(),
		ConfigFallback: in.Series.Fallback,
		GradeRule:      in.GradeRule,
		UpdatedAt:      c.now().UTC(),
	}
	if in.Presence != model.PresencePresent {
		return res
	}

	res.ProductionItems = in.Items
	if in.ProductionScore != nil {
		v := *in.ProductionScore
		res.ProductionScore = &v
	}

	scores := make(map[model.Discipline]float64)
	for _, d := range model.ObjectiveDisciplines {
		if in.Series.Expected(d) == 0 && !in.Series.Counts(d) {
			continue
		}
		s := Score(in.Correct[d], in.Series.Expected(d))
		scores[d] = s
		switch d {
		case model.DisciplineLP:
			res.ScoreLP = &s
		case model.DisciplineMAT:
			res.ScoreMAT = &s
		case model.DisciplineCH:
			res.ScoreCH = &s
		case model.DisciplineCN:
			res.ScoreCN = &s
		}
	}
	c.audit(in, scores)

	if avg, ok := c.average(in.Series, scores, res.ProductionScore); ok {
		res.Average = &avg
	}

	if in.Series.Early() && len(in.Series.Ranges) > 0 {
		c.assignLevels(in, scores, &res)
	}
	return res
}

// Score is correct/expected on a 0-10 scale, 0 when nothing is expected.
func Score(correct, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	return float64(correct) / float64(expected) * 10
}

// average applies the fixed-divisor rule: every flagged discipline counts, zero or not.
// Production writing joins the early-grade average only when its score is above zero.
func (c *Calculator) average(cfg series.Config, scores map[model.Discipline]float64, production *float64) (float64, bool) {
	if len(cfg.Ranges) == 0 {
		// Unknown grade: there is no divisor to apply.
		return 0, false
	}
	flagged := func(d model.Discipline) bool { return cfg.Counts(d) }
	if !anyFlag(cfg) {
		// Rows without any count flag fall back to every assessed discipline.
		flagged = func(d model.Discipline) bool {
			if d == model.DisciplineProduction {
				return cfg.Early()
			}
			return cfg.Expected(d) > 0
		}
	}

	sum, n := 0.0, 0
	for _, d := range orderedComponents {
		if flagged(d) {
			sum += scores[d]
			n++
		}
	}
	withProduction := flagged(model.DisciplineProduction) && production != nil && *production > 0

	switch {
	case withProduction && c.policy.ProductionWeight > 0 && n > 0:
		w := c.policy.ProductionWeight
		return (1-w)*(sum/float64(n)) + w*(*production), true
	case withProduction:
		return (sum + *production) / float64(n+1), true
	case n > 0:
		return sum / float64(n), true
	}
	return 0, false
}

func anyFlag(cfg series.Config) bool {
	for _, r := range cfg.Ranges {
		if r.CountsLP || r.CountsMAT || r.CountsCH || r.CountsCN || r.CountsProduction {
			return true
		}
	}
	return false
}

func (c *Calculator) assignLevels(in Input, scores map[model.Discipline]float64, res *model.ConsolidatedResult) {
	var parts []model.Level
	if res.ScoreLP != nil {
		l := c.bands.Level(in.Series.Grade, model.DisciplineLP, res.CorrectLP, scores[model.DisciplineLP])
		res.LevelLP = &l
		parts = append(parts, l)
	}
	if res.ScoreMAT != nil {
		l := c.bands.Level(in.Series.Grade, model.DisciplineMAT, res.CorrectMAT, scores[model.DisciplineMAT])
		res.LevelMAT = &l
		parts = append(parts, l)
	}
	if res.ProductionScore != nil {
		l := ScoreLevel(*res.ProductionScore)
		res.LevelProduction = &l
		parts = append(parts, l)
	}
	if l, ok := Combine(c.policy.OverallRule, parts...); ok {
		res.LevelOverall = &l
	}
}

// audit logs pre-computed spreadsheet scores that disagree with the computed ones.
func (c *Calculator) audit(in Input, scores map[model.Discipline]float64) {
	for d, provided := range in.Provided {
		computed, ok := scores[d]
		if !ok || math.Abs(computed-provided) <= 0.01 {
			continue
		}
		slog.Info("spreadsheet score differs from computed score",
			"line", in.Line, "discipline", d, "provided", provided, "computed", computed)
	}
}
