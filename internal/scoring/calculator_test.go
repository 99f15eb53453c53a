package scoring

import (
	"testing"

	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/series"
)

func fallbackConfig(t *testing.T, grade string) series.Config {
	t.Helper()
	r, err := series.NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r.Resolve(grade)
}

func floatPtr(v float64) *float64 { return &v }

func TestEarlyGradeAverage(t *testing.T) {
	calc := New(Policy{}, nil)

	for _, grade := range []string{"2", "3", "5"} {
		cfg := fallbackConfig(t, grade)
		lpMax, matMax := cfg.Expected(model.DisciplineLP), cfg.Expected(model.DisciplineMAT)

		tests := []struct {
			name       string
			lp, mat    int
			production *float64
		}{
			{"all zero", 0, 0, nil},
			{"all zero with zero production", 0, 0, floatPtr(0)},
			{"all max", lpMax, matMax, floatPtr(10)},
			{"max without production", lpMax, matMax, nil},
			{"mixed", 5, 7, floatPtr(6.25)},
			{"one discipline at zero", 0, matMax, floatPtr(3)},
			{"odd counts", 13, 1, floatPtr(0.5)},
		}
		for _, tt := range tests {
			t.Run(grade+"/"+tt.name, func(t *testing.T) {
				res := calc.Consolidate(Input{
					Series:          cfg,
					Presence:        model.PresencePresent,
					Correct:         map[model.Discipline]int{model.DisciplineLP: tt.lp, model.DisciplineMAT: tt.mat},
					ProductionScore: tt.production,
				})
				lp := float64(tt.lp) / float64(lpMax) * 10
				mat := float64(tt.mat) / float64(matMax) * 10
				want := (lp + mat) / 2
				if tt.production != nil && *tt.production > 0 {
					want = (lp + mat + *tt.production) / 3
				}
				if res.Average == nil {
					t.Fatal("expected an average")
				}
				if *res.Average != want {
					t.Errorf("expected average %v, got %v", want, *res.Average)
				}
				if res.ScoreCH != nil || res.ScoreCN != nil {
					t.Error("early grades must not score CH or CN")
				}
			})
		}
	}
}

func TestLaterGradeAverage(t *testing.T) {
	calc := New(Policy{}, nil)

	for _, grade := range []string{"6", "7", "8", "9"} {
		cfg := fallbackConfig(t, grade)
		tests := []struct {
			name              string
			lp, ch, mat, cn   int
			productionIgnored *float64
		}{
			{"all zero", 0, 0, 0, 0, nil},
			{"all max", 20, 10, 20, 10, nil},
			{"two at zero", 20, 0, 15, 0, nil},
			{"production never counts", 3, 7, 11, 9, floatPtr(9)},
		}
		for _, tt := range tests {
			t.Run(grade+"/"+tt.name, func(t *testing.T) {
				res := calc.Consolidate(Input{
					Series:   cfg,
					Presence: model.PresencePresent,
					Correct: map[model.Discipline]int{
						model.DisciplineLP: tt.lp, model.DisciplineCH: tt.ch,
						model.DisciplineMAT: tt.mat, model.DisciplineCN: tt.cn,
					},
					ProductionScore: tt.productionIgnored,
				})
				lp := float64(tt.lp) / 20 * 10
				ch := float64(tt.ch) / 10 * 10
				mat := float64(tt.mat) / 20 * 10
				cn := float64(tt.cn) / 10 * 10
				want := (lp + ch + mat + cn) / 4
				if res.Average == nil || *res.Average != want {
					t.Errorf("expected average %v, got %v", want, res.Average)
				}
				if res.LevelOverall != nil || res.LevelLP != nil {
					t.Error("levels are only computed for early grades")
				}
			})
		}
	}
}

func TestProductionWeightBlend(t *testing.T) {
	w := 0.3
	calc := New(Policy{ProductionWeight: w}, nil)
	cfg := fallbackConfig(t, "5")

	res := calc.Consolidate(Input{
		Series:          cfg,
		Presence:        model.PresencePresent,
		Correct:         map[model.Discipline]int{model.DisciplineLP: 14, model.DisciplineMAT: 10},
		ProductionScore: floatPtr(8),
	})
	lp, mat := 10.0, 5.0
	want := (1-w)*((lp+mat)/2) + w*8
	if res.Average == nil || *res.Average != want {
		t.Errorf("expected blended average %v, got %v", want, res.Average)
	}
}

func TestFifthGradeScenario(t *testing.T) {
	calc := New(Policy{}, nil)
	cfg := fallbackConfig(t, "5º Ano")

	res := calc.Consolidate(Input{
		StudentID:       "a",
		Year:            2024,
		Series:          cfg,
		Presence:        model.PresencePresent,
		Correct:         map[model.Discipline]int{model.DisciplineLP: 14, model.DisciplineMAT: 20},
		Answered:        34,
		ProductionScore: floatPtr(8),
	})
	if *res.ScoreLP != 10 || *res.ScoreMAT != 10 {
		t.Errorf("expected LP=10 MAT=10, got LP=%v MAT=%v", *res.ScoreLP, *res.ScoreMAT)
	}
	if got := *res.Average; got != (10.0+10.0+8.0)/3 {
		t.Errorf("expected average 9.33, got %v", got)
	}
	if res.TotalExpected != 34 || res.TotalAnswered != 34 {
		t.Errorf("expected 34/34 answered, got %d/%d", res.TotalAnswered, res.TotalExpected)
	}
	if !res.ConfigFallback {
		t.Error("expected fallback flag")
	}
	if *res.LevelLP != model.LevelN4 || *res.LevelProduction != model.LevelN4 || *res.LevelOverall != model.LevelN4 {
		t.Errorf("expected N4 levels, got %v %v %v", *res.LevelLP, *res.LevelProduction, *res.LevelOverall)
	}
}

func TestAbsentAndNoDataHaveNoScores(t *testing.T) {
	calc := New(Policy{}, nil)
	cfg := fallbackConfig(t, "5")

	for _, p := range []model.Presence{model.PresenceAbsent, model.PresenceNoData} {
		res := calc.Consolidate(Input{
			Series:          cfg,
			Presence:        p,
			Correct:         map[model.Discipline]int{},
			ProductionScore: floatPtr(7),
		})
		if res.Presence != p {
			t.Errorf("expected presence %q, got %q", p, res.Presence)
		}
		if res.ScoreLP != nil || res.ScoreMAT != nil || res.Average != nil || res.ProductionScore != nil {
			t.Errorf("%s: expected null scores", p)
		}
		if res.LevelLP != nil || res.LevelOverall != nil {
			t.Errorf("%s: expected null levels", p)
		}
	}
}

func TestUnknownGradeHasNoAverage(t *testing.T) {
	tests := []struct {
		name       string
		production *float64
	}{
		{"objective only", nil},
		{"with production", floatPtr(7.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(Policy{}, nil).Consolidate(Input{
				Series:          series.Config{},
				Presence:        model.PresencePresent,
				Correct:         map[model.Discipline]int{},
				ProductionScore: tt.production,
			})
			if res.Average != nil {
				t.Errorf("expected no average without a grade layout, got %v", *res.Average)
			}
			if res.ScoreLP != nil || res.LevelOverall != nil {
				t.Error("expected no scores or levels without a grade layout")
			}
		})
	}
}

func TestConfiguredBands(t *testing.T) {
	bands := []model.LevelBand{
		{Grade: "5º", Discipline: model.DisciplineLP, Level: model.LevelN1, MinCorrect: 0, MaxCorrect: 4},
		{Grade: "5º", Discipline: model.DisciplineLP, Level: model.LevelN2, MinCorrect: 5, MaxCorrect: 8},
		{Grade: "5º", Discipline: model.DisciplineLP, Level: model.LevelN3, MinCorrect: 9, MaxCorrect: 11},
		{Grade: "5º", Discipline: model.DisciplineLP, Level: model.LevelN4, MinCorrect: 12, MaxCorrect: 14},
	}
	calc := New(Policy{OverallRule: RuleMajority}, bands)
	cfg := fallbackConfig(t, "5")

	res := calc.Consolidate(Input{
		Series:   cfg,
		Presence: model.PresencePresent,
		// LP 9/14 → band N3 (score 6.43 would also be N3); MAT 4/20 = 2 → N1 by score.
		Correct:         map[model.Discipline]int{model.DisciplineLP: 9, model.DisciplineMAT: 4},
		ProductionScore: floatPtr(6.5),
	})
	if *res.LevelLP != model.LevelN3 {
		t.Errorf("expected LP N3, got %s", *res.LevelLP)
	}
	if *res.LevelMAT != model.LevelN1 {
		t.Errorf("expected MAT N1, got %s", *res.LevelMAT)
	}
	if *res.LevelProduction != model.LevelN3 {
		t.Errorf("expected production N3, got %s", *res.LevelProduction)
	}
	if *res.LevelOverall != model.LevelN3 {
		t.Errorf("expected overall N3 by majority, got %s", *res.LevelOverall)
	}

	res = calc.Consolidate(Input{
		Series:   cfg,
		Presence: model.PresencePresent,
		Correct:  map[model.Discipline]int{model.DisciplineLP: 5, model.DisciplineMAT: 4},
	})
	if *res.LevelLP != model.LevelN2 {
		t.Errorf("expected LP N2 from band, got %s", *res.LevelLP)
	}
}

func TestScoreLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  model.Level
	}{
		{0, model.LevelN1},
		{3.99, model.LevelN1},
		{4, model.LevelN2},
		{5.99, model.LevelN2},
		{6, model.LevelN3},
		{7.99, model.LevelN3},
		{8, model.LevelN4},
		{10, model.LevelN4},
	}
	for _, tt := range tests {
		if got := ScoreLevel(tt.score); got != tt.want {
			t.Errorf("ScoreLevel(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name string
		rule OverallRule
		in   []model.Level
		want model.Level
	}{
		{"mean rounds half up", RuleMean, []model.Level{model.LevelN1, model.LevelN2}, model.LevelN2},
		{"mean of three", RuleMean, []model.Level{model.LevelN1, model.LevelN1, model.LevelN4}, model.LevelN2},
		{"majority", RuleMajority, []model.Level{model.LevelN3, model.LevelN1, model.LevelN3}, model.LevelN3},
		{"majority tie goes lower", RuleMajority, []model.Level{model.LevelN4, model.LevelN2}, model.LevelN2},
		{"single", RuleMajority, []model.Level{model.LevelN4}, model.LevelN4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Combine(tt.rule, tt.in...)
			if !ok || got != tt.want {
				t.Errorf("expected %s, got %s (ok=%v)", tt.want, got, ok)
			}
		})
	}

	if _, ok := Combine(RuleMean); ok {
		t.Error("expected no level from no inputs")
	}
}

func TestParseOverallRule(t *testing.T) {
	if r, err := ParseOverallRule(""); err != nil || r != RuleMean {
		t.Errorf("expected default media, got %q, %v", r, err)
	}
	if r, err := ParseOverallRule("maioria"); err != nil || r != RuleMajority {
		t.Errorf("expected maioria, got %q, %v", r, err)
	}
	if _, err := ParseOverallRule("mode"); err == nil {
		t.Error("expected an error for an unknown rule")
	}
}
