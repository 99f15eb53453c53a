package series

import (
	"strconv"

	"github.com/avalia-edu/avalia/internal/model"
)

// Lookup returns the configuration range that contains question.
func Lookup(cfg Config, question int) (model.SeriesDisciplineConfig, bool) {
	for _, r := range cfg.Ranges {
		if question >= r.QuestionStart && question <= r.QuestionEnd {
			return r, true
		}
	}
	return model.SeriesDisciplineConfig{}, false
}

// MapQuestion returns the discipline a question number belongs to, or model.Unmapped.
func MapQuestion(cfg Config, question int) model.Discipline {
	if r, ok := Lookup(cfg, question); ok {
		return r.Discipline
	}
	return model.Unmapped
}

func itoa(n int) string { return strconv.Itoa(n) }
