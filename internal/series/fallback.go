package series

import "github.com/avalia-edu/avalia/internal/model"

// fallbackRanges returns the built-in layout used when a grade has no configuration rows.
func fallbackRanges(number int) []model.SeriesDisciplineConfig {
	switch {
	case number <= 0:
		return nil
	case number <= 3:
		return early(number,
			span(model.DisciplineLP, 1, 14),
			span(model.DisciplineMAT, 15, 28))
	case number <= 5:
		return early(number,
			span(model.DisciplineLP, 1, 14),
			span(model.DisciplineMAT, 15, 34))
	default:
		rows := []model.SeriesDisciplineConfig{
			span(model.DisciplineLP, 1, 20),
			span(model.DisciplineCH, 21, 30),
			span(model.DisciplineMAT, 31, 50),
			span(model.DisciplineCN, 51, 60),
		}
		for i := range rows {
			rows[i].Grade = itoa(number)
			rows[i].CountsLP = true
			rows[i].CountsCH = true
			rows[i].CountsMAT = true
			rows[i].CountsCN = true
		}
		return rows
	}
}

func early(number int, rows ...model.SeriesDisciplineConfig) []model.SeriesDisciplineConfig {
	for i := range rows {
		rows[i].Grade = itoa(number)
		rows[i].CountsLP = true
		rows[i].CountsMAT = true
		rows[i].CountsProduction = true
	}
	return rows
}

func span(d model.Discipline, start, end int) model.SeriesDisciplineConfig {
	return model.SeriesDisciplineConfig{
		Discipline:    d,
		QuestionStart: start,
		QuestionEnd:   end,
		QuestionCount: end - start + 1,
		PointValue:    1,
	}
}
