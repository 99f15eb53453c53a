package normalize

import "github.com/avalia-edu/avalia/internal/model"

// presenceRule describes one presence-column convention. Tokens are compared after Fold;
// any non-empty token outside the absent set means present.
type presenceRule struct {
	field  Field
	absent map[string]bool
}

// presenceRules are tried in order; the first column holding a token decides.
var presenceRules = []presenceRule{
	{FieldPresencePF, tokens("F", "FALTA", "FALTOU", "AUSENTE")},
	{FieldAbsence, tokens("F", "X", "FALTOU", "AUSENTE", "SIM", "1", "S")},
	{FieldPresence, tokens("F", "N", "NAO", "0", "FALTOU", "AUSENTE", "AUSENCIA")},
}

func tokens(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// resolvePresence returns the presence read from the presence columns and whether any
// column held a token. Without a token the caller decides from the answers.
func (n *Normalizer) resolvePresence(row []string) (model.Presence, Field, bool) {
	for _, rule := range presenceRules {
		token := Fold(n.cell(row, rule.field))
		if token == "" {
			continue
		}
		if rule.absent[token] {
			return model.PresenceAbsent, rule.field, true
		}
		return model.PresencePresent, rule.field, true
	}
	return "", "", false
}
