package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware injects a localizer into every request context. The language comes from
// the Accept-Language header when it matches a locale file, otherwise from lang.
func Middleware(lang string) func(http.Handler) http.Handler {
	tags := Languages()
	matcher := language.NewMatcher(tags)
	fallback := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				if prefs, _, err := language.ParseAcceptLanguage(accept); err == nil && len(prefs) > 0 {
					if _, idx, conf := matcher.Match(prefs...); conf != language.No {
						loc = NewLocalizer(tags[idx].String(), lang)
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}
