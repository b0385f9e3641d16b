package middleware

import (
	"net/http"

	"github.com/sandeepkv93/otp-account-service/internal/http/response"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
)

// DetectLanguage matches Accept-Language against the loaded catalogs and
// stores the result on the request context.
func DetectLanguage(dict *i18n.Dictionary) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := dict.Match(r.Header.Get("Accept-Language"))
			w.Header().Set("Content-Language", tag.String())
			next.ServeHTTP(w, r.WithContext(i18n.WithLanguage(r.Context(), tag)))
		})
	}
}

// writeLocalizedError renders key in the request language. A nil dictionary
// writes the key itself.
func writeLocalizedError(w http.ResponseWriter, r *http.Request, dict *i18n.Dictionary, status int, code, key string, args map[string]any) {
	msg := key
	if dict != nil {
		msg = dict.Message(i18n.LanguageFromContext(r.Context()), key, args)
	}
	response.Error(w, r, status, code, msg, nil)
}
