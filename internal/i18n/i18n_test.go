package i18n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoadEmbeddedCatalogs(t *testing.T) {
	d, err := Load("en")
	require.NoError(t, err)

	assert.Equal(t, language.English, d.Default())
	assert.Len(t, d.Supported(), 2)
	assert.Equal(t, "Logged out successfully.", d.Message(language.English, "logout_success", nil))
	assert.Equal(t, "Sesión cerrada correctamente.", d.Message(language.Spanish, "logout_success", nil))
}

func TestMatchAcceptLanguage(t *testing.T) {
	d, err := Load("en")
	require.NoError(t, err)

	cases := []struct {
		header string
		want   language.Tag
	}{
		{"", language.English},
		{"es", language.Spanish},
		{"es-MX,es;q=0.9,en;q=0.8", language.Spanish},
		{"fr-FR,fr;q=0.9", language.English},
		{"de;q=0.5, es;q=0.7", language.Spanish},
		{"not a header ;;;", language.English},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			assert.Equal(t, tc.want, d.Match(tc.header))
		})
	}
}

func TestMessagePlaceholdersAndFallbacks(t *testing.T) {
	d, err := NewDictionary("en", map[string]map[string]string{
		"en": {"account_deleted": "Restore within {days} days.", "only_en": "english only"},
		"es": {"account_deleted": "Restaura en {days} días."},
	})
	require.NoError(t, err)

	assert.Equal(t, "Restore within 7 days.", d.Message(language.English, "account_deleted", map[string]any{"days": 7}))
	assert.Equal(t, "Restaura en 7 días.", d.Message(language.Spanish, "account_deleted", map[string]any{"days": 7}))
	assert.Equal(t, "english only", d.Message(language.Spanish, "only_en", nil))
	assert.Equal(t, "missing_key", d.Message(language.Spanish, "missing_key", nil))
	assert.Equal(t, "english only", d.Message(language.Und, "only_en", nil))
}

func TestNewDictionaryRejectsUnknownDefault(t *testing.T) {
	_, err := NewDictionary("fr", map[string]map[string]string{"en": {"k": "v"}})
	require.ErrorIs(t, err, ErrUnknownLocale)
}

func TestLanguageContextRoundTrip(t *testing.T) {
	assert.Equal(t, language.Und, LanguageFromContext(context.Background()))
	ctx := WithLanguage(context.Background(), language.Spanish)
	assert.Equal(t, language.Spanish, LanguageFromContext(ctx))
}
