package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/simosh/storefront/internal/domain"
)

func TestDefaultCatalogHasAllKeys(t *testing.T) {
	c := Default()
	for _, lang := range domain.Languages() {
		for key := range builtin {
			require.NotEmpty(t, c.messages[lang][key], "lang=%s key=%s", lang, key)
		}
	}
}

func TestTextFallbackChain(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/uz.yaml": {Data: []byte("language: uz\nmessages:\n  order_failed: \"Uz xato\"\n")},
		"locales/en.yaml": {Data: []byte("language: en\nmessages:\n  order_failed: \"En error\"\n  invalid_phone: \"  \"\n")},
	}
	c, err := LoadFromFS(fsys)
	require.NoError(t, err)

	require.Equal(t, "En error", c.Text(domain.LanguageEn, KeyOrderFailed))
	require.Equal(t, "Uz xato", c.Text(domain.LanguageRu, KeyOrderFailed))
	require.Equal(t, builtin[KeyInvalidPhone], c.Text(domain.LanguageEn, KeyInvalidPhone))
	require.Equal(t, "no_such_key", c.Text(domain.LanguageEn, "no_such_key"))
}

func TestTextOnNilCatalog(t *testing.T) {
	var c *Catalog
	require.Equal(t, builtin[KeyOrderAccepted], c.Text(domain.LanguageEn, KeyOrderAccepted))
}

func TestLoadFromFSErrors(t *testing.T) {
	_, err := LoadFromFS(fstest.MapFS{})
	require.Error(t, err)

	_, err = LoadFromFS(fstest.MapFS{
		"locales/de.yaml": {Data: []byte("language: de\nmessages: {}\n")},
	})
	require.ErrorContains(t, err, "unsupported language")

	_, err = LoadFromFS(fstest.MapFS{
		"locales/a.yaml": {Data: []byte("language: en\n")},
		"locales/b.yaml": {Data: []byte("language: en\n")},
	})
	require.ErrorContains(t, err, "duplicate language")

	_, err = LoadFromFS(fstest.MapFS{
		"locales/en.yaml": {Data: []byte("language: [\n")},
	})
	require.ErrorContains(t, err, "parse catalog")
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in     string
		want   domain.Language
		wantOK bool
	}{
		{in: "uz", want: domain.LanguageUz, wantOK: true},
		{in: "EN", want: domain.LanguageEn, wantOK: true},
		{in: "ru-RU", want: domain.LanguageRu, wantOK: true},
		{in: "tr-TR,tr;q=0.9,en;q=0.8", want: domain.LanguageTr, wantOK: true},
		{in: "en-US", want: domain.LanguageEn, wantOK: true},
		{in: "", want: domain.LanguageUz, wantOK: false},
		{in: "!!!", want: domain.LanguageUz, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLanguage(tt.in)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "50,000", FormatAmount(domain.LanguageEn, 50000))
	require.Equal(t, "999", FormatAmount(domain.LanguageEn, 999))
}
