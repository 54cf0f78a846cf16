// Package i18n хранит тексты уведомлений витрины и правила выбора языка.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/simosh/storefront/internal/domain"
)

// Ключи уведомлений.
const (
	KeyRequiredFields       = "required_fields"
	KeyInvalidPhone         = "invalid_phone"
	KeyOrderFailed          = "order_failed"
	KeyOrderAccepted        = "order_accepted"
	KeyOrderAcceptedDetails = "order_accepted_details"
	KeyVerificationRequired = "verification_required"
	KeyUnknownProduct       = "unknown_product"
	KeyCheckoutLocked       = "checkout_locked"
	KeyCartEmpty            = "cart_empty"
)

// Последний уровень fallback, если ключа нет ни в одном каталоге.
var builtin = map[string]string{
	KeyRequiredFields:       "Barcha maydonlarni to'ldiring",
	KeyInvalidPhone:         "Telefon raqami noto'g'ri",
	KeyOrderFailed:          "Xatolik yuz berdi",
	KeyOrderAccepted:        "Buyurtma qabul qilindi!",
	KeyOrderAcceptedDetails: "Tez orada bog'lanamiz.",
	KeyVerificationRequired: "Tasdiqlash talab qilinadi",
	KeyUnknownProduct:       "Mahsulot topilmadi",
	KeyCheckoutLocked:       "Kuting",
	KeyCartEmpty:            "Savat bo'sh",
}

type catalogFile struct {
	Language string            `yaml:"language"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog содержит тексты по языкам.
type Catalog struct {
	messages map[domain.Language]map[string]string
}

//go:embed locales/*.yaml
var embeddedFS embed.FS

var defaultCatalog = mustLoadEmbedded()

func mustLoadEmbedded() *Catalog {
	c, err := LoadFromFS(embeddedFS)
	if err != nil {
		panic(fmt.Sprintf("i18n: load embedded catalogs: %v", err))
	}
	return c
}

// Default возвращает каталог, встроенный в бинарник.
func Default() *Catalog {
	return defaultCatalog
}

// LoadFromFS читает locales/*.yaml из файловой системы.
func LoadFromFS(fsys fs.FS) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	c := &Catalog{messages: make(map[domain.Language]map[string]string, len(paths))}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		lang := domain.Language(strings.TrimSpace(file.Language))
		if !lang.Valid() {
			return nil, fmt.Errorf("catalog %s: unsupported language %q", path, file.Language)
		}
		if _, dup := c.messages[lang]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate language %q", path, lang)
		}
		if file.Messages == nil {
			file.Messages = map[string]string{}
		}
		c.messages[lang] = file.Messages
	}
	return c, nil
}

// Text возвращает текст для выбранного языка, затем для uz, затем встроенный литерал.
// Неизвестный ключ возвращается как есть.
func (c *Catalog) Text(lang domain.Language, key string) string {
	if c != nil {
		if v := strings.TrimSpace(c.messages[lang][key]); v != "" {
			return v
		}
		if v := strings.TrimSpace(c.messages[domain.DefaultLanguage][key]); v != "" {
			return v
		}
	}
	if v, ok := builtin[key]; ok {
		return v
	}
	return key
}

var (
	supportedTags = []language.Tag{language.Uzbek, language.English, language.Turkish, language.Russian}
	supportedLang = []domain.Language{domain.LanguageUz, domain.LanguageEn, domain.LanguageTr, domain.LanguageRu}
	matcher       = language.NewMatcher(supportedTags)
)

// ParseLanguage сопоставляет BCP 47 тег или список Accept-Language с языком витрины.
// Нераспознанное значение даёт базовый язык и false.
func ParseLanguage(value string) (domain.Language, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.DefaultLanguage, false
	}
	if l := domain.Language(strings.ToLower(value)); l.Valid() {
		return l, true
	}
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return domain.DefaultLanguage, false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return domain.DefaultLanguage, false
	}
	return supportedLang[idx], true
}

// Tag возвращает языковой тег для языка витрины.
func Tag(lang domain.Language) language.Tag {
	for i, l := range supportedLang {
		if l == lang {
			return supportedTags[i]
		}
	}
	return language.Uzbek
}

// FormatAmount форматирует сумму с разделителями разрядов по правилам языка.
func FormatAmount(lang domain.Language, amount int64) string {
	return message.NewPrinter(Tag(lang)).Sprintf("%d", amount)
}
