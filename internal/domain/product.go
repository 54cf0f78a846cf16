package domain

import "strings"

// Language — язык интерфейса витрины.
type Language string

const (
	LanguageUz Language = "uz"
	LanguageEn Language = "en"
	LanguageTr Language = "tr"
	LanguageRu Language = "ru"
)

// DefaultLanguage используется как базовый язык в цепочке fallback.
const DefaultLanguage = LanguageUz

// Languages возвращает поддерживаемые языки в порядке отображения.
func Languages() []Language {
	return []Language{LanguageUz, LanguageEn, LanguageTr, LanguageRu}
}

// Valid проверяет, что язык относится к поддерживаемым.
func (l Language) Valid() bool {
	switch l {
	case LanguageUz, LanguageEn, LanguageTr, LanguageRu:
		return true
	default:
		return false
	}
}

// MultiLang хранит строку на всех языках витрины.
type MultiLang struct {
	Uz string `json:"uz"`
	En string `json:"en"`
	Tr string `json:"tr"`
	Ru string `json:"ru"`
}

// Get возвращает значение для языка без fallback.
func (m MultiLang) Get(lang Language) string {
	switch lang {
	case LanguageUz:
		return m.Uz
	case LanguageEn:
		return m.En
	case LanguageTr:
		return m.Tr
	case LanguageRu:
		return m.Ru
	default:
		return ""
	}
}

// Resolve возвращает значение для lang, затем для базового языка, затем fallback.
func (m MultiLang) Resolve(lang Language, fallback string) string {
	if v := strings.TrimSpace(m.Get(lang)); v != "" {
		return v
	}
	if v := strings.TrimSpace(m.Get(DefaultLanguage)); v != "" {
		return v
	}
	return fallback
}

// ProductCategory — категория товара в каталоге.
type ProductCategory string

const (
	CategoryNatural     ProductCategory = "natural"
	CategoryTherapeutic ProductCategory = "therapeutic"
	CategoryBeauty      ProductCategory = "beauty"
)

// Product — неизменяемая карточка товара из каталога.
type Product struct {
	ID          string                `json:"id"`
	Name        MultiLang             `json:"name"`
	Description MultiLang             `json:"description"`
	// Price — цена за единицу в UZS, без дробных единиц.
	Price    int64                 `json:"price"`
	Image    string                `json:"image"`
	Benefits map[Language][]string `json:"benefits"`
	Category ProductCategory       `json:"category"`
}

// BenefitsFor возвращает теги преимуществ на языке lang с fallback на базовый язык.
func (p Product) BenefitsFor(lang Language) []string {
	if tags := p.Benefits[lang]; len(tags) > 0 {
		return append([]string(nil), tags...)
	}
	return append([]string(nil), p.Benefits[DefaultLanguage]...)
}

// AboutInfo — контент раздела «О нас», приходящий из CMS. Любое поле может отсутствовать.
type AboutInfo struct {
	Description   MultiLang `json:"description"`
	OfficeAddress MultiLang `json:"officeAddress"`
	Instagram     string    `json:"instagram,omitempty"`
	Telegram      string    `json:"telegram,omitempty"`
	Phone         string    `json:"phone,omitempty"`
}
