package catalog

import (
	"strings"

	"github.com/simosh/storefront/internal/domain"
)

// Snapshot — контент витрины, собранный за одну загрузку.
type Snapshot struct {
	logo     string
	about    domain.AboutInfo
	products []domain.Product
	byID     map[string]int
	// Fallback отмечает источники, вместо которых подставлены значения по умолчанию.
	Fallback Fallbacks
	// Stale отмечает источники, для которых оставлены данные прошлой загрузки.
	Stale Fallbacks
}

// Fallbacks перечисляет, какие части контента взяты из встроенных значений.
type Fallbacks struct {
	Logo     bool `json:"logo"`
	About    bool `json:"about"`
	Products bool `json:"products"`
}

// NewSnapshot собирает снимок; пустой список товаров заменяется встроенным.
func NewSnapshot(logo string, about *domain.AboutInfo, products []domain.Product) *Snapshot {
	s := &Snapshot{logo: strings.TrimSpace(logo)}
	s.Fallback.Logo = s.logo == ""

	if about != nil {
		s.about = *about
	} else {
		s.about = DefaultAbout()
		s.Fallback.About = true
	}

	if len(products) == 0 {
		products = DefaultProducts()
		s.Fallback.Products = true
	}
	s.products = products
	s.byID = make(map[string]int, len(products))
	for i, p := range products {
		if _, dup := s.byID[p.ID]; !dup {
			s.byID[p.ID] = i
		}
	}
	return s
}

// Logo возвращает URL логотипа и false, если нужно показать заглушку.
func (s *Snapshot) Logo() (string, bool) {
	return s.logo, s.logo != ""
}

// Products возвращает копию списка товаров.
func (s *Snapshot) Products() []domain.Product {
	return append([]domain.Product(nil), s.products...)
}

// Product ищет товар по идентификатору.
func (s *Snapshot) Product(id string) (domain.Product, error) {
	i, ok := s.byID[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return s.products[i], nil
}

// About возвращает сырое содержимое раздела «О нас».
func (s *Snapshot) About() domain.AboutInfo {
	return s.about
}

// LocalizedAbout — раздел «О нас» на выбранном языке.
type LocalizedAbout struct {
	Description string `json:"description"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Instagram   string `json:"instagram"`
	Telegram    string `json:"telegram"`
}

// ResolveAbout разрешает поля: выбранный язык → uz → встроенное значение.
func (s *Snapshot) ResolveAbout(lang domain.Language) LocalizedAbout {
	return LocalizedAbout{
		Description: s.about.Description.Resolve(lang, DefaultCompany),
		Address:     s.about.OfficeAddress.Resolve(lang, DefaultAddress),
		Phone:       orDefault(s.about.Phone, DefaultPhone),
		Instagram:   orDefault(s.about.Instagram, DefaultInstagram),
		Telegram:    orDefault(s.about.Telegram, DefaultTelegram),
	}
}

// LocalizedProduct — карточка товара на выбранном языке.
type LocalizedProduct struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Price       int64                  `json:"price"`
	Image       string                 `json:"image"`
	Benefits    []string               `json:"benefits"`
	Category    domain.ProductCategory `json:"category"`
}

// ResolveProduct возвращает локализованную карточку товара.
func ResolveProduct(p domain.Product, lang domain.Language) LocalizedProduct {
	return LocalizedProduct{
		ID:          p.ID,
		Name:        p.Name.Resolve(lang, p.ID),
		Description: p.Description.Resolve(lang, ""),
		Price:       p.Price,
		Image:       p.Image,
		Benefits:    p.BenefitsFor(lang),
		Category:    p.Category,
	}
}

// ResolveProducts возвращает все товары на выбранном языке.
func (s *Snapshot) ResolveProducts(lang domain.Language) []LocalizedProduct {
	out := make([]LocalizedProduct, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, ResolveProduct(p, lang))
	}
	return out
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
