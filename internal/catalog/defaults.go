package catalog

import "github.com/simosh/storefront/internal/domain"

// Значения раздела «О нас», если CMS их не вернула.
const (
	DefaultPhone     = "+998 90 123 45 67"
	DefaultInstagram = "@simosh_uz"
	DefaultTelegram  = "t.me/simosh_uz"
	DefaultAddress   = "Toshkent shahar"
	DefaultCompany   = "Tabiiy shifobaxsh sovunlar ishlab chiqaruvchi Simosh kompaniyasi."
)

// DefaultProducts возвращает встроенный каталог из двух товаров.
func DefaultProducts() []domain.Product {
	return []domain.Product{
		{
			ID: "1",
			Name: domain.MultiLang{
				Uz: "Qora Sedana Sovuni",
				En: "Black Cumin Soap",
				Tr: "Çörek Otu Sabunu",
				Ru: "Мыло с черным тмином",
			},
			Description: domain.MultiLang{
				Uz: "Terining immunitetini oshiradi va mikroblarga qarshi kurashadi. Husnbuzarlarni yoqotishda samarali.",
				En: "Increases skin immunity and fights microbes. Effective in removing acne.",
				Tr: "Cilt bağışıklığını artırır ve mikroplarla savaşır. Akne gidermede etkilidir.",
				Ru: "Повышает иммунитет кожи и борется с микробами. Эффективно в борьбе с акне.",
			},
			Price: 25000,
			Image: "https://picsum.photos/seed/soap1/600/600",
			Benefits: map[domain.Language][]string{
				domain.LanguageUz: {"Antiseptik", "Husnbuzarlarga qarshi"},
				domain.LanguageEn: {"Antiseptic", "Anti-acne"},
				domain.LanguageTr: {"Antiseptik", "Akne karşıtı"},
				domain.LanguageRu: {"Антисептик", "Против акне"},
			},
			Category: domain.CategoryTherapeutic,
		},
		{
			ID: "2",
			Name: domain.MultiLang{
				Uz: "Zaytun Moyli Sovun",
				En: "Olive Oil Soap",
				Tr: "Zeytinyağı Sabunu",
				Ru: "Оливковое мыло",
			},
			Description: domain.MultiLang{
				Uz: "Quruq terini namlaydi va yoshartiradi. Tarkibida E vitamini mavjud.",
				En: "Moisturizes and rejuvenates dry skin. Contains Vitamin E.",
				Tr: "Kuru cildi nemlendirir ve gençleştirir. E vitamini içerir.",
				Ru: "Увлажняет и омолаживает сухую кожу. Содержит витамин Е.",
			},
			Price: 22000,
			Image: "https://picsum.photos/seed/soap2/600/600",
			Benefits: map[domain.Language][]string{
				domain.LanguageUz: {"Namlantiruvchi", "Antioksidant"},
				domain.LanguageEn: {"Moisturizing", "Antioxidant"},
				domain.LanguageTr: {"Nemlendirici", "Antioksidan"},
				domain.LanguageRu: {"Увлажняющее", "Антиоксидант"},
			},
			Category: domain.CategoryNatural,
		},
	}
}

// DefaultAbout возвращает раздел «О нас» по умолчанию.
func DefaultAbout() domain.AboutInfo {
	return domain.AboutInfo{
		Description:   domain.MultiLang{Uz: DefaultCompany},
		OfficeAddress: domain.MultiLang{Uz: DefaultAddress},
		Instagram:     DefaultInstagram,
		Telegram:      DefaultTelegram,
		Phone:         DefaultPhone,
	}
}
