package domain

// Ключи настроек клиента.
const (
	PreferenceVerified = "verified"
	PreferenceTheme    = "theme"
	// PreferenceLanguage хранит выбранный язык интерфейса.
	PreferenceLanguage = "language"
)

// PreferenceVerifiedValue — значение флага подтверждённого доступа.
const PreferenceVerifiedValue = "true"

// Theme — цветовая схема интерфейса.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid проверяет, что тема поддерживается.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}
