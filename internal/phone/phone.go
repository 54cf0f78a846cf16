// Package phone валидирует и форматирует номера телефонов для поддерживаемых стран.
package phone

import "strings"

// Country описывает формат номера для кода страны.
type Country struct {
	Code    string `json:"code"`
	ISO     string `json:"iso"`
	Digits  int    `json:"digits"`
	Groups  []int  `json:"groups"`
	Example string `json:"example"`
}

// DefaultCode — код страны, выбранный по умолчанию.
const DefaultCode = "+998"

var countries = []Country{
	{Code: "+998", ISO: "UZ", Digits: 9, Groups: []int{2, 3, 2, 2}, Example: "90 123 45 67"},
	{Code: "+90", ISO: "TR", Digits: 10, Groups: []int{3, 3, 2, 2}, Example: "505 123 45 67"},
}

// Countries возвращает поддерживаемые страны в порядке отображения в селекторе.
func Countries() []Country {
	out := make([]Country, len(countries))
	for i, c := range countries {
		c.Groups = append([]int(nil), c.Groups...)
		out[i] = c
	}
	return out
}

// LookupCountry ищет страну по коду.
func LookupCountry(code string) (Country, bool) {
	for _, c := range countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

// DigitsOnly удаляет из строки всё, кроме ASCII-цифр.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// IsValidPhoneParts проверяет, что номер содержит ровно столько цифр, сколько требует код.
func IsValidPhoneParts(code, raw string) bool {
	c, ok := LookupCountry(code)
	if !ok {
		return false
	}
	return len(DigitsOnly(raw)) == c.Digits
}

// FormatDisplayPhone приводит ввод к виду "90 123 45 67". Частичный ввод допустим.
func FormatDisplayPhone(code, raw string) string {
	digits := DigitsOnly(raw)
	c, ok := LookupCountry(code)
	if !ok {
		return digits
	}
	if len(digits) > c.Digits {
		digits = digits[:c.Digits]
	}
	return group(digits, c.Groups)
}

func group(digits string, groups []int) string {
	parts := make([]string, 0, len(groups))
	rest := digits
	for _, size := range groups {
		if rest == "" {
			break
		}
		if size > len(rest) {
			size = len(rest)
		}
		parts = append(parts, rest[:size])
		rest = rest[size:]
	}
	return strings.Join(parts, " ")
}

// FormatFullPhone возвращает канонический номер без разделителей: "+998901234567".
func FormatFullPhone(code, display string) string {
	digits := DigitsOnly(display)
	if digits == "" {
		return ""
	}
	return code + digits
}

// FormatPrettyPhone возвращает номер для уведомлений: "+998 90 123 45 67".
func FormatPrettyPhone(code, display string) string {
	formatted := FormatDisplayPhone(code, display)
	if formatted == "" {
		return ""
	}
	return code + " " + formatted
}

// IsValidFullPhone проверяет канонический номер: префикс +998 или +90 и 12 цифр.
func IsValidFullPhone(full string) bool {
	if !strings.HasPrefix(full, "+998") && !strings.HasPrefix(full, "+90") {
		return false
	}
	return len(DigitsOnly(full)) == 12
}

// SplitFullPhone разбирает канонический номер на код страны и цифры абонента.
func SplitFullPhone(full string) (code, digits string, ok bool) {
	// +998 проверяется раньше +90.
	for _, c := range countries {
		if strings.HasPrefix(full, c.Code) {
			d := DigitsOnly(strings.TrimPrefix(full, c.Code))
			if len(d) == c.Digits {
				return c.Code, d, true
			}
		}
	}
	return "", "", false
}
