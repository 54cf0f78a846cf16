package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validSubmission() OrderSubmission {
	return OrderSubmission{
		Items:     []OrderItem{{ProductID: "1", Quantity: 2}},
		Status:    OrderStatusInProgress,
		FirstName: "Ali",
		LastName:  "Valiyev",
		Phone:     "+998901234567",
	}
}

func TestOrderSubmissionValidate(t *testing.T) {
	require.Empty(t, validSubmission().Validate())

	s := validSubmission()
	s.FirstName = "  "
	require.ErrorIs(t, s.Validate()[0], ErrCustomerNameRequired)

	s = validSubmission()
	s.Items = nil
	require.Contains(t, s.Validate(), ErrItemsRequired)

	s = validSubmission()
	s.Items = []OrderItem{{ProductID: "", Quantity: 0}}
	errs := s.Validate()
	require.Contains(t, errs, ErrProductIDRequired)
	require.Contains(t, errs, ErrItemQtyInvalid)

	s = validSubmission()
	s.Status = "DONE"
	require.Contains(t, s.Validate(), ErrOrderStatusInvalid)
}

func TestMultiLangResolve(t *testing.T) {
	m := MultiLang{Uz: "Sovun", En: "Soap"}
	require.Equal(t, "Soap", m.Resolve(LanguageEn, "x"))
	require.Equal(t, "Sovun", m.Resolve(LanguageRu, "x"))
	require.Equal(t, "x", MultiLang{}.Resolve(LanguageTr, "x"))
}

func TestProductBenefitsFallback(t *testing.T) {
	p := Product{Benefits: map[Language][]string{LanguageUz: {"Tabiiy"}}}
	require.Equal(t, []string{"Tabiiy"}, p.BenefitsFor(LanguageEn))

	got := p.BenefitsFor(LanguageUz)
	got[0] = "changed"
	require.Equal(t, "Tabiiy", p.Benefits[LanguageUz][0])
}

func TestNotificationLineSubtotal(t *testing.T) {
	require.Equal(t, int64(75000), NotificationLine{Price: 25000, Quantity: 3}.Subtotal())
}
