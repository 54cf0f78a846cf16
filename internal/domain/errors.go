package domain

import "errors"

var (
	// Ошибка отсутствующего имени или фамилии покупателя.
	ErrCustomerNameRequired = errors.New("first and last name are required")
	// Ошибка отсутствующего телефона.
	ErrPhoneRequired = errors.New("phone is required")
	// Ошибка, если телефон не соответствует формату выбранной страны.
	ErrPhoneInvalid = errors.New("phone is invalid for country code")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product id is required")
	// Ошибка неподдерживаемого статуса заказа.
	ErrOrderStatusInvalid = errors.New("order status must be IN_PROGRESS")
	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// Ошибка повторной записи заказа с тем же токеном.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderRejected возвращается, если бэкенд окончательно отклонил заказ (4xx или невалидная заявка).
	ErrOrderRejected = errors.New("order rejected by backend")
	// Ошибка, при которой исход заявки неизвестен: 5xx, таймаут или обрыв соединения.
	// Такую заявку можно повторить с тем же токеном.
	ErrBackendUnavailable = errors.New("order backend unavailable")
	// Ошибка, если хотя бы один получатель не принял уведомление.
	ErrNotificationFailed = errors.New("order notification failed")
	// Ошибка отсутствующей настройки клиента.
	ErrPreferenceNotFound = errors.New("preference not found")
	// Ошибка, если событие outbox с таким id не найдено или уже закрыто.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	// ErrPublisherClosed возвращается nil-паблишером или после Close.
	ErrPublisherClosed = errors.New("outbox publisher is not available")
	// Ошибка повторной регистрации токена попытки.
	ErrAttemptExists = errors.New("submission attempt already exists")
	// Ошибка, если под тем же токеном пришла другая заявка.
	ErrAttemptFingerprintMismatch = errors.New("submission token reused with a different order")
	ErrAttemptTokenRequired       = errors.New("submission token is required")
	ErrAttemptFingerprintRequired = errors.New("submission fingerprint is required")
	ErrAttemptNotFound            = errors.New("submission attempt not found")
	// Ошибка закрытия попытки неитоговым статусом.
	ErrAttemptStatusInvalid = errors.New("submission attempt can only be resolved to a final status")
	// ErrSubmissionInFlight — заявка с этим токеном ещё обрабатывается.
	ErrSubmissionInFlight = errors.New("submission with this token is still in flight")
)

// IsAttemptConflict проверяет, связана ли ошибка с повторным использованием токена попытки.
func IsAttemptConflict(err error) bool {
	return errors.Is(err, ErrAttemptExists) || errors.Is(err, ErrAttemptFingerprintMismatch)
}
