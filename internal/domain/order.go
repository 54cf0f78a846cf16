package domain

import (
	"strings"
	"time"
)

// OrderStatus описывает статус заказа, который передаётся в систему учёта.
type OrderStatus string

// OrderStatusInProgress — единственный статус, с которым витрина создаёт заказ.
const OrderStatusInProgress OrderStatus = "IN_PROGRESS"

// OrderItem — позиция заказа в том виде, в каком её принимает бэкенд.
type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderSubmission — значение, которое формируется один раз на попытку оформления.
type OrderSubmission struct {
	Items       []OrderItem `json:"items"`
	Status      OrderStatus `json:"status"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Phone       string      `json:"phone"`
	Description string      `json:"description"`

	// Token — ключ идемпотентности попытки, в тело запроса не попадает.
	Token string `json:"-"`
}

// Validate проверяет базовые инварианты заявки и возвращает список замечаний.
func (s OrderSubmission) Validate() []error {
	var errs []error

	if strings.TrimSpace(s.FirstName) == "" || strings.TrimSpace(s.LastName) == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	if strings.TrimSpace(s.Phone) == "" {
		errs = append(errs, ErrPhoneRequired)
	}
	if len(s.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range s.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}
	if s.Status != OrderStatusInProgress {
		errs = append(errs, ErrOrderStatusInvalid)
	}

	return errs
}

// Order — заказ, сохранённый локальным журналом заказов.
type Order struct {
	ID         string
	Token      string
	Submission OrderSubmission
	CreatedAt  time.Time
}

// NotificationLine — строка корзины в уведомлении операторам.
type NotificationLine struct {
	ProductID string
	Name      MultiLang
	Price     int64
	Quantity  int
}

// Subtotal возвращает стоимость строки.
func (l NotificationLine) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

// Customer — данные покупателя для уведомления.
type Customer struct {
	FirstName   string
	LastName    string
	Phone       string
	Description string
}

// OrderNotification — сводка заказа для релея уведомлений.
type OrderNotification struct {
	Reference string
	Customer  Customer
	Lines     []NotificationLine
	Total     int64
	Language  Language
	PlacedAt  time.Time
}
