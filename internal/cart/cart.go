// Package cart содержит корзину покупателя и потокобезопасное хранилище для неё.
package cart

import "github.com/simosh/storefront/internal/domain"

// Line — строка корзины: товар и количество (всегда >= 1).
type Line struct {
	Product  domain.Product
	Quantity int
}

// Subtotal возвращает стоимость строки.
func (l Line) Subtotal() int64 {
	return l.Product.Price * int64(l.Quantity)
}

// Cart — упорядоченный список строк. Операции возвращают новое значение и не меняют исходное.
type Cart struct {
	lines []Line
}

func (c Cart) index(productID string) int {
	for i, l := range c.lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c Cart) clone() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// AddOne добавляет единицу товара. Новый товар попадает в конец списка.
func (c Cart) AddOne(product domain.Product) Cart {
	lines := c.clone()
	if i := c.index(product.ID); i >= 0 {
		lines[i].Quantity++
		return Cart{lines: lines}
	}
	return Cart{lines: append(lines, Line{Product: product, Quantity: 1})}
}

// RemoveOne уменьшает количество на единицу; строка с количеством 1 удаляется.
func (c Cart) RemoveOne(productID string) Cart {
	i := c.index(productID)
	if i < 0 {
		return c
	}
	if c.lines[i].Quantity > 1 {
		lines := c.clone()
		lines[i].Quantity--
		return Cart{lines: lines}
	}
	return c.RemoveAll(productID)
}

// RemoveAll удаляет строку товара целиком.
func (c Cart) RemoveAll(productID string) Cart {
	i := c.index(productID)
	if i < 0 {
		return c
	}
	lines := make([]Line, 0, len(c.lines)-1)
	lines = append(lines, c.lines[:i]...)
	lines = append(lines, c.lines[i+1:]...)
	return Cart{lines: lines}
}

// Clear возвращает пустую корзину.
func (c Cart) Clear() Cart {
	return Cart{}
}

// Total возвращает сумму price*quantity по всем строкам.
func (c Cart) Total() int64 {
	var total int64
	for _, l := range c.lines {
		total += l.Subtotal()
	}
	return total
}

// Count возвращает число различных товаров в корзине.
func (c Cart) Count() int {
	return len(c.lines)
}

// TotalQuantity возвращает сумму количеств по всем строкам.
func (c Cart) TotalQuantity() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Quantity возвращает количество товара в корзине (0, если его нет).
func (c Cart) Quantity(productID string) int {
	if i := c.index(productID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

// Lines возвращает копию строк корзины.
func (c Cart) Lines() []Line {
	return c.clone()
}

// IsEmpty сообщает, пуста ли корзина.
func (c Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// OrderItems возвращает позиции заказа в порядке строк корзины.
func (c Cart) OrderItems() []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, domain.OrderItem{ProductID: l.Product.ID, Quantity: l.Quantity})
	}
	return items
}

// NotificationLines возвращает строки корзины для уведомления операторам.
func (c Cart) NotificationLines() []domain.NotificationLine {
	out := make([]domain.NotificationLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, domain.NotificationLine{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			Price:     l.Product.Price,
			Quantity:  l.Quantity,
		})
	}
	return out
}
