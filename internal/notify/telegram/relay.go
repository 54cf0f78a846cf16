// Package telegram отправляет сводку заказа операторам через Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/i18n"
)

const (
	// DefaultAPIURL — адрес Telegram Bot API.
	DefaultAPIURL   = "https://api.telegram.org"
	defaultTimeout  = 10 * time.Second
	defaultTimezone = "Asia/Tashkent"
	dateLayout      = "02.01.2006, 15:04:05"

	maxConcurrentSends = 4
)

// ErrNotConfigured — не задан токен бота или список получателей.
var ErrNotConfigured = errors.New("telegram relay is not configured")

// Config задаёт параметры релея.
type Config struct {
	APIURL   string
	BotToken string
	ChatIDs  []string
	// OrderAdminURL — если задан, к сообщению добавляется кнопка со ссылкой на заказ.
	OrderAdminURL string
}

// Relay рассылает уведомление всем получателям параллельно.
type Relay struct {
	cfg        Config
	httpClient *http.Client
	logger     *log.Entry
	location   *time.Location
}

// Option настраивает Relay.
type Option func(*Relay)

// WithHTTPClient задаёт http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLocation задаёт часовой пояс для даты в сообщении.
func WithLocation(loc *time.Location) Option {
	return func(r *Relay) {
		if loc != nil {
			r.location = loc
		}
	}
}

// NewRelay создаёт релей.
func NewRelay(cfg Config, options ...Option) *Relay {
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}

	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		loc = time.UTC
	}

	r := &Relay{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log.WithField("component", "telegram-relay"),
		location:   loc,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

var _ domain.OrderNotifier = (*Relay)(nil)

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      string       `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NotifyOrder отправляет сообщение каждому получателю. Ошибка возвращается,
// если хотя бы один получатель не принял сообщение.
func (r *Relay) NotifyOrder(ctx context.Context, n domain.OrderNotification) error {
	if r.cfg.BotToken == "" || len(r.cfg.ChatIDs) == 0 {
		return ErrNotConfigured
	}

	text := r.Render(n)
	markup := r.markup(n.Reference)

	// Wait отдаёт первую ошибку; errs собирает отказы всех получателей.
	errs := make([]error, len(r.cfg.ChatIDs))
	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)
	for i, chatID := range r.cfg.ChatIDs {
		g.Go(func() error {
			errs[i] = r.send(ctx, sendMessageRequest{
				ChatID:      chatID,
				Text:        text,
				ParseMode:   "HTML",
				ReplyMarkup: markup,
			})
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotificationFailed, errors.Join(errs...))
	}

	r.logger.WithFields(log.Fields{
		"reference":  n.Reference,
		"recipients": len(r.cfg.ChatIDs),
	}).Info("order notification delivered")
	return nil
}

func (r *Relay) markup(reference string) *replyMarkup {
	if r.cfg.OrderAdminURL == "" || reference == "" {
		return nil
	}
	link, err := url.Parse(r.cfg.OrderAdminURL)
	if err != nil {
		r.logger.WithError(err).Warn("invalid order admin url, skipping button")
		return nil
	}
	q := link.Query()
	q.Set("order", reference)
	link.RawQuery = q.Encode()

	return &replyMarkup{InlineKeyboard: [][]inlineButton{{
		{Text: "🔗 Buyurtmani ochish", URL: link.String()},
	}}}
}

func (r *Relay) send(ctx context.Context, msg sendMessageRequest) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chat %s: marshal: %w", msg.ChatID, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", r.cfg.APIURL, r.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chat %s: build request: %w", msg.ChatID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		// Ошибка транспорта содержит URL с токеном бота.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("chat %s: send: %w", msg.ChatID, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(data, &out)

	if resp.StatusCode != http.StatusOK || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("chat %s: status %d: %s", msg.ChatID, resp.StatusCode, desc)
	}
	return nil
}

// Render формирует HTML-текст уведомления.
func (r *Relay) Render(n domain.OrderNotification) string {
	placed := n.PlacedAt
	if placed.IsZero() {
		placed = time.Now()
	}
	lang := n.Language
	if !lang.Valid() {
		lang = domain.DefaultLanguage
	}

	var b strings.Builder
	b.WriteString("🆕 <b>YANGI BUYURTMA!</b>\n")
	fmt.Fprintf(&b, "📅 Sana: %s\n\n", placed.In(r.location).Format(dateLayout))

	b.WriteString("👤 <b>MIJOZ:</b>\n")
	fmt.Fprintf(&b, "- Ism: %s\n", html.EscapeString(n.Customer.FirstName))
	fmt.Fprintf(&b, "- Familiya: %s\n", html.EscapeString(n.Customer.LastName))
	fmt.Fprintf(&b, "- Tel: %s\n", html.EscapeString(n.Customer.Phone))
	if n.Customer.Description != "" {
		fmt.Fprintf(&b, "- Izoh: %s\n", html.EscapeString(n.Customer.Description))
	}

	b.WriteString("\n🛒 <b>MAHSULOTLAR:</b>\n")
	for _, line := range n.Lines {
		fmt.Fprintf(&b, "📦 %s x %d - %s UZS\n",
			html.EscapeString(line.Name.Resolve(lang, line.ProductID)),
			line.Quantity,
			i18n.FormatAmount(lang, line.Subtotal()),
		)
	}

	fmt.Fprintf(&b, "\n💰 <b>JAMI: %s UZS</b>", i18n.FormatAmount(lang, n.Total))
	return b.String()
}
