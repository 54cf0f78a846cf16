// Package backend реализует HTTP-клиент CMS и системы учёта заказов.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
)

const (
	// DefaultBaseURL — адрес бэкенда витрины.
	DefaultBaseURL = "https://codebyz.online"
	// DefaultProductImage подставляется, если у товара нет картинки.
	DefaultProductImage = "https://picsum.photos/seed/soap/600/600"
	// IdempotencyHeader передаёт токен попытки оформления.
	IdempotencyHeader = "Idempotency-Key"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// DefaultBenefits — теги, которые получают товары из API.
func DefaultBenefits() map[domain.Language][]string {
	return map[domain.Language][]string{
		domain.LanguageUz: {"Tabiiy", "Shifobaxsh"},
		domain.LanguageEn: {"Natural", "Healing"},
		domain.LanguageTr: {"Doğal", "Şifalı"},
		domain.LanguageRu: {"Натуральное", "Лечебное"},
	}
}

// Client обращается к API витрины.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// New создаёт клиента. Пустой baseURL заменяется DefaultBaseURL.
func New(baseURL string, options ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log.WithField("component", "backend-client"),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

var (
	_ domain.CatalogSource  = (*Client)(nil)
	_ domain.OrderPersister = (*Client)(nil)
)

type apiProduct struct {
	ID     string `json:"id"`
	NameUz string `json:"nameUz"`
	NameRu string `json:"nameRu"`
	NameTr string `json:"nameTr"`
	NameEn string `json:"nameEn"`
	DescUz string `json:"descUz"`
	DescRu string `json:"descRu"`
	DescTr string `json:"descTr"`
	DescEn string `json:"descEn"`
	Price  int64  `json:"price"`
	ImgURL string `json:"imgUrl"`
}

func (p apiProduct) toDomain() domain.Product {
	image := p.ImgURL
	if image == "" {
		image = DefaultProductImage
	}
	return domain.Product{
		ID:          p.ID,
		Name:        domain.MultiLang{Uz: p.NameUz, En: p.NameEn, Tr: p.NameTr, Ru: p.NameRu},
		Description: domain.MultiLang{Uz: p.DescUz, En: p.DescEn, Tr: p.DescTr, Ru: p.DescRu},
		Price:       p.Price,
		Image:       image,
		Benefits:    DefaultBenefits(),
		Category:    domain.CategoryNatural,
	}
}

type logoResponse struct {
	ImgURL string `json:"imgUrl"`
}

type aboutResponse struct {
	DescriptionUz   string `json:"descriptionUz"`
	DescriptionRu   string `json:"descriptionRu"`
	DescriptionTr   string `json:"descriptionTr"`
	DescriptionEn   string `json:"descriptionEn"`
	OfficeAddressUz string `json:"officeAddressUz"`
	OfficeAddressRu string `json:"officeAddressRu"`
	OfficeAddressTr string `json:"officeAddressTr"`
	OfficeAddressEn string `json:"officeAddressEn"`
	Instagram       string `json:"instagram"`
	Telegram        string `json:"telegram"`
	Phone           string `json:"phone"`
}

// FetchActiveProducts загружает активные товары. Ответ не-массив даёт пустой список.
func (c *Client) FetchActiveProducts(ctx context.Context) ([]domain.Product, error) {
	body, err := c.get(ctx, "/products/active")
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.WithError(err).Warn("products endpoint did not return an array")
		return []domain.Product{}, nil
	}

	products := make([]domain.Product, 0, len(raw))
	for _, item := range raw {
		var p apiProduct
		if err := json.Unmarshal(item, &p); err != nil {
			c.logger.WithError(err).Warn("skip malformed product")
			continue
		}
		if p.ID == "" {
			continue
		}
		products = append(products, p.toDomain())
	}
	return products, nil
}

// FetchLogo возвращает URL логотипа или пустую строку.
func (c *Client) FetchLogo(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/logo")
	if err != nil {
		return "", err
	}
	var resp logoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode logo: %w", err)
	}
	return strings.TrimSpace(resp.ImgURL), nil
}

// FetchAboutInfo загружает раздел «О нас».
func (c *Client) FetchAboutInfo(ctx context.Context) (domain.AboutInfo, error) {
	body, err := c.get(ctx, "/about")
	if err != nil {
		return domain.AboutInfo{}, err
	}
	var resp aboutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.AboutInfo{}, fmt.Errorf("decode about: %w", err)
	}
	return domain.AboutInfo{
		Description: domain.MultiLang{
			Uz: resp.DescriptionUz, En: resp.DescriptionEn, Tr: resp.DescriptionTr, Ru: resp.DescriptionRu,
		},
		OfficeAddress: domain.MultiLang{
			Uz: resp.OfficeAddressUz, En: resp.OfficeAddressEn, Tr: resp.OfficeAddressTr, Ru: resp.OfficeAddressRu,
		},
		Instagram: resp.Instagram,
		Telegram:  resp.Telegram,
		Phone:     resp.Phone,
	}, nil
}

// CreateOrder регистрирует продажу. Любой ответ кроме 2xx считается отказом.
func (c *Client) CreateOrder(ctx context.Context, submission domain.OrderSubmission) error {
	payload, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/statistics/sale", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if submission.Token != "" {
		req.Header.Set(IdempotencyHeader, submission.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send order: %w", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", orderFailure(resp.StatusCode), resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.WithField("token", submission.Token).Info("sale recorded by backend")
	return nil
}

// orderFailure отделяет окончательный отказ (4xx) от ответа, после которого
// заявку можно повторить.
func orderFailure(status int) error {
	switch {
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return domain.ErrBackendUnavailable
	default:
		return domain.ErrOrderRejected
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}
