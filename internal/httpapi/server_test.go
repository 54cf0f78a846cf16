package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simosh/storefront/internal/cart"
	"github.com/simosh/storefront/internal/catalog"
	"github.com/simosh/storefront/internal/checkout"
	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/gate"
	"github.com/simosh/storefront/internal/service/orders"
	"github.com/simosh/storefront/internal/session"
	"github.com/simosh/storefront/internal/storage/memory"
)

type staticCatalog struct{ snap *catalog.Snapshot }

func (c staticCatalog) Current() *catalog.Snapshot { return c.snap }

type failingPersister struct{}

func (failingPersister) CreateOrder(context.Context, domain.OrderSubmission) error {
	return errors.New("backend down")
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	repo   domain.OrderRepository
}

func newTestEnv(t *testing.T, persister domain.OrderPersister) *testEnv {
	t.Helper()

	repo := memory.NewOrderRepository()
	if persister == nil {
		persister = orders.NewRecorder(repo, nil)
	}
	prefs := memory.NewPreferenceStore()
	registry := session.NewRegistry(func(store *cart.Store) *checkout.Workflow {
		return checkout.NewWorkflow(store, persister, nil)
	}, session.WithGate(gate.New(prefs, nil)), session.WithPreferences(prefs))

	products := []domain.Product{
		{ID: "1", Name: domain.MultiLang{Uz: "Asal sovuni", En: "Honey soap"}, Price: 25000},
		{ID: "2", Name: domain.MultiLang{Uz: "Ko'mir sovuni"}, Price: 30000},
	}
	api := NewServer(registry, staticCatalog{snap: catalog.NewSnapshot("", nil, products)},
		WithOrderLookup(repo, "secret"))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestStorefront_LocalizesByQuery(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/api/storefront?lang=en", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "en", body["language"])
	require.Equal(t, false, body["hasLogo"])

	products := body["products"].([]any)
	require.Len(t, products, 2)
	require.Equal(t, "Honey soap", products[0].(map[string]any)["name"])
	require.EqualValues(t, 0, products[0].(map[string]any)["inCart"])

	countries := body["countries"].([]any)
	require.Len(t, countries, 2)
	uz := countries[0].(map[string]any)
	require.Equal(t, "+998", uz["code"])
	require.EqualValues(t, 9, uz["digits"])
	require.Equal(t, "+90", countries[1].(map[string]any)["code"])
}

func TestStorefront_ShowsCartQuantities(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/session/verify", nil)
	env.do(t, http.MethodPost, "/api/cart/items", map[string]string{"productId": "2"})
	env.do(t, http.MethodPost, "/api/cart/items", map[string]string{"productId": "2"})

	status, body := env.do(t, http.MethodGet, "/api/storefront", nil)
	require.Equal(t, http.StatusOK, status)

	inCart := map[string]float64{}
	for _, p := range body["products"].([]any) {
		product := p.(map[string]any)
		inCart[product["id"].(string)] = product["inCart"].(float64)
	}
	require.Equal(t, map[string]float64{"1": 0, "2": 2}, inCart)
}

func TestSession_CookieAndVerification(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["verified"])
	clientID := body["clientId"].(string)
	require.NotEmpty(t, clientID)

	status, body = env.do(t, http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "verification_required", body["error"])

	status, body = env.do(t, http.MethodPost, "/api/session/verify", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["verified"])
	require.Equal(t, clientID, body["clientId"])

	status, _ = env.do(t, http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPut, "/api/session/preferences", map[string]string{"language": "ru", "theme": "dark"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ru", body["language"])
	require.Equal(t, "dark", body["theme"])

	status, body = env.do(t, http.MethodPut, "/api/session/preferences", map[string]string{"theme": "sepia"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_request", body["error"])
}

func TestCart_AddAndRemove(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/session/verify", nil)

	status, body := env.do(t, http.MethodPost, "/api/cart/items", map[string]string{"productId": "1"})
	require.Equal(t, http.StatusOK, status)
	status, body = env.do(t, http.MethodPost, "/api/cart/items", map[string]string{"productId": "1"})
	require.Equal(t, http.StatusOK, status)
	status, body = env.do(t, http.MethodPost, "/api/cart/items", map[string]string{"productId": "2"})
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 2, body["count"])
	require.EqualValues(t, 3, body["totalQuantity"])
	require.EqualValues(t, 80000, body["total"])

	status, body = env.do(t, http.MethodPost, "/api/cart/items", map[string]string{"productId": "404"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "unknown_product", body["error"])

	status, body = env.do(t, http.MethodDelete, "/api/cart/items/1", nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 55000, body["total"])

	status, body = env.do(t, http.MethodDelete, "/api/cart/items/2/all", nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["count"])
	require.EqualValues(t, 25000, body["total"])
}

func TestCheckout_BeginRequiresItems(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/session/verify", nil)

	status, body := env.do(t, http.MethodPost, "/api/checkout/begin", nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "cart_empty", body["error"])

	status, body = env.do(t, http.MethodPut, "/api/checkout/form", map[string]string{"firstName": "Ali"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "invalid_transition", body["error"])
}

func TestCheckout_SubmitFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/session/verify", nil)
	env.do(t, http.MethodPost, "/api/cart/items", map[string]string{"productId": "1"})

	status, body := env.do(t, http.MethodPost, "/api/checkout/begin", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, string(checkout.StateFormEntry), body["state"])
	require.NotContains(t, body, "notice")

	status, body = env.do(t, http.MethodPost, "/api/checkout/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, false, body["accepted"])
	require.Equal(t, "required_fields", body["notice"].(map[string]any)["key"])

	status, body = env.do(t, http.MethodPut, "/api/checkout/form", map[string]string{
		"firstName": "Ali",
		"lastName":  "Valiyev",
		"phone":     "901234567",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "90 123 45 67", body["form"].(map[string]any)["phone"])

	status, body = env.do(t, http.MethodPost, "/api/checkout/submit", nil, IdempotencyKeyHeader, "attempt-1")
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, true, body["accepted"])
	require.Equal(t, "attempt-1", body["token"])
	require.EqualValues(t, 25000, body["total"])

	order, err := env.repo.GetByToken(context.Background(), "attempt-1")
	require.NoError(t, err)
	require.Equal(t, "+998901234567", order.Submission.Phone)

	status, body = env.do(t, http.MethodGet, "/api/orders/attempt-1", nil, "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "attempt-1", body["token"])
	require.Equal(t, "+998 90 123 45 67", body["phoneDisplay"])

	status, body = env.do(t, http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 0, body["count"])

	status, body = env.do(t, http.MethodPost, "/api/checkout/close", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, string(checkout.StateBrowsing), body["state"])
	require.NotContains(t, body, "notice")
}

func TestCheckout_SubmitFailureKeepsCart(t *testing.T) {
	env := newTestEnv(t, failingPersister{})
	env.do(t, http.MethodPost, "/api/session/verify", nil)
	env.do(t, http.MethodPost, "/api/cart/items", map[string]string{"productId": "2"})
	env.do(t, http.MethodPost, "/api/checkout/begin", nil)
	env.do(t, http.MethodPut, "/api/checkout/form", map[string]string{
		"firstName": "Ali",
		"lastName":  "Valiyev",
		"phone":     "901234567",
	})

	status, body := env.do(t, http.MethodPost, "/api/checkout/submit", nil)
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "order_failed", body["notice"].(map[string]any)["key"])
	require.Equal(t, string(checkout.StateFormEntry), body["state"])

	status, body = env.do(t, http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, body["count"])
}

func TestOrderLookup_RequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)

	status, _ := env.do(t, http.MethodGet, "/api/orders/missing", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := env.do(t, http.MethodGet, "/api/orders/missing", nil, "Authorization", "Bearer secret")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", body["error"])
}
