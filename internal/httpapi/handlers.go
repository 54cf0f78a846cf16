package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/simosh/storefront/internal/cart"
	"github.com/simosh/storefront/internal/catalog"
	"github.com/simosh/storefront/internal/checkout"
	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/i18n"
	"github.com/simosh/storefront/internal/phone"
	"github.com/simosh/storefront/internal/session"
)

const (
	errKeyInvalidRequest    = "invalid_request"
	errKeyInvalidTransition = "invalid_transition"
	errKeyInternal          = "internal_error"
	errKeyNotFound          = "not_found"
	errKeyUnauthorized      = "unauthorized"

	maxBodyBytes = 1 << 16
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, lang domain.Language, key string) {
	writeJSON(w, status, errorBody{Error: key, Message: s.messages.Text(lang, key)})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// clientID читает cookie клиента или выдаёт новую.
func (s *Server) clientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return c.Value
	}
	id := s.newClientID()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// requestLanguage: ?lang=, затем язык сессии, затем Accept-Language.
func requestLanguage(r *http.Request, sess *session.Session) domain.Language {
	if lang, ok := i18n.ParseLanguage(r.URL.Query().Get("lang")); ok {
		return lang
	}
	if sess != nil {
		return sess.Language()
	}
	if lang, ok := i18n.ParseLanguage(r.Header.Get("Accept-Language")); ok {
		return lang
	}
	return domain.DefaultLanguage
}

func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.registry.Get(r.Context(), s.clientID(w, r))
		if err != nil {
			s.logger.WithError(err).Warn("failed to open session")
			s.writeError(w, http.StatusInternalServerError, requestLanguage(r, nil), errKeyInternal)
			return
		}
		next(w, r, sess)
	}
}

func (s *Server) withVerified(next sessionHandler) http.HandlerFunc {
	return s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		if err := sess.RequireVerified(); err != nil {
			s.writeError(w, http.StatusForbidden, requestLanguage(r, sess), i18n.KeyVerificationRequired)
			return
		}
		next(w, r, sess)
	})
}

// productView — карточка товара с количеством в корзине сессии.
type productView struct {
	catalog.LocalizedProduct
	InCart int `json:"inCart"`
}

type storefrontView struct {
	Logo      string                 `json:"logo"`
	HasLogo   bool                   `json:"hasLogo"`
	About     catalog.LocalizedAbout `json:"about"`
	Products  []productView          `json:"products"`
	Countries []phone.Country        `json:"countries"`
	Fallback  catalog.Fallbacks      `json:"fallback"`
	Language  domain.Language        `json:"language"`
}

func (s *Server) handleStorefront(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	lang := requestLanguage(r, sess)
	snap := s.catalog.Current()
	logo, ok := snap.Logo()

	c := sess.Cart()
	localized := snap.ResolveProducts(lang)
	products := make([]productView, 0, len(localized))
	for _, p := range localized {
		products = append(products, productView{LocalizedProduct: p, InCart: c.Quantity(p.ID)})
	}

	writeJSON(w, http.StatusOK, storefrontView{
		Logo:      logo,
		HasLogo:   ok,
		About:     snap.ResolveAbout(lang),
		Products:  products,
		Countries: phone.Countries(),
		Fallback:  snap.Fallback,
		Language:  lang,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := s.registry.Verify(r.Context(), sess); err != nil {
		s.logger.WithError(err).WithField("client_id", sess.ID()).Warn("failed to confirm access")
		s.writeError(w, http.StatusInternalServerError, requestLanguage(r, sess), errKeyInternal)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

type preferencesRequest struct {
	Language *string `json:"language"`
	Theme    *string `json:"theme"`
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req preferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, requestLanguage(r, sess), errKeyInvalidRequest)
		return
	}

	if req.Language != nil {
		lang, ok := i18n.ParseLanguage(*req.Language)
		if !ok {
			s.writeError(w, http.StatusBadRequest, requestLanguage(r, sess), errKeyInvalidRequest)
			return
		}
		if err := s.registry.SetLanguage(r.Context(), sess, lang); err != nil {
			s.logger.WithError(err).Warn("failed to save language")
			s.writeError(w, http.StatusInternalServerError, lang, errKeyInternal)
			return
		}
	}
	if req.Theme != nil {
		theme := domain.Theme(strings.ToLower(strings.TrimSpace(*req.Theme)))
		if !theme.Valid() {
			s.writeError(w, http.StatusBadRequest, requestLanguage(r, sess), errKeyInvalidRequest)
			return
		}
		if err := s.registry.SetTheme(r.Context(), sess, theme); err != nil {
			s.logger.WithError(err).Warn("failed to save theme")
			s.writeError(w, http.StatusInternalServerError, requestLanguage(r, sess), errKeyInternal)
			return
		}
	}

	writeJSON(w, http.StatusOK, sess.View())
}

type cartLineView struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type cartView struct {
	Lines          []cartLineView `json:"lines"`
	Count          int            `json:"count"`
	TotalQuantity  int            `json:"totalQuantity"`
	Total          int64          `json:"total"`
	TotalFormatted string         `json:"totalFormatted"`
}

func newCartView(c cart.Cart, lang domain.Language) cartView {
	lines := c.Lines()
	view := cartView{
		Lines:          make([]cartLineView, 0, len(lines)),
		Count:          c.Count(),
		TotalQuantity:  c.TotalQuantity(),
		Total:          c.Total(),
		TotalFormatted: i18n.FormatAmount(lang, c.Total()),
	}
	for _, line := range lines {
		view.Lines = append(view.Lines, cartLineView{
			ProductID: line.Product.ID,
			Name:      line.Product.Name.Resolve(lang, line.Product.ID),
			Image:     line.Product.Image,
			Price:     line.Product.Price,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal(),
		})
	}
	return view
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, newCartView(sess.Cart(), requestLanguage(r, sess)))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	lang := requestLanguage(r, sess)

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.ProductID) == "" {
		s.writeError(w, http.StatusBadRequest, lang, errKeyInvalidRequest)
		return
	}

	product, err := s.catalog.Current().Product(strings.TrimSpace(req.ProductID))
	if err != nil {
		s.writeError(w, http.StatusNotFound, lang, i18n.KeyUnknownProduct)
		return
	}

	c, err := sess.AddToCart(product)
	if err != nil {
		s.writeCartError(w, lang, err)
		return
	}
	s.metrics.RecordCartAdd()
	writeJSON(w, http.StatusOK, newCartView(c, lang))
}

func (s *Server) handleRemoveOne(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	lang := requestLanguage(r, sess)
	c, err := sess.RemoveOne(r.PathValue("productID"))
	if err != nil {
		s.writeCartError(w, lang, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(c, lang))
}

func (s *Server) handleRemoveAll(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	lang := requestLanguage(r, sess)
	c, err := sess.RemoveAll(r.PathValue("productID"))
	if err != nil {
		s.writeCartError(w, lang, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(c, lang))
}

func (s *Server) writeCartError(w http.ResponseWriter, lang domain.Language, err error) {
	if errors.Is(err, session.ErrCheckoutLocked) {
		s.writeError(w, http.StatusConflict, lang, i18n.KeyCheckoutLocked)
		return
	}
	s.logger.WithError(err).Warn("cart mutation failed")
	s.writeError(w, http.StatusInternalServerError, lang, errKeyInternal)
}

func (s *Server) writeCheckoutError(w http.ResponseWriter, lang domain.Language, err error) {
	switch {
	case errors.Is(err, checkout.ErrSubmissionInProgress):
		s.writeError(w, http.StatusConflict, lang, i18n.KeyCheckoutLocked)
	case errors.Is(err, checkout.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, lang, errKeyInvalidTransition)
	default:
		s.logger.WithError(err).Warn("checkout action failed")
		s.writeError(w, http.StatusInternalServerError, lang, errKeyInternal)
	}
}

// checkoutView — состояние оформления; notice опускается, если уведомления нет.
type checkoutView struct {
	State  checkout.State   `json:"state"`
	Form   checkout.Form    `json:"form"`
	Notice *checkout.Notice `json:"notice,omitempty"`
}

func newCheckoutView(snap checkout.Snapshot) checkoutView {
	view := checkoutView{State: snap.State, Form: snap.Form}
	if !snap.Notice.IsZero() {
		view.Notice = &snap.Notice
	}
	return view
}

func (s *Server) handleCheckout(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, newCheckoutView(sess.Workflow().Snapshot()))
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	lang := requestLanguage(r, sess)
	if sess.Cart().IsEmpty() {
		s.writeError(w, http.StatusConflict, lang, i18n.KeyCartEmpty)
		return
	}
	if err := sess.Workflow().BeginCheckout(); err != nil {
		s.writeCheckoutError(w, lang, err)
		return
	}
	writeJSON(w, http.StatusOK, newCheckoutView(sess.Workflow().Snapshot()))
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Workflow().BackToCart(); err != nil {
		s.writeCheckoutError(w, requestLanguage(r, sess), err)
		return
	}
	writeJSON(w, http.StatusOK, newCheckoutView(sess.Workflow().Snapshot()))
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Workflow().Close(); err != nil {
		s.writeCheckoutError(w, requestLanguage(r, sess), err)
		return
	}
	writeJSON(w, http.StatusOK, newCheckoutView(sess.Workflow().Snapshot()))
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	lang := requestLanguage(r, sess)

	var form checkout.Form
	if err := decodeJSON(r, &form); err != nil {
		s.writeError(w, http.StatusBadRequest, lang, errKeyInvalidRequest)
		return
	}
	if _, err := sess.Workflow().UpdateForm(form); err != nil {
		s.writeCheckoutError(w, lang, err)
		return
	}
	writeJSON(w, http.StatusOK, newCheckoutView(sess.Workflow().Snapshot()))
}

type submitView struct {
	State          checkout.State   `json:"state"`
	Notice         *checkout.Notice `json:"notice,omitempty"`
	Accepted       bool            `json:"accepted"`
	Total          int64           `json:"total,omitempty"`
	TotalFormatted string          `json:"totalFormatted,omitempty"`
	Token          string          `json:"token,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	lang := requestLanguage(r, sess)
	token := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))

	res, err := sess.Workflow().SubmitWithToken(r.Context(), lang, token)
	if err != nil {
		s.writeCheckoutError(w, lang, err)
		return
	}

	view := submitView{
		State:    res.State,
		Accepted: res.Accepted(),
		Token:    res.Token,
	}
	if !res.Notice.IsZero() {
		view.Notice = &res.Notice
	}

	status := http.StatusCreated
	switch {
	case res.Accepted():
		view.Total = res.Total
		view.TotalFormatted = i18n.FormatAmount(lang, res.Total)
	case res.Notice.Key == i18n.KeyOrderFailed:
		status = http.StatusBadGateway
	default:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, view)
}

// orderView — заказ для администратора. PhoneDisplay пуст, если номер не распознан.
type orderView struct {
	ID           string                 `json:"id"`
	Token        string                 `json:"token"`
	Submission   domain.OrderSubmission `json:"submission"`
	PhoneDisplay string                 `json:"phoneDisplay,omitempty"`
	CreatedAt    string                 `json:"createdAt"`
}

func displayPhone(full string) string {
	code, digits, ok := phone.SplitFullPhone(full)
	if !ok {
		return ""
	}
	return phone.FormatPrettyPhone(code, digits)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(auth), []byte(s.adminToken)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errKeyUnauthorized})
		return
	}

	order, err := s.orders.GetByToken(r.Context(), r.PathValue("token"))
	if errors.Is(err, domain.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errKeyNotFound})
		return
	}
	if err != nil {
		s.logger.WithError(err).Warn("order lookup failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errKeyInternal})
		return
	}

	writeJSON(w, http.StatusOK, orderView{
		ID:           order.ID,
		Token:        order.Token,
		Submission:   order.Submission,
		PhoneDisplay: displayPhone(order.Submission.Phone),
		CreatedAt:    order.CreatedAt.UTC().Format(time.RFC3339),
	})
}
