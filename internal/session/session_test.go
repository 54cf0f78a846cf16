package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/simosh/storefront/internal/cart"
	"github.com/simosh/storefront/internal/checkout"
	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/gate"
	"github.com/simosh/storefront/internal/storage/memory"
)

var soap = domain.Product{ID: "1", Name: domain.MultiLang{Uz: "Sovun"}, Price: 25000}

type blockingPersister struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPersister) CreateOrder(context.Context, domain.OrderSubmission) error {
	close(p.started)
	<-p.release
	return nil
}

func newRegistry(t *testing.T, persister domain.OrderPersister, opts ...Option) *Registry {
	t.Helper()
	return NewRegistry(func(store *cart.Store) *checkout.Workflow {
		return checkout.NewWorkflow(store, persister, nil)
	}, opts...)
}

func TestRegistry_GetCreatesOncePerClient(t *testing.T) {
	reg := newRegistry(t, nil)

	var wg sync.WaitGroup
	got := make([]*Session, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.Get(context.Background(), "client-1")
			require.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range got[1:] {
		require.Same(t, got[0], s)
	}
	require.Equal(t, 1, reg.Len())

	_, err := reg.Get(context.Background(), "  ")
	require.ErrorIs(t, err, ErrClientIDRequired)
}

func TestRegistry_ReadsPreferencesOnCreate(t *testing.T) {
	prefs := memory.NewPreferenceStore()
	ctx := context.Background()
	require.NoError(t, prefs.Set(ctx, "client-1", domain.PreferenceVerified, domain.PreferenceVerifiedValue))
	require.NoError(t, prefs.Set(ctx, "client-1", domain.PreferenceTheme, "dark"))
	require.NoError(t, prefs.Set(ctx, "client-1", domain.PreferenceLanguage, "ru"))

	reg := newRegistry(t, nil, WithGate(gate.New(prefs, nil)), WithPreferences(prefs))

	s, err := reg.Get(ctx, "client-1")
	require.NoError(t, err)
	require.True(t, s.Verified())
	require.Equal(t, domain.ThemeDark, s.Theme())
	require.Equal(t, domain.LanguageRu, s.Language())

	fresh, err := reg.Get(ctx, "client-2")
	require.NoError(t, err)
	require.False(t, fresh.Verified())
	require.ErrorIs(t, fresh.RequireVerified(), ErrNotVerified)
	require.Equal(t, domain.ThemeLight, fresh.Theme())
	require.Equal(t, domain.DefaultLanguage, fresh.Language())
}

func TestRegistry_VerifyPersists(t *testing.T) {
	prefs := memory.NewPreferenceStore()
	reg := newRegistry(t, nil, WithGate(gate.New(prefs, nil)), WithPreferences(prefs))
	ctx := context.Background()

	s, err := reg.Get(ctx, "client-1")
	require.NoError(t, err)
	require.NoError(t, reg.Verify(ctx, s))
	require.True(t, s.Verified())

	value, err := prefs.Get(ctx, "client-1", domain.PreferenceVerified)
	require.NoError(t, err)
	require.Equal(t, domain.PreferenceVerifiedValue, value)
}

func TestRegistry_SetThemeAndLanguage(t *testing.T) {
	prefs := memory.NewPreferenceStore()
	reg := newRegistry(t, nil, WithPreferences(prefs))
	ctx := context.Background()

	s, err := reg.Get(ctx, "client-1")
	require.NoError(t, err)

	require.NoError(t, reg.SetTheme(ctx, s, domain.ThemeDark))
	require.Error(t, reg.SetTheme(ctx, s, domain.Theme("sepia")))
	require.Equal(t, domain.ThemeDark, s.Theme())

	require.NoError(t, reg.SetLanguage(ctx, s, domain.LanguageTr))
	require.Error(t, reg.SetLanguage(ctx, s, domain.Language("de")))
	require.Equal(t, domain.LanguageTr, s.Language())

	theme, err := prefs.Get(ctx, "client-1", domain.PreferenceTheme)
	require.NoError(t, err)
	require.Equal(t, "dark", theme)
}

func TestSession_CartMutations(t *testing.T) {
	reg := newRegistry(t, nil)
	s, err := reg.Get(context.Background(), "client-1")
	require.NoError(t, err)

	c, err := s.AddToCart(soap)
	require.NoError(t, err)
	require.Equal(t, 1, c.Quantity("1"))

	_, err = s.AddToCart(soap)
	require.NoError(t, err)
	c, err = s.RemoveOne("1")
	require.NoError(t, err)
	require.Equal(t, 1, c.Quantity("1"))

	c, err = s.RemoveAll("1")
	require.NoError(t, err)
	require.True(t, c.IsEmpty())
	require.Same(t, s.Workflow().Cart(), s.cart)
}

func TestSession_CartLockedWhileSubmitting(t *testing.T) {
	persister := &blockingPersister{started: make(chan struct{}), release: make(chan struct{})}
	reg := newRegistry(t, persister)
	s, err := reg.Get(context.Background(), "client-1")
	require.NoError(t, err)

	_, err = s.AddToCart(soap)
	require.NoError(t, err)
	wf := s.Workflow()
	require.NoError(t, wf.BeginCheckout())
	_, err = wf.UpdateForm(checkout.Form{FirstName: "Ali", LastName: "Valiyev", Phone: "901234567"})
	require.NoError(t, err)

	done := make(chan checkout.Result, 1)
	go func() {
		res, _ := wf.Submit(context.Background(), domain.LanguageUz)
		done <- res
	}()
	<-persister.started

	c, err := s.AddToCart(soap)
	require.ErrorIs(t, err, ErrCheckoutLocked)
	require.Equal(t, 1, c.Quantity("1"), "cart must not change while submitting")

	// сессия с отправляемым заказом переживает чистку
	require.Zero(t, reg.Sweep(time.Now().Add(24*time.Hour)))

	close(persister.release)
	res := <-done
	require.True(t, res.Accepted())
	require.True(t, s.Cart().IsEmpty())
}

func TestRegistry_SweepEvictsIdle(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	reg := newRegistry(t, nil, WithTTL(time.Hour), WithClock(clock))

	_, err := reg.Get(context.Background(), "old")
	require.NoError(t, err)
	now = now.Add(50 * time.Minute)
	_, err = reg.Get(context.Background(), "recent")
	require.NoError(t, err)

	require.Equal(t, 1, reg.Sweep(now.Add(20*time.Minute)))
	require.Equal(t, 1, reg.Len())
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	reg := newRegistry(t, nil, WithSweepInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry sweeper did not stop")
	}
}

type failingPrefs struct{}

func (failingPrefs) Get(context.Context, string, string) (string, error) {
	return "", errors.New("db down")
}

func (failingPrefs) Set(context.Context, string, string, string) error {
	return errors.New("db down")
}

func TestRegistry_PreferenceErrorsDegradeToDefaults(t *testing.T) {
	reg := newRegistry(t, nil, WithGate(gate.New(failingPrefs{}, nil)), WithPreferences(failingPrefs{}))

	s, err := reg.Get(context.Background(), "client-1")
	require.NoError(t, err)
	require.False(t, s.Verified())
	require.Equal(t, domain.ThemeLight, s.Theme())

	require.Error(t, reg.Verify(context.Background(), s))
	require.False(t, s.Verified())
	require.Error(t, reg.SetTheme(context.Background(), s, domain.ThemeDark))
	require.Equal(t, domain.ThemeLight, s.Theme())
}
