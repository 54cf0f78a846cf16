// Package catalog собирает контент витрины из CMS с подстановкой значений по умолчанию.
package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
)

const defaultRefreshInterval = 5 * time.Minute

// Loader загружает логотип, раздел «О нас» и товары параллельно.
type Loader struct {
	source domain.CatalogSource
	logger *log.Entry
}

// NewLoader создаёт загрузчик. source может быть nil: тогда используется только встроенный контент.
func NewLoader(source domain.CatalogSource, logger *log.Entry) *Loader {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Loader{source: source, logger: logger}
}

// Load выполняет три запроса параллельно. Каждая ошибка заменяется значением по умолчанию,
// поэтому метод ошибок не возвращает.
func (l *Loader) Load(ctx context.Context) *Snapshot {
	return l.Reload(ctx, nil)
}

// Reload загружает каталог заново. Если источник не ответил, а в prev для него
// есть живые данные, они переносятся в новый снимок с отметкой Stale;
// встроенный контент подставляется только когда прежних данных нет.
func (l *Loader) Reload(ctx context.Context, prev *Snapshot) *Snapshot {
	if l.source == nil {
		return NewSnapshot("", nil, nil)
	}

	var (
		logo     string
		about    *domain.AboutInfo
		products []domain.Product
		stale    Fallbacks
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		v, err := l.source.FetchLogo(ctx)
		if err == nil {
			logo = v
			return
		}
		if prev != nil && !prev.Fallback.Logo {
			logo, stale.Logo = prev.logo, true
			l.logger.WithError(err).Warn("logo unavailable, keeping previous")
			return
		}
		l.logger.WithError(err).Warn("logo unavailable, using placeholder")
	}()
	go func() {
		defer wg.Done()
		v, err := l.source.FetchAboutInfo(ctx)
		if err == nil {
			about = &v
			return
		}
		if prev != nil && !prev.Fallback.About {
			kept := prev.about
			about, stale.About = &kept, true
			l.logger.WithError(err).Warn("about info unavailable, keeping previous")
			return
		}
		l.logger.WithError(err).Warn("about info unavailable, using defaults")
	}()
	go func() {
		defer wg.Done()
		v, err := l.source.FetchActiveProducts(ctx)
		if err == nil {
			products = v
			return
		}
		if prev != nil && !prev.Fallback.Products {
			products, stale.Products = prev.Products(), true
			l.logger.WithError(err).Warn("products unavailable, keeping previous catalog")
			return
		}
		l.logger.WithError(err).Warn("products unavailable, using built-in catalog")
	}()
	wg.Wait()

	snap := NewSnapshot(logo, about, products)
	snap.Stale = stale
	l.logger.WithFields(log.Fields{
		"products":          len(snap.products),
		"fallback_logo":     snap.Fallback.Logo,
		"fallback_about":    snap.Fallback.About,
		"fallback_products": snap.Fallback.Products,
		"stale_products":    stale.Products,
	}).Debug("catalog loaded")
	return snap
}

// Cache хранит последний снимок каталога и периодически его обновляет.
type Cache struct {
	loader   *Loader
	interval time.Duration
	current  atomic.Pointer[Snapshot]
}

// NewCache создаёт кэш со встроенным содержимым до первой загрузки.
func NewCache(loader *Loader, interval time.Duration) *Cache {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	c := &Cache{loader: loader, interval: interval}
	c.current.Store(NewSnapshot("", nil, nil))
	return c
}

// Current возвращает актуальный снимок.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Refresh перезагружает каталог поверх текущего снимка.
func (c *Cache) Refresh(ctx context.Context) *Snapshot {
	snap := c.loader.Reload(ctx, c.current.Load())
	c.current.Store(snap)
	return snap
}

// Run обновляет каталог до отмены ctx.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}
