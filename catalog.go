package main

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
)

// CatalogSource fetches the price lists invoices are computed from.
type CatalogSource interface {
	FetchHotels(ctx context.Context, sess SessionContext) ([]map[string]interface{}, error)
	FetchFoodPrices(ctx context.Context, sess SessionContext) ([]map[string]interface{}, error)
	FetchZiaratPrices(ctx context.Context, sess SessionContext) ([]map[string]interface{}, error)
}

// CatalogCache keeps one normalized catalog per organization and agency for
// a short TTL. Concurrent misses for the same key may fetch twice; the last
// one stored wins.
type CatalogCache struct {
	source  CatalogSource
	cache   *lru.LRU[string, Catalog]
	metrics *Metrics
}

func NewCatalogCache(source CatalogSource, size int, ttl time.Duration, metrics *Metrics) *CatalogCache {
	if size < 1 {
		size = 1
	}
	return &CatalogCache{
		source:  source,
		cache:   lru.NewLRU[string, Catalog](size, nil, ttl),
		metrics: metrics,
	}
}

func catalogKey(sess SessionContext) string {
	return sess.OrgID() + "/" + sess.AgencyID()
}

// Get returns the cached catalog for the session's scope, fetching the three
// lists in parallel on a miss.
func (c *CatalogCache) Get(ctx context.Context, sess SessionContext) (Catalog, error) {
	key := catalogKey(sess)
	if catalog, ok := c.cache.Get(key); ok {
		c.metrics.CatalogCacheTotal.WithLabelValues("hit").Inc()
		return catalog, nil
	}
	c.metrics.CatalogCacheTotal.WithLabelValues("miss").Inc()

	var hotels, food, ziarat []map[string]interface{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hotels, err = c.source.FetchHotels(gctx, sess)
		return err
	})
	g.Go(func() error {
		var err error
		food, err = c.source.FetchFoodPrices(gctx, sess)
		return err
	})
	g.Go(func() error {
		var err error
		ziarat, err = c.source.FetchZiaratPrices(gctx, sess)
		return err
	})
	if err := g.Wait(); err != nil {
		return Catalog{}, fmt.Errorf("failed to fetch catalog: %w", err)
	}

	catalog := NormalizeCatalog(hotels, food, ziarat)
	c.cache.Add(key, catalog)
	return catalog, nil
}

// Invalidate drops the cached catalog for the session's scope.
func (c *CatalogCache) Invalidate(sess SessionContext) {
	c.cache.Remove(catalogKey(sess))
}

func (c *CatalogCache) Len() int {
	return c.cache.Len()
}
