package iapkit

import (
	"context"
	"fmt"
	"sync"
)

// productCache maps product identifiers to the last-fetched native
// descriptor. Writes replace whole entries (last-write-wins, no versioning)
// so a concurrent reader never observes a partially-updated product.
type productCache struct {
	mu      sync.RWMutex
	entries map[string]Product
}

func newProductCache() *productCache {
	return &productCache{entries: make(map[string]Product)}
}

func (c *productCache) put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[p.ProductID()] = p
}

func (c *productCache) get(sku string) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[sku]
	return p, ok
}

func (c *productCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Product)
}

// GetProducts fetches in-app product descriptors for the given identifiers
// and populates the cache. Identifiers the store does not resolve are
// silently dropped, mirroring store behavior for delisted or misconfigured
// SKUs. An empty identifier list fails before any native interaction.
func (s *Session) GetProducts(ctx context.Context, skus []string) ([]Product, error) {
	return s.fetchProducts(ctx, KindInAppPurchase, skus)
}

// GetSubscriptions fetches subscription product descriptors for the given
// identifiers and populates the cache.
func (s *Session) GetSubscriptions(ctx context.Context, skus []string) ([]Product, error) {
	return s.fetchProducts(ctx, KindSubscription, skus)
}

// Lookup is a pure cache read with no network effect.
func (s *Session) Lookup(sku string) (Product, bool) {
	return s.products.get(sku)
}

func (s *Session) fetchProducts(ctx context.Context, kind ProductKind, skus []string) ([]Product, error) {
	if len(skus) == 0 {
		return nil, NewPurchaseError(ErrCodeEmptySkuList, "The SKU list is empty.")
	}

	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	switch s.platform {
	case PlatformIOS:
		fetched, err := s.storeKit.FetchProducts(ctx, skus)
		if err != nil {
			return nil, NewPurchaseError(ErrCodeQueryProduct, fmt.Sprintf("Error fetching products: %v", err))
		}
		products := make([]Product, 0, len(fetched))
		for _, p := range fetched {
			if kind == KindSubscription && p.Type != ProductTypeAutoRenewable {
				continue
			}
			s.products.put(p)
			products = append(products, p)
		}
		s.logger.Debug("products fetched", "kind", kind, "requested", len(skus), "resolved", len(products))
		return products, nil

	case PlatformAndroid:
		fetched, err := s.playBilling.QueryProductDetails(ctx, kind, skus)
		if err != nil {
			return nil, s.queryProductError(err)
		}
		products := make([]Product, 0, len(fetched))
		for _, p := range fetched {
			s.products.put(p)
			products = append(products, p)
		}
		s.logger.Debug("products fetched", "kind", kind, "requested", len(skus), "resolved", len(products))
		return products, nil
	}

	return nil, NewPurchaseError(ErrCodeDeveloperError, "unsupported platform")
}

func (s *Session) queryProductError(err error) error {
	if perr := translateBridgeError(err, ""); perr.Code != ErrCodeUnknown {
		return perr
	}
	return NewPurchaseError(ErrCodeQueryProduct, fmt.Sprintf("Error querying product details: %v", err))
}
