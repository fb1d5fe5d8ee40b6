package iapkit

import (
	"context"
	"time"
)

// nonRenewableWindow is how long a non-renewing subscription counts as an
// active entitlement after purchase.
const nonRenewableWindow = 365 * 24 * time.Hour

// GetAvailablePurchases re-queries the store's purchase ledger for items the
// user still owns. On iOS this walks current entitlements; on Android it
// merges the active purchases of both catalogs.
func (s *Session) GetAvailablePurchases(ctx context.Context, opts PurchaseQueryOptions) ([]Purchase, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	switch s.platform {
	case PlatformIOS:
		return s.availableItemsIOS(ctx, ScopeCurrentEntitlements, opts.AlsoEmit, opts.OnlyIncludeActive)
	case PlatformAndroid:
		return s.queryPurchasesAndroid(ctx, opts.AlsoEmit)
	}
	return nil, NewPurchaseError(ErrCodeDeveloperError, "unsupported platform")
}

// GetPurchaseHistory re-queries the full purchase ledger, including expired
// and consumed items where the store still reports them.
func (s *Session) GetPurchaseHistory(ctx context.Context, opts PurchaseQueryOptions) ([]Purchase, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	switch s.platform {
	case PlatformIOS:
		return s.availableItemsIOS(ctx, ScopeAll, opts.AlsoEmit, opts.OnlyIncludeActive)
	case PlatformAndroid:
		return s.queryPurchaseHistoryAndroid(ctx, opts.AlsoEmit)
	}
	return nil, NewPurchaseError(ErrCodeDeveloperError, "unsupported platform")
}

func (s *Session) availableItemsIOS(ctx context.Context, scope TransactionScope, alsoEmit, onlyActive bool) ([]Purchase, error) {
	entries, err := s.storeKit.Transactions(ctx, scope)
	if err != nil {
		return nil, translateBridgeError(err, "")
	}

	purchases := make([]Purchase, 0, len(entries))
	for _, entry := range entries {
		if entry.Err != nil {
			perr := translateBridgeError(entry.Err, "")
			s.logger.Warn("skipping unverifiable transaction", "error", entry.Err)
			if alsoEmit {
				s.listeners.emitPurchaseError(perr)
			}
			continue
		}

		tx := *entry.Transaction
		if onlyActive && !s.isActiveEntitlement(tx) {
			continue
		}

		purchase := purchaseFromTransactionIOS(tx)
		purchases = append(purchases, purchase)
		if alsoEmit {
			s.listeners.emitPurchaseUpdated(purchase)
		}
	}
	return purchases, nil
}

// isActiveEntitlement applies the active-only filter: a non-renewing
// subscription counts for one year after purchase, everything else counts
// only while its product descriptor is known from a prior catalog fetch.
func (s *Session) isActiveEntitlement(tx TransactionIOS) bool {
	if tx.ProductType == ProductTypeNonRenewable {
		if _, ok := s.products.get(tx.ProductID); !ok {
			return false
		}
		return time.Since(tx.PurchaseDate) < nonRenewableWindow
	}
	_, ok := s.products.get(tx.ProductID)
	return ok
}

func (s *Session) queryPurchasesAndroid(ctx context.Context, alsoEmit bool) ([]Purchase, error) {
	var purchases []Purchase
	for _, kind := range []ProductKind{KindInAppPurchase, KindSubscription} {
		raws, err := s.playBilling.QueryPurchases(ctx, kind)
		if err != nil {
			return nil, translateBridgeError(err, "")
		}
		for _, raw := range raws {
			purchase := purchaseFromAndroid(raw, kind)
			purchases = append(purchases, purchase)
			if alsoEmit {
				s.listeners.emitPurchaseUpdated(purchase)
			}
		}
	}
	return purchases, nil
}

func (s *Session) queryPurchaseHistoryAndroid(ctx context.Context, alsoEmit bool) ([]Purchase, error) {
	var purchases []Purchase
	for _, kind := range []ProductKind{KindInAppPurchase, KindSubscription} {
		raws, err := s.playBilling.QueryPurchaseHistory(ctx, kind)
		if err != nil {
			return nil, translateBridgeError(err, "")
		}
		for _, raw := range raws {
			purchase := purchaseFromAndroid(raw, kind)
			purchases = append(purchases, purchase)
			if alsoEmit {
				s.listeners.emitPurchaseUpdated(purchase)
			}
		}
	}
	return purchases, nil
}
