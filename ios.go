package iapkit

import (
	"context"
	"fmt"
)

// SyncIOS forces StoreKit to refresh its signed transaction and renewal
// information from the store. This presents a system authentication sheet,
// so call it only from an explicit user action such as a "restore purchases"
// button.
func (s *Session) SyncIOS(ctx context.Context) error {
	if err := s.requirePlatform(PlatformIOS); err != nil {
		return err
	}
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	if err := s.storeKit.Sync(ctx); err != nil {
		return translateBridgeError(err, "")
	}
	return nil
}

// IsEligibleForIntroOfferIOS reports whether the user can redeem an
// introductory offer in the given subscription group.
func (s *Session) IsEligibleForIntroOfferIOS(ctx context.Context, groupID string) (bool, error) {
	if err := s.requirePlatform(PlatformIOS); err != nil {
		return false, err
	}
	if err := s.ensureConnected(ctx); err != nil {
		return false, err
	}
	eligible, err := s.storeKit.IsEligibleForIntroOffer(ctx, groupID)
	if err != nil {
		return false, translateBridgeError(err, "")
	}
	return eligible, nil
}

// SubscriptionStatusIOS returns the renewal status entries of a subscription.
func (s *Session) SubscriptionStatusIOS(ctx context.Context, sku string) ([]SubscriptionStatusIOS, error) {
	if err := s.requirePlatform(PlatformIOS); err != nil {
		return nil, err
	}
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	statuses, err := s.storeKit.SubscriptionStatus(ctx, sku)
	if err != nil {
		return nil, translateBridgeError(err, sku)
	}
	return statuses, nil
}

// CurrentEntitlementIOS returns the user's current entitlement for a product,
// or an error when none exists.
func (s *Session) CurrentEntitlementIOS(ctx context.Context, sku string) (Purchase, error) {
	if err := s.requirePlatform(PlatformIOS); err != nil {
		return Purchase{}, err
	}
	if err := s.ensureConnected(ctx); err != nil {
		return Purchase{}, err
	}
	tx, err := s.storeKit.CurrentEntitlement(ctx, sku)
	if err != nil {
		return Purchase{}, translateBridgeError(err, sku)
	}
	if tx == nil {
		return Purchase{}, &PurchaseError{
			Name:      "[iapkit]: PurchaseError",
			Message:   fmt.Sprintf("can't find entitlement for sku %s", sku),
			Code:      ErrCodeSkuNotFound,
			ProductID: sku,
		}
	}
	return purchaseFromTransactionIOS(*tx), nil
}

// LatestTransactionIOS returns the most recent transaction for a product,
// or an error when the user never purchased it.
func (s *Session) LatestTransactionIOS(ctx context.Context, sku string) (Purchase, error) {
	if err := s.requirePlatform(PlatformIOS); err != nil {
		return Purchase{}, err
	}
	if err := s.ensureConnected(ctx); err != nil {
		return Purchase{}, err
	}
	tx, err := s.storeKit.LatestTransaction(ctx, sku)
	if err != nil {
		return Purchase{}, translateBridgeError(err, sku)
	}
	if tx == nil {
		return Purchase{}, &PurchaseError{
			Name:      "[iapkit]: PurchaseError",
			Message:   fmt.Sprintf("can't find latest transaction for sku %s", sku),
			Code:      ErrCodeSkuNotFound,
			ProductID: sku,
		}
	}
	return purchaseFromTransactionIOS(*tx), nil
}

// BeginRefundRequestIOS presents the system refund sheet for the latest
// transaction of a product.
func (s *Session) BeginRefundRequestIOS(ctx context.Context, sku string) (RefundRequestStatus, error) {
	if err := s.requirePlatform(PlatformIOS); err != nil {
		return "", err
	}
	if err := s.ensureConnected(ctx); err != nil {
		return "", err
	}

	tx, err := s.storeKit.LatestTransaction(ctx, sku)
	if err != nil {
		return "", translateBridgeError(err, sku)
	}
	if tx == nil {
		return "", &PurchaseError{
			Name:      "[iapkit]: PurchaseError",
			Message:   fmt.Sprintf("can't find latest transaction for sku %s", sku),
			Code:      ErrCodeSkuNotFound,
			ProductID: sku,
		}
	}

	status, err := s.storeKit.BeginRefundRequest(ctx, tx.TransactionID())
	if err != nil {
		return "", translateBridgeError(err, sku)
	}
	return status, nil
}

// ShowManageSubscriptionsIOS opens the system subscription management sheet.
func (s *Session) ShowManageSubscriptionsIOS(ctx context.Context) error {
	if err := s.requirePlatform(PlatformIOS); err != nil {
		return err
	}
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	if err := s.storeKit.ShowManageSubscriptions(ctx); err != nil {
		return translateBridgeError(err, "")
	}
	return nil
}

// PresentCodeRedemptionSheetIOS opens the system offer code redemption sheet.
func (s *Session) PresentCodeRedemptionSheetIOS(ctx context.Context) error {
	if err := s.requirePlatform(PlatformIOS); err != nil {
		return err
	}
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	if err := s.storeKit.PresentCodeRedemptionSheet(ctx); err != nil {
		return translateBridgeError(err, "")
	}
	return nil
}

// PendingTransactionsIOS returns a snapshot of the transactions observed by
// this session that have not been finished yet.
func (s *Session) PendingTransactionsIOS() []TransactionIOS {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransactionIOS, 0, len(s.pending))
	for _, tx := range s.pending {
		out = append(out, tx)
	}
	return out
}

// ClearTransactionsIOS finishes every unfinished transaction the store
// reports, draining the native queue. Use with care: finishing an
// undelivered consumable forfeits it.
func (s *Session) ClearTransactionsIOS(ctx context.Context) error {
	if err := s.requirePlatform(PlatformIOS); err != nil {
		return err
	}
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}

	entries, err := s.storeKit.Transactions(ctx, ScopeUnfinished)
	if err != nil {
		return translateBridgeError(err, "")
	}

	for _, entry := range entries {
		if entry.Transaction == nil {
			continue
		}
		id := entry.Transaction.TransactionID()
		if err := s.storeKit.Finish(ctx, id); err != nil {
			return fmt.Errorf("finish transaction %s: %w", id, err)
		}
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}
	return nil
}
