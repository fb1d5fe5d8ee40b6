package iapkit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RequestPurchase initiates an in-app product purchase. On iOS the
// returned slice carries the single resulting purchase (or is nil when the
// request opted into auto-finish); on Android it is always nil because
// the purchase payload arrives asynchronously on the purchase-updated
// channel once the store confirms.
func (s *Session) RequestPurchase(ctx context.Context, req PurchaseRequest) ([]Purchase, error) {
	return s.requestFlow(ctx, KindInAppPurchase, req)
}

// RequestSubscription initiates a subscription purchase. See RequestPurchase
// for the per-platform return contract. On Android every SKU must be
// paired with its own offer token.
func (s *Session) RequestSubscription(ctx context.Context, req PurchaseRequest) ([]Purchase, error) {
	return s.requestFlow(ctx, KindSubscription, req)
}

func (s *Session) requestFlow(ctx context.Context, kind ProductKind, req PurchaseRequest) ([]Purchase, error) {
	switch s.platform {
	case PlatformIOS:
		if req.IOS == nil || req.IOS.SKU == "" {
			return nil, NewPurchaseError(ErrCodeInvalidParameter, "request on ios requires the sku field")
		}
		return s.buyProductIOS(ctx, *req.IOS)

	case PlatformAndroid:
		if req.Android == nil || len(req.Android.SKUs) == 0 {
			return nil, NewPurchaseError(ErrCodeInvalidParameter, "request on android requires the skus field")
		}
		return s.buyItemAndroid(ctx, kind, *req.Android)
	}

	return nil, NewPurchaseError(ErrCodeDeveloperError, "unsupported platform")
}

func (s *Session) buyProductIOS(ctx context.Context, req PurchaseRequestIOS) ([]Purchase, error) {
	params, err := buildStoreKitParams(req)
	if err != nil {
		return nil, err
	}

	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	if _, ok := s.products.get(req.SKU); !ok {
		return nil, &PurchaseError{
			Name:      "[iapkit]: PurchaseError",
			Message:   "The sku was not found. Please fetch products first by calling getProducts",
			Code:      ErrCodeSkuNotFound,
			ProductID: req.SKU,
		}
	}

	s.logger.Debug("launching purchase", "sku", req.SKU, "autoFinish", req.AutoFinish)
	tx, err := s.storeKit.Purchase(ctx, params)
	if err != nil {
		perr := translateBridgeError(err, req.SKU)
		s.logger.Error("purchase failed", "sku", req.SKU, "code", perr.Code)
		return nil, perr
	}

	if req.AutoFinish {
		if err := s.storeKit.Finish(ctx, tx.TransactionID()); err != nil {
			return nil, translateBridgeError(err, req.SKU)
		}
		return nil, nil
	}

	s.mu.Lock()
	s.pending[tx.TransactionID()] = *tx
	s.mu.Unlock()

	purchase := purchaseFromTransactionIOS(*tx)
	s.listeners.emitPurchaseUpdated(purchase)
	return []Purchase{purchase}, nil
}

// buildStoreKitParams validates the opaque request tokens and parses them
// into the shapes StoreKit requires.
func buildStoreKitParams(req PurchaseRequestIOS) (StoreKitPurchaseParams, error) {
	params := StoreKitPurchaseParams{
		SKU:      req.SKU,
		Quantity: req.Quantity,
	}

	if req.AppAccountToken != "" {
		token, err := uuid.Parse(req.AppAccountToken)
		if err != nil {
			return params, NewPurchaseError(ErrCodeInvalidParameter, "appAccountToken must be a UUID string")
		}
		params.AppAccountToken = token
	}

	if offer := req.DiscountOffer; offer != nil {
		nonce, err := uuid.Parse(offer.Nonce)
		if err != nil {
			return params, NewPurchaseError(ErrCodeInvalidParameter, "discount offer nonce must be a UUID string")
		}
		params.Offer = &PromotionalOfferIOS{
			OfferID:   offer.Identifier,
			KeyID:     offer.KeyIdentifier,
			Nonce:     nonce,
			Signature: []byte(offer.Signature),
			Timestamp: offer.Timestamp,
		}
	}

	return params, nil
}

func (s *Session) buyItemAndroid(ctx context.Context, kind ProductKind, req PurchaseRequestAndroid) ([]Purchase, error) {
	// Validation failures are raised before any native call, and also pushed
	// on the error channel so listener-driven callers observe the abort.
	if kind == KindSubscription && len(req.SKUs) != len(req.OfferTokens) {
		debug := fmt.Sprintf("The number of skus (%d) must match: the number of offerTokens (%d) for Subscriptions", len(req.SKUs), len(req.OfferTokens))
		perr := &PurchaseError{
			Name:         "[iapkit]: PurchaseError",
			Message:      debug,
			DebugMessage: debug,
			Code:         ErrCodeSkuOfferMismatch,
		}
		s.listeners.emitPurchaseError(perr)
		return nil, perr
	}

	if !s.playBilling.HasForegroundActivity(ctx) {
		return nil, NewPurchaseError(ErrCodeActivityUnavailable, "there is no foreground activity to host the billing flow")
	}

	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	products := make([]BillingFlowProduct, 0, len(req.SKUs))
	for i, sku := range req.SKUs {
		cached, ok := s.products.get(sku)
		if !ok {
			debug := "The sku was not found. Please fetch products first by calling getProducts"
			perr := &PurchaseError{
				Name:         "[iapkit]: PurchaseError",
				Message:      debug,
				DebugMessage: debug,
				Code:         ErrCodeSkuNotFound,
				ProductID:    sku,
			}
			s.listeners.emitPurchaseError(perr)
			return nil, perr
		}
		details, ok := AsAndroid(cached)
		if !ok {
			return nil, NewPurchaseError(ErrCodeDeveloperError, fmt.Sprintf("cached product %s is not an android descriptor", sku))
		}

		flowProduct := BillingFlowProduct{Details: details}
		if kind == KindSubscription {
			flowProduct.OfferToken = req.OfferTokens[i]
		}
		products = append(products, flowProduct)
	}

	params := BillingFlowParams{
		Products:            products,
		ObfuscatedAccountID: req.ObfuscatedAccountID,
		ObfuscatedProfileID: req.ObfuscatedProfileID,
		IsOfferPersonalized: req.IsOfferPersonalized,
	}
	if req.PurchaseToken != "" {
		params.SubscriptionUpdate = &SubscriptionUpdateParams{
			OldPurchaseToken: req.PurchaseToken,
			ReplacementMode:  normalizeReplacementMode(req.ReplacementMode),
		}
	}

	s.logger.Debug("launching billing flow", "skus", req.SKUs, "kind", kind)
	result, err := s.playBilling.LaunchBillingFlow(ctx, params)
	if err != nil {
		perr := translateBridgeError(err, req.SKUs[0])
		s.listeners.emitPurchaseError(perr)
		return nil, perr
	}
	if result.ResponseCode != BillingResponseOK {
		perr := billingResultError(result)
		s.logger.Error("billing flow rejected", "code", perr.Code, "responseCode", result.ResponseCode)
		s.listeners.emitPurchaseError(perr)
		return nil, perr
	}

	// The purchase payload arrives on the purchase-updated channel.
	return nil, nil
}

// purchaseFromTransactionIOS normalizes a StoreKit transaction into the
// unified purchase shape.
func purchaseFromTransactionIOS(tx TransactionIOS) Purchase {
	kind := KindInAppPurchase
	if tx.ProductType == ProductTypeAutoRenewable {
		kind = KindSubscription
	}
	txCopy := tx
	return Purchase{
		Platform:        PlatformIOS,
		Kind:            kind,
		ProductID:       tx.ProductID,
		ProductIDs:      []string{tx.ProductID},
		TransactionID:   tx.TransactionID(),
		TransactionDate: tx.PurchaseDate,
		IOS:             &txCopy,
	}
}

// purchaseFromAndroid normalizes a Play Billing purchase record into the
// unified purchase shape.
func purchaseFromAndroid(raw PurchaseAndroid, kind ProductKind) Purchase {
	productID := ""
	if len(raw.Products) > 0 {
		productID = raw.Products[0]
	}
	rawCopy := raw
	return Purchase{
		Platform:           PlatformAndroid,
		Kind:               kind,
		ProductID:          productID,
		ProductIDs:         raw.Products,
		TransactionID:      raw.OrderID,
		TransactionDate:    raw.PurchaseTime,
		TransactionReceipt: raw.OriginalJSON,
		PurchaseToken:      raw.PurchaseToken,
		Android:            &rawCopy,
	}
}

func kindOfAndroid(raw PurchaseAndroid) ProductKind {
	if raw.IsAutoRenewing {
		return KindSubscription
	}
	return KindInAppPurchase
}
