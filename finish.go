package iapkit

import (
	"context"
	"fmt"
)

// FinishTransaction settles a delivered purchase with the store. On platform
// A this finishes the pending StoreKit transaction and returns (nil, nil) on
// success. On Android a consumable is consumed and the normalized result
// is returned; non-consumables must go through AcknowledgePurchaseAndroid.
//
// Finishing is idempotent at the session level: a transaction can be settled
// once, a second concurrent or repeated call fails with E_INVALID_TRANSACTION.
func (s *Session) FinishTransaction(ctx context.Context, args FinishTransactionArgs) (*PurchaseResult, error) {
	switch s.platform {
	case PlatformIOS:
		if err := s.finishTransactionIOS(ctx, args.Purchase.TransactionID); err != nil {
			return nil, err
		}
		return nil, nil

	case PlatformAndroid:
		return s.finishTransactionAndroid(ctx, args)
	}
	return nil, NewPurchaseError(ErrCodeDeveloperError, "unsupported platform")
}

func (s *Session) finishTransactionIOS(ctx context.Context, transactionID string) error {
	if transactionID == "" {
		return NewPurchaseError(ErrCodeInvalidParameter, "purchase must carry the transactionId field")
	}

	// Claim the pending entry before the native call so concurrent callers
	// settle a transaction at most once.
	s.mu.Lock()
	tx, ok := s.pending[transactionID]
	if !ok {
		s.mu.Unlock()
		return NewPurchaseError(ErrCodeInvalidTransaction, fmt.Sprintf("transaction %s is not pending; it was never observed or already finished", transactionID))
	}
	delete(s.pending, transactionID)
	s.mu.Unlock()

	if err := s.storeKit.Finish(ctx, transactionID); err != nil {
		s.mu.Lock()
		s.pending[transactionID] = tx
		s.mu.Unlock()
		return translateBridgeError(err, tx.ProductID)
	}

	s.logger.Debug("transaction finished", "transactionId", transactionID)
	return nil
}

func (s *Session) finishTransactionAndroid(ctx context.Context, args FinishTransactionArgs) (*PurchaseResult, error) {
	token := args.Purchase.PurchaseToken
	if token == "" {
		return nil, NewPurchaseError(ErrCodeInvalidParameter, "purchase must carry the purchaseToken field")
	}
	if !args.IsConsumable {
		return nil, NewPurchaseError(ErrCodeDeveloperError, "non-consumable purchases are settled with acknowledgePurchaseAndroid")
	}

	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	result, outToken, err := s.playBilling.Consume(ctx, token, args.DeveloperPayload)
	if err != nil {
		return nil, translateBridgeError(err, args.Purchase.ProductID)
	}
	if result.ResponseCode != BillingResponseOK {
		return nil, billingResultError(result)
	}

	code, message := billingResponseData(result.ResponseCode)
	s.logger.Debug("purchase consumed", "purchaseToken", outToken)
	return &PurchaseResult{
		ResponseCode:  result.ResponseCode,
		DebugMessage:  result.DebugMessage,
		Code:          code,
		Message:       message,
		PurchaseToken: outToken,
	}, nil
}

// AcknowledgePurchaseAndroid acknowledges a non-consumable purchase or
// subscription. Unacknowledged purchases are refunded by the store after a
// grace period, so every delivered non-consumable must pass through here. On
// an iOS session this is a no-op returning (nil, nil).
func (s *Session) AcknowledgePurchaseAndroid(ctx context.Context, purchaseToken string) (*PurchaseResult, error) {
	if s.platform != PlatformAndroid {
		return nil, nil
	}
	if purchaseToken == "" {
		return nil, NewPurchaseError(ErrCodeInvalidParameter, "purchaseToken is required")
	}

	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	result, err := s.playBilling.Acknowledge(ctx, purchaseToken)
	if err != nil {
		return nil, translateBridgeError(err, "")
	}
	if result.ResponseCode != BillingResponseOK {
		return nil, billingResultError(result)
	}

	code, message := billingResponseData(result.ResponseCode)
	s.logger.Debug("purchase acknowledged", "purchaseToken", purchaseToken)
	return &PurchaseResult{
		ResponseCode: result.ResponseCode,
		DebugMessage: result.DebugMessage,
		Code:         code,
		Message:      message,
	}, nil
}
