package iapkit

import (
	"context"
	"net/url"
)

// SubscriptionManagementURLAndroid returns the Play Store deep link for
// managing a subscription. With an empty sku the link opens the account's
// subscription list.
func (s *Session) SubscriptionManagementURLAndroid(sku string) (string, error) {
	if err := s.requirePlatform(PlatformAndroid); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("package", s.playBilling.PackageName())
	if sku != "" {
		q.Set("sku", sku)
	}
	u := url.URL{
		Scheme:   "https",
		Host:     "play.google.com",
		Path:     "/store/account/subscriptions",
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// ConsumePurchaseAndroid consumes a purchase directly by token, without going
// through FinishTransaction. Useful for recovering purchases that were never
// delivered, e.g. tokens recovered from GetAvailablePurchases.
func (s *Session) ConsumePurchaseAndroid(ctx context.Context, purchaseToken, developerPayload string) (*PurchaseResult, error) {
	if err := s.requirePlatform(PlatformAndroid); err != nil {
		return nil, err
	}
	if purchaseToken == "" {
		return nil, NewPurchaseError(ErrCodeInvalidParameter, "purchaseToken is required")
	}

	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	result, outToken, err := s.playBilling.Consume(ctx, purchaseToken, developerPayload)
	if err != nil {
		return nil, translateBridgeError(err, "")
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
