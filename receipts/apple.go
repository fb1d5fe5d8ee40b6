// Package receipts provides server-side verification of store receipts and
// purchase tokens. It complements the session API: the device-side flow
// produces receipts and tokens, and a backend validates them here before
// granting entitlements.
package receipts

import (
	"context"
	"fmt"
	"net/http"

	"github.com/awa/go-iap/appstore"
)

// AppleValidator verifies App Store receipts through Apple's verifyReceipt
// endpoint. The underlying client retries against the sandbox environment
// when Apple reports a sandbox receipt sent to production.
type AppleValidator struct {
	client *appstore.Client
	// sharedSecret is the app-specific shared secret, required for receipts
	// containing auto-renewable subscriptions.
	sharedSecret string

	excludeOldTransactions bool
}

// AppleOption configures an AppleValidator.
type AppleOption func(*AppleValidator)

// WithSharedSecret sets the app-specific shared secret sent with every
// verification request.
func WithSharedSecret(secret string) AppleOption {
	return func(v *AppleValidator) {
		v.sharedSecret = secret
	}
}

// WithExcludeOldTransactions asks Apple to return only the latest renewal
// transaction per subscription, shrinking the response for users with a long
// renewal history.
func WithExcludeOldTransactions() AppleOption {
	return func(v *AppleValidator) {
		v.excludeOldTransactions = true
	}
}

// WithHTTPClient replaces the HTTP client used for the verification calls.
func WithHTTPClient(client *http.Client) AppleOption {
	return func(v *AppleValidator) {
		v.client = appstore.NewWithClient(client)
	}
}

// NewAppleValidator creates a validator with the default client.
func NewAppleValidator(opts ...AppleOption) *AppleValidator {
	v := &AppleValidator{client: appstore.New()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify sends a base64 receipt to Apple and returns the decoded response.
// A non-zero status from Apple is returned as an error alongside the
// response body, so callers can still inspect the raw payload.
func (v *AppleValidator) Verify(ctx context.Context, receiptData string) (*appstore.IAPResponse, error) {
	if receiptData == "" {
		return nil, fmt.Errorf("receipt data is empty")
	}

	req := appstore.IAPRequest{
		ReceiptData:            receiptData,
		Password:               v.sharedSecret,
		ExcludeOldTransactions: v.excludeOldTransactions,
	}

	resp := &appstore.IAPResponse{}
	if err := v.client.Verify(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("verify receipt: %w", err)
	}
	if err := appstore.HandleError(resp.Status); err != nil {
		return resp, fmt.Errorf("receipt rejected: %w", err)
	}
	return resp, nil
}
