package receipts

import (
	"context"
	"fmt"

	"github.com/awa/go-iap/playstore"
	"google.golang.org/api/androidpublisher/v3"
)

// GoogleValidator verifies Play Billing purchase tokens against the Google
// Play Developer API using a service account.
type GoogleValidator struct {
	client      *playstore.Client
	packageName string
}

// NewGoogleValidator creates a validator from service account JSON
// credentials. packageName is the application the tokens belong to.
func NewGoogleValidator(serviceAccountJSON []byte, packageName string) (*GoogleValidator, error) {
	if packageName == "" {
		return nil, fmt.Errorf("package name is required")
	}
	client, err := playstore.New(serviceAccountJSON)
	if err != nil {
		return nil, fmt.Errorf("create play client: %w", err)
	}
	return &GoogleValidator{client: client, packageName: packageName}, nil
}

// VerifyProduct checks a one-time product purchase token and returns the
// purchase record Google holds for it.
func (v *GoogleValidator) VerifyProduct(ctx context.Context, productID, purchaseToken string) (*androidpublisher.ProductPurchase, error) {
	if purchaseToken == "" {
		return nil, fmt.Errorf("purchase token is empty")
	}
	purchase, err := v.client.VerifyProduct(ctx, v.packageName, productID, purchaseToken)
	if err != nil {
		return nil, fmt.Errorf("verify product %s: %w", productID, err)
	}
	return purchase, nil
}

// VerifySubscription checks a subscription purchase token and returns the
// subscription record Google holds for it.
func (v *GoogleValidator) VerifySubscription(ctx context.Context, subscriptionID, purchaseToken string) (*androidpublisher.SubscriptionPurchase, error) {
	if purchaseToken == "" {
		return nil, fmt.Errorf("purchase token is empty")
	}
	sub, err := v.client.VerifySubscription(ctx, v.packageName, subscriptionID, purchaseToken)
	if err != nil {
		return nil, fmt.Errorf("verify subscription %s: %w", subscriptionID, err)
	}
	return sub, nil
}

// AcknowledgeProduct acknowledges a one-time purchase server-side, as an
// alternative to acknowledging through the device session.
func (v *GoogleValidator) AcknowledgeProduct(ctx context.Context, productID, purchaseToken, developerPayload string) error {
	if purchaseToken == "" {
		return fmt.Errorf("purchase token is empty")
	}
	if err := v.client.AcknowledgeProduct(ctx, v.packageName, productID, purchaseToken, developerPayload); err != nil {
		return fmt.Errorf("acknowledge product %s: %w", productID, err)
	}
	return nil
}
