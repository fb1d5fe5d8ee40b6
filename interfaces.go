package iapkit

import (
	"context"

	"github.com/google/uuid"
)

// TransactionScope selects which StoreKit transaction sequence a ledger
// query enumerates.
type TransactionScope int

const (
	// ScopeAll enumerates the full transaction history.
	ScopeAll TransactionScope = iota
	// ScopeCurrentEntitlements enumerates transactions the user is currently
	// entitled to.
	ScopeCurrentEntitlements
	// ScopeUnfinished enumerates transactions that were never finished.
	ScopeUnfinished
)

// TransactionUpdateIOS is one element of a StoreKit transaction enumeration
// or of the long-lived update feed. Err is set instead of Transaction when
// the native layer delivered an unverifiable transaction
// (ErrVerificationFailed) or another per-item failure.
type TransactionUpdateIOS struct {
	Transaction *TransactionIOS
	Err         error
}

// StoreKitPurchaseParams carries a fully validated StoreKit purchase
// invocation. The orchestrator builds it from a PurchaseRequestIOS after
// resolving the product from the cache.
type StoreKitPurchaseParams struct {
	SKU string
	// Quantity is applied only when positive.
	Quantity int
	// AppAccountToken is applied only when non-nil (uuid.Nil means unset).
	AppAccountToken uuid.UUID
	// Offer is the parsed promotional offer, nil when none was requested.
	Offer *PromotionalOfferIOS
}

// PromotionalOfferIOS is a DiscountOfferIOS with its opaque fields parsed
// into the shapes StoreKit requires.
type PromotionalOfferIOS struct {
	OfferID   string
	KeyID     string
	Nonce     uuid.UUID
	Signature []byte
	Timestamp int64
}

// StoreKitBridge is the boundary with the StoreKit native layer. The
// embedding host implements it; this package never reimplements store
// behavior, only sequences and normalizes it.
//
// Purchase blocks for the duration of the payment sheet and reports
// cancellation as ErrUserCancelled, a deferred payment as
// ErrPaymentDeferred, a missing foreground scene as ErrNoForegroundScene and
// an unverifiable result as ErrVerificationFailed. No timeout is imposed
// here; the native SDK owns timing.
type StoreKitBridge interface {
	// CanMakePayments reports whether the store allows payments on this
	// device/account.
	CanMakePayments(ctx context.Context) (bool, error)

	// FetchProducts queries product descriptors for the given identifiers.
	// Identifiers the store does not resolve are omitted, not errored.
	FetchProducts(ctx context.Context, skus []string) ([]*ProductIOS, error)

	// Purchase launches the payment sheet and returns the verified
	// transaction.
	Purchase(ctx context.Context, params StoreKitPurchaseParams) (*TransactionIOS, error)

	// Transactions enumerates the native transaction ledger for a scope.
	// Per-item verification failures are reported in-band via Err entries.
	Transactions(ctx context.Context, scope TransactionScope) ([]TransactionUpdateIOS, error)

	// Finish marks a transaction as finished at the store.
	Finish(ctx context.Context, transactionID string) error

	// TransactionUpdates opens the long-lived update feed carrying
	// unsolicited completions, renewals and restorations. The channel is
	// closed when ctx is cancelled or the native feed ends.
	TransactionUpdates(ctx context.Context) (<-chan TransactionUpdateIOS, error)

	Sync(ctx context.Context) error
	IsEligibleForIntroOffer(ctx context.Context, groupID string) (bool, error)
	SubscriptionStatus(ctx context.Context, sku string) ([]SubscriptionStatusIOS, error)

	// CurrentEntitlement returns the entitlement transaction for a product,
	// or nil when the user holds none.
	CurrentEntitlement(ctx context.Context, sku string) (*TransactionIOS, error)

	// LatestTransaction returns the most recent transaction for a product,
	// or nil when there is none.
	LatestTransaction(ctx context.Context, sku string) (*TransactionIOS, error)

	BeginRefundRequest(ctx context.Context, transactionID string) (RefundRequestStatus, error)
	ShowManageSubscriptions(ctx context.Context) error
	PresentCodeRedemptionSheet(ctx context.Context) error
}

// BillingFlowProduct pairs a resolved product descriptor with the offer
// token selecting one of its subscription offers.
type BillingFlowProduct struct {
	Details    *ProductAndroid
	OfferToken string
}

// SubscriptionUpdateParams describes an upgrade/downgrade of an existing
// subscription.
type SubscriptionUpdateParams struct {
	OldPurchaseToken string
	ReplacementMode  ReplacementMode
}

// BillingFlowParams is a fully validated Play Billing purchase flow
// invocation.
type BillingFlowParams struct {
	Products            []BillingFlowProduct
	ObfuscatedAccountID string
	ObfuscatedProfileID string
	IsOfferPersonalized bool
	SubscriptionUpdate  *SubscriptionUpdateParams
}

// PurchaseUpdateAndroid is one delivery of Play Billing's purchases-updated
// callback: a result code plus the purchase list, which is empty on error or
// on deferred-proration notifications.
type PurchaseUpdateAndroid struct {
	Result    BillingResult
	Purchases []PurchaseAndroid
}

// PlayBillingBridge is the boundary with the Play Billing native layer.
//
// Query and mutation methods report a non-OK native result by returning a
// *BillingResultError, which the session translates through the shared
// response-code table.
type PlayBillingBridge interface {
	// Available reports whether the platform billing service exists on this
	// device at all (e.g. Play services installed).
	Available(ctx context.Context) bool

	// StartConnection establishes the native billing client connection and
	// returns the setup result.
	StartConnection(ctx context.Context) (BillingResult, error)

	// EndConnection tears down the native billing client.
	EndConnection(ctx context.Context) error

	// QueryProductDetails queries descriptors for the given identifiers and
	// kind. Unresolved identifiers are omitted.
	QueryProductDetails(ctx context.Context, kind ProductKind, skus []string) ([]*ProductAndroid, error)

	// QueryPurchases returns the user's current purchases of a kind.
	QueryPurchases(ctx context.Context, kind ProductKind) ([]PurchaseAndroid, error)

	// QueryPurchaseHistory returns the full historical purchase records of a
	// kind.
	QueryPurchaseHistory(ctx context.Context, kind ProductKind) ([]PurchaseAndroid, error)

	// HasForegroundActivity reports whether a foreground UI context exists
	// to host the billing flow.
	HasForegroundActivity(ctx context.Context) bool

	// LaunchBillingFlow starts the native purchase flow. The returned result
	// only covers the launch; the purchase outcome arrives asynchronously on
	// PurchaseUpdates.
	LaunchBillingFlow(ctx context.Context, params BillingFlowParams) (BillingResult, error)

	// Acknowledge acknowledges a non-consumable purchase by token.
	Acknowledge(ctx context.Context, purchaseToken string) (BillingResult, error)

	// Consume consumes a consumable purchase by token, returning the token
	// echoed by the store. developerPayload may be empty.
	Consume(ctx context.Context, purchaseToken, developerPayload string) (BillingResult, string, error)

	// PurchaseUpdates opens the push stream backing the purchases-updated
	// callback. The channel is closed when ctx is cancelled or the native
	// connection drops.
	PurchaseUpdates(ctx context.Context) (<-chan PurchaseUpdateAndroid, error)

	// PackageName returns the application package the billing client is
	// bound to.
	PackageName() string
}
