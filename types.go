package iapkit

import (
	"strconv"
	"time"
)

// Platform identifies the native store ecosystem a session is bound to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ProductKind selects which store catalog an operation addresses.
type ProductKind string

const (
	KindInAppPurchase ProductKind = "inapp"
	KindSubscription  ProductKind = "subs"
)

// ConnectionState describes the session's native billing connection. It is
// owned exclusively by the session; callers observe it, they never set it.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Product is a platform-tagged product descriptor. Exactly one concrete type
// is behind it: *ProductIOS or *ProductAndroid. Callers that need
// platform-specific fields use the AsIOS/AsAndroid capability probes rather
// than a shared struct with optional fields.
type Product interface {
	// ProductID returns the store-assigned identifier (SKU).
	ProductID() string
	// DisplayPrice returns the localized, formatted price string.
	DisplayPrice() string
	// CurrencyCode returns the ISO currency code of the price.
	CurrencyCode() string
}

// AsIOS probes a Product for its StoreKit descriptor.
func AsIOS(p Product) (*ProductIOS, bool) {
	ios, ok := p.(*ProductIOS)
	return ios, ok
}

// AsAndroid probes a Product for its Play Billing descriptor.
func AsAndroid(p Product) (*ProductAndroid, bool) {
	a, ok := p.(*ProductAndroid)
	return a, ok
}

// ProductTypeIOS is StoreKit's product type.
type ProductTypeIOS string

const (
	ProductTypeConsumable    ProductTypeIOS = "consumable"
	ProductTypeNonConsumable ProductTypeIOS = "nonConsumable"
	ProductTypeAutoRenewable ProductTypeIOS = "autoRenewable"
	ProductTypeNonRenewable  ProductTypeIOS = "nonRenewable"
)

// SubscriptionPeriodIOS is a StoreKit subscription period unit.
type SubscriptionPeriodIOS string

const (
	PeriodDay   SubscriptionPeriodIOS = "DAY"
	PeriodWeek  SubscriptionPeriodIOS = "WEEK"
	PeriodMonth SubscriptionPeriodIOS = "MONTH"
	PeriodYear  SubscriptionPeriodIOS = "YEAR"
)

// PaymentModeIOS describes how an introductory/promotional offer is billed.
type PaymentModeIOS string

const (
	PaymentModeFreeTrial  PaymentModeIOS = "freeTrial"
	PaymentModePayAsYouGo PaymentModeIOS = "payAsYouGo"
	PaymentModePayUpFront PaymentModeIOS = "payUpFront"
)

// SubscriptionOfferIOS is one introductory or promotional pricing offer.
type SubscriptionOfferIOS struct {
	ID           string
	DisplayPrice string
	Price        float64
	PaymentMode  PaymentModeIOS
	Period       SubscriptionPeriodIOS
	PeriodCount  int
	Type         string // "introductory" or "promotional"
}

// SubscriptionInfoIOS is the offer descriptor tree attached to an
// auto-renewable StoreKit product.
type SubscriptionInfoIOS struct {
	IntroductoryOffer   *SubscriptionOfferIOS
	PromotionalOffers   []SubscriptionOfferIOS
	SubscriptionGroupID string
	SubscriptionPeriod  SubscriptionPeriodIOS
}

// ProductIOS is a StoreKit product descriptor. Price is a decimal amount in
// the store currency, matching StoreKit's representation.
type ProductIOS struct {
	ID                string
	DisplayName       string
	Description       string
	DisplayPriceText  string
	Price             float64
	Currency          string
	Type              ProductTypeIOS
	IsFamilyShareable bool
	Subscription      *SubscriptionInfoIOS
}

func (p *ProductIOS) ProductID() string    { return p.ID }
func (p *ProductIOS) DisplayPrice() string { return p.DisplayPriceText }
func (p *ProductIOS) CurrencyCode() string { return p.Currency }

// RecurrenceMode is Play Billing's pricing phase recurrence mode.
type RecurrenceMode int

const (
	RecurrenceInfinite     RecurrenceMode = 1
	RecurrenceFinite       RecurrenceMode = 2
	RecurrenceNonRecurring RecurrenceMode = 3
)

// PricingPhaseAndroid is one phase of a subscription offer's pricing
// schedule. PriceAmountMicros is the raw price in micro-units of the
// currency.
type PricingPhaseAndroid struct {
	FormattedPrice    string
	PriceCurrencyCode string
	BillingPeriod     string
	BillingCycleCount int
	PriceAmountMicros int64
	RecurrenceMode    RecurrenceMode
}

// SubscriptionOfferAndroid is one purchasable offer on a subscription
// product. OfferToken selects this offer at purchase time.
type SubscriptionOfferAndroid struct {
	BasePlanID    string
	OfferID       string
	OfferToken    string
	OfferTags     []string
	PricingPhases []PricingPhaseAndroid
}

// OneTimePurchaseOfferAndroid is the price of a non-subscription product.
type OneTimePurchaseOfferAndroid struct {
	PriceCurrencyCode string
	FormattedPrice    string
	PriceAmountMicros int64
}

// ProductAndroid is a Play Billing product descriptor.
type ProductAndroid struct {
	ID                   string
	Title                string
	Name                 string
	Description          string
	ProductType          ProductKind
	OneTimePurchaseOffer *OneTimePurchaseOfferAndroid
	SubscriptionOffers   []SubscriptionOfferAndroid
}

func (p *ProductAndroid) ProductID() string { return p.ID }

func (p *ProductAndroid) DisplayPrice() string {
	if p.OneTimePurchaseOffer != nil {
		return p.OneTimePurchaseOffer.FormattedPrice
	}
	if len(p.SubscriptionOffers) > 0 && len(p.SubscriptionOffers[0].PricingPhases) > 0 {
		return p.SubscriptionOffers[0].PricingPhases[0].FormattedPrice
	}
	return ""
}

func (p *ProductAndroid) CurrencyCode() string {
	if p.OneTimePurchaseOffer != nil {
		return p.OneTimePurchaseOffer.PriceCurrencyCode
	}
	if len(p.SubscriptionOffers) > 0 && len(p.SubscriptionOffers[0].PricingPhases) > 0 {
		return p.SubscriptionOffers[0].PricingPhases[0].PriceCurrencyCode
	}
	return ""
}

// TransactionIOS is a StoreKit transaction as delivered by the bridge.
// A transaction observed through the update stream, or returned by a
// purchase call that did not auto-finish, stays in the session's pending
// table until FinishTransaction is called; dropping it leaks the transaction
// at the native layer and the store re-delivers it on every launch.
type TransactionIOS struct {
	ID              int64
	ProductID       string
	ProductType     ProductTypeIOS
	PurchaseDate    time.Time
	ExpirationDate  *time.Time
	OriginalID      int64
	Quantity        int
	AppAccountToken string
}

// TransactionID returns the string form of the numeric transaction ID, the
// key used by the pending table and FinishTransaction.
func (t TransactionIOS) TransactionID() string {
	return strconv.FormatInt(t.ID, 10)
}

// PurchaseStateAndroid is Play Billing's purchase state.
type PurchaseStateAndroid int

const (
	PurchaseStateUnspecified PurchaseStateAndroid = 0
	PurchaseStatePurchased   PurchaseStateAndroid = 1
	PurchaseStatePending     PurchaseStateAndroid = 2
)

// PurchaseAndroid is a Play Billing purchase record as delivered by the
// bridge, either through the push callback or a ledger query.
type PurchaseAndroid struct {
	OrderID             string
	Products            []string
	PurchaseTime        time.Time
	OriginalJSON        string
	Signature           string
	PurchaseToken       string
	IsAutoRenewing      bool
	IsAcknowledged      bool
	PurchaseState       PurchaseStateAndroid
	PackageName         string
	DeveloperPayload    string
	ObfuscatedAccountID string
	ObfuscatedProfileID string
}

// Purchase is the unified purchase record. Common fields are always
// populated; exactly one of IOS or Android carries the platform-native
// detail (the other is nil, never zero-valued), so "absent" and "not
// applicable" stay distinguishable. TransactionID is what iOS needs
// to finalize; PurchaseToken is what Android needs to consume or
// acknowledge.
type Purchase struct {
	Platform           Platform
	Kind               ProductKind
	ProductID          string
	ProductIDs         []string
	TransactionID      string
	TransactionDate    time.Time
	TransactionReceipt string
	PurchaseToken      string

	IOS     *TransactionIOS
	Android *PurchaseAndroid
}

// PurchaseResult is the normalized outcome of a Play Billing acknowledge or
// consume call.
type PurchaseResult struct {
	ResponseCode  int       `json:"responseCode"`
	DebugMessage  string    `json:"debugMessage,omitempty"`
	Code          ErrorCode `json:"code"`
	Message       string    `json:"message"`
	PurchaseToken string    `json:"purchaseToken,omitempty"`
}

// BillingResult is the raw outcome of a Play Billing native call.
type BillingResult struct {
	ResponseCode int
	DebugMessage string
}

// ReplacementMode selects how an existing subscription is replaced during an
// upgrade/downgrade. Values mirror Play Billing's ReplacementMode constants.
// The zero value means no replacement mode is applied; unrecognized values
// silently fall back to ReplacementModeUnknown rather than failing the flow,
// matching the native enum's own fallback.
type ReplacementMode int

const (
	ReplacementModeUnknown         ReplacementMode = 0
	ReplacementWithTimeProration   ReplacementMode = 1
	ReplacementChargeProratedPrice ReplacementMode = 2
	ReplacementWithoutProration    ReplacementMode = 3
	ReplacementChargeFullPrice     ReplacementMode = 5
	ReplacementDeferred            ReplacementMode = 6
)

// normalizeReplacementMode maps any unrecognized value to the native enum's
// UNKNOWN_REPLACEMENT_MODE fallback.
func normalizeReplacementMode(m ReplacementMode) ReplacementMode {
	switch m {
	case ReplacementWithTimeProration,
		ReplacementChargeProratedPrice,
		ReplacementWithoutProration,
		ReplacementChargeFullPrice,
		ReplacementDeferred:
		return m
	default:
		return ReplacementModeUnknown
	}
}

// PurchaseRequest is the platform-shaped purchase descriptor union. The
// field matching the session's platform must be set: IOS carries a single
// SKU, Android carries a SKU list.
type PurchaseRequest struct {
	IOS     *PurchaseRequestIOS
	Android *PurchaseRequestAndroid
}

// PurchaseRequestIOS describes a StoreKit purchase.
type PurchaseRequestIOS struct {
	SKU string
	// Quantity of the product to buy; zero leaves it to the store default.
	Quantity int
	// AppAccountToken links the purchase to an app account. Must be a UUID
	// string when set.
	AppAccountToken string
	// DiscountOffer applies a signed promotional offer to the purchase.
	DiscountOffer *DiscountOfferIOS
	// AutoFinish finishes the transaction immediately after a successful
	// purchase. The transaction then never enters the pending table and
	// RequestPurchase returns no purchase record.
	AutoFinish bool
}

// DiscountOfferIOS is a signed promotional offer. Nonce must be a UUID
// string.
type DiscountOfferIOS struct {
	Identifier    string
	KeyIdentifier string
	Nonce         string
	Signature     string
	Timestamp     int64
}

// PurchaseRequestAndroid describes a Play Billing purchase flow.
type PurchaseRequestAndroid struct {
	SKUs []string
	// OfferTokens must match SKUs one-to-one for subscription requests; each
	// SKU needs its own offer token.
	OfferTokens         []string
	ObfuscatedAccountID string
	ObfuscatedProfileID string
	// PurchaseToken, when set, turns the flow into an upgrade/downgrade of
	// the subscription the token belongs to.
	PurchaseToken       string
	ReplacementMode     ReplacementMode
	IsOfferPersonalized bool
}

// PurchaseQueryOptions configures the ledger re-query operations.
type PurchaseQueryOptions struct {
	// OnlyIncludeActive restricts iOS results to active entitlements:
	// non-renewing products within one year of purchase, everything else
	// only when a matching product descriptor was previously fetched.
	// Android scopes the query natively and ignores this flag.
	OnlyIncludeActive bool
	// AlsoEmit additionally publishes each returned purchase on the
	// purchase-updated channel, in enumeration order.
	AlsoEmit bool
	// AutomaticallyFinishRestoredTransactions is accepted for wire
	// compatibility and not consumed.
	AutomaticallyFinishRestoredTransactions bool
}

// FinishTransactionArgs names the parameters of FinishTransaction.
type FinishTransactionArgs struct {
	Purchase Purchase
	// IsConsumable must be true on Android for this path; non-consumables
	// are acknowledged through AcknowledgePurchaseAndroid instead.
	IsConsumable bool
	// DeveloperPayload is forwarded to the native consume call.
	DeveloperPayload string
}

// RefundRequestStatus is the outcome of a StoreKit refund request sheet.
type RefundRequestStatus string

const (
	RefundRequestSuccess       RefundRequestStatus = "success"
	RefundRequestUserCancelled RefundRequestStatus = "userCancelled"
)

// SubscriptionStatusIOS is one entry of a StoreKit subscription status
// query. State carries StoreKit's raw renewal state value.
type SubscriptionStatusIOS struct {
	State       int
	RenewalInfo *RenewalInfoIOS
}

// RenewalInfoIOS carries the verified renewal information of a subscription.
// Nil when the native layer could not verify it.
type RenewalInfoIOS struct {
	WillAutoRenew             bool
	AutoRenewPreference       string
	CurrentProductID          string
	GracePeriodExpirationDate *time.Time
}
