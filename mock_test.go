package iapkit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Mock StoreKit bridge for testing
type mockStoreKit struct {
	mu sync.Mutex

	canMakePayments    func(ctx context.Context) (bool, error)
	fetchProducts      func(ctx context.Context, skus []string) ([]*ProductIOS, error)
	purchase           func(ctx context.Context, params StoreKitPurchaseParams) (*TransactionIOS, error)
	transactions       func(ctx context.Context, scope TransactionScope) ([]TransactionUpdateIOS, error)
	finish             func(ctx context.Context, transactionID string) error
	currentEntitlement func(ctx context.Context, sku string) (*TransactionIOS, error)
	latestTransaction  func(ctx context.Context, sku string) (*TransactionIOS, error)

	updates chan TransactionUpdateIOS

	fetchCalls    int
	purchaseCalls int
	finishCalls   int
	finishedIDs   []string
}

func newMockStoreKit() *mockStoreKit {
	return &mockStoreKit{updates: make(chan TransactionUpdateIOS, 8)}
}

func (m *mockStoreKit) CanMakePayments(ctx context.Context) (bool, error) {
	if m.canMakePayments != nil {
		return m.canMakePayments(ctx)
	}
	return true, nil
}

func (m *mockStoreKit) FetchProducts(ctx context.Context, skus []string) ([]*ProductIOS, error) {
	m.mu.Lock()
	m.fetchCalls++
	m.mu.Unlock()
	if m.fetchProducts != nil {
		return m.fetchProducts(ctx, skus)
	}
	products := make([]*ProductIOS, 0, len(skus))
	for _, sku := range skus {
		products = append(products, &ProductIOS{
			ID:               sku,
			DisplayPriceText: "$0.99",
			Price:            0.99,
			Currency:         "USD",
			Type:             ProductTypeConsumable,
		})
	}
	return products, nil
}

func (m *mockStoreKit) Purchase(ctx context.Context, params StoreKitPurchaseParams) (*TransactionIOS, error) {
	m.mu.Lock()
	m.purchaseCalls++
	m.mu.Unlock()
	if m.purchase != nil {
		return m.purchase(ctx, params)
	}
	return &TransactionIOS{
		ID:           1001,
		ProductID:    params.SKU,
		ProductType:  ProductTypeConsumable,
		PurchaseDate: time.Now(),
		Quantity:     1,
	}, nil
}

func (m *mockStoreKit) Transactions(ctx context.Context, scope TransactionScope) ([]TransactionUpdateIOS, error) {
	if m.transactions != nil {
		return m.transactions(ctx, scope)
	}
	return nil, nil
}

func (m *mockStoreKit) Finish(ctx context.Context, transactionID string) error {
	m.mu.Lock()
	m.finishCalls++
	m.finishedIDs = append(m.finishedIDs, transactionID)
	m.mu.Unlock()
	if m.finish != nil {
		return m.finish(ctx, transactionID)
	}
	return nil
}

func (m *mockStoreKit) TransactionUpdates(ctx context.Context) (<-chan TransactionUpdateIOS, error) {
	return m.updates, nil
}

func (m *mockStoreKit) Sync(ctx context.Context) error { return nil }

func (m *mockStoreKit) IsEligibleForIntroOffer(ctx context.Context, groupID string) (bool, error) {
	return true, nil
}

func (m *mockStoreKit) SubscriptionStatus(ctx context.Context, sku string) ([]SubscriptionStatusIOS, error) {
	return nil, nil
}

func (m *mockStoreKit) CurrentEntitlement(ctx context.Context, sku string) (*TransactionIOS, error) {
	if m.currentEntitlement != nil {
		return m.currentEntitlement(ctx, sku)
	}
	return nil, nil
}

func (m *mockStoreKit) LatestTransaction(ctx context.Context, sku string) (*TransactionIOS, error) {
	if m.latestTransaction != nil {
		return m.latestTransaction(ctx, sku)
	}
	return nil, nil
}

func (m *mockStoreKit) BeginRefundRequest(ctx context.Context, transactionID string) (RefundRequestStatus, error) {
	return RefundRequestSuccess, nil
}

func (m *mockStoreKit) ShowManageSubscriptions(ctx context.Context) error    { return nil }
func (m *mockStoreKit) PresentCodeRedemptionSheet(ctx context.Context) error { return nil }

// Mock Play Billing bridge for testing
type mockPlayBilling struct {
	mu sync.Mutex

	available            func(ctx context.Context) bool
	startConnection      func(ctx context.Context) (BillingResult, error)
	queryProductDetails  func(ctx context.Context, kind ProductKind, skus []string) ([]*ProductAndroid, error)
	queryPurchases       func(ctx context.Context, kind ProductKind) ([]PurchaseAndroid, error)
	queryPurchaseHistory func(ctx context.Context, kind ProductKind) ([]PurchaseAndroid, error)
	hasForeground        func(ctx context.Context) bool
	launchBillingFlow    func(ctx context.Context, params BillingFlowParams) (BillingResult, error)
	acknowledge          func(ctx context.Context, purchaseToken string) (BillingResult, error)
	consume              func(ctx context.Context, purchaseToken, developerPayload string) (BillingResult, string, error)

	updates chan PurchaseUpdateAndroid
	feedCtx context.Context

	startCalls       int
	endCalls         int
	queryCalls       int
	launchCalls      int
	acknowledgeCalls int
	consumeCalls     int
	lastFlowParams   BillingFlowParams
}

func newMockPlayBilling() *mockPlayBilling {
	return &mockPlayBilling{updates: make(chan PurchaseUpdateAndroid, 8)}
}

func (m *mockPlayBilling) Available(ctx context.Context) bool {
	if m.available != nil {
		return m.available(ctx)
	}
	return true
}

func (m *mockPlayBilling) StartConnection(ctx context.Context) (BillingResult, error) {
	m.mu.Lock()
	m.startCalls++
	m.mu.Unlock()
	if m.startConnection != nil {
		return m.startConnection(ctx)
	}
	return BillingResult{ResponseCode: BillingResponseOK}, nil
}

func (m *mockPlayBilling) EndConnection(ctx context.Context) error {
	m.mu.Lock()
	m.endCalls++
	m.mu.Unlock()
	return nil
}

func (m *mockPlayBilling) QueryProductDetails(ctx context.Context, kind ProductKind, skus []string) ([]*ProductAndroid, error) {
	m.mu.Lock()
	m.queryCalls++
	m.mu.Unlock()
	if m.queryProductDetails != nil {
		return m.queryProductDetails(ctx, kind, skus)
	}
	products := make([]*ProductAndroid, 0, len(skus))
	for _, sku := range skus {
		p := &ProductAndroid{ID: sku, ProductType: kind}
		if kind == KindSubscription {
			p.SubscriptionOffers = []SubscriptionOfferAndroid{{
				BasePlanID: "base",
				OfferToken: "offer-" + sku,
				PricingPhases: []PricingPhaseAndroid{{
					FormattedPrice:    "$4.99",
					PriceCurrencyCode: "USD",
					PriceAmountMicros: 4990000,
					RecurrenceMode:    RecurrenceInfinite,
				}},
			}}
		} else {
			p.OneTimePurchaseOffer = &OneTimePurchaseOfferAndroid{
				PriceCurrencyCode: "USD",
				FormattedPrice:    "$0.99",
				PriceAmountMicros: 990000,
			}
		}
		products = append(products, p)
	}
	return products, nil
}

func (m *mockPlayBilling) QueryPurchases(ctx context.Context, kind ProductKind) ([]PurchaseAndroid, error) {
	if m.queryPurchases != nil {
		return m.queryPurchases(ctx, kind)
	}
	return nil, nil
}

func (m *mockPlayBilling) QueryPurchaseHistory(ctx context.Context, kind ProductKind) ([]PurchaseAndroid, error) {
	if m.queryPurchaseHistory != nil {
		return m.queryPurchaseHistory(ctx, kind)
	}
	return nil, nil
}

func (m *mockPlayBilling) HasForegroundActivity(ctx context.Context) bool {
	if m.hasForeground != nil {
		return m.hasForeground(ctx)
	}
	return true
}

func (m *mockPlayBilling) LaunchBillingFlow(ctx context.Context, params BillingFlowParams) (BillingResult, error) {
	m.mu.Lock()
	m.launchCalls++
	m.lastFlowParams = params
	m.mu.Unlock()
	if m.launchBillingFlow != nil {
		return m.launchBillingFlow(ctx, params)
	}
	return BillingResult{ResponseCode: BillingResponseOK}, nil
}

func (m *mockPlayBilling) Acknowledge(ctx context.Context, purchaseToken string) (BillingResult, error) {
	m.mu.Lock()
	m.acknowledgeCalls++
	m.mu.Unlock()
	if m.acknowledge != nil {
		return m.acknowledge(ctx, purchaseToken)
	}
	return BillingResult{ResponseCode: BillingResponseOK}, nil
}

func (m *mockPlayBilling) Consume(ctx context.Context, purchaseToken, developerPayload string) (BillingResult, string, error) {
	m.mu.Lock()
	m.consumeCalls++
	m.mu.Unlock()
	if m.consume != nil {
		return m.consume(ctx, purchaseToken, developerPayload)
	}
	return BillingResult{ResponseCode: BillingResponseOK}, purchaseToken, nil
}

func (m *mockPlayBilling) PurchaseUpdates(ctx context.Context) (<-chan PurchaseUpdateAndroid, error) {
	m.mu.Lock()
	m.feedCtx = ctx
	m.mu.Unlock()
	return m.updates, nil
}

func (m *mockPlayBilling) feedContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feedCtx
}

func (m *mockPlayBilling) PackageName() string { return "com.example.app" }

func newTestSessionIOS(t *testing.T) (*Session, *mockStoreKit) {
	t.Helper()
	bridge := newMockStoreKit()
	s, err := New(WithStoreKit(bridge))
	if err != nil {
		t.Fatalf("Unexpected error creating session: %v", err)
	}
	return s, bridge
}

func newTestSessionAndroid(t *testing.T) (*Session, *mockPlayBilling) {
	t.Helper()
	bridge := newMockPlayBilling()
	s, err := New(WithPlayBilling(bridge))
	if err != nil {
		t.Fatalf("Unexpected error creating session: %v", err)
	}
	return s, bridge
}
