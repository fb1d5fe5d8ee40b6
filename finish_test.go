package iapkit

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func buyPending(t *testing.T, s *Session) Purchase {
	t.Helper()
	ctx := context.Background()
	if _, err := s.GetProducts(ctx, []string{"sku.a"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	purchases, err := s.RequestPurchase(ctx, PurchaseRequest{IOS: &PurchaseRequestIOS{SKU: "sku.a"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(purchases) != 1 {
		t.Fatalf("Expected 1 purchase, got %d", len(purchases))
	}
	return purchases[0]
}

func TestFinishTransactionIOS(t *testing.T) {
	s, bridge := newTestSessionIOS(t)
	defer s.Close()
	purchase := buyPending(t, s)

	result, err := s.FinishTransaction(context.Background(), FinishTransactionArgs{Purchase: purchase})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("Expected nil result on ios, got %+v", result)
	}
	if bridge.finishCalls != 1 {
		t.Fatalf("Expected 1 Finish call, got %d", bridge.finishCalls)
	}
	if len(s.PendingTransactionsIOS()) != 0 {
		t.Fatal("Expected pending table to be drained")
	}
}

func TestFinishTransactionTwice(t *testing.T) {
	s, _ := newTestSessionIOS(t)
	defer s.Close()
	purchase := buyPending(t, s)
	ctx := context.Background()

	if _, err := s.FinishTransaction(ctx, FinishTransactionArgs{Purchase: purchase}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, err := s.FinishTransaction(ctx, FinishTransactionArgs{Purchase: purchase})
	perr, ok := AsPurchaseError(err)
	if !ok {
		t.Fatalf("Expected PurchaseError, got %v", err)
	}
	if perr.Code != ErrCodeInvalidTransaction {
		t.Fatalf("Expected %s, got %s", ErrCodeInvalidTransaction, perr.Code)
	}
}

func TestFinishTransactionConcurrent(t *testing.T) {
	s, bridge := newTestSessionIOS(t)
	defer s.Close()
	purchase := buyPending(t, s)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.FinishTransaction(context.Background(), FinishTransactionArgs{Purchase: purchase})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		perr, ok := AsPurchaseError(err)
		if !ok || perr.Code != ErrCodeInvalidTransaction {
			t.Fatalf("Expected %s for losers, got %v", ErrCodeInvalidTransaction, err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("Expected exactly one caller to settle the transaction, got %d", succeeded)
	}
	if bridge.finishCalls != 1 {
		t.Fatalf("Expected 1 native Finish call, got %d", bridge.finishCalls)
	}
}

func TestFinishTransactionRestoresPendingOnFailure(t *testing.T) {
	s, bridge := newTestSessionIOS(t)
	defer s.Close()
	purchase := buyPending(t, s)
	bridge.finish = func(ctx context.Context, transactionID string) error {
		return errors.New("store unreachable")
	}

	_, err := s.FinishTransaction(context.Background(), FinishTransactionArgs{Purchase: purchase})
	if err == nil {
		t.Fatal("Expected error when the native finish fails")
	}
	// The claim must be rolled back so the caller can retry
	if len(s.PendingTransactionsIOS()) != 1 {
		t.Fatal("Expected transaction to return to the pending table")
	}

	bridge.finish = nil
	if _, err := s.FinishTransaction(context.Background(), FinishTransactionArgs{Purchase: purchase}); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
}

func TestFinishTransactionMissingID(t *testing.T) {
	s, _ := newTestSessionIOS(t)
	defer s.Close()

	_, err := s.FinishTransaction(context.Background(), FinishTransactionArgs{Purchase: Purchase{}})
	perr, ok := AsPurchaseError(err)
	if !ok {
		t.Fatalf("Expected PurchaseError, got %v", err)
	}
	if perr.Code != ErrCodeInvalidParameter {
		t.Fatalf("Expected %s, got %s", ErrCodeInvalidParameter, perr.Code)
	}
}

func TestFinishTransactionConsumesAndroid(t *testing.T) {
	s, bridge := newTestSessionAndroid(t)
	defer s.Close()

	result, err := s.FinishTransaction(context.Background(), FinishTransactionArgs{
		Purchase:     Purchase{Platform: PlatformAndroid, PurchaseToken: "token-1"},
		IsConsumable: true,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("Expected a PurchaseResult")
	}
	if result.ResponseCode != BillingResponseOK {
		t.Fatalf("Expected responseCode 0, got %d", result.ResponseCode)
	}
	if result.PurchaseToken != "token-1" {
		t.Fatalf("Expected echoed token, got %s", result.PurchaseToken)
	}
	if bridge.consumeCalls != 1 {
		t.Fatalf("Expected 1 Consume call, got %d", bridge.consumeCalls)
	}
}

func TestFinishTransactionRejectsNonConsumable(t *testing.T) {
	s, bridge := newTestSessionAndroid(t)
	defer s.Close()

	_, err := s.FinishTransaction(context.Background(), FinishTransactionArgs{
		Purchase: Purchase{Platform: PlatformAndroid, PurchaseToken: "token-1"},
	})
	perr, ok := AsPurchaseError(err)
	if !ok {
		t.Fatalf("Expected PurchaseError, got %v", err)
	}
	if perr.Code != ErrCodeDeveloperError {
		t.Fatalf("Expected %s, got %s", ErrCodeDeveloperError, perr.Code)
	}
	if bridge.consumeCalls != 0 {
		t.Fatalf("Expected no Consume calls, got %d", bridge.consumeCalls)
	}
}

func TestAcknowledgePurchaseAndroid(t *testing.T) {
	s, bridge := newTestSessionAndroid(t)
	defer s.Close()

	result, err := s.AcknowledgePurchaseAndroid(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result == nil || result.ResponseCode != BillingResponseOK {
		t.Fatalf("Expected OK result, got %+v", result)
	}
	if bridge.acknowledgeCalls != 1 {
		t.Fatalf("Expected 1 Acknowledge call, got %d", bridge.acknowledgeCalls)
	}
}

func TestAcknowledgePurchaseAndroidFailure(t *testing.T) {
	s, bridge := newTestSessionAndroid(t)
	defer s.Close()
	bridge.acknowledge = func(ctx context.Context, purchaseToken string) (BillingResult, error) {
		return BillingResult{ResponseCode: BillingResponseItemNotOwned, DebugMessage: "not owned"}, nil
	}

	_, err := s.AcknowledgePurchaseAndroid(context.Background(), "token-1")
	perr, ok := AsPurchaseError(err)
	if !ok {
		t.Fatalf("Expected PurchaseError, got %v", err)
	}
	if perr.ResponseCode != BillingResponseItemNotOwned {
		t.Fatalf("Expected responseCode %d, got %d", BillingResponseItemNotOwned, perr.ResponseCode)
	}
}

func TestConsumePurchaseAndroid(t *testing.T) {
	s, bridge := newTestSessionAndroid(t)
	defer s.Close()

	result, err := s.ConsumePurchaseAndroid(context.Background(), "token-9", "payload")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result == nil || result.PurchaseToken != "token-9" {
		t.Fatalf("Expected echoed token, got %+v", result)
	}
	if bridge.consumeCalls != 1 {
		t.Fatalf("Expected 1 Consume call, got %d", bridge.consumeCalls)
	}

	if _, err := s.ConsumePurchaseAndroid(context.Background(), "", ""); err == nil {
		t.Fatal("Expected error for empty token")
	}
}

func TestAcknowledgeOnIOSIsNoop(t *testing.T) {
	s, _ := newTestSessionIOS(t)
	defer s.Close()

	result, err := s.AcknowledgePurchaseAndroid(context.Background(), "whatever")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("Expected nil result on ios, got %+v", result)
	}
}
