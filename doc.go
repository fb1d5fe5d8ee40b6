// Package iapkit exposes native in-app-purchase capabilities (Apple StoreKit,
// Google Play Billing) behind one asynchronous request/response and
// event-subscription surface.
//
// # Overview
//
// The two store ecosystems model purchases differently: StoreKit hands the
// client a verified Transaction stream that must be explicitly finished, while
// Play Billing delivers Purchase objects through a push callback and requires
// acknowledgment or consumption within a store-enforced window. A Session
// reconciles both behind a single contract while keeping platform-specific
// detail reachable for callers that need it.
//
// A Session owns the connection lifecycle, the product cache, the pending
// transaction table, the listener registry, and the background task that
// consumes the native update feed. Every public operation re-establishes the
// connection transparently when it has been torn down, so callers never
// sequence InitConnection themselves.
//
// # Usage
//
//	session, err := iapkit.New(iapkit.WithStoreKit(bridge))
//	if err != nil {
//		return err
//	}
//	defer session.Close()
//
//	if _, err := session.InitConnection(ctx); err != nil {
//		return err
//	}
//
//	handle := session.OnPurchaseUpdated(func(p iapkit.Purchase) {
//		// deliver entitlement, then finish
//	})
//	defer handle.Remove()
//
//	products, err := session.GetProducts(ctx, []string{"sku.premium"})
//	if err != nil {
//		return err
//	}
//
//	purchases, err := session.RequestPurchase(ctx, iapkit.PurchaseRequest{
//		IOS: &iapkit.PurchaseRequestIOS{SKU: products[0].ProductID()},
//	})
//
// The native SDKs themselves are not reimplemented here. The embedding host
// supplies a StoreKitBridge or PlayBillingBridge implementation; this package
// owns sequencing, normalization, and the error taxonomy. Receipt validation
// against the store HTTP APIs lives in the receipts subpackage.
package iapkit
