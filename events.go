package iapkit

import (
	"context"
	"sync"
)

// PurchaseUpdatedListener receives every purchase the store reports, whether
// it originated from a local request or arrived out of band (renewals,
// deferred approvals, purchases made on another device).
type PurchaseUpdatedListener func(Purchase)

// PurchaseErrorListener receives every normalized purchase failure.
type PurchaseErrorListener func(*PurchaseError)

// TransactionEventIOS is one entry of the StoreKit transaction stream.
// Exactly one of Transaction or Err is set.
type TransactionEventIOS struct {
	Transaction *TransactionIOS
	Err         *PurchaseError
}

// TransactionUpdatedListenerIOS receives raw StoreKit transaction stream
// entries, including ones whose verification failed. It never fires on an
// Android session.
type TransactionUpdatedListenerIOS func(TransactionEventIOS)

// ListenerHandle detaches a registered listener. Remove is idempotent and
// safe to call concurrently with event dispatch; after it returns the
// listener may still observe at most one in-flight event.
type ListenerHandle struct {
	once   sync.Once
	remove func()
}

// Remove unsubscribes the listener.
func (h *ListenerHandle) Remove() {
	h.once.Do(h.remove)
}

type purchaseUpdatedEntry struct {
	id int64
	fn PurchaseUpdatedListener
}

type purchaseErrorEntry struct {
	id int64
	fn PurchaseErrorListener
}

type transactionEntry struct {
	id int64
	fn TransactionUpdatedListenerIOS
}

// listenerRegistry fans events out to subscribers in registration order. The
// lock guards only the slices; listeners are invoked on a snapshot so a
// callback may register or remove listeners without deadlocking.
type listenerRegistry struct {
	mu           sync.Mutex
	nextID       int64
	updated      []purchaseUpdatedEntry
	errors       []purchaseErrorEntry
	transactions []transactionEntry
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{}
}

func (r *listenerRegistry) addPurchaseUpdated(fn PurchaseUpdatedListener) *ListenerHandle {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.updated = append(r.updated, purchaseUpdatedEntry{id: id, fn: fn})
	r.mu.Unlock()

	return &ListenerHandle{remove: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.updated {
			if e.id == id {
				r.updated = append(r.updated[:i], r.updated[i+1:]...)
				return
			}
		}
	}}
}

func (r *listenerRegistry) addPurchaseError(fn PurchaseErrorListener) *ListenerHandle {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.errors = append(r.errors, purchaseErrorEntry{id: id, fn: fn})
	r.mu.Unlock()

	return &ListenerHandle{remove: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.errors {
			if e.id == id {
				r.errors = append(r.errors[:i], r.errors[i+1:]...)
				return
			}
		}
	}}
}

func (r *listenerRegistry) addTransactionIOS(fn TransactionUpdatedListenerIOS) *ListenerHandle {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.transactions = append(r.transactions, transactionEntry{id: id, fn: fn})
	r.mu.Unlock()

	return &ListenerHandle{remove: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.transactions {
			if e.id == id {
				r.transactions = append(r.transactions[:i], r.transactions[i+1:]...)
				return
			}
		}
	}}
}

func (r *listenerRegistry) emitPurchaseUpdated(p Purchase) {
	r.mu.Lock()
	snapshot := make([]purchaseUpdatedEntry, len(r.updated))
	copy(snapshot, r.updated)
	r.mu.Unlock()

	for _, e := range snapshot {
		e.fn(p)
	}
}

func (r *listenerRegistry) emitPurchaseError(perr *PurchaseError) {
	r.mu.Lock()
	snapshot := make([]purchaseErrorEntry, len(r.errors))
	copy(snapshot, r.errors)
	r.mu.Unlock()

	for _, e := range snapshot {
		e.fn(perr)
	}
}

func (r *listenerRegistry) emitTransactionIOS(ev TransactionEventIOS) {
	r.mu.Lock()
	snapshot := make([]transactionEntry, len(r.transactions))
	copy(snapshot, r.transactions)
	r.mu.Unlock()

	for _, e := range snapshot {
		e.fn(ev)
	}
}

// OnPurchaseUpdated subscribes to successful purchase notifications. The
// listener fires for purchases returned by local requests as well as ones
// pushed by the store after the fact.
func (s *Session) OnPurchaseUpdated(fn PurchaseUpdatedListener) *ListenerHandle {
	return s.listeners.addPurchaseUpdated(fn)
}

// OnPurchaseError subscribes to normalized purchase failures.
func (s *Session) OnPurchaseError(fn PurchaseErrorListener) *ListenerHandle {
	return s.listeners.addPurchaseError(fn)
}

// OnTransactionUpdatedIOS subscribes to the raw StoreKit transaction stream.
// Registration is accepted on any session but the listener only ever fires
// on an iOS one.
func (s *Session) OnTransactionUpdatedIOS(fn TransactionUpdatedListenerIOS) *ListenerHandle {
	return s.listeners.addTransactionIOS(fn)
}

// consumeTransactionUpdates drains the StoreKit update stream. Every
// successfully verified transaction is recorded in the pending table before
// listeners see it, so a listener may call FinishTransaction from inside the
// callback.
func (s *Session) consumeTransactionUpdates(ctx context.Context, updates <-chan TransactionUpdateIOS, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				s.logger.Warn("transaction update stream closed")
				s.markDisconnected()
				return
			}
			s.handleTransactionUpdate(upd)
		}
	}
}

func (s *Session) handleTransactionUpdate(upd TransactionUpdateIOS) {
	if upd.Err != nil {
		perr := translateBridgeError(upd.Err, "")
		if perr.Code == ErrCodeUnknown {
			perr = &PurchaseError{
				Name:    "[iapkit]: PurchaseError",
				Message: upd.Err.Error(),
				Code:    ErrCodeTransactionValidationFailed,
			}
		}
		s.logger.Error("transaction update failed", "code", perr.Code, "message", perr.Message)
		s.listeners.emitPurchaseError(perr)
		s.listeners.emitTransactionIOS(TransactionEventIOS{Err: perr})
		return
	}

	tx := *upd.Transaction
	s.mu.Lock()
	s.pending[tx.TransactionID()] = tx
	s.mu.Unlock()

	s.logger.Debug("transaction updated", "transactionId", tx.TransactionID(), "productId", tx.ProductID)
	s.listeners.emitPurchaseUpdated(purchaseFromTransactionIOS(tx))
	s.listeners.emitTransactionIOS(TransactionEventIOS{Transaction: &tx})
}

// consumePurchaseUpdates drains the Play Billing purchase push channel.
func (s *Session) consumePurchaseUpdates(ctx context.Context, updates <-chan PurchaseUpdateAndroid, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				s.logger.Warn("purchase update stream closed")
				s.markDisconnected()
				return
			}
			s.handlePurchaseUpdate(upd)
		}
	}
}

func (s *Session) handlePurchaseUpdate(upd PurchaseUpdateAndroid) {
	if upd.Result.ResponseCode != BillingResponseOK {
		perr := billingResultError(upd.Result)
		s.logger.Error("purchase update rejected", "code", perr.Code, "responseCode", upd.Result.ResponseCode)
		s.listeners.emitPurchaseError(perr)
		return
	}

	for _, raw := range upd.Purchases {
		if raw.OriginalJSON != "" {
			if err := validateAndroidPurchasePayload(raw.OriginalJSON); err != nil {
				perr := &PurchaseError{
					Name:         "[iapkit]: PurchaseError",
					Message:      "purchase payload failed schema validation",
					DebugMessage: err.Error(),
					Code:         ErrCodeDeveloperError,
				}
				s.logger.Error("purchase payload rejected", "orderId", raw.OrderID, "error", err)
				s.listeners.emitPurchaseError(perr)
				continue
			}
		}
		s.logger.Debug("purchase updated", "orderId", raw.OrderID, "products", raw.Products)
		s.listeners.emitPurchaseUpdated(purchaseFromAndroid(raw, kindOfAndroid(raw)))
	}
}
