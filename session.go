package iapkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Session owns the binding state for one native billing client: connection
// lifecycle, product cache, pending transaction table, listener registry and
// the background task consuming the native update feed. Construct it with
// exactly one platform backend and keep it for the life of the process;
// Close releases the native connection.
type Session struct {
	platform    Platform
	storeKit    StoreKitBridge
	playBilling PlayBillingBridge
	logger      *slog.Logger

	products  *productCache
	listeners *listenerRegistry

	mu              sync.Mutex
	connState       ConnectionState
	connWait        chan struct{} // non-nil while a connection attempt is in flight
	connErr         error         // outcome of the last attempt, for waiters
	canMakePayments bool
	pending         map[string]TransactionIOS
	updatesCancel   context.CancelFunc
	updatesDone     chan struct{}
}

// SessionOption configures a Session at construction time.
type SessionOption func(*Session)

// WithStoreKit binds the session to the StoreKit backend.
func WithStoreKit(bridge StoreKitBridge) SessionOption {
	return func(s *Session) {
		s.storeKit = bridge
		s.platform = PlatformIOS
	}
}

// WithPlayBilling binds the session to the Play Billing backend.
func WithPlayBilling(bridge PlayBillingBridge) SessionOption {
	return func(s *Session) {
		s.playBilling = bridge
		s.platform = PlatformAndroid
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates a session bound to exactly one platform backend.
func New(opts ...SessionOption) (*Session, error) {
	s := &Session{
		products:  newProductCache(),
		listeners: newListenerRegistry(),
		pending:   make(map[string]TransactionIOS),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.storeKit != nil && s.playBilling != nil {
		return nil, fmt.Errorf("exactly one platform backend is required, got both")
	}
	if s.storeKit == nil && s.playBilling == nil {
		return nil, fmt.Errorf("a platform backend is required: use WithStoreKit or WithPlayBilling")
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return s, nil
}

// Platform returns which store ecosystem this session is bound to.
func (s *Session) Platform() Platform {
	return s.platform
}

// ConnectionState returns the current connection state.
func (s *Session) ConnectionState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// InitConnection establishes the native billing handle. Idempotent: when
// already connected it returns success without re-establishing. On iOS the
// return value mirrors the store's can-make-payments flag; on Android it is
// true once setup completed.
func (s *Session) InitConnection(ctx context.Context) (bool, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.platform == PlatformIOS {
		return s.canMakePayments, nil
	}
	return true, nil
}

// EndConnection tears down the native billing handle, clears the product
// cache and the pending transaction table. A connection attempt in flight is
// waited out first so its commit cannot resurrect the torn-down session. Safe
// to call when already disconnected, in which case it returns false without
// error. Registered listeners survive teardown.
func (s *Session) EndConnection(ctx context.Context) (bool, error) {
	s.mu.Lock()
	for s.connState == Connecting {
		wait := s.connWait
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		s.mu.Lock()
	}
	if s.connState == Disconnected {
		s.mu.Unlock()
		return false, nil
	}
	cancel := s.updatesCancel
	done := s.updatesDone
	s.updatesCancel = nil
	s.updatesDone = nil
	s.connState = Disconnected
	s.connErr = nil
	s.pending = make(map[string]TransactionIOS)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.products.clear()

	if s.platform == PlatformAndroid {
		if err := s.playBilling.EndConnection(ctx); err != nil {
			return false, fmt.Errorf("end connection: %w", err)
		}
	}

	s.logger.Debug("connection ended", "platform", s.platform)
	return true, nil
}

// Close releases the session. Equivalent to EndConnection with a background
// context; safe to call multiple times.
func (s *Session) Close() error {
	_, err := s.EndConnection(context.Background())
	return err
}

// ensureConnected is the gate in front of every native operation: it
// transparently (re)establishes the connection so callers never sequence
// InitConnection themselves. At most one native connection attempt is in
// flight at a time; concurrent callers wait on the same attempt and share
// its outcome.
func (s *Session) ensureConnected(ctx context.Context) error {
	for {
		s.mu.Lock()
		switch s.connState {
		case Connected:
			s.mu.Unlock()
			return nil

		case Connecting:
			wait := s.connWait
			s.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return ctx.Err()
			}
			s.mu.Lock()
			if s.connState == Connected {
				s.mu.Unlock()
				return nil
			}
			err := s.connErr
			s.mu.Unlock()
			if err != nil {
				return err
			}
			// Torn down between attempts; take another pass.

		case Disconnected:
			wait := make(chan struct{})
			s.connState = Connecting
			s.connWait = wait
			s.mu.Unlock()

			err := s.connect(ctx)

			s.mu.Lock()
			if err != nil {
				s.connState = Disconnected
				s.connErr = err
			} else {
				s.connState = Connected
				s.connErr = nil
			}
			s.connWait = nil
			s.mu.Unlock()
			close(wait)
			return err
		}
	}
}

// connect performs the platform-specific native setup and starts the update
// feed consumer.
func (s *Session) connect(ctx context.Context) error {
	switch s.platform {
	case PlatformIOS:
		canPay, err := s.storeKit.CanMakePayments(ctx)
		if err != nil {
			return NewPurchaseError(ErrCodeNotPrepared, fmt.Sprintf("The store is not available on this device: %v", err))
		}
		s.mu.Lock()
		s.canMakePayments = canPay
		s.mu.Unlock()

	case PlatformAndroid:
		if !s.playBilling.Available(ctx) {
			return NewPurchaseError(ErrCodeNotPrepared, "Google Play Services are not available on this device")
		}
		result, err := s.playBilling.StartConnection(ctx)
		if err != nil {
			return NewPurchaseError(ErrCodeInitConnection, fmt.Sprintf("Billing setup failed: %v", err))
		}
		if result.ResponseCode != BillingResponseOK {
			return NewPurchaseError(ErrCodeInitConnection, fmt.Sprintf("Billing setup finished with error: %s", result.DebugMessage))
		}
	}

	if err := s.startUpdateFeed(); err != nil {
		return err
	}

	s.logger.Debug("connection established", "platform", s.platform)
	return nil
}

// startUpdateFeed launches the session-owned background task consuming the
// native push stream. No-op when a consumer is already running.
func (s *Session) startUpdateFeed() error {
	s.mu.Lock()
	if s.updatesDone != nil {
		s.mu.Unlock()
		return nil
	}
	feedCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.updatesCancel = cancel
	s.updatesDone = done
	s.mu.Unlock()

	var start func() error
	switch s.platform {
	case PlatformIOS:
		start = func() error {
			updates, err := s.storeKit.TransactionUpdates(feedCtx)
			if err != nil {
				return err
			}
			go s.consumeTransactionUpdates(feedCtx, updates, done)
			return nil
		}
	case PlatformAndroid:
		start = func() error {
			updates, err := s.playBilling.PurchaseUpdates(feedCtx)
			if err != nil {
				return err
			}
			go s.consumePurchaseUpdates(feedCtx, updates, done)
			return nil
		}
	}

	if err := start(); err != nil {
		cancel()
		close(done)
		s.mu.Lock()
		s.updatesCancel = nil
		s.updatesDone = nil
		s.mu.Unlock()
		return fmt.Errorf("open update feed: %w", err)
	}
	return nil
}

// markDisconnected records an unsolicited native disconnect. In-flight calls
// are not errored; the next operation re-initiates the connection through
// ensureConnected.
func (s *Session) markDisconnected() {
	s.mu.Lock()
	cancel := s.updatesCancel
	if s.connState == Connected {
		s.connState = Disconnected
	}
	s.updatesCancel = nil
	s.updatesDone = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.logger.Debug("billing service disconnected", "platform", s.platform)
}

// requirePlatform guards platform-specific operations.
func (s *Session) requirePlatform(p Platform) error {
	if s.platform != p {
		return NewPurchaseError(ErrCodeDeveloperError, fmt.Sprintf("this method is only available on %s", p))
	}
	return nil
}
