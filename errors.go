package iapkit

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable, programmatically-branchable error identity carried
// by every PurchaseError. Message and DebugMessage are diagnostics only;
// their text is not a contract.
type ErrorCode string

const (
	ErrCodeNotPrepared                 ErrorCode = "E_NOT_PREPARED"
	ErrCodeInitConnection              ErrorCode = "E_INIT_CONNECTION"
	ErrCodeQueryProduct                ErrorCode = "E_QUERY_PRODUCT"
	ErrCodeEmptySkuList                ErrorCode = "EMPTY_SKU_LIST"
	ErrCodeInvalidParameter            ErrorCode = "E_INVALID_PARAMETER"
	ErrCodeSkuNotFound                 ErrorCode = "E_SKU_NOT_FOUND"
	ErrCodeSkuOfferMismatch            ErrorCode = "E_SKU_OFFER_MISMATCH"
	ErrCodeActivityUnavailable         ErrorCode = "E_ACTIVITY_UNAVAILABLE"
	ErrCodeUserCancelled               ErrorCode = "E_USER_CANCELLED"
	ErrCodeDeferredPayment             ErrorCode = "E_DEFERRED_PAYMENT"
	ErrCodeItemUnavailable             ErrorCode = "E_ITEM_UNAVAILABLE"
	ErrCodeNetworkError                ErrorCode = "E_NETWORK_ERROR"
	ErrCodeServiceError                ErrorCode = "E_SERVICE_ERROR"
	ErrCodeAlreadyOwned                ErrorCode = "E_ALREADY_OWNED"
	ErrCodeDeveloperError              ErrorCode = "E_DEVELOPER_ERROR"
	ErrCodeTransactionValidationFailed ErrorCode = "E_TRANSACTION_VALIDATION_FAILED"
	ErrCodeInvalidTransaction          ErrorCode = "E_INVALID_TRANSACTION"
	ErrCodeReceiptFailed               ErrorCode = "E_RECEIPT_FAILED"
	ErrCodeUnknown                     ErrorCode = "E_UNKNOWN"
)

// PurchaseError is the unified billing error. Constructed once per failure,
// delivered to listeners and/or returned, never mutated afterwards.
type PurchaseError struct {
	Name         string    `json:"name"`
	Message      string    `json:"message"`
	ResponseCode int       `json:"responseCode,omitempty"`
	DebugMessage string    `json:"debugMessage,omitempty"`
	Code         ErrorCode `json:"code"`
	ProductID    string    `json:"productId,omitempty"`
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewPurchaseError creates a purchase error with the given code and message.
func NewPurchaseError(code ErrorCode, message string) *PurchaseError {
	return &PurchaseError{
		Name:    "[iapkit]: PurchaseError",
		Message: message,
		Code:    code,
	}
}

// AsPurchaseError unwraps err into a *PurchaseError if one is in its chain.
func AsPurchaseError(err error) (*PurchaseError, bool) {
	var perr *PurchaseError
	ok := errors.As(err, &perr)
	return perr, ok
}

// Sentinel errors bridges return from native calls. The session translates
// them into the PurchaseError taxonomy; application code normally never sees
// them directly.
var (
	// ErrUserCancelled reports that the user dismissed the payment sheet.
	ErrUserCancelled = errors.New("user cancelled the purchase")
	// ErrPaymentDeferred reports a purchase awaiting external approval
	// (e.g. Ask to Buy).
	ErrPaymentDeferred = errors.New("the payment was deferred")
	// ErrNoForegroundScene reports that no foreground UI context exists to
	// host the purchase sheet.
	ErrNoForegroundScene = errors.New("no foreground scene to host the purchase ui")
	// ErrVerificationFailed reports a StoreKit transaction whose signature
	// could not be verified.
	ErrVerificationFailed = errors.New("transaction signature verification failed")
)

// Play Billing response codes, as delivered in BillingResult.ResponseCode.
const (
	BillingResponseFeatureNotSupported = -2
	BillingResponseServiceDisconnected = -1
	BillingResponseOK                  = 0
	BillingResponseUserCanceled        = 1
	BillingResponseServiceUnavailable  = 2
	BillingResponseBillingUnavailable  = 3
	BillingResponseItemUnavailable     = 4
	BillingResponseDeveloperError      = 5
	BillingResponseError               = 6
	BillingResponseItemAlreadyOwned    = 7
	BillingResponseItemNotOwned        = 8
	BillingResponseNetworkError        = 12
)

// billingResponseData maps a native Play Billing response code to the stable
// error code and a human-readable message. Unmapped codes fall through to
// E_UNKNOWN with the raw code embedded in the message.
func billingResponseData(responseCode int) (ErrorCode, string) {
	switch responseCode {
	case BillingResponseFeatureNotSupported:
		return ErrCodeServiceError, "This feature is not available on your device."
	case BillingResponseServiceDisconnected:
		return ErrCodeNetworkError, "The service is disconnected (check your internet connection.)"
	case BillingResponseNetworkError:
		return ErrCodeNetworkError, "You have a problem with network connection."
	case BillingResponseOK:
		return "OK", ""
	case BillingResponseUserCanceled:
		return ErrCodeUserCancelled, "Payment is cancelled."
	case BillingResponseServiceUnavailable:
		return ErrCodeServiceError, "The service is unreachable. This may be your internet connection, or the Play Store may be down."
	case BillingResponseBillingUnavailable:
		return ErrCodeServiceError, "Billing is unavailable. This may be a problem with your device, or the Play Store may be down."
	case BillingResponseItemUnavailable:
		return ErrCodeItemUnavailable, "That item is unavailable."
	case BillingResponseDeveloperError:
		return ErrCodeDeveloperError, "Google is indicating that we have some issue connecting to payment."
	case BillingResponseError:
		return ErrCodeUnknown, "An unknown or unexpected error has occurred. Please try again later."
	case BillingResponseItemAlreadyOwned:
		return ErrCodeAlreadyOwned, "You already own this item."
	default:
		return ErrCodeUnknown, fmt.Sprintf("Purchase failed with code: %d", responseCode)
	}
}

// billingResultError builds a PurchaseError from a non-OK BillingResult.
func billingResultError(result BillingResult) *PurchaseError {
	code, message := billingResponseData(result.ResponseCode)
	return &PurchaseError{
		Name:         "[iapkit]: PurchaseError",
		Message:      message,
		ResponseCode: result.ResponseCode,
		DebugMessage: result.DebugMessage,
		Code:         code,
	}
}

// BillingResultError is returned by PlayBillingBridge implementations when a
// native call completes with a non-OK BillingResult. The session translates
// it through the response-code table.
type BillingResultError struct {
	Result BillingResult
}

func (e *BillingResultError) Error() string {
	return fmt.Sprintf("billing response %d: %s", e.Result.ResponseCode, e.Result.DebugMessage)
}

// translateBridgeError maps bridge-level errors (sentinels, billing results)
// into PurchaseErrors; anything unrecognized becomes E_UNKNOWN.
func translateBridgeError(err error, productID string) *PurchaseError {
	if perr, ok := AsPurchaseError(err); ok {
		return perr
	}

	var bre *BillingResultError
	if errors.As(err, &bre) {
		perr := billingResultError(bre.Result)
		perr.ProductID = productID
		return perr
	}

	perr := NewPurchaseError(ErrCodeUnknown, err.Error())
	switch {
	case errors.Is(err, ErrUserCancelled):
		perr.Code = ErrCodeUserCancelled
	case errors.Is(err, ErrPaymentDeferred):
		perr.Code = ErrCodeDeferredPayment
	case errors.Is(err, ErrNoForegroundScene):
		perr.Code = ErrCodeActivityUnavailable
	case errors.Is(err, ErrVerificationFailed):
		perr.Code = ErrCodeTransactionValidationFailed
	}
	perr.ProductID = productID
	return perr
}
