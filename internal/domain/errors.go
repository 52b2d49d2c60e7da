package domain

import "errors"

// Validation errors: the request itself is malformed. Fatal, never retried.
var (
	ErrZeroQuantity             = errors.New("zero quantity")
	ErrInvalidPaymentOption     = errors.New("invalid payment option")
	ErrZeroPrice                = errors.New("price cannot be zero")
	ErrNotWhitelisted           = errors.New("registry not whitelisted")
	ErrDepositTooLow            = errors.New("deposit fee is less than required")
	ErrInsufficientAssetBalance = errors.New("not enough asset balance")
	ErrEmptyWhitelistBatch      = errors.New("whitelist batch is empty")
	ErrZeroAddress              = errors.New("address cannot be zero")
	ErrAlreadyWhitelisted       = errors.New("address already whitelisted")
	ErrAmountOverflow           = errors.New("amount overflows")
)

// Authorization errors.
var (
	ErrUnauthorized = errors.New("unauthorized")
)

// Funds and inventory errors.
var (
	ErrInsufficientNativePayment = errors.New("not enough native value attached")
	ErrInsufficientTokenFunds    = errors.New("not enough settlement tokens")
	ErrInsufficientFeeBalance    = errors.New("insufficient service fee balance")
	ErrInsufficientInventory     = errors.New("not enough items to buy")
	ErrExceedsAvailable          = errors.New("requested amount unavailable")
)

// State errors.
var (
	ErrItemNotFound         = errors.New("item not found")
	ErrNoChange             = errors.New("same as current value")
	ErrFeeTooHigh           = errors.New("fee exceeds 10% cap")
	ErrAlreadyInitialized   = errors.New("ledger already initialized")
	ErrUnknownSchemaVersion = errors.New("unknown schema version")
	ErrLockHeld             = errors.New("lock already held")
)

// ErrTransferFailed marks a collaborator (asset registry, settlement
// currency, or native treasury) call that failed mid-operation. The ledger
// rolls back every internal mutation staged for that operation.
var ErrTransferFailed = errors.New("external transfer failed")

// IsValidation reports whether err is a request-validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrZeroQuantity) ||
		errors.Is(err, ErrInvalidPaymentOption) ||
		errors.Is(err, ErrZeroPrice) ||
		errors.Is(err, ErrNotWhitelisted) ||
		errors.Is(err, ErrDepositTooLow) ||
		errors.Is(err, ErrInsufficientAssetBalance) ||
		errors.Is(err, ErrEmptyWhitelistBatch) ||
		errors.Is(err, ErrZeroAddress) ||
		errors.Is(err, ErrAlreadyWhitelisted) ||
		errors.Is(err, ErrAmountOverflow)
}

// IsInsufficientFunds reports whether err is a funds shortfall on either
// rail or on the platform balance.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientNativePayment) ||
		errors.Is(err, ErrInsufficientTokenFunds) ||
		errors.Is(err, ErrInsufficientFeeBalance)
}

// IsInventory reports whether err is an inventory shortfall.
func IsInventory(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrExceedsAvailable)
}
