package collar

import "errors"

// Validation errors — rejected before any state mutation.
var (
	ErrInvalidStrikeRange        = errors.New("strike deviations must satisfy 0 < put < 10000 < call")
	ErrInvalidPutStrikeDeviation = errors.New("put strike deviation of 10000 would divide by zero")
	ErrStrikesNotDifferent       = errors.New("strike prices must differ strictly from the opening price")
	ErrInvalidAmount             = errors.New("amount must be positive")
	ErrInvalidDuration           = errors.New("duration must be positive")
	ErrInvalidRollRange          = errors.New("roll offer requires minPrice < maxPrice")
	ErrInvalidFeeDeltaFactor     = errors.New("fee delta factor exceeds 10000 basis points")
	ErrUnsupportedAsset          = errors.New("asset is not supported")
	ErrOpenNotAllowed            = errors.New("opening positions is not allowed")
	ErrInvalidPrice              = errors.New("oracle price must be nonzero")

	// State errors — guard every mutating entry point.
	ErrOfferNotFound     = errors.New("liquidity offer not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrRollOfferNotFound = errors.New("roll offer not found")
	ErrTokenNotFound     = errors.New("position token not found")
	ErrAlreadySettled    = errors.New("position already settled")
	ErrNotSettled        = errors.New("position not settled")
	ErrNotExpired        = errors.New("position not yet expired")
	ErrDeadlinePassed    = errors.New("deadline has passed")
	ErrRollOfferInactive = errors.New("roll offer is no longer active")

	// Liquidity / economics errors.
	ErrInsufficientLiquidity = errors.New("offer has insufficient available liquidity")
	ErrPriceOutOfRollRange   = errors.New("price outside the roll offer's range")
	ErrSlippageExceeded      = errors.New("transfer amount differs from expected")
	ErrBelowMinToProvider    = errors.New("provider transfer below the offer minimum")

	// Authorization errors.
	ErrNotOwner       = errors.New("caller does not own the position token")
	ErrUnauthorized   = errors.New("caller is not authorized")
	ErrPairedMismatch = errors.New("paired provider ledger reference does not match")
)
