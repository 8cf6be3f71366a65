package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateEvent       = errors.New("event already applied")
	ErrOrderNotReady        = errors.New("referenced order not yet indexed")
	ErrOrderTerminal        = errors.New("order is terminal")
	ErrFillExceedsRemaining = errors.New("fill exceeds remaining amount")
	ErrIntegrity            = errors.New("integrity violation")
	ErrReorgDetected        = errors.New("chain reorg beyond tolerance")
	ErrUnknownEvent         = errors.New("unknown event shape")
	ErrBadInterval          = errors.New("unsupported candle interval")
	ErrUnknownAsset         = errors.New("unknown asset")
	ErrLockHeld             = errors.New("lock already held")
)
