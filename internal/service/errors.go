package service

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotEnoughStock      = errors.New("not enough stock")
	ErrInvalidState        = errors.New("invalid state")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrStockConflict means stock ran out between placement and confirmation
	ErrStockConflict      = errors.New("stock conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
