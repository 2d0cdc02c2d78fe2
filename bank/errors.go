package bank

import "errors"

var (
	ErrAccountExists       = errors.New("account already exists")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrNoAccounts          = errors.New("account table is empty")
	ErrTransferExists      = errors.New("transfer already queued")
	ErrUnknownTransfer     = errors.New("unknown transfer")
	ErrInsufficientBalance = errors.New("insufficient balance")
)
