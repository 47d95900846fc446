package billing

import "errors"

var (
	// ErrNoPayerAccount is returned when a subscription's customer has no PayerAccount
	ErrNoPayerAccount = errors.New("customer has no payer account")
	// ErrDirectoryLookup is returned when a directory search does not find exactly one entry
	ErrDirectoryLookup = errors.New("unexpected directory search result")
)
