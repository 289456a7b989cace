package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrCheckoutNotFound    = errors.New("checkout not found")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrProviderDeclined    = errors.New("provider declined the request")
	ErrCallbackRejected    = errors.New("callback rejected")
)
