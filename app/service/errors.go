package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrPolicyViolation     = errors.New("unknown plan or interval")
)
