package service

import (
	"errors"

	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/factory"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/identity"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/ledger"
)

// Code groups service errors for the transports.
type Code int

const (
	CodeInternal Code = iota
	CodeInvalid
	CodeUnauthorized
	CodeNotFound
	CodeRejected
)

// ErrorCode classifies err by the sentinel it wraps.
func ErrorCode(err error) Code {
	switch {
	case errors.Is(err, compliance.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, factory.ErrAssetNotFound),
		errors.Is(err, compliance.ErrUnknownModule):
		return CodeNotFound
	case errors.Is(err, ledger.ErrComplianceRejected),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrUnknownIdentity):
		return CodeRejected
	case errors.Is(err, compliance.ErrConfiguration),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, factory.ErrInvalidRequest),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidParty),
		errors.Is(err, identity.ErrInvalidIdentity):
		return CodeInvalid
	default:
		return CodeInternal
	}
}

// String is the snake_case code used in JSON error bodies.
func (c Code) String() string {
	switch c {
	case CodeInvalid:
		return "invalid_request"
	case CodeUnauthorized:
		return "unauthorized"
	case CodeNotFound:
		return "not_found"
	case CodeRejected:
		return "rejected"
	default:
		return "internal_error"
	}
}
