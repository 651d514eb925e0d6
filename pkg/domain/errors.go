// Package domain defines the typed error taxonomy shared by the path402 engine.
//
// Every failure path in pricing, the wallet ledger, evaluation, acquisition,
// serving and economics returns an *Error so callers can branch on Kind
// instead of matching strings.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind string

const (
	KindInvalidSupply         Kind = "InvalidSupply"
	KindInsufficientFunds     Kind = "InsufficientFunds"
	KindPriceExceedsCeiling   Kind = "PriceExceedsCeiling"
	KindAlreadyOwned          Kind = "AlreadyOwned"
	KindNotHeld               Kind = "NotHeld"
	KindNoServingRights       Kind = "NoServingRights"
	KindContentDeliveryFailed Kind = "ContentDeliveryFailed"
	KindDiscoveryUnavailable  Kind = "DiscoveryUnavailable"
	KindInvalidModel          Kind = "InvalidModel"
	KindInvalidParameter      Kind = "InvalidParameter"
)

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrInvalidSupply         = &Error{Kind: KindInvalidSupply}
	ErrInsufficientFunds     = &Error{Kind: KindInsufficientFunds}
	ErrPriceExceedsCeiling   = &Error{Kind: KindPriceExceedsCeiling}
	ErrAlreadyOwned          = &Error{Kind: KindAlreadyOwned}
	ErrNotHeld               = &Error{Kind: KindNotHeld}
	ErrNoServingRights       = &Error{Kind: KindNoServingRights}
	ErrContentDeliveryFailed = &Error{Kind: KindContentDeliveryFailed}
	ErrDiscoveryUnavailable  = &Error{Kind: KindDiscoveryUnavailable}
	ErrInvalidModel          = &Error{Kind: KindInvalidModel}
	ErrInvalidParameter      = &Error{Kind: KindInvalidParameter}
)

// Error is a classified engine failure.
type Error struct {
	Kind    Kind   `json:"kind"`
	Op      string `json:"op,omitempty"`
	Address string `json:"address,omitempty"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// WithAddress returns a copy of e bound to a $address.
func (e *Error) WithAddress(address string) *Error {
	cp := *e
	cp.Address = address
	return &cp
}

func (e *Error) Error() string {
	var s string
	if e.Op != "" {
		s = e.Op + ": "
	}
	s += string(e.Kind)
	if e.Address != "" {
		s += " [" + e.Address + "]"
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a domain error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
