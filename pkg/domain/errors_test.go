package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := Errorf(KindInsufficientFunds, "wallet.Debit", "need %d, have %d", 80, 50).WithAddress("$example.com")

	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.False(t, errors.Is(err, ErrPriceExceedsCeiling))
	assert.Equal(t, "wallet.Debit: InsufficientFunds [$example.com]: need 80, have 50", err.Error())
}

func TestError_WrappedStillClassified(t *testing.T) {
	inner := Wrap(KindDiscoveryUnavailable, "discovery.Discover", errors.New("connection refused"))
	outer := fmt.Errorf("acquire: %w", inner)

	assert.True(t, errors.Is(outer, ErrDiscoveryUnavailable))
	assert.Equal(t, KindDiscoveryUnavailable, KindOf(outer))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_WithAddressCopies(t *testing.T) {
	base := Errorf(KindNotHeld, "serve", "no token")
	bound := base.WithAddress("$a")

	assert.Empty(t, base.Address)
	assert.Equal(t, "$a", bound.Address)
}
