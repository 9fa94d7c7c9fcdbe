package order

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientStockErrorUnwraps(t *testing.T) {
	err := &InsufficientStockError{SlipperID: 3, Name: "cozy", Requested: 5, Available: 2}
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "slipper 3")
	assert.Contains(t, err.Error(), "requested 5")

	var target *InsufficientStockError
	assert.True(t, errors.As(err, &target))
}
