package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_ToDecimal(t *testing.T) {
	m := Money(1_050) // 10.50 NGN
	assert.Equal(t, "10.5", m.ToDecimal().String())
}

func TestMoneyFromDecimal(t *testing.T) {
	assert.Equal(t, Money(1_050), MoneyFromDecimal(decimal.NewFromFloat(10.50)))
}

func TestMoneyFromDecimal_RoundsDownFractionalKobo(t *testing.T) {
	assert.Equal(t, Money(1_099), MoneyFromDecimal(decimal.RequireFromString("10.999")))
}

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney("2000.25")
	require.NoError(t, err)
	assert.Equal(t, Money(200_025), m)

	_, err = ParseMoney("twenty")
	require.Error(t, err)
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "NGN 20.00", Money(2_000).String())
}

func TestIsValidPool(t *testing.T) {
	assert.True(t, IsValidPool(PoolCustomerFunds))
	assert.True(t, IsValidPool(PoolDeliveryEarnings))
	assert.False(t, IsValidPool("total_balance"))
}
