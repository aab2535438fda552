package monero

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBuildURI(t *testing.T) {
	amount := decimal.New(105, -3)
	require.Equal(t, "monero:74subaddr?tx_amount=0.105", BuildURI("74subaddr", &amount))
	require.Equal(t, "monero:74subaddr", BuildURI("74subaddr", nil))
}

func TestFromAtomic(t *testing.T) {
	require.Equal(t, "0.105", FromAtomic(105_000_000_000).String())
	require.Equal(t, "1", FromAtomic(1_000_000_000_000).String())
	require.Equal(t, "0.000000000001", FromAtomic(1).String())
	require.Equal(t, "0", FromAtomic(0).String())
}
