package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func TestSimulatedGateway_AlwaysApproves(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1)

	for i := 0; i < 20; i++ {
		res, err := g.Charge(context.Background(), ChargeRequest{OrderID: int64(i), AmountMinor: 1000})
		require.NoError(t, err)
		assert.True(t, res.Succeeded)
		assert.NotEmpty(t, res.ProviderRef)
	}
}

func TestSimulatedGateway_AlwaysDeclines(t *testing.T) {
	g := NewSimulatedGateway(0, 1)

	res, err := g.Charge(context.Background(), ChargeRequest{OrderID: 1, AmountMinor: 1000})
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, "simulated_decline", res.DeclineReason)
}

func TestSimulatedGateway_CancelledContext(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Charge(ctx, ChargeRequest{OrderID: 1, AmountMinor: 1000})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeclineOrError(t *testing.T) {
	cardErr := &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined, DeclineCode: stripe.DeclineCodeInsufficientFunds}
	res, err := declineOrError("create payment intent", cardErr)
	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, "insufficient_funds", res.DeclineReason)

	apiErr := &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"}
	res, err = declineOrError("create customer", apiErr)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create customer")

	res, err = declineOrError("create customer", errors.New("connection refused"))
	assert.Nil(t, res)
	assert.Error(t, err)
}
