package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	cases := map[float64]int64{
		0:       0,
		10:      1000,
		19.99:   1999,
		0.1:     10,
		53.995:  5400,
		1234.56: 123456,
	}
	for in, want := range cases {
		assert.Equal(t, want, ToMinorUnits(in), "amount %v", in)
	}
}

func TestLocal_Lifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewLocal(false)

	in, err := g.CreateIntent(ctx, IntentRequest{AmountMinor: 1999, Currency: "usd", Metadata: map[string]string{"orderId": "o1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, in.ClientSecret)
	assert.Equal(t, StatusRequiresPaymentMethod, in.Status)

	got, err := g.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1999), got.AmountMinor)
	assert.Equal(t, "o1", got.Metadata["orderId"])

	require.NoError(t, g.SetStatus(in.ID, StatusSucceeded))
	got, _ = g.GetIntent(ctx, in.ID)
	assert.Equal(t, StatusSucceeded, got.Status)

	assert.Error(t, g.CancelIntent(ctx, in.ID), "succeeded intents cannot be cancelled")
}

func TestLocal_AutoCaptureAndCancel(t *testing.T) {
	ctx := context.Background()
	g := NewLocal(true)
	in, err := g.CreateIntent(ctx, IntentRequest{AmountMinor: 100, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, in.Status)

	g.AutoCapture = false
	in2, err := g.CreateIntent(ctx, IntentRequest{AmountMinor: 100, Currency: "usd"})
	require.NoError(t, err)
	require.NoError(t, g.CancelIntent(ctx, in2.ID))
	got, _ := g.GetIntent(ctx, in2.ID)
	assert.Equal(t, StatusCanceled, got.Status)
}

func TestLocal_Errors(t *testing.T) {
	ctx := context.Background()
	g := NewLocal(false)
	_, err := g.CreateIntent(ctx, IntentRequest{AmountMinor: 0})
	assert.Error(t, err)
	_, err = g.GetIntent(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrIntentNotFound)
	assert.ErrorIs(t, g.CancelIntent(ctx, "pi_missing"), ErrIntentNotFound)
	assert.ErrorIs(t, g.SetStatus("pi_missing", StatusSucceeded), ErrIntentNotFound)
}
