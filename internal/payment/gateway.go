package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// IntentStatus mirrors the gateway's payment intent lifecycle
type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusRequiresCapture       IntentStatus = "requires_capture"
	StatusCanceled              IntentStatus = "canceled"
	StatusSucceeded             IntentStatus = "succeeded"
)

// ErrIntentNotFound is returned when the gateway does not know the intent
var ErrIntentNotFound = errors.New("payment intent not found")

// Intent is the gateway-side record of a payment attempt
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	AmountMinor  int64
	Currency     string
	Metadata     map[string]string
}

// IntentRequest asks the gateway to collect AmountMinor in Currency
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// Gateway is the contract the payment workflow relies on
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) error
}

// ToMinorUnits converts a major-unit amount (dollars) to minor units (cents), rounding half away from zero
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}
