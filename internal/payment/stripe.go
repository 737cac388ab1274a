package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe is a Gateway backed by the Stripe PaymentIntents API
type Stripe struct {
	api *client.API
}

func NewStripe(secretKey string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api}
}

var _ Gateway = (*Stripe)(nil)

func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create intent: %w", err)
	}
	return fromStripe(pi), nil
}

func (s *Stripe) GetIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		if isMissing(err) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("stripe get intent: %w", err)
	}
	return fromStripe(pi), nil
}

func (s *Stripe) CancelIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := s.api.PaymentIntents.Cancel(id, params); err != nil {
		if isMissing(err) {
			return ErrIntentNotFound
		}
		return fmt.Errorf("stripe cancel intent: %w", err)
	}
	return nil
}

func isMissing(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
