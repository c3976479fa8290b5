package payments

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

var ErrNotConfigured = errors.New("payment provider not configured")

// Initiator creates payment intents against Stripe. It is a plain
// pass-through: no retries, no idempotency key, provider failures
// surface to the caller.
type Initiator struct {
	client *client.API
}

func NewInitiator(secretKey string) *Initiator {
	if secretKey == "" {
		return &Initiator{}
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Initiator{client: api}
}

// CreateIntent requests a card-only usd intent for the given price and
// returns the provider's client secret verbatim.
func (i *Initiator) CreateIntent(ctx context.Context, price float64) (string, error) {
	if i.client == nil {
		return "", ErrNotConfigured
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(MinorUnits(price)),
		Currency:           stripe.String(string(stripe.CurrencyUSD)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	intent, err := i.client.PaymentIntents.New(params)
	if err != nil {
		return "", err
	}
	return intent.ClientSecret, nil
}

// MinorUnits converts a price to an integer cent amount, truncating
// toward zero the way the booking flow always has.
func MinorUnits(price float64) int64 {
	return int64(price * 100)
}
