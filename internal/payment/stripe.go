package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"shop-service/internal/util"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// Card is the payment method charged for every order
type Card struct {
	Number   string
	ExpMonth int64
	ExpYear  int64
	CVC      string
}

// StripeGateway charges through Stripe payment intents.
type StripeGateway struct {
	api      *client.API
	currency string
	card     Card
	logger   *zap.Logger
}

func NewStripeGateway(secretKey, currency string, card Card) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{
		api:      api,
		currency: currency,
		card:     card,
		logger:   util.GetLogger(),
	}
}

// Charge creates a payment method and a customer, then creates and confirms
// a payment intent tagged with the order id.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	ctx, span := util.StartSpan(ctx, "StripeGateway.Charge")
	defer span.End()

	pmParams := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(g.card.Number),
			ExpMonth: stripe.Int64(g.card.ExpMonth),
			ExpYear:  stripe.Int64(g.card.ExpYear),
			CVC:      stripe.String(g.card.CVC),
		},
	}
	pmParams.Context = ctx
	pm, err := g.api.PaymentMethods.New(pmParams)
	if err != nil {
		return declineOrError("create payment method", err)
	}

	custParams := &stripe.CustomerParams{
		PaymentMethod: stripe.String(pm.ID),
	}
	if req.CustomerEmail != "" {
		custParams.Email = stripe.String(req.CustomerEmail)
	}
	if req.CustomerName != "" {
		custParams.Name = stripe.String(req.CustomerName)
	}
	custParams.Context = ctx
	cust, err := g.api.Customers.New(custParams)
	if err != nil {
		return declineOrError("create customer", err)
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountMinor),
		Currency:           stripe.String(g.currency),
		Customer:           stripe.String(cust.ID),
		PaymentMethod:      stripe.String(pm.ID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	piParams.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))
	piParams.Context = ctx
	pi, err := g.api.PaymentIntents.New(piParams)
	if err != nil {
		return declineOrError("create payment intent", err)
	}

	g.logger.Info("Payment intent confirmed",
		zap.Int64("order_id", req.OrderID),
		zap.String("payment_intent", pi.ID),
		zap.String("status", string(pi.Status)))

	result := &ChargeResult{
		Succeeded:   pi.Status == stripe.PaymentIntentStatusSucceeded,
		ProviderRef: pi.ID,
	}
	if !result.Succeeded {
		result.DeclineReason = string(pi.Status)
	}
	return result, nil
}

// declineOrError turns a card error into a declined result; anything else
// is a processor error.
func declineOrError(step string, err error) (*ChargeResult, error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		reason := string(stripeErr.DeclineCode)
		if reason == "" {
			reason = string(stripeErr.Code)
		}
		return &ChargeResult{Succeeded: false, DeclineReason: reason}, nil
	}
	return nil, fmt.Errorf("stripe %s: %w", step, err)
}
