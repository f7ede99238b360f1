package services

import (
	"context"
	"errors"
	"net"

	"github.com/gallhort/Baytup-sub000/models"
)

// PaymentIntent is the provider-side payment a guest must complete.
type PaymentIntent struct {
	ProviderTransactionID string            `json:"providerTransactionID"`
	ClientPayload         map[string]string `json:"clientPayload"` // checkout URL, client secret, ...
}

// PaymentStatus is a provider's answer about a transaction.
type PaymentStatus struct {
	IsPaid            bool   `json:"isPaid"`
	RawStatus         string `json:"rawStatus"`
	ProviderChargeRef string `json:"providerChargeRef,omitempty"`
}

// PaymentGateway abstracts a payment rail. Two concrete rails exist: the
// card rail for EUR bookings and the local invoicing rail for DZD. Selection
// is by the booking's settlement currency, decided at creation and never
// changed.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount float64, currency, bookingRef string, payer *models.User) (*PaymentIntent, error)
	GetStatus(ctx context.Context, providerTransactionID string) (*PaymentStatus, error)
	VerifyWebhookSignature(payload []byte, signatureHeader string) bool
}

// GatewayForCurrency picks the payment rail for a settlement currency.
func GatewayForCurrency(currency string) PaymentGateway {
	if currency == "DZD" {
		return NewInvoiceGateway()
	}
	return NewCardGateway()
}

// GatewayForMethod maps a stored payment method back onto its rail. Manual
// methods (bank transfer, cash) have no rail.
func GatewayForMethod(method string) PaymentGateway {
	switch method {
	case models.PaymentMethodEdahabia:
		return NewInvoiceGateway()
	case models.PaymentMethodCard:
		return NewCardGateway()
	}
	return nil
}

// asGatewayError folds transport failures into the service taxonomy so a
// provider outage is never mistaken for a declined payment.
func asGatewayError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrGatewayTimeout
	}
	return errors.Join(ErrGatewayError, err)
}
